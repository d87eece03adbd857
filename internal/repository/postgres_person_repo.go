package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/KlepaczKotletow/Performance-Review/internal/model"
)

// uniqueViolation はPostgreSQLの一意制約違反のエラーコード。
const uniqueViolation = "23505"

// PostgresPersonRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresPersonRepo struct {
	db *sql.DB
}

// NewPostgresPersonRepo はPostgresPersonRepoを生成する。
func NewPostgresPersonRepo(db *sql.DB) *PostgresPersonRepo {
	return &PostgresPersonRepo{db: db}
}

const personColumns = `id, workspace_id, slack_user_id, name, email, role, created_at, updated_at`

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresPersonRepo) FindByID(ctx context.Context, id string) (*model.Person, error) {
	p := &model.Person{}
	err := r.db.QueryRowContext(ctx,
		`SELECT `+personColumns+` FROM persons WHERE id = $1`, id,
	).Scan(&p.ID, &p.WorkspaceID, &p.SlackUserID, &p.Name, &p.Email, &p.Role, &p.CreatedAt, &p.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	return p, nil
}

// FindByWorkspaceAndSlackID は(workspace_id, slack_user_id)でユーザーを検索する。
// 見つからない場合はnilを返す。
func (r *PostgresPersonRepo) FindByWorkspaceAndSlackID(ctx context.Context, workspaceID, slackUserID string) (*model.Person, error) {
	p := &model.Person{}
	err := r.db.QueryRowContext(ctx,
		`SELECT `+personColumns+` FROM persons WHERE workspace_id = $1 AND slack_user_id = $2`,
		workspaceID, slackUserID,
	).Scan(&p.ID, &p.WorkspaceID, &p.SlackUserID, &p.Name, &p.Email, &p.Role, &p.CreatedAt, &p.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("外部ユーザーIDによるユーザーの検索に失敗しました: %w", err)
	}
	return p, nil
}

// GetOrCreate は自然キー(workspace_id, slack_user_id)でユーザーを取得し、
// 存在しない場合は作成する。並行実行でINSERTが一意制約違反になった場合は
// 競合相手が作成した行を取得して返す（read-then-write競合をエラーにしない）。
func (r *PostgresPersonRepo) GetOrCreate(ctx context.Context, person *model.Person) (*model.Person, error) {
	existing, err := r.FindByWorkspaceAndSlackID(ctx, person.WorkspaceID, person.SlackUserID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO persons (id, workspace_id, slack_user_id, name, email, role, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now(), now())`,
		person.ID, person.WorkspaceID, person.SlackUserID, person.Name, person.Email, person.Role,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			// 別の呼び出しが先に作成した。既存行を返す。
			winner, ferr := r.FindByWorkspaceAndSlackID(ctx, person.WorkspaceID, person.SlackUserID)
			if ferr != nil {
				return nil, ferr
			}
			if winner != nil {
				return winner, nil
			}
		}
		return nil, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}

	return r.FindByWorkspaceAndSlackID(ctx, person.WorkspaceID, person.SlackUserID)
}

// UpdateProfile は表示名・メール・ロールタグを更新する。空の値は既存値を維持する。
func (r *PostgresPersonRepo) UpdateProfile(ctx context.Context, id, name, email, role string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE persons SET
		   name = COALESCE(NULLIF($2, ''), name),
		   email = COALESCE(NULLIF($3, ''), email),
		   role = COALESCE(NULLIF($4, ''), role),
		   updated_at = now()
		 WHERE id = $1`,
		id, name, email, role,
	)
	if err != nil {
		return fmt.Errorf("ユーザープロフィールの更新に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ PersonRepository = (*PostgresPersonRepo)(nil)
