package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/KlepaczKotletow/Performance-Review/internal/model"
)

// PostgresTemplateRepo はPostgreSQLを使用したテンプレートリポジトリ。
// 設問リストはjsonbカラムに格納する。
type PostgresTemplateRepo struct {
	db *sql.DB
}

// NewPostgresTemplateRepo はPostgresTemplateRepoを生成する。
func NewPostgresTemplateRepo(db *sql.DB) *PostgresTemplateRepo {
	return &PostgresTemplateRepo{db: db}
}

const templateColumns = `id, workspace_id, name, version, is_default, questions, created_by, created_at`

// scanTemplate は1行をTemplateに読み取り、jsonbの設問をデコードする。
func scanTemplate(row interface{ Scan(...any) error }) (*model.Template, error) {
	t := &model.Template{}
	var questionsJSON []byte
	var createdBy sql.NullString
	err := row.Scan(&t.ID, &t.WorkspaceID, &t.Name, &t.Version, &t.IsDefault,
		&questionsJSON, &createdBy, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	t.CreatedBy = createdBy.String
	if err := json.Unmarshal(questionsJSON, &t.Questions); err != nil {
		return nil, fmt.Errorf("設問JSONのデコードに失敗しました: %w", err)
	}
	return t, nil
}

// FindByID は指定IDのテンプレートを取得する。見つからない場合はnilを返す。
func (r *PostgresTemplateRepo) FindByID(ctx context.Context, id string) (*model.Template, error) {
	t, err := scanTemplate(r.db.QueryRowContext(ctx,
		`SELECT `+templateColumns+` FROM templates WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("テンプレートの取得に失敗しました: %w", err)
	}
	return t, nil
}

// FindDefault はワークスペースのデフォルトテンプレートを取得する。
// 未設定の場合はnilを返す。
func (r *PostgresTemplateRepo) FindDefault(ctx context.Context, workspaceID string) (*model.Template, error) {
	t, err := scanTemplate(r.db.QueryRowContext(ctx,
		`SELECT `+templateColumns+` FROM templates
		 WHERE workspace_id = $1 AND is_default = TRUE`, workspaceID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("デフォルトテンプレートの取得に失敗しました: %w", err)
	}
	return t, nil
}

// FindLatestByName は指定名の最新バージョンのテンプレートを取得する。
// 見つからない場合はnilを返す。
func (r *PostgresTemplateRepo) FindLatestByName(ctx context.Context, workspaceID, name string) (*model.Template, error) {
	t, err := scanTemplate(r.db.QueryRowContext(ctx,
		`SELECT `+templateColumns+` FROM templates
		 WHERE workspace_id = $1 AND name = $2
		 ORDER BY version DESC LIMIT 1`, workspaceID, name))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("名前によるテンプレートの検索に失敗しました: %w", err)
	}
	return t, nil
}

// Create はテンプレートの新バージョンを挿入する。
// is_default=trueの場合、既存デフォルトの解除を同一トランザクションで行う。
func (r *PostgresTemplateRepo) Create(ctx context.Context, tmpl *model.Template) error {
	questionsJSON, err := json.Marshal(tmpl.Questions)
	if err != nil {
		return fmt.Errorf("設問JSONのエンコードに失敗しました: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	if tmpl.IsDefault {
		_, err = tx.ExecContext(ctx,
			`UPDATE templates SET is_default = FALSE
			 WHERE workspace_id = $1 AND is_default = TRUE`,
			tmpl.WorkspaceID,
		)
		if err != nil {
			return fmt.Errorf("既存デフォルトテンプレートの解除に失敗しました: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO templates (id, workspace_id, name, version, is_default, questions, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), now())`,
		tmpl.ID, tmpl.WorkspaceID, tmpl.Name, tmpl.Version, tmpl.IsDefault, questionsJSON, tmpl.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("テンプレートの作成に失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

// ListByWorkspace はワークスペースのテンプレート一覧を返す（デフォルト優先、新しい順）。
func (r *PostgresTemplateRepo) ListByWorkspace(ctx context.Context, workspaceID string) ([]*model.Template, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+templateColumns+` FROM templates
		 WHERE workspace_id = $1
		 ORDER BY is_default DESC, created_at DESC`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("テンプレート一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var templates []*model.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("テンプレート行の読み取りに失敗しました: %w", err)
		}
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("テンプレート一覧の走査に失敗しました: %w", err)
	}
	return templates, nil
}

// compile-time interface check
var _ TemplateRepository = (*PostgresTemplateRepo)(nil)
