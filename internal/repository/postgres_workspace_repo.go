package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/KlepaczKotletow/Performance-Review/internal/model"
)

// PostgresWorkspaceRepo はPostgreSQLを使用したワークスペースリポジトリ。
type PostgresWorkspaceRepo struct {
	db *sql.DB
}

// NewPostgresWorkspaceRepo はPostgresWorkspaceRepoを生成する。
func NewPostgresWorkspaceRepo(db *sql.DB) *PostgresWorkspaceRepo {
	return &PostgresWorkspaceRepo{db: db}
}

const workspaceColumns = `id, team_id, team_name, bot_token, bot_user_id, refresh_token, token_expires_at, created_at, updated_at`

// scanWorkspace は1行をWorkspaceに読み取る。
func scanWorkspace(row interface{ Scan(...any) error }) (*model.Workspace, error) {
	ws := &model.Workspace{}
	var refreshToken sql.NullString
	var expiresAt sql.NullTime
	err := row.Scan(&ws.ID, &ws.TeamID, &ws.TeamName, &ws.BotToken, &ws.BotUserID,
		&refreshToken, &expiresAt, &ws.CreatedAt, &ws.UpdatedAt)
	if err != nil {
		return nil, err
	}
	ws.RefreshToken = refreshToken.String
	if expiresAt.Valid {
		t := expiresAt.Time
		ws.TokenExpiresAt = &t
	}
	return ws, nil
}

// FindByID は指定IDのワークスペースを取得する。見つからない場合はnilを返す。
func (r *PostgresWorkspaceRepo) FindByID(ctx context.Context, id string) (*model.Workspace, error) {
	ws, err := scanWorkspace(r.db.QueryRowContext(ctx,
		`SELECT `+workspaceColumns+` FROM workspaces WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ワークスペースの取得に失敗しました: %w", err)
	}
	return ws, nil
}

// FindByTeamID は外部テナントIDでワークスペースを検索する。見つからない場合はnilを返す。
func (r *PostgresWorkspaceRepo) FindByTeamID(ctx context.Context, teamID string) (*model.Workspace, error) {
	ws, err := scanWorkspace(r.db.QueryRowContext(ctx,
		`SELECT `+workspaceColumns+` FROM workspaces WHERE team_id = $1`, teamID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("テナントIDによるワークスペースの検索に失敗しました: %w", err)
	}
	return ws, nil
}

// Upsert はワークスペースを作成または更新する。
// team_idの一意制約でON CONFLICTし、再インストール時はトークン類を更新する。
func (r *PostgresWorkspaceRepo) Upsert(ctx context.Context, ws *model.Workspace) (*model.Workspace, error) {
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO workspaces (id, team_id, team_name, bot_token, bot_user_id, refresh_token, token_expires_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, now(), now())
		 ON CONFLICT (team_id) DO UPDATE SET
		   team_name = EXCLUDED.team_name,
		   bot_token = EXCLUDED.bot_token,
		   bot_user_id = EXCLUDED.bot_user_id,
		   refresh_token = EXCLUDED.refresh_token,
		   token_expires_at = EXCLUDED.token_expires_at,
		   updated_at = now()
		 RETURNING `+workspaceColumns,
		ws.ID, ws.TeamID, ws.TeamName, ws.BotToken, ws.BotUserID, ws.RefreshToken, ws.TokenExpiresAt,
	)
	saved, err := scanWorkspace(row)
	if err != nil {
		return nil, fmt.Errorf("ワークスペースのupsertに失敗しました: %w", err)
	}
	return saved, nil
}

// ListAll は全ワークスペースを返す。リマインダースイープで使用する。
func (r *PostgresWorkspaceRepo) ListAll(ctx context.Context) ([]*model.Workspace, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+workspaceColumns+` FROM workspaces ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("ワークスペース一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var workspaces []*model.Workspace
	for rows.Next() {
		ws, err := scanWorkspace(rows)
		if err != nil {
			return nil, fmt.Errorf("ワークスペース行の読み取りに失敗しました: %w", err)
		}
		workspaces = append(workspaces, ws)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ワークスペース一覧の走査に失敗しました: %w", err)
	}
	return workspaces, nil
}

// DeleteByTeamID はアンインストール時にワークスペースを削除する。
// 配下のレコードはCASCADE削除される。
func (r *PostgresWorkspaceRepo) DeleteByTeamID(ctx context.Context, teamID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM workspaces WHERE team_id = $1`, teamID)
	if err != nil {
		return fmt.Errorf("ワークスペースの削除に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ WorkspaceRepository = (*PostgresWorkspaceRepo)(nil)
