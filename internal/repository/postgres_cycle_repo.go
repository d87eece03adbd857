package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/KlepaczKotletow/Performance-Review/internal/model"
)

// PostgresCycleRepo はPostgreSQLを使用したレビューサイクルリポジトリ。
type PostgresCycleRepo struct {
	db *sql.DB
}

// NewPostgresCycleRepo はPostgresCycleRepoを生成する。
func NewPostgresCycleRepo(db *sql.DB) *PostgresCycleRepo {
	return &PostgresCycleRepo{db: db}
}

const cycleColumns = `id, workspace_id, subject_id, manager_id, template_id, due_date, created_by, status, summary, completed_at, created_at, updated_at`

// scanCycle は1行をReviewCycleに読み取る。
func scanCycle(row interface{ Scan(...any) error }) (*model.ReviewCycle, error) {
	c := &model.ReviewCycle{}
	var managerID, templateID, summary sql.NullString
	var dueDate, completedAt sql.NullTime
	err := row.Scan(&c.ID, &c.WorkspaceID, &c.SubjectID, &managerID, &templateID,
		&dueDate, &c.CreatedBy, &c.Status, &summary, &completedAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.ManagerID = managerID.String
	c.TemplateID = templateID.String
	c.Summary = summary.String
	if dueDate.Valid {
		t := dueDate.Time
		c.DueDate = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		c.CompletedAt = &t
	}
	return c, nil
}

// Create はレビューサイクルを作成する。
func (r *PostgresCycleRepo) Create(ctx context.Context, cycle *model.ReviewCycle) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO review_cycles (id, workspace_id, subject_id, manager_id, template_id, due_date, created_by, status, created_at, updated_at)
		 VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8, now(), now())`,
		cycle.ID, cycle.WorkspaceID, cycle.SubjectID, cycle.ManagerID, cycle.TemplateID,
		cycle.DueDate, cycle.CreatedBy, cycle.Status,
	)
	if err != nil {
		return fmt.Errorf("レビューサイクルの作成に失敗しました: %w", err)
	}
	return nil
}

// FindByID は指定IDのサイクルを取得する。見つからない場合はnilを返す。
func (r *PostgresCycleRepo) FindByID(ctx context.Context, id string) (*model.ReviewCycle, error) {
	c, err := scanCycle(r.db.QueryRowContext(ctx,
		`SELECT `+cycleColumns+` FROM review_cycles WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("レビューサイクルの取得に失敗しました: %w", err)
	}
	return c, nil
}

// MarkInProgress はstatus=pendingのサイクルをin_progressへ遷移する。
// 条件付きUPDATEのため、先行する遷移に負けても何もせず正常終了する。
func (r *PostgresCycleRepo) MarkInProgress(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE review_cycles SET status = $2, updated_at = now()
		 WHERE id = $1 AND status = $3`,
		id, model.CycleStatusInProgress, model.CycleStatusPending,
	)
	if err != nil {
		return fmt.Errorf("サイクルのin_progress遷移に失敗しました: %w", err)
	}
	return nil
}

// CompleteIfNotCompleted はstatus≠completedのサイクルをcompletedへ原子的に遷移する。
// compare-and-setにより、複数の参加者が同時に完了しても勝者は1つだけになる。
// 遷移が実際に行われた場合のみtrueを返す。
func (r *PostgresCycleRepo) CompleteIfNotCompleted(ctx context.Context, id, summary string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE review_cycles
		 SET status = $2, summary = $3, completed_at = now(), updated_at = now()
		 WHERE id = $1 AND status <> $2`,
		id, model.CycleStatusCompleted, summary,
	)
	if err != nil {
		return false, fmt.Errorf("サイクルの完了遷移に失敗しました: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("更新件数の取得に失敗しました: %w", err)
	}
	return affected == 1, nil
}

// ListByWorkspaceAndSubject は対象者のサイクル一覧を新しい順で返す。
func (r *PostgresCycleRepo) ListByWorkspaceAndSubject(ctx context.Context, workspaceID, subjectID string) ([]*model.ReviewCycle, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+cycleColumns+` FROM review_cycles
		 WHERE workspace_id = $1 AND subject_id = $2
		 ORDER BY created_at DESC`, workspaceID, subjectID)
	if err != nil {
		return nil, fmt.Errorf("レビューサイクル一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var cycles []*model.ReviewCycle
	for rows.Next() {
		c, err := scanCycle(rows)
		if err != nil {
			return nil, fmt.Errorf("レビューサイクル行の読み取りに失敗しました: %w", err)
		}
		cycles = append(cycles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("レビューサイクル一覧の走査に失敗しました: %w", err)
	}
	return cycles, nil
}

// compile-time interface check
var _ CycleRepository = (*PostgresCycleRepo)(nil)
