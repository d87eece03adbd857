package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/KlepaczKotletow/Performance-Review/internal/model"
)

// PostgresParticipantRepo はPostgreSQLを使用した参加者リポジトリ。
type PostgresParticipantRepo struct {
	db *sql.DB
}

// NewPostgresParticipantRepo はPostgresParticipantRepoを生成する。
func NewPostgresParticipantRepo(db *sql.DB) *PostgresParticipantRepo {
	return &PostgresParticipantRepo{db: db}
}

const participantColumns = `id, cycle_id, reviewer_id, role, status, completed_at, reminder_sent_at, created_at, updated_at`

// scanParticipant は1行をParticipantに読み取る。
func scanParticipant(row interface{ Scan(...any) error }) (*model.Participant, error) {
	p := &model.Participant{}
	var completedAt, reminderSentAt sql.NullTime
	err := row.Scan(&p.ID, &p.CycleID, &p.ReviewerID, &p.Role, &p.Status,
		&completedAt, &reminderSentAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t := completedAt.Time
		p.CompletedAt = &t
	}
	if reminderSentAt.Valid {
		t := reminderSentAt.Time
		p.ReminderSentAt = &t
	}
	return p, nil
}

// Create は参加者を作成する。
func (r *PostgresParticipantRepo) Create(ctx context.Context, p *model.Participant) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO participants (id, cycle_id, reviewer_id, role, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, now(), now())`,
		p.ID, p.CycleID, p.ReviewerID, p.Role, p.Status,
	)
	if err != nil {
		return fmt.Errorf("参加者の作成に失敗しました: %w", err)
	}
	return nil
}

// FindByID は指定IDの参加者を取得する。見つからない場合はnilを返す。
func (r *PostgresParticipantRepo) FindByID(ctx context.Context, id string) (*model.Participant, error) {
	p, err := scanParticipant(r.db.QueryRowContext(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("参加者の取得に失敗しました: %w", err)
	}
	return p, nil
}

// FindByCycleAndReviewer は(cycle_id, reviewer_id)で参加者を検索する。
// 見つからない場合はnilを返す。
func (r *PostgresParticipantRepo) FindByCycleAndReviewer(ctx context.Context, cycleID, reviewerID string) (*model.Participant, error) {
	p, err := scanParticipant(r.db.QueryRowContext(ctx,
		`SELECT `+participantColumns+` FROM participants
		 WHERE cycle_id = $1 AND reviewer_id = $2`, cycleID, reviewerID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("サイクルとレビュアーによる参加者の検索に失敗しました: %w", err)
	}
	return p, nil
}

// ListByCycle はサイクルの参加者一覧を返す。
func (r *PostgresParticipantRepo) ListByCycle(ctx context.Context, cycleID string) ([]*model.Participant, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+participantColumns+` FROM participants
		 WHERE cycle_id = $1 ORDER BY created_at ASC`, cycleID)
	if err != nil {
		return nil, fmt.Errorf("参加者一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()
	return collectParticipants(rows)
}

// UpdateStatus は参加者のステータスを更新する。
// completedAtが非nilの場合はcompleted_atも同時に設定する。
func (r *PostgresParticipantRepo) UpdateStatus(ctx context.Context, id string, status model.ParticipantStatus, completedAt *time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE participants
		 SET status = $2, completed_at = COALESCE($3, completed_at), updated_at = now()
		 WHERE id = $1`,
		id, status, completedAt,
	)
	if err != nil {
		return fmt.Errorf("参加者ステータスの更新に失敗しました: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新件数の取得に失敗しました: %w", err)
	}
	if affected == 0 {
		return model.NewParticipantNotFoundError(id)
	}
	return nil
}

// TouchReminder はreminder_sent_atを指定時刻に更新する。ステータスは変更しない。
func (r *PostgresParticipantRepo) TouchReminder(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE participants SET reminder_sent_at = $2, updated_at = now() WHERE id = $1`,
		id, at,
	)
	if err != nil {
		return fmt.Errorf("リマインダー送信時刻の更新に失敗しました: %w", err)
	}
	return nil
}

// ListDueForReminder はリマインド対象の参加者を返す。
// status=pending かつ 最終リマインダーがcutoffより古い（または未送信）参加者を、
// 指定ワークスペースの未完了サイクルに限定して取得する。
func (r *PostgresParticipantRepo) ListDueForReminder(ctx context.Context, workspaceID string, cutoff time.Time) ([]*model.Participant, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT p.id, p.cycle_id, p.reviewer_id, p.role, p.status, p.completed_at, p.reminder_sent_at, p.created_at, p.updated_at
		 FROM participants p
		 JOIN review_cycles c ON c.id = p.cycle_id
		 WHERE c.workspace_id = $1
		   AND c.status <> $2
		   AND p.status = $3
		   AND (p.reminder_sent_at IS NULL OR p.reminder_sent_at < $4)
		 ORDER BY p.created_at ASC`,
		workspaceID, model.CycleStatusCompleted, model.ParticipantStatusPending, cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("リマインド対象参加者の取得に失敗しました: %w", err)
	}
	defer rows.Close()
	return collectParticipants(rows)
}

// ListPendingByReviewer はレビュアーの未完了の回答義務一覧を返す。
func (r *PostgresParticipantRepo) ListPendingByReviewer(ctx context.Context, workspaceID, reviewerID string) ([]*model.Participant, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT p.id, p.cycle_id, p.reviewer_id, p.role, p.status, p.completed_at, p.reminder_sent_at, p.created_at, p.updated_at
		 FROM participants p
		 JOIN review_cycles c ON c.id = p.cycle_id
		 WHERE c.workspace_id = $1
		   AND p.reviewer_id = $2
		   AND p.status <> $3
		 ORDER BY p.created_at ASC`,
		workspaceID, reviewerID, model.ParticipantStatusCompleted,
	)
	if err != nil {
		return nil, fmt.Errorf("未完了参加者一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()
	return collectParticipants(rows)
}

// collectParticipants は結果行をParticipantのスライスに読み取る。
func collectParticipants(rows *sql.Rows) ([]*model.Participant, error) {
	var participants []*model.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("参加者行の読み取りに失敗しました: %w", err)
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("参加者一覧の走査に失敗しました: %w", err)
	}
	return participants, nil
}

// compile-time interface check
var _ ParticipantRepository = (*PostgresParticipantRepo)(nil)
