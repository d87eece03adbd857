package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/KlepaczKotletow/Performance-Review/internal/model"
)

// PostgresFeedbackResponseRepo はPostgreSQLを使用した設問回答リポジトリ。
type PostgresFeedbackResponseRepo struct {
	db *sql.DB
}

// NewPostgresFeedbackResponseRepo はPostgresFeedbackResponseRepoを生成する。
func NewPostgresFeedbackResponseRepo(db *sql.DB) *PostgresFeedbackResponseRepo {
	return &PostgresFeedbackResponseRepo{db: db}
}

// Upsert は(participant_id, question_id)をキーに回答を作成または上書きする。
// 一意制約によるON CONFLICTで、再提出は最新の回答で既存行を更新する。
func (r *PostgresFeedbackResponseRepo) Upsert(ctx context.Context, resp *model.FeedbackResponse) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO feedback_responses (id, participant_id, cycle_id, question_id, question_text, response, rating, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		 ON CONFLICT (participant_id, question_id) DO UPDATE SET
		   question_text = EXCLUDED.question_text,
		   response = EXCLUDED.response,
		   rating = EXCLUDED.rating,
		   updated_at = now()`,
		resp.ID, resp.ParticipantID, resp.CycleID, resp.QuestionID,
		resp.QuestionText, resp.Response, resp.Rating,
	)
	if err != nil {
		return fmt.Errorf("回答のupsertに失敗しました: %w", err)
	}
	return nil
}

// ListByCycle はサイクルの全回答を参加者の作成順・設問順で返す。
func (r *PostgresFeedbackResponseRepo) ListByCycle(ctx context.Context, cycleID string) ([]*model.FeedbackResponse, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, participant_id, cycle_id, question_id, question_text, response, rating, created_at, updated_at
		 FROM feedback_responses
		 WHERE cycle_id = $1
		 ORDER BY question_id ASC, created_at ASC`, cycleID)
	if err != nil {
		return nil, fmt.Errorf("回答一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var responses []*model.FeedbackResponse
	for rows.Next() {
		resp := &model.FeedbackResponse{}
		var rating sql.NullInt64
		if err := rows.Scan(&resp.ID, &resp.ParticipantID, &resp.CycleID, &resp.QuestionID,
			&resp.QuestionText, &resp.Response, &rating, &resp.CreatedAt, &resp.UpdatedAt); err != nil {
			return nil, fmt.Errorf("回答行の読み取りに失敗しました: %w", err)
		}
		if rating.Valid {
			v := int(rating.Int64)
			resp.Rating = &v
		}
		responses = append(responses, resp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("回答一覧の走査に失敗しました: %w", err)
	}
	return responses, nil
}

// compile-time interface check
var _ FeedbackResponseRepository = (*PostgresFeedbackResponseRepo)(nil)

// PostgresContinuousFeedbackRepo はPostgreSQLを使用した継続的フィードバックリポジトリ。
type PostgresContinuousFeedbackRepo struct {
	db *sql.DB
}

// NewPostgresContinuousFeedbackRepo はPostgresContinuousFeedbackRepoを生成する。
func NewPostgresContinuousFeedbackRepo(db *sql.DB) *PostgresContinuousFeedbackRepo {
	return &PostgresContinuousFeedbackRepo{db: db}
}

// Create は継続的フィードバックを保存する。
// 匿名の場合はfrom_person_idをNULLで書き込み、送信者を後から復元できなくする。
func (r *PostgresContinuousFeedbackRepo) Create(ctx context.Context, fb *model.ContinuousFeedback) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO continuous_feedback (id, workspace_id, from_person_id, to_person_id, message, kind, anonymous, created_at)
		 VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, now())`,
		fb.ID, fb.WorkspaceID, fb.FromPersonID, fb.ToPersonID, fb.Message, fb.Kind, fb.Anonymous,
	)
	if err != nil {
		return fmt.Errorf("継続的フィードバックの保存に失敗しました: %w", err)
	}
	return nil
}

// ListByRecipient は受信者宛のフィードバック一覧を新しい順で返す。
func (r *PostgresContinuousFeedbackRepo) ListByRecipient(ctx context.Context, workspaceID, toPersonID string) ([]*model.ContinuousFeedback, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, workspace_id, from_person_id, to_person_id, message, kind, anonymous, created_at
		 FROM continuous_feedback
		 WHERE workspace_id = $1 AND to_person_id = $2
		 ORDER BY created_at DESC`, workspaceID, toPersonID)
	if err != nil {
		return nil, fmt.Errorf("継続的フィードバック一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var feedbacks []*model.ContinuousFeedback
	for rows.Next() {
		fb := &model.ContinuousFeedback{}
		var from sql.NullString
		if err := rows.Scan(&fb.ID, &fb.WorkspaceID, &from, &fb.ToPersonID,
			&fb.Message, &fb.Kind, &fb.Anonymous, &fb.CreatedAt); err != nil {
			return nil, fmt.Errorf("継続的フィードバック行の読み取りに失敗しました: %w", err)
		}
		fb.FromPersonID = from.String
		feedbacks = append(feedbacks, fb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("継続的フィードバック一覧の走査に失敗しました: %w", err)
	}
	return feedbacks, nil
}

// compile-time interface check
var _ ContinuousFeedbackRepository = (*PostgresContinuousFeedbackRepo)(nil)
