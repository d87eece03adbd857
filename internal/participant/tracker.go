// Package participant は参加者（1レビュアーの回答義務）の状態管理を提供する。
// ステータスの前方遷移規則と回答の冪等な記録を担う。
package participant

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/KlepaczKotletow/Performance-Review/internal/model"
	"github.com/KlepaczKotletow/Performance-Review/internal/repository"
)

// Answer は提出された1設問分の回答を表す。
type Answer struct {
	QuestionID string
	Text       string
	Rating     *int
}

// TextSanitizer は保存前の自由記述テキストのサニタイズインターフェース。
type TextSanitizer interface {
	Sanitize(raw string) string
}

// Tracker は参加者の回答記録とステータス遷移を管理する。
type Tracker struct {
	partRepo  repository.ParticipantRepository
	respRepo  repository.FeedbackResponseRepository
	sanitizer TextSanitizer
	logger    *slog.Logger

	// now はテストから時刻を差し替えるためのフック。
	now func() time.Time
}

// NewTracker はTrackerの新しいインスタンスを生成する。
func NewTracker(
	partRepo repository.ParticipantRepository,
	respRepo repository.FeedbackResponseRepository,
	sanitizer TextSanitizer,
	logger *slog.Logger,
) *Tracker {
	return &Tracker{
		partRepo:  partRepo,
		respRepo:  respRepo,
		sanitizer: sanitizer,
		logger:    logger,
		now:       time.Now,
	}
}

// RecordResponses は参加者の回答一式をテンプレートに対して検証し、
// (参加者, 設問) をキーに冪等に保存する。同じ設問への再提出は上書きになる。
// 必須設問に回答（テキストまたは評価）が無い場合は提出全体を
// REQUIRED_ANSWER_MISSINGで拒否し、何も保存しない。
// テンプレートに存在しない設問IDの回答は無視する。
func (t *Tracker) RecordResponses(ctx context.Context, participantID string, tmpl *model.Template, answers []Answer) error {
	p, err := t.partRepo.FindByID(ctx, participantID)
	if err != nil {
		return err
	}
	if p == nil {
		return model.NewParticipantNotFoundError(participantID)
	}

	byQuestion := make(map[string]Answer, len(answers))
	for _, a := range answers {
		byQuestion[a.QuestionID] = a
	}

	// 保存前に全必須設問を検証する。途中まで保存して失敗しないよう先に弾く。
	for _, q := range tmpl.Questions {
		if !q.Required {
			continue
		}
		a, ok := byQuestion[q.ID]
		if !ok || (strings.TrimSpace(a.Text) == "" && a.Rating == nil) {
			return model.NewRequiredAnswerMissingError(q.ID)
		}
	}

	for _, q := range tmpl.Questions {
		a, ok := byQuestion[q.ID]
		if !ok {
			continue
		}
		text := strings.TrimSpace(a.Text)
		if t.sanitizer != nil {
			text = t.sanitizer.Sanitize(text)
		}
		resp := &model.FeedbackResponse{
			ID:            uuid.NewString(),
			ParticipantID: p.ID,
			CycleID:       p.CycleID,
			QuestionID:    q.ID,
			QuestionText:  q.Prompt,
			Response:      text,
			Rating:        a.Rating,
		}
		if err := t.respRepo.Upsert(ctx, resp); err != nil {
			return err
		}
	}

	t.logger.Info("回答を記録しました",
		slog.String("participant_id", p.ID),
		slog.String("cycle_id", p.CycleID),
		slog.Int("answer_count", len(answers)),
	)

	return nil
}

// MarkStatus は参加者のステータスを遷移する。
// 前方遷移（pending→in_progress→completed、pending→completed）のみを許可し、
// 逆方向および同一ステータスへの遷移はINVALID_TRANSITIONで拒否する。
// completedへの遷移時は完了時刻を記録する。
func (t *Tracker) MarkStatus(ctx context.Context, participantID string, status model.ParticipantStatus) (*model.Participant, error) {
	p, err := t.partRepo.FindByID(ctx, participantID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, model.NewParticipantNotFoundError(participantID)
	}

	if !p.Status.CanTransitionTo(status) {
		return nil, model.NewInvalidTransitionError(p.Status, status)
	}

	var completedAt *time.Time
	if status == model.ParticipantStatusCompleted {
		now := t.now()
		completedAt = &now
	}

	if err := t.partRepo.UpdateStatus(ctx, participantID, status, completedAt); err != nil {
		return nil, err
	}

	p.Status = status
	p.CompletedAt = completedAt
	return p, nil
}

// TouchReminder は最終リマインダー送信時刻を現在時刻に更新する。
// ステータスは変更しない。
func (t *Tracker) TouchReminder(ctx context.Context, participantID string) error {
	return t.partRepo.TouchReminder(ctx, participantID, t.now())
}
