// Package feedback はサイクル非依存の継続的フィードバックを提供する。
// レビューサイクルの状態機械には関与しない。
package feedback

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/KlepaczKotletow/Performance-Review/internal/model"
	"github.com/KlepaczKotletow/Performance-Review/internal/repository"
)

// TextSanitizer は保存前の自由記述テキストのサニタイズインターフェース。
type TextSanitizer interface {
	Sanitize(raw string) string
}

// Service は継続的フィードバックのサービス層。
type Service struct {
	fbRepo    repository.ContinuousFeedbackRepository
	sanitizer TextSanitizer
	logger    *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(fbRepo repository.ContinuousFeedbackRepository, sanitizer TextSanitizer, logger *slog.Logger) *Service {
	return &Service{fbRepo: fbRepo, sanitizer: sanitizer, logger: logger}
}

// Send は継続的フィードバックを保存して返す。
// 匿名の場合は送信者IDを書き込み時点で破棄し、保存後に復元できなくする。
// 空メッセージは拒否する。
func (s *Service) Send(ctx context.Context, workspaceID, fromPersonID, toPersonID, message string, kind model.FeedbackKind, anonymous bool) (*model.ContinuousFeedback, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, fmt.Errorf("フィードバックメッセージが空です")
	}
	if s.sanitizer != nil {
		message = s.sanitizer.Sanitize(message)
	}

	if anonymous {
		fromPersonID = ""
	}

	fb := &model.ContinuousFeedback{
		ID:           uuid.NewString(),
		WorkspaceID:  workspaceID,
		FromPersonID: fromPersonID,
		ToPersonID:   toPersonID,
		Message:      message,
		Kind:         kind,
		Anonymous:    anonymous,
	}
	if err := s.fbRepo.Create(ctx, fb); err != nil {
		return nil, err
	}

	s.logger.Info("継続的フィードバックを保存しました",
		slog.String("workspace_id", workspaceID),
		slog.String("to_person_id", toPersonID),
		slog.String("kind", string(kind)),
		slog.Bool("anonymous", anonymous),
	)

	return fb, nil
}

// ListReceived は受信者宛のフィードバック一覧を新しい順で返す。
func (s *Service) ListReceived(ctx context.Context, workspaceID, toPersonID string) ([]*model.ContinuousFeedback, error) {
	return s.fbRepo.ListByRecipient(ctx, workspaceID, toPersonID)
}
