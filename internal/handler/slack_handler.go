// Package handler はチャットプラットフォームからの受信エンドポイントのHTTPハンドラーを提供する。
// スラッシュコマンド、インタラクション、イベントの3エンドポイントと、
// ヘルスチェックを含む。
package handler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/KlepaczKotletow/Performance-Review/internal/chatops"
	"github.com/KlepaczKotletow/Performance-Review/internal/model"
	"github.com/KlepaczKotletow/Performance-Review/internal/notify"
	"github.com/KlepaczKotletow/Performance-Review/internal/participant"
	"github.com/KlepaczKotletow/Performance-Review/internal/repository"
	"github.com/KlepaczKotletow/Performance-Review/internal/review"
)

// asyncTimeout はコマンド応答後のバックグラウンド処理の制限時間。
const asyncTimeout = 30 * time.Second

// ReviewServiceInterface はレビューサイクル操作のサービスインターフェース。
type ReviewServiceInterface interface {
	// InitiateCycle はレビューサイクルを参加者集合とともに作成する。
	InitiateCycle(ctx context.Context, params review.InitiateCycleParams) (*review.CycleAggregate, error)
	// SubmitParticipantFeedback は参加者の回答提出を処理する。
	SubmitParticipantFeedback(ctx context.Context, participantID string, answers []participant.Answer) (*review.SubmissionResult, error)
	// CheckCycleCompletion はサイクルの完了判定を実行する。応答後に呼び出す。
	CheckCycleCompletion(ctx context.Context, cycleID string) error
	// ListPendingReviews はレビュアーの未対応レビュー一覧を返す。
	ListPendingReviews(ctx context.Context, workspaceID, reviewerID string) ([]review.PendingReview, error)
}

// FeedbackServiceInterface は継続的フィードバックのサービスインターフェース。
type FeedbackServiceInterface interface {
	Send(ctx context.Context, workspaceID, fromPersonID, toPersonID, message string, kind model.FeedbackKind, anonymous bool) (*model.ContinuousFeedback, error)
}

// ParticipantMarker は参加者ステータス遷移のインターフェース。
// 「レビューを開始」ボタン押下時のin_progress遷移で使用する。
type ParticipantMarker interface {
	MarkStatus(ctx context.Context, participantID string, status model.ParticipantStatus) (*model.Participant, error)
}

// TemplateResolverInterface はサイクルのテンプレート解決インターフェース。
// モーダルの設問構築で使用する。
type TemplateResolverInterface interface {
	ResolveForCycle(ctx context.Context, cycle *model.ReviewCycle) (*model.Template, error)
}

// NotifySender は通知送信のインターフェース。
type NotifySender interface {
	SendReviewRequest(ctx context.Context, cycle *model.ReviewCycle, p *model.Participant) error
	SendFeedbackReceived(ctx context.Context, fb *model.ContinuousFeedback) error
	SendSubmissionThanks(ctx context.Context, workspaceID, reviewerID string) error
}

// ViewClient はモーダル表示・応答送信のWeb APIインターフェース。
type ViewClient interface {
	OpenView(ctx context.Context, token, teamID, triggerID string, view *notify.View) error
	PublishView(ctx context.Context, token, teamID, userID string, view *notify.View) error
	PostToResponseURL(ctx context.Context, responseURL string, msg *notify.ResponseMessage) error
}

// SlackHandler は受信エンドポイントのHTTPハンドラー。
type SlackHandler struct {
	reviews     ReviewServiceInterface
	feedbacks   FeedbackServiceInterface
	marker      ParticipantMarker
	templates   TemplateResolverInterface
	notifier    NotifySender
	client      ViewClient
	workspaces  repository.WorkspaceRepository
	persons     repository.PersonRepository
	cycles      repository.CycleRepository
	parts       repository.ParticipantRepository
	stateTokens *chatops.StateTokens
	logger      *slog.Logger

	// async はコマンド応答後の処理のディスパッチ関数。テスト用に差し替え可能。
	async func(fn func())
}

// NewSlackHandler はSlackHandlerを生成する。
func NewSlackHandler(
	reviews ReviewServiceInterface,
	feedbacks FeedbackServiceInterface,
	marker ParticipantMarker,
	templates TemplateResolverInterface,
	notifier NotifySender,
	client ViewClient,
	workspaces repository.WorkspaceRepository,
	persons repository.PersonRepository,
	cycles repository.CycleRepository,
	parts repository.ParticipantRepository,
	stateTokens *chatops.StateTokens,
	logger *slog.Logger,
) *SlackHandler {
	return &SlackHandler{
		reviews:     reviews,
		feedbacks:   feedbacks,
		marker:      marker,
		templates:   templates,
		notifier:    notifier,
		client:      client,
		workspaces:  workspaces,
		persons:     persons,
		cycles:      cycles,
		parts:       parts,
		stateTokens: stateTokens,
		logger:      logger,
		async:       func(fn func()) { go fn() },
	}
}

// resolvePerson は外部ユーザーIDをPersonに解決する。未登録の場合は遅延作成する。
func (h *SlackHandler) resolvePerson(ctx context.Context, workspaceID, slackUserID, name string) (*model.Person, error) {
	return h.persons.GetOrCreate(ctx, &model.Person{
		WorkspaceID: workspaceID,
		SlackUserID: slackUserID,
		Name:        name,
	})
}

// backgroundContext は応答送信後の処理用に、リクエストのキャンセルから
// 切り離したコンテキストを生成する。
func backgroundContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), asyncTimeout)
}

// apiErrorMessage はAPIErrorをユーザー向けの応答文言に変換する。
// APIError以外のエラーは詳細を出さず一般的な文言を返す。
func apiErrorMessage(err error) string {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message + " " + apiErr.Action
	}
	return "処理中にエラーが発生しました。しばらく待ってから再度お試しください。"
}
