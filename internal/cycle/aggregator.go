// Package cycle はレビューサイクルの完了集約ロジックを提供する。
// 参加者の状態からサイクルの状態を導出し、完了遷移とその副作用を所有する。
package cycle

import (
	"context"
	"log/slog"

	"github.com/KlepaczKotletow/Performance-Review/internal/model"
	"github.com/KlepaczKotletow/Performance-Review/internal/repository"
)

// PlaceholderSummary はサマリー生成サービスが利用できない場合の代替文。
// サマリー生成の失敗はサイクルの完了を妨げない。
const PlaceholderSummary = "Summary generation was unavailable for this cycle."

// SummaryGenerator はサイクル完了時のサマリー生成インターフェース。
// ベストエフォートであり、未設定・一時障害時はエラーを返してよい。
type SummaryGenerator interface {
	Generate(ctx context.Context, cycleID string) (string, error)
}

// CompletionNotifier はサイクル完了通知の送信インターフェース。
// 1受信者あたり1回呼び出される。宛先ごとの文言は実装側が持つ。
type CompletionNotifier interface {
	NotifyCycleCompleted(ctx context.Context, cycle *model.ReviewCycle, recipientID string) error
}

// MetricsRecorder は完了遷移まわりのメトリクス記録インターフェース。
type MetricsRecorder interface {
	RecordCycleCompleted()
	RecordSummaryFallback()
	RecordNotificationSent()
	RecordNotificationFailure()
}

// Aggregator は参加者の完了状態からサイクルの完了を導出する。
// 完了遷移はDB上のcompare-and-setで行い、複数の参加者が同時に完了しても
// サマリー生成と完了通知が最大1回しか実行されないことを保証する。
type Aggregator struct {
	cycleRepo  repository.CycleRepository
	partRepo   repository.ParticipantRepository
	summarizer SummaryGenerator
	notifier   CompletionNotifier
	metrics    MetricsRecorder
	logger     *slog.Logger
}

// NewAggregator はAggregatorの新しいインスタンスを生成する。
func NewAggregator(
	cycleRepo repository.CycleRepository,
	partRepo repository.ParticipantRepository,
	summarizer SummaryGenerator,
	notifier CompletionNotifier,
	metrics MetricsRecorder,
	logger *slog.Logger,
) *Aggregator {
	return &Aggregator{
		cycleRepo:  cycleRepo,
		partRepo:   partRepo,
		summarizer: summarizer,
		notifier:   notifier,
		metrics:    metrics,
		logger:     logger,
	}
}

// IsCycleComplete はサイクルの全参加者が完了しているかを返す。
// 参加者が1人も存在しないサイクルは決して完了とみなさない
// （レビュアー不在の退行サイクルを完了させないためのガード）。
func (a *Aggregator) IsCycleComplete(ctx context.Context, cycleID string) (bool, error) {
	participants, err := a.partRepo.ListByCycle(ctx, cycleID)
	if err != nil {
		return false, err
	}
	if len(participants) == 0 {
		return false, nil
	}
	for _, p := range participants {
		if p.Status != model.ParticipantStatusCompleted {
			return false, nil
		}
	}
	return true, nil
}

// CompleteCycle はサイクルをcompletedへ遷移し、完了時刻とサマリーを記録する。
// すでに完了している場合はALREADY_COMPLETEDを返し、副作用は発生しない。
func (a *Aggregator) CompleteCycle(ctx context.Context, cycleID, summary string) (*model.ReviewCycle, error) {
	won, err := a.cycleRepo.CompleteIfNotCompleted(ctx, cycleID, summary)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, model.NewAlreadyCompletedError(cycleID)
	}

	cycle, err := a.cycleRepo.FindByID(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	if cycle == nil {
		return nil, model.NewCycleNotFoundError(cycleID)
	}
	return cycle, nil
}

// OnParticipantCompleted は参加者の完了イベントを処理する。
// 全参加者が完了していればサマリーを生成（失敗時はプレースホルダーに
// フォールバック）してサイクルを完了し、対象者とマネージャーに完了通知を送る。
// 完了遷移のcompare-and-setに負けた呼び出しは副作用を一切実行しない。
func (a *Aggregator) OnParticipantCompleted(ctx context.Context, cycleID string) error {
	complete, err := a.IsCycleComplete(ctx, cycleID)
	if err != nil {
		return err
	}
	if !complete {
		return nil
	}

	// サマリー生成はベストエフォート。失敗や未設定で完了をブロックしない。
	summary, err := a.summarizer.Generate(ctx, cycleID)
	if err != nil || summary == "" {
		if err != nil {
			a.logger.Warn("サマリー生成に失敗したためプレースホルダーで完了します",
				slog.String("cycle_id", cycleID),
				slog.String("error", err.Error()),
			)
		}
		summary = PlaceholderSummary
		a.metrics.RecordSummaryFallback()
	}

	won, err := a.cycleRepo.CompleteIfNotCompleted(ctx, cycleID, summary)
	if err != nil {
		return err
	}
	if !won {
		// 並行する別の提出が先に完了させた。副作用は勝者だけが実行する。
		return nil
	}

	a.metrics.RecordCycleCompleted()
	a.logger.Info("レビューサイクルが完了しました",
		slog.String("cycle_id", cycleID),
	)

	cycle, err := a.cycleRepo.FindByID(ctx, cycleID)
	if err != nil {
		return err
	}
	if cycle == nil {
		return model.NewCycleNotFoundError(cycleID)
	}

	a.notifyCompletion(ctx, cycle)
	return nil
}

// notifyCompletion は対象者とマネージャー（ピアは含まない）に完了通知を送る。
// 1受信者への送信失敗はログに記録して残りの受信者への送信を継続する。
func (a *Aggregator) notifyCompletion(ctx context.Context, cycle *model.ReviewCycle) {
	recipients := []string{cycle.SubjectID}
	if cycle.ManagerID != "" && cycle.ManagerID != cycle.SubjectID {
		recipients = append(recipients, cycle.ManagerID)
	}

	for _, recipientID := range recipients {
		if err := a.notifier.NotifyCycleCompleted(ctx, cycle, recipientID); err != nil {
			a.metrics.RecordNotificationFailure()
			a.logger.Error("完了通知の送信に失敗しました",
				slog.String("cycle_id", cycle.ID),
				slog.String("recipient_id", recipientID),
				slog.String("error", err.Error()),
			)
			continue
		}
		a.metrics.RecordNotificationSent()
	}
}
