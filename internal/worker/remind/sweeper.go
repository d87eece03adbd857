// Package remind は未回答参加者へのリマインダー送信処理を提供する。
// スケジューラとワークスペース単位のスイープ処理を含む。
package remind

import (
	"context"
	"log/slog"
	"time"

	"github.com/KlepaczKotletow/Performance-Review/internal/model"
	"github.com/KlepaczKotletow/Performance-Review/internal/repository"
)

// ReminderSender はリマインダー送信の実行インターフェース。
type ReminderSender interface {
	// SendReminder は未回答の参加者にリマインダーを送信する。
	SendReminder(ctx context.Context, cycle *model.ReviewCycle, participant *model.Participant) error
}

// MetricsRecorder はリマインダー処理のメトリクス記録インターフェース。
type MetricsRecorder interface {
	RecordReminderSent()
	RecordReminderFailure()
	ObserveSweepDuration(d time.Duration)
}

// Sweeper は1ワークスペース分のリマインダースイープを実行する。
// スロットル時間内に送信済みの参加者はリポジトリ側の抽出条件で除外され、
// 送信成功時にのみ送信時刻を更新することで再送間隔を保証する。
type Sweeper struct {
	partRepo  repository.ParticipantRepository
	cycleRepo repository.CycleRepository
	sender    ReminderSender
	metrics   MetricsRecorder
	logger    *slog.Logger
	throttle  time.Duration
	now       func() time.Time // テスト用に差し替え可能
}

// NewSweeper はSweeperの新しいインスタンスを生成する。
func NewSweeper(
	partRepo repository.ParticipantRepository,
	cycleRepo repository.CycleRepository,
	sender ReminderSender,
	metrics MetricsRecorder,
	logger *slog.Logger,
	throttle time.Duration,
) *Sweeper {
	return &Sweeper{
		partRepo:  partRepo,
		cycleRepo: cycleRepo,
		sender:    sender,
		metrics:   metrics,
		logger:    logger,
		throttle:  throttle,
		now:       time.Now,
	}
}

// SweepWorkspace は1ワークスペースの送信対象参加者にリマインダーを送信する。
// 個別の送信失敗はログとメトリクスに記録し、スイープ全体は継続する。
// 送信時刻の更新は送信成功時にのみ行う（失敗時は次回スイープで再試行される）。
func (s *Sweeper) SweepWorkspace(ctx context.Context, workspaceID string) error {
	now := s.now()
	cutoff := now.Add(-s.throttle)

	due, err := s.partRepo.ListDueForReminder(ctx, workspaceID, cutoff)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return nil
	}

	s.logger.Info("リマインダースイープを開始します",
		slog.String("workspace_id", workspaceID),
		slog.Int("participant_count", len(due)),
	)

	// 同一サイクルの参加者が複数いるため、サイクルはスイープ内でキャッシュする
	cycles := make(map[string]*model.ReviewCycle)

	for _, participant := range due {
		cycle, ok := cycles[participant.CycleID]
		if !ok {
			cycle, err = s.cycleRepo.FindByID(ctx, participant.CycleID)
			if err != nil {
				s.logger.Error("サイクルの取得に失敗しました",
					slog.String("cycle_id", participant.CycleID),
					slog.String("error", err.Error()),
				)
				s.metrics.RecordReminderFailure()
				continue
			}
			cycles[participant.CycleID] = cycle
		}

		if err := s.sender.SendReminder(ctx, cycle, participant); err != nil {
			s.logger.Error("リマインダーの送信に失敗しました",
				slog.String("participant_id", participant.ID),
				slog.String("cycle_id", cycle.ID),
				slog.String("error", err.Error()),
			)
			s.metrics.RecordReminderFailure()
			continue
		}

		if err := s.partRepo.TouchReminder(ctx, participant.ID, now); err != nil {
			s.logger.Error("リマインダー送信時刻の更新に失敗しました",
				slog.String("participant_id", participant.ID),
				slog.String("error", err.Error()),
			)
			s.metrics.RecordReminderFailure()
			continue
		}

		s.metrics.RecordReminderSent()
	}

	return nil
}
