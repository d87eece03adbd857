package remind

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/KlepaczKotletow/Performance-Review/internal/repository"
)

// WorkspaceSweeper はワークスペース単位のスイープ実行インターフェース。
type WorkspaceSweeper interface {
	SweepWorkspace(ctx context.Context, workspaceID string) error
}

// Scheduler はリマインダースイープのスケジューリングと並列制御を行う。
// 定期ティッカーで全ワークスペースを取得し、semaphoreパターンで
// 最大並列数を制御しながらワークスペース単位にスイープを実行する。
// 同一ワークスペース内の参加者は順次処理される（送信レート制御のため）。
type Scheduler struct {
	workspaceRepo  repository.WorkspaceRepository
	sweeper        WorkspaceSweeper
	metrics        MetricsRecorder
	logger         *slog.Logger
	maxConcurrency int
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値4を使用する。
func NewScheduler(
	workspaceRepo repository.WorkspaceRepository,
	sweeper WorkspaceSweeper,
	metrics MetricsRecorder,
	logger *slog.Logger,
	maxConcurrency int,
) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	return &Scheduler{
		workspaceRepo:  workspaceRepo,
		sweeper:        sweeper,
		metrics:        metrics,
		logger:         logger,
		maxConcurrency: maxConcurrency,
	}
}

// Start は定期ティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("リマインダースケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	// 起動直後に1回実行
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("リマインダースイープの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("リマインダースケジューラを停止しました")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("リマインダースイープの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は全ワークスペースを1回取得し、並列でスイープを実行する。
// semaphoreパターンで並列数を制御する。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()

	workspaces, err := s.workspaceRepo.ListAll(ctx)
	if err != nil {
		return err
	}

	if len(workspaces) == 0 {
		s.logger.Info("スイープ対象のワークスペースはありません")
		return nil
	}

	// semaphoreパターンで並列数を制御
	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for _, ws := range workspaces {
		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(workspaceID string) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			if err := s.sweeper.SweepWorkspace(ctx, workspaceID); err != nil {
				s.logger.Error("ワークスペースのスイープに失敗しました",
					slog.String("workspace_id", workspaceID),
					slog.String("error", err.Error()),
				)
			}
		}(ws.ID)
	}

	wg.Wait()

	duration := time.Since(start)
	s.metrics.ObserveSweepDuration(duration)
	s.logger.Info("リマインダースイープが完了しました",
		slog.Int("workspace_count", len(workspaces)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
