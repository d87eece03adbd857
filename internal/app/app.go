package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/KlepaczKotletow/Performance-Review/internal/chatops"
	"github.com/KlepaczKotletow/Performance-Review/internal/config"
	"github.com/KlepaczKotletow/Performance-Review/internal/cycle"
	"github.com/KlepaczKotletow/Performance-Review/internal/database"
	"github.com/KlepaczKotletow/Performance-Review/internal/feedback"
	"github.com/KlepaczKotletow/Performance-Review/internal/handler"
	"github.com/KlepaczKotletow/Performance-Review/internal/logger"
	"github.com/KlepaczKotletow/Performance-Review/internal/metrics"
	"github.com/KlepaczKotletow/Performance-Review/internal/middleware"
	"github.com/KlepaczKotletow/Performance-Review/internal/notify"
	"github.com/KlepaczKotletow/Performance-Review/internal/participant"
	"github.com/KlepaczKotletow/Performance-Review/internal/repository"
	"github.com/KlepaczKotletow/Performance-Review/internal/review"
	"github.com/KlepaczKotletow/Performance-Review/internal/security"
	"github.com/KlepaczKotletow/Performance-Review/internal/summary"
	"github.com/KlepaczKotletow/Performance-Review/internal/template"
	"github.com/KlepaczKotletow/Performance-Review/internal/worker/remind"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	wsRepo := repository.NewPostgresWorkspaceRepo(db)
	personRepo := repository.NewPostgresPersonRepo(db)
	templateRepo := repository.NewPostgresTemplateRepo(db)
	cycleRepo := repository.NewPostgresCycleRepo(db)
	partRepo := repository.NewPostgresParticipantRepo(db)
	respRepo := repository.NewPostgresFeedbackResponseRepo(db)
	cfbRepo := repository.NewPostgresContinuousFeedbackRepo(db)

	// 3. メトリクスとセキュリティサービスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewTextSanitizer()

	// 4. 通知クライアントの初期化
	notifyClient := notify.NewClient(
		&http.Client{Timeout: cfg.NotifyTimeout},
		ssrfGuard,
		slog.Default(),
		cfg.NotifyTimeout,
		cfg.NotifyRatePerSecond,
		cfg.NotifyMaxRespSize,
		notify.WithBaseURL(cfg.SlackAPIBaseURL),
	)
	notifier := notify.NewNotifier(notifyClient, wsRepo, personRepo, slog.Default())

	// 5. ドメインサービスの初期化
	templateService := template.NewService(templateRepo)
	tracker := participant.NewTracker(partRepo, respRepo, sanitizer, slog.Default())

	summaryClient := summary.NewClient(
		&http.Client{Timeout: cfg.SummaryTimeout},
		respRepo,
		slog.Default(),
		cfg.SummaryAPIKey, cfg.SummaryBaseURL, cfg.SummaryModel,
	)

	aggregator := cycle.NewAggregator(cycleRepo, partRepo, summaryClient, notifier, collector, slog.Default())
	reviewService := review.NewService(cycleRepo, partRepo, templateService, tracker, aggregator, slog.Default())
	feedbackService := feedback.NewService(cfbRepo, sanitizer, slog.Default())

	// 6. 受信エンドポイントハンドラーの構築
	slackHandler := handler.NewSlackHandler(
		reviewService, feedbackService, tracker, templateService,
		notifier, notifyClient,
		wsRepo, personRepo, cycleRepo, partRepo,
		chatops.NewStateTokens(cfg.StateTokenSecret),
		slog.Default(),
	)

	// 7. ルーターの構築
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	// RATE_LIMIT_GENERALはreq/min単位なのでreq/secに変換する
	rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		SignatureVerifier: chatops.NewSignatureVerifier(cfg.SlackSigningSecret),
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),
		Metrics:           collector,

		SlackHandler: slackHandler,

		HealthChecker:   db,
		MetricsGatherer: registry,
	})

	// 8. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はリマインダーワーカーモードで起動する。
// DB接続を開き、リマインダースケジューラを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. リポジトリの初期化
	wsRepo := repository.NewPostgresWorkspaceRepo(db)
	personRepo := repository.NewPostgresPersonRepo(db)
	cycleRepo := repository.NewPostgresCycleRepo(db)
	partRepo := repository.NewPostgresParticipantRepo(db)

	// 3. メトリクスと通知クライアントの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	ssrfGuard := security.NewSSRFGuard()
	notifyClient := notify.NewClient(
		&http.Client{Timeout: cfg.NotifyTimeout},
		ssrfGuard,
		slog.Default(),
		cfg.NotifyTimeout,
		cfg.NotifyRatePerSecond,
		cfg.NotifyMaxRespSize,
		notify.WithBaseURL(cfg.SlackAPIBaseURL),
	)
	notifier := notify.NewNotifier(notifyClient, wsRepo, personRepo, slog.Default())

	// 4. スイーパーとスケジューラの初期化
	sweeper := remind.NewSweeper(partRepo, cycleRepo, notifier, collector, slog.Default(), cfg.ReminderThrottle)
	scheduler := remind.NewScheduler(wsRepo, sweeper, collector, slog.Default(), cfg.SweepMaxConcurrent)

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("reminder_interval", cfg.ReminderInterval),
		slog.Duration("reminder_throttle", cfg.ReminderThrottle),
		slog.Int("max_concurrent", cfg.SweepMaxConcurrent),
	)

	// スケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx, cfg.ReminderInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
