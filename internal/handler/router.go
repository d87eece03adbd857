package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/KlepaczKotletow/Performance-Review/internal/metrics"
	"github.com/KlepaczKotletow/Performance-Review/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SignatureVerifier middleware.SignatureVerifier
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger
	Metrics           middleware.StatusRecorder

	// 受信エンドポイント
	SlackHandler *SlackHandler

	// 運用エンドポイント
	HealthChecker   HealthChecker
	MetricsGatherer prometheus.Gatherer
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → (受信ルートのみ) Signature → RateLimit
//
// 署名検証はレート制限より先に行う。未署名のリクエストに
// ワークスペース単位の制限枠を消費させないため。
// /health と /metrics は署名検証の外に置く。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.Metrics))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	// --- 運用ルート ---
	healthHandler := NewHealthHandler(deps.HealthChecker)
	r.Get("/health", healthHandler.Health)
	if deps.MetricsGatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	// --- 受信ルート（署名検証必須） ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSignatureMiddleware(deps.SignatureVerifier, deps.Logger))
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Middleware())
		}

		r.Post("/slack/commands", deps.SlackHandler.HandleCommand)
		r.Post("/slack/interactions", deps.SlackHandler.HandleInteraction)
		r.Post("/slack/events", deps.SlackHandler.HandleEvent)
	})

	return r
}
