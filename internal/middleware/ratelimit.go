package middleware

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralRate     rate.Limit    // 受信リクエスト全般のレート（req/sec）。120/60 = 2 req/sec
	GeneralBurst    int           // バーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// 受信リクエスト全般 120 req/min/workspace。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(120.0 / 60.0), // 2 req/sec
		GeneralBurst:    120,
		CleanupInterval: 5 * time.Minute,
	}
}

// teamLimiter はワークスペースごとのレートリミッターとアクセス時刻を保持する。
type teamLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter はワークスペース（チームID）ごとのレート制限を管理する。
type RateLimiter struct {
	config RateLimiterConfig

	mu       sync.RWMutex
	limiters map[string]*teamLimiter

	stopCh chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config:   config,
		limiters: make(map[string]*teamLimiter),
		stopCh:   make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
}

// Middleware はワークスペース単位のレート制限ミドルウェアを返す。
// チームIDは署名検証済みボディから抽出する（SignatureMiddlewareの後に配置）。
// チームIDが特定できないリクエストは共通キーで制限される。
func (rl *RateLimiter) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			teamID := extractTeamID(r)
			limiter := rl.getOrCreateLimiter(teamID)

			if !limiter.Allow() {
				writeRateLimitResponse(w, rl.config.GeneralRate)
				slog.Warn("rate limit exceeded",
					slog.String("team_id", teamID),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// LimiterCount は現在管理されているリミッターのエントリ数を返す。
// テストおよびメトリクス用。
func (rl *RateLimiter) LimiterCount() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return len(rl.limiters)
}

// extractTeamID は検証済みボディからワークスペースのチームIDを取り出す。
// フォームボディはteam_idフィールドまたはpayload内JSONのteam.id、
// JSONボディはteam_idフィールドを参照する。
func extractTeamID(r *http.Request) string {
	body, ok := RawBodyFromContext(r.Context())
	if !ok || len(body) == 0 {
		return "unknown"
	}

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/json") {
		var payload struct {
			TeamID string `json:"team_id"`
		}
		if err := json.Unmarshal(body, &payload); err == nil && payload.TeamID != "" {
			return payload.TeamID
		}
		return "unknown"
	}

	values, err := url.ParseQuery(string(body))
	if err != nil {
		return "unknown"
	}
	if teamID := values.Get("team_id"); teamID != "" {
		return teamID
	}
	if raw := values.Get("payload"); raw != "" {
		var payload struct {
			Team struct {
				ID string `json:"id"`
			} `json:"team"`
		}
		if err := json.Unmarshal([]byte(raw), &payload); err == nil && payload.Team.ID != "" {
			return payload.Team.ID
		}
	}
	return "unknown"
}

// getOrCreateLimiter はワークスペースのリミッターを取得または作成する。
func (rl *RateLimiter) getOrCreateLimiter(teamID string) *rate.Limiter {
	rl.mu.RLock()
	tl, exists := rl.limiters[teamID]
	rl.mu.RUnlock()

	if exists {
		rl.mu.Lock()
		tl.lastAccess = time.Now()
		rl.mu.Unlock()
		return tl.limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// ダブルチェック
	if tl, exists := rl.limiters[teamID]; exists {
		tl.lastAccess = time.Now()
		return tl.limiter
	}

	limiter := rate.NewLimiter(rl.config.GeneralRate, rl.config.GeneralBurst)
	rl.limiters[teamID] = &teamLimiter{
		limiter:    limiter,
		lastAccess: time.Now(),
	}

	return limiter
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup() {
	ttl := rl.config.CleanupInterval * 2

	now := time.Now()

	rl.mu.Lock()
	for teamID, tl := range rl.limiters {
		if now.Sub(tl.lastAccess) > ttl {
			delete(rl.limiters, teamID)
		}
	}
	rl.mu.Unlock()
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが補充されるまでの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	// Retry-Afterの算出: 1トークンが補充されるまでの秒数
	retryAfterSec := int(math.Ceil(1.0 / float64(r)))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	json.NewEncoder(w).Encode(map[string]string{
		"code":     "rate_limit_exceeded",
		"message":  "Too many requests. Please try again later.",
		"category": "system",
		"action":   "Please wait and retry after the specified time.",
	})
}
