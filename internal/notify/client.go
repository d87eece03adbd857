// Package notify はチャットプラットフォームへの通知送信機能を提供する。
// Web API（chat.postMessage, views.open）の呼び出しと、
// コマンド応答用のresponse_urlへの送信を含む。
// ワークスペース単位のレートリミッタで送信頻度を制御する。
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/KlepaczKotletow/Performance-Review/internal/security"
)

// defaultBaseURL はWeb APIのデフォルトエンドポイント。
const defaultBaseURL = "https://slack.com/api"

// Client はチャットプラットフォームWeb APIのクライアント。
// アクセストークンはグローバルには保持せず、呼び出しごとに
// ワークスペース単位のトークンを受け取る。
type Client struct {
	httpClient  *http.Client
	safeClient  *http.Client // response_url送信用のSSRF防止付きクライアント
	guard       security.SSRFGuardService
	logger      *slog.Logger
	baseURL     string // テスト用にエンドポイントを差し替え可能
	maxRespSize int64

	// retryBaseDelay は再試行バックオフの初回遅延。テスト用に短縮可能。
	retryBaseDelay time.Duration

	// limiters はワークスペース（チームID）単位のレートリミッタ。
	mu            sync.Mutex
	limiters      map[string]*rate.Limiter
	ratePerSecond float64
}

// ClientOption はClientの生成オプション。
type ClientOption func(*Client)

// WithBaseURL はWeb APIのエンドポイントを差し替える。テスト用。
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithRetryBaseDelay は再試行バックオフの初回遅延を差し替える。テスト用。
func WithRetryBaseDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.retryBaseDelay = d
	}
}

// NewClient はClientの新しいインスタンスを生成する。
// guardはresponse_url送信時のURL検証とSSRF防止クライアント生成に使用する。
func NewClient(
	httpClient *http.Client,
	guard security.SSRFGuardService,
	logger *slog.Logger,
	timeout time.Duration,
	ratePerSecond float64,
	maxRespSize int64,
	opts ...ClientOption,
) *Client {
	c := &Client{
		httpClient:     httpClient,
		safeClient:     guard.NewSafeClient(timeout),
		guard:          guard,
		logger:         logger,
		baseURL:        defaultBaseURL,
		maxRespSize:    maxRespSize,
		retryBaseDelay: defaultRetryBaseDelay,
		limiters:       make(map[string]*rate.Limiter),
		ratePerSecond:  ratePerSecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// limiterFor はチームIDに対応するレートリミッタを返す。
// 初回アクセス時に生成し、以降は同一インスタンスを共有する。
func (c *Client) limiterFor(teamID string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	limiter, ok := c.limiters[teamID]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(c.ratePerSecond), 1)
		c.limiters[teamID] = limiter
	}
	return limiter
}

// apiResponse はWeb APIの共通レスポンス形式。
type apiResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// PostMessage はchat.postMessageでダイレクトメッセージを送信する。
// channelには送信先ユーザーの外部ユーザーIDを指定する。
// レートリミッタの待機はctxのキャンセルで中断される。
func (c *Client) PostMessage(ctx context.Context, token, teamID, channel, text string, blocks []Block) error {
	payload := map[string]any{
		"channel": channel,
		"text":    text,
	}
	if len(blocks) > 0 {
		payload["blocks"] = blocks
	}
	return c.callAPI(ctx, token, teamID, "chat.postMessage", payload)
}

// OpenView はviews.openでモーダルを開く。
// triggerIDはインタラクションペイロード由来で、有効期限が短い（約3秒）。
func (c *Client) OpenView(ctx context.Context, token, teamID, triggerID string, view *View) error {
	payload := map[string]any{
		"trigger_id": triggerID,
		"view":       view,
	}
	return c.callAPI(ctx, token, teamID, "views.open", payload)
}

// PublishView はviews.publishでアプリホームビューを更新する。
func (c *Client) PublishView(ctx context.Context, token, teamID, userID string, view *View) error {
	payload := map[string]any{
		"user_id": userID,
		"view":    view,
	}
	return c.callAPI(ctx, token, teamID, "views.publish", payload)
}

// callAPI はWeb APIメソッドを呼び出し、okフィールドを検証する。
// 429/5xxは指数バックオフで最大3回まで再試行する。
func (c *Client) callAPI(ctx context.Context, token, teamID, method string, payload any) error {
	if err := c.limiterFor(teamID).Wait(ctx); err != nil {
		return fmt.Errorf("レートリミッタの待機に失敗しました: %w", err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("リクエストボディの生成に失敗しました: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxDeliveryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryDelay(c.retryBaseDelay, attempt-1)):
			}
		}

		retryable, err := c.doAPICall(ctx, token, method, body)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable {
			return err
		}
		c.logger.Warn("Web API呼び出しを再試行します",
			slog.String("method", method),
			slog.String("team_id", teamID),
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()),
		)
	}
	return lastErr
}

// doAPICall は1回分のWeb API呼び出しを行う。
// 戻り値のboolは再試行可能なエラーかどうかを表す。
func (c *Client) doAPICall(ctx context.Context, token, method string, body []byte) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Web APIの呼び出しに失敗しました",
			slog.String("method", method),
			slog.String("error", err.Error()),
		)
		// ネットワークエラーは一過性とみなす
		return true, fmt.Errorf("web APIの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if result := ClassifyHTTPStatus(resp.StatusCode); result != DeliveryResultOK {
		c.logger.Error("Web APIがエラーステータスを返しました",
			slog.String("method", method),
			slog.Int("http_status", resp.StatusCode),
		)
		return result == DeliveryResultRetry, fmt.Errorf("web APIがステータス %d を返しました", resp.StatusCode)
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, c.maxRespSize))
	if err != nil {
		return false, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	var result apiResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return false, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	if !result.OK {
		c.logger.Error("Web APIがエラーを返しました",
			slog.String("method", method),
			slog.String("api_error", result.Error),
		)
		return false, fmt.Errorf("web APIがエラーを返しました: %s", result.Error)
	}

	return false, nil
}

// ResponseMessage はresponse_urlに送信するメッセージ。
type ResponseMessage struct {
	ResponseType string  `json:"response_type"` // ephemeral または in_channel
	Text         string  `json:"text"`
	Blocks       []Block `json:"blocks,omitempty"`
}

// PostToResponseURL はコマンド応答をresponse_urlへ送信する。
// response_urlはリクエストペイロード由来の外部入力であるため、
// 事前検証とSSRF防止付きクライアントの両方で保護する。
func (c *Client) PostToResponseURL(ctx context.Context, responseURL string, msg *ResponseMessage) error {
	if err := c.guard.ValidateURL(responseURL); err != nil {
		return fmt.Errorf("response_urlの検証に失敗しました: %w", err)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("リクエストボディの生成に失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, responseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := c.safeClient.Do(req)
	if err != nil {
		c.logger.Error("response_urlへの送信に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("response_urlへの送信に失敗しました: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, c.maxRespSize))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("response_urlがステータス %d を返しました", resp.StatusCode)
	}

	return nil
}
