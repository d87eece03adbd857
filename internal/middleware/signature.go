package middleware

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/KlepaczKotletow/Performance-Review/internal/model"
)

// maxRequestBodySize は受信リクエストボディの最大サイズ。
// コマンド・インタラクションペイロードには十分な大きさ。
const maxRequestBodySize = 1 << 20 // 1MiB

// rawBodyKey は検証済みリクエストボディのコンテキストキー。
type rawBodyKey struct{}

// RawBodyFromContext は署名検証済みのリクエストボディの生バイト列を返す。
// 署名検証ミドルウェアを通過していないリクエストではfalseを返す。
func RawBodyFromContext(ctx context.Context) ([]byte, bool) {
	body, ok := ctx.Value(rawBodyKey{}).([]byte)
	return body, ok
}

// SignatureVerifier はリクエスト署名の検証インターフェース。
type SignatureVerifier interface {
	Verify(timestamp, signature string, body []byte) error
}

// NewSignatureMiddleware はHMAC-SHA256リクエスト署名を検証するミドルウェアを返す。
// ボディを読み取って署名を検証し、検証済みボディをコンテキストに格納した上で
// 後続ハンドラーが再読可能なようにr.Bodyを復元する。
// 署名が無効な場合は401を返し、後続処理は実行されない。
func NewSignatureMiddleware(verifier SignatureVerifier, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
			if err != nil {
				logger.Error("リクエストボディの読み取りに失敗しました",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}
			r.Body.Close()

			timestamp := r.Header.Get("X-Slack-Request-Timestamp")
			signature := r.Header.Get("X-Slack-Signature")

			if err := verifier.Verify(timestamp, signature, body); err != nil {
				logger.Warn("リクエスト署名の検証に失敗しました",
					slog.String("path", r.URL.Path),
				)
				WriteAPIError(w, model.NewInvalidSignatureError())
				return
			}

			ctx := context.WithValue(r.Context(), rawBodyKey{}, body)
			r = r.WithContext(ctx)
			r.Body = io.NopCloser(bytes.NewReader(body))

			next.ServeHTTP(w, r)
		})
	}
}
