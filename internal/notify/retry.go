package notify

import "time"

// DeliveryResult はHTTPステータスコードに基づく送信結果の分類。
type DeliveryResult int

const (
	// DeliveryResultOK は送信成功（200）。
	DeliveryResultOK DeliveryResult = iota
	// DeliveryResultStop は再試行しても成功しないステータス（4xx、429を除く）。
	DeliveryResultStop
	// DeliveryResultRetry は再試行で回復しうるステータス（429/5xx）。
	DeliveryResultRetry
)

const (
	// maxDeliveryAttempts は1回の送信での最大試行回数。
	maxDeliveryAttempts = 3
	// defaultRetryBaseDelay は再試行の初回遅延。試行ごとに2倍になる。
	defaultRetryBaseDelay = 200 * time.Millisecond
)

// ClassifyHTTPStatus はHTTPステータスコードを送信結果に分類する。
// 429はプラットフォーム側のレート制限であり再試行対象とする。
func ClassifyHTTPStatus(statusCode int) DeliveryResult {
	switch {
	case statusCode == 200:
		return DeliveryResultOK
	case statusCode == 429:
		return DeliveryResultRetry
	case statusCode >= 500:
		return DeliveryResultRetry
	default:
		return DeliveryResultStop
	}
}

// retryDelay は試行回数に基づく指数バックオフ遅延を計算する。
// attemptは0始まり。
func retryDelay(base time.Duration, attempt int) time.Duration {
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
	}
	return delay
}
