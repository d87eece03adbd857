// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ワーカーやサービス層から利用する。
type MetricsCollector interface {
	RecordCycleCompleted()
	RecordSummaryFallback()
	RecordNotificationSent()
	RecordNotificationFailure()
	RecordReminderSent()
	RecordReminderFailure()
	ObserveSweepDuration(d time.Duration)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	cyclesCompleted  prometheus.Counter
	summaryFallbacks prometheus.Counter
	notifySuccess    prometheus.Counter
	notifyFail       prometheus.Counter
	remindSuccess    prometheus.Counter
	remindFail       prometheus.Counter
	sweepDuration    prometheus.Histogram
	httpStatus       *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		cyclesCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reviewcycle_cycles_completed_total",
			Help: "完了したレビューサイクルの合計数",
		}),
		summaryFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reviewcycle_summary_fallback_total",
			Help: "サマリー生成失敗によるプレースホルダー採用の合計数",
		}),
		notifySuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reviewcycle_notifications_sent_total",
			Help: "送信に成功した通知の合計数",
		}),
		notifyFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reviewcycle_notifications_fail_total",
			Help: "送信に失敗した通知の合計数",
		}),
		remindSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reviewcycle_reminders_sent_total",
			Help: "送信に成功したリマインダーの合計数",
		}),
		remindFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reviewcycle_reminders_fail_total",
			Help: "送信に失敗したリマインダーの合計数",
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "reviewcycle_reminder_sweep_duration_seconds",
			Help:    "リマインダースイープ1回の所要時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reviewcycle_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.cyclesCompleted,
		c.summaryFallbacks,
		c.notifySuccess,
		c.notifyFail,
		c.remindSuccess,
		c.remindFail,
		c.sweepDuration,
		c.httpStatus,
	)

	return c
}

// RecordCycleCompleted はサイクル完了遷移を記録する。
func (c *Collector) RecordCycleCompleted() {
	c.cyclesCompleted.Inc()
}

// RecordSummaryFallback はサマリー生成失敗によるプレースホルダー採用を記録する。
func (c *Collector) RecordSummaryFallback() {
	c.summaryFallbacks.Inc()
}

// RecordNotificationSent は通知送信成功を記録する。
func (c *Collector) RecordNotificationSent() {
	c.notifySuccess.Inc()
}

// RecordNotificationFailure は通知送信失敗を記録する。
func (c *Collector) RecordNotificationFailure() {
	c.notifyFail.Inc()
}

// RecordReminderSent はリマインダー送信成功を記録する。
func (c *Collector) RecordReminderSent() {
	c.remindSuccess.Inc()
}

// RecordReminderFailure はリマインダー送信失敗を記録する。
func (c *Collector) RecordReminderFailure() {
	c.remindFail.Inc()
}

// ObserveSweepDuration はリマインダースイープの所要時間を記録する。
func (c *Collector) ObserveSweepDuration(d time.Duration) {
	c.sweepDuration.Observe(d.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
// ルーターの/metricsに直接マウントされる。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
