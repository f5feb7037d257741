// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ミドルウェアやサービス層、ワーカーから利用する。
type MetricsCollector interface {
	RecordHTTPRequest(method, route string, statusCode int, duration time.Duration)
	RecordRateLimited(limitType string)
	RecordNotifications(sent, failed int)
	RecordMediaUpload(size int64)
	RecordSessionsCleaned(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpRequests        *prometheus.CounterVec
	httpLatency         *prometheus.HistogramVec
	rateLimited         *prometheus.CounterVec
	notificationsSent   prometheus.Counter
	notificationsFailed prometheus.Counter
	mediaUploads        prometheus.Counter
	mediaUploadBytes    prometheus.Counter
	sessionsCleaned     prometheus.Counter
}

var _ MetricsCollector = (*Collector)(nil)

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storytime_http_requests_total",
			Help: "ルート・ステータスコード別のHTTPリクエスト数",
		}, []string{"method", "route", "status_code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storytime_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storytime_rate_limited_total",
			Help: "レート制限で拒否したリクエスト数",
		}, []string{"limit_type"}),
		notificationsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storytime_notifications_sent_total",
			Help: "送信に成功した公開通知メールの数",
		}),
		notificationsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storytime_notifications_failed_total",
			Help: "送信に失敗した公開通知メールの数",
		}),
		mediaUploads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storytime_media_uploads_total",
			Help: "アップロードされたメディアの数",
		}),
		mediaUploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storytime_media_upload_bytes_total",
			Help: "アップロードされたメディアの合計バイト数",
		}),
		sessionsCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storytime_sessions_cleaned_total",
			Help: "クリーンアップで削除した期限切れセッションの数",
		}),
	}

	reg.MustRegister(
		c.httpRequests,
		c.httpLatency,
		c.rateLimited,
		c.notificationsSent,
		c.notificationsFailed,
		c.mediaUploads,
		c.mediaUploadBytes,
		c.sessionsCleaned,
	)

	return c
}

// RecordHTTPRequest はHTTPリクエスト1件を記録する。
func (c *Collector) RecordHTTPRequest(method, route string, statusCode int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	c.httpLatency.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordRateLimited はレート制限による拒否を記録する。
func (c *Collector) RecordRateLimited(limitType string) {
	c.rateLimited.WithLabelValues(limitType).Inc()
}

// RecordNotifications は公開通知の送信結果を記録する。
func (c *Collector) RecordNotifications(sent, failed int) {
	c.notificationsSent.Add(float64(sent))
	c.notificationsFailed.Add(float64(failed))
}

// RecordMediaUpload はメディアのアップロードを記録する。
func (c *Collector) RecordMediaUpload(size int64) {
	c.mediaUploads.Inc()
	if size > 0 {
		c.mediaUploadBytes.Add(float64(size))
	}
}

// RecordSessionsCleaned は削除した期限切れセッション数を記録する。
func (c *Collector) RecordSessionsCleaned(count int64) {
	c.sessionsCleaned.Add(float64(count))
}

// Middleware はリクエストごとにルートパターン・ステータス・処理時間を記録するミドルウェアを返す。
// ラベルの種類を抑えるため、パスではなくchiのルートパターンを使う。
func (c *Collector) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if p := rctx.RoutePattern(); p != "" {
					route = p
				}
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			c.RecordHTTPRequest(r.Method, route, status, time.Since(start))
		})
	}
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
