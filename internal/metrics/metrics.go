// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/gradesheet/internal/model"
	"github.com/hitoshi/gradesheet/internal/sheets"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// HTTP層と認証まわりから利用する。
type MetricsCollector interface {
	RecordHTTPStatus(statusCode int)
	RecordTokenVerification(result string)
	RecordRevocationsSwept(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
// sheets.Observerも実装し、レコードストアの操作結果と解決段階を記録する。
type Collector struct {
	storeOps      *prometheus.CounterVec
	storeLatency  *prometheus.HistogramVec
	resolutions   *prometheus.CounterVec
	remoteRetries *prometheus.CounterVec
	httpStatus    *prometheus.CounterVec
	tokenVerify   *prometheus.CounterVec
	revokedSwept  prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		storeOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gradesheet_store_operations_total",
			Help: "シート・操作・結果別のレコードストア操作数",
		}, []string{"sheet", "op", "result"}),
		storeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gradesheet_store_operation_seconds",
			Help:    "レコードストア操作のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"sheet", "op"}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gradesheet_field_resolution_total",
			Help: "シート・解決段階別のフィールド解決数（fixed_positionは縮退モード）",
		}, []string{"sheet", "tier"}),
		remoteRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gradesheet_sheets_retries_total",
			Help: "Google Sheets呼び出しの再試行数",
		}, []string{"op"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gradesheet_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		tokenVerify: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gradesheet_token_verifications_total",
			Help: "結果別のセッショントークン検証数",
		}, []string{"result"}),
		revokedSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gradesheet_revocations_swept_total",
			Help: "期限切れで削除された失効エントリの合計数",
		}),
	}

	reg.MustRegister(
		c.storeOps,
		c.storeLatency,
		c.resolutions,
		c.remoteRetries,
		c.httpStatus,
		c.tokenVerify,
		c.revokedSwept,
	)

	return c
}

// ObserveOperation はレコードストア操作の結果とレイテンシを記録する。
func (c *Collector) ObserveOperation(sheet, op string, err error, d time.Duration) {
	c.storeOps.WithLabelValues(sheet, op, operationResult(err)).Inc()
	c.storeLatency.WithLabelValues(sheet, op).Observe(d.Seconds())
}

// ObserveResolution はフィールド解決の段階を記録する。
func (c *Collector) ObserveResolution(sheet string, tier sheets.Tier) {
	c.resolutions.WithLabelValues(sheet, string(tier)).Inc()
}

// RecordRetry はリモート呼び出しの再試行を記録する。
func (c *Collector) RecordRetry(op string) {
	c.remoteRetries.WithLabelValues(op).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordTokenVerification はトークン検証の結果を記録する。
func (c *Collector) RecordTokenVerification(result string) {
	c.tokenVerify.WithLabelValues(result).Inc()
}

// RecordRevocationsSwept は削除された失効エントリ数を記録する。
func (c *Collector) RecordRevocationsSwept(count int64) {
	c.revokedSwept.Add(float64(count))
}

// operationResult はエラーをメトリクスのラベル値に変換する。
func operationResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	case errors.Is(err, model.ErrConflict):
		return "conflict"
	case errors.Is(err, model.ErrSchemaMismatch):
		return "schema_mismatch"
	case errors.Is(err, model.ErrStoreUnavailable):
		return "unavailable"
	default:
		return "error"
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

// compile-time interface checks
var (
	_ MetricsCollector = (*Collector)(nil)
	_ sheets.Observer  = (*Collector)(nil)
)
