package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics はアプリケーションのメトリクスを管理する
type Metrics struct {
	// HTTPリクエストの総数（method, path, status_code）
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPリクエストのレイテンシ（method, path）
	HTTPRequestDuration *prometheus.HistogramVec

	// 座席状態遷移の総数（operation: request/grant/release/withdraw/replace/expire, result）
	SeatTransitionsTotal *prometheus.CounterVec

	// 楽観的ロック競合による再試行の回数（operation）
	OptimisticConflictsTotal *prometheus.CounterVec

	// ルームゲートの待ち時間（mode: shared/exclusive, status: success/failed）
	RoomGateWait *prometheus.HistogramVec

	// 保留中の着席申請数
	PendingSeatRequests prometheus.Gauge
}

// New は新しいMetricsインスタンスを作成し、デフォルトレジストリに登録する
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry は指定したレジストリにメトリクスを登録する
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		SeatTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seat_transitions_total",
				Help: "Total number of seat and seat-request transitions",
			},
			[]string{"operation", "result"},
		),
		OptimisticConflictsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optimistic_conflicts_total",
				Help: "Total number of optimistic concurrency conflicts that triggered a retry",
			},
			[]string{"operation"},
		),
		RoomGateWait: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "room_gate_wait_seconds",
				Help:    "Time spent waiting for a room gate",
				Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"mode", "status"},
		),
		PendingSeatRequests: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pending_seat_requests",
				Help: "Current number of pending seat requests",
			},
		),
	}

	// レジストリに登録
	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.SeatTransitionsTotal,
		m.OptimisticConflictsTotal,
		m.RoomGateWait,
		m.PendingSeatRequests,
	)

	return m
}

// ObserveTransition は状態遷移の結果を記録する。nil なら何もしない
func (m *Metrics) ObserveTransition(operation, result string) {
	if m == nil {
		return
	}
	m.SeatTransitionsTotal.WithLabelValues(operation, result).Inc()
}

// ObserveConflict は競合による再試行を記録する
func (m *Metrics) ObserveConflict(operation string) {
	if m == nil {
		return
	}
	m.OptimisticConflictsTotal.WithLabelValues(operation).Inc()
}

// ObserveGateWait はゲート取得の待ち時間を記録する
func (m *Metrics) ObserveGateWait(mode string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failed"
	}
	m.RoomGateWait.WithLabelValues(mode, status).Observe(time.Since(start).Seconds())
}

// AddPendingRequests は保留中の申請数を増減する
func (m *Metrics) AddPendingRequests(delta float64) {
	if m == nil {
		return
	}
	m.PendingSeatRequests.Add(delta)
}

// デフォルトのメトリクスインスタンス
var defaultMetrics *Metrics

// Init はデフォルトのメトリクスインスタンスを初期化する
func Init() *Metrics {
	defaultMetrics = New()
	return defaultMetrics
}

// Get はデフォルトのメトリクスインスタンスを返す
func Get() *Metrics {
	return defaultMetrics
}
