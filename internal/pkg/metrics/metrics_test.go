package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics(t *testing.T) {
	// 各テストで新しいレジストリを使用
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)

	require.NotNil(t, m)
	assert.NotNil(t, m.HTTPRequestsTotal)
	assert.NotNil(t, m.HTTPRequestDuration)
	assert.NotNil(t, m.SeatTransitionsTotal)
	assert.NotNil(t, m.OptimisticConflictsTotal)
	assert.NotNil(t, m.RoomGateWait)
	assert.NotNil(t, m.PendingSeatRequests)
}

func TestHTTPRequestsTotal(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)

	m.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/rooms/:room_id/seats", "200").Inc()
	m.HTTPRequestsTotal.WithLabelValues("POST", "/api/v1/rooms/:room_id/requests", "201").Inc()
	m.HTTPRequestsTotal.WithLabelValues("POST", "/api/v1/rooms/:room_id/requests", "409").Inc()

	families, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, f := range families {
		if f.GetName() == "http_requests_total" {
			found = true
			assert.Equal(t, 3, len(f.GetMetric()))
		}
	}
	assert.True(t, found, "http_requests_total metric not found")
}

func TestObserveTransition(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)

	m.ObserveTransition("grant", "success")
	m.ObserveTransition("grant", "success")
	m.ObserveTransition("grant", "seat_taken")
	m.ObserveTransition("release", "noop")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.SeatTransitionsTotal.WithLabelValues("grant", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SeatTransitionsTotal.WithLabelValues("grant", "seat_taken")))
	assert.Equal(t, 3, testutil.CollectAndCount(m.SeatTransitionsTotal))
}

func TestObserveConflict(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)

	m.ObserveConflict("grant")
	m.ObserveConflict("grant")
	m.ObserveConflict("release")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.OptimisticConflictsTotal.WithLabelValues("grant")))
}

func TestObserveGateWait(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)

	start := time.Now()
	m.ObserveGateWait("shared", start, nil)
	m.ObserveGateWait("exclusive", start, errors.New("timeout"))

	families, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, f := range families {
		if f.GetName() == "room_gate_wait_seconds" {
			found = true
			assert.Equal(t, 2, len(f.GetMetric()))
		}
	}
	assert.True(t, found, "room_gate_wait_seconds metric not found")
}

func TestPendingSeatRequests(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)

	m.AddPendingRequests(1)
	m.AddPendingRequests(1)
	m.AddPendingRequests(-1) // 1件承認

	assert.Equal(t, float64(1), testutil.ToFloat64(m.PendingSeatRequests))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics

	// nil でもパニックしない
	assert.NotPanics(t, func() {
		m.ObserveTransition("grant", "success")
		m.ObserveConflict("grant")
		m.ObserveGateWait("shared", time.Now(), nil)
		m.AddPendingRequests(1)
	})
}

func TestInit_CreatesDefaultMetrics(t *testing.T) {
	oldMetrics := defaultMetrics
	defer func() { defaultMetrics = oldMetrics }()

	// Initを呼ぶとデフォルトレジストリに登録するため、テストでは直接セット
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)
	defaultMetrics = m

	got := Get()
	assert.NotNil(t, got)
	assert.Equal(t, m, got)
}
