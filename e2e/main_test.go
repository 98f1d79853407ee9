package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/maskerliu/lynx-iot-server/internal/api/handler"
	"github.com/maskerliu/lynx-iot-server/internal/api/middleware"
	"github.com/maskerliu/lynx-iot-server/internal/api/router"
	"github.com/maskerliu/lynx-iot-server/internal/application"
	"github.com/maskerliu/lynx-iot-server/internal/docstore"
	"github.com/maskerliu/lynx-iot-server/internal/infrastructure/memory"
	redisinfra "github.com/maskerliu/lynx-iot-server/internal/infrastructure/redis"
	"github.com/maskerliu/lynx-iot-server/internal/infrastructure/repository"
	"github.com/maskerliu/lynx-iot-server/internal/infrastructure/sqlite"
	"github.com/maskerliu/lynx-iot-server/internal/pkg/metrics"
)

// TestServer はE2Eテスト用のサーバー
type TestServer struct {
	Echo    *echo.Echo
	Arbiter *application.SeatArbitrationService
}

// backend はテスト対象のストアとゲートの組み合わせ
type backend struct {
	name string
	open func(t *testing.T) (docstore.Store, application.Gate, application.RoomCache)
}

var backends = []backend{
	{
		name: "memory",
		open: func(t *testing.T) (docstore.Store, application.Gate, application.RoomCache) {
			return memory.NewStore(), memory.NewGate(), nil
		},
	},
	{
		name: "sqlite+redis",
		open: func(t *testing.T) (docstore.Store, application.Gate, application.RoomCache) {
			store, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "e2e.db"))
			require.NoError(t, err)
			t.Cleanup(func() { store.Close() })

			mr := miniredis.RunT(t)
			rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { rc.Close() })

			return store, redisinfra.NewGate(rc, 5*time.Second, time.Millisecond), redisinfra.NewRoomCache(rc, time.Minute)
		},
	},
}

// forEachBackend は全バックエンドで同じシナリオを実行する
func forEachBackend(t *testing.T, fn func(t *testing.T, s *TestServer)) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			fn(t, NewTestServer(t, b))
		})
	}
}

// NewTestServer はテスト用サーバーを作成
func NewTestServer(t *testing.T, b backend) *TestServer {
	t.Helper()
	ctx := context.Background()
	store, gate, roomCache := b.open(t)

	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	roomRepo := repository.NewRoomRepository(store)
	seatRepo := repository.NewSeatRepository(store)
	requestRepo := repository.NewSeatRequestRepository(store)
	collectionRepo := repository.NewCollectionRepository(store)
	giftRepo := repository.NewGiftRepository(store)
	require.NoError(t, repository.InitAll(ctx, roomRepo, seatRepo, requestRepo, collectionRepo, giftRepo))

	opts := []application.ArbitrationOption{
		application.WithMetrics(m),
		application.WithRetryPolicy(application.RetryPolicy{MaxRetries: 10, Delay: time.Millisecond}),
	}
	if roomCache != nil {
		opts = append(opts, application.WithRoomCache(roomCache))
	}
	arbiter := application.NewSeatArbitrationService(roomRepo, seatRepo, requestRepo, gate, opts...)

	e := router.New(router.Handlers{
		Health:      handler.NewHealthHandler(map[string]handler.Pinger{"store": store}),
		Room:        handler.NewRoomHandler(application.NewRoomService(roomRepo, arbiter, roomCache)),
		Seat:        handler.NewSeatHandler(arbiter),
		SeatRequest: handler.NewSeatRequestHandler(arbiter),
		Collection:  handler.NewCollectionHandler(application.NewCollectionService(collectionRepo, gate, m)),
		Gift:        handler.NewGiftHandler(application.NewGiftService(giftRepo, roomRepo, roomCache)),
	}, router.Options{
		Metrics:     m,
		Gatherer:    reg,
		MetricsAuth: &middleware.MetricsConfig{},
	})

	return &TestServer{Echo: e, Arbiter: arbiter}
}

// Request はHTTPリクエストを実行
// uid が空なら X-User-ID を付けない
func (s *TestServer) Request(method, path string, body interface{}, uid string) *httptest.ResponseRecorder {
	var reqBody []byte
	if body != nil {
		reqBody, _ = json.Marshal(body)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	if uid != "" {
		req.Header.Set(handler.HeaderUserID, uid)
	}

	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)
	return rec
}

// decode はレスポンスをデコードする
func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// createRoom はルームを作成してIDを返す
func (s *TestServer) createRoom(t *testing.T, owner string, seats int) string {
	t.Helper()
	rec := s.Request(http.MethodPost, "/api/v1/rooms", map[string]any{
		"type": "voice", "title": "テストルーム", "seat_count": seats,
	}, owner)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[handler.CreateRoomResponse](t, rec).Room.ID
}
