package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maskerliu/lynx-iot-server/internal/domain/room"
	"github.com/maskerliu/lynx-iot-server/internal/domain/seat"
	"github.com/maskerliu/lynx-iot-server/internal/domain/seatrequest"
	"github.com/maskerliu/lynx-iot-server/internal/infrastructure/memory"
	"github.com/maskerliu/lynx-iot-server/internal/infrastructure/repository"
	"github.com/maskerliu/lynx-iot-server/internal/pkg/metrics"
)

// testClock はテストから進められる時計
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.UnixMilli(1700000000000)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingPublisher は配信されたイベントを記録する
type recordingPublisher struct {
	mu     sync.Mutex
	events []seat.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, ev seat.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Types() []seat.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]seat.EventType, len(p.events))
	for i, ev := range p.events {
		types[i] = ev.Type
	}
	return types
}

// MockEventPublisher implements EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, ev seat.Event) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

// MockRoomCache implements RoomCache
type MockRoomCache struct {
	mock.Mock
}

func (m *MockRoomCache) Get(ctx context.Context, id string) (*room.Room, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*room.Room), args.Error(1)
}

func (m *MockRoomCache) Set(ctx context.Context, r *room.Room) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func (m *MockRoomCache) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

var testPolicy = RetryPolicy{MaxRetries: 5, Delay: time.Millisecond}

type testEnv struct {
	store       *memory.Store
	gate        *memory.Gate
	rooms       *repository.RoomRepository
	seats       *repository.SeatRepository
	requests    *repository.SeatRequestRepository
	collections *repository.CollectionRepository
	gifts       *repository.GiftRepository
	metrics     *metrics.Metrics
	events      *recordingPublisher
	clock       *testClock
	arbiter     *SeatArbitrationService
	roomSvc     *RoomService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	env := &testEnv{
		store:   memory.NewStore(),
		gate:    memory.NewGate(),
		metrics: metrics.NewWithRegistry(prometheus.NewRegistry()),
		events:  &recordingPublisher{},
		clock:   newTestClock(),
	}
	env.rooms = repository.NewRoomRepository(env.store)
	env.seats = repository.NewSeatRepository(env.store)
	env.requests = repository.NewSeatRequestRepository(env.store)
	env.collections = repository.NewCollectionRepository(env.store)
	env.gifts = repository.NewGiftRepository(env.store)
	require.NoError(t, repository.InitAll(ctx, env.rooms, env.seats, env.requests, env.collections, env.gifts))

	env.arbiter = env.newArbiter(env.seats, env.requests)
	env.roomSvc = NewRoomService(env.rooms, env.arbiter, nil)
	return env
}

// newArbiter はリポジトリを差し替えた調停サービスを作る
func (e *testEnv) newArbiter(sr seat.Repository, qr seatrequest.Repository) *SeatArbitrationService {
	return NewSeatArbitrationService(e.rooms, sr, qr, e.gate,
		WithRetryPolicy(testPolicy),
		WithEventPublisher(e.events),
		WithMetrics(e.metrics),
		WithClock(e.clock.Now),
	)
}

// createRoom は座席 0..seats-1 が空いたルームを作る
func (e *testEnv) createRoom(t *testing.T, owner string, seats int) *room.Room {
	t.Helper()
	rm, layout, err := e.roomSvc.CreateRoom(context.Background(), CreateRoomInput{
		Owner: owner, Type: "voice", Title: "テストルーム", SeatCount: seats,
	})
	require.NoError(t, err)
	require.Len(t, layout, seats)
	return rm
}

func intPtr(v int) *int { return &v }
