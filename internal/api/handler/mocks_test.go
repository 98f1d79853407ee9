package handler

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maskerliu/lynx-iot-server/internal/api"
	"github.com/maskerliu/lynx-iot-server/internal/application"
	"github.com/maskerliu/lynx-iot-server/internal/domain/collection"
	"github.com/maskerliu/lynx-iot-server/internal/domain/gift"
	"github.com/maskerliu/lynx-iot-server/internal/domain/room"
	"github.com/maskerliu/lynx-iot-server/internal/domain/seat"
	"github.com/maskerliu/lynx-iot-server/internal/domain/seatrequest"
)

// newTestEcho は本番と同じバリデーターとエラーハンドラーを設定したEchoを返す
func newTestEcho() *echo.Echo {
	e := echo.New()
	e.Validator = api.NewValidator()
	e.HTTPErrorHandler = api.CustomHTTPErrorHandler
	return e
}

// MockRoomService はRoomServiceInterfaceのモック
type MockRoomService struct {
	mock.Mock
}

func (m *MockRoomService) CreateRoom(ctx context.Context, input application.CreateRoomInput) (*room.Room, []*seat.Seat, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*room.Room), args.Get(1).([]*seat.Seat), args.Error(2)
}

func (m *MockRoomService) GetRoom(ctx context.Context, id string) (*room.Room, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*room.Room), args.Error(1)
}

func (m *MockRoomService) ListRooms(ctx context.Context, owner string, typ room.Type) ([]*room.Room, error) {
	args := m.Called(ctx, owner, typ)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*room.Room), args.Error(1)
}

func (m *MockRoomService) BulkGetRooms(ctx context.Context, ids []string) ([]*room.Room, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*room.Room), args.Error(1)
}

func (m *MockRoomService) RenameRoom(ctx context.Context, id, actor, title string) (*room.Room, error) {
	args := m.Called(ctx, id, actor, title)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*room.Room), args.Error(1)
}

// MockSeatService はSeatServiceInterfaceのモック
type MockSeatService struct {
	mock.Mock
}

func (m *MockSeatService) GetSeat(ctx context.Context, roomID string, seq int) (*seat.Seat, error) {
	args := m.Called(ctx, roomID, seq)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*seat.Seat), args.Error(1)
}

func (m *MockSeatService) ListSeats(ctx context.Context, roomID string) ([]*seat.Seat, error) {
	args := m.Called(ctx, roomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*seat.Seat), args.Error(1)
}

func (m *MockSeatService) ReplaceLayout(ctx context.Context, in application.ReplaceLayoutInput) ([]*seat.Seat, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*seat.Seat), args.Error(1)
}

func (m *MockSeatService) UpdateSeats(ctx context.Context, in application.UpdateSeatsInput) ([]*seat.Seat, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*seat.Seat), args.Error(1)
}

func (m *MockSeatService) ReleaseSeat(ctx context.Context, roomID string, seq int, uid string) (bool, error) {
	args := m.Called(ctx, roomID, seq, uid)
	return args.Bool(0), args.Error(1)
}

// MockSeatRequestService はSeatRequestServiceInterfaceのモック
type MockSeatRequestService struct {
	mock.Mock
}

func (m *MockSeatRequestService) RequestSeat(ctx context.Context, in application.RequestSeatInput) (*seatrequest.SeatRequest, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*seatrequest.SeatRequest), args.Error(1)
}

func (m *MockSeatRequestService) WithdrawRequest(ctx context.Context, roomID, uid string) (bool, error) {
	args := m.Called(ctx, roomID, uid)
	return args.Bool(0), args.Error(1)
}

func (m *MockSeatRequestService) ListDueRequests(ctx context.Context, roomID string) ([]*seatrequest.SeatRequest, error) {
	args := m.Called(ctx, roomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*seatrequest.SeatRequest), args.Error(1)
}

func (m *MockSeatRequestService) GrantSeat(ctx context.Context, in application.GrantSeatInput) (*seat.Seat, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*seat.Seat), args.Error(1)
}

// MockCollectionService はCollectionServiceInterfaceのモック
type MockCollectionService struct {
	mock.Mock
}

func (m *MockCollectionService) Collect(ctx context.Context, uid, roomID string) (bool, error) {
	args := m.Called(ctx, uid, roomID)
	return args.Bool(0), args.Error(1)
}

func (m *MockCollectionService) IsCollected(ctx context.Context, uid, roomID string) (bool, error) {
	args := m.Called(ctx, uid, roomID)
	return args.Bool(0), args.Error(1)
}

func (m *MockCollectionService) ListCollections(ctx context.Context, uid string) ([]*collection.RoomCollection, error) {
	args := m.Called(ctx, uid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*collection.RoomCollection), args.Error(1)
}

// MockGiftService はGiftServiceInterfaceのモック
type MockGiftService struct {
	mock.Mock
}

func (m *MockGiftService) SendGift(ctx context.Context, uid, roomID string, payload json.RawMessage) (*gift.Gift, error) {
	args := m.Called(ctx, uid, roomID, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gift.Gift), args.Error(1)
}

func (m *MockGiftService) ListSentGifts(ctx context.Context, uid string, limit int) ([]*gift.Gift, error) {
	args := m.Called(ctx, uid, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*gift.Gift), args.Error(1)
}

// newContext はテスト用のリクエストコンテキストを作成する
// uid が空なら X-User-ID を付けない
func newContext(e *echo.Echo, method, target, body, uid string) (echo.Context, *httptest.ResponseRecorder) {
	var req = httptest.NewRequest(method, target, nil)
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if uid != "" {
		req.Header.Set(HeaderUserID, uid)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func intPtr(v int) *int { return &v }

func assertHTTPError(t *testing.T, err error, code int) {
	t.Helper()
	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, code, he.Code)
}
