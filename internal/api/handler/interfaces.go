package handler

import (
	"context"
	"encoding/json"

	"github.com/maskerliu/lynx-iot-server/internal/application"
	"github.com/maskerliu/lynx-iot-server/internal/domain/collection"
	"github.com/maskerliu/lynx-iot-server/internal/domain/gift"
	"github.com/maskerliu/lynx-iot-server/internal/domain/room"
	"github.com/maskerliu/lynx-iot-server/internal/domain/seat"
	"github.com/maskerliu/lynx-iot-server/internal/domain/seatrequest"
)

// RoomServiceInterface はルームサービスのインターフェース
type RoomServiceInterface interface {
	CreateRoom(ctx context.Context, input application.CreateRoomInput) (*room.Room, []*seat.Seat, error)
	GetRoom(ctx context.Context, id string) (*room.Room, error)
	ListRooms(ctx context.Context, owner string, typ room.Type) ([]*room.Room, error)
	BulkGetRooms(ctx context.Context, ids []string) ([]*room.Room, error)
	RenameRoom(ctx context.Context, id, actor, title string) (*room.Room, error)
}

// SeatServiceInterface は座席の読み書きを行うサービスのインターフェース
type SeatServiceInterface interface {
	GetSeat(ctx context.Context, roomID string, seq int) (*seat.Seat, error)
	ListSeats(ctx context.Context, roomID string) ([]*seat.Seat, error)
	ReplaceLayout(ctx context.Context, in application.ReplaceLayoutInput) ([]*seat.Seat, error)
	UpdateSeats(ctx context.Context, in application.UpdateSeatsInput) ([]*seat.Seat, error)
	ReleaseSeat(ctx context.Context, roomID string, seq int, uid string) (bool, error)
}

// SeatRequestServiceInterface は着席申請を扱うサービスのインターフェース
type SeatRequestServiceInterface interface {
	RequestSeat(ctx context.Context, in application.RequestSeatInput) (*seatrequest.SeatRequest, error)
	WithdrawRequest(ctx context.Context, roomID, uid string) (bool, error)
	ListDueRequests(ctx context.Context, roomID string) ([]*seatrequest.SeatRequest, error)
	GrantSeat(ctx context.Context, in application.GrantSeatInput) (*seat.Seat, error)
}

// CollectionServiceInterface はお気に入りサービスのインターフェース
type CollectionServiceInterface interface {
	Collect(ctx context.Context, uid, roomID string) (bool, error)
	IsCollected(ctx context.Context, uid, roomID string) (bool, error)
	ListCollections(ctx context.Context, uid string) ([]*collection.RoomCollection, error)
}

// GiftServiceInterface はギフトサービスのインターフェース
type GiftServiceInterface interface {
	SendGift(ctx context.Context, uid, roomID string, payload json.RawMessage) (*gift.Gift, error)
	ListSentGifts(ctx context.Context, uid string, limit int) ([]*gift.Gift, error)
}

var (
	_ RoomServiceInterface        = (*application.RoomService)(nil)
	_ SeatServiceInterface        = (*application.SeatArbitrationService)(nil)
	_ SeatRequestServiceInterface = (*application.SeatArbitrationService)(nil)
	_ CollectionServiceInterface  = (*application.CollectionService)(nil)
	_ GiftServiceInterface        = (*application.GiftService)(nil)
)
