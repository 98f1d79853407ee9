package application

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/maskerliu/lynx-iot-server/internal/domain/room"
	"github.com/maskerliu/lynx-iot-server/internal/domain/seat"
	"github.com/maskerliu/lynx-iot-server/internal/pkg/logger"
)

// MaxSeatCount はルーム作成時に指定できる座席数の上限
const MaxSeatCount = 64

type RoomService struct {
	rooms   roomReader
	arbiter *SeatArbitrationService
	policy  RetryPolicy
}

func NewRoomService(rr room.Repository, arbiter *SeatArbitrationService, cache RoomCache) *RoomService {
	return &RoomService{
		rooms:   roomReader{repo: rr, cache: cache},
		arbiter: arbiter,
		policy:  DefaultRetryPolicy(),
	}
}

type CreateRoomInput struct {
	Owner     string
	Type      room.Type
	Title     string
	SeatCount int
}

// CreateRoom はルームを作成し、座席レイアウトを初期化する
func (s *RoomService) CreateRoom(ctx context.Context, input CreateRoomInput) (*room.Room, []*seat.Seat, error) {
	if input.SeatCount < 0 || input.SeatCount > MaxSeatCount {
		return nil, nil, fmt.Errorf("%w: %d", seat.ErrInvalidSeatCount, input.SeatCount)
	}
	rm := room.NewRoom(input.Owner, input.Type, input.Title)
	if err := rm.Validate(); err != nil {
		return nil, nil, err
	}
	if err := s.rooms.repo.Create(ctx, rm); err != nil {
		return nil, nil, err
	}

	seats, err := s.arbiter.InitLayout(ctx, rm.ID, input.SeatCount)
	if err != nil {
		return nil, nil, fmt.Errorf("座席レイアウトの初期化に失敗: %w", err)
	}

	logger.Info("ルームを作成",
		zap.String("room_id", rm.ID),
		zap.String("owner", rm.Owner),
		zap.Int("seats", len(seats)),
	)
	return rm, seats, nil
}

func (s *RoomService) GetRoom(ctx context.Context, id string) (*room.Room, error) {
	return s.rooms.get(ctx, id)
}

// ListRooms はオーナーのルーム一覧を取得する。typ が空なら全種別
func (s *RoomService) ListRooms(ctx context.Context, owner string, typ room.Type) ([]*room.Room, error) {
	if owner == "" {
		return nil, room.ErrOwnerRequired
	}
	return s.rooms.repo.ListByOwner(ctx, owner, typ)
}

// BulkGetRooms は複数IDのルームを取得する
func (s *RoomService) BulkGetRooms(ctx context.Context, ids []string) ([]*room.Room, error) {
	return s.rooms.repo.BulkGet(ctx, ids)
}

// RenameRoom はルームのタイトルを変更する（オーナーのみ）
func (s *RoomService) RenameRoom(ctx context.Context, id, actor, title string) (*room.Room, error) {
	var renamed *room.Room
	err := Attempt(ctx, s.policy, func(int) error {
		rm, err := s.rooms.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if !rm.IsOwnedBy(actor) {
			return room.ErrNotOwner
		}
		if err := rm.Rename(title); err != nil {
			return err
		}
		if err := s.rooms.repo.Update(ctx, rm); err != nil {
			return err
		}
		renamed = rm
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.rooms.invalidate(ctx, id)
	return renamed, nil
}
