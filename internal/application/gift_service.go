package application

import (
	"context"
	"encoding/json"

	"github.com/maskerliu/lynx-iot-server/internal/domain/gift"
	"github.com/maskerliu/lynx-iot-server/internal/domain/room"
)

const defaultGiftLimit = 50

type GiftService struct {
	repo  gift.Repository
	rooms roomReader
}

func NewGiftService(repo gift.Repository, rr room.Repository, cache RoomCache) *GiftService {
	return &GiftService{repo: repo, rooms: roomReader{repo: rr, cache: cache}}
}

// SendGift はルームにギフトを送る
func (s *GiftService) SendGift(ctx context.Context, uid, roomID string, payload json.RawMessage) (*gift.Gift, error) {
	g := gift.NewGift(uid, roomID, payload)
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.rooms.get(ctx, roomID); err != nil {
		return nil, err
	}
	if err := s.repo.Send(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

func (s *GiftService) ListSentGifts(ctx context.Context, uid string, limit int) ([]*gift.Gift, error) {
	if uid == "" {
		return nil, gift.ErrUIDRequired
	}
	if limit <= 0 {
		limit = defaultGiftLimit
	}
	return s.repo.ListBySender(ctx, uid, limit)
}
