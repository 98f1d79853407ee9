package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/maskerliu/lynx-iot-server/internal/docstore"
	"github.com/maskerliu/lynx-iot-server/internal/domain/gift"
)

const giftUIDIndex = "idx-uid"

type giftDoc struct {
	UID       string          `json:"uid"`
	RoomID    string          `json:"roomId"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

type GiftRepository struct{ store docstore.Store }

func NewGiftRepository(store docstore.Store) *GiftRepository {
	return &GiftRepository{store: store}
}

// Init は uid のインデックスを作成する
func (r *GiftRepository) Init(ctx context.Context) error {
	return r.store.EnsureIndex(ctx, GiftCollection, docstore.Index{
		Name: giftUIDIndex, Fields: []string{"uid"},
	})
}

func (r *GiftRepository) Send(ctx context.Context, g *gift.Gift) error {
	if err := g.Validate(); err != nil {
		return err
	}
	body, err := encode(giftDoc{UID: g.UID, RoomID: g.RoomID, Payload: g.Payload, Timestamp: toMillis(g.Timestamp)})
	if err != nil {
		return err
	}
	doc, err := r.store.Insert(ctx, GiftCollection, docstore.Document{Body: body})
	if err != nil {
		return fmt.Errorf("ギフト送信に失敗: %w", err)
	}
	g.ID = doc.ID
	return nil
}

func (r *GiftRepository) ListBySender(ctx context.Context, uid string, limit int) ([]*gift.Gift, error) {
	docs, err := r.store.Find(ctx, GiftCollection, docstore.Query{
		Selector: docstore.Selector{docstore.Eq("uid", uid)},
		Sort:     []docstore.SortField{docstore.Asc("uid"), docstore.Desc("timestamp")},
		Index:    giftUIDIndex,
		Limit:    limit,
	})
	if err != nil {
		return nil, fmt.Errorf("ギフト取得に失敗: %w", err)
	}
	gifts := make([]*gift.Gift, 0, len(docs))
	for _, doc := range docs {
		d, err := decode[giftDoc](doc)
		if err != nil {
			return nil, err
		}
		gifts = append(gifts, &gift.Gift{
			ID: doc.ID, UID: d.UID, RoomID: d.RoomID, Payload: d.Payload, Timestamp: fromMillis(d.Timestamp),
		})
	}
	return gifts, nil
}

var _ gift.Repository = (*GiftRepository)(nil)
