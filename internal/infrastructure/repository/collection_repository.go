package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/maskerliu/lynx-iot-server/internal/docstore"
	"github.com/maskerliu/lynx-iot-server/internal/domain/collection"
)

const collectionUIDIndex = "idx-uid"

type collectionDoc struct {
	UID       string `json:"uid"`
	RoomID    string `json:"roomId"`
	Timestamp int64  `json:"timestamp"`
}

func (d *collectionDoc) toEntity(id, rev string) *collection.RoomCollection {
	return &collection.RoomCollection{
		ID: id, UID: d.UID, RoomID: d.RoomID, Timestamp: fromMillis(d.Timestamp), Rev: rev,
	}
}

type CollectionRepository struct{ store docstore.Store }

func NewCollectionRepository(store docstore.Store) *CollectionRepository {
	return &CollectionRepository{store: store}
}

// Init は (uid, timestamp) のインデックスを作成する
func (r *CollectionRepository) Init(ctx context.Context) error {
	return r.store.EnsureIndex(ctx, CollectionCollection, docstore.Index{
		Name: collectionUIDIndex, Fields: []string{"uid", "timestamp"},
	})
}

func (r *CollectionRepository) find(ctx context.Context, q docstore.Query) ([]*collection.RoomCollection, error) {
	docs, err := r.store.Find(ctx, CollectionCollection, q)
	if err != nil {
		return nil, fmt.Errorf("お気に入りの取得に失敗: %w", err)
	}
	out := make([]*collection.RoomCollection, 0, len(docs))
	for _, doc := range docs {
		d, err := decode[collectionDoc](doc)
		if err != nil {
			return nil, err
		}
		out = append(out, d.toEntity(doc.ID, doc.Rev))
	}
	return out, nil
}

func (r *CollectionRepository) Find(ctx context.Context, uid, roomID string) (*collection.RoomCollection, error) {
	found, err := r.find(ctx, docstore.Query{
		Selector: docstore.Selector{docstore.Eq("uid", uid), docstore.Eq("roomId", roomID)},
		Limit:    1,
	})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, collection.ErrCollectionNotFound
	}
	return found[0], nil
}

func (r *CollectionRepository) Add(ctx context.Context, c *collection.RoomCollection) error {
	if err := c.Validate(); err != nil {
		return err
	}
	body, err := encode(collectionDoc{UID: c.UID, RoomID: c.RoomID, Timestamp: toMillis(c.Timestamp)})
	if err != nil {
		return err
	}
	doc, err := r.store.Insert(ctx, CollectionCollection, docstore.Document{Body: body})
	if err != nil {
		return fmt.Errorf("お気に入りの追加に失敗: %w", err)
	}
	c.ID = doc.ID
	c.Rev = doc.Rev
	return nil
}

func (r *CollectionRepository) Remove(ctx context.Context, c *collection.RoomCollection) error {
	err := r.store.Delete(ctx, CollectionCollection, c.ID, c.Rev)
	if errors.Is(err, docstore.ErrNotFound) {
		return collection.ErrCollectionNotFound
	}
	if err != nil {
		return fmt.Errorf("お気に入りの削除に失敗: %w", err)
	}
	return nil
}

// ListByUser はユーザーのお気に入りを timestamp の降順で返す
func (r *CollectionRepository) ListByUser(ctx context.Context, uid string) ([]*collection.RoomCollection, error) {
	return r.find(ctx, docstore.Query{
		Selector: docstore.Selector{docstore.Eq("uid", uid), docstore.Gt("timestamp", 0)},
		Sort:     []docstore.SortField{docstore.Asc("uid"), docstore.Desc("timestamp")},
		Index:    collectionUIDIndex,
	})
}

var _ collection.Repository = (*CollectionRepository)(nil)
