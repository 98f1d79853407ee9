package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/maskerliu/lynx-iot-server/internal/docstore"
	"github.com/maskerliu/lynx-iot-server/internal/domain/room"
)

const roomOwnerIndex = "idx-owner"

type roomDoc struct {
	Owner     string `json:"owner"`
	Type      string `json:"type"`
	Title     string `json:"title,omitempty"`
	CreatedAt int64  `json:"createdAt"`
}

func (d *roomDoc) toEntity(id, rev string) *room.Room {
	return &room.Room{
		ID: id, Owner: d.Owner, Type: room.Type(d.Type), Title: d.Title,
		CreatedAt: fromMillis(d.CreatedAt), Rev: rev,
	}
}

func roomToDoc(rm *room.Room) roomDoc {
	return roomDoc{Owner: rm.Owner, Type: string(rm.Type), Title: rm.Title, CreatedAt: toMillis(rm.CreatedAt)}
}

type RoomRepository struct{ store docstore.Store }

func NewRoomRepository(store docstore.Store) *RoomRepository {
	return &RoomRepository{store: store}
}

// Init は owner のインデックスを作成する
func (r *RoomRepository) Init(ctx context.Context) error {
	return r.store.EnsureIndex(ctx, RoomCollection, docstore.Index{
		Name: roomOwnerIndex, Fields: []string{"owner"},
	})
}

func (r *RoomRepository) find(ctx context.Context, q docstore.Query) ([]*room.Room, error) {
	docs, err := r.store.Find(ctx, RoomCollection, q)
	if err != nil {
		return nil, fmt.Errorf("ルーム取得に失敗: %w", err)
	}
	rooms := make([]*room.Room, 0, len(docs))
	for _, doc := range docs {
		d, err := decode[roomDoc](doc)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, d.toEntity(doc.ID, doc.Rev))
	}
	return rooms, nil
}

func (r *RoomRepository) Create(ctx context.Context, rm *room.Room) error {
	body, err := encode(roomToDoc(rm))
	if err != nil {
		return err
	}
	doc, err := r.store.Insert(ctx, RoomCollection, docstore.Document{ID: rm.ID, Body: body})
	if err != nil {
		return fmt.Errorf("ルーム作成に失敗: %w", err)
	}
	rm.ID = doc.ID
	rm.Rev = doc.Rev
	return nil
}

func (r *RoomRepository) GetByID(ctx context.Context, id string) (*room.Room, error) {
	rooms, err := r.find(ctx, docstore.Query{
		Selector: docstore.Selector{docstore.Eq(docstore.IDField, id)},
		Limit:    1,
	})
	if err != nil {
		return nil, err
	}
	if len(rooms) == 0 {
		return nil, room.ErrRoomNotFound
	}
	return rooms[0], nil
}

func (r *RoomRepository) ListByOwner(ctx context.Context, owner string, typ room.Type) ([]*room.Room, error) {
	sel := docstore.Selector{docstore.Eq("owner", owner)}
	if typ != "" {
		sel = append(sel, docstore.Eq("type", string(typ)))
	}
	return r.find(ctx, docstore.Query{Selector: sel, Index: roomOwnerIndex})
}

func (r *RoomRepository) BulkGet(ctx context.Context, ids []string) ([]*room.Room, error) {
	if len(ids) == 0 {
		return []*room.Room{}, nil
	}
	return r.find(ctx, docstore.Query{
		Selector: docstore.Selector{docstore.In(docstore.IDField, ids)},
	})
}

func (r *RoomRepository) Update(ctx context.Context, rm *room.Room) error {
	body, err := encode(roomToDoc(rm))
	if err != nil {
		return err
	}
	doc, err := r.store.Update(ctx, RoomCollection, docstore.Document{ID: rm.ID, Rev: rm.Rev, Body: body})
	switch {
	case err == nil:
		rm.Rev = doc.Rev
		return nil
	case errors.Is(err, docstore.ErrNotFound):
		return room.ErrRoomNotFound
	case errors.Is(err, docstore.ErrConflict):
		return fmt.Errorf("%w: %w", room.ErrOptimisticLockConflict, err)
	}
	return fmt.Errorf("ルーム更新に失敗: %w", err)
}

var _ room.Repository = (*RoomRepository)(nil)
