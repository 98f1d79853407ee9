package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/maskerliu/lynx-iot-server/internal/docstore"
	"github.com/maskerliu/lynx-iot-server/internal/domain/seatrequest"
)

const seatRequestRoomIndex = "idx-room"

type seatRequestDoc struct {
	RoomID    string `json:"roomId"`
	UID       string `json:"uid"`
	Seq       *int   `json:"seq"`
	Timestamp int64  `json:"timestamp"`
}

func (d *seatRequestDoc) toEntity(id, rev string) *seatrequest.SeatRequest {
	return &seatrequest.SeatRequest{
		ID: id, RoomID: d.RoomID, UID: d.UID, Seq: d.Seq,
		Timestamp: fromMillis(d.Timestamp), Rev: rev,
	}
}

type SeatRequestRepository struct{ store docstore.Store }

func NewSeatRequestRepository(store docstore.Store) *SeatRequestRepository {
	return &SeatRequestRepository{store: store}
}

// Init は (roomId, timestamp) のインデックスを作成する
func (r *SeatRequestRepository) Init(ctx context.Context) error {
	return r.store.EnsureIndex(ctx, SeatRequestCollection, docstore.Index{
		Name: seatRequestRoomIndex, Fields: []string{"roomId", "timestamp"},
	})
}

func (r *SeatRequestRepository) find(ctx context.Context, q docstore.Query) ([]*seatrequest.SeatRequest, error) {
	docs, err := r.store.Find(ctx, SeatRequestCollection, q)
	if err != nil {
		return nil, fmt.Errorf("着席申請の取得に失敗: %w", err)
	}
	reqs := make([]*seatrequest.SeatRequest, 0, len(docs))
	for _, doc := range docs {
		d, err := decode[seatRequestDoc](doc)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, d.toEntity(doc.ID, doc.Rev))
	}
	return reqs, nil
}

func (r *SeatRequestRepository) Get(ctx context.Context, roomID, uid string) (*seatrequest.SeatRequest, error) {
	reqs, err := r.find(ctx, docstore.Query{
		Selector: docstore.Selector{docstore.Eq("uid", uid), docstore.Eq("roomId", roomID)},
		Limit:    1,
	})
	if err != nil {
		return nil, err
	}
	if len(reqs) == 0 {
		return nil, seatrequest.ErrRequestNotFound
	}
	return reqs[0], nil
}

func (r *SeatRequestRepository) ListDue(ctx context.Context, roomID string, now time.Time) ([]*seatrequest.SeatRequest, error) {
	return r.find(ctx, docstore.Query{
		Selector: docstore.Selector{
			docstore.Eq("roomId", roomID),
			docstore.Lte("timestamp", toMillis(now)),
		},
		Sort:  []docstore.SortField{docstore.Asc("roomId"), docstore.Asc("timestamp")},
		Index: seatRequestRoomIndex,
	})
}

func (r *SeatRequestRepository) ListExpired(ctx context.Context, cutoff time.Time, limit int) ([]*seatrequest.SeatRequest, error) {
	return r.find(ctx, docstore.Query{
		Selector: docstore.Selector{docstore.Lt("timestamp", toMillis(cutoff))},
		Sort:     []docstore.SortField{docstore.Asc("timestamp")},
		Limit:    limit,
	})
}

// Enqueue は同じ (uid, roomId) の申請がなければ挿入する
// 同一ペアの同時呼び出しは呼び出し側で直列化すること
func (r *SeatRequestRepository) Enqueue(ctx context.Context, req *seatrequest.SeatRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	_, err := r.Get(ctx, req.RoomID, req.UID)
	switch {
	case err == nil:
		return seatrequest.ErrDuplicateRequest
	case !errors.Is(err, seatrequest.ErrRequestNotFound):
		return err
	}

	body, err := encode(seatRequestDoc{
		RoomID: req.RoomID, UID: req.UID, Seq: req.Seq, Timestamp: toMillis(req.Timestamp),
	})
	if err != nil {
		return err
	}
	doc, err := r.store.Insert(ctx, SeatRequestCollection, docstore.Document{Body: body})
	if err != nil {
		return fmt.Errorf("着席申請の追加に失敗: %w", err)
	}
	req.ID = doc.ID
	req.Rev = doc.Rev
	return nil
}

func (r *SeatRequestRepository) Withdraw(ctx context.Context, roomID, uid string) (bool, error) {
	req, err := r.Get(ctx, roomID, uid)
	if errors.Is(err, seatrequest.ErrRequestNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := r.Remove(ctx, req); err != nil {
		if errors.Is(err, seatrequest.ErrRequestNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *SeatRequestRepository) Remove(ctx context.Context, req *seatrequest.SeatRequest) error {
	err := r.store.Delete(ctx, SeatRequestCollection, req.ID, req.Rev)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, docstore.ErrNotFound):
		return fmt.Errorf("%w: %w", seatrequest.ErrRequestNotFound, err)
	case errors.Is(err, docstore.ErrConflict):
		return fmt.Errorf("%w: %w", seatrequest.ErrOptimisticLockConflict, err)
	}
	return fmt.Errorf("着席申請の削除に失敗: %w", err)
}

var _ seatrequest.Repository = (*SeatRequestRepository)(nil)
