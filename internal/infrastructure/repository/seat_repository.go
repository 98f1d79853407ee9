package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/maskerliu/lynx-iot-server/internal/docstore"
	"github.com/maskerliu/lynx-iot-server/internal/domain/seat"
)

const seatRoomIndex = "idx-room"

type seatDoc struct {
	RoomID   string `json:"roomId"`
	Seq      int    `json:"seq"`
	Occupant string `json:"occupant,omitempty"`
}

func (d *seatDoc) toEntity(id, rev string) *seat.Seat {
	return &seat.Seat{ID: id, RoomID: d.RoomID, Seq: d.Seq, Occupant: d.Occupant, Rev: rev}
}

func seatToDoc(s *seat.Seat) seatDoc {
	return seatDoc{RoomID: s.RoomID, Seq: s.Seq, Occupant: s.Occupant}
}

type SeatRepository struct{ store docstore.Store }

func NewSeatRepository(store docstore.Store) *SeatRepository {
	return &SeatRepository{store: store}
}

// Init は (roomId, seq) のインデックスを作成する
func (r *SeatRepository) Init(ctx context.Context) error {
	return r.store.EnsureIndex(ctx, SeatCollection, docstore.Index{
		Name: seatRoomIndex, Fields: []string{"roomId", "seq"},
	})
}

func (r *SeatRepository) find(ctx context.Context, sel docstore.Selector, limit int) ([]*seat.Seat, error) {
	docs, err := r.store.Find(ctx, SeatCollection, docstore.Query{
		Selector: sel,
		Sort:     []docstore.SortField{docstore.Asc("roomId"), docstore.Asc("seq")},
		Index:    seatRoomIndex,
		Limit:    limit,
	})
	if err != nil {
		return nil, fmt.Errorf("座席取得に失敗: %w", err)
	}
	seats := make([]*seat.Seat, 0, len(docs))
	for _, doc := range docs {
		d, err := decode[seatDoc](doc)
		if err != nil {
			return nil, err
		}
		seats = append(seats, d.toEntity(doc.ID, doc.Rev))
	}
	return seats, nil
}

// GetSeat は (roomId, seq) に一致する座席のうち先頭の1件を返す
func (r *SeatRepository) GetSeat(ctx context.Context, roomID string, seq int) (*seat.Seat, error) {
	seats, err := r.find(ctx, docstore.Selector{
		docstore.Eq("roomId", roomID),
		docstore.Eq("seq", seq),
	}, 1)
	if err != nil {
		return nil, err
	}
	if len(seats) == 0 {
		return nil, seat.ErrSeatNotFound
	}
	return seats[0], nil
}

func (r *SeatRepository) ListSeats(ctx context.Context, roomID string) ([]*seat.Seat, error) {
	return r.find(ctx, docstore.Selector{
		docstore.Eq("roomId", roomID),
		docstore.Gt("seq", -1),
	}, 0)
}

// ReplaceLayout は既存座席の削除と新しい座席の挿入を1回の一括書き込みで行う
func (r *SeatRepository) ReplaceLayout(ctx context.Context, roomID string, seats []*seat.Seat) ([]*seat.Seat, error) {
	if err := seat.ValidateLayout(roomID, seats); err != nil {
		return nil, err
	}

	existing, err := r.find(ctx, docstore.Selector{docstore.Eq("roomId", roomID)}, 0)
	if err != nil {
		return nil, err
	}

	ops := make([]docstore.BulkOp, 0, len(existing)+len(seats))
	for _, s := range existing {
		ops = append(ops, docstore.DeleteOp(s.ID, s.Rev))
	}
	for _, s := range seats {
		body, err := encode(seatToDoc(s))
		if err != nil {
			return nil, err
		}
		ops = append(ops, docstore.InsertOp(docstore.Document{Body: body}))
	}
	if len(ops) == 0 {
		return seats, nil
	}

	results, err := r.store.BulkWrite(ctx, SeatCollection, ops)
	if err != nil {
		var bulkErr *docstore.BulkError
		if errors.As(err, &bulkErr) {
			return nil, toPartialFailure("replace", bulkErr, existing, seats)
		}
		return nil, fmt.Errorf("座席レイアウトの置き換えに失敗: %w", err)
	}

	offset := len(existing)
	for i, s := range seats {
		res := results[offset+i]
		s.ID = res.ID
		s.Rev = res.Rev
	}
	return seats, nil
}

// toPartialFailure は一括書き込みの失敗を座席単位の失敗に変換する
func toPartialFailure(op string, bulkErr *docstore.BulkError, deleted, inserted []*seat.Seat) *seat.PartialBulkFailure {
	failed := make([]seat.FailedItem, 0, len(bulkErr.Failed))
	for _, f := range bulkErr.Failed {
		item := seat.FailedItem{SeatID: f.ID, Err: f.Err}
		switch {
		case f.Index < len(deleted):
			item.Seq = deleted[f.Index].Seq
		case f.Index-len(deleted) < len(inserted):
			item.Seq = inserted[f.Index-len(deleted)].Seq
		}
		failed = append(failed, item)
	}
	return &seat.PartialBulkFailure{
		Operation: op,
		Failed:    failed,
		Succeeded: bulkErr.Applied,
	}
}

// ApplySeatUpdate は各座席を呼び出し元が読んだリビジョンで更新する
// 書き換えられるのは着席者だけで、保存済みの (roomId, seq) と食い違う座席は失敗として扱う
// 成功した座席はリビジョンを更新して返し、失敗した座席は *seat.PartialBulkFailure にまとめる
func (r *SeatRepository) ApplySeatUpdate(ctx context.Context, seats []*seat.Seat) ([]*seat.Seat, error) {
	updated := make([]*seat.Seat, 0, len(seats))
	var failed []seat.FailedItem

	for _, s := range seats {
		if err := r.applyOne(ctx, s); err != nil {
			failed = append(failed, seat.FailedItem{SeatID: s.ID, Seq: s.Seq, Err: err})
			continue
		}
		updated = append(updated, s)
	}

	if len(failed) > 0 {
		return updated, &seat.PartialBulkFailure{
			Operation: "update",
			Failed:    failed,
			Succeeded: len(updated),
		}
	}
	return updated, nil
}

func (r *SeatRepository) applyOne(ctx context.Context, s *seat.Seat) error {
	if err := s.Validate(); err != nil {
		return err
	}

	// 座席IDに対する (roomId, seq) はレイアウトの置き換え以外で変わらないため、
	// 読んでから書くまでの間に食い違うことはない
	stored, err := r.find(ctx, docstore.Selector{docstore.Eq(docstore.IDField, s.ID)}, 1)
	if err != nil {
		return err
	}
	if len(stored) == 0 {
		return fmt.Errorf("%w: id=%s", seat.ErrSeatNotFound, s.ID)
	}
	current := stored[0]
	switch {
	case current.RoomID != s.RoomID:
		return fmt.Errorf("%w: id=%s", seat.ErrRoomMismatch, s.ID)
	case current.Seq != s.Seq:
		return fmt.Errorf("%w: id=%s seq=%d (保存済み %d)", seat.ErrSeqImmutable, s.ID, s.Seq, current.Seq)
	}

	body, err := encode(seatDoc{RoomID: current.RoomID, Seq: current.Seq, Occupant: s.Occupant})
	if err != nil {
		return err
	}
	doc, err := r.store.Update(ctx, SeatCollection, docstore.Document{ID: s.ID, Rev: s.Rev, Body: body})
	if err != nil {
		return mapSeatWriteError(err)
	}
	s.Rev = doc.Rev
	return nil
}

func mapSeatWriteError(err error) error {
	switch {
	case errors.Is(err, docstore.ErrConflict):
		return fmt.Errorf("%w: %w", seat.ErrOptimisticLockConflict, err)
	case errors.Is(err, docstore.ErrNotFound):
		return fmt.Errorf("%w: %w", seat.ErrSeatNotFound, err)
	}
	return err
}

var _ seat.Repository = (*SeatRepository)(nil)
