package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/maskerliu/lynx-iot-server/internal/domain/room"
	"github.com/maskerliu/lynx-iot-server/internal/domain/seat"
	"github.com/maskerliu/lynx-iot-server/internal/domain/seatrequest"
	"github.com/maskerliu/lynx-iot-server/internal/pkg/logger"
	"github.com/maskerliu/lynx-iot-server/internal/pkg/metrics"
)

// SeatArbitrationService は座席の着席・退席と着席申請を調停する
//
// 単一ドキュメントの更新は楽観的ロックで守り、競合したら最新の状態を読み直して再試行する。
// レイアウトの置き換えだけは複数ドキュメントにまたがるため、ルーム単位のゲートの排他側で行い、
// それ以外の座席操作は共有側で行う。
type SeatArbitrationService struct {
	rooms    roomReader
	seats    seat.Repository
	requests seatrequest.Repository
	gate     Gate
	policy   RetryPolicy
	events   EventPublisher
	metrics  *metrics.Metrics
	now      func() time.Time
}

// ArbitrationOption は SeatArbitrationService の設定
type ArbitrationOption func(*SeatArbitrationService)

func WithRetryPolicy(p RetryPolicy) ArbitrationOption {
	return func(s *SeatArbitrationService) { s.policy = p }
}

func WithEventPublisher(p EventPublisher) ArbitrationOption {
	return func(s *SeatArbitrationService) { s.events = p }
}

func WithMetrics(m *metrics.Metrics) ArbitrationOption {
	return func(s *SeatArbitrationService) { s.metrics = m }
}

func WithRoomCache(c RoomCache) ArbitrationOption {
	return func(s *SeatArbitrationService) { s.rooms.cache = c }
}

func WithClock(now func() time.Time) ArbitrationOption {
	return func(s *SeatArbitrationService) { s.now = now }
}

func NewSeatArbitrationService(rr room.Repository, sr seat.Repository, qr seatrequest.Repository, gate Gate, opts ...ArbitrationOption) *SeatArbitrationService {
	s := &SeatArbitrationService{
		rooms:    roomReader{repo: rr},
		seats:    sr,
		requests: qr,
		gate:     gate,
		policy:   DefaultRetryPolicy(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// 状態遷移の種別（メトリクスのラベル）
const (
	opRequest  = "request"
	opGrant    = "grant"
	opRelease  = "release"
	opWithdraw = "withdraw"
	opReplace  = "replace"
	opUpdate   = "update"
	opExpire   = "expire"
)

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, seat.ErrSeatTaken), errors.Is(err, seat.ErrNoEmptySeat):
		return "seat_taken"
	case errors.Is(err, seatrequest.ErrRequestGone):
		return "request_gone"
	case errors.Is(err, seatrequest.ErrDuplicateRequest):
		return "duplicate"
	case IsConflict(err):
		return "conflict"
	case errors.Is(err, seat.ErrPartialBulkFailure):
		return "partial_failure"
	case errors.Is(err, room.ErrRoomNotFound), errors.Is(err, seat.ErrSeatNotFound):
		return "not_found"
	}
	return "error"
}

func (s *SeatArbitrationService) attempt(ctx context.Context, operation string, fields []zap.Field, op func(attempt int) error) error {
	return Attempt(ctx, s.policy, func(n int) error {
		err := op(n)
		if IsConflict(err) {
			s.metrics.ObserveConflict(operation)
			logger.Debug("楽観的ロック競合のため再試行",
				append(fields, zap.String("operation", operation), zap.Int("attempt", n), zap.Error(err))...)
		}
		return err
	})
}

func (s *SeatArbitrationService) roomGate(ctx context.Context, mode, roomID string) (func(), error) {
	release, err := enterGate(ctx, s.gate, s.metrics, mode, roomGateKey(roomID))
	if err != nil {
		return nil, fmt.Errorf("ルームゲートの取得に失敗: %w", err)
	}
	return release, nil
}

// GetSeat はルームの座席を1件取得する
func (s *SeatArbitrationService) GetSeat(ctx context.Context, roomID string, seq int) (*seat.Seat, error) {
	if _, err := s.rooms.get(ctx, roomID); err != nil {
		return nil, err
	}
	release, err := s.roomGate(ctx, gateShared, roomID)
	if err != nil {
		return nil, err
	}
	defer release()

	return s.seats.GetSeat(ctx, roomID, seq)
}

// ListSeats はルームの座席を seq 昇順で取得する
func (s *SeatArbitrationService) ListSeats(ctx context.Context, roomID string) ([]*seat.Seat, error) {
	if _, err := s.rooms.get(ctx, roomID); err != nil {
		return nil, err
	}
	release, err := s.roomGate(ctx, gateShared, roomID)
	if err != nil {
		return nil, err
	}
	defer release()

	return s.seats.ListSeats(ctx, roomID)
}

type ReplaceLayoutInput struct {
	RoomID string
	// Actor が空でなければルームのオーナーであることを確認する
	Actor string
	Seats []*seat.Seat
}

// ReplaceLayout はルームの座席レイアウトを丸ごと置き換える
// 置き換え中は同じルームの着席・退席・読み取りを待たせる
func (s *SeatArbitrationService) ReplaceLayout(ctx context.Context, in ReplaceLayoutInput) (seats []*seat.Seat, err error) {
	defer func() { s.metrics.ObserveTransition(opReplace, resultLabel(err)) }()

	rm, err := s.rooms.get(ctx, in.RoomID)
	if err != nil {
		return nil, err
	}
	if in.Actor != "" && !rm.IsOwnedBy(in.Actor) {
		return nil, room.ErrNotOwner
	}
	if err := seat.ValidateLayout(in.RoomID, in.Seats); err != nil {
		return nil, err
	}

	release, err := s.roomGate(ctx, gateExclusive, in.RoomID)
	if err != nil {
		return nil, err
	}
	defer release()

	seats, err = s.seats.ReplaceLayout(ctx, in.RoomID, in.Seats)
	if err != nil {
		return nil, err
	}

	logger.Info("座席レイアウトを置き換え",
		zap.String("room_id", in.RoomID),
		zap.Int("seats", len(seats)),
	)
	publish(ctx, s.events, seat.Event{
		Type: seat.EventLayoutReplaced, RoomID: in.RoomID, SeatCount: len(seats), OccurredAt: s.now(),
	})
	return seats, nil
}

// InitLayout は 0..count-1 の空席でレイアウトを初期化する
func (s *SeatArbitrationService) InitLayout(ctx context.Context, roomID string, count int) ([]*seat.Seat, error) {
	layout, err := seat.NewLayout(roomID, count)
	if err != nil {
		return nil, err
	}
	return s.ReplaceLayout(ctx, ReplaceLayoutInput{RoomID: roomID, Seats: layout})
}

type UpdateSeatsInput struct {
	RoomID string
	// Actor が空でなければルームのオーナーであることを確認する
	Actor string
	Seats []*seat.Seat
}

// UpdateSeats は呼び出し元が読んだリビジョンで複数の座席の着席者を更新する
// 失敗した座席は *seat.PartialBulkFailure で返し、再試行は呼び出し元に任せる
func (s *SeatArbitrationService) UpdateSeats(ctx context.Context, in UpdateSeatsInput) (updated []*seat.Seat, err error) {
	defer func() { s.metrics.ObserveTransition(opUpdate, resultLabel(err)) }()

	rm, err := s.rooms.get(ctx, in.RoomID)
	if err != nil {
		return nil, err
	}
	if in.Actor != "" && !rm.IsOwnedBy(in.Actor) {
		return nil, room.ErrNotOwner
	}
	for _, st := range in.Seats {
		if st.RoomID == "" {
			st.RoomID = in.RoomID
		}
		if st.RoomID != in.RoomID {
			return nil, fmt.Errorf("%w: seq=%d", seat.ErrRoomMismatch, st.Seq)
		}
	}

	release, err := s.roomGate(ctx, gateShared, in.RoomID)
	if err != nil {
		return nil, err
	}
	defer release()

	return s.seats.ApplySeatUpdate(ctx, in.Seats)
}

type RequestSeatInput struct {
	RoomID string
	UID    string
	// Seq が nil なら空席ならどこでもよい
	Seq *int
	// At はこの申請が処理対象になる時刻。ゼロ値なら現在時刻
	At time.Time
}

// RequestSeat は着席申請を登録する（None → Pending）
func (s *SeatArbitrationService) RequestSeat(ctx context.Context, in RequestSeatInput) (req *seatrequest.SeatRequest, err error) {
	defer func() { s.metrics.ObserveTransition(opRequest, resultLabel(err)) }()

	at := in.At
	if at.IsZero() {
		at = s.now()
	}
	req = seatrequest.NewSeatRequest(in.RoomID, in.UID, in.Seq, at)
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.rooms.get(ctx, in.RoomID); err != nil {
		return nil, err
	}
	if in.Seq != nil {
		if _, err := s.seats.GetSeat(ctx, in.RoomID, *in.Seq); err != nil {
			return nil, err
		}
	}

	release, err := enterGate(ctx, s.gate, s.metrics, gateExclusive, seatRequestGateKey(in.RoomID, in.UID))
	if err != nil {
		return nil, fmt.Errorf("申請ゲートの取得に失敗: %w", err)
	}
	defer release()

	if err := s.requests.Enqueue(ctx, req); err != nil {
		return nil, err
	}
	s.metrics.AddPendingRequests(1)

	logger.Info("着席申請を受付",
		zap.String("room_id", in.RoomID),
		zap.String("uid", in.UID),
		zap.Time("at", at),
	)
	return req, nil
}

// WithdrawRequest は着席申請を取り下げる（Pending → None）
// 申請がなければ何もせず false を返す
func (s *SeatArbitrationService) WithdrawRequest(ctx context.Context, roomID, uid string) (removed bool, err error) {
	defer func() {
		result := resultLabel(err)
		if err == nil && !removed {
			result = "noop"
		}
		s.metrics.ObserveTransition(opWithdraw, result)
	}()

	release, err := enterGate(ctx, s.gate, s.metrics, gateExclusive, seatRequestGateKey(roomID, uid))
	if err != nil {
		return false, fmt.Errorf("申請ゲートの取得に失敗: %w", err)
	}
	defer release()

	removed, err = s.requests.Withdraw(ctx, roomID, uid)
	if err != nil {
		return false, err
	}
	if removed {
		s.metrics.AddPendingRequests(-1)
	}
	return removed, nil
}

// ListDueRequests は処理対象になった申請を古い順に返す
// timestamp が未来の申請は含まない
func (s *SeatArbitrationService) ListDueRequests(ctx context.Context, roomID string) ([]*seatrequest.SeatRequest, error) {
	if _, err := s.rooms.get(ctx, roomID); err != nil {
		return nil, err
	}
	return s.requests.ListDue(ctx, roomID, s.now())
}

type GrantSeatInput struct {
	RoomID string
	UID    string
	// Actor が空でなければルームのオーナーであることを確認する
	Actor string
	// Seq を指定すると申請時の座席より優先する
	Seq *int
}

// GrantSeat は保留中の申請を承認して座席に着席させる（Pending → None, Empty → Occupied）
//
// 試行ごとに申請と座席を読み直し、座席の更新と申請の削除をそれぞれ楽観的ロックで書き込む。
// どちらかが競合したら最初からやり直す。座席を書き込んだ後に申請が消えていた場合は
// 座席を元に戻して ErrRequestGone を返す。
func (s *SeatArbitrationService) GrantSeat(ctx context.Context, in GrantSeatInput) (granted *seat.Seat, err error) {
	defer func() { s.metrics.ObserveTransition(opGrant, resultLabel(err)) }()

	rm, err := s.rooms.get(ctx, in.RoomID)
	if err != nil {
		return nil, err
	}
	if in.Actor != "" && !rm.IsOwnedBy(in.Actor) {
		return nil, room.ErrNotOwner
	}
	release, err := s.roomGate(ctx, gateShared, in.RoomID)
	if err != nil {
		return nil, err
	}
	defer release()

	fields := []zap.Field{zap.String("room_id", in.RoomID), zap.String("uid", in.UID)}

	// occupied は書き込み済みでまだ申請を削除できていない座席
	var occupied *seat.Seat
	err = s.attempt(ctx, opGrant, fields, func(int) error {
		req, err := s.requests.Get(ctx, in.RoomID, in.UID)
		if errors.Is(err, seatrequest.ErrRequestNotFound) {
			return fmt.Errorf("%w: room=%s uid=%s", seatrequest.ErrRequestGone, in.RoomID, in.UID)
		}
		if err != nil {
			return err
		}

		var target *seat.Seat
		if occupied != nil {
			// 前の試行で着席させた座席を引き継ぐ
			target, err = s.seats.GetSeat(ctx, in.RoomID, occupied.Seq)
		} else {
			target, err = s.resolveTarget(ctx, in, req)
		}
		if err != nil {
			return err
		}

		if !target.IsOccupiedBy(in.UID) {
			if err := target.Occupy(in.UID); err != nil {
				return fmt.Errorf("%w: room=%s seq=%d", err, in.RoomID, target.Seq)
			}
			if _, err := s.seats.ApplySeatUpdate(ctx, []*seat.Seat{target}); err != nil {
				return err
			}
			occupied = target
		}

		if err := s.requests.Remove(ctx, req); err != nil {
			if errors.Is(err, seatrequest.ErrRequestNotFound) {
				return fmt.Errorf("%w: room=%s uid=%s", seatrequest.ErrRequestGone, in.RoomID, in.UID)
			}
			return err
		}
		granted = target
		return nil
	})
	if err != nil {
		if occupied != nil {
			s.undoOccupy(ctx, occupied, in.UID)
		}
		return nil, err
	}

	s.metrics.AddPendingRequests(-1)
	logger.Info("着席を承認",
		zap.String("room_id", in.RoomID),
		zap.String("uid", in.UID),
		zap.Int("seq", granted.Seq),
	)
	publish(ctx, s.events, seat.Event{
		Type: seat.EventGranted, RoomID: in.RoomID, Seq: granted.Seq, UID: in.UID, OccurredAt: s.now(),
	})
	return granted, nil
}

// resolveTarget は承認対象の座席を決める
// 明示指定 > 申請時の指定 > seq が最も小さい空席 の順
func (s *SeatArbitrationService) resolveTarget(ctx context.Context, in GrantSeatInput, req *seatrequest.SeatRequest) (*seat.Seat, error) {
	seq := in.Seq
	if seq == nil {
		seq = req.Seq
	}
	if seq != nil {
		return s.seats.GetSeat(ctx, in.RoomID, *seq)
	}

	seats, err := s.seats.ListSeats(ctx, in.RoomID)
	if err != nil {
		return nil, err
	}
	if st, ok := seat.FirstEmpty(seats); ok {
		return st, nil
	}
	return nil, fmt.Errorf("%w: room=%s", seat.ErrNoEmptySeat, in.RoomID)
}

// undoOccupy は承認に失敗したときに書き込み済みの着席を取り消す
func (s *SeatArbitrationService) undoOccupy(ctx context.Context, occupied *seat.Seat, uid string) {
	err := Attempt(ctx, s.policy, func(int) error {
		current, err := s.seats.GetSeat(ctx, occupied.RoomID, occupied.Seq)
		if err != nil {
			return err
		}
		if !current.IsOccupiedBy(uid) {
			return nil
		}
		current.Vacate()
		_, err = s.seats.ApplySeatUpdate(ctx, []*seat.Seat{current})
		return err
	})
	if err != nil {
		logger.Error("着席の取り消しに失敗",
			zap.String("room_id", occupied.RoomID),
			zap.Int("seq", occupied.Seq),
			zap.String("uid", uid),
			zap.Error(err),
		)
		return
	}
	logger.Warn("申請が消えていたため着席を取り消し",
		zap.String("room_id", occupied.RoomID),
		zap.Int("seq", occupied.Seq),
		zap.String("uid", uid),
	)
}

// ReleaseSeat は座席を空ける（Occupied(uid) → Empty）
// 座席が既に空いているか別のユーザーが着席している場合は何もせず false を返す
func (s *SeatArbitrationService) ReleaseSeat(ctx context.Context, roomID string, seq int, uid string) (released bool, err error) {
	defer func() {
		result := resultLabel(err)
		if err == nil && !released {
			result = "noop"
		}
		s.metrics.ObserveTransition(opRelease, result)
	}()

	if _, err := s.rooms.get(ctx, roomID); err != nil {
		return false, err
	}
	release, err := s.roomGate(ctx, gateShared, roomID)
	if err != nil {
		return false, err
	}
	defer release()

	fields := []zap.Field{zap.String("room_id", roomID), zap.Int("seq", seq), zap.String("uid", uid)}
	err = s.attempt(ctx, opRelease, fields, func(int) error {
		released = false
		current, err := s.seats.GetSeat(ctx, roomID, seq)
		if err != nil {
			return err
		}
		if !current.IsOccupiedBy(uid) {
			return nil
		}
		current.Vacate()
		if _, err := s.seats.ApplySeatUpdate(ctx, []*seat.Seat{current}); err != nil {
			return err
		}
		released = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if released {
		logger.Info("座席を解放", fields...)
		publish(ctx, s.events, seat.Event{
			Type: seat.EventReleased, RoomID: roomID, Seq: seq, UID: uid, OccurredAt: s.now(),
		})
	}
	return released, nil
}

// ExpireStaleRequests は timestamp が olderThan より古い申請を最大 limit 件削除する
func (s *SeatArbitrationService) ExpireStaleRequests(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	cutoff := s.now().Add(-olderThan)
	stale, err := s.requests.ListExpired(ctx, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("期限切れ申請の取得に失敗: %w", err)
	}

	expired := 0
	for _, req := range stale {
		ok, err := s.expireOne(ctx, req)
		if err != nil {
			logger.Warn("期限切れ申請の削除に失敗",
				zap.String("room_id", req.RoomID),
				zap.String("uid", req.UID),
				zap.Error(err),
			)
			s.metrics.ObserveTransition(opExpire, resultLabel(err))
			continue
		}
		if ok {
			expired++
			s.metrics.AddPendingRequests(-1)
			s.metrics.ObserveTransition(opExpire, "success")
		}
	}
	return expired, nil
}

func (s *SeatArbitrationService) expireOne(ctx context.Context, req *seatrequest.SeatRequest) (bool, error) {
	release, err := enterGate(ctx, s.gate, s.metrics, gateExclusive, seatRequestGateKey(req.RoomID, req.UID))
	if err != nil {
		return false, err
	}
	defer release()

	if err := s.requests.Remove(ctx, req); err != nil {
		if errors.Is(err, seatrequest.ErrRequestNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
