package seatrequest

import "time"

// SeatRequest はルームへの着席申請を表す
// Seq が nil の場合は空席ならどこでもよい
type SeatRequest struct {
	ID        string
	RoomID    string
	UID       string
	Seq       *int
	Timestamp time.Time // この時刻を過ぎると処理対象になる
	Rev       string
}

// NewSeatRequest は新しい着席申請を作成する
func NewSeatRequest(roomID, uid string, seq *int, at time.Time) *SeatRequest {
	return &SeatRequest{
		RoomID:    roomID,
		UID:       uid,
		Seq:       seq,
		Timestamp: at,
	}
}

// IsAny は座席指定なしの申請かを返す
func (r *SeatRequest) IsAny() bool {
	return r.Seq == nil
}

// IsDue は now の時点で処理対象かを返す
func (r *SeatRequest) IsDue(now time.Time) bool {
	return r.Timestamp.Before(now)
}

// Validate は申請の検証を行う
func (r *SeatRequest) Validate() error {
	if r.RoomID == "" {
		return ErrRoomIDRequired
	}
	if r.UID == "" {
		return ErrUIDRequired
	}
	if r.Seq != nil && *r.Seq < 0 {
		return ErrInvalidSeq
	}
	if r.Timestamp.IsZero() {
		return ErrTimestampRequired
	}
	return nil
}
