package seat

import "time"

// EventType は座席イベントの種別
type EventType string

const (
	EventGranted        EventType = "seat.granted"
	EventReleased       EventType = "seat.released"
	EventLayoutReplaced EventType = "layout.replaced"
)

// Event は座席の状態変化を下流に通知するためのイベント
type Event struct {
	Type       EventType `json:"type"`
	RoomID     string    `json:"roomId"`
	Seq        int       `json:"seq"`
	UID        string    `json:"uid,omitempty"`
	SeatCount  int       `json:"seatCount,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}
