package gift

import (
	"encoding/json"
	"time"
)

// Gift はルーム内で送られたギフト（追記のみ）
// Payload の中身はクライアントが決める
type Gift struct {
	ID        string
	UID       string
	RoomID    string
	Payload   json.RawMessage
	Timestamp time.Time
}

// MaxPayloadSize はペイロードの最大バイト数
const MaxPayloadSize = 4 << 10

// NewGift は新しいギフトを作成する
func NewGift(uid, roomID string, payload json.RawMessage) *Gift {
	return &Gift{
		UID:       uid,
		RoomID:    roomID,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// Validate はギフトの検証を行う
func (g *Gift) Validate() error {
	if g.UID == "" {
		return ErrUIDRequired
	}
	if g.RoomID == "" {
		return ErrRoomIDRequired
	}
	if len(g.Payload) > MaxPayloadSize {
		return ErrPayloadTooLarge
	}
	if len(g.Payload) > 0 && !json.Valid(g.Payload) {
		return ErrInvalidPayload
	}
	return nil
}
