package collection

import "time"

// RoomCollection はユーザーがお気に入り登録したルーム
// 行が存在すること自体が「登録済み」を意味する
type RoomCollection struct {
	ID        string
	UID       string
	RoomID    string
	Timestamp time.Time
	Rev       string
}

// NewRoomCollection は新しいお気に入りを作成する
func NewRoomCollection(uid, roomID string) *RoomCollection {
	return &RoomCollection{
		UID:       uid,
		RoomID:    roomID,
		Timestamp: time.Now(),
	}
}

// Validate はお気に入りの検証を行う
func (c *RoomCollection) Validate() error {
	if c.UID == "" {
		return ErrUIDRequired
	}
	if c.RoomID == "" {
		return ErrRoomIDRequired
	}
	return nil
}
