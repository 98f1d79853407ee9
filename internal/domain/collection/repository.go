package collection

import "context"

// Repository はお気に入りリポジトリのインターフェース
type Repository interface {
	// Find は (uid, roomId) のお気に入りを取得する
	Find(ctx context.Context, uid, roomID string) (*RoomCollection, error)

	// Add はお気に入りを追加する
	Add(ctx context.Context, c *RoomCollection) error

	// Remove はお気に入りを削除する
	Remove(ctx context.Context, c *RoomCollection) error

	// ListByUser はユーザーのお気に入りを新しい順に取得する
	ListByUser(ctx context.Context, uid string) ([]*RoomCollection, error)
}
