package room

import "context"

// Repository はルームリポジトリのインターフェース
type Repository interface {
	// Create は新しいルームを作成する
	Create(ctx context.Context, room *Room) error

	// GetByID はIDからルームを取得する
	GetByID(ctx context.Context, id string) (*Room, error)

	// ListByOwner はオーナーのルーム一覧を取得する。typ が空なら種別で絞り込まない
	ListByOwner(ctx context.Context, owner string, typ Type) ([]*Room, error)

	// BulkGet は複数IDのルームを取得する（存在しないIDは無視する）
	BulkGet(ctx context.Context, ids []string) ([]*Room, error)

	// Update はルームを更新する（楽観的ロック）
	Update(ctx context.Context, room *Room) error
}
