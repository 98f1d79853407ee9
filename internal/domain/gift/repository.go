package gift

import "context"

// Repository はギフトリポジトリのインターフェース
type Repository interface {
	// Send はギフトを追記する
	Send(ctx context.Context, g *Gift) error

	// ListBySender は送信者のギフトを新しい順に最大 limit 件取得する
	ListBySender(ctx context.Context, uid string, limit int) ([]*Gift, error)
}
