package seat

import "context"

// Repository は座席リポジトリのインターフェース
type Repository interface {
	// GetSeat はルームと座席番号から座席を取得する
	GetSeat(ctx context.Context, roomID string, seq int) (*Seat, error)

	// ListSeats はルームの座席を seq 昇順で取得する
	ListSeats(ctx context.Context, roomID string) ([]*Seat, error)

	// ReplaceLayout はルームの座席を一括で置き換える（既存行の削除と新規行の挿入を1バッチで行う）
	ReplaceLayout(ctx context.Context, roomID string, seats []*Seat) ([]*Seat, error)

	// ApplySeatUpdate は各座席を楽観的ロックで更新する
	// 失敗した座席は *PartialBulkFailure で報告する
	ApplySeatUpdate(ctx context.Context, seats []*Seat) ([]*Seat, error)
}
