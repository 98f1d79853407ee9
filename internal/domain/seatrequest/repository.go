package seatrequest

import (
	"context"
	"time"
)

// Repository は着席申請リポジトリのインターフェース
type Repository interface {
	// Get はルームとユーザーから申請を取得する
	Get(ctx context.Context, roomID, uid string) (*SeatRequest, error)

	// ListDue は timestamp が now 以前の申請を古い順に取得する
	ListDue(ctx context.Context, roomID string, now time.Time) ([]*SeatRequest, error)

	// ListExpired は全ルームから cutoff より前の申請を古い順に最大 limit 件取得する
	ListExpired(ctx context.Context, cutoff time.Time, limit int) ([]*SeatRequest, error)

	// Enqueue は申請を追加する。同じ (uid, roomId) が存在すれば ErrDuplicateRequest
	Enqueue(ctx context.Context, req *SeatRequest) error

	// Withdraw は (uid, roomId) の申請を削除する。存在しなければ何もせず false を返す
	Withdraw(ctx context.Context, roomID, uid string) (bool, error)

	// Remove は読み取り時のリビジョンを指定して申請を削除する
	Remove(ctx context.Context, req *SeatRequest) error
}
