package collection

import "errors"

// Collection ドメインのエラー定義
var (
	ErrCollectionNotFound = errors.New("お気に入りが見つかりません")
	ErrUIDRequired        = errors.New("ユーザーIDは必須です")
	ErrRoomIDRequired     = errors.New("ルームIDは必須です")
)
