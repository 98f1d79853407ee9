package room

import "errors"

// Room ドメインのエラー定義
var (
	ErrRoomNotFound           = errors.New("ルームが見つかりません")
	ErrOwnerRequired          = errors.New("オーナーは必須です")
	ErrTypeRequired           = errors.New("ルーム種別は必須です")
	ErrTitleTooLong           = errors.New("タイトルが長すぎます")
	ErrNotOwner               = errors.New("ルームのオーナーではありません")
	ErrOptimisticLockConflict = errors.New("楽観的ロックの競合が発生しました")
)
