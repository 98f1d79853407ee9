package gift

import "errors"

// Gift ドメインのエラー定義
var (
	ErrUIDRequired     = errors.New("ユーザーIDは必須です")
	ErrRoomIDRequired  = errors.New("ルームIDは必須です")
	ErrPayloadTooLarge = errors.New("ギフトの内容が大きすぎます")
	ErrInvalidPayload  = errors.New("ギフトの内容はJSONである必要があります")
)
