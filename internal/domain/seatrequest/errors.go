package seatrequest

import "errors"

// SeatRequest ドメインのエラー定義
var (
	ErrRequestNotFound        = errors.New("着席申請が見つかりません")
	ErrDuplicateRequest       = errors.New("同じルームへの着席申請が既に存在します")
	ErrRequestGone            = errors.New("着席申請は既に取り下げ・承認・期限切れのいずれかです")
	ErrRoomIDRequired         = errors.New("ルームIDは必須です")
	ErrUIDRequired            = errors.New("ユーザーIDは必須です")
	ErrInvalidSeq             = errors.New("座席番号は0以上である必要があります")
	ErrTimestampRequired      = errors.New("申請時刻は必須です")
	ErrOptimisticLockConflict = errors.New("楽観的ロックの競合が発生しました")
)

// ErrAlreadyPending は保留中の申請がある状態での再申請
var ErrAlreadyPending = ErrDuplicateRequest
