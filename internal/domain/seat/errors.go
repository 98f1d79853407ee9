package seat

import (
	"errors"
	"fmt"
	"strings"
)

// Seat ドメインのエラー定義
var (
	ErrSeatNotFound           = errors.New("座席が見つかりません")
	ErrSeatTaken              = errors.New("座席は既に使用されています")
	ErrNoEmptySeat            = errors.New("空席がありません")
	ErrRoomIDRequired         = errors.New("ルームIDは必須です")
	ErrUIDRequired            = errors.New("ユーザーIDは必須です")
	ErrInvalidSeq             = errors.New("座席番号は0以上である必要があります")
	ErrInvalidSeatCount       = errors.New("座席数は0以上である必要があります")
	ErrDuplicateSeq           = errors.New("座席番号が重複しています")
	ErrRoomMismatch           = errors.New("座席が別のルームに属しています")
	ErrSeqImmutable           = errors.New("座席番号は変更できません")
	ErrOptimisticLockConflict = errors.New("楽観的ロックの競合が発生しました")
	ErrPartialBulkFailure     = errors.New("座席の一括書き込みが一部失敗しました")
)

// FailedItem は一括書き込みで失敗した座席
type FailedItem struct {
	SeatID string
	Seq    int
	Err    error
}

// PartialBulkFailure は一括書き込みで失敗した座席の一覧
// errors.Is で ErrPartialBulkFailure と各座席のエラー（競合など）の両方を判定できる
type PartialBulkFailure struct {
	Operation string
	Failed    []FailedItem
	Succeeded int
}

func (e *PartialBulkFailure) Error() string {
	parts := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		parts = append(parts, fmt.Sprintf("seq=%d id=%s: %v", f.Seq, f.SeatID, f.Err))
	}
	return fmt.Sprintf("%s: %s (%d件失敗, %d件成功): %s",
		ErrPartialBulkFailure.Error(), e.Operation, len(e.Failed), e.Succeeded, strings.Join(parts, "; "))
}

func (e *PartialBulkFailure) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed)+1)
	errs = append(errs, ErrPartialBulkFailure)
	for _, f := range e.Failed {
		if f.Err != nil {
			errs = append(errs, f.Err)
		}
	}
	return errs
}

// FailedSeqs は失敗した座席番号を返す
func (e *PartialBulkFailure) FailedSeqs() []int {
	seqs := make([]int, len(e.Failed))
	for i, f := range e.Failed {
		seqs[i] = f.Seq
	}
	return seqs
}
