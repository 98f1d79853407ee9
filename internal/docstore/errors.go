package docstore

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound      = errors.New("ドキュメントが見つかりません")
	ErrConflict      = errors.New("リビジョンが競合しました")
	ErrIndexNotFound = errors.New("インデックスが見つかりません")
	ErrInvalidQuery  = errors.New("検索条件が不正です")
)

// BulkError は一括書き込みで失敗した操作の一覧
// Applied は実際にストアへ反映された操作数（アトミックなストアでは失敗時0）
type BulkError struct {
	Failed  []BulkResult
	Applied int
}

func (e *BulkError) Error() string {
	parts := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		parts = append(parts, fmt.Sprintf("#%d %s %s: %v", f.Index, f.Kind, f.ID, f.Err))
	}
	return fmt.Sprintf("一括書き込みに失敗 (%d件失敗, %d件反映): %s",
		len(e.Failed), e.Applied, strings.Join(parts, "; "))
}

// Unwrap は各操作のエラーを返す（errors.Is で ErrConflict 等を判定できる）
func (e *BulkError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, f := range e.Failed {
		if f.Err != nil {
			errs = append(errs, f.Err)
		}
	}
	return errs
}
