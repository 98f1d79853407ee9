package docstore

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/oklog/ulid/v2"
)

// NewID は新しいドキュメントIDを採番する
func NewID() string {
	return ulid.Make().String()
}

// NextRev は現在のリビジョンから次のリビジョンを生成する
// 形式は "<世代>-<ULID>"。空文字からは世代1を返す
func NextRev(rev string) string {
	return fmt.Sprintf("%d-%s", Generation(rev)+1, strings.ToLower(ulid.Make().String()))
}

// Generation はリビジョンの世代番号を返す（解釈できなければ0）
func Generation(rev string) int {
	head, _, ok := strings.Cut(rev, "-")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(head)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
