// Package repository はドキュメントストア上にドメインのリポジトリを実装する
// どのストア実装（memory / postgres / sqlite）でも同じコードで動作する
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/maskerliu/lynx-iot-server/internal/docstore"
)

// コレクション名
const (
	RoomCollection        = "rooms"
	SeatCollection        = "seats"
	SeatRequestCollection = "seat_requests"
	CollectionCollection  = "room_collections"
	GiftCollection        = "gifts"
)

// Initializer は起動時にインデックスを用意するリポジトリ
type Initializer interface {
	Init(ctx context.Context) error
}

// InitAll は全リポジトリのインデックスを作成する
func InitAll(ctx context.Context, repos ...Initializer) error {
	for _, r := range repos {
		if err := r.Init(ctx); err != nil {
			return err
		}
	}
	return nil
}

func encode(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("ドキュメントのエンコードに失敗: %w", err)
	}
	return b, nil
}

func decode[T any](doc docstore.Document) (*T, error) {
	var v T
	if err := json.Unmarshal(doc.Body, &v); err != nil {
		return nil, fmt.Errorf("ドキュメント %s のデコードに失敗: %w", doc.ID, err)
	}
	return &v, nil
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}
