package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maskerliu/lynx-iot-server/internal/domain/room"
)

var (
	ErrCacheMiss = errors.New("キャッシュが見つかりません")
)

// RoomCache はルームメタデータのキャッシュを管理する
type RoomCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRoomCache は新しいRoomCacheインスタンスを作成する
func NewRoomCache(client redis.UniversalClient, ttl time.Duration) *RoomCache {
	return &RoomCache{client: client, ttl: ttl}
}

type cachedRoom struct {
	ID        string `json:"id"`
	Owner     string `json:"owner"`
	Type      string `json:"type"`
	Title     string `json:"title"`
	CreatedAt int64  `json:"createdAt"`
	Rev       string `json:"rev"`
}

// Get はルームをキャッシュから取得する
func (c *RoomCache) Get(ctx context.Context, id string) (*room.Room, error) {
	raw, err := c.client.Get(ctx, c.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("キャッシュ取得に失敗: %w", err)
	}

	var cr cachedRoom
	if err := json.Unmarshal(raw, &cr); err != nil {
		return nil, fmt.Errorf("キャッシュの復元に失敗: %w", err)
	}
	return &room.Room{
		ID:        cr.ID,
		Owner:     cr.Owner,
		Type:      room.Type(cr.Type),
		Title:     cr.Title,
		CreatedAt: time.UnixMilli(cr.CreatedAt),
		Rev:       cr.Rev,
	}, nil
}

// Set はルームをキャッシュに保存する
func (c *RoomCache) Set(ctx context.Context, r *room.Room) error {
	raw, err := json.Marshal(cachedRoom{
		ID:        r.ID,
		Owner:     r.Owner,
		Type:      string(r.Type),
		Title:     r.Title,
		CreatedAt: r.CreatedAt.UnixMilli(),
		Rev:       r.Rev,
	})
	if err != nil {
		return fmt.Errorf("キャッシュのエンコードに失敗: %w", err)
	}
	if err := c.client.Set(ctx, c.key(r.ID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("キャッシュ保存に失敗: %w", err)
	}
	return nil
}

// Delete はルームのキャッシュを無効化する
func (c *RoomCache) Delete(ctx context.Context, id string) error {
	if err := c.client.Del(ctx, c.key(id)).Err(); err != nil {
		return fmt.Errorf("キャッシュ無効化に失敗: %w", err)
	}
	return nil
}

func (c *RoomCache) key(id string) string {
	return fmt.Sprintf("room:meta:%s", id)
}
