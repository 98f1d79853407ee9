package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maskerliu/lynx-iot-server/internal/domain/room"
)

func TestRoomCache(t *testing.T) {
	mr, client := newTestClient(t)
	cache := NewRoomCache(client, time.Minute)
	ctx := context.Background()

	created := time.UnixMilli(1700000000123)
	r := &room.Room{ID: "room-1", Owner: "u1", Type: "voice", Title: "雑談", CreatedAt: created, Rev: "1-abc"}

	t.Run("未保存ならキャッシュミス", func(t *testing.T) {
		_, err := cache.Get(ctx, "room-1")
		assert.ErrorIs(t, err, ErrCacheMiss)
	})

	t.Run("保存したルームを取得できる", func(t *testing.T) {
		require.NoError(t, cache.Set(ctx, r))

		got, err := cache.Get(ctx, "room-1")
		require.NoError(t, err)
		assert.Equal(t, r.ID, got.ID)
		assert.Equal(t, r.Owner, got.Owner)
		assert.Equal(t, r.Type, got.Type)
		assert.Equal(t, r.Title, got.Title)
		assert.True(t, created.Equal(got.CreatedAt))
		assert.Equal(t, r.Rev, got.Rev)

		assert.Equal(t, time.Minute, mr.TTL("room:meta:room-1"))
	})

	t.Run("削除後はキャッシュミス", func(t *testing.T) {
		require.NoError(t, cache.Delete(ctx, "room-1"))
		_, err := cache.Get(ctx, "room-1")
		assert.ErrorIs(t, err, ErrCacheMiss)
	})

	t.Run("壊れたデータはエラー", func(t *testing.T) {
		require.NoError(t, mr.Set("room:meta:broken", "not-json"))
		_, err := cache.Get(ctx, "broken")
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrCacheMiss)
	})
}
