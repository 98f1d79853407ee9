package application

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/maskerliu/lynx-iot-server/internal/domain/room"
	redisinfra "github.com/maskerliu/lynx-iot-server/internal/infrastructure/redis"
	"github.com/maskerliu/lynx-iot-server/internal/pkg/logger"
)

// RoomCache はルームメタデータのキャッシュ
// オーナーと種別は作成後に変わらないため、ルームの存在確認に使える
type RoomCache interface {
	Get(ctx context.Context, id string) (*room.Room, error)
	Set(ctx context.Context, r *room.Room) error
	Delete(ctx context.Context, id string) error
}

type roomReader struct {
	repo  room.Repository
	cache RoomCache
}

func (r roomReader) get(ctx context.Context, id string) (*room.Room, error) {
	if id == "" {
		return nil, room.ErrRoomNotFound
	}
	if r.cache != nil {
		cached, err := r.cache.Get(ctx, id)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, redisinfra.ErrCacheMiss) {
			logger.Warn("キャッシュ取得エラー", zap.String("room_id", id), zap.Error(err))
		}
	}

	rm, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, rm); err != nil {
			logger.Warn("キャッシュ保存エラー", zap.String("room_id", id), zap.Error(err))
		}
	}
	return rm, nil
}

func (r roomReader) invalidate(ctx context.Context, id string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Delete(ctx, id); err != nil {
		logger.Warn("キャッシュ無効化エラー", zap.String("room_id", id), zap.Error(err))
	}
}
