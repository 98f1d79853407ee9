package application

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/maskerliu/lynx-iot-server/internal/domain/collection"
	"github.com/maskerliu/lynx-iot-server/internal/pkg/logger"
	"github.com/maskerliu/lynx-iot-server/internal/pkg/metrics"
)

// CollectionService はルームのお気に入り登録を扱う
type CollectionService struct {
	repo    collection.Repository
	gate    Gate
	metrics *metrics.Metrics
}

func NewCollectionService(repo collection.Repository, gate Gate, m *metrics.Metrics) *CollectionService {
	return &CollectionService{repo: repo, gate: gate, metrics: m}
}

// Collect はお気に入りを切り替える。登録済みなら解除し、未登録なら登録する
// 戻り値は切り替え後に登録済みかどうか
func (s *CollectionService) Collect(ctx context.Context, uid, roomID string) (bool, error) {
	if err := collection.NewRoomCollection(uid, roomID).Validate(); err != nil {
		return false, err
	}

	// 同じ (uid, roomId) の確認と書き込みを直列化する
	release, err := enterGate(ctx, s.gate, s.metrics, gateExclusive, collectionGateKey(uid, roomID))
	if err != nil {
		return false, fmt.Errorf("お気に入りゲートの取得に失敗: %w", err)
	}
	defer release()

	existing, err := s.repo.Find(ctx, uid, roomID)
	switch {
	case err == nil:
		if err := s.repo.Remove(ctx, existing); err != nil && !errors.Is(err, collection.ErrCollectionNotFound) {
			return false, err
		}
		logger.Debug("お気に入りを解除", zap.String("uid", uid), zap.String("room_id", roomID))
		return false, nil
	case !errors.Is(err, collection.ErrCollectionNotFound):
		return false, err
	}

	if err := s.repo.Add(ctx, collection.NewRoomCollection(uid, roomID)); err != nil {
		return false, err
	}
	logger.Debug("お気に入りに登録", zap.String("uid", uid), zap.String("room_id", roomID))
	return true, nil
}

func (s *CollectionService) IsCollected(ctx context.Context, uid, roomID string) (bool, error) {
	_, err := s.repo.Find(ctx, uid, roomID)
	if errors.Is(err, collection.ErrCollectionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListCollections はユーザーのお気に入りを新しい順に返す
func (s *CollectionService) ListCollections(ctx context.Context, uid string) ([]*collection.RoomCollection, error) {
	if uid == "" {
		return nil, collection.ErrUIDRequired
	}
	return s.repo.ListByUser(ctx, uid)
}
