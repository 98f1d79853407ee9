package application

import (
	"context"

	"go.uber.org/zap"

	"github.com/maskerliu/lynx-iot-server/internal/domain/seat"
	"github.com/maskerliu/lynx-iot-server/internal/pkg/logger"
)

// EventPublisher は座席イベントを下流に配信する
type EventPublisher interface {
	Publish(ctx context.Context, ev seat.Event) error
}

// publish は配信失敗をログに残すだけで呼び出し元には返さない
func publish(ctx context.Context, p EventPublisher, ev seat.Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, ev); err != nil {
		logger.Warn("座席イベントの配信に失敗",
			zap.String("type", string(ev.Type)),
			zap.String("room_id", ev.RoomID),
			zap.Error(err),
		)
	}
}
