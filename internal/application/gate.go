package application

import (
	"context"
	"time"

	"github.com/maskerliu/lynx-iot-server/internal/pkg/metrics"
)

// Gate はキー単位の読み書きゲート
// 共有側同士は互いをブロックせず、排他側は他のすべての保持者を待つ
type Gate interface {
	Shared(ctx context.Context, key string) (release func(), err error)
	Exclusive(ctx context.Context, key string) (release func(), err error)
}

func roomGateKey(roomID string) string {
	return "room:" + roomID
}

func seatRequestGateKey(roomID, uid string) string {
	return "seatreq:" + roomID + ":" + uid
}

func collectionGateKey(uid, roomID string) string {
	return "collect:" + uid + ":" + roomID
}

const (
	gateShared    = "shared"
	gateExclusive = "exclusive"
)

func enterGate(ctx context.Context, g Gate, m *metrics.Metrics, mode, key string) (func(), error) {
	start := time.Now()
	var (
		release func()
		err     error
	)
	if mode == gateExclusive {
		release, err = g.Exclusive(ctx, key)
	} else {
		release, err = g.Shared(ctx, key)
	}
	m.ObserveGateWait(mode, start, err)
	if err != nil {
		return nil, err
	}
	return release, nil
}
