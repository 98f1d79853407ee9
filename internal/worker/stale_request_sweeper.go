package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/maskerliu/lynx-iot-server/internal/pkg/logger"
)

// RequestExpirer は古い着席申請を削除するインターフェース
type RequestExpirer interface {
	ExpireStaleRequests(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

// StaleRequestSweeper は長時間放置された着席申請を定期的に削除するワーカー
// 1回の掃除で batchSize 件ずつ、残りがなくなるまで繰り返す
type StaleRequestSweeper struct {
	expirer     RequestExpirer
	interval    time.Duration
	expireAfter time.Duration
	batchSize   int
	stopCh      chan struct{}
	doneCh      chan struct{}
	stopOnce    sync.Once
}

// NewStaleRequestSweeper は新しいスイーパーを作成
func NewStaleRequestSweeper(
	expirer RequestExpirer,
	interval time.Duration,
	expireAfter time.Duration,
	batchSize int,
) *StaleRequestSweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &StaleRequestSweeper{
		expirer:     expirer,
		interval:    interval,
		expireAfter: expireAfter,
		batchSize:   batchSize,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Start はスイーパーを開始し、停止するまでブロックする
func (s *StaleRequestSweeper) Start(ctx context.Context) {
	log := logger.Named("sweeper")
	log.Info("古い着席申請のスイーパー開始",
		zap.Duration("interval", s.interval),
		zap.Duration("expire_after", s.expireAfter),
		zap.Int("batch_size", s.batchSize),
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer close(s.doneCh)

	for {
		select {
		case <-ctx.Done():
			log.Info("スイーパー停止（コンテキストキャンセル）")
			return
		case <-s.stopCh:
			log.Info("スイーパー停止（シグナル受信）")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// Stop はスイーパーを停止し、実行中の掃除が終わるのを待つ
func (s *StaleRequestSweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.doneCh
}

// sweep は期限切れの申請がなくなるまでバッチ単位で削除する
func (s *StaleRequestSweeper) sweep(ctx context.Context) int {
	log := logger.Get()
	log.Debug("古い着席申請の掃除開始")

	total := 0
	for {
		n, err := s.expirer.ExpireStaleRequests(ctx, s.expireAfter, s.batchSize)
		if err != nil {
			log.Error("古い着席申請の掃除に失敗", zap.Error(err), zap.Int("expired", total))
			return total
		}
		total += n
		if n < s.batchSize || ctx.Err() != nil {
			break
		}
	}

	if total > 0 {
		log.Info("古い着席申請を削除", zap.Int("count", total))
	} else {
		log.Debug("古い着席申請なし")
	}
	return total
}
