package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/maskerliu/lynx-iot-server/internal/docstore"
)

// RetryPolicy は楽観的ロック競合時の再試行方針
type RetryPolicy struct {
	// MaxRetries は初回以降の再試行回数の上限
	MaxRetries int
	// Delay は再試行までの待ち時間。試行ごとに線形に伸ばす
	Delay time.Duration
}

// DefaultRetryPolicy は既定の再試行方針を返す
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 5, Delay: 10 * time.Millisecond}
}

// IsConflict は楽観的ロック競合かを返す
func IsConflict(err error) bool {
	return errors.Is(err, docstore.ErrConflict)
}

// Attempt は op を実行し、競合で失敗した場合は最新の状態から再試行する
// 競合以外のエラーは即座に返す。再試行が尽きた場合は最後の競合エラーを包んで返す
func Attempt(ctx context.Context, policy RetryPolicy, op func(attempt int) error) error {
	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if attempt > 0 && policy.Delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(policy.Delay * time.Duration(attempt)):
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(attempt)
		if err == nil {
			return nil
		}
		if !IsConflict(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("再試行上限(%d回)に達しました: %w", policy.MaxRetries, lastErr)
}
