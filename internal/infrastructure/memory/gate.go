package memory

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// gateCapacity は共有ロックの同時保持数の上限。排他ロックはこれを丸ごと確保する
const gateCapacity int64 = 1 << 20

type slot struct {
	sem  *semaphore.Weighted
	refs int
}

// Gate はキー単位の読み書きゲート（プロセス内）
// semaphore.Weighted は待ち順を守るため、排他待ちの後に来た共有要求は排他の後に回る
type Gate struct {
	mu    sync.Mutex
	slots map[string]*slot
}

// NewGate はゲートを作成する
func NewGate() *Gate {
	return &Gate{slots: make(map[string]*slot)}
}

// Shared は共有側を取得する
func (g *Gate) Shared(ctx context.Context, key string) (func(), error) {
	return g.acquire(ctx, key, 1)
}

// Exclusive は排他側を取得する
func (g *Gate) Exclusive(ctx context.Context, key string) (func(), error) {
	return g.acquire(ctx, key, gateCapacity)
}

func (g *Gate) acquire(ctx context.Context, key string, n int64) (func(), error) {
	g.mu.Lock()
	s, ok := g.slots[key]
	if !ok {
		s = &slot{sem: semaphore.NewWeighted(gateCapacity)}
		g.slots[key] = s
	}
	s.refs++
	g.mu.Unlock()

	if err := s.sem.Acquire(ctx, n); err != nil {
		g.unref(key, s)
		return nil, fmt.Errorf("ゲート取得に失敗 (%s): %w", key, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.sem.Release(n)
			g.unref(key, s)
		})
	}, nil
}

func (g *Gate) unref(key string, s *slot) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s.refs--
	if s.refs == 0 && g.slots[key] == s {
		delete(g.slots, key)
	}
}
