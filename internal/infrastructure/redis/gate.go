package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/maskerliu/lynx-iot-server/internal/pkg/logger"
)

// KEYS: 1=writer 2=readers 3=intent / ARGV: 1=ttl(ms)
var acquireSharedScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 or redis.call("EXISTS", KEYS[3]) == 1 then
	return 0
end
redis.call("INCR", KEYS[2])
redis.call("PEXPIRE", KEYS[2], ARGV[1])
return 1
`)

var releaseSharedScript = redis.NewScript(`
local n = redis.call("DECR", KEYS[1])
if n <= 0 then
	redis.call("DEL", KEYS[1])
end
return n
`)

// KEYS: 1=writer 2=readers 3=intent / ARGV: 1=token 2=ttl(ms)
// 待機中の書き手は intent を立て、後から来た読み手を止める
var acquireExclusiveScript = redis.NewScript(`
local owner = redis.call("GET", KEYS[1])
if owner then
	if owner == ARGV[1] then
		return 1
	end
	return 0
end
local intent = redis.call("GET", KEYS[3])
if intent and intent ~= ARGV[1] then
	return 0
end
redis.call("SET", KEYS[3], ARGV[1], "PX", ARGV[2])
local readers = tonumber(redis.call("GET", KEYS[2]) or "0")
if readers > 0 then
	return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
redis.call("DEL", KEYS[3])
return 1
`)

// 所有者確認と削除をアトミックに実行する
var releaseOwnedScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Gate は Redis を使用した複数プロセス間の読み書きゲート
// 保持者が落ちた場合でも TTL 経過後に解放される
type Gate struct {
	client     redis.UniversalClient
	ttl        time.Duration
	retryDelay time.Duration
}

// NewGate は新しいGateを作成する
func NewGate(client redis.UniversalClient, ttl, retryDelay time.Duration) *Gate {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if retryDelay <= 0 {
		retryDelay = 5 * time.Millisecond
	}
	return &Gate{client: client, ttl: ttl, retryDelay: retryDelay}
}

type gateKeys struct {
	writer, readers, intent string
}

func keysFor(key string) gateKeys {
	// ハッシュタグでクラスタ構成でも同一スロットに置く
	base := fmt.Sprintf("gate:{%s}", key)
	return gateKeys{
		writer:  base + ":w",
		readers: base + ":r",
		intent:  base + ":i",
	}
}

// Shared は共有側を取得する
func (g *Gate) Shared(ctx context.Context, key string) (func(), error) {
	k := keysFor(key)
	err := g.spin(ctx, key, func() (int, error) {
		return acquireSharedScript.Run(ctx, g.client,
			[]string{k.writer, k.readers, k.intent}, g.ttl.Milliseconds()).Int()
	})
	if err != nil {
		return nil, err
	}

	return g.releaser(key, func(ctx context.Context) error {
		return releaseSharedScript.Run(ctx, g.client, []string{k.readers}).Err()
	}), nil
}

// Exclusive は排他側を取得する
func (g *Gate) Exclusive(ctx context.Context, key string) (func(), error) {
	k := keysFor(key)
	token := uuid.New().String()
	err := g.spin(ctx, key, func() (int, error) {
		return acquireExclusiveScript.Run(ctx, g.client,
			[]string{k.writer, k.readers, k.intent}, token, g.ttl.Milliseconds()).Int()
	})
	if err != nil {
		// 取得を諦めた場合は自分の intent を取り下げる
		g.cleanup(key, func(ctx context.Context) error {
			return releaseOwnedScript.Run(ctx, g.client, []string{k.intent}, token).Err()
		})
		return nil, err
	}

	return g.releaser(key, func(ctx context.Context) error {
		return releaseOwnedScript.Run(ctx, g.client, []string{k.writer}, token).Err()
	}), nil
}

func (g *Gate) spin(ctx context.Context, key string, try func() (int, error)) error {
	for {
		ok, err := try()
		if err != nil {
			return fmt.Errorf("ゲート取得に失敗 (%s): %w", key, err)
		}
		if ok == 1 {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("ゲート取得に失敗 (%s): %w", key, ctx.Err())
		case <-time.After(g.retryDelay):
		}
	}
}

func (g *Gate) releaser(key string, release func(ctx context.Context) error) func() {
	var once sync.Once
	return func() {
		once.Do(func() { g.cleanup(key, release) })
	}
}

// cleanup は呼び出し元のcontextが終了していても実行する
func (g *Gate) cleanup(key string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		logger.Warn("ゲート解放に失敗", zap.String("key", key), zap.Error(err))
	}
}
