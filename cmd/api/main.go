package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/maskerliu/lynx-iot-server/internal/api/handler"
	"github.com/maskerliu/lynx-iot-server/internal/api/middleware"
	"github.com/maskerliu/lynx-iot-server/internal/api/router"
	"github.com/maskerliu/lynx-iot-server/internal/application"
	"github.com/maskerliu/lynx-iot-server/internal/config"
	"github.com/maskerliu/lynx-iot-server/internal/docstore"
	"github.com/maskerliu/lynx-iot-server/internal/infrastructure/memory"
	"github.com/maskerliu/lynx-iot-server/internal/infrastructure/postgres"
	"github.com/maskerliu/lynx-iot-server/internal/infrastructure/rabbitmq"
	redisinfra "github.com/maskerliu/lynx-iot-server/internal/infrastructure/redis"
	"github.com/maskerliu/lynx-iot-server/internal/infrastructure/repository"
	"github.com/maskerliu/lynx-iot-server/internal/infrastructure/sqlite"
	"github.com/maskerliu/lynx-iot-server/internal/pkg/logger"
	"github.com/maskerliu/lynx-iot-server/internal/pkg/metrics"
	"github.com/maskerliu/lynx-iot-server/internal/worker"
)

func main() {
	if err := config.LoadDotEnv(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, ".env 読み込みエラー: %v\n", err)
	}
	cfg := config.Load()
	logger.Init(cfg.Env)
	defer logger.Sync()

	if err := run(cfg); err != nil {
		logger.Fatal("サーバー起動エラー", zap.Error(err))
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	deps := map[string]handler.Pinger{"store": store}

	// ゲートとルームキャッシュ
	var (
		gate      application.Gate = memory.NewGate()
		roomCache application.RoomCache
	)
	if cfg.Lock.Backend == config.LockRedis {
		rc, err := redisinfra.NewClient(ctx, &cfg.Redis)
		if err != nil {
			return err
		}
		defer rc.Close()

		gate = redisinfra.NewGate(rc, cfg.Lock.TTL, cfg.Lock.RetryDelay)
		if cfg.Redis.RoomCacheTTL > 0 {
			roomCache = redisinfra.NewRoomCache(rc, cfg.Redis.RoomCacheTTL)
		}
		deps["redis"] = handler.PingFunc(func(ctx context.Context) error {
			return redisinfra.Ping(ctx, rc)
		})
		logger.Info("Redisゲートを使用", zap.String("addr", cfg.Redis.Addr()))
	}

	// リポジトリ
	roomRepo := repository.NewRoomRepository(store)
	seatRepo := repository.NewSeatRepository(store)
	requestRepo := repository.NewSeatRequestRepository(store)
	collectionRepo := repository.NewCollectionRepository(store)
	giftRepo := repository.NewGiftRepository(store)
	if err := repository.InitAll(ctx, roomRepo, seatRepo, requestRepo, collectionRepo, giftRepo); err != nil {
		return fmt.Errorf("インデックス作成に失敗: %w", err)
	}

	// サービス
	opts := []application.ArbitrationOption{
		application.WithMetrics(m),
		application.WithRetryPolicy(application.RetryPolicy{
			MaxRetries: cfg.Arbitration.MaxRetries,
			Delay:      cfg.Arbitration.RetryDelay,
		}),
	}
	if roomCache != nil {
		opts = append(opts, application.WithRoomCache(roomCache))
	}
	if cfg.RabbitMQ.URL != "" {
		publisher := rabbitmq.NewPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, rabbitmq.DialAMQP)
		defer publisher.Close()
		opts = append(opts, application.WithEventPublisher(publisher))
		logger.Info("座席イベントをRabbitMQに配信", zap.String("exchange", cfg.RabbitMQ.Exchange))
	}

	arbiter := application.NewSeatArbitrationService(roomRepo, seatRepo, requestRepo, gate, opts...)
	roomService := application.NewRoomService(roomRepo, arbiter, roomCache)
	collectionService := application.NewCollectionService(collectionRepo, gate, m)
	giftService := application.NewGiftService(giftRepo, roomRepo, roomCache)

	// 古い着席申請のスイーパー
	sweeper := worker.NewStaleRequestSweeper(arbiter, cfg.Sweeper.Interval, cfg.Sweeper.ExpireAfter, cfg.Sweeper.BatchSize)
	go sweeper.Start(ctx)
	defer sweeper.Stop()

	e := router.New(router.Handlers{
		Health:      handler.NewHealthHandler(deps),
		Room:        handler.NewRoomHandler(roomService),
		Seat:        handler.NewSeatHandler(arbiter),
		SeatRequest: handler.NewSeatRequestHandler(arbiter),
		Collection:  handler.NewCollectionHandler(collectionService),
		Gift:        handler.NewGiftHandler(giftService),
	}, router.Options{
		Metrics:     m,
		Gatherer:    prometheus.DefaultGatherer,
		MetricsAuth: middleware.LoadMetricsConfig(),
	})
	e.Server.ReadTimeout = cfg.Server.ReadTimeout
	e.Server.WriteTimeout = cfg.Server.WriteTimeout

	errCh := make(chan error, 1)
	go func() {
		logger.Info("サーバー起動",
			zap.String("port", cfg.Server.Port),
			zap.String("store", cfg.Store.Backend),
			zap.String("lock", cfg.Lock.Backend),
		)
		if err := e.Start(":" + cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("サーバーをシャットダウンしています...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("サーバーシャットダウンエラー: %w", err)
	}
	logger.Info("サーバーが正常にシャットダウンしました")
	return nil
}

// openStore は設定に応じたドキュメントストアを開く
func openStore(ctx context.Context, cfg *config.Config) (docstore.Store, error) {
	switch cfg.Store.Backend {
	case config.StoreMemory:
		logger.Warn("インメモリストアを使用（再起動でデータは消えます）")
		return memory.NewStore(), nil
	case config.StoreSQLite:
		logger.Info("SQLiteストアを使用", zap.String("path", cfg.Store.SQLitePath))
		return sqlite.Open(ctx, cfg.Store.SQLitePath)
	case config.StorePostgres:
		logger.Info("PostgreSQLストアを使用", zap.String("host", cfg.Database.Host), zap.String("db", cfg.Database.DBName))
		return postgres.Open(ctx, &cfg.Database)
	}
	return nil, fmt.Errorf("未対応のストア: %q", cfg.Store.Backend)
}
