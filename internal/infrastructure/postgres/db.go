package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/maskerliu/lynx-iot-server/internal/config"
	"github.com/maskerliu/lynx-iot-server/internal/infrastructure/sqldoc"
	"github.com/maskerliu/lynx-iot-server/internal/pkg/logger"
)

// Open はPostgreSQLに接続し、マイグレーションを適用したドキュメントストアを返す
func Open(ctx context.Context, cfg *config.DatabaseConfig) (*sqldoc.Store, error) {
	db, err := NewConnection(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := RunMigrations(db.DB); err != nil {
		db.Close()
		return nil, err
	}
	return NewStore(db), nil
}

// NewConnection はPostgreSQLへの接続プールを作成する
func NewConnection(ctx context.Context, cfg *config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗しました: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	logger.Debug("PostgreSQLに接続",
		zap.String("host", cfg.Host),
		zap.String("db", cfg.DBName),
		zap.Int("max_open_conns", cfg.MaxOpenConns),
	)
	return db, nil
}
