// Package sqlite は SQLite（modernc.org/sqlite）上のドキュメントストア
package sqlite

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/maskerliu/lynx-iot-server/internal/docstore"
	"github.com/maskerliu/lynx-iot-server/internal/infrastructure/sqldoc"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		id         TEXT NOT NULL,
		rev        TEXT NOT NULL,
		body       TEXT NOT NULL DEFAULT '{}',
		PRIMARY KEY (collection, id)
	)`,
	`CREATE TABLE IF NOT EXISTS document_indexes (
		collection TEXT NOT NULL,
		name       TEXT NOT NULL,
		fields     TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (collection, name)
	)`,
}

// Dialect は json_extract を使う SQLite 向けの表現
type Dialect struct{}

func (Dialect) Name() string { return "sqlite" }

func (Dialect) Field(path string) string {
	return fmt.Sprintf("json_extract(body, '$.%s')", path)
}

func (Dialect) Placeholder() string { return "?" }

// Bind は json_extract の戻り値と比較できる型に揃える
// 真偽値は json_extract が 1/0 を返すため整数にする
func (Dialect) Bind(v any) (any, error) {
	n, err := docstore.Normalize(v)
	if err != nil {
		return nil, err
	}
	switch x := n.(type) {
	case nil, string, float64:
		return x, nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	default:
		return nil, fmt.Errorf("%w: 比較できない値です: %T", docstore.ErrInvalidQuery, v)
	}
}

// SQLite は書き込みを直列化するため行ロックは不要
func (Dialect) LockClause() string { return "" }

func (Dialect) IsUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT:
		return true
	}
	return false
}

// Open は SQLite データベースを開き、スキーマを作成してストアを返す
// path に ":memory:" を渡すとプロセス内だけの一時データベースになる
func Open(ctx context.Context, path string) (*sqldoc.Store, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("SQLiteのオープンに失敗しました: %w", err)
	}
	// 接続を1本にして書き込みを直列化する（:memory: の共有にも必要）
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("SQLite接続に失敗しました: %w", err)
	}
	for _, stmt := range append([]string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"}, schema...) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("スキーマ作成に失敗しました: %w", err)
		}
	}
	return sqldoc.New(db, Dialect{}), nil
}

var _ sqldoc.Dialect = Dialect{}
