package postgres

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/maskerliu/lynx-iot-server/internal/docstore"
	"github.com/maskerliu/lynx-iot-server/internal/infrastructure/sqldoc"
)

// uniqueViolation は PostgreSQL の一意制約違反コード
const uniqueViolation = "23505"

// Dialect は JSONB を使う PostgreSQL 向けの表現
type Dialect struct{}

func (Dialect) Name() string { return "postgres" }

// Field は body #> '{a,b}' 形式の jsonb 式を返す
func (Dialect) Field(path string) string {
	return fmt.Sprintf("(body #> '{%s}')", strings.ReplaceAll(path, ".", ","))
}

func (Dialect) Placeholder() string { return "?::jsonb" }

// Bind は値を jsonb リテラルとして渡す
func (Dialect) Bind(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", docstore.ErrInvalidQuery, err)
	}
	return string(b), nil
}

func (Dialect) LockClause() string { return " FOR UPDATE" }

func (Dialect) IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation
}

// NewStore は PostgreSQL 上のドキュメントストアを作成する
// スキーマは RunMigrations で作成しておく
func NewStore(db *sqlx.DB) *sqldoc.Store {
	return sqldoc.New(db, Dialect{})
}

var _ sqldoc.Dialect = Dialect{}
