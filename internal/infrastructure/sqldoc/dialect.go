// Package sqldoc は documents テーブル1枚の上にドキュメントストアを実装する
// JSON の扱いはデータベースごとに Dialect で差し替える
package sqldoc

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/maskerliu/lynx-iot-server/internal/docstore"
)

// Dialect はデータベースごとのSQL表現
type Dialect interface {
	// Name は sqlx のドライバー名
	Name() string
	// Field はボディ内フィールドのSQL式を返す（path は検証済み）
	Field(path string) string
	// Placeholder は比較値のプレースホルダー
	Placeholder() string
	// Bind はセレクタの値をバインド可能な値に変換する
	Bind(v any) (any, error)
	// LockClause は BulkWrite の検証で行ロックを取るための句
	LockClause() string
	// IsUniqueViolation は主キー重複エラーかを返す
	IsUniqueViolation(err error) bool
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// checkPath はフィールドパスをSQLに埋め込める形か検証する
func checkPath(path string) error {
	for _, part := range strings.Split(path, ".") {
		if !identPattern.MatchString(part) {
			return fmt.Errorf("%w: フィールド名 %q は使用できません", docstore.ErrInvalidQuery, path)
		}
	}
	return nil
}

func checkName(name string) error {
	if !identPattern.MatchString(strings.ReplaceAll(name, "-", "_")) {
		return fmt.Errorf("%w: 名前 %q は使用できません", docstore.ErrInvalidQuery, name)
	}
	return nil
}

// indexName はコレクションとインデックス名からSQLのインデックス名を作る
func indexName(collection, name string) string {
	return strings.ReplaceAll("docidx_"+collection+"_"+name, "-", "_")
}

func (s *Store) column(field string) (string, error) {
	if field == docstore.IDField {
		return "id", nil
	}
	if err := checkPath(field); err != nil {
		return "", err
	}
	return s.dialect.Field(field), nil
}

var sqlOps = map[docstore.Op]string{
	docstore.OpEq:  "=",
	docstore.OpGt:  ">",
	docstore.OpGte: ">=",
	docstore.OpLt:  "<",
	docstore.OpLte: "<=",
}

// where はセレクタを WHERE 句（collection 条件を含む）に変換する
func (s *Store) where(collection string, sel docstore.Selector) (string, []any, error) {
	if err := sel.Validate(); err != nil {
		return "", nil, err
	}

	clauses := []string{"collection = ?"}
	args := []any{collection}
	for _, c := range sel {
		col, err := s.column(c.Field)
		if err != nil {
			return "", nil, err
		}
		isID := c.Field == docstore.IDField

		if c.Op == docstore.OpIn {
			values := c.Value.([]any)
			if len(values) == 0 {
				clauses = append(clauses, "1 = 0")
				continue
			}
			ph := make([]string, len(values))
			for i, v := range values {
				bound, p, err := s.bind(isID, v)
				if err != nil {
					return "", nil, err
				}
				ph[i] = p
				args = append(args, bound)
			}
			clauses = append(clauses, fmt.Sprintf("%s IN (%s)", col, strings.Join(ph, ", ")))
			continue
		}

		bound, p, err := s.bind(isID, c.Value)
		if err != nil {
			return "", nil, err
		}
		clauses = append(clauses, fmt.Sprintf("%s %s %s", col, sqlOps[c.Op], p))
		args = append(args, bound)
	}
	return strings.Join(clauses, " AND "), args, nil
}

func (s *Store) bind(isID bool, v any) (any, string, error) {
	if isID {
		id, ok := v.(string)
		if !ok {
			return nil, "", fmt.Errorf("%w: _id には文字列が必要です", docstore.ErrInvalidQuery)
		}
		return id, "?", nil
	}
	bound, err := s.dialect.Bind(v)
	if err != nil {
		return nil, "", err
	}
	return bound, s.dialect.Placeholder(), nil
}

func (s *Store) orderBy(sort []docstore.SortField) (string, error) {
	parts := make([]string, 0, len(sort)+1)
	for _, sf := range sort {
		col, err := s.column(sf.Field)
		if err != nil {
			return "", err
		}
		dir := "ASC"
		if sf.Desc {
			dir = "DESC"
		}
		parts = append(parts, col+" "+dir)
	}
	// ソート指定が尽きた場合はIDで安定させる
	parts = append(parts, "id ASC")
	return strings.Join(parts, ", "), nil
}
