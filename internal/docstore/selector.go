package docstore

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Op はセレクタの比較演算子
type Op string

const (
	OpEq  Op = "$eq"
	OpGt  Op = "$gt"
	OpGte Op = "$gte"
	OpLt  Op = "$lt"
	OpLte Op = "$lte"
	OpIn  Op = "$in"
)

// Condition はフィールドに対する1つの条件
type Condition struct {
	Field string
	Op    Op
	Value any
}

// Selector は条件のAND結合
type Selector []Condition

func Eq(field string, v any) Condition  { return Condition{Field: field, Op: OpEq, Value: v} }
func Gt(field string, v any) Condition  { return Condition{Field: field, Op: OpGt, Value: v} }
func Gte(field string, v any) Condition { return Condition{Field: field, Op: OpGte, Value: v} }
func Lt(field string, v any) Condition  { return Condition{Field: field, Op: OpLt, Value: v} }
func Lte(field string, v any) Condition { return Condition{Field: field, Op: OpLte, Value: v} }

// In は値のいずれかに一致する条件を返す
func In[T any](field string, values []T) Condition {
	vs := make([]any, len(values))
	for i, v := range values {
		vs[i] = v
	}
	return Condition{Field: field, Op: OpIn, Value: vs}
}

// Validate はセレクタの形式を検証する
func (s Selector) Validate() error {
	for _, c := range s {
		if c.Field == "" {
			return fmt.Errorf("%w: フィールド名が空です", ErrInvalidQuery)
		}
		switch c.Op {
		case OpEq, OpGt, OpGte, OpLt, OpLte:
		case OpIn:
			if _, ok := c.Value.([]any); !ok {
				return fmt.Errorf("%w: %s の $in には配列が必要です", ErrInvalidQuery, c.Field)
			}
		default:
			return fmt.Errorf("%w: 未対応の演算子 %q", ErrInvalidQuery, c.Op)
		}
	}
	return nil
}

// Normalize はGoの値をJSONデコード後と同じ表現（float64, string, bool, nil）に揃える
func Normalize(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	return out, nil
}

// Lookup はボディからドット区切りのパスで値を取り出す
func Lookup(body map[string]any, path string) (any, bool) {
	var cur any = body
	for _, key := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Compare は正規化済みの2値を比較する
// 型が異なる、または順序付けできない場合は ok=false
func Compare(a, b any) (cmp int, ok bool) {
	switch av := a.(type) {
	case float64:
		bv, isNum := b.(float64)
		if !isNum {
			return 0, false
		}
		switch {
		case av < bv:
			return -1, true
		case av > bv:
			return 1, true
		}
		return 0, true
	case string:
		bv, isStr := b.(string)
		if !isStr {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case bool:
		bv, isBool := b.(bool)
		if !isBool {
			return 0, false
		}
		switch {
		case av == bv:
			return 0, true
		case !av:
			return -1, true
		}
		return 1, true
	case nil:
		if b == nil {
			return 0, true
		}
	}
	return 0, false
}

// Matcher は正規化済みのセレクタ。インメモリ評価に使う
type Matcher struct {
	conds []Condition
}

// Compile はセレクタを検証・正規化する
func (s Selector) Compile() (*Matcher, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	conds := make([]Condition, len(s))
	for i, c := range s {
		v, err := Normalize(c.Value)
		if err != nil {
			return nil, err
		}
		conds[i] = Condition{Field: c.Field, Op: c.Op, Value: v}
	}
	return &Matcher{conds: conds}, nil
}

// Match はドキュメントが全条件を満たすかを返す
func (m *Matcher) Match(id string, body map[string]any) bool {
	for _, c := range m.conds {
		var (
			actual any
			found  bool
		)
		if c.Field == IDField {
			actual, found = id, true
		} else {
			actual, found = Lookup(body, c.Field)
		}
		if !found || !matchCondition(c, actual) {
			return false
		}
	}
	return true
}

func matchCondition(c Condition, actual any) bool {
	if c.Op == OpIn {
		for _, candidate := range c.Value.([]any) {
			if cmp, ok := Compare(actual, candidate); ok && cmp == 0 {
				return true
			}
		}
		return false
	}
	cmp, ok := Compare(actual, c.Value)
	if !ok {
		return false
	}
	switch c.Op {
	case OpEq:
		return cmp == 0
	case OpGt:
		return cmp > 0
	case OpGte:
		return cmp >= 0
	case OpLt:
		return cmp < 0
	case OpLte:
		return cmp <= 0
	}
	return false
}
