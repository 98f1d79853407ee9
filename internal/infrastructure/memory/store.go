// Package memory はプロセス内で完結するドキュメントストアとゲートの実装
// 単一インスタンス構成とテストで使用する
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/maskerliu/lynx-iot-server/internal/docstore"
	"github.com/maskerliu/lynx-iot-server/internal/pkg/logger"
)

type entry struct {
	rev  string
	raw  json.RawMessage
	body map[string]any
}

type collection struct {
	docs    map[string]*entry
	indexes map[string]docstore.Index
}

// Store はインメモリのドキュメントストア
// BulkWrite は単一のロック区間で検証と適用を行うため、全件適用か全件不適用のどちらかになる
type Store struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

// NewStore は空のストアを作成する
func NewStore() *Store {
	return &Store{collections: make(map[string]*collection)}
}

func (s *Store) coll(name string) *collection {
	c, ok := s.collections[name]
	if !ok {
		c = &collection{
			docs:    make(map[string]*entry),
			indexes: make(map[string]docstore.Index),
		}
		s.collections[name] = c
	}
	return c
}

func decodeBody(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("ドキュメントはJSONオブジェクトである必要があります: %w", err)
	}
	return body, nil
}

// Find はセレクタに一致するドキュメントを返す
func (s *Store) Find(ctx context.Context, collectionName string, q docstore.Query) ([]docstore.Document, error) {
	m, err := q.Selector.Compile()
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[collectionName]
	if !ok {
		if q.Index != "" {
			return nil, fmt.Errorf("%w: %s/%s", docstore.ErrIndexNotFound, collectionName, q.Index)
		}
		return []docstore.Document{}, nil
	}
	if q.Index != "" {
		if _, ok := c.indexes[q.Index]; !ok {
			return nil, fmt.Errorf("%w: %s/%s", docstore.ErrIndexNotFound, collectionName, q.Index)
		}
	}

	type hit struct {
		id string
		e  *entry
	}
	hits := make([]hit, 0)
	for id, e := range c.docs {
		if m.Match(id, e.body) {
			hits = append(hits, hit{id: id, e: e})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		for _, sf := range q.Sort {
			cmp := compareField(hits[i].id, hits[i].e.body, hits[j].id, hits[j].e.body, sf.Field)
			if cmp == 0 {
				continue
			}
			if sf.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		// ソート指定が尽きた場合はIDで安定させる
		return hits[i].id < hits[j].id
	})

	if q.Limit > 0 && len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}

	docs := make([]docstore.Document, len(hits))
	for i, h := range hits {
		docs[i] = docstore.Document{ID: h.id, Rev: h.e.rev, Body: cloneRaw(h.e.raw)}
	}
	return docs, nil
}

// Insert はドキュメントを挿入する。ID未指定なら採番する
func (s *Store) Insert(ctx context.Context, collectionName string, doc docstore.Document) (docstore.Document, error) {
	body, err := decodeBody(doc.Body)
	if err != nil {
		return docstore.Document{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.coll(collectionName)
	inserted, err := c.insert(doc, body)
	if err != nil {
		return docstore.Document{}, err
	}
	logger.Debug("ドキュメント挿入",
		zap.String("collection", collectionName),
		zap.String("id", inserted.ID),
	)
	return inserted, nil
}

func (c *collection) insert(doc docstore.Document, body map[string]any) (docstore.Document, error) {
	id := doc.ID
	if id == "" {
		id = docstore.NewID()
	}
	if _, exists := c.docs[id]; exists {
		return docstore.Document{}, fmt.Errorf("%w: ID %s は既に存在します", docstore.ErrConflict, id)
	}
	rev := docstore.NextRev("")
	raw := cloneRaw(doc.Body)
	c.docs[id] = &entry{rev: rev, raw: raw, body: body}
	return docstore.Document{ID: id, Rev: rev, Body: cloneRaw(raw)}, nil
}

// Update はリビジョンが一致する場合のみ更新する
func (s *Store) Update(ctx context.Context, collectionName string, doc docstore.Document) (docstore.Document, error) {
	body, err := decodeBody(doc.Body)
	if err != nil {
		return docstore.Document{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.coll(collectionName)
	e, ok := c.docs[doc.ID]
	if !ok {
		return docstore.Document{}, fmt.Errorf("%w: %s/%s", docstore.ErrNotFound, collectionName, doc.ID)
	}
	if e.rev != doc.Rev {
		return docstore.Document{}, fmt.Errorf("%w: %s/%s (期待 %s, 現在 %s)",
			docstore.ErrConflict, collectionName, doc.ID, doc.Rev, e.rev)
	}
	e.rev = docstore.NextRev(e.rev)
	e.raw = cloneRaw(doc.Body)
	e.body = body
	return docstore.Document{ID: doc.ID, Rev: e.rev, Body: cloneRaw(e.raw)}, nil
}

// Delete はリビジョンが一致する場合のみ削除する
func (s *Store) Delete(ctx context.Context, collectionName, id, rev string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.coll(collectionName).remove(id, rev)
}

func (c *collection) check(id, rev string) error {
	e, ok := c.docs[id]
	if !ok {
		return fmt.Errorf("%w: %s", docstore.ErrNotFound, id)
	}
	if e.rev != rev {
		return fmt.Errorf("%w: %s (期待 %s, 現在 %s)", docstore.ErrConflict, id, rev, e.rev)
	}
	return nil
}

func (c *collection) remove(id, rev string) error {
	if err := c.check(id, rev); err != nil {
		return err
	}
	delete(c.docs, id)
	return nil
}

// BulkWrite は全操作を検証してから一括で適用する
func (s *Store) BulkWrite(ctx context.Context, collectionName string, ops []docstore.BulkOp) ([]docstore.BulkResult, error) {
	bodies := make([]map[string]any, len(ops))
	results := make([]docstore.BulkResult, len(ops))
	var failed []docstore.BulkResult

	for i, op := range ops {
		results[i] = docstore.BulkResult{Index: i, Kind: op.Kind, ID: op.Doc.ID}
		if op.Kind == docstore.BulkInsert {
			body, err := decodeBody(op.Doc.Body)
			if err != nil {
				results[i].Err = err
				failed = append(failed, results[i])
				continue
			}
			bodies[i] = body
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.coll(collectionName)

	// 検証フェーズ: バッチ内での削除・挿入の重複も考慮する
	deleted := make(map[string]bool)
	inserted := make(map[string]bool)
	for i, op := range ops {
		if results[i].Err != nil {
			continue
		}
		var err error
		switch op.Kind {
		case docstore.BulkDelete:
			switch {
			case deleted[op.Doc.ID]:
				err = fmt.Errorf("%w: %s はバッチ内で既に削除されています", docstore.ErrConflict, op.Doc.ID)
			default:
				err = c.check(op.Doc.ID, op.Doc.Rev)
			}
			deleted[op.Doc.ID] = true
		case docstore.BulkInsert:
			if op.Doc.ID == "" {
				break
			}
			if inserted[op.Doc.ID] {
				err = fmt.Errorf("%w: ID %s がバッチ内で重複しています", docstore.ErrConflict, op.Doc.ID)
			} else if _, exists := c.docs[op.Doc.ID]; exists && !deleted[op.Doc.ID] {
				err = fmt.Errorf("%w: ID %s は既に存在します", docstore.ErrConflict, op.Doc.ID)
			}
			inserted[op.Doc.ID] = true
		default:
			err = fmt.Errorf("%w: 未対応の操作 %v", docstore.ErrInvalidQuery, op.Kind)
		}
		if err != nil {
			results[i].Err = err
			failed = append(failed, results[i])
		}
	}
	if len(failed) > 0 {
		return results, &docstore.BulkError{Failed: failed, Applied: 0}
	}

	// 適用フェーズ
	for i, op := range ops {
		switch op.Kind {
		case docstore.BulkDelete:
			delete(c.docs, op.Doc.ID)
		case docstore.BulkInsert:
			doc, err := c.insert(op.Doc, bodies[i])
			if err != nil {
				// 検証済みのため発生しない想定
				results[i].Err = err
				continue
			}
			results[i].ID = doc.ID
			results[i].Rev = doc.Rev
		}
	}

	logger.Debug("一括書き込み",
		zap.String("collection", collectionName),
		zap.Int("ops", len(ops)),
	)
	return results, nil
}

// EnsureIndex はインデックス定義を登録する
func (s *Store) EnsureIndex(ctx context.Context, collectionName string, idx docstore.Index) error {
	if idx.Name == "" || len(idx.Fields) == 0 {
		return fmt.Errorf("%w: インデックス名とフィールドは必須です", docstore.ErrInvalidQuery)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.coll(collectionName).indexes[idx.Name] = idx
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return nil }

func (s *Store) Close() error { return nil }

// Len はコレクション内のドキュメント数を返す
func (s *Store) Len(collectionName string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.collections[collectionName]; ok {
		return len(c.docs)
	}
	return 0
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out
}

func fieldValue(id string, body map[string]any, field string) (any, bool) {
	if field == docstore.IDField {
		return id, true
	}
	return docstore.Lookup(body, field)
}

// typeRank は型が異なる値同士の並び順（null < bool < 数値 < 文字列 < その他）
func typeRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64:
		return 2
	case string:
		return 3
	default:
		return 4
	}
}

func compareField(idA string, a map[string]any, idB string, b map[string]any, field string) int {
	va, okA := fieldValue(idA, a, field)
	vb, okB := fieldValue(idB, b, field)
	switch {
	case !okA && !okB:
		return 0
	case !okA:
		return -1
	case !okB:
		return 1
	}
	if cmp, ok := docstore.Compare(va, vb); ok {
		return cmp
	}
	ra, rb := typeRank(va), typeRank(vb)
	switch {
	case ra < rb:
		return -1
	case ra > rb:
		return 1
	}
	return 0
}

var _ docstore.Store = (*Store)(nil)
