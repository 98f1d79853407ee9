package sqlite

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maskerliu/lynx-iot-server/internal/docstore"
	"github.com/maskerliu/lynx-iot-server/internal/infrastructure/sqldoc"
)

func openTestStore(t *testing.T) *sqldoc.Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func body(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func decodeBody(t *testing.T, raw json.RawMessage) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

func TestStore_FindAndIndex(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.EnsureIndex(ctx, "seats", docstore.Index{Name: "idx-room", Fields: []string{"roomId", "seq"}}))
	// 二重作成しても問題ない
	require.NoError(t, s.EnsureIndex(ctx, "seats", docstore.Index{Name: "idx-room", Fields: []string{"roomId", "seq"}}))

	for _, roomID := range []string{"room-1", "room-2"} {
		for i := 3; i >= 0; i-- {
			_, err := s.Insert(ctx, "seats", docstore.Document{
				Body: body(t, map[string]any{"roomId": roomID, "seq": i, "meta": map[string]any{"vip": i == 0}}),
			})
			require.NoError(t, err)
		}
	}

	t.Run("セレクタとソートで取得できる", func(t *testing.T) {
		docs, err := s.Find(ctx, "seats", docstore.Query{
			Selector: docstore.Selector{docstore.Eq("roomId", "room-1"), docstore.Gt("seq", -1)},
			Sort:     []docstore.SortField{docstore.Asc("roomId"), docstore.Asc("seq")},
			Index:    "idx-room",
		})
		require.NoError(t, err)
		require.Len(t, docs, 4)
		for i, d := range docs {
			assert.Equal(t, float64(i), decodeBody(t, d.Body)["seq"])
			assert.Equal(t, 1, docstore.Generation(d.Rev))
		}
	})

	t.Run("降順とLimit", func(t *testing.T) {
		docs, err := s.Find(ctx, "seats", docstore.Query{
			Selector: docstore.Selector{docstore.Eq("roomId", "room-2")},
			Sort:     []docstore.SortField{docstore.Desc("seq")},
			Limit:    2,
		})
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, float64(3), decodeBody(t, docs[0].Body)["seq"])
		assert.Equal(t, float64(2), decodeBody(t, docs[1].Body)["seq"])
	})

	t.Run("ネストしたフィールドと真偽値", func(t *testing.T) {
		docs, err := s.Find(ctx, "seats", docstore.Query{
			Selector: docstore.Selector{docstore.Eq("meta.vip", true)},
		})
		require.NoError(t, err)
		assert.Len(t, docs, 2)
	})

	t.Run("IDの$in", func(t *testing.T) {
		all, err := s.Find(ctx, "seats", docstore.Query{Selector: docstore.Selector{docstore.Eq("roomId", "room-1")}})
		require.NoError(t, err)

		docs, err := s.Find(ctx, "seats", docstore.Query{
			Selector: docstore.Selector{docstore.In(docstore.IDField, []string{all[0].ID, all[1].ID, "missing"})},
		})
		require.NoError(t, err)
		assert.Len(t, docs, 2)

		docs, err = s.Find(ctx, "seats", docstore.Query{
			Selector: docstore.Selector{docstore.In(docstore.IDField, []string{})},
		})
		require.NoError(t, err)
		assert.Empty(t, docs)
	})

	t.Run("未定義のインデックスはエラー", func(t *testing.T) {
		_, err := s.Find(ctx, "seats", docstore.Query{Index: "idx-missing"})
		assert.ErrorIs(t, err, docstore.ErrIndexNotFound)
	})

	t.Run("SQLに使えないフィールド名は拒否する", func(t *testing.T) {
		_, err := s.Find(ctx, "seats", docstore.Query{
			Selector: docstore.Selector{docstore.Eq("seq') OR 1=1 --", 1)},
		})
		assert.ErrorIs(t, err, docstore.ErrInvalidQuery)
	})
}

func TestStore_OptimisticConcurrency(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	doc, err := s.Insert(ctx, "seats", docstore.Document{Body: body(t, map[string]any{"seq": 0})})
	require.NoError(t, err)

	t.Run("既存IDでの挿入は競合", func(t *testing.T) {
		_, err := s.Insert(ctx, "seats", docstore.Document{ID: doc.ID, Body: body(t, map[string]any{})})
		assert.ErrorIs(t, err, docstore.ErrConflict)
	})

	t.Run("最新リビジョンなら更新でき、古いリビジョンは競合", func(t *testing.T) {
		updated, err := s.Update(ctx, "seats", docstore.Document{
			ID: doc.ID, Rev: doc.Rev, Body: body(t, map[string]any{"seq": 0, "occupant": "u1"}),
		})
		require.NoError(t, err)
		assert.Equal(t, 2, docstore.Generation(updated.Rev))

		_, err = s.Update(ctx, "seats", docstore.Document{
			ID: doc.ID, Rev: doc.Rev, Body: body(t, map[string]any{"seq": 0, "occupant": "u2"}),
		})
		assert.ErrorIs(t, err, docstore.ErrConflict)
		doc = updated
	})

	t.Run("削除のリビジョン確認", func(t *testing.T) {
		assert.ErrorIs(t, s.Delete(ctx, "seats", doc.ID, "1-stale"), docstore.ErrConflict)
		require.NoError(t, s.Delete(ctx, "seats", doc.ID, doc.Rev))
		assert.ErrorIs(t, s.Delete(ctx, "seats", doc.ID, doc.Rev), docstore.ErrNotFound)
	})

	t.Run("存在しないドキュメントの更新はNotFound", func(t *testing.T) {
		_, err := s.Update(ctx, "seats", docstore.Document{ID: "missing", Rev: "1-x", Body: body(t, map[string]any{})})
		assert.ErrorIs(t, err, docstore.ErrNotFound)
	})

	t.Run("同時更新はちょうど1件だけ成功する", func(t *testing.T) {
		target, err := s.Insert(ctx, "seats", docstore.Document{Body: body(t, map[string]any{"seq": 9})})
		require.NoError(t, err)

		var wins int32
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := s.Update(ctx, "seats", docstore.Document{
					ID: target.ID, Rev: target.Rev, Body: body(t, map[string]any{"seq": 9, "occupant": i}),
				})
				if err == nil {
					atomic.AddInt32(&wins, 1)
				}
			}(i)
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins)
	})
}

func TestStore_BulkWrite(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T, s *sqldoc.Store, n int) []docstore.Document {
		docs := make([]docstore.Document, 0, n)
		for i := 0; i < n; i++ {
			d, err := s.Insert(ctx, "seats", docstore.Document{Body: body(t, map[string]any{"roomId": "room-1", "seq": i})})
			require.NoError(t, err)
			docs = append(docs, d)
		}
		return docs
	}
	count := func(t *testing.T, s *sqldoc.Store) int {
		docs, err := s.Find(ctx, "seats", docstore.Query{})
		require.NoError(t, err)
		return len(docs)
	}

	t.Run("削除と挿入を一括で適用できる", func(t *testing.T) {
		s := openTestStore(t)
		old := seed(t, s, 3)

		ops := make([]docstore.BulkOp, 0)
		for _, d := range old {
			ops = append(ops, docstore.DeleteOp(d.ID, d.Rev))
		}
		for i := 0; i < 5; i++ {
			ops = append(ops, docstore.InsertOp(docstore.Document{Body: body(t, map[string]any{"roomId": "room-1", "seq": i})}))
		}

		results, err := s.BulkWrite(ctx, "seats", ops)
		require.NoError(t, err)
		require.Len(t, results, 8)
		for _, r := range results[3:] {
			assert.NotEmpty(t, r.ID)
			assert.NotEmpty(t, r.Rev)
		}
		assert.Equal(t, 5, count(t, s))
	})

	t.Run("1件でも失敗すれば何も適用しない", func(t *testing.T) {
		s := openTestStore(t)
		old := seed(t, s, 3)

		_, err := s.BulkWrite(ctx, "seats", []docstore.BulkOp{
			docstore.DeleteOp(old[0].ID, old[0].Rev),
			docstore.DeleteOp(old[1].ID, "9-stale"),
			docstore.DeleteOp("missing", "1-x"),
			docstore.InsertOp(docstore.Document{Body: body(t, map[string]any{"roomId": "room-1", "seq": 7})}),
		})
		require.Error(t, err)

		var bulkErr *docstore.BulkError
		require.ErrorAs(t, err, &bulkErr)
		assert.Equal(t, 0, bulkErr.Applied)
		require.Len(t, bulkErr.Failed, 2)
		assert.Equal(t, 1, bulkErr.Failed[0].Index)
		assert.ErrorIs(t, bulkErr.Failed[0].Err, docstore.ErrConflict)
		assert.ErrorIs(t, bulkErr.Failed[1].Err, docstore.ErrNotFound)
		assert.Equal(t, 3, count(t, s))
	})

	t.Run("削除したIDで挿入し直せる", func(t *testing.T) {
		s := openTestStore(t)
		old := seed(t, s, 1)

		results, err := s.BulkWrite(ctx, "seats", []docstore.BulkOp{
			docstore.DeleteOp(old[0].ID, old[0].Rev),
			docstore.InsertOp(docstore.Document{ID: old[0].ID, Body: body(t, map[string]any{"roomId": "room-1", "seq": 0})}),
		})
		require.NoError(t, err)
		assert.Equal(t, old[0].ID, results[1].ID)
		assert.Equal(t, 1, count(t, s))
	})
}
