package sqldoc

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/maskerliu/lynx-iot-server/internal/docstore"
	"github.com/maskerliu/lynx-iot-server/internal/pkg/logger"
)

type docRow struct {
	ID   string `db:"id"`
	Rev  string `db:"rev"`
	Body []byte `db:"body"`
}

// Store は documents テーブルを使うドキュメントストア
type Store struct {
	db      *sqlx.DB
	dialect Dialect

	// 作成済みと確認できたインデックス（collection/name）
	indexes sync.Map
}

// New は Store を作成する。テーブルは作成済みである前提
func New(db *sqlx.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

func checkBody(raw json.RawMessage) ([]byte, error) {
	if len(raw) == 0 {
		return []byte("{}"), nil
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("ドキュメントはJSONオブジェクトである必要があります: %w", err)
	}
	return raw, nil
}

// Find はセレクタに一致するドキュメントを返す
func (s *Store) Find(ctx context.Context, collection string, q docstore.Query) ([]docstore.Document, error) {
	if q.Index != "" {
		if err := s.requireIndex(ctx, collection, q.Index); err != nil {
			return nil, err
		}
	}

	where, args, err := s.where(collection, q.Selector)
	if err != nil {
		return nil, err
	}
	order, err := s.orderBy(q.Sort)
	if err != nil {
		return nil, err
	}

	query := "SELECT id, rev, body FROM documents WHERE " + where + " ORDER BY " + order
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	var rows []docRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("ドキュメント検索に失敗: %w", err)
	}

	docs := make([]docstore.Document, len(rows))
	for i, r := range rows {
		docs[i] = docstore.Document{ID: r.ID, Rev: r.Rev, Body: json.RawMessage(r.Body)}
	}
	return docs, nil
}

func (s *Store) requireIndex(ctx context.Context, collection, name string) error {
	key := collection + "/" + name
	if _, ok := s.indexes.Load(key); ok {
		return nil
	}
	var n int
	err := s.db.GetContext(ctx, &n, s.db.Rebind(
		"SELECT COUNT(*) FROM document_indexes WHERE collection = ? AND name = ?"), collection, name)
	if err != nil {
		return fmt.Errorf("インデックス確認に失敗: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s/%s", docstore.ErrIndexNotFound, collection, name)
	}
	s.indexes.Store(key, struct{}{})
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Rebind(query string) string
}

func (s *Store) insert(ctx context.Context, ex execer, collection string, doc docstore.Document) (docstore.Document, error) {
	body, err := checkBody(doc.Body)
	if err != nil {
		return docstore.Document{}, err
	}
	id := doc.ID
	if id == "" {
		id = docstore.NewID()
	}
	rev := docstore.NextRev("")

	_, err = ex.ExecContext(ctx, ex.Rebind(
		"INSERT INTO documents (collection, id, rev, body) VALUES (?, ?, ?, ?)"),
		collection, id, rev, string(body))
	if err != nil {
		if s.dialect.IsUniqueViolation(err) {
			return docstore.Document{}, fmt.Errorf("%w: ID %s は既に存在します", docstore.ErrConflict, id)
		}
		return docstore.Document{}, fmt.Errorf("ドキュメント挿入に失敗: %w", err)
	}
	return docstore.Document{ID: id, Rev: rev, Body: json.RawMessage(body)}, nil
}

// Insert はドキュメントを挿入する。ID未指定なら採番する
func (s *Store) Insert(ctx context.Context, collection string, doc docstore.Document) (docstore.Document, error) {
	inserted, err := s.insert(ctx, s.db, collection, doc)
	if err != nil {
		return docstore.Document{}, err
	}
	logger.Debug("ドキュメント挿入",
		zap.String("collection", collection),
		zap.String("id", inserted.ID),
	)
	return inserted, nil
}

// Update はリビジョンが一致する場合のみ更新する
func (s *Store) Update(ctx context.Context, collection string, doc docstore.Document) (docstore.Document, error) {
	body, err := checkBody(doc.Body)
	if err != nil {
		return docstore.Document{}, err
	}
	rev := docstore.NextRev(doc.Rev)

	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		"UPDATE documents SET rev = ?, body = ? WHERE collection = ? AND id = ? AND rev = ?"),
		rev, string(body), collection, doc.ID, doc.Rev)
	if err != nil {
		return docstore.Document{}, fmt.Errorf("ドキュメント更新に失敗: %w", err)
	}
	if err := s.checkAffected(ctx, res, collection, doc.ID, doc.Rev); err != nil {
		return docstore.Document{}, err
	}
	return docstore.Document{ID: doc.ID, Rev: rev, Body: json.RawMessage(body)}, nil
}

// Delete はリビジョンが一致する場合のみ削除する
func (s *Store) Delete(ctx context.Context, collection, id, rev string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		"DELETE FROM documents WHERE collection = ? AND id = ? AND rev = ?"),
		collection, id, rev)
	if err != nil {
		return fmt.Errorf("ドキュメント削除に失敗: %w", err)
	}
	return s.checkAffected(ctx, res, collection, id, rev)
}

// checkAffected は0件更新の原因が NotFound か Conflict かを判定する
func (s *Store) checkAffected(ctx context.Context, res sql.Result, collection, id, rev string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新件数の取得に失敗: %w", err)
	}
	if n > 0 {
		return nil
	}

	var current string
	err = s.db.GetContext(ctx, &current, s.db.Rebind(
		"SELECT rev FROM documents WHERE collection = ? AND id = ?"), collection, id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s/%s", docstore.ErrNotFound, collection, id)
	}
	if err != nil {
		return fmt.Errorf("リビジョン確認に失敗: %w", err)
	}
	return fmt.Errorf("%w: %s/%s (期待 %s, 現在 %s)", docstore.ErrConflict, collection, id, rev, current)
}

// BulkWrite は1トランザクション内で全操作を検証してから適用する
// 失敗した操作があればロールバックし、Applied=0 の *BulkError を返す
func (s *Store) BulkWrite(ctx context.Context, collection string, ops []docstore.BulkOp) ([]docstore.BulkResult, error) {
	results := make([]docstore.BulkResult, len(ops))
	for i, op := range ops {
		results[i] = docstore.BulkResult{Index: i, Kind: op.Kind, ID: op.Doc.ID}
	}
	if len(ops) == 0 {
		return results, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	current, err := s.lockCurrent(ctx, tx, collection, ops)
	if err != nil {
		return nil, err
	}

	// 検証フェーズ
	var failed []docstore.BulkResult
	deleted := make(map[string]bool)
	inserted := make(map[string]bool)
	for i, op := range ops {
		var err error
		switch op.Kind {
		case docstore.BulkDelete:
			rev, exists := current[op.Doc.ID]
			switch {
			case deleted[op.Doc.ID]:
				err = fmt.Errorf("%w: %s はバッチ内で既に削除されています", docstore.ErrConflict, op.Doc.ID)
			case !exists:
				err = fmt.Errorf("%w: %s", docstore.ErrNotFound, op.Doc.ID)
			case rev != op.Doc.Rev:
				err = fmt.Errorf("%w: %s (期待 %s, 現在 %s)", docstore.ErrConflict, op.Doc.ID, op.Doc.Rev, rev)
			}
			deleted[op.Doc.ID] = true
		case docstore.BulkInsert:
			if _, err = checkBody(op.Doc.Body); err != nil || op.Doc.ID == "" {
				break
			}
			if inserted[op.Doc.ID] {
				err = fmt.Errorf("%w: ID %s がバッチ内で重複しています", docstore.ErrConflict, op.Doc.ID)
			} else if _, exists := current[op.Doc.ID]; exists && !deleted[op.Doc.ID] {
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
		var err error
		switch op.Kind {
		case docstore.BulkDelete:
			_, err = tx.ExecContext(ctx, tx.Rebind(
				"DELETE FROM documents WHERE collection = ? AND id = ? AND rev = ?"),
				collection, op.Doc.ID, op.Doc.Rev)
		case docstore.BulkInsert:
			var doc docstore.Document
			doc, err = s.insert(ctx, tx, collection, op.Doc)
			results[i].ID = doc.ID
			results[i].Rev = doc.Rev
		}
		if err != nil {
			results[i].Err = err
			return results, &docstore.BulkError{Failed: []docstore.BulkResult{results[i]}, Applied: 0}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("トランザクションのコミットに失敗: %w", err)
	}

	logger.Debug("一括書き込み",
		zap.String("collection", collection),
		zap.Int("ops", len(ops)),
	)
	return results, nil
}

// lockCurrent はバッチが触れるIDの現在のリビジョンを取得する
func (s *Store) lockCurrent(ctx context.Context, tx *sqlx.Tx, collection string, ops []docstore.BulkOp) (map[string]string, error) {
	ids := make([]any, 0, len(ops))
	for _, op := range ops {
		if op.Doc.ID != "" {
			ids = append(ids, op.Doc.ID)
		}
	}
	current := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return current, nil
	}

	query := "SELECT id, rev FROM documents WHERE collection = ? AND id IN (?" +
		strings.Repeat(", ?", len(ids)-1) + ")" + s.dialect.LockClause()
	args := append([]any{collection}, ids...)

	var rows []docRow
	if err := tx.SelectContext(ctx, &rows, tx.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("リビジョン確認に失敗: %w", err)
	}
	for _, r := range rows {
		current[r.ID] = r.Rev
	}
	return current, nil
}

// EnsureIndex はインデックスを作成し、定義を document_indexes に記録する
func (s *Store) EnsureIndex(ctx context.Context, collection string, idx docstore.Index) error {
	if idx.Name == "" || len(idx.Fields) == 0 {
		return fmt.Errorf("%w: インデックス名とフィールドは必須です", docstore.ErrInvalidQuery)
	}
	if err := checkName(collection); err != nil {
		return err
	}
	if err := checkName(idx.Name); err != nil {
		return err
	}

	cols := make([]string, len(idx.Fields))
	for i, f := range idx.Fields {
		col, err := s.column(f)
		if err != nil {
			return err
		}
		cols[i] = "(" + col + ")"
	}

	ddl := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON documents (%s) WHERE collection = '%s'",
		indexName(collection, idx.Name), strings.Join(cols, ", "), collection)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("インデックス作成に失敗 (%s/%s): %w", collection, idx.Name, err)
	}

	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		"INSERT INTO document_indexes (collection, name, fields) VALUES (?, ?, ?) ON CONFLICT (collection, name) DO UPDATE SET fields = excluded.fields"),
		collection, idx.Name, strings.Join(idx.Fields, ","))
	if err != nil {
		return fmt.Errorf("インデックス定義の保存に失敗: %w", err)
	}
	s.indexes.Store(collection+"/"+idx.Name, struct{}{})
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

var _ docstore.Store = (*Store)(nil)
