// Package docstore はドキュメントストアへのアクセスを抽象化する
// コレクション単位でセレクタ検索・挿入・更新・削除・一括書き込みを提供し、
// 書き込みはリビジョンによる楽観的ロックで保護される
package docstore

import (
	"context"
	"encoding/json"
)

// IDField はセレクタでドキュメントIDを指すための予約フィールド名
const IDField = "_id"

// Document はストアに保存される1件のドキュメント
// Body はJSONオブジェクトで、ID と Rev は Body の外側で管理する
type Document struct {
	ID   string
	Rev  string
	Body json.RawMessage
}

// Index は複合インデックスの定義
type Index struct {
	Name   string
	Fields []string
}

// SortField はソート条件
type SortField struct {
	Field string
	Desc  bool
}

// Asc は昇順ソート条件を返す
func Asc(field string) SortField { return SortField{Field: field} }

// Desc は降順ソート条件を返す
func Desc(field string) SortField { return SortField{Field: field, Desc: true} }

// Query は Find の検索条件
type Query struct {
	Selector Selector
	Sort     []SortField
	// Index は使用するインデックス名のヒント。空ならストアに任せる
	Index string
	// Limit が0以下なら無制限
	Limit int
}

// BulkKind は一括書き込みの操作種別
type BulkKind int

const (
	BulkInsert BulkKind = iota
	BulkDelete
)

func (k BulkKind) String() string {
	switch k {
	case BulkInsert:
		return "insert"
	case BulkDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// BulkOp は一括書き込みの1操作
// BulkDelete の場合は Doc.ID と Doc.Rev のみ参照する
type BulkOp struct {
	Kind BulkKind
	Doc  Document
}

// InsertOp は挿入操作を返す
func InsertOp(doc Document) BulkOp { return BulkOp{Kind: BulkInsert, Doc: doc} }

// DeleteOp は削除操作を返す
func DeleteOp(id, rev string) BulkOp {
	return BulkOp{Kind: BulkDelete, Doc: Document{ID: id, Rev: rev}}
}

// BulkResult は一括書き込みの操作ごとの結果
type BulkResult struct {
	Index int
	Kind  BulkKind
	ID    string
	Rev   string
	Err   error
}

// Store はドキュメントストアのインターフェース
type Store interface {
	// Find はセレクタに一致するドキュメントをソート順で返す
	Find(ctx context.Context, collection string, q Query) ([]Document, error)

	// Insert はドキュメントを挿入し、採番されたIDと初期リビジョンを返す
	Insert(ctx context.Context, collection string, doc Document) (Document, error)

	// Update はリビジョンが一致する場合のみドキュメントを更新する
	Update(ctx context.Context, collection string, doc Document) (Document, error)

	// Delete はリビジョンが一致する場合のみドキュメントを削除する
	Delete(ctx context.Context, collection, id, rev string) error

	// BulkWrite は挿入・削除をまとめて適用する
	// 失敗した操作がある場合は *BulkError を返す
	BulkWrite(ctx context.Context, collection string, ops []BulkOp) ([]BulkResult, error)

	// EnsureIndex はインデックスを作成する（既存なら何もしない）
	EnsureIndex(ctx context.Context, collection string, idx Index) error

	Ping(ctx context.Context) error
	Close() error
}
