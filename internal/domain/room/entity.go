package room

import "time"

// Type はルームの種別（音声・ビデオなど）。値の意味は上位層が決める
type Type string

// Room はチャットルームのメタデータを表す
// Owner と Type は作成後に変更しない
type Room struct {
	ID        string
	Owner     string
	Type      Type
	Title     string
	CreatedAt time.Time
	Rev       string
}

// NewRoom は新しいルームを作成する
func NewRoom(owner string, typ Type, title string) *Room {
	return &Room{
		Owner:     owner,
		Type:      typ,
		Title:     title,
		CreatedAt: time.Now(),
	}
}

// IsOwnedBy は指定ユーザーがオーナーかを返す
func (r *Room) IsOwnedBy(uid string) bool {
	return uid != "" && r.Owner == uid
}

// Rename はタイトルを変更する
func (r *Room) Rename(title string) error {
	if len([]rune(title)) > MaxTitleLength {
		return ErrTitleTooLong
	}
	r.Title = title
	return nil
}

// MaxTitleLength はタイトルの最大文字数
const MaxTitleLength = 64

// Validate はルームの検証を行う
func (r *Room) Validate() error {
	if r.Owner == "" {
		return ErrOwnerRequired
	}
	if r.Type == "" {
		return ErrTypeRequired
	}
	if len([]rune(r.Title)) > MaxTitleLength {
		return ErrTitleTooLong
	}
	return nil
}
