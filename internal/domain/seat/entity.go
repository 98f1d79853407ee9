package seat

// Seat はルーム内の1つの座席を表す
// Occupant が空文字なら空席
type Seat struct {
	ID       string
	RoomID   string
	Seq      int
	Occupant string
	Rev      string // 楽観的ロック用
}

// NewSeat は空席を作成する
func NewSeat(roomID string, seq int) *Seat {
	return &Seat{
		RoomID: roomID,
		Seq:    seq,
	}
}

// NewLayout は 0..count-1 の空席を作成する
func NewLayout(roomID string, count int) ([]*Seat, error) {
	if count < 0 {
		return nil, ErrInvalidSeatCount
	}
	seats := make([]*Seat, count)
	for i := range seats {
		seats[i] = NewSeat(roomID, i)
	}
	return seats, nil
}

// IsEmpty は空席かを返す
func (s *Seat) IsEmpty() bool {
	return s.Occupant == ""
}

// IsOccupiedBy は指定ユーザーが着席しているかを返す
func (s *Seat) IsOccupiedBy(uid string) bool {
	return uid != "" && s.Occupant == uid
}

// Occupy は座席にユーザーを着席させる
func (s *Seat) Occupy(uid string) error {
	if uid == "" {
		return ErrUIDRequired
	}
	if !s.IsEmpty() {
		return ErrSeatTaken
	}
	s.Occupant = uid
	return nil
}

// Vacate は座席を空ける
func (s *Seat) Vacate() {
	s.Occupant = ""
}

// Validate は座席の検証を行う
func (s *Seat) Validate() error {
	if s.RoomID == "" {
		return ErrRoomIDRequired
	}
	if s.Seq < 0 {
		return ErrInvalidSeq
	}
	return nil
}

// ValidateLayout はレイアウト全体を検証する
// 各座席のルームIDを roomID に揃え、seq の重複を拒否する
func ValidateLayout(roomID string, seats []*Seat) error {
	if roomID == "" {
		return ErrRoomIDRequired
	}
	seen := make(map[int]struct{}, len(seats))
	for _, s := range seats {
		s.RoomID = roomID
		if err := s.Validate(); err != nil {
			return err
		}
		if _, dup := seen[s.Seq]; dup {
			return ErrDuplicateSeq
		}
		seen[s.Seq] = struct{}{}
	}
	return nil
}

// FirstEmpty は seq 昇順に並んだ座席から最初の空席を返す
func FirstEmpty(seats []*Seat) (*Seat, bool) {
	for _, s := range seats {
		if s.IsEmpty() {
			return s, true
		}
	}
	return nil, false
}
