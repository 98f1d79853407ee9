package gift

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGift_Validate(t *testing.T) {
	tests := []struct {
		name        string
		g           *Gift
		expectedErr error
	}{
		{"有効", NewGift("u1", "room-1", json.RawMessage(`{"kind":"rose","count":3}`)), nil},
		{"ペイロードなし", NewGift("u1", "room-1", nil), nil},
		{"ユーザーIDが空", NewGift("", "room-1", nil), ErrUIDRequired},
		{"ルームIDが空", NewGift("u1", "", nil), ErrRoomIDRequired},
		{"JSONではない", NewGift("u1", "room-1", json.RawMessage(`{broken`)), ErrInvalidPayload},
		{"大きすぎる", NewGift("u1", "room-1", bytes.Repeat([]byte("1"), MaxPayloadSize+1)), ErrPayloadTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.g.Validate()
			if tt.expectedErr != nil {
				assert.ErrorIs(t, err, tt.expectedErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
