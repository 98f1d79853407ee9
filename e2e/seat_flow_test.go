package e2e

import (
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maskerliu/lynx-iot-server/internal/api"
	"github.com/maskerliu/lynx-iot-server/internal/api/handler"
)

// partialFailureResponse は一部失敗時のエラーレスポンス
type partialFailureResponse struct {
	Error   string           `json:"error"`
	Details []api.FailedSeat `json:"details"`
}

func TestE2E_HealthCheck(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *TestServer) {
		rec := s.Request(http.MethodGet, "/health", nil, "")

		assert.Equal(t, http.StatusOK, rec.Code)
		resp := decode[handler.HealthResponse](t, rec)
		assert.Equal(t, "ok", resp.Status)
		assert.Equal(t, "ok", resp.Checks["store"])
	})
}

func TestE2E_CompleteSeatJourney(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *TestServer) {
		const owner, guest = "owner-1", "guest-1"

		// 1. ルーム作成（4席）
		roomID := s.createRoom(t, owner, 4)

		rec := s.Request(http.MethodGet, "/api/v1/rooms/"+roomID+"/seats", nil, "")
		require.Equal(t, http.StatusOK, rec.Code)
		seats := decode[[]handler.SeatResponse](t, rec)
		require.Len(t, seats, 4)
		for i, st := range seats {
			assert.Equal(t, i, st.Seq)
			assert.Empty(t, st.Occupant)
		}

		// 2. 座席1に着席申請
		rec = s.Request(http.MethodPost, "/api/v1/rooms/"+roomID+"/requests", map[string]any{"seq": 1}, guest)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		// 3. 処理対象の申請に含まれる
		rec = s.Request(http.MethodGet, "/api/v1/rooms/"+roomID+"/requests", nil, owner)
		require.Equal(t, http.StatusOK, rec.Code)
		due := decode[[]handler.SeatRequestResponse](t, rec)
		require.Len(t, due, 1)
		assert.Equal(t, guest, due[0].UID)

		// 4. 承認
		rec = s.Request(http.MethodPost, "/api/v1/rooms/"+roomID+"/requests/"+guest+"/grant", nil, owner)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		granted := decode[handler.SeatResponse](t, rec)
		assert.Equal(t, 1, granted.Seq)
		assert.Equal(t, guest, granted.Occupant)

		rec = s.Request(http.MethodGet, "/api/v1/rooms/"+roomID+"/seats/1", nil, "")
		assert.Equal(t, guest, decode[handler.SeatResponse](t, rec).Occupant)

		// 5. 申請は消えている
		rec = s.Request(http.MethodGet, "/api/v1/rooms/"+roomID+"/requests", nil, owner)
		assert.Empty(t, decode[[]handler.SeatRequestResponse](t, rec))

		// 6. 退席（2回目は何もしない）
		rec = s.Request(http.MethodPost, "/api/v1/rooms/"+roomID+"/seats/1/release", nil, guest)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, decode[handler.ReleaseResponse](t, rec).Released)

		rec = s.Request(http.MethodPost, "/api/v1/rooms/"+roomID+"/seats/1/release", nil, guest)
		assert.False(t, decode[handler.ReleaseResponse](t, rec).Released)

		rec = s.Request(http.MethodGet, "/api/v1/rooms/"+roomID+"/seats/1", nil, "")
		assert.Empty(t, decode[handler.SeatResponse](t, rec).Occupant)
	})
}

func TestE2E_SeatContention(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *TestServer) {
		roomID := s.createRoom(t, "owner", 2)

		const users = 5
		for i := 0; i < users; i++ {
			rec := s.Request(http.MethodPost, "/api/v1/rooms/"+roomID+"/requests", map[string]any{"seq": 0}, fmt.Sprintf("u%d", i))
			require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		}

		// 同じ座席への承認を同時に実行
		codes := make([]int, users)
		var wg sync.WaitGroup
		for i := 0; i < users; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				rec := s.Request(http.MethodPost, fmt.Sprintf("/api/v1/rooms/%s/requests/u%d/grant", roomID, i), nil, "owner")
				codes[i] = rec.Code
			}(i)
		}
		wg.Wait()

		var ok, taken int
		for _, code := range codes {
			switch code {
			case http.StatusOK:
				ok++
			case http.StatusConflict:
				taken++
			}
		}
		assert.Equal(t, 1, ok, "座席0に着席できるのは1人だけ")
		assert.Equal(t, users-1, taken)

		// 負けた申請は残っている
		rec := s.Request(http.MethodGet, "/api/v1/rooms/"+roomID+"/requests", nil, "owner")
		assert.Len(t, decode[[]handler.SeatRequestResponse](t, rec), users-1)

		// 残りの1人は別の席に座れる
		rec = s.Request(http.MethodGet, "/api/v1/rooms/"+roomID+"/seats/0", nil, "")
		winner := decode[handler.SeatResponse](t, rec).Occupant
		loser := "u0"
		if winner == loser {
			loser = "u1"
		}
		rec = s.Request(http.MethodPost, "/api/v1/rooms/"+roomID+"/requests/"+loser+"/grant", map[string]any{"seq": 1}, "owner")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, 1, decode[handler.SeatResponse](t, rec).Seq)
	})
}

func TestE2E_RequestLifecycle(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *TestServer) {
		roomID := s.createRoom(t, "owner", 1)
		base := "/api/v1/rooms/" + roomID + "/requests"

		t.Run("重複申請は409", func(t *testing.T) {
			rec := s.Request(http.MethodPost, base, nil, "u1")
			require.Equal(t, http.StatusCreated, rec.Code)

			rec = s.Request(http.MethodPost, base, map[string]any{"seq": 0}, "u1")
			assert.Equal(t, http.StatusConflict, rec.Code)
			assert.Equal(t, http.StatusConflict, decode[api.ErrorResponse](t, rec).Code)
		})

		t.Run("取り下げ後の承認は410", func(t *testing.T) {
			rec := s.Request(http.MethodDelete, base, nil, "u1")
			require.Equal(t, http.StatusOK, rec.Code)
			assert.True(t, decode[handler.WithdrawResponse](t, rec).Withdrawn)

			rec = s.Request(http.MethodDelete, base, nil, "u1")
			assert.False(t, decode[handler.WithdrawResponse](t, rec).Withdrawn)

			rec = s.Request(http.MethodPost, base+"/u1/grant", nil, "owner")
			assert.Equal(t, http.StatusGone, rec.Code)
		})

		t.Run("満席なら409", func(t *testing.T) {
			require.Equal(t, http.StatusCreated, s.Request(http.MethodPost, base, nil, "u2").Code)
			require.Equal(t, http.StatusCreated, s.Request(http.MethodPost, base, nil, "u3").Code)

			require.Equal(t, http.StatusOK, s.Request(http.MethodPost, base+"/u2/grant", nil, "owner").Code)
			assert.Equal(t, http.StatusConflict, s.Request(http.MethodPost, base+"/u3/grant", nil, "owner").Code)
		})

		t.Run("存在しない座席への申請は404", func(t *testing.T) {
			rec := s.Request(http.MethodPost, base, map[string]any{"seq": 7}, "u4")
			assert.Equal(t, http.StatusNotFound, rec.Code)
		})

		t.Run("存在しないルームは404", func(t *testing.T) {
			rec := s.Request(http.MethodPost, "/api/v1/rooms/missing/requests", nil, "u4")
			assert.Equal(t, http.StatusNotFound, rec.Code)
		})

		t.Run("ユーザーIDがなければ401", func(t *testing.T) {
			rec := s.Request(http.MethodPost, base, nil, "")
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	})
}

func TestE2E_LayoutAndBulkUpdate(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *TestServer) {
		roomID := s.createRoom(t, "owner", 2)
		seatsPath := "/api/v1/rooms/" + roomID + "/seats"

		t.Run("オーナー以外はレイアウトを変更できない", func(t *testing.T) {
			rec := s.Request(http.MethodPut, seatsPath, map[string]any{"seats": []map[string]any{{"seq": 0}}}, "someone")
			assert.Equal(t, http.StatusForbidden, rec.Code)
		})

		t.Run("レイアウトを置き換える", func(t *testing.T) {
			rec := s.Request(http.MethodPut, seatsPath, map[string]any{
				"seats": []map[string]any{{"seq": 0}, {"seq": 1}, {"seq": 2, "occupant": "owner"}},
			}, "owner")
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			rec = s.Request(http.MethodGet, seatsPath, nil, "")
			seats := decode[[]handler.SeatResponse](t, rec)
			require.Len(t, seats, 3)
			assert.Equal(t, "owner", seats[2].Occupant)
		})

		t.Run("座席番号の重複は400", func(t *testing.T) {
			rec := s.Request(http.MethodPut, seatsPath, map[string]any{
				"seats": []map[string]any{{"seq": 0}, {"seq": 0}},
			}, "owner")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})

		t.Run("古いリビジョンの座席だけが失敗する", func(t *testing.T) {
			seats := decode[[]handler.SeatResponse](t, s.Request(http.MethodGet, seatsPath, nil, ""))
			require.Len(t, seats, 3)

			updates := []map[string]any{
				{"id": seats[0].ID, "seq": 0, "occupant": "a", "rev": seats[0].Rev},
				{"id": seats[1].ID, "seq": 1, "occupant": "b", "rev": "1-stale"},
			}
			rec := s.Request(http.MethodPatch, seatsPath, map[string]any{"seats": updates}, "owner")
			require.Equal(t, http.StatusInternalServerError, rec.Code, rec.Body.String())

			resp := decode[partialFailureResponse](t, rec)
			assert.NotEmpty(t, resp.Error)
			require.Len(t, resp.Details, 1)
			assert.Equal(t, 1, resp.Details[0].Seq)

			after := decode[[]handler.SeatResponse](t, s.Request(http.MethodGet, seatsPath, nil, ""))
			assert.Equal(t, "a", after[0].Occupant)
			assert.Empty(t, after[1].Occupant)
		})
	})
}

func TestE2E_RoomsCollectionsAndGifts(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *TestServer) {
		r1 := s.createRoom(t, "owner", 0)
		r2 := s.createRoom(t, "owner", 0)

		t.Run("オーナーのルーム一覧と一括取得", func(t *testing.T) {
			rec := s.Request(http.MethodGet, "/api/v1/rooms?owner=owner", nil, "")
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Len(t, decode[[]handler.RoomResponse](t, rec), 2)

			rec = s.Request(http.MethodPost, "/api/v1/rooms/bulk", map[string]any{"ids": []string{r1, "missing"}}, "")
			rooms := decode[[]handler.RoomResponse](t, rec)
			require.Len(t, rooms, 1)
			assert.Equal(t, r1, rooms[0].ID)
		})

		t.Run("ルーム名の変更", func(t *testing.T) {
			rec := s.Request(http.MethodPatch, "/api/v1/rooms/"+r1, map[string]any{"title": "改名"}, "owner")
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			rec = s.Request(http.MethodGet, "/api/v1/rooms/"+r1, nil, "")
			assert.Equal(t, "改名", decode[handler.RoomResponse](t, rec).Title)

			rec = s.Request(http.MethodPatch, "/api/v1/rooms/"+r1, map[string]any{"title": "x"}, "other")
			assert.Equal(t, http.StatusForbidden, rec.Code)
		})

		t.Run("お気に入りの切り替え", func(t *testing.T) {
			rec := s.Request(http.MethodPost, "/api/v1/rooms/"+r1+"/collect", nil, "fan")
			assert.True(t, decode[handler.CollectedResponse](t, rec).Collected)
			rec = s.Request(http.MethodPost, "/api/v1/rooms/"+r2+"/collect", nil, "fan")
			assert.True(t, decode[handler.CollectedResponse](t, rec).Collected)

			rec = s.Request(http.MethodGet, "/api/v1/collections", nil, "fan")
			assert.Len(t, decode[[]handler.CollectionResponse](t, rec), 2)

			rec = s.Request(http.MethodPost, "/api/v1/rooms/"+r1+"/collect", nil, "fan")
			assert.False(t, decode[handler.CollectedResponse](t, rec).Collected)

			rec = s.Request(http.MethodGet, "/api/v1/rooms/"+r1+"/collect", nil, "fan")
			assert.False(t, decode[handler.CollectedResponse](t, rec).Collected)
		})

		t.Run("ギフト", func(t *testing.T) {
			rec := s.Request(http.MethodPost, "/api/v1/rooms/"+r1+"/gifts", map[string]any{
				"payload": map[string]any{"kind": "rose"},
			}, "fan")
			require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

			rec = s.Request(http.MethodPost, "/api/v1/rooms/missing/gifts", map[string]any{"payload": map[string]any{}}, "fan")
			assert.Equal(t, http.StatusNotFound, rec.Code)

			rec = s.Request(http.MethodGet, "/api/v1/gifts", nil, "fan")
			gifts := decode[[]handler.GiftResponse](t, rec)
			require.Len(t, gifts, 1)
			assert.JSONEq(t, `{"kind":"rose"}`, string(gifts[0].Payload))
		})
	})
}

func TestE2E_Metrics(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *TestServer) {
		roomID := s.createRoom(t, "owner", 1)
		s.Request(http.MethodPost, "/api/v1/rooms/"+roomID+"/requests", nil, "u1")
		s.Request(http.MethodPost, "/api/v1/rooms/"+roomID+"/requests/u1/grant", nil, "owner")

		rec := s.Request(http.MethodGet, "/metrics", nil, "")
		require.Equal(t, http.StatusOK, rec.Code)
		body := rec.Body.String()
		assert.Contains(t, body, `seat_transitions_total{operation="grant",result="success"} 1`)
		assert.Contains(t, body, `http_requests_total`)
		assert.Contains(t, body, `/api/v1/rooms/:room_id/requests`)
	})
}
