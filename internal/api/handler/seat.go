package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/maskerliu/lynx-iot-server/internal/api"
	"github.com/maskerliu/lynx-iot-server/internal/application"
	"github.com/maskerliu/lynx-iot-server/internal/domain/seat"
)

type SeatHandler struct {
	service SeatServiceInterface
}

func NewSeatHandler(s SeatServiceInterface) *SeatHandler {
	return &SeatHandler{service: s}
}

type LayoutSeat struct {
	Seq      int    `json:"seq" validate:"min=0"`
	Occupant string `json:"occupant,omitempty"`
}

type ReplaceLayoutRequest struct {
	Seats []LayoutSeat `json:"seats" validate:"max=64,dive"`
}

type SeatUpdate struct {
	ID       string `json:"id" validate:"required"`
	Seq      int    `json:"seq" validate:"min=0"`
	Occupant string `json:"occupant"`
	Rev      string `json:"rev" validate:"required"`
}

type UpdateSeatsRequest struct {
	Seats []SeatUpdate `json:"seats" validate:"required,min=1,max=64,dive"`
}

type SeatResponse struct {
	ID       string `json:"id"`
	RoomID   string `json:"room_id"`
	Seq      int    `json:"seq"`
	Occupant string `json:"occupant"`
	Rev      string `json:"rev"`
}

type ReleaseResponse struct {
	Released bool `json:"released"`
}

func toSeatResponse(s *seat.Seat) SeatResponse {
	return SeatResponse{ID: s.ID, RoomID: s.RoomID, Seq: s.Seq, Occupant: s.Occupant, Rev: s.Rev}
}

func toSeatResponses(seats []*seat.Seat) []SeatResponse {
	resp := make([]SeatResponse, len(seats))
	for i, s := range seats {
		resp[i] = toSeatResponse(s)
	}
	return resp
}

// List godoc
// @Summary ルームの座席一覧を取得
// @Tags seats
// @Produce json
// @Param room_id path string true "ルームID"
// @Success 200 {array} SeatResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /rooms/{room_id}/seats [get]
func (h *SeatHandler) List(c echo.Context) error {
	seats, err := h.service.ListSeats(c.Request().Context(), c.Param("room_id"))
	if err != nil {
		return api.NewHTTPError(err)
	}
	return c.JSON(http.StatusOK, toSeatResponses(seats))
}

// Get godoc
// @Summary 座席を取得
// @Tags seats
// @Produce json
// @Param room_id path string true "ルームID"
// @Param seq path int true "座席番号"
// @Success 200 {object} SeatResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /rooms/{room_id}/seats/{seq} [get]
func (h *SeatHandler) Get(c echo.Context) error {
	seq, err := seqParam(c)
	if err != nil {
		return err
	}
	s, err := h.service.GetSeat(c.Request().Context(), c.Param("room_id"), seq)
	if err != nil {
		return api.NewHTTPError(err)
	}
	return c.JSON(http.StatusOK, toSeatResponse(s))
}

// ReplaceLayout godoc
// @Summary 座席レイアウトを置き換え
// @Description オーナーのみ実行できます。置き換え中は同じルームの着席・退席を待たせます
// @Tags seats
// @Accept json
// @Produce json
// @Param X-User-ID header string true "ユーザーID"
// @Param room_id path string true "ルームID"
// @Param request body ReplaceLayoutRequest true "新しいレイアウト"
// @Success 200 {array} SeatResponse
// @Failure 400 {object} api.ErrorResponse
// @Failure 403 {object} api.ErrorResponse
// @Router /rooms/{room_id}/seats [put]
func (h *SeatHandler) ReplaceLayout(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	var req ReplaceLayoutRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	roomID := c.Param("room_id")
	layout := make([]*seat.Seat, len(req.Seats))
	for i, ls := range req.Seats {
		layout[i] = &seat.Seat{RoomID: roomID, Seq: ls.Seq, Occupant: ls.Occupant}
	}
	seats, err := h.service.ReplaceLayout(c.Request().Context(), application.ReplaceLayoutInput{
		RoomID: roomID, Actor: uid, Seats: layout,
	})
	if err != nil {
		return api.NewHTTPError(err)
	}
	return c.JSON(http.StatusOK, toSeatResponses(seats))
}

// Update godoc
// @Summary 座席をまとめて更新
// @Description 読み取ったリビジョンで楽観的に更新します。失敗した座席は details に返します
// @Tags seats
// @Accept json
// @Produce json
// @Param room_id path string true "ルームID"
// @Param request body UpdateSeatsRequest true "更新内容"
// @Success 200 {array} SeatResponse
// @Failure 403 {object} api.ErrorResponse "オーナーではない"
// @Failure 500 {object} api.ErrorResponse "一部の座席が更新できなかった"
// @Router /rooms/{room_id}/seats [patch]
func (h *SeatHandler) Update(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	var req UpdateSeatsRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	roomID := c.Param("room_id")
	seats := make([]*seat.Seat, len(req.Seats))
	for i, su := range req.Seats {
		seats[i] = &seat.Seat{ID: su.ID, RoomID: roomID, Seq: su.Seq, Occupant: su.Occupant, Rev: su.Rev}
	}
	updated, err := h.service.UpdateSeats(c.Request().Context(), application.UpdateSeatsInput{
		RoomID: roomID, Actor: uid, Seats: seats,
	})
	if err != nil {
		return api.NewHTTPError(err)
	}
	return c.JSON(http.StatusOK, toSeatResponses(updated))
}

// Release godoc
// @Summary 座席を離れる
// @Description 自分が座っていない座席の場合は何もせず released=false を返します
// @Tags seats
// @Produce json
// @Param X-User-ID header string true "ユーザーID"
// @Param room_id path string true "ルームID"
// @Param seq path int true "座席番号"
// @Success 200 {object} ReleaseResponse
// @Router /rooms/{room_id}/seats/{seq}/release [post]
func (h *SeatHandler) Release(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	seq, err := seqParam(c)
	if err != nil {
		return err
	}
	released, err := h.service.ReleaseSeat(c.Request().Context(), c.Param("room_id"), seq, uid)
	if err != nil {
		return api.NewHTTPError(err)
	}
	return c.JSON(http.StatusOK, ReleaseResponse{Released: released})
}
