package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/maskerliu/lynx-iot-server/internal/api"
	"github.com/maskerliu/lynx-iot-server/internal/application"
	"github.com/maskerliu/lynx-iot-server/internal/domain/seatrequest"
)

type SeatRequestHandler struct {
	service SeatRequestServiceInterface
}

func NewSeatRequestHandler(s SeatRequestServiceInterface) *SeatRequestHandler {
	return &SeatRequestHandler{service: s}
}

// CreateSeatRequestRequest は着席申請の入力。seq 省略時はどの空席でもよい
type CreateSeatRequestRequest struct {
	Seq *int       `json:"seq,omitempty" validate:"omitempty,min=0"`
	At  *time.Time `json:"at,omitempty"`
}

type GrantSeatRequest struct {
	Seq *int `json:"seq,omitempty" validate:"omitempty,min=0"`
}

type SeatRequestResponse struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"room_id"`
	UID       string    `json:"uid"`
	Seq       *int      `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
}

type WithdrawResponse struct {
	Withdrawn bool `json:"withdrawn"`
}

func toSeatRequestResponse(r *seatrequest.SeatRequest) SeatRequestResponse {
	return SeatRequestResponse{ID: r.ID, RoomID: r.RoomID, UID: r.UID, Seq: r.Seq, Timestamp: r.Timestamp}
}

// Create godoc
// @Summary 着席を申請
// @Tags seat-requests
// @Accept json
// @Produce json
// @Param X-User-ID header string true "ユーザーID"
// @Param room_id path string true "ルームID"
// @Param request body CreateSeatRequestRequest false "希望座席"
// @Success 201 {object} SeatRequestResponse
// @Failure 409 {object} api.ErrorResponse "申請済み"
// @Router /rooms/{room_id}/requests [post]
func (h *SeatRequestHandler) Create(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	var req CreateSeatRequestRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	in := application.RequestSeatInput{RoomID: c.Param("room_id"), UID: uid, Seq: req.Seq}
	if req.At != nil {
		in.At = *req.At
	}
	r, err := h.service.RequestSeat(c.Request().Context(), in)
	if err != nil {
		return api.NewHTTPError(err)
	}
	return c.JSON(http.StatusCreated, toSeatRequestResponse(r))
}

// Withdraw godoc
// @Summary 着席申請を取り下げ
// @Description 申請がない場合は withdrawn=false を返します
// @Tags seat-requests
// @Produce json
// @Param X-User-ID header string true "ユーザーID"
// @Param room_id path string true "ルームID"
// @Success 200 {object} WithdrawResponse
// @Router /rooms/{room_id}/requests [delete]
func (h *SeatRequestHandler) Withdraw(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	removed, err := h.service.WithdrawRequest(c.Request().Context(), c.Param("room_id"), uid)
	if err != nil {
		return api.NewHTTPError(err)
	}
	return c.JSON(http.StatusOK, WithdrawResponse{Withdrawn: removed})
}

// ListDue godoc
// @Summary 処理対象の着席申請を取得
// @Description 申請時刻を過ぎたものを古い順に返します
// @Tags seat-requests
// @Produce json
// @Param room_id path string true "ルームID"
// @Success 200 {array} SeatRequestResponse
// @Router /rooms/{room_id}/requests [get]
func (h *SeatRequestHandler) ListDue(c echo.Context) error {
	reqs, err := h.service.ListDueRequests(c.Request().Context(), c.Param("room_id"))
	if err != nil {
		return api.NewHTTPError(err)
	}
	resp := make([]SeatRequestResponse, len(reqs))
	for i, r := range reqs {
		resp[i] = toSeatRequestResponse(r)
	}
	return c.JSON(http.StatusOK, resp)
}

// Grant godoc
// @Summary 着席申請を承認
// @Description 申請者を座席に着席させます。seq を指定すると申請時の座席より優先します
// @Tags seat-requests
// @Accept json
// @Produce json
// @Param X-User-ID header string true "ユーザーID"
// @Param room_id path string true "ルームID"
// @Param uid path string true "申請者"
// @Param request body GrantSeatRequest false "座席"
// @Success 200 {object} SeatResponse
// @Failure 403 {object} api.ErrorResponse "オーナーではない"
// @Failure 409 {object} api.ErrorResponse "座席が使用中"
// @Failure 410 {object} api.ErrorResponse "申請が取り下げ済み"
// @Router /rooms/{room_id}/requests/{uid}/grant [post]
func (h *SeatRequestHandler) Grant(c echo.Context) error {
	actor, err := userID(c)
	if err != nil {
		return err
	}
	var req GrantSeatRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	s, err := h.service.GrantSeat(c.Request().Context(), application.GrantSeatInput{
		RoomID: c.Param("room_id"), UID: c.Param("uid"), Actor: actor, Seq: req.Seq,
	})
	if err != nil {
		return api.NewHTTPError(err)
	}
	return c.JSON(http.StatusOK, toSeatResponse(s))
}
