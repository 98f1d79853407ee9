package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/maskerliu/lynx-iot-server/internal/api"
	"github.com/maskerliu/lynx-iot-server/internal/domain/gift"
)

type GiftHandler struct {
	service GiftServiceInterface
}

func NewGiftHandler(s GiftServiceInterface) *GiftHandler {
	return &GiftHandler{service: s}
}

type SendGiftRequest struct {
	Payload json.RawMessage `json:"payload" validate:"required"`
}

type GiftResponse struct {
	ID        string          `json:"id"`
	UID       string          `json:"uid"`
	RoomID    string          `json:"room_id"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

func toGiftResponse(g *gift.Gift) GiftResponse {
	return GiftResponse{ID: g.ID, UID: g.UID, RoomID: g.RoomID, Payload: g.Payload, Timestamp: g.Timestamp}
}

// Send godoc
// @Summary ギフトを送る
// @Tags gifts
// @Accept json
// @Produce json
// @Param X-User-ID header string true "ユーザーID"
// @Param room_id path string true "ルームID"
// @Param request body SendGiftRequest true "ギフト内容"
// @Success 201 {object} GiftResponse
// @Router /rooms/{room_id}/gifts [post]
func (h *GiftHandler) Send(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	var req SendGiftRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	g, err := h.service.SendGift(c.Request().Context(), uid, c.Param("room_id"), req.Payload)
	if err != nil {
		return api.NewHTTPError(err)
	}
	return c.JSON(http.StatusCreated, toGiftResponse(g))
}

// ListSent godoc
// @Summary 送ったギフトの一覧
// @Tags gifts
// @Produce json
// @Param X-User-ID header string true "ユーザーID"
// @Param limit query int false "取得件数" default(50)
// @Success 200 {array} GiftResponse
// @Router /gifts [get]
func (h *GiftHandler) ListSent(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	gifts, err := h.service.ListSentGifts(c.Request().Context(), uid, limit)
	if err != nil {
		return api.NewHTTPError(err)
	}
	resp := make([]GiftResponse, len(gifts))
	for i, g := range gifts {
		resp[i] = toGiftResponse(g)
	}
	return c.JSON(http.StatusOK, resp)
}
