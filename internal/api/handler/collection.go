package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/maskerliu/lynx-iot-server/internal/api"
)

type CollectionHandler struct {
	service CollectionServiceInterface
}

func NewCollectionHandler(s CollectionServiceInterface) *CollectionHandler {
	return &CollectionHandler{service: s}
}

type CollectedResponse struct {
	RoomID    string `json:"room_id"`
	Collected bool   `json:"collected"`
}

type CollectionResponse struct {
	RoomID    string    `json:"room_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Toggle はお気に入りの登録と解除を切り替える
func (h *CollectionHandler) Toggle(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	roomID := c.Param("room_id")
	collected, err := h.service.Collect(c.Request().Context(), uid, roomID)
	if err != nil {
		return api.NewHTTPError(err)
	}
	return c.JSON(http.StatusOK, CollectedResponse{RoomID: roomID, Collected: collected})
}

func (h *CollectionHandler) Status(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	roomID := c.Param("room_id")
	collected, err := h.service.IsCollected(c.Request().Context(), uid, roomID)
	if err != nil {
		return api.NewHTTPError(err)
	}
	return c.JSON(http.StatusOK, CollectedResponse{RoomID: roomID, Collected: collected})
}

// List は自分のお気に入りを新しい順に返す
func (h *CollectionHandler) List(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	cols, err := h.service.ListCollections(c.Request().Context(), uid)
	if err != nil {
		return api.NewHTTPError(err)
	}
	resp := make([]CollectionResponse, len(cols))
	for i, col := range cols {
		resp[i] = CollectionResponse{RoomID: col.RoomID, Timestamp: col.Timestamp}
	}
	return c.JSON(http.StatusOK, resp)
}
