package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/maskerliu/lynx-iot-server/internal/api"
	"github.com/maskerliu/lynx-iot-server/internal/application"
	"github.com/maskerliu/lynx-iot-server/internal/domain/room"
)

type RoomHandler struct {
	service RoomServiceInterface
}

func NewRoomHandler(s RoomServiceInterface) *RoomHandler {
	return &RoomHandler{service: s}
}

type CreateRoomRequest struct {
	Type      string `json:"type" validate:"required" example:"voice"`
	Title     string `json:"title" validate:"max=64" example:"雑談部屋"`
	SeatCount int    `json:"seat_count" validate:"min=0,max=64" example:"8"`
}

type RenameRoomRequest struct {
	Title string `json:"title" validate:"max=64" example:"新しいタイトル"`
}

type BulkGetRoomsRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,max=100,dive,required"`
}

type RoomResponse struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

type CreateRoomResponse struct {
	Room  RoomResponse   `json:"room"`
	Seats []SeatResponse `json:"seats"`
}

func toRoomResponse(r *room.Room) RoomResponse {
	return RoomResponse{
		ID: r.ID, Owner: r.Owner, Type: string(r.Type),
		Title: r.Title, CreatedAt: r.CreatedAt,
	}
}

func toRoomResponses(rooms []*room.Room) []RoomResponse {
	resp := make([]RoomResponse, len(rooms))
	for i, r := range rooms {
		resp[i] = toRoomResponse(r)
	}
	return resp
}

// Create godoc
// @Summary ルームを作成
// @Description ルームを作成し、指定数の空席でレイアウトを初期化します
// @Tags rooms
// @Accept json
// @Produce json
// @Param X-User-ID header string true "ユーザーID"
// @Param request body CreateRoomRequest true "ルーム情報"
// @Success 201 {object} CreateRoomResponse
// @Failure 400 {object} api.ErrorResponse
// @Failure 401 {object} api.ErrorResponse
// @Router /rooms [post]
func (h *RoomHandler) Create(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	var req CreateRoomRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	rm, seats, err := h.service.CreateRoom(c.Request().Context(), application.CreateRoomInput{
		Owner: uid, Type: room.Type(req.Type), Title: req.Title, SeatCount: req.SeatCount,
	})
	if err != nil {
		return api.NewHTTPError(err)
	}
	return c.JSON(http.StatusCreated, CreateRoomResponse{
		Room:  toRoomResponse(rm),
		Seats: toSeatResponses(seats),
	})
}

// GetByID godoc
// @Summary ルームを取得
// @Tags rooms
// @Produce json
// @Param room_id path string true "ルームID"
// @Success 200 {object} RoomResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /rooms/{room_id} [get]
func (h *RoomHandler) GetByID(c echo.Context) error {
	rm, err := h.service.GetRoom(c.Request().Context(), c.Param("room_id"))
	if err != nil {
		return api.NewHTTPError(err)
	}
	return c.JSON(http.StatusOK, toRoomResponse(rm))
}

// List godoc
// @Summary オーナーのルーム一覧を取得
// @Description owner 未指定ならリクエストしたユーザー自身のルームを返します
// @Tags rooms
// @Produce json
// @Param owner query string false "オーナー"
// @Param type query string false "ルーム種別"
// @Success 200 {array} RoomResponse
// @Router /rooms [get]
func (h *RoomHandler) List(c echo.Context) error {
	owner := c.QueryParam("owner")
	if owner == "" {
		owner = c.Request().Header.Get(HeaderUserID)
	}
	if owner == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "ownerを指定してください")
	}
	rooms, err := h.service.ListRooms(c.Request().Context(), owner, room.Type(c.QueryParam("type")))
	if err != nil {
		return api.NewHTTPError(err)
	}
	return c.JSON(http.StatusOK, toRoomResponses(rooms))
}

// BulkGet godoc
// @Summary 複数のルームを取得
// @Description 存在しないIDは結果に含まれません
// @Tags rooms
// @Accept json
// @Produce json
// @Param request body BulkGetRoomsRequest true "ルームID一覧"
// @Success 200 {array} RoomResponse
// @Router /rooms/bulk [post]
func (h *RoomHandler) BulkGet(c echo.Context) error {
	var req BulkGetRoomsRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	rooms, err := h.service.BulkGetRooms(c.Request().Context(), req.IDs)
	if err != nil {
		return api.NewHTTPError(err)
	}
	return c.JSON(http.StatusOK, toRoomResponses(rooms))
}

// Rename godoc
// @Summary ルーム名を変更
// @Tags rooms
// @Accept json
// @Produce json
// @Param X-User-ID header string true "ユーザーID"
// @Param room_id path string true "ルームID"
// @Param request body RenameRoomRequest true "タイトル"
// @Success 200 {object} RoomResponse
// @Failure 403 {object} api.ErrorResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /rooms/{room_id} [patch]
func (h *RoomHandler) Rename(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	var req RenameRoomRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	rm, err := h.service.RenameRoom(c.Request().Context(), c.Param("room_id"), uid, req.Title)
	if err != nil {
		return api.NewHTTPError(err)
	}
	return c.JSON(http.StatusOK, toRoomResponse(rm))
}
