package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/maskerliu/lynx-iot-server/internal/docstore"
	"github.com/maskerliu/lynx-iot-server/internal/domain/collection"
	"github.com/maskerliu/lynx-iot-server/internal/domain/gift"
	"github.com/maskerliu/lynx-iot-server/internal/domain/room"
	"github.com/maskerliu/lynx-iot-server/internal/domain/seat"
	"github.com/maskerliu/lynx-iot-server/internal/domain/seatrequest"
	"github.com/maskerliu/lynx-iot-server/internal/pkg/logger"
)

// ErrorResponse はエラーレスポンスの統一フォーマット
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// FailedSeat は一括書き込みで失敗した座席の詳細
type FailedSeat struct {
	Seq    int    `json:"seq"`
	SeatID string `json:"seat_id,omitempty"`
	Reason string `json:"reason"`
}

var badRequestErrors = []error{
	seat.ErrRoomIDRequired,
	seat.ErrUIDRequired,
	seat.ErrInvalidSeq,
	seat.ErrInvalidSeatCount,
	seat.ErrDuplicateSeq,
	seat.ErrRoomMismatch,
	seat.ErrSeqImmutable,
	seatrequest.ErrRoomIDRequired,
	seatrequest.ErrUIDRequired,
	seatrequest.ErrInvalidSeq,
	seatrequest.ErrTimestampRequired,
	room.ErrOwnerRequired,
	room.ErrTypeRequired,
	room.ErrTitleTooLong,
	collection.ErrUIDRequired,
	collection.ErrRoomIDRequired,
	gift.ErrUIDRequired,
	gift.ErrRoomIDRequired,
	gift.ErrPayloadTooLarge,
	gift.ErrInvalidPayload,
	docstore.ErrInvalidQuery,
}

var notFoundErrors = []error{
	room.ErrRoomNotFound,
	seat.ErrSeatNotFound,
	seatrequest.ErrRequestNotFound,
	collection.ErrCollectionNotFound,
	docstore.ErrNotFound,
}

var conflictErrors = []error{
	seatrequest.ErrDuplicateRequest,
	seat.ErrSeatTaken,
	seat.ErrNoEmptySeat,
	docstore.ErrConflict,
}

func isAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// StatusFromError はドメインエラーをHTTPステータスに変換する
// 一括書き込みの部分失敗は個々の原因（競合など）より優先する
func StatusFromError(err error) int {
	var he *echo.HTTPError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &he):
		return he.Code
	case errors.Is(err, seat.ErrPartialBulkFailure):
		return http.StatusInternalServerError
	case errors.Is(err, seatrequest.ErrRequestGone):
		return http.StatusGone
	case errors.Is(err, room.ErrNotOwner):
		return http.StatusForbidden
	case isAny(err, badRequestErrors):
		return http.StatusBadRequest
	case isAny(err, notFoundErrors):
		return http.StatusNotFound
	case isAny(err, conflictErrors):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// NewHTTPError はドメインエラーを対応するステータスの echo.HTTPError に包む
func NewHTTPError(err error) *echo.HTTPError {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	code := StatusFromError(err)
	message := err.Error()
	if code >= http.StatusInternalServerError && !errors.Is(err, seat.ErrPartialBulkFailure) {
		message = http.StatusText(code)
	}
	return echo.NewHTTPError(code, message).SetInternal(err)
}

// CustomHTTPErrorHandler はカスタムエラーハンドラー
func CustomHTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	he := NewHTTPError(err)
	code := he.Code
	message, ok := he.Message.(string)
	if !ok {
		message = http.StatusText(code)
	}

	resp := ErrorResponse{Error: message, Code: code}

	var partial *seat.PartialBulkFailure
	if errors.As(err, &partial) {
		failed := make([]FailedSeat, len(partial.Failed))
		for i, f := range partial.Failed {
			failed[i] = FailedSeat{Seq: f.Seq, SeatID: f.SeatID, Reason: f.Err.Error()}
		}
		resp.Error = seat.ErrPartialBulkFailure.Error()
		resp.Details = failed
	}

	// エラーログを出力（5xx エラーの場合）
	if code >= 500 {
		logger.Error("サーバーエラー",
			zap.Int("status", code),
			zap.String("path", c.Request().URL.Path),
			zap.Error(err),
		)
	}

	if err := c.JSON(code, resp); err != nil {
		logger.Error("エラーレスポンス送信失敗", zap.Error(err))
	}
}
