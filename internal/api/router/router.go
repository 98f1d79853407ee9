// Package router はHTTPルーティングを組み立てる
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/maskerliu/lynx-iot-server/internal/api"
	"github.com/maskerliu/lynx-iot-server/internal/api/handler"
	"github.com/maskerliu/lynx-iot-server/internal/api/middleware"
	"github.com/maskerliu/lynx-iot-server/internal/pkg/metrics"
)

// Handlers はルーティング対象のハンドラー一式
type Handlers struct {
	Health      *handler.HealthHandler
	Room        *handler.RoomHandler
	Seat        *handler.SeatHandler
	SeatRequest *handler.SeatRequestHandler
	Collection  *handler.CollectionHandler
	Gift        *handler.GiftHandler
}

// Options はルーター全体の設定
type Options struct {
	// Metrics が nil ならHTTPメトリクスと /metrics を無効にする
	Metrics     *metrics.Metrics
	Gatherer    prometheus.Gatherer
	MetricsAuth *middleware.MetricsConfig
}

// New はミドルウェアとルートを設定したEchoインスタンスを作成する
func New(h Handlers, opts Options) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = api.NewValidator()
	e.HTTPErrorHandler = api.CustomHTTPErrorHandler

	middleware.SetupMiddleware(e, opts.Metrics)
	Register(e, h)

	if opts.Metrics != nil {
		gatherer := opts.Gatherer
		if gatherer == nil {
			gatherer = prometheus.DefaultGatherer
		}
		e.GET("/metrics",
			echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})),
			middleware.MetricsBasicAuth(opts.MetricsAuth),
		)
	}
	return e
}

// Register はAPIルートを登録する
func Register(e *echo.Echo, h Handlers) {
	e.GET("/health", h.Health.Check)

	v1 := e.Group("/api/v1")

	v1.POST("/rooms", h.Room.Create)
	v1.GET("/rooms", h.Room.List)
	v1.POST("/rooms/bulk", h.Room.BulkGet)
	v1.GET("/rooms/:room_id", h.Room.GetByID)
	v1.PATCH("/rooms/:room_id", h.Room.Rename)

	v1.GET("/rooms/:room_id/seats", h.Seat.List)
	v1.PUT("/rooms/:room_id/seats", h.Seat.ReplaceLayout)
	v1.PATCH("/rooms/:room_id/seats", h.Seat.Update)
	v1.GET("/rooms/:room_id/seats/:seq", h.Seat.Get)
	v1.POST("/rooms/:room_id/seats/:seq/release", h.Seat.Release)

	v1.GET("/rooms/:room_id/requests", h.SeatRequest.ListDue)
	v1.POST("/rooms/:room_id/requests", h.SeatRequest.Create)
	v1.DELETE("/rooms/:room_id/requests", h.SeatRequest.Withdraw)
	v1.POST("/rooms/:room_id/requests/:uid/grant", h.SeatRequest.Grant)

	v1.POST("/rooms/:room_id/collect", h.Collection.Toggle)
	v1.GET("/rooms/:room_id/collect", h.Collection.Status)
	v1.GET("/collections", h.Collection.List)

	v1.POST("/rooms/:room_id/gifts", h.Gift.Send)
	v1.GET("/gifts", h.Gift.ListSent)
}
