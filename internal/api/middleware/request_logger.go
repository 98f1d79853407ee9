package middleware

import (
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/maskerliu/lynx-iot-server/internal/pkg/logger"
)

// headerUserID は上流で認証済みのユーザーID
const headerUserID = "X-User-ID"

// RequestLogger はリクエストごとに1行の構造化ログを出力するミドルウェア
// ハンドラーのエラーはここで c.Error に渡し、確定したステータスで記録する
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()
			fields := []zap.Field{
				zap.String("request_id", res.Header().Get(echo.HeaderXRequestID)),
				zap.String("method", req.Method),
				zap.String("route", c.Path()),
				zap.String("path", req.URL.Path),
				zap.Int("status", res.Status),
				zap.Int64("size", res.Size),
				zap.Duration("latency", time.Since(start)),
				zap.String("remote_ip", c.RealIP()),
			}
			if uid := req.Header.Get(headerUserID); uid != "" {
				fields = append(fields, zap.String("uid", uid))
			}
			if roomID := c.Param("room_id"); roomID != "" {
				fields = append(fields, zap.String("room_id", roomID))
			}
			if err != nil {
				fields = append(fields, zap.Error(err))
			}

			level, msg := outcome(res.Status, err)
			logger.Named("http").Check(level, msg).Write(fields...)
			return nil
		}
	}
}

// outcome はステータスからログレベルとメッセージを決める
func outcome(status int, err error) (zapcore.Level, string) {
	switch {
	case status >= 500 && err != nil:
		return zapcore.ErrorLevel, "request failed"
	case status >= 500:
		return zapcore.ErrorLevel, "server error"
	case status >= 400:
		return zapcore.WarnLevel, "client error"
	}
	return zapcore.InfoLevel, "request completed"
}

// RequestIDMiddleware はリクエストIDをレスポンスヘッダーに付与する
// クライアントが送ってきたIDはそのまま引き継ぐ
func RequestIDMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			requestID := c.Request().Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)
			return next(c)
		}
	}
}
