package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// HeaderUserID は上流で認証済みのユーザーIDを運ぶヘッダー
const HeaderUserID = "X-User-ID"

func userID(c echo.Context) (string, error) {
	uid := c.Request().Header.Get(HeaderUserID)
	if uid == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "ユーザーIDが必要です")
	}
	return uid, nil
}

func seqParam(c echo.Context) (int, error) {
	seq, err := strconv.Atoi(c.Param("seq"))
	if err != nil || seq < 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "無効な座席番号です")
	}
	return seq, nil
}

func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	return c.Validate(req)
}
