package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// UserID returns the id stored by JWTAuth.
func UserID(c echo.Context) (uint64, bool) {
	uid, ok := c.Get(ContextUserID).(uint64)
	return uid, ok && uid != 0
}

// identity names the caller in access logs; "anon" when the
// request is not authenticated.
func identity(c echo.Context) string {
	if uid, ok := UserID(c); ok {
		return strconv.FormatUint(uid, 10)
	}
	return "anon"
}
