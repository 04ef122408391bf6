package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-seat-sync/internal/auth"
)

// ContextUserID is the echo context key holding the authenticated user id
// (uint64).
const ContextUserID = "user_id"

// JWTAuth returns an Echo middleware that validates the access token and
// stores the caller's user id in the context.  Handlers read it back with
// UserID.  Requests without a valid token never reach the handler.
func JWTAuth(v *auth.Verifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := auth.TokenFromRequest(c.Request())
			if raw == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			uid, err := v.Verify(raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			c.Set(ContextUserID, uid)
			return next(c)
		}
	}
}
