package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// Health is a simple health-check endpoint used by load balancers and
// monitoring systems to verify that the service is running.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// Ready reports 503 until both the lock store and the ledger answer a
// ping.  Either dependency may be nil when it is not configured.
func Ready(rdb redis.UniversalClient, db *sql.DB) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		status := echo.Map{}
		ok := true
		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				status["redis"] = err.Error()
				ok = false
			} else {
				status["redis"] = "ok"
			}
		}
		if db != nil {
			if err := db.PingContext(ctx); err != nil {
				status["mysql"] = err.Error()
				ok = false
			} else {
				status["mysql"] = "ok"
			}
		}
		if !ok {
			return c.JSON(http.StatusServiceUnavailable, status)
		}
		return c.JSON(http.StatusOK, status)
	}
}
