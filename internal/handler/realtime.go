package handler

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-seat-sync/internal/auth"
	"github.com/iliyamo/cinema-seat-sync/internal/logger"
	"github.com/iliyamo/cinema-seat-sync/internal/realtime"
	"github.com/iliyamo/cinema-seat-sync/internal/service"
)

const reapTimeout = 5 * time.Second

type seatSyncer interface {
	Join(ctx context.Context, c service.Conn, showID uint64) error
	Select(ctx context.Context, c service.Conn, req realtime.SeatRequest) error
	Deselect(ctx context.Context, c service.Conn, req realtime.SeatRequest) error
}

type disconnecter interface {
	Disconnect(ctx context.Context, c service.Conn) []string
}

// RealtimeHandler upgrades authenticated requests to websocket connections
// and dispatches their frames to the seat synchroniser.
type RealtimeHandler struct {
	verifier *auth.Verifier
	sync     seatSyncer
	reaper   disconnecter
	buffer   int
	upgrader websocket.Upgrader
}

// NewRealtimeHandler builds the handler.  allowedOrigins restricts the
// Origin header of browsers; empty accepts any.
func NewRealtimeHandler(v *auth.Verifier, sync seatSyncer, reaper disconnecter, buffer int, allowedOrigins []string) *RealtimeHandler {
	return &RealtimeHandler{
		verifier: v,
		sync:     sync,
		reaper:   reaper,
		buffer:   buffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		for _, a := range allowed {
			if strings.EqualFold(a, origin) || strings.EqualFold(a, u.Host) {
				return true
			}
		}
		return false
	}
}

// Serve handles GET /v1/ws.  A missing or invalid credential refuses the
// connection with 401 before any upgrade.
func (h *RealtimeHandler) Serve(c echo.Context) error {
	uid, err := h.verifier.Verify(auth.TokenFromRequest(c.Request()))
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication failed"})
	}
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader has already written the HTTP error
		logger.Debug("handler: websocket upgrade failed", zap.Error(err))
		return nil
	}

	client := realtime.NewClient(conn, uid, h.buffer)
	logger.Info("handler: websocket connected",
		zap.Uint64("user_id", uid), zap.String("conn_id", client.ID()))
	go client.WritePump()

	ctx := c.Request().Context()
	_ = client.ReadPump(ctx, func(ctx context.Context, msg realtime.Message) {
		h.dispatch(ctx, client, msg)
	})
	client.Close()

	reapCtx, cancel := context.WithTimeout(context.Background(), reapTimeout)
	defer cancel()
	released := h.reaper.Disconnect(reapCtx, client)
	logger.Info("handler: websocket disconnected",
		zap.Uint64("user_id", uid), zap.String("conn_id", client.ID()), zap.Int("released", len(released)))
	return nil
}

func (h *RealtimeHandler) dispatch(ctx context.Context, c *realtime.Client, msg realtime.Message) {
	var err error
	switch msg.Event {
	case realtime.EventJoinShow:
		showID, derr := realtime.DecodeShowID(msg.Data)
		if derr != nil {
			c.Send(realtime.ErrorMessage(msg.Event, "showId must be a positive integer"))
			return
		}
		err = h.sync.Join(ctx, c, showID)
	case realtime.EventSelectSeat, realtime.EventDeselectSeat:
		req, derr := realtime.DecodeSeatRequest(msg.Data)
		if derr != nil {
			c.Send(realtime.ErrorMessage(msg.Event, "payload must be {showId, seatId}"))
			return
		}
		if msg.Event == realtime.EventSelectSeat {
			err = h.sync.Select(ctx, c, req)
		} else {
			err = h.sync.Deselect(ctx, c, req)
		}
	default:
		c.Send(realtime.ErrorMessage(msg.Event, "unknown event"))
		return
	}
	if err != nil {
		logger.Warn("handler: realtime event failed",
			zap.String("event", msg.Event), zap.String("conn_id", c.ID()), zap.Error(err))
	}
}
