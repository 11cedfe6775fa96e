package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/shinyyama/bookloop-backend/internal/realtime"
	"github.com/shinyyama/bookloop-backend/internal/service"
)

type StreamHandler struct {
	svc      service.StreamService
	upgrader websocket.Upgrader
	timeout  time.Duration
	log      zerolog.Logger
}

// NewStreamHandler serves conversation feeds over websocket. allowOrigin
// decides browser origins; requests without an Origin header are accepted.
func NewStreamHandler(svc service.StreamService, allowOrigin func(string) bool, timeout time.Duration, logger zerolog.Logger) *StreamHandler {
	return &StreamHandler{
		svc: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowOrigin == nil || allowOrigin(origin)
			},
		},
		timeout: timeout,
		log:     logger,
	}
}

// Stream authorizes the caller before upgrading, so failures are plain JSON
// errors. After the upgrade the connection carries one JSON event per frame.
func (h *StreamHandler) Stream(c echo.Context) error {
	uid, ok := requireUID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid request id"))
	}

	ctx, cancel := withTimeout(c, h.timeout)
	sub, err := h.svc.Subscribe(ctx, id, uid)
	cancel()
	if err != nil {
		return writeError(c, h.log, err)
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the error response.
		sub.Close()
		h.log.Debug().Err(err).Uint64("request_id", id).Msg("websocket upgrade failed")
		return nil
	}
	realtime.NewClient(conn, sub, h.log).Serve()
	return nil
}
