package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/shinyyama/bookloop-backend/internal/service"
)

type ConversationHandler struct {
	svc     service.ConversationService
	timeout time.Duration
	log     zerolog.Logger
}

func NewConversationHandler(svc service.ConversationService, timeout time.Duration, logger zerolog.Logger) *ConversationHandler {
	return &ConversationHandler{svc: svc, timeout: timeout, log: logger}
}

type MessageRequest struct {
	Body string `json:"body"`
}

// ListMessages returns the history oldest first. Clients resync after a
// reconnect by passing the last seq they hold as ?after=.
func (h *ConversationHandler) ListMessages(c echo.Context) error {
	uid, ok := requireUID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid request id"))
	}
	var after uint64
	if aStr := c.QueryParam("after"); aStr != "" {
		parsed, err := strconv.ParseUint(aStr, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid after"))
		}
		after = parsed
	}

	ctx, cancel := withTimeout(c, h.timeout)
	defer cancel()
	msgs, err := h.svc.ListMessages(ctx, id, uid, after)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"messages": msgs})
}

func (h *ConversationHandler) CreateMessage(c echo.Context) error {
	uid, ok := requireUID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid request id"))
	}
	var req MessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid body"))
	}

	ctx, cancel := withTimeout(c, h.timeout)
	defer cancel()
	msg, err := h.svc.AppendMessage(ctx, id, uid, req.Body)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, msg)
}

func (h *ConversationHandler) MarkRead(c echo.Context) error {
	uid, ok := requireUID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid request id"))
	}
	ctx, cancel := withTimeout(c, h.timeout)
	defer cancel()
	n, err := h.svc.MarkRead(ctx, id, uid)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, map[string]int64{"marked": n})
}
