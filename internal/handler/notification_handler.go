package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/shinyyama/bookloop-backend/internal/model"
	"github.com/shinyyama/bookloop-backend/internal/service"
)

type NotificationHandler struct {
	svc     service.NotificationService
	timeout time.Duration
	log     zerolog.Logger
}

func NewNotificationHandler(svc service.NotificationService, timeout time.Duration, logger zerolog.Logger) *NotificationHandler {
	return &NotificationHandler{svc: svc, timeout: timeout, log: logger}
}

type NotificationResponse struct {
	ID        uint64  `json:"id"`
	Type      string  `json:"type"`
	Title     string  `json:"title"`
	Body      string  `json:"body"`
	RequestID *uint64 `json:"requestId,omitempty"`
	MessageID *uint64 `json:"messageId,omitempty"`
	Read      bool    `json:"read"`
	CreatedAt string  `json:"createdAt"`
}

func toNotificationResponse(n model.Notification) NotificationResponse {
	return NotificationResponse{
		ID:        n.ID,
		Type:      n.Type,
		Title:     n.Title,
		Body:      n.Body,
		RequestID: n.RequestID,
		MessageID: n.MessageID,
		Read:      n.ReadAt != nil,
		CreatedAt: n.CreatedAt.Format(time.RFC3339),
	}
}

func (h *NotificationHandler) List(c echo.Context) error {
	uid, ok := requireUID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	unreadOnly := c.QueryParam("unread_only") != "false"
	limit := 20
	if lStr := c.QueryParam("limit"); lStr != "" {
		if lParsed, err := strconv.Atoi(lStr); err == nil && lParsed > 0 {
			limit = lParsed
		}
	}
	ctx, cancel := withTimeout(c, h.timeout)
	defer cancel()
	list, unreadCount, err := h.svc.List(ctx, uid, unreadOnly, limit)
	if err != nil {
		return writeError(c, h.log, err)
	}
	resp := make([]NotificationResponse, 0, len(list))
	for _, n := range list {
		resp = append(resp, toNotificationResponse(n))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"notifications": resp,
		"unreadCount":   unreadCount,
	})
}

func (h *NotificationHandler) MarkAllRead(c echo.Context) error {
	uid, ok := requireUID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	ctx, cancel := withTimeout(c, h.timeout)
	defer cancel()
	if err := h.svc.MarkAllRead(ctx, uid); err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
