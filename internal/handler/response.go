package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/shinyyama/bookloop-backend/internal/service"
)

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error errorPayload `json:"error"`
}

func NewErrorResponse(code, message string) ErrorResponse {
	return ErrorResponse{
		Error: errorPayload{
			Code:    code,
			Message: message,
		},
	}
}

var errorStatus = []struct {
	err     error
	status  int
	message string
}{
	{service.ErrInvalidActor, http.StatusBadRequest, "actor may not take part in this request"},
	{service.ErrForbidden, http.StatusForbidden, "not allowed"},
	{service.ErrNotFound, http.StatusNotFound, "not found"},
	{service.ErrInvalidTransition, http.StatusConflict, "request is not in a state that allows this"},
	{service.ErrDuplicatePending, http.StatusConflict, "a pending request for this book already exists"},
	{service.ErrEmptyBody, http.StatusBadRequest, "message body is required"},
	{service.ErrBodyTooLong, http.StatusBadRequest, "message body is too long"},
	{service.ErrInvalidKind, http.StatusBadRequest, "book is not offered for this kind of request"},
	{service.ErrUnavailable, http.StatusServiceUnavailable, "temporarily unavailable, retry later"},
}

// writeError maps a service error to its HTTP form. Storage details never
// leave the process; they are logged instead.
func writeError(c echo.Context, log zerolog.Logger, err error) error {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			if e.status >= 500 {
				log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
			}
			return c.JSON(e.status, NewErrorResponse(e.err.Error(), e.message))
		}
	}
	log.Error().Err(err).Str("path", c.Path()).Msg("unexpected error")
	return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal_error", "internal error"))
}

func requireUID(c echo.Context) (string, bool) {
	uid, _ := c.Get("uid").(string)
	return uid, uid != ""
}

func parseID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

// withTimeout bounds the storage work of one call.
func withTimeout(c echo.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(c.Request().Context())
	}
	return context.WithTimeout(c.Request().Context(), d)
}
