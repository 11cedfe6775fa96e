package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/shinyyama/bookloop-backend/internal/model"
	"github.com/shinyyama/bookloop-backend/internal/service"
)

type RequestHandler struct {
	svc     service.RequestService
	timeout time.Duration
	log     zerolog.Logger
}

func NewRequestHandler(svc service.RequestService, timeout time.Duration, logger zerolog.Logger) *RequestHandler {
	return &RequestHandler{svc: svc, timeout: timeout, log: logger}
}

type CreateRequestBody struct {
	Kind     string `json:"kind"`
	Note     string `json:"note"`
	OwnerUID string `json:"ownerUid"`
}

func (h *RequestHandler) Create(c echo.Context) error {
	uid, ok := requireUID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	bookID, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid book id"))
	}
	var body CreateRequestBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid body"))
	}

	ctx, cancel := withTimeout(c, h.timeout)
	defer cancel()
	req, err := h.svc.CreateRequest(ctx, service.CreateRequestInput{
		BookID:       bookID,
		RequesterUID: uid,
		OwnerUID:     body.OwnerUID,
		Kind:         model.RequestKind(body.Kind),
		Note:         body.Note,
	})
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, req)
}

func (h *RequestHandler) List(c echo.Context) error {
	uid, ok := requireUID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	role := c.QueryParam("role")
	switch role {
	case "", "all", "incoming", "outgoing":
	default:
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "role must be all, incoming or outgoing"))
	}
	status := model.RequestStatus(c.QueryParam("status"))
	switch status {
	case "", model.RequestStatusPending, model.RequestStatusAccepted, model.RequestStatusRejected, model.RequestStatusCompleted:
	default:
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "unknown status"))
	}
	limit := 0
	if lStr := c.QueryParam("limit"); lStr != "" {
		if lParsed, err := strconv.Atoi(lStr); err == nil && lParsed > 0 {
			limit = lParsed
		}
	}

	ctx, cancel := withTimeout(c, h.timeout)
	defer cancel()
	views, err := h.svc.ListForUser(ctx, uid, service.ListFilter{Role: role, Status: status, Limit: limit})
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"requests": views})
}

func (h *RequestHandler) Get(c echo.Context) error {
	return h.do(c, h.svc.Get)
}

func (h *RequestHandler) Accept(c echo.Context) error {
	return h.do(c, h.svc.Accept)
}

func (h *RequestHandler) Reject(c echo.Context) error {
	return h.do(c, h.svc.Reject)
}

func (h *RequestHandler) Complete(c echo.Context) error {
	return h.do(c, h.svc.Complete)
}

type requestOp func(ctx context.Context, requestID uint64, actorUID string) (*model.Request, error)

func (h *RequestHandler) do(c echo.Context, op requestOp) error {
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
	req, err := op(ctx, id, uid)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, req)
}
