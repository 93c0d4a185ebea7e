package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/proctor"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/validator"
)

// SessionHandler serves the student-facing HTTP endpoints around a session.
type SessionHandler struct {
	sessionService *service.SessionService
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessionService *service.SessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

// Precheck godoc
// POST /api/v1/student/contests/:contest_id/precheck
// Tells the client whether its device may start the contest.
func (h *SessionHandler) Precheck(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	contestID, ok := contestParam(c)
	if !ok {
		return
	}

	var req model.ClientInfo
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	resp, err := h.sessionService.Precheck(c.Request.Context(), contestID, claims.UserID, req)
	if err != nil {
		failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, resp)
}

// GetState godoc
// GET /api/v1/student/contests/:contest_id/state
// Returns remaining time, warning counts and saved answers for reload UIs.
func (h *SessionHandler) GetState(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	contestID, ok := contestParam(c)
	if !ok {
		return
	}

	state, err := h.sessionService.State(c.Request.Context(), contestID, claims.UserID)
	if err != nil {
		failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, state)
}

// contestParam parses :contest_id, writing the error response itself.
func contestParam(c *gin.Context) (string, bool) {
	id, err := uuid.Parse(c.Param("contest_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return "", false
	}
	return id.String(), true
}

// sessionErrorCode maps session errors onto API codes and statuses.
func sessionErrorCode(err error) (int, response.ErrCode) {
	switch {
	case errors.Is(err, service.ErrContestNotFound):
		return http.StatusNotFound, response.ErrContestNotFound
	case errors.Is(err, service.ErrSessionCompleted):
		return http.StatusConflict, response.ErrSessionCompleted
	case errors.Is(err, proctor.ErrDeviceRestricted):
		return http.StatusForbidden, response.ErrDeviceRestricted
	}
	return http.StatusInternalServerError, response.ErrInternal
}

func failSession(c *gin.Context, err error) {
	status, code := sessionErrorCode(err)
	if code == response.ErrInternal {
		_ = c.Error(err)
	}
	response.Fail(c, status, code)
}
