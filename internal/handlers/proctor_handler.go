package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/adaptive-ed/assessment-engine/internal/services"
	"github.com/adaptive-ed/assessment-engine/internal/utils"
)

type ProctorHandler struct {
	BaseHandler
	proctorService services.ProctorService
}

func NewProctorHandler(proctorService services.ProctorService, logger utils.Logger) *ProctorHandler {
	return &ProctorHandler{
		BaseHandler:    NewBaseHandler(logger),
		proctorService: proctorService,
	}
}

// RecordViolation ingests one proctoring event for a session
func (h *ProctorHandler) RecordViolation(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var req services.ViolationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Recording violation", "session_id", id, "violation_type", req.ViolationType)

	resp, err := h.proctorService.RecordViolation(c.Request.Context(), id, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// OverrideSession applies an instructor invalidate/restore decision
func (h *ProctorHandler) OverrideSession(c *gin.Context) {
	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var req services.OverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}
	req.ActorID = userID

	h.LogRequest(c, "Applying session override", "session_id", id, "action", req.Action)

	session, err := h.proctorService.Override(c.Request.Context(), id, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// GetProctorSummary returns the running violation tally
func (h *ProctorHandler) GetProctorSummary(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	resp, err := h.proctorService.GetSummary(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetProctorLogs returns the session's chronological violation log
func (h *ProctorHandler) GetProctorLogs(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	logs, err := h.proctorService.GetLogs(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"logs": logs})
}
