package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/adaptive-ed/assessment-engine/internal/services"
	"github.com/adaptive-ed/assessment-engine/internal/utils"
)

type MasteryHandler struct {
	BaseHandler
	masteryService services.MasteryService
}

func NewMasteryHandler(masteryService services.MasteryService, logger utils.Logger) *MasteryHandler {
	return &MasteryHandler{
		BaseHandler:    NewBaseHandler(logger),
		masteryService: masteryService,
	}
}

// GetMastery returns the caller's per-topic mastery map. Topics with no
// recorded attempts are simply absent; clients treat a miss as zero.
func (h *MasteryHandler) GetMastery(c *gin.Context) {
	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	resp, err := h.masteryService.GetByUser(c.Request.Context(), userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetUserMastery returns another user's mastery map, for instructor review
func (h *MasteryHandler) GetUserMastery(c *gin.Context) {
	targetID := c.Param("user_id")
	if targetID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Missing user_id parameter"})
		return
	}

	resp, err := h.masteryService.GetByUser(c.Request.Context(), targetID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
