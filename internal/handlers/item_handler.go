package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/adaptive-ed/assessment-engine/internal/models"
	"github.com/adaptive-ed/assessment-engine/internal/repositories"
	"github.com/adaptive-ed/assessment-engine/internal/services"
	"github.com/adaptive-ed/assessment-engine/internal/utils"
)

type ItemHandler struct {
	BaseHandler
	itemService       services.ItemService
	generationService services.GenerationService
}

func NewItemHandler(itemService services.ItemService, generationService services.GenerationService, logger utils.Logger) *ItemHandler {
	return &ItemHandler{
		BaseHandler:       NewBaseHandler(logger),
		itemService:       itemService,
		generationService: generationService,
	}
}

// CreateItem authors a new bank item
func (h *ItemHandler) CreateItem(c *gin.Context) {
	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	var req services.CreateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}
	req.CreatedBy = userID

	h.LogRequest(c, "Creating item", "type", req.Type)

	item, err := h.itemService.Create(c.Request.Context(), &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, item)
}

// GetItem retrieves an item by ID
func (h *ItemHandler) GetItem(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	item, err := h.itemService.GetByID(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, item)
}

// ListItems runs a filtered bank query
func (h *ItemHandler) ListItems(c *gin.Context) {
	filters := repositories.ItemFilters{
		Limit: parseQueryInt(c, "limit", 20),
	}
	if topics := c.Query("topics"); topics != "" {
		filters.Topics = strings.Split(topics, ",")
	}
	if raw := c.Query("difficulty"); raw != "" {
		if d, err := strconv.Atoi(raw); err == nil {
			filters.Difficulties = []int{d}
		}
	}
	if itemType := c.Query("type"); itemType != "" {
		t := models.ItemType(itemType)
		filters.Type = &t
	}

	items, err := h.itemService.Find(c.Request.Context(), filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

// GenerateItems runs a synchronous generation round for a topic
func (h *ItemHandler) GenerateItems(c *gin.Context) {
	var req services.GenerateItemsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Generating items", "topic", req.Topic, "count", req.Count)

	resp, err := h.generationService.Generate(c.Request.Context(), &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// GenerateStudyNotes produces revision notes for a topic
func (h *ItemHandler) GenerateStudyNotes(c *gin.Context) {
	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	var req services.StudyNotesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}
	if req.UserID == "" {
		req.UserID = userID
	}

	h.LogRequest(c, "Generating study notes", "topic", req.Topic)

	resp, err := h.generationService.GenerateStudyNotes(c.Request.Context(), &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
