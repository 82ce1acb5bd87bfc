package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/adaptive-ed/assessment-engine/internal/services"
	"github.com/adaptive-ed/assessment-engine/internal/utils"
)

type HandlerManager struct {
	serviceManager services.ServiceManager

	sessionHandler *SessionHandler
	proctorHandler *ProctorHandler
	itemHandler    *ItemHandler
	masteryHandler *MasteryHandler
}

func NewHandlerManager(serviceManager services.ServiceManager, logger utils.Logger) *HandlerManager {
	return &HandlerManager{
		serviceManager: serviceManager,
		sessionHandler: NewSessionHandler(serviceManager.Session(), logger),
		proctorHandler: NewProctorHandler(serviceManager.Proctor(), logger),
		itemHandler:    NewItemHandler(serviceManager.Item(), serviceManager.Generation(), logger),
		masteryHandler: NewMasteryHandler(serviceManager.Mastery(), logger),
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	router.GET("/health", hm.healthCheck)

	v1 := router.Group("/api/v1")
	v1.Use(IdentityMiddleware())
	{
		sessions := v1.Group("/sessions")
		{
			sessions.POST("", hm.sessionHandler.StartSession)
			sessions.GET("", hm.sessionHandler.ListSessions)
			sessions.GET("/:id", hm.sessionHandler.GetSession)
			sessions.POST("/:id/answers", hm.sessionHandler.SubmitAnswer)
			sessions.POST("/:id/finish", hm.sessionHandler.FinishSession)
			sessions.POST("/:id/cancel", hm.sessionHandler.CancelSession)

			// Proctoring surface lives under the session it watches.
			sessions.POST("/:id/violations", hm.proctorHandler.RecordViolation)
			sessions.GET("/:id/proctor", hm.proctorHandler.GetProctorSummary)
			sessions.GET("/:id/proctor/logs", hm.proctorHandler.GetProctorLogs)
			sessions.POST("/:id/override", hm.proctorHandler.OverrideSession)
		}

		items := v1.Group("/items")
		{
			items.POST("", hm.itemHandler.CreateItem)
			items.GET("", hm.itemHandler.ListItems)
			items.GET("/:id", hm.itemHandler.GetItem)
			items.POST("/generate", hm.itemHandler.GenerateItems)
		}

		v1.POST("/study-notes", hm.itemHandler.GenerateStudyNotes)

		v1.GET("/mastery", hm.masteryHandler.GetMastery)
		v1.GET("/users/:user_id/mastery", hm.masteryHandler.GetUserMastery)
	}
}

func (hm *HandlerManager) healthCheck(c *gin.Context) {
	status := http.StatusOK
	health := gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "assessment-engine",
	}

	if err := hm.serviceManager.HealthCheck(c.Request.Context()); err != nil {
		status = http.StatusServiceUnavailable
		health["status"] = "unhealthy"
		health["error"] = err.Error()
	}

	c.JSON(status, health)
}
