package handlers

import (
	"context"
	"net/http"

	"example.com/showtime/services/notifier/internal/models"
	"example.com/showtime/services/notifier/internal/tracing"

	"github.com/gin-gonic/gin"
)

// StatusStore is the region health surface the handler reads from
type StatusStore interface {
	List(ctx context.Context) ([]models.RegionStatus, error)
	GetByRegion(ctx context.Context, region string) (*models.RegionStatus, error)
}

// StatusHandler serves region polling health
type StatusHandler struct {
	statuses StatusStore
	tracer   tracing.Tracer
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(statuses StatusStore, tracer tracing.Tracer) *StatusHandler {
	return &StatusHandler{
		statuses: statuses,
		tracer:   tracer,
	}
}

// HandleListStatuses returns the latest polling outcome for every region
func (h *StatusHandler) HandleListStatuses(c *gin.Context) {
	txn := h.tracer.StartTransaction("list-region-statuses")
	defer h.tracer.EndTransaction(txn)

	statuses, err := h.statuses.List(c.Request.Context())
	if err != nil {
		h.tracer.RecordError(txn, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list region statuses"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"regions": statuses})
}

// HandleGetStatus returns the latest polling outcome for one region
func (h *StatusHandler) HandleGetStatus(c *gin.Context) {
	txn := h.tracer.StartTransaction("get-region-status")
	defer h.tracer.EndTransaction(txn)

	region := c.Param("region")
	status, err := h.statuses.GetByRegion(c.Request.Context(), region)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown region"})
		return
	}

	c.JSON(http.StatusOK, status)
}

// RegisterRoutes registers the handler's routes
func (h *StatusHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/status", h.HandleListStatuses)
	router.GET("/status/:region", h.HandleGetStatus)
}
