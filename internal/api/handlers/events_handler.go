package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"example.com/showtime/services/notifier/internal/models"
	"example.com/showtime/services/notifier/internal/tracing"

	"github.com/gin-gonic/gin"
)

const defaultListLimit = 50

// EventLister is the event read surface the handler needs
type EventLister interface {
	ListUpcoming(ctx context.Context, now time.Time, limit int) ([]models.Event, error)
}

// Searcher runs free-text queries over the search index
type Searcher interface {
	SearchEvents(ctx context.Context, query string, limit int) ([]map[string]interface{}, error)
}

// EventsHandler serves operator event listing and search
type EventsHandler struct {
	events EventLister
	search Searcher
	tracer tracing.Tracer
}

// NewEventsHandler creates a new events handler. search may be nil when the
// search index is disabled.
func NewEventsHandler(events EventLister, search Searcher, tracer tracing.Tracer) *EventsHandler {
	return &EventsHandler{
		events: events,
		search: search,
		tracer: tracer,
	}
}

// HandleListUpcoming returns events whose sale has not started yet,
// soonest sale first.
func (h *EventsHandler) HandleListUpcoming(c *gin.Context) {
	txn := h.tracer.StartTransaction("list-upcoming-events")
	defer h.tracer.EndTransaction(txn)

	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	events, err := h.events.ListUpcoming(c.Request.Context(), time.Now().UTC(), limit)
	if err != nil {
		h.tracer.RecordError(txn, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list upcoming events"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": events})
}

// HandleSearch runs a free-text query over indexed events
func (h *EventsHandler) HandleSearch(c *gin.Context) {
	txn := h.tracer.StartTransaction("search-events")
	defer h.tracer.EndTransaction(txn)

	if h.search == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "search is not configured"})
		return
	}

	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter q is required"})
		return
	}

	results, err := h.search.SearchEvents(c.Request.Context(), query, defaultListLimit)
	if err != nil {
		h.tracer.RecordError(txn, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": results})
}

// RegisterRoutes registers the handler's routes
func (h *EventsHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/events/upcoming", h.HandleListUpcoming)
	router.GET("/events/search", h.HandleSearch)
}
