package handlers

import (
	"context"
	"net/http"

	"example.com/showtime/services/notifier/internal/models"
	"example.com/showtime/services/notifier/internal/tracing"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// ArtistStore is the artist persistence surface the handler needs
type ArtistStore interface {
	Ensure(ctx context.Context, artist *models.Artist) error
	GetByID(ctx context.Context, artistID string) (*models.Artist, error)
	UpdateNotable(ctx context.Context, artistID string, notable bool) error
}

// DeliveryResetter clears delivered flags so the router reclassifies
// already-announced events after a notability change.
type DeliveryResetter interface {
	ResetDeliveredForArtist(ctx context.Context, artistID string) (int64, error)
}

// ArtistsHandler serves the operator's artist curation endpoints
type ArtistsHandler struct {
	artists ArtistStore
	events  DeliveryResetter
	tracer  tracing.Tracer
}

// NewArtistsHandler creates a new artists handler
func NewArtistsHandler(artists ArtistStore, events DeliveryResetter, tracer tracing.Tracer) *ArtistsHandler {
	return &ArtistsHandler{
		artists: artists,
		events:  events,
		tracer:  tracer,
	}
}

// NotableRequest is the body of a notability update
type NotableRequest struct {
	Notable bool   `json:"notable"`
	Name    string `json:"name"`
}

// HandleSetNotable flips an artist's notable flag, creating the artist row
// when it is not yet known. Every already-delivered event of the artist is
// reset so the next delivery pass re-announces it in the right channel.
func (h *ArtistsHandler) HandleSetNotable(c *gin.Context) {
	txn := h.tracer.StartTransaction("set-artist-notable")
	defer h.tracer.EndTransaction(txn)

	artistID := c.Param("id")
	var req NotableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	ctx := c.Request.Context()
	err := h.artists.UpdateNotable(ctx, artistID, req.Notable)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		artist := &models.Artist{
			ID:      artistID,
			Name:    req.Name,
			Notable: req.Notable,
		}
		if artist.Name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name is required for an unknown artist"})
			return
		}
		err = h.artists.Ensure(ctx, artist)
	}
	if err != nil {
		h.tracer.RecordError(txn, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update artist"})
		return
	}

	reset, err := h.events.ResetDeliveredForArtist(ctx, artistID)
	if err != nil {
		h.tracer.RecordError(txn, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to reset delivered events"})
		return
	}

	log.Info().
		Str("artist_id", artistID).
		Bool("notable", req.Notable).
		Int64("events_reset", reset).
		Msg("Artist notability updated")

	c.JSON(http.StatusOK, gin.H{
		"artist_id":    artistID,
		"notable":      req.Notable,
		"events_reset": reset,
	})
}

// HandleGetArtist returns one artist's curation state
func (h *ArtistsHandler) HandleGetArtist(c *gin.Context) {
	artist, err := h.artists.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown artist"})
		return
	}
	c.JSON(http.StatusOK, artist)
}

// RegisterRoutes registers the handler's routes
func (h *ArtistsHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/artists/:id", h.HandleGetArtist)
	router.PUT("/artists/:id/notable", h.HandleSetNotable)
}
