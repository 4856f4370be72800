package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"example.com/showtime/services/notifier/config"
	"example.com/showtime/services/notifier/internal/models"
	"example.com/showtime/services/notifier/internal/tracing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type MockArtistStore struct {
	mock.Mock
}

func (m *MockArtistStore) Ensure(ctx context.Context, artist *models.Artist) error {
	args := m.Called(ctx, artist)
	return args.Error(0)
}

func (m *MockArtistStore) GetByID(ctx context.Context, artistID string) (*models.Artist, error) {
	args := m.Called(ctx, artistID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Artist), args.Error(1)
}

func (m *MockArtistStore) UpdateNotable(ctx context.Context, artistID string, notable bool) error {
	args := m.Called(ctx, artistID, notable)
	return args.Error(0)
}

type MockDeliveryResetter struct {
	mock.Mock
}

func (m *MockDeliveryResetter) ResetDeliveredForArtist(ctx context.Context, artistID string) (int64, error) {
	args := m.Called(ctx, artistID)
	return args.Get(0).(int64), args.Error(1)
}

func newTestRouter(artists ArtistStore, events DeliveryResetter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	tracer, _ := tracing.NewTracer(config.TracingConfig{})
	router := gin.New()
	NewArtistsHandler(artists, events, tracer).RegisterRoutes(router)
	return router
}

func TestSetNotableExistingArtist(t *testing.T) {
	artists := new(MockArtistStore)
	events := new(MockDeliveryResetter)

	artists.On("UpdateNotable", mock.Anything, "K8vZ91712x7", true).Return(nil)
	events.On("ResetDeliveredForArtist", mock.Anything, "K8vZ91712x7").Return(int64(3), nil)

	router := newTestRouter(artists, events)
	req := httptest.NewRequest(http.MethodPut, "/artists/K8vZ91712x7/notable", bytes.NewBufferString(`{"notable": true}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"events_reset":3`)
	artists.AssertExpectations(t)
	events.AssertExpectations(t)
}

func TestSetNotableCreatesUnknownArtist(t *testing.T) {
	artists := new(MockArtistStore)
	events := new(MockDeliveryResetter)

	artists.On("UpdateNotable", mock.Anything, "K8vZ91712x7", true).Return(gorm.ErrRecordNotFound)
	artists.On("Ensure", mock.Anything, mock.MatchedBy(func(a *models.Artist) bool {
		return a.ID == "K8vZ91712x7" && a.Name == "The Headliners" && a.Notable
	})).Return(nil)
	events.On("ResetDeliveredForArtist", mock.Anything, "K8vZ91712x7").Return(int64(0), nil)

	router := newTestRouter(artists, events)
	req := httptest.NewRequest(http.MethodPut, "/artists/K8vZ91712x7/notable", bytes.NewBufferString(`{"notable": true, "name": "The Headliners"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	artists.AssertExpectations(t)
}

func TestSetNotableUnknownArtistWithoutName(t *testing.T) {
	artists := new(MockArtistStore)
	events := new(MockDeliveryResetter)

	artists.On("UpdateNotable", mock.Anything, "K8vZ91712x7", false).Return(gorm.ErrRecordNotFound)

	router := newTestRouter(artists, events)
	req := httptest.NewRequest(http.MethodPut, "/artists/K8vZ91712x7/notable", bytes.NewBufferString(`{"notable": false}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	events.AssertNotCalled(t, "ResetDeliveredForArtist", mock.Anything, mock.Anything)
}

func TestSetNotableBadBody(t *testing.T) {
	router := newTestRouter(new(MockArtistStore), new(MockDeliveryResetter))
	req := httptest.NewRequest(http.MethodPut, "/artists/K8vZ91712x7/notable", bytes.NewBufferString(`not json`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}
