package vf

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"example.com/showtime/services/notifier/config"
	"example.com/showtime/services/notifier/internal/models"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockEventStore struct {
	mock.Mock
}

func (m *MockEventStore) ListVFRecheckable(ctx context.Context, now time.Time, window, cooldown time.Duration, limit int) ([]models.Event, error) {
	args := m.Called(ctx, now, window, cooldown, limit)
	return args.Get(0).([]models.Event), args.Error(1)
}

func (m *MockEventStore) SaveVFResult(ctx context.Context, eventID string, found bool, vfURL *string, checkedAt time.Time) error {
	args := m.Called(ctx, eventID, found, vfURL, checkedAt)
	return args.Error(0)
}

func testVFConfig() config.VFConfig {
	return config.VFConfig{
		Enabled:         true,
		SignupHost:      "signup.ticketmaster.com",
		RecheckWindow:   48 * time.Hour,
		RecheckCooldown: 6 * time.Hour,
		RecheckBatch:    50,
		ProbeDelay:      time.Millisecond,
		Timeout:         5 * time.Second,
	}
}

func TestSlugCandidates(t *testing.T) {
	require.Equal(t, []string{"theheadliners", "headliners"}, slugCandidates("The Headliners"))
	require.Equal(t, []string{"acdc"}, slugCandidates("AC/DC"))
	require.Nil(t, slugCandidates(""))
}

func TestNormalizeVFURL(t *testing.T) {
	require.Equal(t, "https://signup.ticketmaster.com/tour", normalizeVFURL("https://signup.ticketmaster.com/tour"))
	require.Equal(t, "https://signup.ticketmaster.com/tour", normalizeVFURL("//signup.ticketmaster.com/tour"))
}

func TestDetectFindsDirectLink(t *testing.T) {
	page := `<html><body>
		<a href="https://signup.ticketmaster.com/worldtour2026">Register for Verified Fan</a>
	</body></html>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page)
	}))
	defer server.Close()

	d := NewDetector(testVFConfig(), new(MockEventStore), true)
	found, vfURL := d.Detect(context.Background(), server.URL, "")

	require.True(t, found)
	require.Equal(t, "https://signup.ticketmaster.com/worldtour2026", vfURL)
}

func TestDetectNoLink(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>Just a normal event page</body></html>")
	}))
	defer server.Close()

	d := NewDetector(testVFConfig(), new(MockEventStore), true)
	found, vfURL := d.Detect(context.Background(), server.URL, "")

	require.False(t, found)
	require.Empty(t, vfURL)
}

func TestDetectDisabled(t *testing.T) {
	cfg := testVFConfig()
	cfg.Enabled = false

	d := NewDetector(cfg, new(MockEventStore), true)
	found, vfURL := d.Detect(context.Background(), "https://example.com", "The Headliners")

	require.False(t, found)
	require.Empty(t, vfURL)
}

func TestSweepPersistsDetection(t *testing.T) {
	page := `<a href='https://signup.ticketmaster.com/worldtour2026'>Verified Fan</a>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page)
	}))
	defer server.Close()

	store := new(MockEventStore)
	events := []models.Event{{ID: "evt-1", URL: server.URL}}
	store.On("ListVFRecheckable", mock.Anything, mock.Anything, 48*time.Hour, 6*time.Hour, 50).Return(events, nil)
	store.On("SaveVFResult", mock.Anything, "evt-1", true, mock.MatchedBy(func(url *string) bool {
		return url != nil && *url == "https://signup.ticketmaster.com/worldtour2026"
	}), mock.AnythingOfType("time.Time")).Return(nil)

	d := NewDetector(testVFConfig(), store, true)
	require.NoError(t, d.Sweep(context.Background()))

	store.AssertExpectations(t)
}

func TestSweepSkippedWhenNotCapable(t *testing.T) {
	store := new(MockEventStore)

	d := NewDetector(testVFConfig(), store, false)
	require.NoError(t, d.Sweep(context.Background()))

	store.AssertNotCalled(t, "ListVFRecheckable", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
