package notify

import (
	"strings"
	"testing"
	"time"

	"example.com/showtime/services/notifier/internal/models"

	"github.com/stretchr/testify/require"
)

func testEvent() *models.Event {
	image := "https://images.example.com/poster.jpg"
	artistID := "K8vZ91712x7"
	return &models.Event{
		ID:          "Z7r9jZ1AdFUoO",
		Name:        "World Tour 2026",
		ArtistID:    &artistID,
		EventDate:   time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC),
		OnsaleStart: time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC),
		URL:         "https://www.ticketmaster.com/event/Z7r9jZ1AdFUoO",
		ImageURL:    &image,
		Region:      "east",
		Artist:      &models.Artist{ID: artistID, Name: "The Headliners"},
		Venue:       models.Venue{ID: "KovZpZA7AAEA", Name: "Big Arena", City: "Boston", State: "MA"},
	}
}

func TestFormatEventTime(t *testing.T) {
	ts := time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC)
	require.Equal(t, "June 1, 2026 at 6:00 PM", FormatEventTime(ts, time.UTC))

	eastern, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	require.Equal(t, "June 1, 2026 at 2:00 PM", FormatEventTime(ts, eastern))

	require.Equal(t, "TBA", FormatEventTime(time.Time{}, time.UTC))
}

func TestEventTitle(t *testing.T) {
	event := testEvent()
	require.Equal(t, "The Headliners - World Tour 2026", EventTitle(event))

	event.Artist = nil
	require.Equal(t, "World Tour 2026", EventTitle(event))

	// No duplicated title when event is named after the artist
	event.Artist = &models.Artist{Name: "World Tour 2026"}
	require.Equal(t, "World Tour 2026", EventTitle(event))
}

func TestBuildEventEmbed(t *testing.T) {
	event := testEvent()
	embed := BuildEventEmbed(event, event.URL, time.UTC)

	require.Equal(t, "The Headliners - World Tour 2026", embed.Title)
	require.Equal(t, event.URL, embed.URL)
	require.Equal(t, colorAnnouncement, embed.Color)
	require.NotNil(t, embed.Image)
	require.Equal(t, *event.ImageURL, embed.Image.URL)

	require.Contains(t, embed.Description, "Boston, MA")
	require.Contains(t, embed.Description, "June 1, 2026 at 6:00 PM")
	require.Contains(t, embed.Description, "March 15, 2026 at 10:00 AM")
	require.Contains(t, embed.Description, "🔔")
	require.NotContains(t, embed.Description, "Verified Fan")
}

func TestBuildEventEmbedWithVF(t *testing.T) {
	event := testEvent()
	vfURL := "https://signup.ticketmaster.com/theheadliners"
	event.HasVF = true
	event.VFURL = &vfURL

	embed := BuildEventEmbed(event, event.URL, time.UTC)
	require.Contains(t, embed.Description, "Verified Fan")
	require.Contains(t, embed.Description, vfURL)
}

func TestBuildReminderEmbedPhrasing(t *testing.T) {
	event := testEvent()

	// Hours away: offers the follow-up bell
	now := event.OnsaleStart.Add(-12 * time.Hour)
	embed := BuildReminderEmbed(event, event.URL, time.UTC, now)
	require.True(t, strings.HasPrefix(embed.Title, ReminderTitlePrefix))
	require.Equal(t, colorReminder, embed.Color)
	require.Contains(t, embed.Description, "~12 hours")
	require.Contains(t, embed.Description, "🔔")

	// Under an hour: no further reminder is possible
	now = event.OnsaleStart.Add(-30 * time.Minute)
	embed = BuildReminderEmbed(event, event.URL, time.UTC, now)
	require.Contains(t, embed.Description, "less than 1 hour")
	require.NotContains(t, embed.Description, "🔔")

	// Already on sale
	now = event.OnsaleStart.Add(time.Minute)
	embed = BuildReminderEmbed(event, event.URL, time.UTC, now)
	require.Contains(t, embed.Description, "now on sale")
}
