package reminder

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"example.com/showtime/services/notifier/config"
	"example.com/showtime/services/notifier/internal/metrics"
	"example.com/showtime/services/notifier/internal/models"

	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockEventStore struct {
	mock.Mock
}

func (m *MockEventStore) GetByURL(ctx context.Context, url string) (*models.Event, error) {
	args := m.Called(ctx, url)
	return args.Get(0).(*models.Event), args.Error(1)
}

func (m *MockEventStore) SetReminder(ctx context.Context, eventID string, reminder *time.Time) error {
	args := m.Called(ctx, eventID, reminder)
	return args.Error(0)
}

func (m *MockEventStore) ListDueReminders(ctx context.Context, cutoff time.Time) ([]models.Event, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).([]models.Event), args.Error(1)
}

type MockSender struct {
	mock.Mock
}

func (m *MockSender) SendEmbed(channelID string, embed *discordgo.MessageEmbed) error {
	args := m.Called(channelID, embed)
	return args.Error(0)
}

var testReminderConfig = config.ReminderConfig{
	SaleOffset:       12 * time.Hour,
	PresaleOffset:    12 * time.Hour,
	EscalationOffset: time.Hour,
	SweepLookahead:   5 * time.Minute,
}

var testDiscordConfig = config.DiscordConfig{
	NotableChannel:  "chan-notable",
	OrdinaryChannel: "chan-ordinary",
}

func newTestScheduler(events EventStore, sender *MockSender) *Scheduler {
	return NewScheduler(events, sender, testDiscordConfig, testReminderConfig, []string{"eu"}, time.UTC, metrics.NewMetrics())
}

func saleEvent(onsale time.Time) *models.Event {
	return &models.Event{
		ID:          "Z7r9jZ1AdFUoO",
		Name:        "World Tour 2026",
		OnsaleStart: onsale,
		URL:         "https://www.ticketmaster.com/event/Z7r9jZ1AdFUoO",
		Region:      "east",
		Venue:       models.Venue{ID: "KovZpZA7AAEA", Name: "Big Arena", City: "Boston", State: "MA"},
	}
}

func TestWakeTimeFromSale(t *testing.T) {
	s := newTestScheduler(new(MockEventStore), new(MockSender))
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	event := saleEvent(now.Add(48 * time.Hour))

	wake := s.WakeTime(event, now)
	require.NotNil(t, wake)
	require.Equal(t, event.OnsaleStart.Add(-12*time.Hour), *wake)
}

func TestWakeTimePrefersEarliestPresale(t *testing.T) {
	s := newTestScheduler(new(MockEventStore), new(MockSender))
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	event := saleEvent(now.Add(96 * time.Hour))

	presales := []models.Presale{
		{Name: "Artist Presale", StartDateTime: now.Add(72 * time.Hour)},
		{Name: "VIP Presale", StartDateTime: now.Add(48 * time.Hour)},
	}
	data, err := json.Marshal(presales)
	require.NoError(t, err)
	event.PresaleData = data

	wake := s.WakeTime(event, now)
	require.NotNil(t, wake)
	require.Equal(t, now.Add(48*time.Hour).Add(-12*time.Hour), *wake)
}

func TestWakeTimeFallsBackToEscalation(t *testing.T) {
	s := newTestScheduler(new(MockEventStore), new(MockSender))
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	// Sale within the standard offset but beyond the escalation offset
	event := saleEvent(now.Add(3 * time.Hour))
	wake := s.WakeTime(event, now)
	require.NotNil(t, wake)
	require.Equal(t, event.OnsaleStart.Add(-time.Hour), *wake)

	// Sale within the escalation offset: nothing left to schedule
	event = saleEvent(now.Add(30 * time.Minute))
	require.Nil(t, s.WakeTime(event, now))
}

func TestEscalationTime(t *testing.T) {
	s := newTestScheduler(new(MockEventStore), new(MockSender))
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	event := saleEvent(now.Add(6 * time.Hour))
	wake := s.EscalationTime(event, now)
	require.NotNil(t, wake)
	require.Equal(t, event.OnsaleStart.Add(-time.Hour), *wake)

	require.Nil(t, s.EscalationTime(saleEvent(now.Add(30*time.Minute)), now))
}

func TestSweepDeliversAndClears(t *testing.T) {
	events := new(MockEventStore)
	sender := new(MockSender)

	due := []models.Event{*saleEvent(time.Now().UTC().Add(12 * time.Hour))}
	events.On("ListDueReminders", mock.Anything, mock.AnythingOfType("time.Time")).Return(due, nil)
	sender.On("SendEmbed", "chan-ordinary", mock.AnythingOfType("*discordgo.MessageEmbed")).Return(nil)
	events.On("SetReminder", mock.Anything, due[0].ID, (*time.Time)(nil)).Return(nil)

	s := newTestScheduler(events, sender)
	require.NoError(t, s.Sweep(context.Background()))

	events.AssertExpectations(t)
	sender.AssertExpectations(t)
}

func TestSweepClearsEvenWhenSendFails(t *testing.T) {
	events := new(MockEventStore)
	sender := new(MockSender)

	due := []models.Event{*saleEvent(time.Now().UTC().Add(12 * time.Hour))}
	events.On("ListDueReminders", mock.Anything, mock.AnythingOfType("time.Time")).Return(due, nil)
	sender.On("SendEmbed", mock.Anything, mock.Anything).Return(errors.New("channel unavailable"))
	events.On("SetReminder", mock.Anything, due[0].ID, (*time.Time)(nil)).Return(nil)

	s := newTestScheduler(events, sender)
	require.NoError(t, s.Sweep(context.Background()))

	// The reminder is cleared regardless, so a broken channel cannot
	// cause the same reminder to fire every sweep.
	events.AssertExpectations(t)
}
