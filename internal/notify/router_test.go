package notify

import (
	"bytes"
	"context"
	"testing"
	"time"

	"example.com/showtime/services/notifier/config"
	"example.com/showtime/services/notifier/internal/metrics"
	"example.com/showtime/services/notifier/internal/models"

	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockEventStore struct {
	mock.Mock
}

func (m *MockEventStore) ListUndelivered(ctx context.Context, notable bool, international bool, intlCodes []string, limit int) ([]models.Event, error) {
	args := m.Called(ctx, notable, international, intlCodes, limit)
	return args.Get(0).([]models.Event), args.Error(1)
}

func (m *MockEventStore) MarkDelivered(ctx context.Context, eventID string) error {
	args := m.Called(ctx, eventID)
	return args.Error(0)
}

type MockSender struct {
	mock.Mock
}

func (m *MockSender) SendEmbed(channelID string, embed *discordgo.MessageEmbed) error {
	args := m.Called(channelID, embed)
	return args.Error(0)
}

type MockQuarantine struct {
	mock.Mock
}

func (m *MockQuarantine) Add(ctx context.Context, eventID string) {
	m.Called(ctx, eventID)
}

func (m *MockQuarantine) Contains(ctx context.Context, eventID string) bool {
	args := m.Called(ctx, eventID)
	return args.Bool(0)
}

var testDiscordConfig = config.DiscordConfig{
	Token:           "test-token",
	NotableChannel:  "chan-notable",
	OrdinaryChannel: "chan-ordinary",
	NotableIntl:     "chan-notable-intl",
	OrdinaryIntl:    "chan-ordinary-intl",
	NotifyBatchSize: 25,
}

func TestResolveChannel(t *testing.T) {
	id, ok := ResolveChannel(testDiscordConfig, Cell{Notable: true})
	require.True(t, ok)
	require.Equal(t, "chan-notable", id)

	id, ok = ResolveChannel(testDiscordConfig, Cell{Notable: true, International: true})
	require.True(t, ok)
	require.Equal(t, "chan-notable-intl", id)

	id, ok = ResolveChannel(testDiscordConfig, Cell{})
	require.True(t, ok)
	require.Equal(t, "chan-ordinary", id)

	id, ok = ResolveChannel(testDiscordConfig, Cell{International: true})
	require.True(t, ok)
	require.Equal(t, "chan-ordinary-intl", id)
}

func TestResolveChannelInternationalFallback(t *testing.T) {
	cfg := testDiscordConfig
	cfg.NotableIntl = ""

	var buf bytes.Buffer
	restore := log.Logger
	log.Logger = zerolog.New(&buf)
	defer func() { log.Logger = restore }()

	id, ok := ResolveChannel(cfg, Cell{Notable: true, International: true})
	require.True(t, ok)
	require.Equal(t, "chan-notable", id)

	// A clean fallback to an unshared domestic channel is routine, not a warning
	require.Empty(t, buf.String())
}

func TestResolveChannelFallbackCollisionWarns(t *testing.T) {
	cfg := testDiscordConfig
	cfg.OrdinaryIntl = ""
	cfg.OrdinaryChannel = cfg.NotableChannel

	var buf bytes.Buffer
	restore := log.Logger
	log.Logger = zerolog.New(&buf)
	defer func() { log.Logger = restore }()

	id, ok := ResolveChannel(cfg, Cell{International: true})
	require.True(t, ok)
	require.Equal(t, "chan-notable", id)

	logged := buf.String()
	require.Contains(t, logged, "collides")
	require.Contains(t, logged, "ordinary-international")
	require.Contains(t, logged, "notable-domestic")
}

func TestResolveChannelUnconfigured(t *testing.T) {
	_, ok := ResolveChannel(config.DiscordConfig{}, Cell{Notable: true})
	require.False(t, ok)
}

func TestCellString(t *testing.T) {
	require.Equal(t, "notable-domestic", Cell{Notable: true}.String())
	require.Equal(t, "notable-international", Cell{Notable: true, International: true}.String())
	require.Equal(t, "ordinary-domestic", Cell{}.String())
	require.Equal(t, "ordinary-international", Cell{International: true}.String())
}

func TestNotifyDeliversAndMarks(t *testing.T) {
	events := new(MockEventStore)
	sender := new(MockSender)
	quarantine := new(MockQuarantine)

	stored := []models.Event{*testEvent()}
	events.On("ListUndelivered", mock.Anything, true, false, []string{"eu"}, 25).Return(stored, nil)
	events.On("MarkDelivered", mock.Anything, stored[0].ID).Return(nil)
	quarantine.On("Contains", mock.Anything, stored[0].ID).Return(false)
	sender.On("SendEmbed", "chan-notable", mock.AnythingOfType("*discordgo.MessageEmbed")).Return(nil)

	router := NewRouter(events, sender, quarantine, testDiscordConfig, []string{"eu"}, time.UTC, metrics.NewMetrics())
	err := router.Notify(context.Background(), Cell{Notable: true})

	require.NoError(t, err)
	events.AssertExpectations(t)
	sender.AssertExpectations(t)
}

func TestNotifyQuarantinesRejectedURL(t *testing.T) {
	events := new(MockEventStore)
	sender := new(MockSender)
	quarantine := new(MockQuarantine)

	stored := []models.Event{*testEvent()}
	rejection := &discordgo.RESTError{
		Message: &discordgo.APIErrorMessage{Code: discordgo.ErrCodeInvalidFormBody},
	}

	events.On("ListUndelivered", mock.Anything, true, false, []string(nil), 25).Return(stored, nil)
	quarantine.On("Contains", mock.Anything, stored[0].ID).Return(false)
	sender.On("SendEmbed", "chan-notable", mock.Anything).Return(rejection)
	quarantine.On("Add", mock.Anything, stored[0].ID).Return()
	// Quarantined events are marked delivered so they are never retried
	events.On("MarkDelivered", mock.Anything, stored[0].ID).Return(nil)

	router := NewRouter(events, sender, quarantine, testDiscordConfig, nil, time.UTC, metrics.NewMetrics())
	err := router.Notify(context.Background(), Cell{Notable: true})

	require.NoError(t, err)
	events.AssertExpectations(t)
	quarantine.AssertExpectations(t)
}

func TestNotifySkipsQuarantined(t *testing.T) {
	events := new(MockEventStore)
	sender := new(MockSender)
	quarantine := new(MockQuarantine)

	stored := []models.Event{*testEvent()}
	events.On("ListUndelivered", mock.Anything, false, false, []string(nil), 25).Return(stored, nil)
	quarantine.On("Contains", mock.Anything, stored[0].ID).Return(true)
	events.On("MarkDelivered", mock.Anything, stored[0].ID).Return(nil)

	router := NewRouter(events, sender, quarantine, testDiscordConfig, nil, time.UTC, metrics.NewMetrics())
	err := router.Notify(context.Background(), Cell{})

	require.NoError(t, err)
	sender.AssertNotCalled(t, "SendEmbed", mock.Anything, mock.Anything)
}

func TestNotifyTransientErrorLeavesUndelivered(t *testing.T) {
	events := new(MockEventStore)
	sender := new(MockSender)
	quarantine := new(MockQuarantine)

	stored := []models.Event{*testEvent()}
	events.On("ListUndelivered", mock.Anything, true, false, []string(nil), 25).Return(stored, nil)
	quarantine.On("Contains", mock.Anything, stored[0].ID).Return(false)
	sender.On("SendEmbed", "chan-notable", mock.Anything).Return(errors.New("gateway timeout"))

	router := NewRouter(events, sender, quarantine, testDiscordConfig, nil, time.UTC, metrics.NewMetrics())
	err := router.Notify(context.Background(), Cell{Notable: true})

	require.NoError(t, err)
	events.AssertNotCalled(t, "MarkDelivered", mock.Anything, mock.Anything)
}
