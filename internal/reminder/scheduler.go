package reminder

import (
	"context"
	"time"

	"example.com/showtime/services/notifier/config"
	"example.com/showtime/services/notifier/internal/metrics"
	"example.com/showtime/services/notifier/internal/models"
	"example.com/showtime/services/notifier/internal/notify"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// EventStore is the persistence surface the reminder machinery needs
type EventStore interface {
	GetByURL(ctx context.Context, url string) (*models.Event, error)
	SetReminder(ctx context.Context, eventID string, reminder *time.Time) error
	ListDueReminders(ctx context.Context, cutoff time.Time) ([]models.Event, error)
}

// Scheduler computes reminder wake times, sets them, and delivers due
// reminders on a periodic sweep.
type Scheduler struct {
	events  EventStore
	sender  notify.Sender
	discord config.DiscordConfig
	cfg     config.ReminderConfig
	intl    map[string]bool
	loc     *time.Location
	metrics *metrics.Metrics
}

// NewScheduler creates a scheduler. intlCodes is the set of region codes
// that count as international for channel routing.
func NewScheduler(events EventStore, sender notify.Sender, discord config.DiscordConfig, cfg config.ReminderConfig, intlCodes []string, loc *time.Location, m *metrics.Metrics) *Scheduler {
	intl := make(map[string]bool, len(intlCodes))
	for _, code := range intlCodes {
		intl[code] = true
	}
	return &Scheduler{
		events:  events,
		sender:  sender,
		discord: discord,
		cfg:     cfg,
		intl:    intl,
		loc:     loc,
		metrics: m,
	}
}

// WakeTime computes the initial reminder time for an event: ahead of the
// earliest presale when one exists, otherwise ahead of the public sale.
// Returns nil when every candidate time has already passed.
func (s *Scheduler) WakeTime(event *models.Event, now time.Time) *time.Time {
	if presale := event.EarliestPresale(); presale != nil {
		wake := presale.StartDateTime.Add(-s.cfg.PresaleOffset)
		if wake.After(now) {
			return &wake
		}
	}
	if !event.OnsaleStart.IsZero() {
		wake := event.OnsaleStart.Add(-s.cfg.SaleOffset)
		if wake.After(now) {
			return &wake
		}
		// Too close for the standard offset; fall through to escalation
		return s.EscalationTime(event, now)
	}
	return nil
}

// EscalationTime computes the short-notice follow-up reminder time, or nil
// when the sale is already within the escalation offset.
func (s *Scheduler) EscalationTime(event *models.Event, now time.Time) *time.Time {
	if event.OnsaleStart.IsZero() {
		return nil
	}
	wake := event.OnsaleStart.Add(-s.cfg.EscalationOffset)
	if wake.After(now) {
		return &wake
	}
	return nil
}

// Set stores a reminder wake time for an event
func (s *Scheduler) Set(ctx context.Context, eventID string, wake *time.Time) error {
	if err := s.events.SetReminder(ctx, eventID, wake); err != nil {
		return err
	}
	if wake != nil {
		log.Info().Str("event_id", eventID).Time("wake", *wake).Msg("Reminder set")
	} else {
		log.Info().Str("event_id", eventID).Msg("Reminder cleared")
	}
	return nil
}

// Sweep delivers every due reminder. A reminder is cleared after its
// delivery attempt whether or not the send succeeded, so a persistently
// failing channel can never spam the same reminder every sweep.
func (s *Scheduler) Sweep(ctx context.Context) error {
	now := time.Now().UTC()
	due, err := s.events.ListDueReminders(ctx, now.Add(s.cfg.SweepLookahead))
	if err != nil {
		s.metrics.RecordError("reminder")
		return errors.Wrap(err, "failed to list due reminders")
	}
	if len(due) == 0 {
		return nil
	}

	log.Info().Int("count", len(due)).Msg("Delivering due reminders")

	for i := range due {
		event := &due[i]
		s.deliver(ctx, event, now)

		if err := s.events.SetReminder(ctx, event.ID, nil); err != nil {
			log.Error().Err(err).Str("event_id", event.ID).Msg("Failed to clear delivered reminder")
		}
	}
	return nil
}

func (s *Scheduler) deliver(ctx context.Context, event *models.Event, now time.Time) {
	cell := notify.Cell{
		Notable:       event.Artist != nil && event.Artist.Notable,
		International: s.intl[event.Region],
	}
	channelID, ok := notify.ResolveChannel(s.discord, cell)
	if !ok {
		log.Warn().Str("event_id", event.ID).Str("cell", cell.String()).Msg("No channel for reminder cell, dropping reminder")
		return
	}

	resolvedURL := notify.FallbackEventURL(event.ID)
	if event.URL != "" {
		resolvedURL = notify.RepairURL(event.URL)
	}

	embed := notify.BuildReminderEmbed(event, resolvedURL, s.loc, now)
	if err := s.sender.SendEmbed(channelID, embed); err != nil {
		log.Error().Err(err).Str("event_id", event.ID).Msg("Failed to deliver reminder")
		s.metrics.RecordError("reminder")
		return
	}

	s.metrics.IncrementCounter("reminder.delivered")
	s.metrics.RecordSuccess("reminder")
}
