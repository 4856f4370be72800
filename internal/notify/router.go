package notify

import (
	"context"
	"time"

	"example.com/showtime/services/notifier/config"
	"example.com/showtime/services/notifier/internal/metrics"
	"example.com/showtime/services/notifier/internal/models"

	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Cell identifies one of the four routing destinations
type Cell struct {
	Notable       bool
	International bool
}

// Cells enumerates every routing cell in delivery order, notable first
var Cells = []Cell{
	{Notable: true, International: false},
	{Notable: true, International: true},
	{Notable: false, International: false},
	{Notable: false, International: true},
}

func (c Cell) String() string {
	switch {
	case c.Notable && c.International:
		return "notable-international"
	case c.Notable:
		return "notable-domestic"
	case c.International:
		return "ordinary-international"
	default:
		return "ordinary-domestic"
	}
}

// ResolveChannel maps a cell to its configured channel ID. International
// cells without a dedicated channel fall back to the domestic counterpart;
// a warning is logged only when that fallback collides with a channel
// serving the opposite notability class, since those cells' traffic would
// then mix in one channel. The second return is false when no channel can
// serve the cell at all.
func ResolveChannel(cfg config.DiscordConfig, cell Cell) (string, bool) {
	var dedicated, fallback string
	var crossChannels map[Cell]string
	if cell.Notable {
		dedicated, fallback = cfg.NotableChannel, ""
		if cell.International {
			dedicated, fallback = cfg.NotableIntl, cfg.NotableChannel
			crossChannels = map[Cell]string{
				{Notable: false, International: false}: cfg.OrdinaryChannel,
				{Notable: false, International: true}:  cfg.OrdinaryIntl,
			}
		}
	} else {
		dedicated, fallback = cfg.OrdinaryChannel, ""
		if cell.International {
			dedicated, fallback = cfg.OrdinaryIntl, cfg.OrdinaryChannel
			crossChannels = map[Cell]string{
				{Notable: true, International: false}: cfg.NotableChannel,
				{Notable: true, International: true}:  cfg.NotableIntl,
			}
		}
	}

	if dedicated != "" {
		return dedicated, true
	}
	if fallback != "" {
		for cross, channel := range crossChannels {
			if channel == fallback {
				log.Warn().
					Str("cell", cell.String()).
					Str("collides_with", cross.String()).
					Str("channel", fallback).
					Msg("International fallback channel collides with another cell's channel")
			}
		}
		return fallback, true
	}
	return "", false
}

// EventStore is the persistence surface the router needs
type EventStore interface {
	ListUndelivered(ctx context.Context, notable bool, international bool, intlCodes []string, limit int) ([]models.Event, error)
	MarkDelivered(ctx context.Context, eventID string) error
}

// QuarantineStore is the skip-list for events with rejected URLs
type QuarantineStore interface {
	Add(ctx context.Context, eventID string)
	Contains(ctx context.Context, eventID string) bool
}

// Router delivers undelivered events to their routing cell's channel
type Router struct {
	events     EventStore
	sender     Sender
	quarantine QuarantineStore
	discord    config.DiscordConfig
	intlCodes  []string
	loc        *time.Location
	batch      int
	metrics    *metrics.Metrics
}

// NewRouter creates a router. intlCodes is the set of region codes that
// count as international for cell classification.
func NewRouter(events EventStore, sender Sender, quarantine QuarantineStore, discord config.DiscordConfig, intlCodes []string, loc *time.Location, m *metrics.Metrics) *Router {
	batch := discord.NotifyBatchSize
	if batch <= 0 {
		batch = 25
	}
	return &Router{
		events:     events,
		sender:     sender,
		quarantine: quarantine,
		discord:    discord,
		intlCodes:  intlCodes,
		loc:        loc,
		batch:      batch,
		metrics:    m,
	}
}

// NotifyAll runs one delivery pass over every routing cell
func (r *Router) NotifyAll(ctx context.Context) error {
	for _, cell := range Cells {
		if err := r.Notify(ctx, cell); err != nil {
			return errors.Wrapf(err, "delivery pass failed for cell %s", cell)
		}
	}
	return nil
}

// Notify delivers the undelivered backlog of one cell. A single event's
// failure never blocks the rest of the batch: send errors are logged and
// the event stays undelivered for the next pass, except rejected-URL
// errors, which quarantine the event and mark it delivered so it is never
// retried.
func (r *Router) Notify(ctx context.Context, cell Cell) error {
	channelID, ok := ResolveChannel(r.discord, cell)
	if !ok {
		log.Debug().Str("cell", cell.String()).Msg("No channel for cell, skipping")
		return nil
	}

	events, err := r.events.ListUndelivered(ctx, cell.Notable, cell.International, r.intlCodes, r.batch)
	if err != nil {
		r.metrics.RecordError("notify")
		return errors.Wrap(err, "failed to list undelivered events")
	}
	if len(events) == 0 {
		return nil
	}

	log.Info().Str("cell", cell.String()).Int("count", len(events)).Msg("Delivering events")

	for i := range events {
		event := &events[i]

		if r.quarantine.Contains(ctx, event.ID) {
			// Quarantined rows predating the delivered flag flip
			if err := r.events.MarkDelivered(ctx, event.ID); err != nil {
				log.Error().Err(err).Str("event_id", event.ID).Msg("Failed to mark quarantined event delivered")
			}
			continue
		}

		resolvedURL := FallbackEventURL(event.ID)
		if event.URL != "" {
			resolvedURL = RepairURL(event.URL)
		}

		embed := BuildEventEmbed(event, resolvedURL, r.loc)
		if err := r.sender.SendEmbed(channelID, embed); err != nil {
			if isRejectedEmbed(err) {
				log.Warn().Str("event_id", event.ID).Str("url", resolvedURL).Msg("Channel rejected event URL, quarantining")
				r.quarantine.Add(ctx, event.ID)
				r.metrics.IncrementCounter("notify.quarantined")
				if err := r.events.MarkDelivered(ctx, event.ID); err != nil {
					log.Error().Err(err).Str("event_id", event.ID).Msg("Failed to mark quarantined event delivered")
				}
				continue
			}
			log.Error().Err(err).Str("event_id", event.ID).Str("cell", cell.String()).Msg("Failed to deliver event")
			r.metrics.RecordError("notify")
			continue
		}

		if err := r.events.MarkDelivered(ctx, event.ID); err != nil {
			// The message went out; a duplicate on the next pass beats a
			// silent drop, so just log it.
			log.Error().Err(err).Str("event_id", event.ID).Msg("Failed to mark event delivered")
			continue
		}

		r.metrics.IncrementCounter("notify.delivered")
		r.metrics.RecordSuccess("notify")
	}

	return nil
}

// isRejectedEmbed reports whether a send error means the channel rejected
// the message body itself (malformed URL), as opposed to a transient
// transport failure.
func isRejectedEmbed(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return false
	}
	return restErr.Message != nil && restErr.Message.Code == discordgo.ErrCodeInvalidFormBody
}
