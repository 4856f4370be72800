package reminder

import (
	"context"
	"strings"
	"time"

	"example.com/showtime/services/notifier/internal/models"
	"example.com/showtime/services/notifier/internal/notify"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
)

const (
	bellEmoji = "🔔"
	ackEmoji  = "✅"
)

// Reactions wires reminder set/cancel gestures onto the gateway. Users
// react with a bell on a delivered message to request a reminder for that
// event and remove it to cancel.
type Reactions struct {
	events    EventStore
	scheduler *Scheduler
}

// NewReactions creates the reaction handler set
func NewReactions(events EventStore, scheduler *Scheduler) *Reactions {
	return &Reactions{
		events:    events,
		scheduler: scheduler,
	}
}

// Register attaches the handlers to a gateway session
func (h *Reactions) Register(session *discordgo.Session) {
	session.AddHandler(h.onReactionAdd)
	session.AddHandler(h.onReactionRemove)
}

func (h *Reactions) onReactionAdd(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
	if r.Emoji.Name != bellEmoji {
		return
	}
	if s.State.User != nil && r.UserID == s.State.User.ID {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	msg, event, isReminder := h.resolve(ctx, s, r.ChannelID, r.MessageID)
	if event == nil {
		return
	}

	now := time.Now().UTC()
	var wake *time.Time
	if isReminder {
		wake = h.scheduler.EscalationTime(event, now)
	} else {
		wake = h.scheduler.WakeTime(event, now)
	}
	if wake == nil {
		log.Debug().Str("event_id", event.ID).Msg("Bell reaction too late for any reminder")
		return
	}

	if err := h.scheduler.Set(ctx, event.ID, wake); err != nil {
		log.Error().Err(err).Str("event_id", event.ID).Msg("Failed to set reminder from reaction")
		return
	}

	if err := s.MessageReactionAdd(r.ChannelID, msg.ID, ackEmoji); err != nil {
		log.Debug().Err(err).Str("message_id", msg.ID).Msg("Failed to acknowledge reminder reaction")
	}
}

func (h *Reactions) onReactionRemove(s *discordgo.Session, r *discordgo.MessageReactionRemove) {
	if r.Emoji.Name != bellEmoji {
		return
	}
	if s.State.User != nil && r.UserID == s.State.User.ID {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	msg, event, _ := h.resolve(ctx, s, r.ChannelID, r.MessageID)
	if event == nil {
		return
	}

	// Cancel only once the last bell is gone
	for _, reaction := range msg.Reactions {
		if reaction.Emoji.Name == bellEmoji && reaction.Count > 0 {
			return
		}
	}

	if err := h.scheduler.Set(ctx, event.ID, nil); err != nil {
		log.Error().Err(err).Str("event_id", event.ID).Msg("Failed to clear reminder from reaction")
	}
}

// resolve maps a reacted-on message back to its event. Only bot-authored
// embed messages whose URL matches a stored event qualify.
func (h *Reactions) resolve(ctx context.Context, s *discordgo.Session, channelID, messageID string) (*discordgo.Message, *models.Event, bool) {
	msg, err := s.ChannelMessage(channelID, messageID)
	if err != nil {
		log.Debug().Err(err).Str("message_id", messageID).Msg("Failed to fetch reacted message")
		return nil, nil, false
	}
	if s.State.User == nil || msg.Author == nil || msg.Author.ID != s.State.User.ID {
		return nil, nil, false
	}
	if len(msg.Embeds) == 0 || msg.Embeds[0].URL == "" {
		return nil, nil, false
	}

	embed := msg.Embeds[0]
	event, err := h.events.GetByURL(ctx, embed.URL)
	if err != nil {
		log.Debug().Err(err).Str("url", embed.URL).Msg("Reacted message URL matches no stored event")
		return nil, nil, false
	}

	return msg, event, strings.HasPrefix(embed.Title, notify.ReminderTitlePrefix)
}
