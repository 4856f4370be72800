package notify

import (
	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Sender delivers one embed to one channel
type Sender interface {
	SendEmbed(channelID string, embed *discordgo.MessageEmbed) error
}

// DiscordSender implements Sender over a discordgo session
type DiscordSender struct {
	session *discordgo.Session
}

// NewDiscordSender creates a sender with an authenticated session. The
// session is not connected to the gateway yet; call Open for that.
func NewDiscordSender(token string) (*DiscordSender, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Discord session")
	}
	return &DiscordSender{session: session}, nil
}

// Session exposes the underlying session for gateway handler registration
func (s *DiscordSender) Session() *discordgo.Session {
	return s.session
}

// Open connects the session to the gateway. Only needed when reaction
// handling is enabled; REST sends work without it.
func (s *DiscordSender) Open() error {
	s.session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsGuildMessageReactions
	if err := s.session.Open(); err != nil {
		return errors.Wrap(err, "failed to open Discord gateway connection")
	}
	log.Info().Msg("Discord gateway connection established")
	return nil
}

// Close shuts the gateway connection down
func (s *DiscordSender) Close() {
	if err := s.session.Close(); err != nil {
		log.Warn().Err(err).Msg("Error closing Discord session")
	}
}

// SendEmbed posts one embed message to a channel
func (s *DiscordSender) SendEmbed(channelID string, embed *discordgo.MessageEmbed) error {
	_, err := s.session.ChannelMessageSendEmbed(channelID, embed)
	return err
}
