package notify

import (
	"fmt"
	"strings"
	"time"

	"example.com/showtime/services/notifier/internal/models"

	"github.com/bwmarrin/discordgo"
)

// Embed colors for the two message kinds
const (
	colorAnnouncement = 0x3498DB // blue
	colorReminder     = 0xF1C40F // gold
)

// ReminderTitlePrefix marks reminder messages so reaction handlers can
// tell them apart from announcements.
const ReminderTitlePrefix = "🔔 REMINDER: "

const bellCallToAction = "React with 🔔 to this message to receive a reminder 12 hours before tickets go on sale."

// FormatEventTime renders a timestamp in the fixed display timezone,
// e.g. "June 1, 2025 at 6:00 PM".
func FormatEventTime(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return "TBA"
	}
	return t.In(loc).Format("January 2, 2006 at 3:04 PM")
}

// EventTitle builds the message title from artist and event names
func EventTitle(event *models.Event) string {
	if event.Artist != nil && event.Artist.Name != "" && !strings.EqualFold(event.Artist.Name, event.Name) {
		return fmt.Sprintf("%s - %s", event.Artist.Name, event.Name)
	}
	return event.Name
}

// BuildEventEmbed renders the announcement message for a new event. The
// caller resolves resolvedURL through the URL repair path first.
func BuildEventEmbed(event *models.Event, resolvedURL string, loc *time.Location) *discordgo.MessageEmbed {
	var b strings.Builder
	fmt.Fprintf(&b, "**Location**: %s, %s\n", event.Venue.City, event.Venue.State)
	fmt.Fprintf(&b, "**Event Date**: %s\n", FormatEventTime(event.EventDate, loc))
	fmt.Fprintf(&b, "**Sale Start**: %s", FormatEventTime(event.OnsaleStart, loc))

	if event.HasVF && event.VFURL != nil {
		fmt.Fprintf(&b, "\n**Verified Fan**: %s", *event.VFURL)
	}

	b.WriteString("\n\n")
	b.WriteString(bellCallToAction)

	embed := &discordgo.MessageEmbed{
		Title:       EventTitle(event),
		URL:         resolvedURL,
		Description: b.String(),
		Color:       colorAnnouncement,
	}
	if event.ImageURL != nil && *event.ImageURL != "" {
		embed.Image = &discordgo.MessageEmbedImage{URL: *event.ImageURL}
	}
	return embed
}

// BuildReminderEmbed renders the reminder message. Phrasing depends on how
// far away the sale is, and the follow-up bell is only offered while a
// later reminder is still possible.
func BuildReminderEmbed(event *models.Event, resolvedURL string, loc *time.Location, now time.Time) *discordgo.MessageEmbed {
	hoursUntilSale := event.OnsaleStart.Sub(now).Hours()

	var reminderText string
	canFollowUp := false
	switch {
	case hoursUntilSale < 0:
		reminderText = "**Tickets are now on sale!**"
	case hoursUntilSale < 1:
		reminderText = "**Tickets go on sale in less than 1 hour!**"
	default:
		reminderText = fmt.Sprintf("**Tickets go on sale in ~%d hours!**", int(hoursUntilSale))
		canFollowUp = true
	}

	footer := "Tickets are now on sale or will be very soon. Good luck!"
	if canFollowUp {
		footer = "React with 🔔 to this message to receive another reminder 1 hour before sale."
	}

	var b strings.Builder
	b.WriteString(reminderText)
	b.WriteString("\n")
	fmt.Fprintf(&b, "**Location**: %s, %s\n", event.Venue.City, event.Venue.State)
	fmt.Fprintf(&b, "**Sale Start**: %s", FormatEventTime(event.OnsaleStart, loc))
	if event.HasVF && event.VFURL != nil {
		fmt.Fprintf(&b, "\n**Verified Fan**: %s", *event.VFURL)
	}
	b.WriteString("\n\n")
	b.WriteString(footer)

	return &discordgo.MessageEmbed{
		Title:       ReminderTitlePrefix + EventTitle(event),
		URL:         resolvedURL,
		Description: b.String(),
		Color:       colorReminder,
	}
}
