package notify

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

// GenericFallbackURL replaces URLs that cannot be repaired. The delivery
// channel's embed renderer rejects malformed links outright, which would
// otherwise silently drop the whole notification.
const GenericFallbackURL = "https://www.ticketmaster.com"

var (
	controlChars  = regexp.MustCompile(`[\x00-\x1F\x7F]`)
	dupSlashes    = regexp.MustCompile(`/{2,}`)
	finalURLCheck = regexp.MustCompile(`^(https?)://[^\s/$.?#][^\s]*$`)
)

// FallbackEventURL builds a deterministic public URL for an event whose
// upstream record carries no URL at all.
func FallbackEventURL(eventID string) string {
	return "https://www.ticketmaster.com/event/" + eventID
}

// RepairURL normalizes a possibly malformed upstream URL into a form the
// embed renderer accepts. Repairing an already-well-formed URL returns it
// unchanged; an unsalvageable input yields GenericFallbackURL, never an
// error.
func RepairURL(raw string) string {
	if raw == "" {
		return GenericFallbackURL
	}

	original := raw
	raw = strings.TrimSpace(raw)
	raw = controlChars.ReplaceAllString(raw, "")

	// Known malformed scheme prefixes observed in upstream data
	switch {
	case strings.HasPrefix(raw, "Https://"):
		raw = "https://" + raw[len("Https://"):]
	case strings.HasPrefix(raw, "Http://"):
		raw = "http://" + raw[len("Http://"):]
	case strings.HasPrefix(raw, "ttps://"):
		raw = "https://" + raw[len("ttps://"):]
	case strings.HasPrefix(raw, "hhttps://"):
		raw = "https://" + raw[len("hhttps://"):]
	case strings.HasPrefix(raw, "http:/www."):
		raw = "http://www." + raw[len("http:/www."):]
	case strings.HasPrefix(raw, "https:/www."):
		raw = "https://www." + raw[len("https:/www."):]
	case strings.HasPrefix(raw, "www."):
		raw = "https://" + raw
	case !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://"):
		raw = "https://" + raw
	}

	// Collapse duplicated path separators, keeping the scheme's own
	scheme, rest, found := strings.Cut(raw, "://")
	if !found {
		return GenericFallbackURL
	}
	rest = dupSlashes.ReplaceAllString(rest, "/")
	raw = scheme + "://" + rest

	// Decode first so already-encoded parts are not double-encoded
	if decoded, err := url.PathUnescape(raw); err == nil {
		raw = decoded
	}

	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		log.Warn().Str("url", original).Msg("URL missing host after repair")
		return GenericFallbackURL
	}

	rebuilt := url.URL{
		Scheme:   strings.ToLower(parsed.Scheme),
		Host:     parsed.Host,
		Path:     parsed.Path,
		RawQuery: encodeQuery(parsed.RawQuery),
		Fragment: parsed.Fragment,
	}
	fixed := rebuilt.String()

	if !finalURLCheck.MatchString(fixed) {
		log.Warn().Str("url", original).Str("repaired", fixed).Msg("URL failed final validation")
		return GenericFallbackURL
	}

	if fixed != original {
		log.Debug().Str("from", original).Str("to", fixed).Msg("Repaired URL")
	}
	return fixed
}

// encodeQuery percent-encodes a query string while keeping its structure
// characters intact.
func encodeQuery(query string) string {
	if query == "" {
		return ""
	}
	var b strings.Builder
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteByte(c)
		case c == '=' || c == '&' || c == '-' || c == '_' || c == '.' || c == '~' || c == '%' || c == '+':
			b.WriteByte(c)
		case c == ' ':
			b.WriteString("%20")
		default:
			b.WriteString(url.QueryEscape(string(c)))
		}
	}
	return b.String()
}
