package vf

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"example.com/showtime/services/notifier/config"
	"example.com/showtime/services/notifier/internal/models"

	"github.com/rs/zerolog/log"
)

// maxPageBytes bounds how much of a scanned page is read
const maxPageBytes = 2 << 20

var (
	keywordPattern = regexp.MustCompile(`(?i)verified\s*fan`)
	confirmPattern = regexp.MustCompile(`(?i)verified\s*fan|signup|presale`)
	slugStrip      = regexp.MustCompile(`[^a-z0-9]`)
)

// EventStore is the persistence surface the detector needs
type EventStore interface {
	ListVFRecheckable(ctx context.Context, now time.Time, window, cooldown time.Duration, limit int) ([]models.Event, error)
	SaveVFResult(ctx context.Context, eventID string, found bool, vfURL *string, checkedAt time.Time) error
}

// Detector finds Verified Fan signup pages for events. Detection is
// best-effort: every failure is "not found this attempt" and eligible for
// the periodic recheck sweep.
type Detector struct {
	store       EventStore
	httpClient  *http.Client
	linkPattern *regexp.Regexp
	signupHost  string
	enabled     bool
	capable     bool
	window      time.Duration
	cooldown    time.Duration
	batch       int
	probeDelay  time.Duration
}

// NewDetector creates a detector. The capable flag is the one-time schema
// capability check result: when false, results are never persisted.
func NewDetector(cfg config.VFConfig, store EventStore, capable bool) *Detector {
	host := regexp.QuoteMeta(cfg.SignupHost)
	return &Detector{
		store:       store,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		linkPattern: regexp.MustCompile(`(?i)href=["']([^"']*` + host + `/[^"']+)["']`),
		signupHost:  cfg.SignupHost,
		enabled:     cfg.Enabled,
		capable:     capable,
		window:      cfg.RecheckWindow,
		cooldown:    cfg.RecheckCooldown,
		batch:       cfg.RecheckBatch,
		probeDelay:  cfg.ProbeDelay,
	}
}

// Detect tries to find a Verified Fan signup URL for an event. Strategies
// run in order, first success wins: scan the event's public page, then
// probe slug guesses derived from the artist name.
func (d *Detector) Detect(ctx context.Context, eventURL, artistName string) (bool, string) {
	if !d.enabled {
		return false, ""
	}

	if vfURL := d.scanEventPage(ctx, eventURL); vfURL != "" {
		return true, vfURL
	}

	for _, slug := range slugCandidates(artistName) {
		if vfURL := d.probeSlug(ctx, slug); vfURL != "" {
			return true, vfURL
		}
	}

	log.Debug().Str("event_url", eventURL).Msg("No VF signup detected")
	return false, ""
}

// ScheduleCheck runs detection for a newly stored event without blocking
// the caller's ingestion cycle.
func (d *Detector) ScheduleCheck(eventID, eventURL, artistName string) {
	if !d.enabled || !d.capable {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		d.runCheck(ctx, eventID, eventURL, artistName)
	}()
}

// Sweep re-runs detection for not-yet-detected events whose sale opens
// within the lookahead window, rate-limited and capped per sweep.
func (d *Detector) Sweep(ctx context.Context) error {
	if !d.enabled || !d.capable {
		return nil
	}

	events, err := d.store.ListVFRecheckable(ctx, time.Now().UTC(), d.window, d.cooldown, d.batch)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	log.Info().Int("count", len(events)).Msg("Rechecking events for VF signups")

	for _, event := range events {
		artistName := ""
		if event.Artist != nil {
			artistName = event.Artist.Name
		}
		d.runCheck(ctx, event.ID, event.URL, artistName)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.probeDelay):
		}
	}
	return nil
}

func (d *Detector) runCheck(ctx context.Context, eventID, eventURL, artistName string) {
	found, vfURL := d.Detect(ctx, eventURL, artistName)

	var urlPtr *string
	if found {
		urlPtr = &vfURL
	}
	if err := d.store.SaveVFResult(ctx, eventID, found, urlPtr, time.Now().UTC()); err != nil {
		log.Error().Err(err).Str("event_id", eventID).Msg("Failed to save VF detection result")
		return
	}
	if found {
		log.Info().Str("event_id", eventID).Str("vf_url", vfURL).Msg("VF signup detected")
	}
}

// scanEventPage fetches the event's public page and searches the markup for
// a signup link, first directly, then in a bounded window around a
// "verified fan" keyword.
func (d *Detector) scanEventPage(ctx context.Context, eventURL string) string {
	if eventURL == "" {
		return ""
	}

	body, ok := d.fetch(ctx, http.MethodGet, eventURL)
	if !ok {
		return ""
	}

	if match := d.linkPattern.FindStringSubmatch(body); match != nil {
		return normalizeVFURL(match[1])
	}

	if loc := keywordPattern.FindStringIndex(body); loc != nil {
		start := loc[0] - 500
		if start < 0 {
			start = 0
		}
		end := loc[1] + 500
		if end > len(body) {
			end = len(body)
		}
		if match := d.linkPattern.FindStringSubmatch(body[start:end]); match != nil {
			return normalizeVFURL(match[1])
		}
	}

	return ""
}

// probeSlug checks whether a candidate slug exists as a signup page. A
// match is confirmed only when the page content itself carries a signup
// keyword, so generic error pages do not count.
func (d *Detector) probeSlug(ctx context.Context, slug string) string {
	vfURL := fmt.Sprintf("https://%s/%s", d.signupHost, slug)

	if _, ok := d.fetch(ctx, http.MethodHead, vfURL); !ok {
		return ""
	}
	body, ok := d.fetch(ctx, http.MethodGet, vfURL)
	if !ok {
		return ""
	}
	if confirmPattern.MatchString(body) {
		return vfURL
	}
	return ""
}

// fetch performs one bounded request; any failure reads as "no content"
func (d *Detector) fetch(ctx context.Context, method, rawURL string) (string, bool) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return "", false
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		log.Debug().Err(err).Str("url", rawURL).Msg("VF probe failed")
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", false
	}
	if method == http.MethodHead {
		return "", true
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", false
	}
	return string(body), true
}

// slugCandidates derives up to 3 candidate signup slugs from an artist
// name: the lower-cased alphanumeric form, plus a variant with a leading
// "the" stripped.
func slugCandidates(artistName string) []string {
	if artistName == "" {
		return nil
	}

	slugs := make([]string, 0, 3)
	base := slugStrip.ReplaceAllString(strings.ToLower(artistName), "")
	if base != "" {
		slugs = append(slugs, base)
	}

	if strings.HasPrefix(strings.ToLower(artistName), "the ") {
		alt := slugStrip.ReplaceAllString(strings.ToLower(artistName[4:]), "")
		if alt != "" && (len(slugs) == 0 || alt != slugs[0]) {
			slugs = append(slugs, alt)
		}
	}

	if len(slugs) > 3 {
		slugs = slugs[:3]
	}
	return slugs
}

func normalizeVFURL(raw string) string {
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	return "https://" + strings.TrimLeft(raw, "/")
}
