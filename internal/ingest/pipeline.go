package ingest

import (
	"context"
	"encoding/json"
	"time"

	"example.com/showtime/services/notifier/internal/metrics"
	"example.com/showtime/services/notifier/internal/models"
	"example.com/showtime/services/notifier/internal/regions"
	"example.com/showtime/services/notifier/internal/tracing"
	"example.com/showtime/services/notifier/internal/upstream"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// minImageWidth is the preferred lower bound for notification images
const minImageWidth = 1024

// EventStore is the event persistence surface the pipeline needs
type EventStore interface {
	Exists(ctx context.Context, eventID string) (bool, error)
	Create(ctx context.Context, event *models.Event) error
}

// ArtistStore is the artist persistence surface the pipeline needs
type ArtistStore interface {
	Ensure(ctx context.Context, artist *models.Artist) error
	GetByID(ctx context.Context, artistID string) (*models.Artist, error)
}

// VenueStore is the venue persistence surface the pipeline needs
type VenueStore interface {
	Ensure(ctx context.Context, venue *models.Venue) error
}

// StatusStore records per-region polling health
type StatusStore interface {
	Upsert(ctx context.Context, status *models.RegionStatus) error
	RecordActivity(ctx context.Context, activity *models.RegionActivity) error
}

// Fetcher is the upstream API surface the pipeline needs
type Fetcher interface {
	PageSize() int
	FetchPage(ctx context.Context, region regions.Region, cls regions.Classification, page int, notOnsaleBefore time.Time) ([]upstream.RawEvent, error)
	FetchDetail(ctx context.Context, eventID string) (*upstream.RawEvent, error)
}

// VFChecker schedules Verified Fan detection for new events
type VFChecker interface {
	ScheduleCheck(eventID, eventURL, artistName string)
}

// Indexer mirrors new events into the operator search index
type Indexer interface {
	IndexEvent(ctx context.Context, event *models.Event, venue *models.Venue, artist *models.Artist) error
}

// ReminderPlanner seeds reminders for auto-remind artists
type ReminderPlanner interface {
	WakeTime(event *models.Event, now time.Time) *time.Time
	Set(ctx context.Context, eventID string, wake *time.Time) error
}

// Pipeline polls the upstream API per region and stores newly discovered
// events. It owns the rotation cursor for rotating-classification regions.
type Pipeline struct {
	fetcher   Fetcher
	events    EventStore
	artists   ArtistStore
	venues    VenueStore
	statuses  StatusStore
	vf        VFChecker
	indexer   Indexer
	reminders ReminderPlanner
	regions   []regions.Region
	rotation  map[string]int
	maxPages  int
	pageDelay time.Duration
	metrics   *metrics.Metrics
	tracer    tracing.Tracer
}

// NewPipeline creates the ingestion pipeline. vf, indexer and reminders may
// be nil when the corresponding feature is disabled.
func NewPipeline(fetcher Fetcher, events EventStore, artists ArtistStore, venues VenueStore, statuses StatusStore, vf VFChecker, indexer Indexer, reminders ReminderPlanner, regionList []regions.Region, maxPages int, pageDelay time.Duration, m *metrics.Metrics, tracer tracing.Tracer) *Pipeline {
	return &Pipeline{
		fetcher:   fetcher,
		events:    events,
		artists:   artists,
		venues:    venues,
		statuses:  statuses,
		vf:        vf,
		indexer:   indexer,
		reminders: reminders,
		regions:   regionList,
		rotation:  make(map[string]int),
		maxPages:  maxPages,
		pageDelay: pageDelay,
		metrics:   m,
		tracer:    tracer,
	}
}

// Cycle runs one polling pass over every configured region. A failing
// region is recorded in its health row and does not stop the others.
func (p *Pipeline) Cycle(ctx context.Context) error {
	txn := p.tracer.StartTransaction("ingest.cycle")
	defer p.tracer.EndTransaction(txn)

	for _, region := range p.regions {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		returned, created, err := p.pollRegion(ctx, region)
		p.recordHealth(ctx, region, returned, created, err)

		if err != nil {
			p.tracer.RecordError(txn, err)
			p.metrics.RecordError("ingest")
			log.Error().Err(err).Str("region", region.Code).Msg("Region polling cycle failed")
			continue
		}
		p.metrics.RecordSuccess("ingest")
		p.metrics.IncrementCounterBy("ingest.events_returned", int64(returned))
		p.metrics.IncrementCounterBy("ingest.events_created", int64(created))
	}
	return nil
}

// pollRegion fetches pages in order until a short page or the page cap. A
// page fetch error aborts the region's cycle so no later page is stored
// ahead of an unstored earlier one.
func (p *Pipeline) pollRegion(ctx context.Context, region regions.Region) (returned, created int, err error) {
	cls := p.nextClassification(region)
	notOnsaleBefore := time.Now().UTC()

	for page := 0; page < p.maxPages; page++ {
		if page > 0 {
			select {
			case <-ctx.Done():
				return returned, created, ctx.Err()
			case <-time.After(p.pageDelay):
			}
		}

		rawEvents, fetchErr := p.fetcher.FetchPage(ctx, region, cls, page, notOnsaleBefore)
		if fetchErr != nil {
			return returned, created, fetchErr
		}

		returned += len(rawEvents)
		for i := range rawEvents {
			if p.ingestOne(ctx, region, &rawEvents[i]) {
				created++
			}
		}

		if len(rawEvents) < p.fetcher.PageSize() {
			break
		}
	}

	log.Info().
		Str("region", region.Code).
		Str("classification", cls.Name).
		Int("returned", returned).
		Int("created", created).
		Msg("Region polling cycle complete")
	return returned, created, nil
}

// nextClassification picks the region's filter for this cycle, advancing
// the rotation cursor for rotating regions.
func (p *Pipeline) nextClassification(region regions.Region) regions.Classification {
	if len(region.Rotation) == 0 {
		return region.Classification
	}
	idx := p.rotation[region.Code] % len(region.Rotation)
	p.rotation[region.Code]++
	return region.Rotation[idx]
}

// ingestOne stores one upstream event if it is new and complete. Returns
// true only when a new row was created.
func (p *Pipeline) ingestOne(ctx context.Context, region regions.Region, raw *upstream.RawEvent) bool {
	if raw.ID == "" {
		return false
	}

	exists, err := p.events.Exists(ctx, raw.ID)
	if err != nil {
		log.Error().Err(err).Str("event_id", raw.ID).Msg("Failed to check event existence")
		return false
	}
	if exists {
		return false
	}

	// The detail record carries the presale schedule the list form omits;
	// when it cannot be fetched the list record is stored as-is.
	record := raw
	if detail, detailErr := p.fetcher.FetchDetail(ctx, raw.ID); detailErr != nil {
		log.Debug().Err(detailErr).Str("event_id", raw.ID).Msg("Detail fetch failed, using list record")
	} else {
		record = detail
	}

	event, venue, artist, ok := p.extract(region, record)
	if !ok {
		return false
	}

	if err := p.venues.Ensure(ctx, venue); err != nil {
		log.Error().Err(err).Str("venue_id", venue.ID).Msg("Failed to store venue")
		return false
	}
	if artist != nil {
		if err := p.artists.Ensure(ctx, artist); err != nil {
			log.Error().Err(err).Str("artist_id", artist.ID).Msg("Failed to store artist")
			return false
		}
	}
	if err := p.events.Create(ctx, event); err != nil {
		log.Error().Err(err).Str("event_id", event.ID).Msg("Failed to store event")
		return false
	}

	log.Info().
		Str("event_id", event.ID).
		Str("name", event.Name).
		Str("region", region.Code).
		Msg("Stored new event")

	p.seedAutoReminder(ctx, event, artist)

	if p.vf != nil {
		artistName := ""
		if artist != nil {
			artistName = artist.Name
		}
		p.vf.ScheduleCheck(event.ID, event.URL, artistName)
	}

	if p.indexer != nil {
		if err := p.indexer.IndexEvent(ctx, event, venue, artist); err != nil {
			log.Warn().Err(err).Str("event_id", event.ID).Msg("Failed to index event")
		}
	}

	return true
}

// extract converts an upstream record into storage models. Events without
// a venue are rejected outright.
func (p *Pipeline) extract(region regions.Region, raw *upstream.RawEvent) (*models.Event, *models.Venue, *models.Artist, bool) {
	if len(raw.Embedded.Venues) == 0 || raw.Embedded.Venues[0].ID == "" {
		log.Warn().Str("event_id", raw.ID).Str("name", raw.Name).Msg("Rejecting event without venue")
		return nil, nil, nil, false
	}

	rawVenue := raw.Embedded.Venues[0]
	state := rawVenue.State.StateCode
	if state == "" {
		state = rawVenue.Country.CountryCode
	}
	venue := &models.Venue{
		ID:    rawVenue.ID,
		Name:  rawVenue.Name,
		City:  rawVenue.City.Name,
		State: state,
	}

	var artist *models.Artist
	var artistID *string
	if len(raw.Embedded.Attractions) > 0 && raw.Embedded.Attractions[0].ID != "" {
		artist = &models.Artist{
			ID:   raw.Embedded.Attractions[0].ID,
			Name: raw.Embedded.Attractions[0].Name,
		}
		artistID = &artist.ID
	}

	event := &models.Event{
		ID:          raw.ID,
		Name:        raw.Name,
		ArtistID:    artistID,
		VenueID:     venue.ID,
		EventDate:   parseEventTime(raw.Dates.Start.DateTime, raw.Dates.Start.LocalDate),
		OnsaleStart: parseEventTime(raw.Sales.Public.StartDateTime, ""),
		URL:         raw.URL,
		ImageURL:    pickImage(raw.Images),
		Region:      region.Code,
		PresaleData: encodePresales(raw.Sales.Presales),
	}
	return event, venue, artist, true
}

// seedAutoReminder sets the initial reminder for events of artists the
// operators flagged for automatic reminders.
func (p *Pipeline) seedAutoReminder(ctx context.Context, event *models.Event, artist *models.Artist) {
	if p.reminders == nil || artist == nil {
		return
	}

	// Ensure keeps existing rows untouched, so re-read the stored flags
	stored, err := p.artists.GetByID(ctx, artist.ID)
	if err != nil || !stored.AutoRemind {
		return
	}

	wake := p.reminders.WakeTime(event, time.Now().UTC())
	if wake == nil {
		return
	}
	if err := p.reminders.Set(ctx, event.ID, wake); err != nil {
		log.Error().Err(err).Str("event_id", event.ID).Msg("Failed to seed auto reminder")
	}
}

// recordHealth writes the region's status row and appends the activity
// time-series row for this cycle.
func (p *Pipeline) recordHealth(ctx context.Context, region regions.Region, returned, created int, cycleErr error) {
	now := time.Now().UTC()
	status := &models.RegionStatus{
		Region:         region.Code,
		Status:         "ok",
		LastRequest:    &now,
		EventsReturned: returned,
		NewEvents:      created,
	}
	if cycleErr != nil {
		status.Status = "error"
		msg := cycleErr.Error()
		status.LastError = &msg
	}

	if err := p.statuses.Upsert(ctx, status); err != nil {
		log.Error().Err(err).Str("region", region.Code).Msg("Failed to record region status")
	}

	activity := &models.RegionActivity{
		ID:             uuid.New(),
		Region:         region.Code,
		Timestamp:      now,
		HourOfDay:      now.Hour(),
		DayOfWeek:      int(now.Weekday()),
		EventsReturned: returned,
		NewEvents:      created,
	}
	if err := p.statuses.RecordActivity(ctx, activity); err != nil {
		log.Error().Err(err).Str("region", region.Code).Msg("Failed to record region activity")
	}
}

// parseEventTime parses the upstream timestamp, falling back to the bare
// local date. A zero time means the upstream gave neither.
func parseEventTime(dateTime, localDate string) time.Time {
	if dateTime != "" {
		if t, err := time.Parse(time.RFC3339, dateTime); err == nil {
			return t.UTC()
		}
	}
	if localDate != "" {
		if t, err := time.Parse("2006-01-02", localDate); err == nil {
			return t
		}
	}
	return time.Time{}
}

// pickImage prefers the first image at or above the width floor, falling
// back to the first image of any size.
func pickImage(images []upstream.RawImage) *string {
	if len(images) == 0 {
		return nil
	}
	for _, img := range images {
		if img.Width >= minImageWidth && img.URL != "" {
			url := img.URL
			return &url
		}
	}
	if images[0].URL == "" {
		return nil
	}
	url := images[0].URL
	return &url
}

// encodePresales stores the presale schedule as JSON. Windows with
// unparseable start times are dropped.
func encodePresales(raw []upstream.RawPresale) []byte {
	if len(raw) == 0 {
		return nil
	}
	presales := make([]models.Presale, 0, len(raw))
	for _, rp := range raw {
		start, err := time.Parse(time.RFC3339, rp.StartDateTime)
		if err != nil {
			continue
		}
		presale := models.Presale{Name: rp.Name, StartDateTime: start.UTC()}
		if end, err := time.Parse(time.RFC3339, rp.EndDateTime); err == nil {
			presale.EndDateTime = end.UTC()
		}
		presales = append(presales, presale)
	}
	if len(presales) == 0 {
		return nil
	}
	data, err := json.Marshal(presales)
	if err != nil {
		return nil
	}
	return data
}
