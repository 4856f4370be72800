package repositories

import (
	"context"
	"time"

	"example.com/showtime/services/notifier/internal/models"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EventRepository provides access to event data
type EventRepository struct {
	db         *gorm.DB // Write database
	readOnlyDB *gorm.DB // Read-only database
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *gorm.DB, readOnlyDB *gorm.DB) *EventRepository {
	return &EventRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// Exists reports whether an event with the upstream ID is already stored
func (r *EventRepository) Exists(ctx context.Context, eventID string) (bool, error) {
	var count int64
	err := r.readOnlyDB.WithContext(ctx).
		Model(&models.Event{}).
		Where("event_id = ?", eventID).
		Count(&count).Error
	if err != nil {
		return false, errors.Wrap(err, "failed to check event existence")
	}
	return count > 0, nil
}

// Create inserts a new event row
func (r *EventRepository) Create(ctx context.Context, event *models.Event) error {
	return r.db.WithContext(ctx).Create(event).Error
}

// GetByID gets an event by its upstream ID
func (r *EventRepository) GetByID(ctx context.Context, eventID string) (*models.Event, error) {
	var event models.Event
	err := r.readOnlyDB.WithContext(ctx).
		Preload("Venue").
		Preload("Artist").
		Where("event_id = ?", eventID).
		First(&event).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get event by ID")
	}
	return &event, nil
}

// GetByURL gets an event by its public URL. Delivered messages embed the
// event URL, so reaction handlers resolve events through it.
func (r *EventRepository) GetByURL(ctx context.Context, url string) (*models.Event, error) {
	var event models.Event
	err := r.readOnlyDB.WithContext(ctx).
		Preload("Artist").
		Where("url = ?", url).
		First(&event).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get event by URL")
	}
	return &event, nil
}

// ListUndelivered selects undelivered events for one routing cell, joined
// with venue and artist. Events without an artist row count as not notable;
// the null check runs on the joined artists side so a dangling artist_id
// lands in the ordinary cell instead of matching neither.
func (r *EventRepository) ListUndelivered(ctx context.Context, notable bool, international bool, intlCodes []string, limit int) ([]models.Event, error) {
	q := r.readOnlyDB.WithContext(ctx).
		Preload("Venue").
		Preload("Artist").
		Joins("LEFT JOIN artists ON artists.artist_id = events.artist_id").
		Where("events.delivered = ?", false)

	if notable {
		q = q.Where("artists.notable = ?", true)
	} else {
		q = q.Where("artists.notable = ? OR artists.artist_id IS NULL", false)
	}

	if len(intlCodes) > 0 {
		if international {
			q = q.Where("events.region IN ?", intlCodes)
		} else {
			q = q.Where("events.region NOT IN ?", intlCodes)
		}
	} else if international {
		// No international regions configured, nothing can match
		return nil, nil
	}

	var events []models.Event
	err := q.Order("events.onsale_start").Limit(limit).Find(&events).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list undelivered events")
	}
	return events, nil
}

// MarkDelivered flips the delivered flag. The flag only ever moves
// false->true here; the retroactive reset lives in ResetDeliveredForArtist.
func (r *EventRepository) MarkDelivered(ctx context.Context, eventID string) error {
	result := r.db.WithContext(ctx).
		Model(&models.Event{}).
		Where("event_id = ?", eventID).
		Update("delivered", true)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to mark event delivered")
	}
	if result.RowsAffected == 0 {
		return errors.New("no event updated")
	}
	return nil
}

// ResetDeliveredForArtist clears the delivered flag on all of an artist's
// already-delivered events so the router reclassifies them on its next tick.
func (r *EventRepository) ResetDeliveredForArtist(ctx context.Context, artistID string) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Event{}).
		Where("artist_id = ? AND delivered = ?", artistID, true).
		Update("delivered", false)
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "failed to reset delivered flags")
	}
	return result.RowsAffected, nil
}

// SetReminder sets or clears the reminder wake time
func (r *EventRepository) SetReminder(ctx context.Context, eventID string, reminder *time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&models.Event{}).
		Where("event_id = ?", eventID).
		Update("reminder", reminder)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to set reminder")
	}
	return nil
}

// ListDueReminders selects events whose reminder time is at or before the
// given cutoff, joined with venue and artist for message rendering.
func (r *EventRepository) ListDueReminders(ctx context.Context, cutoff time.Time) ([]models.Event, error) {
	var events []models.Event
	err := r.readOnlyDB.WithContext(ctx).
		Preload("Venue").
		Preload("Artist").
		Where("reminder IS NOT NULL AND reminder <= ?", cutoff).
		Find(&events).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list due reminders")
	}
	return events, nil
}

// ListVFRecheckable selects undetected events whose sale opens within the
// lookahead window and whose last check is older than the cooldown.
func (r *EventRepository) ListVFRecheckable(ctx context.Context, now time.Time, window, cooldown time.Duration, limit int) ([]models.Event, error) {
	var events []models.Event
	err := r.readOnlyDB.WithContext(ctx).
		Preload("Artist").
		Where("has_vf = ?", false).
		Where("onsale_start > ? AND onsale_start < ?", now, now.Add(window)).
		Where("vf_checked_at IS NULL OR vf_checked_at < ?", now.Add(-cooldown)).
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list events for VF recheck")
	}
	return events, nil
}

// SaveVFResult persists the outcome of one detection attempt
func (r *EventRepository) SaveVFResult(ctx context.Context, eventID string, found bool, vfURL *string, checkedAt time.Time) error {
	updates := map[string]interface{}{
		"has_vf":        found,
		"vf_checked_at": checkedAt,
	}
	if found {
		updates["vf_url"] = vfURL
	}
	err := r.db.WithContext(ctx).
		Model(&models.Event{}).
		Where("event_id = ?", eventID).
		Updates(updates).Error
	if err != nil {
		return errors.Wrap(err, "failed to save VF result")
	}
	return nil
}

// ListUpcoming lists events with a future sale start, soonest first
func (r *EventRepository) ListUpcoming(ctx context.Context, now time.Time, limit int) ([]models.Event, error) {
	var events []models.Event
	err := r.readOnlyDB.WithContext(ctx).
		Preload("Venue").
		Preload("Artist").
		Where("onsale_start > ?", now).
		Order("onsale_start").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list upcoming events")
	}
	return events, nil
}

// ArtistRepository provides access to artist data
type ArtistRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewArtistRepository creates a new artist repository
func NewArtistRepository(db *gorm.DB, readOnlyDB *gorm.DB) *ArtistRepository {
	return &ArtistRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// Ensure inserts an artist if absent. Existing rows keep their notability.
func (r *ArtistRepository) Ensure(ctx context.Context, artist *models.Artist) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(artist).Error
	if err != nil {
		return errors.Wrap(err, "failed to ensure artist")
	}
	return nil
}

// GetByID gets an artist by its upstream ID
func (r *ArtistRepository) GetByID(ctx context.Context, artistID string) (*models.Artist, error) {
	var artist models.Artist
	err := r.readOnlyDB.WithContext(ctx).
		Where("artist_id = ?", artistID).
		First(&artist).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get artist by ID")
	}
	return &artist, nil
}

// UpdateNotable flips the operator-curated notable flag
func (r *ArtistRepository) UpdateNotable(ctx context.Context, artistID string, notable bool) error {
	result := r.db.WithContext(ctx).
		Model(&models.Artist{}).
		Where("artist_id = ?", artistID).
		Update("notable", notable)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to update artist notability")
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// VenueRepository provides access to venue data
type VenueRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewVenueRepository creates a new venue repository
func NewVenueRepository(db *gorm.DB, readOnlyDB *gorm.DB) *VenueRepository {
	return &VenueRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// Ensure inserts a venue if absent. Venues are never mutated afterwards.
func (r *VenueRepository) Ensure(ctx context.Context, venue *models.Venue) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(venue).Error
	if err != nil {
		return errors.Wrap(err, "failed to ensure venue")
	}
	return nil
}

// StatusRepository provides access to region health and activity data
type StatusRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewStatusRepository creates a new status repository
func NewStatusRepository(db *gorm.DB, readOnlyDB *gorm.DB) *StatusRepository {
	return &StatusRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// Upsert records the outcome of one polling cycle for a region
func (r *StatusRepository) Upsert(ctx context.Context, status *models.RegionStatus) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "region"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "last_request", "events_returned", "new_events", "last_error", "updated_at"}),
		}).
		Create(status).Error
	if err != nil {
		return errors.Wrap(err, "failed to upsert region status")
	}
	return nil
}

// RecordActivity appends one time-series row for a polling cycle
func (r *StatusRepository) RecordActivity(ctx context.Context, activity *models.RegionActivity) error {
	err := r.db.WithContext(ctx).Create(activity).Error
	if err != nil {
		return errors.Wrap(err, "failed to record region activity")
	}
	return nil
}

// List returns the latest status row per region
func (r *StatusRepository) List(ctx context.Context) ([]models.RegionStatus, error) {
	var statuses []models.RegionStatus
	err := r.readOnlyDB.WithContext(ctx).Order("region").Find(&statuses).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list region statuses")
	}
	return statuses, nil
}

// GetByRegion returns the status row for one region
func (r *StatusRepository) GetByRegion(ctx context.Context, region string) (*models.RegionStatus, error) {
	var status models.RegionStatus
	err := r.readOnlyDB.WithContext(ctx).
		Where("region = ?", region).
		First(&status).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get region status")
	}
	return &status, nil
}
