package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Event represents a discovered event, keyed by the upstream-assigned ID.
// Rows are created once at ingestion; the only mutable fields afterwards are
// Delivered (router), Reminder (scheduler) and the VF detection columns.
type Event struct {
	ID          string    `gorm:"primaryKey;column:event_id" json:"id"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
	Name        string    `gorm:"not null" json:"name"`
	ArtistID    *string   `gorm:"column:artist_id;index" json:"artist_id"`
	VenueID     string    `gorm:"column:venue_id;not null" json:"venue_id"`
	EventDate   time.Time `json:"event_date"`
	OnsaleStart time.Time `gorm:"index" json:"onsale_start"`
	URL         string    `json:"url"`
	ImageURL    *string   `json:"image_url"`
	Region      string    `gorm:"not null;index" json:"region"`
	Delivered   bool      `gorm:"not null;default:false;index" json:"delivered"`
	Reminder    *time.Time `gorm:"index" json:"reminder"`

	// Presale sub-windows as returned by the detail endpoint, stored raw.
	PresaleData []byte `gorm:"type:jsonb" json:"presale_data"`

	// Verified Fan detection state
	HasVF       bool       `gorm:"column:has_vf;not null;default:false" json:"has_vf"`
	VFURL       *string    `gorm:"column:vf_url" json:"vf_url"`
	VFCheckedAt *time.Time `gorm:"column:vf_checked_at" json:"vf_checked_at"`

	Artist *Artist `gorm:"foreignKey:ArtistID" json:"-"`
	Venue  Venue   `gorm:"foreignKey:VenueID" json:"-"`
}

// Presale is one presale sub-window attached to an event
type Presale struct {
	Name          string    `json:"name"`
	StartDateTime time.Time `json:"startDateTime"`
	EndDateTime   time.Time `json:"endDateTime,omitempty"`
}

// Presales decodes the stored presale schedule. An empty or missing
// payload yields a nil slice, not an error.
func (e *Event) Presales() ([]Presale, error) {
	if len(e.PresaleData) == 0 {
		return nil, nil
	}
	var presales []Presale
	if err := json.Unmarshal(e.PresaleData, &presales); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal presale data")
	}
	return presales, nil
}

// EarliestPresale returns the presale window with the earliest start, or nil.
func (e *Event) EarliestPresale() *Presale {
	presales, err := e.Presales()
	if err != nil || len(presales) == 0 {
		return nil
	}
	earliest := presales[0]
	for _, p := range presales[1:] {
		if p.StartDateTime.Before(earliest.StartDateTime) {
			earliest = p
		}
	}
	return &earliest
}

// Artist represents a performer, keyed by the upstream attraction ID
type Artist struct {
	ID         string    `gorm:"primaryKey;column:artist_id" json:"id"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
	Name       string    `gorm:"not null" json:"name"`
	Notable    bool      `gorm:"not null;default:false;index" json:"notable"`
	AutoRemind bool      `gorm:"not null;default:false" json:"auto_remind"`
	Events     []Event   `gorm:"foreignKey:ArtistID" json:"-"`
}

// Venue represents an event venue, keyed by the upstream venue ID.
// Created once at first reference and never mutated afterwards.
type Venue struct {
	ID        string    `gorm:"primaryKey;column:venue_id" json:"id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	Name      string    `gorm:"not null" json:"name"`
	City      string    `json:"city"`
	State     string    `json:"state"`
	Events    []Event   `gorm:"foreignKey:VenueID" json:"-"`
}

// RegionStatus holds the last fetch outcome per region
type RegionStatus struct {
	Region         string     `gorm:"primaryKey;column:region" json:"region"`
	Status         string     `gorm:"not null" json:"status"`
	LastRequest    *time.Time `json:"last_request"`
	EventsReturned int        `gorm:"not null;default:0" json:"events_returned"`
	NewEvents      int        `gorm:"not null;default:0" json:"new_events"`
	LastError      *string    `json:"last_error"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// RegionActivity is an append-only time-series row, one per region per
// polling cycle, bucketed by hour-of-day and day-of-week for reporting.
type RegionActivity struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Region         string    `gorm:"not null;index" json:"region"`
	Timestamp      time.Time `gorm:"not null;index" json:"timestamp"`
	HourOfDay      int       `gorm:"not null" json:"hour_of_day"`
	DayOfWeek      int       `gorm:"not null" json:"day_of_week"`
	EventsReturned int       `gorm:"not null;default:0" json:"events_returned"`
	NewEvents      int       `gorm:"not null;default:0" json:"new_events"`
}

// SetupModels configures GORM models and runs migrations
func SetupModels(db *gorm.DB) error {
	err := db.AutoMigrate(
		&Venue{},
		&Artist{},
		&Event{},
		&RegionStatus{},
		&RegionActivity{},
	)
	if err != nil {
		return errors.Wrap(err, "failed to run auto migrations")
	}
	return nil
}
