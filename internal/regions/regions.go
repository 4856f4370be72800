package regions

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Classification identifies one upstream classification/genre filter set.
// IDs are the Discovery API's opaque segment identifiers.
type Classification struct {
	Name             string
	ClassificationID string
	GenreID          string
	SubGenreID       string
	TypeID           string
	SubTypeID        string
}

// Region is one configured geographic/classification search scope.
// The table is immutable at runtime; an event's region tag is set once
// at ingestion and never remapped by the pipeline.
type Region struct {
	Code          string
	Description   string
	CenterPoint   string // "lat,long"
	Radius        int
	Unit          string
	International bool

	// Classification holds the fixed filter for single-filter regions.
	Classification Classification

	// Rotation, when non-empty, supersedes Classification: each polling
	// cycle uses the next entry in order. The rotation index is owned by
	// the ingestion pipeline, not by this package.
	Rotation []Classification
}

// Discovery API segment identifiers
const (
	classificationMusic = "KZFzniwnSyZfZ7v7nJ"
	classificationArts  = "KZFzniwnSyZfZ7v7na"
	classificationFilm  = "KZFzniwnSyZfZ7v7nn"

	genreComedy  = "KnvZfZ7vAe1"
	genreTheatre = "KnvZfZ7v7l1"
	genreFilm    = "KnvZfZ7vAka"
)

var table = map[string]Region{
	"east": {
		Code:           "east",
		Description:    "US East quadrant",
		CenterPoint:    "43.58785,-64.72599",
		Radius:         950,
		Unit:           "miles",
		Classification: Classification{Name: "Music", ClassificationID: classificationMusic},
	},
	"west": {
		Code:           "west",
		Description:    "US West quadrant",
		CenterPoint:    "39.52963,-119.81380",
		Radius:         950,
		Unit:           "miles",
		Classification: Classification{Name: "Music", ClassificationID: classificationMusic},
	},
	"north": {
		Code:           "north",
		Description:    "US North quadrant",
		CenterPoint:    "44.97775,-93.26501",
		Radius:         800,
		Unit:           "miles",
		Classification: Classification{Name: "Music", ClassificationID: classificationMusic},
	},
	"south": {
		Code:           "south",
		Description:    "US South quadrant",
		CenterPoint:    "32.77666,-96.79699",
		Radius:         900,
		Unit:           "miles",
		Classification: Classification{Name: "Music", ClassificationID: classificationMusic},
	},
	"eu": {
		Code:           "eu",
		Description:    "Europe aggregate",
		CenterPoint:    "48.85661,2.35222",
		Radius:         1300,
		Unit:           "miles",
		International:  true,
		Classification: Classification{Name: "Music", ClassificationID: classificationMusic},
	},
	"ctf": {
		Code:        "ctf",
		Description: "Comedy, theatre and film",
		CenterPoint: "39.82835,-98.57950",
		Radius:      1500,
		Unit:        "miles",
		Rotation: []Classification{
			{Name: "Comedy", ClassificationID: classificationArts, GenreID: genreComedy},
			{Name: "Theatre", ClassificationID: classificationArts, GenreID: genreTheatre},
			{
				Name:             "Film",
				ClassificationID: classificationFilm,
				GenreID:          genreFilm,
				SubGenreID:       "KZazBEonSMnZfZ7vFln",
				TypeID:           "KZAyXgnZfZ7v7nI",
				SubTypeID:        "KZFzBErXgnZfZ7v7lJ",
			},
		},
	},
}

// Get returns the region for a code
func Get(code string) (Region, error) {
	region, ok := table[strings.ToLower(code)]
	if !ok {
		return Region{}, errors.Errorf("unknown region code %q", code)
	}
	return region, nil
}

// Load resolves and validates the regions for the given codes
func Load(codes []string) ([]Region, error) {
	if len(codes) == 0 {
		return nil, errors.New("no regions configured")
	}
	result := make([]Region, 0, len(codes))
	for _, code := range codes {
		region, err := Get(code)
		if err != nil {
			return nil, err
		}
		if err := validate(region); err != nil {
			return nil, errors.Wrapf(err, "invalid region %q", region.Code)
		}
		result = append(result, region)
	}
	return result, nil
}

// InternationalCodes returns the region codes that route to the
// international destination cells.
func InternationalCodes() []string {
	codes := make([]string, 0, 1)
	for code, region := range table {
		if region.International {
			codes = append(codes, code)
		}
	}
	return codes
}

// IsInternational reports whether a region code routes to the
// international destination cells. Unknown codes count as domestic.
func IsInternational(code string) bool {
	region, ok := table[strings.ToLower(code)]
	return ok && region.International
}

func validate(r Region) error {
	parts := strings.Split(r.CenterPoint, ",")
	if len(parts) != 2 {
		return errors.New("center point must be \"lat,long\"")
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil || lat < -90 || lat > 90 {
		return errors.New("invalid latitude")
	}
	long, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil || long < -180 || long > 180 {
		return errors.New("invalid longitude")
	}
	if r.Radius <= 0 {
		return errors.New("radius must be positive")
	}
	if len(r.Rotation) == 0 && r.Classification.ClassificationID == "" {
		return errors.New("region has neither a classification nor a rotation")
	}
	return nil
}
