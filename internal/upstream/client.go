package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"example.com/showtime/services/notifier/config"
	"example.com/showtime/services/notifier/internal/regions"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// RawImage is one image variant attached to an upstream event
type RawImage struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// RawVenue is the venue sub-entity of an upstream event
type RawVenue struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	City struct {
		Name string `json:"name"`
	} `json:"city"`
	State struct {
		Name      string `json:"name"`
		StateCode string `json:"stateCode"`
	} `json:"state"`
	Country struct {
		Name        string `json:"name"`
		CountryCode string `json:"countryCode"`
	} `json:"country"`
}

// RawAttraction is the artist sub-entity of an upstream event
type RawAttraction struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RawPresale is one presale window from the detail endpoint
type RawPresale struct {
	Name          string `json:"name"`
	StartDateTime string `json:"startDateTime"`
	EndDateTime   string `json:"endDateTime"`
}

// RawEvent mirrors the Discovery API event record. The list form and the
// detail form share this shape; presales are usually only present on the
// detail form.
type RawEvent struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	URL    string `json:"url"`
	Dates  struct {
		Start struct {
			LocalDate string `json:"localDate"`
			DateTime  string `json:"dateTime"`
		} `json:"start"`
	} `json:"dates"`
	Sales struct {
		Public struct {
			StartDateTime string `json:"startDateTime"`
		} `json:"public"`
		Presales []RawPresale `json:"presales"`
	} `json:"sales"`
	Images   []RawImage `json:"images"`
	Embedded struct {
		Venues      []RawVenue      `json:"venues"`
		Attractions []RawAttraction `json:"attractions"`
	} `json:"_embedded"`
}

type searchResponse struct {
	Embedded struct {
		Events []RawEvent `json:"events"`
	} `json:"_embedded"`
	Page struct {
		TotalElements int `json:"totalElements"`
	} `json:"page"`
}

// Client fetches events from the Discovery API
type Client struct {
	baseURL    string
	apiKey     string
	pageSize   int
	httpClient *http.Client
}

// NewClient creates a new upstream client
func NewClient(cfg config.UpstreamConfig) *Client {
	return &Client{
		baseURL:  cfg.BaseURL,
		apiKey:   cfg.APIKey,
		pageSize: cfg.PageSize,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// PageSize returns the configured page size, used by callers to detect a
// short (final) page.
func (c *Client) PageSize() int {
	return c.pageSize
}

// FetchPage fetches one page of events for a region using the given
// classification filter. Results are sorted by onsale start so pagination
// within one cycle is stable.
func (c *Client) FetchPage(ctx context.Context, region regions.Region, cls regions.Classification, page int, notOnsaleBefore time.Time) ([]RawEvent, error) {
	params := url.Values{}
	params.Set("apikey", c.apiKey)
	params.Set("source", "ticketmaster")
	params.Set("locale", "*")
	params.Set("size", strconv.Itoa(c.pageSize))
	params.Set("page", strconv.Itoa(page))
	params.Set("onsaleStartDateTime", notOnsaleBefore.UTC().Format("2006-01-02T15:04:05Z"))
	params.Set("onsaleOnAfterStartDate", notOnsaleBefore.UTC().Format("2006-01-02"))
	params.Set("sort", "onSaleStartDate,asc")
	params.Set("latlong", region.CenterPoint)
	params.Set("radius", strconv.Itoa(region.Radius))
	params.Set("unit", region.Unit)
	params.Set("classificationId", cls.ClassificationID)
	if cls.GenreID != "" {
		params.Set("genreId", cls.GenreID)
	}
	if cls.SubGenreID != "" {
		params.Set("subGenreId", cls.SubGenreID)
	}
	if cls.TypeID != "" {
		params.Set("typeId", cls.TypeID)
	}
	if cls.SubTypeID != "" {
		params.Set("subTypeId", cls.SubTypeID)
	}

	endpoint := fmt.Sprintf("%s/events?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build search request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "search request failed for region %s page %d", region.Code, page)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("search request for region %s page %d returned status %d", region.Code, page, resp.StatusCode)
	}

	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.Wrap(err, "failed to decode search response")
	}

	log.Debug().
		Str("region", region.Code).
		Str("classification", cls.Name).
		Int("page", page).
		Int("events", len(body.Embedded.Events)).
		Int("total", body.Page.TotalElements).
		Msg("Fetched events page")

	return body.Embedded.Events, nil
}

// FetchDetail fetches the full record for a single event, which carries the
// presale schedule absent from the list form. Any transport or non-2xx
// failure is returned to the caller, which falls back to the list record.
func (c *Client) FetchDetail(ctx context.Context, eventID string) (*RawEvent, error) {
	endpoint := fmt.Sprintf("%s/events/%s?apikey=%s", c.baseURL, url.PathEscape(eventID), url.QueryEscape(c.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build detail request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "detail request failed for event %s", eventID)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("detail request for event %s returned status %d", eventID, resp.StatusCode)
	}

	var event RawEvent
	if err := json.NewDecoder(resp.Body).Decode(&event); err != nil {
		return nil, errors.Wrap(err, "failed to decode detail response")
	}

	return &event, nil
}
