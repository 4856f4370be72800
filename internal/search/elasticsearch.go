package search

import (
	"bytes"
	"context"
	"encoding/json"
	"io"

	"example.com/showtime/services/notifier/config"
	"example.com/showtime/services/notifier/internal/models"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ElasticClient provides integration with Elasticsearch
type ElasticClient struct {
	client *elasticsearch.Client
	config config.ElasticConfig
}

// NewElasticClient creates a new Elasticsearch client. Returns nil without
// error when search is disabled; callers treat a nil client as "skip".
func NewElasticClient(cfg config.ElasticConfig) (*ElasticClient, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	esConfig := elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	}

	client, err := elasticsearch.NewClient(esConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Elasticsearch client")
	}

	return &ElasticClient{
		client: client,
		config: cfg,
	}, nil
}

// IndexEvent indexes a newly ingested event for operator search
func (c *ElasticClient) IndexEvent(ctx context.Context, event *models.Event, venue *models.Venue, artist *models.Artist) error {
	if c == nil {
		return nil
	}

	doc := map[string]interface{}{
		"id":           event.ID,
		"name":         event.Name,
		"region":       event.Region,
		"event_date":   event.EventDate,
		"onsale_start": event.OnsaleStart,
		"url":          event.URL,
	}
	if venue != nil {
		doc["venue_name"] = venue.Name
		doc["venue_city"] = venue.City
		doc["venue_state"] = venue.State
	}
	if artist != nil {
		doc["artist_name"] = artist.Name
		doc["artist_notable"] = artist.Notable
	}

	docJSON, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "failed to marshal event document")
	}

	req := esapi.IndexRequest{
		Index:      config.FormatIndex(c.config, c.config.Index),
		DocumentID: event.ID,
		Body:       bytes.NewReader(docJSON),
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return errors.Wrap(err, "failed to index event")
	}
	defer res.Body.Close()

	if res.IsError() {
		return errors.Errorf("indexing event %s returned status %s", event.ID, res.Status())
	}

	log.Debug().Str("event_id", event.ID).Msg("Indexed event")
	return nil
}

// SearchEvents runs a free-text query over indexed events
func (c *ElasticClient) SearchEvents(ctx context.Context, query string, limit int) ([]map[string]interface{}, error) {
	if c == nil {
		return nil, errors.New("search is not configured")
	}

	body := map[string]interface{}{
		"size": limit,
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  query,
				"fields": []string{"name^2", "artist_name^2", "venue_name", "venue_city"},
			},
		},
	}

	bodyJSON, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal search query")
	}

	res, err := c.client.Search(
		c.client.Search.WithContext(ctx),
		c.client.Search.WithIndex(config.FormatIndex(c.config, c.config.Index)),
		c.client.Search.WithBody(bytes.NewReader(bodyJSON)),
	)
	if err != nil {
		return nil, errors.Wrap(err, "search request failed")
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, errors.Errorf("search returned status %s", res.Status())
	}

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read search response")
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source map[string]interface{} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, errors.Wrap(err, "failed to decode search response")
	}

	results := make([]map[string]interface{}, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		results = append(results, hit.Source)
	}
	return results, nil
}
