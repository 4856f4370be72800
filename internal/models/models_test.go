package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPresalesEmpty(t *testing.T) {
	event := &Event{}
	presales, err := event.Presales()
	require.NoError(t, err)
	require.Nil(t, presales)
	require.Nil(t, event.EarliestPresale())
}

func TestPresalesDecodes(t *testing.T) {
	stored := []Presale{
		{Name: "Artist Presale", StartDateTime: time.Date(2026, 3, 12, 10, 0, 0, 0, time.UTC)},
		{Name: "VIP Presale", StartDateTime: time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)},
	}
	data, err := json.Marshal(stored)
	require.NoError(t, err)

	event := &Event{PresaleData: data}
	presales, err := event.Presales()
	require.NoError(t, err)
	require.Len(t, presales, 2)

	earliest := event.EarliestPresale()
	require.NotNil(t, earliest)
	require.Equal(t, "VIP Presale", earliest.Name)
}

func TestPresalesMalformed(t *testing.T) {
	event := &Event{PresaleData: []byte("{not json")}
	_, err := event.Presales()
	require.Error(t, err)
	require.Nil(t, event.EarliestPresale())
}
