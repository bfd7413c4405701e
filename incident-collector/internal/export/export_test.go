package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/Renarion/hackathon-indrive-25/incident-collector/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestIncidentsXLSX(t *testing.T) {
	occurred := time.Date(2025, time.October, 10, 21, 0, 5, 0, time.UTC)
	incidents := []*models.Incident{
		{
			ID:         "a",
			OccurredAt: occurred,
			Latitude:   43.25,
			Longitude:  76.95,
			PhotoCount: 5,
			AudioBytes: 2048,
			MapsLink:   models.MapsLink(43.25, 76.95),
			CreatedAt:  occurred.Add(time.Second),
		},
		{ID: "b", OccurredAt: occurred.Add(-time.Hour), CreatedAt: occurred},
	}

	data, err := IncidentsXLSX(incidents)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetName}, f.GetSheetList())

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Headers, rows[0])
	assert.Equal(t, "a", rows[1][0])
	assert.Equal(t, "2025-10-10 21:00:05", rows[1][1])
	assert.Equal(t, "5", rows[1][4])
	assert.Equal(t, "2048", rows[1][5])
	assert.Equal(t, "b", rows[2][0])
}

func TestIncidentsXLSX_Empty(t *testing.T) {
	data, err := IncidentsXLSX(nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, Headers, rows[0])
}
