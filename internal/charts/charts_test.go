package charts

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/patient-dashboard/internal/models"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func TestConditionsRendersPNG(t *testing.T) {
	var buf bytes.Buffer
	err := Conditions(&buf, []models.ConditionCount{
		{Condition: "Flu", Patients: 4},
		{Condition: "Asthma", Patients: 2},
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(buf.Bytes(), pngMagic))
}

func TestRatingsSkipsMissingAverages(t *testing.T) {
	var buf bytes.Buffer
	err := Ratings(&buf, []models.ProviderRating{{Provider: "Humana", AvgRating: math.NaN()}})
	assert.True(t, errors.Is(err, ErrNoData))
	assert.Zero(t, buf.Len())

	err = Ratings(&buf, []models.ProviderRating{
		{Provider: "Aetna", AvgRating: 4.5},
		{Provider: "Humana", AvgRating: math.NaN()},
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(buf.Bytes(), pngMagic))
}

func TestLengthOfStayEmpty(t *testing.T) {
	var buf bytes.Buffer
	assert.True(t, errors.Is(LengthOfStay(&buf, models.Histogram{}), ErrNoData))
	assert.True(t, errors.Is(Conditions(&buf, nil), ErrNoData))
}

func TestLengthOfStayRendersPNG(t *testing.T) {
	var buf bytes.Buffer
	hist := models.Histogram{
		Samples: 3,
		Bins: []models.Bin{
			{Lower: 1, Upper: 2, Count: 2},
			{Lower: 2, Upper: 3, Count: 0},
			{Lower: 3, Upper: 4, Count: 1},
		},
	}
	require.NoError(t, LengthOfStay(&buf, hist))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), pngMagic))
}
