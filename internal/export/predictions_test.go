package export

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/andresuchdata/sto-forecast/backend-go/internal/domain"
)

func TestFormatIDFloat(t *testing.T) {
	tests := []struct {
		v        float64
		decimals int
		want     string
	}{
		{1234.5, 2, "1.234,50"},
		{1000, 2, "1.000"},
		{5.88, 2, "5,88"},
		{0.05, 2, "0,05"},
		{1234567.891, 1, "1.234.567,9"},
		{-2500.25, 2, "-2.500,25"},
		{999.999, 2, "1.000"},
		{42, 0, "42"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatIDFloat(tt.v, tt.decimals), "%v/%d", tt.v, tt.decimals)
	}
}

func sampleResults() []*domain.PredictionResult {
	return []*domain.PredictionResult{
		{
			ID:              "p-1",
			EntityID:        "A1",
			Horizon:         domain.HorizonDaily,
			PredictionDate:  time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC),
			PredictedSales:  4.9,
			PredictedSupply: 5.88,
			Confidence:      0.7776,
			RiskLevel:       domain.RiskLow,
			ModelVersion:    "linear-trend@1.0.0",
			DataFlags:       []string{domain.FlagContextUnavailable, domain.FlagProfileUnavailable},
			GeneratedAt:     time.Date(2024, 3, 6, 10, 30, 0, 0, time.UTC),
		},
	}
}

func TestWritePredictionsCSV_Indonesian(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePredictionsCSV(&buf, sampleResults(), DefaultOptions))

	r := csv.NewReader(&buf)
	r.Comma = ';'
	rows, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, predictionHeader, rows[0])
	assert.Equal(t, "4,90", rows[1][4])
	assert.Equal(t, "5,88", rows[1][5])
	assert.Equal(t, "0,78", rows[1][6])
	assert.Equal(t, "context_unavailable|profile_unavailable", rows[1][10])
	assert.Equal(t, "2024-03-06T10:30:00Z", rows[1][11])
}

func TestWritePredictionsCSV_Plain(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePredictionsCSV(&buf, sampleResults(), Options{Decimals: 3}))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "4.900", rows[1][4])
	assert.Equal(t, "0.778", rows[1][6])
}

func TestWritePredictionsXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePredictionsXLSX(&buf, sampleResults(), DefaultOptions))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Predictions")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "sto_id", rows[0][1])
	assert.Equal(t, "A1", rows[1][1])
	assert.Equal(t, "5.88", rows[1][5])
}
