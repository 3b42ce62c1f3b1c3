package domain

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprint(t *testing.T) {
	a := FeatureVector{}
	a["trend"] = 0.3
	a["historical_avg"] = 4.6
	a["day_of_week"] = 3

	b := FeatureVector{}
	b["day_of_week"] = 3
	b["historical_avg"] = 4.6
	b["trend"] = 0.3

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	b["trend"] = 0.31
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())

	neg := FeatureVector{"trend": math.Copysign(0, -1)}
	pos := FeatureVector{"trend": 0}
	assert.Equal(t, pos.Fingerprint(), neg.Fingerprint())
}

func TestFeatureVector_CheckFinite(t *testing.T) {
	assert.NoError(t, FeatureVector{"a": 1}.CheckFinite())
	assert.Error(t, FeatureVector{"a": math.NaN()}.CheckFinite())
	assert.Error(t, FeatureVector{"a": math.Inf(1)}.CheckFinite())
}

func TestFeatureVector_ValueScan(t *testing.T) {
	fv := FeatureVector{"historical_avg": 4.6, "trend": -0.5}
	raw, err := fv.Value()
	require.NoError(t, err)

	var got FeatureVector
	require.NoError(t, got.Scan(raw))
	assert.Equal(t, fv, got)

	require.NoError(t, got.Scan(nil))
	assert.Empty(t, got)
	assert.Error(t, got.Scan(42))
}

func TestParseHorizon(t *testing.T) {
	h, ok := ParseHorizon(" Weekly ")
	assert.True(t, ok)
	assert.Equal(t, HorizonWeekly, h)
	assert.Equal(t, 7, h.Days())

	_, ok = ParseHorizon("yearly")
	assert.False(t, ok)
	assert.False(t, Horizon("").Valid())
}

func TestEncodings(t *testing.T) {
	assert.Equal(t, 0.0, EncodeLevel(LevelLow))
	assert.Equal(t, 0.5, EncodeLevel("medium"))
	assert.Equal(t, 1.0, EncodeLevel(" HIGH "))
	assert.Equal(t, NeutralEncoding, EncodeLevel("extreme"))

	assert.Equal(t, 0.0, EncodeInfrastructure(InfrastructurePoor))
	assert.Equal(t, 0.33, EncodeInfrastructure(InfrastructureFair))
	assert.Equal(t, 0.66, EncodeInfrastructure(InfrastructureGood))
	assert.Equal(t, 1.0, EncodeInfrastructure(InfrastructureExcellent))
	assert.Equal(t, NeutralEncoding, EncodeInfrastructure(""))
}

func TestWindowEndingAt(t *testing.T) {
	asOf := time.Date(2024, 3, 6, 10, 30, 0, 0, time.UTC)
	w := WindowEndingAt(asOf, 5)

	assert.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), w.From)
	assert.Equal(t, time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC), w.To)
	assert.True(t, w.Contains(time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC)))
	assert.True(t, w.Contains(w.From))
	assert.False(t, w.Contains(w.To))
}

func TestPeriod(t *testing.T) {
	p := Period{Horizon: HorizonMonthly, Start: time.Date(2024, 2, 1, 15, 0, 0, 0, time.FixedZone("WIB", 7*3600))}.Normalize()

	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), p.Start)
	assert.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), p.End())
}

func TestPredictionResult_HasFlag(t *testing.T) {
	r := &PredictionResult{DataFlags: []string{FlagProfileUnavailable}}
	assert.True(t, r.HasFlag(FlagProfileUnavailable))
	assert.False(t, r.HasFlag(FlagHistoryUnavailable))
}
