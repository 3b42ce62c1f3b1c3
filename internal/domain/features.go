package domain

import (
	"crypto/sha1"
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Feature names produced by the feature extractor.
const (
	FeatureHistoricalAvg      = "historical_avg"
	FeatureHistoricalStd      = "historical_std"
	FeatureTrend              = "trend"
	FeatureHistoryLength      = "history_length"
	FeatureHistorySpanDays    = "history_span_days"
	FeatureCapacity           = "total_capacity"
	FeatureUtilizationRate    = "utilization_rate"
	FeaturePortCount          = "port_count"
	FeaturePopulationCoverage = "population_coverage"
	FeatureEconomicIndex      = "economic_index"
	FeatureBusinessDensity    = "business_density"
	FeatureCompetitionLevel   = "competition_level"
	FeatureInfrastructure     = "infrastructure_quality"
	FeatureDayOfWeek          = "day_of_week"
	FeatureMonth              = "month"
	FeatureQuarter            = "quarter"

	seasonalityPrefix = "seasonality_"
)

// SeasonalityFeature returns the feature name holding the seasonality factor of d.
func SeasonalityFeature(d time.Weekday) string {
	return seasonalityPrefix + strings.ToLower(d.String())
}

// FeatureVector maps feature names to finite numeric values.
type FeatureVector map[string]float64

// Get returns the named feature or def when it is absent.
func (fv FeatureVector) Get(name string, def float64) float64 {
	if v, ok := fv[name]; ok {
		return v
	}
	return def
}

// Has reports whether the named feature is present.
func (fv FeatureVector) Has(name string) bool {
	_, ok := fv[name]
	return ok
}

// Clone returns an independent copy of fv.
func (fv FeatureVector) Clone() FeatureVector {
	if fv == nil {
		return nil
	}
	c := make(FeatureVector, len(fv))
	for k, v := range fv {
		c[k] = v
	}
	return c
}

// CheckFinite returns an error naming the first non-finite feature.
func (fv FeatureVector) CheckFinite() error {
	for _, name := range fv.names() {
		v := fv[name]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("feature %s is not finite (%v)", name, v)
		}
	}
	return nil
}

// Fingerprint hashes the vector independently of map iteration order.
// Equal vectors always produce the same fingerprint.
func (fv FeatureVector) Fingerprint() string {
	names := fv.names()
	parts := make([]string, 0, len(names))
	for _, name := range names {
		v := fv[name]
		if v == 0 {
			v = 0 // folds -0 into 0
		}
		parts = append(parts, name+"="+strconv.FormatFloat(v, 'g', -1, 64))
	}

	sum := sha1.Sum([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

func (fv FeatureVector) names() []string {
	names := make([]string, 0, len(fv))
	for k := range fv {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Value stores the vector as JSON.
func (fv FeatureVector) Value() (driver.Value, error) {
	if fv == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]float64(fv))
}

// Scan reads a JSON document into the vector.
func (fv *FeatureVector) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*fv = FeatureVector{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported feature vector source %T", src)
	}

	m := make(map[string]float64)
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("decode feature vector: %w", err)
	}
	*fv = FeatureVector(m)
	return nil
}
