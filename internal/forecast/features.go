package forecast

import (
	"fmt"
	"math"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/andresuchdata/sto-forecast/backend-go/internal/domain"
)

// Default values used when optional inputs are missing.
const (
	DefaultEconomicIndex     = 1.0
	DefaultSeasonalityFactor = 1.0
)

// FeatureExtractor turns raw per-entity records into a FeatureVector.
// It holds no state and is safe for concurrent use.
type FeatureExtractor struct{}

// NewFeatureExtractor creates a new feature extractor
func NewFeatureExtractor() *FeatureExtractor {
	return &FeatureExtractor{}
}

// Extract builds the feature vector for one entity. Missing context or profile
// degrade to defaults; only a blank entity id or a malformed observation fails.
func (fe *FeatureExtractor) Extract(
	entityID string,
	history []domain.SalesObservation,
	snapshot *domain.ContextSnapshot,
	profile *domain.EntityProfile,
	asOf time.Time,
) (domain.FeatureVector, error) {
	if strings.TrimSpace(entityID) == "" {
		return nil, fmt.Errorf("%w: entity id is required", domain.ErrInvalidInput)
	}

	for i, obs := range history {
		if obs.Quantity < 0 || math.IsNaN(obs.Quantity) || math.IsInf(obs.Quantity, 0) {
			return nil, fmt.Errorf("%w: observation %d of %s has invalid quantity %v",
				domain.ErrInvalidInput, i, entityID, obs.Quantity)
		}
	}

	features := make(domain.FeatureVector, 32)

	// 1. Historical sales
	if len(history) > 0 {
		addHistoricalFeatures(features, history)
	}

	// 2. Architecture / capacity context
	if snapshot != nil {
		features[domain.FeatureCapacity] = snapshot.Capacity
		features[domain.FeatureUtilizationRate] = snapshot.UtilizationRate
		features[domain.FeaturePortCount] = snapshot.PortCount
	} else {
		features[domain.FeatureCapacity] = 0
		features[domain.FeatureUtilizationRate] = 0
		features[domain.FeaturePortCount] = 0
	}

	// 3. Profile metadata
	if profile != nil {
		features[domain.FeaturePopulationCoverage] = profile.PopulationCoverage
		features[domain.FeatureEconomicIndex] = profile.EconomicIndex
		features[domain.FeatureBusinessDensity] = domain.EncodeLevel(profile.BusinessDensity)
		features[domain.FeatureCompetitionLevel] = domain.EncodeLevel(profile.CompetitionLevel)
		features[domain.FeatureInfrastructure] = domain.EncodeInfrastructure(profile.InfrastructureQuality)
	} else {
		features[domain.FeaturePopulationCoverage] = 0
		features[domain.FeatureEconomicIndex] = DefaultEconomicIndex
		features[domain.FeatureBusinessDensity] = domain.NeutralEncoding
		features[domain.FeatureCompetitionLevel] = domain.NeutralEncoding
		features[domain.FeatureInfrastructure] = domain.NeutralEncoding
	}

	// 4. Calendar
	asOf = asOf.UTC()
	features[domain.FeatureDayOfWeek] = float64(asOf.Weekday())
	features[domain.FeatureMonth] = float64(asOf.Month())
	features[domain.FeatureQuarter] = float64((int(asOf.Month())-1)/3 + 1)

	if err := features.CheckFinite(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrComputeFailure, entityID, err)
	}

	return features, nil
}

func addHistoricalFeatures(features domain.FeatureVector, history []domain.SalesObservation) {
	values := make([]float64, len(history))
	for i, obs := range history {
		values[i] = obs.Quantity
	}

	avg, std := stat.PopMeanStdDev(values, nil)
	if len(values) < 2 || math.IsNaN(std) {
		std = 0
	}
	features[domain.FeatureHistoricalAvg] = avg
	features[domain.FeatureHistoricalStd] = std
	features[domain.FeatureTrend] = trendSlope(values)
	features[domain.FeatureHistoryLength] = float64(len(values))

	first, last := history[0].Date, history[len(history)-1].Date
	span := domain.TruncateDay(last).Sub(domain.TruncateDay(first)).Hours()/24 + 1
	features[domain.FeatureHistorySpanDays] = math.Max(1, span)

	for day, factor := range weekdayFactors(history, avg) {
		features[domain.SeasonalityFeature(time.Weekday(day))] = factor
	}
}

// trendSlope is the OLS slope of values against their index; 0 below two points.
func trendSlope(values []float64) float64 {
	if len(values) < 2 {
		return 0.0
	}
	index := make([]float64, len(values))
	for i := range index {
		index[i] = float64(i)
	}
	_, beta := stat.LinearRegression(index, values, nil, false)
	if math.IsNaN(beta) || math.IsInf(beta, 0) {
		return 0.0
	}
	return beta
}

// weekdayFactors returns mean(quantity on weekday) / overall mean for each
// weekday, indexed by time.Weekday. Weekdays without observations get 1.0.
func weekdayFactors(history []domain.SalesObservation, overall float64) [7]float64 {
	var (
		sums    [7]float64
		counts  [7]int
		factors [7]float64
	)
	for _, obs := range history {
		d := obs.Date.UTC().Weekday()
		sums[d] += obs.Quantity
		counts[d]++
	}

	for d := range factors {
		if counts[d] == 0 || overall == 0 {
			factors[d] = DefaultSeasonalityFactor
			continue
		}
		factors[d] = (sums[d] / float64(counts[d])) / overall
	}
	return factors
}
