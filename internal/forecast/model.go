package forecast

import (
	"fmt"
	"math"
	"time"

	"github.com/andresuchdata/sto-forecast/backend-go/internal/config"
	"github.com/andresuchdata/sto-forecast/backend-go/internal/domain"
)

// Model kinds accepted in configuration.
const (
	KindNaiveAverage     = "naive"
	KindLinearTrend      = "linear"
	KindSeasonalAdjusted = "seasonal"
)

const (
	daysPerWeek  = 7
	daysPerMonth = 30
)

// Forecast is the output of a Model.
type Forecast struct {
	Daily      float64 `json:"daily_prediction"`
	Weekly     float64 `json:"weekly_prediction"`
	Monthly    float64 `json:"monthly_prediction"`
	Confidence float64 `json:"confidence_score"`
}

// For returns the prediction matching horizon h.
func (f Forecast) For(h domain.Horizon) float64 {
	switch h {
	case domain.HorizonWeekly:
		return f.Weekly
	case domain.HorizonMonthly:
		return f.Monthly
	default:
		return f.Daily
	}
}

// Model turns a feature vector into a sales forecast.
type Model interface {
	// Name returns the unique identifier for this model
	Name() string

	// Version returns the model name qualified with the configured version
	Version() string

	// Predict evaluates the model. Implementations are pure and deterministic.
	Predict(features domain.FeatureVector) (Forecast, error)
}

// NewModel builds the model selected by cfg.Model.
func NewModel(cfg config.ForecastConfig) (Model, error) {
	switch cfg.Model {
	case KindNaiveAverage:
		return &NaiveAverage{cfg: cfg}, nil
	case KindLinearTrend:
		return &LinearTrend{cfg: cfg}, nil
	case KindSeasonalAdjusted:
		return &SeasonalAdjusted{trend: LinearTrend{cfg: cfg}, cfg: cfg}, nil
	default:
		return nil, fmt.Errorf("%w: unknown forecast model %q", domain.ErrInvalidInput, cfg.Model)
	}
}

// HasHistory reports whether the vector carries historical sales features.
func HasHistory(features domain.FeatureVector) bool {
	return features.Get(domain.FeatureHistoryLength, 0) > 0
}

// NaiveAverage predicts the historical mean with a fixed low confidence.
type NaiveAverage struct {
	cfg config.ForecastConfig
}

// NewNaiveAverage creates the fallback model used when no history exists.
func NewNaiveAverage(cfg config.ForecastConfig) *NaiveAverage {
	return &NaiveAverage{cfg: cfg}
}

func (m *NaiveAverage) Name() string { return "naive-average" }

func (m *NaiveAverage) Version() string { return modelVersion(m.Name(), m.cfg) }

func (m *NaiveAverage) Predict(features domain.FeatureVector) (Forecast, error) {
	daily := features.Get(domain.FeatureHistoricalAvg, m.cfg.DefaultBaseRate)
	return finalize(Forecast{
		Daily:      daily,
		Weekly:     daily * daysPerWeek,
		Monthly:    daily * daysPerMonth,
		Confidence: m.cfg.NaiveConfidence,
	})
}

// LinearTrend extrapolates the historical mean along the OLS trend.
type LinearTrend struct {
	cfg config.ForecastConfig
}

func (m *LinearTrend) Name() string { return "linear-trend" }

func (m *LinearTrend) Version() string { return modelVersion(m.Name(), m.cfg) }

func (m *LinearTrend) Predict(features domain.FeatureVector) (Forecast, error) {
	avg := features.Get(domain.FeatureHistoricalAvg, m.cfg.DefaultBaseRate)
	trend := features.Get(domain.FeatureTrend, 0)

	daily := avg + trend*m.cfg.TrendHorizonDays
	return finalize(Forecast{
		Daily:      daily,
		Weekly:     daily * daysPerWeek,
		Monthly:    daily * daysPerMonth,
		Confidence: m.confidence(features),
	})
}

// confidence shrinks MaxConfidence by the coefficient of variation.
func (m *LinearTrend) confidence(features domain.FeatureVector) float64 {
	avg := features.Get(domain.FeatureHistoricalAvg, 0)
	std := features.Get(domain.FeatureHistoricalStd, 0)
	if avg <= 0 {
		return m.cfg.NaiveConfidence
	}
	cv := std / avg
	return clamp(m.cfg.MaxConfidence/(1+cv), 0, 1)
}

// SeasonalAdjusted scales the linear trend by the weekday seasonality factor.
type SeasonalAdjusted struct {
	trend LinearTrend
	cfg   config.ForecastConfig
}

func (m *SeasonalAdjusted) Name() string { return "seasonal-adjusted" }

func (m *SeasonalAdjusted) Version() string { return modelVersion(m.Name(), m.cfg) }

func (m *SeasonalAdjusted) Predict(features domain.FeatureVector) (Forecast, error) {
	base, err := m.trend.Predict(features)
	if err != nil {
		return Forecast{}, err
	}

	asOfDay := int(features.Get(domain.FeatureDayOfWeek, 0))
	target := time.Weekday((asOfDay + int(math.Round(m.cfg.TrendHorizonDays))) % 7)

	var factorSum float64
	for d := time.Sunday; d <= time.Saturday; d++ {
		factorSum += features.Get(domain.SeasonalityFeature(d), DefaultSeasonalityFactor)
	}
	meanFactor := factorSum / 7

	weeks := features.Get(domain.FeatureHistorySpanDays, 0) / 7
	coverage := clamp(weeks/m.cfg.SeasonalFullCoverageWeeks, 0, 1)
	weight := m.cfg.SeasonalMinWeight + (1-m.cfg.SeasonalMinWeight)*coverage

	return finalize(Forecast{
		Daily:      base.Daily * features.Get(domain.SeasonalityFeature(target), DefaultSeasonalityFactor),
		Weekly:     base.Daily * factorSum,
		Monthly:    base.Daily * daysPerMonth * meanFactor,
		Confidence: clamp(base.Confidence*weight, 0, 1),
	})
}

func modelVersion(name string, cfg config.ForecastConfig) string {
	return fmt.Sprintf("%s@%s", name, cfg.ModelVersion)
}

// finalize clamps predictions to >= 0 and rejects non-finite output.
func finalize(f Forecast) (Forecast, error) {
	for _, v := range []float64{f.Daily, f.Weekly, f.Monthly, f.Confidence} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Forecast{}, fmt.Errorf("%w: model produced non-finite value", domain.ErrComputeFailure)
		}
	}
	f.Daily = math.Max(0, f.Daily)
	f.Weekly = math.Max(0, f.Weekly)
	f.Monthly = math.Max(0, f.Monthly)
	f.Confidence = clamp(f.Confidence, 0, 1)
	return f, nil
}
