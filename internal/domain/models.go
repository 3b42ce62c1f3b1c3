// backend-go/internal/domain/models.go
package domain

import "time"

// Entity represents a facility node (STO) being forecasted
type Entity struct {
	ID        string    `json:"sto_id" db:"sto_id"`
	Name      string    `json:"name" db:"name"`
	Region    string    `json:"region" db:"region"`
	Status    string    `json:"status" db:"status"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// SalesObservation is a single day of recorded sales for an entity
type SalesObservation struct {
	EntityID string    `json:"sto_id" db:"sto_id"`
	Date     time.Time `json:"date" db:"date"`
	Quantity float64   `json:"quantity" db:"quantity"`
}

// ContextSnapshot is the latest known architecture/capacity context of an entity
type ContextSnapshot struct {
	EntityID        string  `json:"sto_id" db:"sto_id"`
	Capacity        float64 `json:"capacity" db:"capacity"`
	UtilizationRate float64 `json:"utilization_rate" db:"utilization_rate"` // percentage, 0-100
	PortCount       float64 `json:"port_count" db:"port_count"`
}

// EntityProfile holds the demographic/market metadata of an entity
type EntityProfile struct {
	EntityID              string                `json:"sto_id" db:"sto_id"`
	PopulationCoverage    float64               `json:"population_coverage" db:"population_coverage"`
	BusinessDensity       Level                 `json:"business_density" db:"business_density"`
	CompetitionLevel      Level                 `json:"competition_level" db:"competition_level"`
	EconomicIndex         float64               `json:"economic_index" db:"economic_index"`
	InfrastructureQuality InfrastructureQuality `json:"infrastructure_quality" db:"infrastructure_quality"`
}

// PredictionRequest asks for a forecast of one entity at one horizon
type PredictionRequest struct {
	EntityID string    `json:"sto_id"`
	Horizon  Horizon   `json:"horizon"`
	AsOf     time.Time `json:"as_of_time"`
}

// Data availability flags attached to a PredictionResult.
const (
	FlagHistoryUnavailable = "history_unavailable"
	FlagContextUnavailable = "context_unavailable"
	FlagProfileUnavailable = "profile_unavailable"
)

// PredictionResult is an immutable forecast + supply recommendation bundle.
// Later results for the same entity/horizon supersede it; it is never mutated.
// PredictionDate is the first day of the forecast period, the day after as_of.
type PredictionResult struct {
	ID              string        `json:"id" db:"id"`
	EntityID        string        `json:"sto_id" db:"sto_id"`
	Horizon         Horizon       `json:"horizon" db:"prediction_type"`
	PredictionDate  time.Time     `json:"prediction_date" db:"prediction_date"`
	PredictedSales  float64       `json:"predicted_sales" db:"predicted_sales"`
	PredictedSupply float64       `json:"predicted_supply" db:"predicted_supply"`
	Confidence      float64       `json:"confidence" db:"confidence_score"`
	RiskLevel       RiskLevel     `json:"risk_level" db:"risk_level"`
	Action          string        `json:"action" db:"action_required"`
	ModelVersion    string        `json:"model_version" db:"model_version"`
	FeaturesUsed    FeatureVector `json:"features_used" db:"features_used"`
	DataFlags       []string      `json:"data_flags,omitempty" db:"-"`
	GeneratedAt     time.Time     `json:"generated_at" db:"created_at"`
}

// HasFlag reports whether the result carries the given data availability flag.
func (r *PredictionResult) HasFlag(flag string) bool {
	for _, f := range r.DataFlags {
		if f == flag {
			return true
		}
	}
	return false
}

// Period identifies one horizon-sized window starting at a calendar day.
type Period struct {
	Horizon Horizon   `json:"horizon"`
	Start   time.Time `json:"start"`
}

// End returns the exclusive end of the period.
func (p Period) End() time.Time {
	return p.Start.AddDate(0, 0, p.Horizon.Days())
}

// Normalize truncates Start to the calendar day in UTC.
func (p Period) Normalize() Period {
	return Period{Horizon: p.Horizon, Start: TruncateDay(p.Start)}
}

// AccuracyRecord compares one stored prediction against observed sales
type AccuracyRecord struct {
	ID               string    `json:"id" db:"id"`
	EntityID         string    `json:"sto_id" db:"sto_id"`
	Horizon          Horizon   `json:"horizon" db:"prediction_type"`
	PeriodStart      time.Time `json:"period_start" db:"period_start"`
	PredictionID     string    `json:"prediction_id" db:"prediction_id"`
	PredictedSales   float64   `json:"predicted_sales" db:"predicted_sales"`
	ActualSales      float64   `json:"actual_sales" db:"actual_sales"`
	AbsolutePctError float64   `json:"absolute_pct_error" db:"absolute_pct_error"`
	ComputedAt       time.Time `json:"computed_at" db:"computed_at"`
}

// ModelAccuracy is the rolled-up accuracy score of an entity
type ModelAccuracy struct {
	EntityID    string    `json:"sto_id" db:"sto_id"`
	Accuracy    float64   `json:"model_accuracy" db:"model_accuracy"`
	SampleSize  int       `json:"sample_size" db:"sample_size"`
	LastUpdated time.Time `json:"last_updated" db:"last_updated"`
}

// TruncateDay returns midnight UTC of t's calendar day.
func TruncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Window is the half-open date range [From, To) of a history lookup.
type Window struct {
	From time.Time
	To   time.Time
}

// WindowEndingAt returns the days-long window whose last day is asOf's calendar day.
func WindowEndingAt(asOf time.Time, days int) Window {
	to := TruncateDay(asOf).AddDate(0, 0, 1)
	return Window{From: to.AddDate(0, 0, -days), To: to}
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && t.Before(w.To)
}
