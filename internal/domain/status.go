package domain

import "strings"

// Horizon is the forecast period granularity.
type Horizon string

const (
	HorizonDaily   Horizon = "daily"
	HorizonWeekly  Horizon = "weekly"
	HorizonMonthly Horizon = "monthly"
)

var horizonDays = map[Horizon]int{
	HorizonDaily:   1,
	HorizonWeekly:  7,
	HorizonMonthly: 30,
}

// ParseHorizon returns the horizon for a given label (case-insensitive).
func ParseHorizon(label string) (Horizon, bool) {
	h := Horizon(strings.ToLower(strings.TrimSpace(label)))
	_, ok := horizonDays[h]
	return h, ok
}

// Valid reports whether h is one of the supported horizons.
func (h Horizon) Valid() bool {
	_, ok := horizonDays[h]
	return ok
}

// Days returns the number of calendar days covered by one period of h.
func (h Horizon) Days() int {
	return horizonDays[h]
}

// RiskLevel classifies how much attention a supply recommendation needs.
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

// Level is the three-step ordinal used by business_density and competition_level.
type Level string

const (
	LevelLow    Level = "Low"
	LevelMedium Level = "Medium"
	LevelHigh   Level = "High"
)

// InfrastructureQuality is the four-step ordinal of an entity's infrastructure.
type InfrastructureQuality string

const (
	InfrastructurePoor      InfrastructureQuality = "Poor"
	InfrastructureFair      InfrastructureQuality = "Fair"
	InfrastructureGood      InfrastructureQuality = "Good"
	InfrastructureExcellent InfrastructureQuality = "Excellent"
)

// NeutralEncoding is used for category values that are absent or unrecognized.
const NeutralEncoding = 0.5

var levelEncodings = map[string]float64{
	"low":    0.0,
	"medium": 0.5,
	"high":   1.0,
}

var infrastructureEncodings = map[string]float64{
	"poor":      0.0,
	"fair":      0.33,
	"good":      0.66,
	"excellent": 1.0,
}

// EncodeLevel ordinally encodes a Low/Medium/High value.
func EncodeLevel(l Level) float64 {
	if v, ok := levelEncodings[strings.ToLower(strings.TrimSpace(string(l)))]; ok {
		return v
	}
	return NeutralEncoding
}

// EncodeInfrastructure ordinally encodes a Poor/Fair/Good/Excellent value.
func EncodeInfrastructure(q InfrastructureQuality) float64 {
	if v, ok := infrastructureEncodings[strings.ToLower(strings.TrimSpace(string(q)))]; ok {
		return v
	}
	return NeutralEncoding
}
