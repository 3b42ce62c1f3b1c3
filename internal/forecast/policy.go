package forecast

import (
	"math"

	"github.com/andresuchdata/sto-forecast/backend-go/internal/config"
	"github.com/andresuchdata/sto-forecast/backend-go/internal/domain"
)

// Actions attached to a recommendation by risk tier.
const (
	ActionExpediteSupply = "Increase monitoring / expedite supply"
	ActionReviewSchedule = "Review supply schedule"
)

// Recommendation is the supply side of a prediction.
type Recommendation struct {
	PredictedSupply float64
	SafetyMargin    float64
	RiskLevel       domain.RiskLevel
	Action          string
}

// SupplyPolicy converts predicted demand into a supply recommendation
type SupplyPolicy struct {
	cfg config.PolicyConfig
}

// NewSupplyPolicy creates a new supply policy from the margin and threshold tables
func NewSupplyPolicy(cfg config.PolicyConfig) *SupplyPolicy {
	return &SupplyPolicy{cfg: cfg}
}

// Recommend computes supply, risk tier and action for one prediction.
// A nil profile uses the base safety margin only.
func (sp *SupplyPolicy) Recommend(predictedSales, confidence, trend float64, profile *domain.EntityProfile) Recommendation {
	rec := Recommendation{}

	// 1. Safety margin = base + surcharges from the profile
	rec.SafetyMargin = sp.SafetyMargin(profile)

	// 2. Supply = sales × (1 + margin), never below sales
	supply := predictedSales * (1 + rec.SafetyMargin)
	rec.PredictedSupply = roundFloat(math.Max(predictedSales, supply), 4)
	if rec.PredictedSupply < predictedSales {
		rec.PredictedSupply = predictedSales
	}

	// 3. Risk tier from confidence and trend direction
	rec.RiskLevel = sp.Risk(confidence, trend)

	// 4. Action
	switch rec.RiskLevel {
	case domain.RiskHigh:
		rec.Action = ActionExpediteSupply
	case domain.RiskMedium:
		rec.Action = ActionReviewSchedule
	default:
		rec.Action = ""
	}

	return rec
}

// SafetyMargin returns the margin applicable to profile.
func (sp *SupplyPolicy) SafetyMargin(profile *domain.EntityProfile) float64 {
	margin := math.Max(0, sp.cfg.SafetyMargin)
	if profile == nil {
		return margin
	}
	if profile.CompetitionLevel == domain.LevelHigh {
		margin += math.Max(0, sp.cfg.HighCompetitionMargin)
	}
	if profile.InfrastructureQuality == domain.InfrastructurePoor {
		margin += math.Max(0, sp.cfg.PoorInfrastructureMargin)
	}
	return margin
}

// Risk classifies a prediction by confidence and trend direction.
func (sp *SupplyPolicy) Risk(confidence, trend float64) domain.RiskLevel {
	switch {
	case confidence < sp.cfg.HighRiskConfidenceBelow:
		return domain.RiskHigh
	case confidence < sp.cfg.MediumRiskConfidenceBelow && trend < 0:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}
