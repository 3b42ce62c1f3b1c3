package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "linear", cfg.Forecast.Model)
	assert.Equal(t, 4.0, cfg.Forecast.DefaultBaseRate)
	assert.Equal(t, 0.5, cfg.Forecast.NaiveConfidence)
	assert.Equal(t, 90, cfg.Forecast.HistoryWindowDays)
	assert.Equal(t, 0.2, cfg.Policy.SafetyMargin)
	assert.Equal(t, 0.6, cfg.Policy.HighRiskConfidenceBelow)
	assert.Equal(t, 0.85, cfg.Policy.MediumRiskConfidenceBelow)
	assert.Equal(t, 3600, cfg.Cache.ResultTTLSeconds)
	assert.Equal(t, 0.94, cfg.Accuracy.DefaultModelAccuracy)
	assert.False(t, cfg.Cache.Enabled)
}

func TestFromViper_Overrides(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("FORECAST_MODEL", "seasonal")
	v.Set("POLICY_SAFETY_MARGIN", 0.35)
	v.Set("DB_DRIVER", "pgx")

	cfg, err := FromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "seasonal", cfg.Forecast.Model)
	assert.Equal(t, 0.35, cfg.Policy.SafetyMargin)
	assert.Equal(t, "pgx", cfg.Database.Driver)
}

func TestFromViper_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value interface{}
	}{
		{"unknown model", "FORECAST_MODEL", "arima"},
		{"negative margin", "POLICY_SAFETY_MARGIN", -0.1},
		{"confidence above one", "FORECAST_MAX_CONFIDENCE", 1.5},
		{"inverted risk thresholds", "POLICY_HIGH_RISK_CONFIDENCE", 0.9},
		{"zero ttl", "CACHE_RESULT_TTL_SECONDS", 0},
		{"empty accuracy window", "ACCURACY_WINDOW", 0},
		{"unknown driver", "DB_DRIVER", "mysql"},
		{"unknown log format", "LOG_FORMAT", "xml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			SetDefaults(v)
			v.Set(tt.key, tt.value)

			_, err := FromViper(v)
			assert.Error(t, err)
		})
	}
}
