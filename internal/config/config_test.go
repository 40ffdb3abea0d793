package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Pipeline: PipelineConfig{Concurrency: 5, MaxAttempts: 3},
		Resolver: ResolverConfig{EINWeight: 0.15, LikelyAt: 0.6},
		Classify: ClassifyConfig{MinScore: 1.0},
		Products: map[string]ProductConfig{
			"compass": {Qualified: 6.0, HighPriority: 8.0},
		},
	}
}

func TestValidate_OK(t *testing.T) {
	require.NoError(t, Validate(validConfig()))
}

func TestValidate_ThresholdOrdering(t *testing.T) {
	cfg := validConfig()
	cfg.Products["compass"] = ProductConfig{Qualified: 8.0, HighPriority: 6.0}

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "products.compass.high_priority must be >= qualified")
}

func TestValidate_ThresholdRange(t *testing.T) {
	cfg := validConfig()
	cfg.Products["compass"] = ProductConfig{Qualified: -1, HighPriority: 11}

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "products.compass.qualified must be in [0,10]")
	assert.Contains(t, err.Error(), "products.compass.high_priority must be in [0,10]")
}

func TestValidate_NoProducts(t *testing.T) {
	cfg := validConfig()
	cfg.Products = nil

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one product")
}

func TestValidate_ResolverBounds(t *testing.T) {
	cfg := validConfig()
	cfg.Resolver.EINWeight = 1.5
	cfg.Resolver.LikelyAt = 0
	cfg.Resolver.KeywordWeights = map[string]float64{"charity": -0.1}

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolver.ein_weight")
	assert.Contains(t, err.Error(), "resolver.likely_at")
	assert.Contains(t, err.Error(), "resolver.keyword_weights.charity")
}

func TestValidate_Concurrency(t *testing.T) {
	cfg := validConfig()
	cfg.Pipeline.Concurrency = 0

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline.concurrency")
}
