package config

import (
	"fmt"
	"math"
	"os"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/EchoLayerS/EchoLayer/pkg/models"
)

const weightTolerance = 1e-9

// GetEnvFloat gets a float environment variable with a default value
func GetEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// ScoringConfig is the externally tunable surface of the score engine.
// Weights must sum to 1.0; construction fails fast otherwise.
type ScoringConfig struct {
	Weights        models.ScoreWeights
	BoostThreshold float64
	BoostFactor    float64
	DecayFactor    float64
}

// LoadScoringConfig reads score weights and thresholds from the environment.
func LoadScoringConfig() (ScoringConfig, error) {
	defaults := models.DefaultScoreWeights()
	cfg := ScoringConfig{
		Weights: models.ScoreWeights{
			ODF: GetEnvFloat("SCORE_WEIGHT_ODF", defaults.ODF),
			AWR: GetEnvFloat("SCORE_WEIGHT_AWR", defaults.AWR),
			TPM: GetEnvFloat("SCORE_WEIGHT_TPM", defaults.TPM),
			QF:  GetEnvFloat("SCORE_WEIGHT_QF", defaults.QF),
		},
		BoostThreshold: GetEnvFloat("SCORE_BOOST_THRESHOLD", 0.8),
		BoostFactor:    GetEnvFloat("SCORE_BOOST_FACTOR", 1.2),
		DecayFactor:    GetEnvFloat("SCORE_DECAY_FACTOR", 0.95),
	}
	if err := cfg.Validate(); err != nil {
		return ScoringConfig{}, err
	}
	return cfg, nil
}

// Validate checks weight and threshold invariants.
func (c ScoringConfig) Validate() error {
	if math.Abs(c.Weights.Sum()-1.0) > weightTolerance {
		return fmt.Errorf("score weights must sum to 1.0, got %v", c.Weights.Sum())
	}
	if c.BoostThreshold < 0 || c.BoostThreshold > 1 {
		return fmt.Errorf("boost threshold must lie in [0,1], got %v", c.BoostThreshold)
	}
	if c.BoostFactor < 1 {
		return fmt.Errorf("boost factor must be >= 1, got %v", c.BoostFactor)
	}
	if c.DecayFactor <= 0 || c.DecayFactor > 1 {
		return fmt.Errorf("decay factor must lie in (0,1], got %v", c.DecayFactor)
	}
	return nil
}

// GraphConfig is the externally tunable surface of the propagation graph.
type GraphConfig struct {
	ResonanceThreshold float64
	TransferLossFactor float64
	MaxTraversalDepth  int
	LoopWindowHours    int
}

// LoadGraphConfig reads propagation graph tunables from the environment.
func LoadGraphConfig() (GraphConfig, error) {
	cfg := GraphConfig{
		ResonanceThreshold: GetEnvFloat("GRAPH_RESONANCE_THRESHOLD", 0.5),
		TransferLossFactor: GetEnvFloat("GRAPH_TRANSFER_LOSS_FACTOR", 0.85),
		MaxTraversalDepth:  GetEnvInt("GRAPH_MAX_TRAVERSAL_DEPTH", 6),
		LoopWindowHours:    GetEnvInt("GRAPH_LOOP_WINDOW_HOURS", 72),
	}
	if cfg.ResonanceThreshold < 0 || cfg.ResonanceThreshold > 1 {
		return GraphConfig{}, fmt.Errorf("resonance threshold must lie in [0,1], got %v", cfg.ResonanceThreshold)
	}
	if cfg.TransferLossFactor <= 0 || cfg.TransferLossFactor >= 1 {
		return GraphConfig{}, fmt.Errorf("transfer loss factor must lie in (0,1), got %v", cfg.TransferLossFactor)
	}
	if cfg.MaxTraversalDepth < 1 {
		return GraphConfig{}, fmt.Errorf("traversal depth must be >= 1, got %d", cfg.MaxTraversalDepth)
	}
	return cfg, nil
}

// RewardConfig is the externally tunable surface of the reward allocator.
// Pool split percentages must sum to 1.0; construction fails fast otherwise.
type RewardConfig struct {
	DailyBudget           decimal.Decimal
	Split                 models.PoolSplit
	BaseRate              float64
	QualityMultiplier     float64
	PropagationMultiplier float64
	CreatorCutRatio       float64
}

// LoadRewardConfig reads the reward pool tunables from the environment.
func LoadRewardConfig() (RewardConfig, error) {
	budget, err := decimal.NewFromString(GetEnv("REWARD_DAILY_BUDGET", "1000"))
	if err != nil {
		return RewardConfig{}, fmt.Errorf("invalid REWARD_DAILY_BUDGET: %w", err)
	}
	defaults := models.DefaultPoolSplit()
	cfg := RewardConfig{
		DailyBudget: budget,
		Split: models.PoolSplit{
			Creation:    GetEnvFloat("REWARD_POOL_CREATION", defaults.Creation),
			Propagation: GetEnvFloat("REWARD_POOL_PROPAGATION", defaults.Propagation),
			Discovery:   GetEnvFloat("REWARD_POOL_DISCOVERY", defaults.Discovery),
			Quality:     GetEnvFloat("REWARD_POOL_QUALITY", defaults.Quality),
			Reserve:     GetEnvFloat("REWARD_POOL_RESERVE", defaults.Reserve),
		},
		BaseRate:              GetEnvFloat("REWARD_BASE_RATE", 1.0),
		QualityMultiplier:     GetEnvFloat("REWARD_QUALITY_MULTIPLIER", 1.5),
		PropagationMultiplier: GetEnvFloat("REWARD_PROPAGATION_MULTIPLIER", 2.0),
		CreatorCutRatio:       GetEnvFloat("REWARD_CREATOR_CUT_RATIO", 0.3),
	}
	if err := cfg.Validate(); err != nil {
		return RewardConfig{}, err
	}
	return cfg, nil
}

// Validate checks budget and split invariants.
func (c RewardConfig) Validate() error {
	if !c.DailyBudget.IsPositive() {
		return fmt.Errorf("daily budget must be positive, got %s", c.DailyBudget)
	}
	if math.Abs(c.Split.Sum()-1.0) > weightTolerance {
		return fmt.Errorf("pool split must sum to 1.0, got %v", c.Split.Sum())
	}
	for _, pool := range models.SubPools {
		if c.Split.Fraction(pool) < 0 {
			return fmt.Errorf("pool split for %s must not be negative", pool)
		}
	}
	if c.CreatorCutRatio < 0 || c.CreatorCutRatio > 1 {
		return fmt.Errorf("creator cut ratio must lie in [0,1], got %v", c.CreatorCutRatio)
	}
	return nil
}
