package config

import (
	"testing"
)

func TestLoadScoringConfigDefaults(t *testing.T) {
	cfg, err := LoadScoringConfig()
	if err != nil {
		t.Fatalf("LoadScoringConfig: %v", err)
	}
	if cfg.Weights.ODF != 0.30 || cfg.Weights.AWR != 0.25 || cfg.Weights.TPM != 0.25 || cfg.Weights.QF != 0.20 {
		t.Fatalf("unexpected default weights: %+v", cfg.Weights)
	}
	if cfg.BoostThreshold != 0.8 {
		t.Fatalf("expected default boost threshold 0.8, got %v", cfg.BoostThreshold)
	}
}

func TestLoadScoringConfigRejectsBadWeightSum(t *testing.T) {
	t.Setenv("SCORE_WEIGHT_ODF", "0.5")
	t.Setenv("SCORE_WEIGHT_AWR", "0.5")
	t.Setenv("SCORE_WEIGHT_TPM", "0.5")
	t.Setenv("SCORE_WEIGHT_QF", "0.5")
	if _, err := LoadScoringConfig(); err == nil {
		t.Fatal("expected error for weights summing to 2.0")
	}
}

func TestLoadRewardConfigDefaults(t *testing.T) {
	cfg, err := LoadRewardConfig()
	if err != nil {
		t.Fatalf("LoadRewardConfig: %v", err)
	}
	if cfg.Split.Sum() != 1.0 {
		t.Fatalf("default pool split must sum to 1.0, got %v", cfg.Split.Sum())
	}
	if !cfg.DailyBudget.Equal(cfg.DailyBudget.Abs()) || cfg.DailyBudget.IsZero() {
		t.Fatalf("default daily budget must be positive, got %s", cfg.DailyBudget)
	}
}

func TestLoadRewardConfigRejectsBadSplit(t *testing.T) {
	t.Setenv("REWARD_POOL_CREATION", "0.9")
	if _, err := LoadRewardConfig(); err == nil {
		t.Fatal("expected error for split not summing to 1.0")
	}
}

func TestLoadRewardConfigRejectsNonPositiveBudget(t *testing.T) {
	t.Setenv("REWARD_DAILY_BUDGET", "0")
	if _, err := LoadRewardConfig(); err == nil {
		t.Fatal("expected error for zero budget")
	}
}

func TestLoadGraphConfigDefaults(t *testing.T) {
	cfg, err := LoadGraphConfig()
	if err != nil {
		t.Fatalf("LoadGraphConfig: %v", err)
	}
	if cfg.MaxTraversalDepth != 6 {
		t.Fatalf("expected default traversal depth 6, got %d", cfg.MaxTraversalDepth)
	}
	if cfg.ResonanceThreshold != 0.5 {
		t.Fatalf("expected default resonance threshold 0.5, got %v", cfg.ResonanceThreshold)
	}
}

func TestLoadGraphConfigRejectsBadTransferFactor(t *testing.T) {
	t.Setenv("GRAPH_TRANSFER_LOSS_FACTOR", "1.5")
	if _, err := LoadGraphConfig(); err == nil {
		t.Fatal("expected error for transfer loss factor above 1")
	}
}
