package score

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/EchoLayerS/EchoLayer/pkg/config"
	"github.com/EchoLayerS/EchoLayer/pkg/models"
)

func defaultEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine(config.ScoringConfig{
		Weights:        models.DefaultScoreWeights(),
		BoostThreshold: 0.8,
		BoostFactor:    1.2,
		DecayFactor:    0.95,
	})
	if err != nil {
		t.Fatalf("failed to build engine: %v", err)
	}
	return engine
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-3
}

func TestNewEngineRejectsBadWeights(t *testing.T) {
	_, err := NewEngine(config.ScoringConfig{
		Weights:        models.ScoreWeights{ODF: 0.5, AWR: 0.5, TPM: 0.5, QF: 0.5},
		BoostThreshold: 0.8,
		BoostFactor:    1.2,
		DecayFactor:    0.95,
	})
	if err == nil {
		t.Fatal("expected weights not summing to 1.0 to fail construction")
	}
}

func TestOrganicDiscoveryFactor(t *testing.T) {
	engine := defaultEngine(t)

	cases := []struct {
		name                 string
		organic, total, reach int64
		want                 float64
	}{
		{name: "documented example", organic: 80, total: 100, reach: 10000, want: 0.836},
		{name: "never shared", organic: 0, total: 0, reach: 10000, want: 0},
		{name: "fully organic no reach", organic: 10, total: 10, reach: 0, want: 0.7},
		{name: "huge reach caps the log term", organic: 100, total: 100, reach: 1 << 40, want: 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := engine.OrganicDiscoveryFactor(tc.organic, tc.total, tc.reach)
			if !almostEqual(got, tc.want) {
				t.Fatalf("odf(%d,%d,%d) = %v, want %v", tc.organic, tc.total, tc.reach, got, tc.want)
			}
		})
	}
}

func TestOrganicDiscoveryFactorMonotonicInOrganicShares(t *testing.T) {
	engine := defaultEngine(t)

	prev := -1.0
	for organic := int64(0); organic <= 100; organic += 5 {
		got := engine.OrganicDiscoveryFactor(organic, 100, 10000)
		if got < prev {
			t.Fatalf("odf decreased from %v to %v at organic=%d", prev, got, organic)
		}
		prev = got
	}
}

func TestComposeMatchesDocumentedExample(t *testing.T) {
	// Composite 0.30*0.836 + 0.25*0.7 + 0.25*0.6 + 0.20*0.9
	//         = 0.2508 + 0.175 + 0.15 + 0.18 = 0.7558.
	engine := defaultEngine(t)
	got := engine.Compose(0.836, 0.7, 0.6, 0.9)
	if !almostEqual(got, 0.7558) {
		t.Fatalf("composite = %v, want 0.7558", got)
	}

	// With the boost threshold lowered to 0.7 the same sub-scores amplify.
	boosted, err := NewEngine(config.ScoringConfig{
		Weights:        models.DefaultScoreWeights(),
		BoostThreshold: 0.7,
		BoostFactor:    1.2,
		DecayFactor:    0.95,
	})
	if err != nil {
		t.Fatalf("failed to build engine: %v", err)
	}
	got = boosted.Compose(0.836, 0.7, 0.6, 0.9)
	if !almostEqual(got, 0.90696) {
		t.Fatalf("boosted composite = %v, want 0.90696", got)
	}
}

func TestComposeClampsToUnitInterval(t *testing.T) {
	engine := defaultEngine(t)
	if got := engine.Compose(1, 1, 1, 1); got != 1 {
		t.Fatalf("boosted perfect score must clamp to 1, got %v", got)
	}
}

func TestScoreBoundsAndDeterminism(t *testing.T) {
	engine := defaultEngine(t)
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	item := models.ContentItem{
		ID:        "content-1",
		CreatorID: "user-1",
		Platform:  "twitter",
		CreatedAt: now.Add(-48 * time.Hour),
		Snapshot: models.EngagementSnapshot{
			Views:                5000,
			OrganicShares:        40,
			TotalShares:          60,
			DwellTimeSeconds:     35,
			EngagementCounts:     map[string]float64{"like": 0.4, "reply": 0.2},
			PlatformReach:        20000,
			Sentiment:            0.6,
			Credibility:          0.8,
			Relevance:            0.7,
			Originality:          0.5,
			LastInteractionAt:    now.Add(-time.Hour),
			InteractionFrequency: 6,
		},
	}

	first, err := engine.Score(item, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for name, v := range map[string]float64{
		"odf": first.ODF, "awr": first.AWR, "tpm": first.TPM, "qf": first.QF, "composite": first.Composite,
	} {
		if v < 0 || v > 1 {
			t.Fatalf("%s = %v outside [0,1]", name, v)
		}
	}

	second, err := engine.Score(item, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Fatalf("same snapshot and clock must score identically: %+v vs %+v", first, second)
	}
}

func TestScoreRequiresViews(t *testing.T) {
	engine := defaultEngine(t)
	item := models.ContentItem{
		ID:        "content-1",
		CreatedAt: time.Now().Add(-time.Hour),
		Snapshot:  models.EngagementSnapshot{LastInteractionAt: time.Now()},
	}

	_, err := engine.Score(item, time.Now())
	var insufficient *InsufficientDataError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientDataError, got %v", err)
	}
	if insufficient.Field != "views" {
		t.Fatalf("expected views field, got %q", insufficient.Field)
	}
}

func TestApplyDecay(t *testing.T) {
	engine := defaultEngine(t)

	if got := engine.ApplyDecay(0.8, 0); got != 0.8 {
		t.Fatalf("zero elapsed time must not decay, got %v", got)
	}

	// One full day at factor 0.95.
	if got := engine.ApplyDecay(0.8, 24); !almostEqual(got, 0.76) {
		t.Fatalf("decayed score = %v, want 0.76", got)
	}

	// Decay never increases a score.
	if got := engine.ApplyDecay(0.8, 240); got > 0.8 {
		t.Fatalf("decay increased score to %v", got)
	}
}
