package score

import (
	"fmt"
	"math"
	"time"

	"github.com/EchoLayerS/EchoLayer/pkg/config"
	"github.com/EchoLayerS/EchoLayer/pkg/models"
)

// InsufficientDataError marks a content item that cannot be scored yet.
// Callers must treat it as "not yet scorable", never as a zero score.
type InsufficientDataError struct {
	ContentID string
	Field     string
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("content %s cannot be scored yet: %s", e.ContentID, e.Field)
}

// Engine computes attention scores. It holds configuration only; all methods
// are pure functions of their inputs and safe for concurrent use.
type Engine struct {
	cfg config.ScoringConfig
}

// NewEngine creates a score engine. Invalid weights fail construction.
func NewEngine(cfg config.ScoringConfig) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg}, nil
}

// Weights returns the configured composite weights.
func (e *Engine) Weights() models.ScoreWeights {
	return e.cfg.Weights
}

// OrganicDiscoveryFactor rewards authentic spread. Reach is discounted
// logarithmically so mega-accounts do not dominate. Returns 0 when the
// content has never been shared.
func (e *Engine) OrganicDiscoveryFactor(organicShares, totalShares, platformReach int64) float64 {
	if totalShares == 0 {
		return 0
	}
	organicRatio := float64(organicShares) / float64(totalShares)
	reachFactor := math.Min(1, logOrZero(platformReach)/10)
	return clamp01(0.7*organicRatio + 0.3*reachFactor)
}

// AttentionWeightRatio combines interaction depth, retention, and popularity,
// each with diminishing returns.
func (e *Engine) AttentionWeightRatio(engagementSum, dwellSeconds float64, totalViews int64) float64 {
	dwellFactor := math.Min(1, dwellSeconds/60)
	viewFactor := math.Min(1, logOrZero(totalViews)/15)
	return clamp01(0.5*engagementSum + 0.3*dwellFactor + 0.2*viewFactor)
}

// TemporalPersistenceMetric captures durability and sustained relevance.
func (e *Engine) TemporalPersistenceMetric(createdAt, lastInteractionAt time.Time, interactionFrequency float64, now time.Time) float64 {
	ageDays := now.Sub(createdAt).Hours() / 24
	recencyDays := now.Sub(lastInteractionAt).Hours() / 24

	ageFactor := math.Max(0.1, 1/(1+0.1*ageDays))
	recencyFactor := math.Max(0.1, 1/(1+0.2*recencyDays))
	freqFactor := math.Min(1, interactionFrequency/10)

	return clamp01(0.3*ageFactor + 0.4*recencyFactor + 0.3*freqFactor)
}

// QualityFactor blends the ingestion collaborator's content signals.
// Sentiment arrives in [-1,1] and is normalized to [0,1] first.
func (e *Engine) QualityFactor(sentiment, credibility, relevance, originality float64) float64 {
	normalized := (sentiment + 1) / 2
	return clamp01(0.2*normalized + 0.3*credibility + 0.3*relevance + 0.2*originality)
}

// Compose folds the four sub-scores into the composite using the configured
// weights. Scores above the boost threshold are amplified, then clamped.
func (e *Engine) Compose(odf, awr, tpm, qf float64) float64 {
	w := e.cfg.Weights
	composite := w.ODF*odf + w.AWR*awr + w.TPM*tpm + w.QF*qf
	if composite > e.cfg.BoostThreshold {
		composite *= e.cfg.BoostFactor
	}
	return clamp01(composite)
}

// ApplyDecay ages a composite score by elapsed hours using the configured
// per-day decay factor.
func (e *Engine) ApplyDecay(composite, hoursElapsed float64) float64 {
	if hoursElapsed <= 0 {
		return clamp01(composite)
	}
	return clamp01(composite * math.Pow(e.cfg.DecayFactor, hoursElapsed/24))
}

// Score produces an unversioned AttentionScore for a content item. The
// caller appends it to History, which assigns the version.
func (e *Engine) Score(item models.ContentItem, now time.Time) (models.AttentionScore, error) {
	s := item.Snapshot
	if s.Views == 0 {
		return models.AttentionScore{}, &InsufficientDataError{ContentID: item.ID, Field: "views"}
	}
	if s.LastInteractionAt.IsZero() {
		return models.AttentionScore{}, &InsufficientDataError{ContentID: item.ID, Field: "last_interaction_at"}
	}

	odf := e.OrganicDiscoveryFactor(s.OrganicShares, s.TotalShares, s.PlatformReach)
	awr := e.AttentionWeightRatio(s.EngagementSum(), s.DwellTimeSeconds, s.Views)
	tpm := e.TemporalPersistenceMetric(item.CreatedAt, s.LastInteractionAt, s.InteractionFrequency, now)
	qf := e.QualityFactor(s.Sentiment, s.Credibility, s.Relevance, s.Originality)

	return models.AttentionScore{
		ContentID:    item.ID,
		ODF:          odf,
		AWR:          awr,
		TPM:          tpm,
		QF:           qf,
		Composite:    e.Compose(odf, awr, tpm, qf),
		Weights:      e.cfg.Weights,
		CalculatedAt: now,
	}, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// logOrZero returns ln(n), floored at zero so sub-unit inputs cannot drag a
// factor negative.
func logOrZero(n int64) float64 {
	if n <= 1 {
		return 0
	}
	return math.Log(float64(n))
}
