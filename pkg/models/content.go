package models

import (
	"time"
)

// EngagementSnapshot is the raw per-content engagement state delivered by the
// ingestion collaborator. A rescoring pass replaces the snapshot wholesale; it
// is never merged field by field.
type EngagementSnapshot struct {
	Views                int64              `json:"views" db:"views"`
	OrganicShares        int64              `json:"organic_shares" db:"organic_shares"`
	TotalShares          int64              `json:"total_shares" db:"total_shares"`
	DwellTimeSeconds     float64            `json:"dwell_time_seconds" db:"dwell_time_seconds"`
	EngagementCounts     map[string]float64 `json:"engagement_counts" db:"engagement_counts"`
	PlatformReach        int64              `json:"platform_reach" db:"platform_reach"`
	Sentiment            float64            `json:"sentiment" db:"sentiment"` // [-1,1]
	Credibility          float64            `json:"credibility" db:"credibility"`
	Relevance            float64            `json:"relevance" db:"relevance"`
	Originality          float64            `json:"originality" db:"originality"`
	LastInteractionAt    time.Time          `json:"last_interaction_at" db:"last_interaction_at"`
	InteractionFrequency float64            `json:"interaction_frequency" db:"interaction_frequency"`
}

// EngagementSum returns the summed per-type engagement counts.
func (s EngagementSnapshot) EngagementSum() float64 {
	var sum float64
	for _, v := range s.EngagementCounts {
		sum += v
	}
	return sum
}

// ContentItem is a scored unit of content as tracked by Sounder. The snapshot
// reflects the most recent ingestion pass.
type ContentItem struct {
	ID        string             `json:"id" db:"id"`
	CreatorID string             `json:"creator_id" db:"creator_id"`
	Platform  string             `json:"platform" db:"platform"`
	CreatedAt time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt time.Time          `json:"updated_at" db:"updated_at"`
	Snapshot  EngagementSnapshot `json:"snapshot" db:"snapshot"`
}

// ScoreWeights holds the four composite-score weights. They must sum to 1.0.
type ScoreWeights struct {
	ODF float64 `json:"odf"`
	AWR float64 `json:"awr"`
	TPM float64 `json:"tpm"`
	QF  float64 `json:"qf"`
}

// DefaultScoreWeights returns the standard 30/25/25/20 split.
func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{ODF: 0.30, AWR: 0.25, TPM: 0.25, QF: 0.20}
}

// Sum returns the total of the four weights.
func (w ScoreWeights) Sum() float64 {
	return w.ODF + w.AWR + w.TPM + w.QF
}

// AttentionScore is one immutable entry in a content item's append-only score
// history. Version is strictly increasing per content item.
type AttentionScore struct {
	ContentID    string       `json:"content_id" db:"content_id"`
	ODF          float64      `json:"odf" db:"odf"`
	AWR          float64      `json:"awr" db:"awr"`
	TPM          float64      `json:"tpm" db:"tpm"`
	QF           float64      `json:"qf" db:"qf"`
	Composite    float64      `json:"composite" db:"composite"`
	Weights      ScoreWeights `json:"weights" db:"weights"`
	Version      int64        `json:"version" db:"version"`
	CalculatedAt time.Time    `json:"calculated_at" db:"calculated_at"`
}
