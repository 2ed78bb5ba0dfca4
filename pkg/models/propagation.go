package models

import (
	"fmt"
	"time"
)

// NodeID builds the stable node identity for a user on a platform. Nodes are
// keyed by this id in the graph arena so cycles are plain id-to-id edges.
func NodeID(userID, platform string) string {
	return fmt.Sprintf("%s@%s", userID, platform)
}

// PropagationNode is one identity (user/account on a platform) in the
// propagation graph. Derived metrics are recomputed from accumulated event
// history, not appended.
type PropagationNode struct {
	ID              string    `json:"id" db:"id"`
	UserID          string    `json:"user_id" db:"user_id"`
	Platform        string    `json:"platform" db:"platform"`
	InfluenceWeight float64   `json:"influence_weight" db:"influence_weight"` // [0,1]
	Reach           int64     `json:"reach" db:"reach"`
	EngagementRate  float64   `json:"engagement_rate" db:"engagement_rate"` // [0,1]
	EventCount      int64     `json:"event_count" db:"event_count"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// PropagationEdge is one append-only propagation event recorded in the graph.
// TargetID is nil for broadcast-style shares with no single recipient.
type PropagationEdge struct {
	ID              string    `json:"id" db:"id"`
	SourceID        string    `json:"source_id" db:"source_id"`
	TargetID        *string   `json:"target_id,omitempty" db:"target_id"`
	ContentID       string    `json:"content_id" db:"content_id"`
	SourcePlatform  string    `json:"source_platform" db:"source_platform"`
	TargetPlatform  string    `json:"target_platform" db:"target_platform"`
	InteractionType string    `json:"interaction_type" db:"interaction_type"`
	Weight          float64   `json:"weight" db:"weight"` // strictly positive
	Timestamp       time.Time `json:"timestamp" db:"timestamp"`
}

// CrossPlatform reports whether the edge carries attention across ecosystems.
func (e PropagationEdge) CrossPlatform() bool {
	return e.SourcePlatform != e.TargetPlatform
}

// ContentPropagationStats is the read-only per-content aggregate exposed to
// analytics collaborators.
type ContentPropagationStats struct {
	ContentID        string  `json:"content_id"`
	EdgeCount        int     `json:"edge_count"`
	AverageWeight    float64 `json:"average_weight"`
	LoopStrength     float64 `json:"loop_strength"`
	Resonant         bool    `json:"resonant"`
	UniqueNodes      int     `json:"unique_nodes"`
	CrossPlatformPct float64 `json:"cross_platform_pct"`
}

// PropagationAnalytics summarizes graph activity over a period.
type PropagationAnalytics struct {
	TotalEdges          int     `json:"total_edges"`
	TrackedContent      int     `json:"tracked_content"`
	ResonantContent     int     `json:"resonant_content"`
	AverageLoopStrength float64 `json:"average_loop_strength"`
	ResonanceThreshold  float64 `json:"resonance_threshold"`
}
