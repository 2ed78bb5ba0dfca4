package handlers

import (
	"github.com/EchoLayerS/EchoLayer/pkg/models"
)

// ErrorResponse is the uniform error body for the query surface.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ScoreHistoryResponse returns the append-only score versions for a content item.
type ScoreHistoryResponse struct {
	ContentID string                  `json:"content_id"`
	Scores    []models.AttentionScore `json:"scores"`
	Count     int                     `json:"count"`
}

// LatestScoreResponse returns the newest score version for a content item.
type LatestScoreResponse struct {
	Score models.AttentionScore `json:"score"`
}

// TraversalResponse returns a bounded-depth walk of the propagation graph.
type TraversalResponse struct {
	StartID  string   `json:"start_id"`
	MaxDepth int      `json:"max_depth"`
	Nodes    []string `json:"nodes"`
	Count    int      `json:"count"`
}

// LeaderboardResponse ranks participants by total earnings.
type LeaderboardResponse struct {
	Leaders []models.UserRewardStats `json:"leaders"`
	Count   int                      `json:"count"`
}

// PoolResetRequest triggers the periodic pool reset for a new period.
type PoolResetRequest struct {
	Period string `json:"period" binding:"required"`
}

// PoolResetResponse reports the reset outcome, including deferred
// transactions that drained into the fresh pool.
type PoolResetResponse struct {
	Period  string `json:"period"`
	Drained int    `json:"drained"`
}

// ConfigResponse exposes the tunable surface for operators.
type ConfigResponse struct {
	Weights            models.ScoreWeights `json:"score_weights"`
	BoostThreshold     float64             `json:"boost_threshold"`
	BoostFactor        float64             `json:"boost_factor"`
	DecayFactor        float64             `json:"decay_factor"`
	ResonanceThreshold float64             `json:"resonance_threshold"`
	TransferLossFactor float64             `json:"transfer_loss_factor"`
	MaxTraversalDepth  int                 `json:"max_traversal_depth"`
	PoolSplit          models.PoolSplit    `json:"pool_split"`
	DailyBudget        string              `json:"daily_budget"`
}
