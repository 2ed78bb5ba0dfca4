package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/EchoLayerS/EchoLayer/pkg/logging"
	"github.com/EchoLayerS/EchoLayer/pkg/middleware"
	"github.com/EchoLayerS/EchoLayer/pkg/models"
)

const defaultHistoryLimit = 100

func latestScoreKey(contentID string) string {
	return "score:latest:" + contentID
}

// GetScoreHistory returns the append-only score versions for a content item.
func GetScoreHistory(c middleware.Context) {
	contentID := c.Param("content_id")
	if contentID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Content ID required"})
		return
	}

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	scores, err := scoreHistoryRows(c.Request.Context(), contentID, limit)
	if err != nil {
		logger.WithError(err).WithField("content_id", contentID).Error("Failed to fetch score history")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to fetch score history"})
		return
	}

	c.JSON(http.StatusOK, ScoreHistoryResponse{
		ContentID: contentID,
		Scores:    scores,
		Count:     len(scores),
	})
}

// GetLatestScore returns the newest score version, served through the
// in-process cache to keep the hot path off the history store.
func GetLatestScore(c middleware.Context) {
	contentID := c.Param("content_id")
	if contentID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Content ID required"})
		return
	}

	value, ok, err := scoreCache.Get(c.Request.Context(), latestScoreKey(contentID),
		func(ctx context.Context, key string) (interface{}, bool, error) {
			latest, found := history.Latest(contentID)
			if !found {
				return nil, false, nil
			}
			return latest, true, nil
		})
	if err != nil {
		logger.WithError(err).WithField("content_id", contentID).Error("Failed to load latest score")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to load latest score"})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Content not scored yet"})
		return
	}

	c.JSON(http.StatusOK, LatestScoreResponse{Score: value.(models.AttentionScore)})
}

// GetPropagationStats returns the per-content graph aggregate.
func GetPropagationStats(c middleware.Context) {
	contentID := c.Param("content_id")
	if contentID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Content ID required"})
		return
	}
	c.JSON(http.StatusOK, propGraph.Stats(contentID))
}

// GetTraversal walks the graph breadth-first from a node, bounded by depth.
func GetTraversal(c middleware.Context) {
	startID := c.Param("node_id")
	if startID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Node ID required"})
		return
	}

	maxDepth := graphCfg.MaxTraversalDepth
	if raw := c.Query("depth"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Depth must be a positive integer"})
			return
		}
		if parsed < maxDepth {
			maxDepth = parsed
		}
	}

	nodes := propGraph.Traverse(startID, maxDepth)
	c.JSON(http.StatusOK, TraversalResponse{
		StartID:  startID,
		MaxDepth: maxDepth,
		Nodes:    nodes,
		Count:    len(nodes),
	})
}

// GetGraphAnalytics summarizes graph activity across tracked content.
func GetGraphAnalytics(c middleware.Context) {
	c.JSON(http.StatusOK, propGraph.Analytics())
}

// GetPoolStatus reports the reward pool state including deferred depth.
func GetPoolStatus(c middleware.Context) {
	c.JSON(http.StatusOK, allocator.PoolStatus())
}

// GetLeaderboard ranks participants by total allocated rewards.
func GetLeaderboard(c middleware.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	leaders := allocator.Leaderboard(limit)
	c.JSON(http.StatusOK, LeaderboardResponse{Leaders: leaders, Count: len(leaders)})
}

// GetUserRewards returns one participant's aggregated reward stats.
func GetUserRewards(c middleware.Context) {
	userID := c.Param("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "User ID required"})
		return
	}
	stats, ok := allocator.UserStats(userID)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "No rewards recorded for user"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetRewardAnalytics summarizes allocated rewards for a period.
func GetRewardAnalytics(c middleware.Context) {
	since := time.Now().Add(-24 * time.Hour)
	if raw := c.Query("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "since must be RFC3339"})
			return
		}
		since = parsed
	}
	c.JSON(http.StatusOK, allocator.Analytics(since))
}

// ResetPool re-arms the pool for a new period and drains the deferred queue.
// This is the external periodic trigger; the optional JobManager ticker calls
// the same path.
func ResetPool(c middleware.Context) {
	var req PoolResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Period required (2006-01-02)"})
		return
	}
	if _, err := time.Parse("2006-01-02", req.Period); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Period must look like 2006-01-02"})
		return
	}

	drained := resetPoolForPeriod(c.Request.Context(), req.Period)
	c.JSON(http.StatusOK, PoolResetResponse{Period: req.Period, Drained: drained})
}

// resetPoolForPeriod re-arms the pool and flushes whatever deferred
// transactions fit into the fresh budget. Persistence or publish failures on
// a drained transaction are logged but do not abort the reset; the upsert is
// idempotent and catches up on the next attempt.
func resetPoolForPeriod(ctx context.Context, period string) int {
	now := time.Now()
	drained := allocator.ResetPool(period, now)
	for _, tx := range drained {
		metrics.RewardTransactions.WithLabelValues(string(tx.Reason), string(tx.Status)).Inc()
		if err := insertTransaction(ctx, tx); err != nil {
			logger.WithError(err).WithField("transaction_id", tx.ID).Error("Failed to persist drained transaction")
			continue
		}
		if producer != nil {
			if err := producer.PublishTransaction(tx); err != nil {
				logger.WithError(err).WithField("transaction_id", tx.ID).Error("Failed to publish drained transaction")
			}
		}
	}
	updatePoolGauges()

	logger.WithFields(logging.Fields{
		"period":  period,
		"drained": len(drained),
	}).Info("Reward pool reset")
	return len(drained)
}

// GetConfig exposes the tunable surface for operators.
func GetConfig(c middleware.Context) {
	c.JSON(http.StatusOK, ConfigResponse{
		Weights:            scoringCfg.Weights,
		BoostThreshold:     scoringCfg.BoostThreshold,
		BoostFactor:        scoringCfg.BoostFactor,
		DecayFactor:        scoringCfg.DecayFactor,
		ResonanceThreshold: graphCfg.ResonanceThreshold,
		TransferLossFactor: graphCfg.TransferLossFactor,
		MaxTraversalDepth:  graphCfg.MaxTraversalDepth,
		PoolSplit:          rewardCfg.Split,
		DailyBudget:        rewardCfg.DailyBudget.String(),
	})
}

// RegisterRoutes wires the query surface onto a router.
func RegisterRoutes(router middleware.Engine) {
	v1 := router.Group("/v1")
	{
		v1.GET("/scores/:content_id", GetLatestScore)
		v1.GET("/scores/:content_id/history", GetScoreHistory)
		v1.GET("/propagation/:content_id", GetPropagationStats)
		v1.GET("/propagation/:content_id/analytics", GetGraphAnalytics)
		v1.GET("/graph/traverse/:node_id", GetTraversal)
		v1.GET("/graph/analytics", GetGraphAnalytics)
		v1.GET("/rewards/pool", GetPoolStatus)
		v1.GET("/rewards/leaderboard", GetLeaderboard)
		v1.GET("/rewards/analytics", GetRewardAnalytics)
		v1.GET("/rewards/users/:user_id", GetUserRewards)
		v1.POST("/rewards/pool/reset", ResetPool)
		v1.GET("/config", GetConfig)
	}

	logger.WithFields(logging.Fields{
		"routes": "v1",
	}).Info("Registered query routes")
}
