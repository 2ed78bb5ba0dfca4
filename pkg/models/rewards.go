package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RewardReason tags why a transaction was emitted.
type RewardReason string

const (
	RewardCreation    RewardReason = "creation"
	RewardPropagation RewardReason = "propagation"
	RewardDiscovery   RewardReason = "discovery"
	RewardQuality     RewardReason = "quality_bonus"
	RewardCreatorCut  RewardReason = "creator_cut"
)

// TransactionStatus is the reward transaction lifecycle state. Status is the
// only mutable field on a transaction.
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusAllocated TransactionStatus = "allocated"
	StatusDeferred  TransactionStatus = "deferred"
	StatusFailed    TransactionStatus = "failed"
)

// SubPool names the five independently tracked portions of the daily budget.
type SubPool string

const (
	PoolCreation    SubPool = "creation"
	PoolPropagation SubPool = "propagation"
	PoolDiscovery   SubPool = "discovery"
	PoolQuality     SubPool = "quality_bonus"
	PoolReserve     SubPool = "reserve"
)

// SubPools lists all sub-pools in their canonical order.
var SubPools = []SubPool{PoolCreation, PoolPropagation, PoolDiscovery, PoolQuality, PoolReserve}

// PoolForReason maps a reward reason onto the sub-pool it draws from.
func PoolForReason(reason RewardReason) SubPool {
	switch reason {
	case RewardCreation:
		return PoolCreation
	case RewardPropagation, RewardCreatorCut:
		return PoolPropagation
	case RewardDiscovery:
		return PoolDiscovery
	case RewardQuality:
		return PoolQuality
	default:
		return PoolReserve
	}
}

// PoolSplit holds the five sub-pool percentages. They must sum to 1.0.
type PoolSplit struct {
	Creation    float64 `json:"creation"`
	Propagation float64 `json:"propagation"`
	Discovery   float64 `json:"discovery"`
	Quality     float64 `json:"quality_bonus"`
	Reserve     float64 `json:"reserve"`
}

// DefaultPoolSplit returns the standard 40/30/15/10/5 split.
func DefaultPoolSplit() PoolSplit {
	return PoolSplit{Creation: 0.40, Propagation: 0.30, Discovery: 0.15, Quality: 0.10, Reserve: 0.05}
}

// Sum returns the total of the five percentages.
func (p PoolSplit) Sum() float64 {
	return p.Creation + p.Propagation + p.Discovery + p.Quality + p.Reserve
}

// Fraction returns the percentage for a named sub-pool.
func (p PoolSplit) Fraction(pool SubPool) float64 {
	switch pool {
	case PoolCreation:
		return p.Creation
	case PoolPropagation:
		return p.Propagation
	case PoolDiscovery:
		return p.Discovery
	case PoolQuality:
		return p.Quality
	case PoolReserve:
		return p.Reserve
	default:
		return 0
	}
}

// PoolStatus is the externally visible state of one period's reward pool.
type PoolStatus struct {
	Period        string                      `json:"period"`
	DailyBudget   decimal.Decimal             `json:"daily_budget"`
	Allocated     map[SubPool]decimal.Decimal `json:"allocated"`
	Remaining     map[SubPool]decimal.Decimal `json:"remaining"`
	Utilization   float64                     `json:"utilization"`
	DeferredDepth int                         `json:"deferred_depth"`
}

// RewardTransaction is a single reward emission against the shared pool. The
// ID doubles as the idempotency key for (recipient, content, reason, period).
type RewardTransaction struct {
	ID         string            `json:"id" db:"id"`
	Recipient  string            `json:"recipient" db:"recipient"`
	Amount     decimal.Decimal   `json:"amount" db:"amount"`
	Reason     RewardReason      `json:"reason" db:"reason"`
	ContentID  string            `json:"content_id" db:"content_id"`
	EdgeID     *string           `json:"edge_id,omitempty" db:"edge_id"`
	Status     TransactionStatus `json:"status" db:"status"`
	Period     string            `json:"period" db:"period"`
	CreatedAt  time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at" db:"updated_at"`
}

// UserRewardStats aggregates a participant's reward history for the
// leaderboard surface.
type UserRewardStats struct {
	UserID             string          `json:"user_id"`
	TotalEarned        decimal.Decimal `json:"total_earned"`
	CreationRewards    decimal.Decimal `json:"creation_rewards"`
	PropagationRewards decimal.Decimal `json:"propagation_rewards"`
	QualityBonuses     decimal.Decimal `json:"quality_bonuses"`
	Rank               int             `json:"rank"`
}

// RewardAnalytics summarizes reward distribution over a period.
type RewardAnalytics struct {
	TotalDistributed decimal.Decimal                  `json:"total_distributed"`
	UniqueRecipients int                              `json:"unique_recipients"`
	ByReason         map[RewardReason]decimal.Decimal `json:"by_reason"`
	PoolUtilization  float64                          `json:"pool_utilization"`
}
