package rewards

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/EchoLayerS/EchoLayer/pkg/config"
	"github.com/EchoLayerS/EchoLayer/pkg/models"
)

// transactionNamespace scopes the deterministic transaction ids.
var transactionNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// TransactionID derives the idempotency key for one logical reward. Retrying
// the same (recipient, content, reason, period) always lands on the same id,
// so double-awarding across replays collapses into one transaction.
func TransactionID(recipient, contentID string, reason models.RewardReason, period string) string {
	name := fmt.Sprintf("%s:%s:%s:%s", recipient, contentID, reason, period)
	return uuid.NewSHA1(transactionNamespace, []byte(name)).String()
}

// Allocator converts score and propagation outcomes into bounded reward
// transactions against the period pool.
type Allocator struct {
	cfg  config.RewardConfig
	pool *Pool

	mu           sync.Mutex
	transactions map[string]*models.RewardTransaction
	deferred     []string
	userStats    map[string]*models.UserRewardStats
}

// NewAllocator creates an allocator with the pool armed for the given period.
func NewAllocator(cfg config.RewardConfig, period string) (*Allocator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Allocator{
		cfg:          cfg,
		pool:         NewPool(period, cfg.DailyBudget, cfg.Split),
		transactions: make(map[string]*models.RewardTransaction),
		userStats:    make(map[string]*models.UserRewardStats),
	}, nil
}

// CreationReward computes the reward for newly scored content.
func (a *Allocator) CreationReward(compositeScore, qualityScore, earlyEngagement float64) decimal.Decimal {
	base := compositeScore * a.cfg.BaseRate
	qualityBonus := 0.0
	if qualityScore > 0.7 {
		qualityBonus = base * (a.cfg.QualityMultiplier - 1)
	}
	engagementFactor := math.Min(0.5, earlyEngagement*0.1)
	return decimal.NewFromFloat((base + qualityBonus) * (1 + engagementFactor))
}

// PropagationReward computes the reward for one propagation edge.
func (a *Allocator) PropagationReward(originalScore, edgeWeight, propagatorInfluence, loopStrength float64) decimal.Decimal {
	base := originalScore * edgeWeight * 0.1
	influenceBonus := propagatorInfluence * 0.05
	loopBonus := 0.0
	if loopStrength > 0.5 {
		loopBonus = base * (a.cfg.PropagationMultiplier - 1)
	}
	return decimal.NewFromFloat(base + influenceBonus + loopBonus)
}

// DiscoveryBonus computes the bonus for surfacing content early.
// discoveryTiming runs 0 (earliest) to 1 (latest).
func (a *Allocator) DiscoveryBonus(discoveredScore, discoveryTiming, discovererInfluence float64) decimal.Decimal {
	timingBonus := math.Max(0, 1-discoveryTiming)
	influenceFactor := math.Min(0.3, discovererInfluence*0.1)
	return decimal.NewFromFloat(discoveredScore * 0.05 * (1 + timingBonus + influenceFactor))
}

// QualityBonus computes the high-performer bonus from content quality
// metrics: the multiplier ladder is viral 2.0, heavy engagement 1.5,
// strong retention 1.2.
func (a *Allocator) QualityBonus(scoreImprovement, viralCoefficient, engagementRate, retentionRate float64) decimal.Decimal {
	multiplier := 1.0
	switch {
	case viralCoefficient > 2.0:
		multiplier = 2.0
	case engagementRate > 0.8:
		multiplier = 1.5
	case retentionRate > 0.7:
		multiplier = 1.2
	}
	return decimal.NewFromFloat(scoreImprovement * 10 * multiplier)
}

// CreatorCut returns the slice of a propagation reward owed to the original
// creator when someone else did the propagating.
func (a *Allocator) CreatorCut(propagationReward decimal.Decimal) decimal.Decimal {
	return propagationReward.Mul(decimal.NewFromFloat(a.cfg.CreatorCutRatio))
}

// Award creates (or re-finds) the transaction for a logical reward and
// attempts allocation against the owning sub-pool. On exhaustion the
// transaction is deferred for the next period, never truncated. Zero or
// negative amounts are rejected outright.
func (a *Allocator) Award(recipient, contentID string, reason models.RewardReason, amount decimal.Decimal, edgeID *string, now time.Time) (models.RewardTransaction, error) {
	if !amount.IsPositive() {
		return models.RewardTransaction{}, fmt.Errorf("reward amount must be positive, got %s", amount)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	period := a.pool.Period()
	id := TransactionID(recipient, contentID, reason, period)
	if existing, ok := a.transactions[id]; ok {
		return *existing, nil
	}

	tx := &models.RewardTransaction{
		ID:        id,
		Recipient: recipient,
		Amount:    amount,
		Reason:    reason,
		ContentID: contentID,
		EdgeID:    edgeID,
		Status:    models.StatusPending,
		Period:    period,
		CreatedAt: now,
		UpdatedAt: now,
	}
	a.transactions[id] = tx

	a.allocateLocked(tx, now)
	return *tx, nil
}

// allocateLocked moves a pending/deferred transaction to allocated if the
// sub-pool has capacity, otherwise to deferred. Caller holds a.mu.
func (a *Allocator) allocateLocked(tx *models.RewardTransaction, now time.Time) {
	err := a.pool.Debit(models.PoolForReason(tx.Reason), tx.Amount)
	switch {
	case err == nil:
		tx.Status = models.StatusAllocated
		a.creditStatsLocked(tx)
	default:
		// Exhaustion and any other debit refusal both park the transaction;
		// the amount is never shaved to fit.
		tx.Status = models.StatusDeferred
		a.deferred = append(a.deferred, tx.ID)
	}
	tx.UpdatedAt = now
}

func (a *Allocator) creditStatsLocked(tx *models.RewardTransaction) {
	stats, ok := a.userStats[tx.Recipient]
	if !ok {
		stats = &models.UserRewardStats{UserID: tx.Recipient}
		a.userStats[tx.Recipient] = stats
	}
	stats.TotalEarned = stats.TotalEarned.Add(tx.Amount)
	switch tx.Reason {
	case models.RewardCreation:
		stats.CreationRewards = stats.CreationRewards.Add(tx.Amount)
	case models.RewardPropagation, models.RewardCreatorCut:
		stats.PropagationRewards = stats.PropagationRewards.Add(tx.Amount)
	case models.RewardQuality:
		stats.QualityBonuses = stats.QualityBonuses.Add(tx.Amount)
	}
}

// Transaction returns a transaction by id.
func (a *Allocator) Transaction(id string) (models.RewardTransaction, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	tx, ok := a.transactions[id]
	if !ok {
		return models.RewardTransaction{}, false
	}
	return *tx, true
}

// MarkFailed records a downstream ledger rejection. Terminal: the
// transaction is not retried by this component.
func (a *Allocator) MarkFailed(id string, now time.Time) (models.RewardTransaction, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	tx, ok := a.transactions[id]
	if !ok {
		return models.RewardTransaction{}, fmt.Errorf("unknown transaction %s", id)
	}
	if tx.Status == models.StatusFailed {
		return *tx, nil
	}
	tx.Status = models.StatusFailed
	tx.UpdatedAt = now
	return *tx, nil
}

// ResetPool re-arms the pool for a new period and drains the deferred queue
// against the fresh balances. Returns the transactions that became allocated
// so the caller can publish them to the ledger.
func (a *Allocator) ResetPool(period string, now time.Time) []models.RewardTransaction {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.pool.Reset(period)

	queue := a.deferred
	a.deferred = nil

	var allocated []models.RewardTransaction
	for _, id := range queue {
		tx, ok := a.transactions[id]
		if !ok || tx.Status != models.StatusDeferred {
			continue
		}
		tx.Period = period
		a.allocateLocked(tx, now)
		if tx.Status == models.StatusAllocated {
			allocated = append(allocated, *tx)
		}
	}
	return allocated
}

// PoolStatus reports the current pool state including deferred queue depth.
func (a *Allocator) PoolStatus() models.PoolStatus {
	a.mu.Lock()
	depth := len(a.deferred)
	a.mu.Unlock()
	return a.pool.Status(depth)
}

// DeferredDepth returns the number of transactions waiting on the next period.
func (a *Allocator) DeferredDepth() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.deferred)
}

// UserStats returns the aggregated reward stats for one participant.
func (a *Allocator) UserStats(userID string) (models.UserRewardStats, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	stats, ok := a.userStats[userID]
	if !ok {
		return models.UserRewardStats{}, false
	}
	return *stats, true
}

// Leaderboard returns participants ranked by total earnings, capped at limit.
func (a *Allocator) Leaderboard(limit int) []models.UserRewardStats {
	a.mu.Lock()
	out := make([]models.UserRewardStats, 0, len(a.userStats))
	for _, stats := range a.userStats {
		out = append(out, *stats)
	}
	a.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].TotalEarned.Equal(out[j].TotalEarned) {
			return out[i].TotalEarned.GreaterThan(out[j].TotalEarned)
		}
		return out[i].UserID < out[j].UserID
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Analytics summarizes allocated rewards since a point in time.
func (a *Allocator) Analytics(since time.Time) models.RewardAnalytics {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := models.RewardAnalytics{
		TotalDistributed: decimal.Zero,
		ByReason:         make(map[models.RewardReason]decimal.Decimal),
	}
	recipients := make(map[string]struct{})
	for _, tx := range a.transactions {
		if tx.Status != models.StatusAllocated || tx.CreatedAt.Before(since) {
			continue
		}
		out.TotalDistributed = out.TotalDistributed.Add(tx.Amount)
		out.ByReason[tx.Reason] = out.ByReason[tx.Reason].Add(tx.Amount)
		recipients[tx.Recipient] = struct{}{}
	}
	out.UniqueRecipients = len(recipients)
	out.PoolUtilization = a.pool.Status(len(a.deferred)).Utilization
	return out
}
