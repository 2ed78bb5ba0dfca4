package rewards

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/EchoLayerS/EchoLayer/pkg/config"
	"github.com/EchoLayerS/EchoLayer/pkg/models"
)

func testAllocator(t *testing.T, budget string) *Allocator {
	t.Helper()
	daily, err := decimal.NewFromString(budget)
	if err != nil {
		t.Fatalf("bad budget: %v", err)
	}
	a, err := NewAllocator(config.RewardConfig{
		DailyBudget:           daily,
		Split:                 models.DefaultPoolSplit(),
		BaseRate:              1.0,
		QualityMultiplier:     1.5,
		PropagationMultiplier: 2.0,
		CreatorCutRatio:       0.3,
	}, "2025-07-01")
	if err != nil {
		t.Fatalf("failed to build allocator: %v", err)
	}
	return a
}

func approx(t *testing.T, got decimal.Decimal, want float64) {
	t.Helper()
	f, _ := got.Float64()
	if math.Abs(f-want) > 1e-9 {
		t.Fatalf("got %v, want %v", f, want)
	}
}

func TestCreationRewardFormula(t *testing.T) {
	a := testAllocator(t, "1000")

	// base = 0.8, quality 0.9 > 0.7 so bonus = 0.8*0.5, engagement factor
	// min(0.5, 3*0.1) = 0.3 → (0.8+0.4)*1.3 = 1.56.
	approx(t, a.CreationReward(0.8, 0.9, 3), 1.56)

	// Quality at or below 0.7 earns no bonus.
	approx(t, a.CreationReward(0.8, 0.7, 0), 0.8)

	// Engagement factor caps at 0.5.
	approx(t, a.CreationReward(0.8, 0.7, 100), 1.2)
}

func TestPropagationRewardFormula(t *testing.T) {
	a := testAllocator(t, "1000")

	// base = 0.9*0.735*0.1 = 0.06615, influence bonus 0.8*0.05 = 0.04.
	approx(t, a.PropagationReward(0.9, 0.735, 0.8, 0.4), 0.10615)

	// Loop strength above 0.5 doubles the base on top.
	approx(t, a.PropagationReward(0.9, 0.735, 0.8, 0.6), 0.10615+0.06615)
}

func TestDiscoveryBonusFormula(t *testing.T) {
	a := testAllocator(t, "1000")

	// Early discovery: timing 0.1 → bonus 0.9; influence factor 0.05.
	approx(t, a.DiscoveryBonus(0.8, 0.1, 0.5), 0.8*0.05*(1+0.9+0.05))

	// Influence factor caps at 0.3.
	approx(t, a.DiscoveryBonus(0.8, 1.0, 9), 0.8*0.05*1.3)
}

func TestQualityBonusLadder(t *testing.T) {
	a := testAllocator(t, "1000")

	approx(t, a.QualityBonus(0.2, 2.5, 0, 0), 4.0)   // viral
	approx(t, a.QualityBonus(0.2, 1.0, 0.9, 0), 3.0) // engagement
	approx(t, a.QualityBonus(0.2, 1.0, 0.5, 0.8), 2.4)
	approx(t, a.QualityBonus(0.2, 1.0, 0.5, 0.5), 2.0)
}

func TestCreatorCut(t *testing.T) {
	a := testAllocator(t, "1000")
	approx(t, a.CreatorCut(decimal.NewFromFloat(1.0)), 0.3)
}

func TestAwardDefersOnExhaustedSubPool(t *testing.T) {
	// Budget 1000 → creation sub-pool 400. Three rewards of 150 land as
	// allocated, allocated, deferred, leaving 100.
	a := testAllocator(t, "1000")
	now := time.Now()
	amount := decimal.NewFromInt(150)

	statuses := make([]models.TransactionStatus, 0, 3)
	for i := 0; i < 3; i++ {
		tx, err := a.Award("user-1", fmt.Sprintf("content-%d", i), models.RewardCreation, amount, nil, now)
		if err != nil {
			t.Fatalf("award %d: %v", i, err)
		}
		statuses = append(statuses, tx.Status)
	}

	want := []models.TransactionStatus{models.StatusAllocated, models.StatusAllocated, models.StatusDeferred}
	for i := range want {
		if statuses[i] != want[i] {
			t.Fatalf("award %d status = %s, want %s", i, statuses[i], want[i])
		}
	}

	status := a.PoolStatus()
	if !status.Remaining[models.PoolCreation].Equal(decimal.NewFromInt(100)) {
		t.Fatalf("creation remaining = %s, want 100", status.Remaining[models.PoolCreation])
	}
	if status.DeferredDepth != 1 {
		t.Fatalf("deferred depth = %d, want 1", status.DeferredDepth)
	}
}

func TestAwardRejectsNonPositiveAmounts(t *testing.T) {
	a := testAllocator(t, "1000")
	for _, amount := range []decimal.Decimal{decimal.Zero, decimal.NewFromInt(-5)} {
		if _, err := a.Award("user-1", "content-1", models.RewardCreation, amount, nil, time.Now()); err == nil {
			t.Fatalf("expected amount %s to be rejected", amount)
		}
	}
}

func TestAwardIsIdempotent(t *testing.T) {
	a := testAllocator(t, "1000")
	now := time.Now()
	amount := decimal.NewFromInt(50)

	first, err := a.Award("user-1", "content-1", models.RewardCreation, amount, nil, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := a.Award("user-1", "content-1", models.RewardCreation, amount, nil, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("replay produced a different transaction: %s vs %s", first.ID, second.ID)
	}

	// The sub-pool was only debited once.
	status := a.PoolStatus()
	if !status.Remaining[models.PoolCreation].Equal(decimal.NewFromInt(350)) {
		t.Fatalf("creation remaining = %s, want 350", status.Remaining[models.PoolCreation])
	}
}

func TestMarkFailedIsTerminal(t *testing.T) {
	a := testAllocator(t, "1000")
	tx, err := a.Award("user-1", "content-1", models.RewardCreation, decimal.NewFromInt(10), nil, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	failed, err := a.MarkFailed(tx.ID, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if failed.Status != models.StatusFailed {
		t.Fatalf("status = %s, want failed", failed.Status)
	}

	if _, err := a.MarkFailed("no-such-tx", time.Now()); err == nil {
		t.Fatal("expected unknown transaction to error")
	}
}

func TestResetPoolDrainsDeferredQueue(t *testing.T) {
	a := testAllocator(t, "1000")
	now := time.Now()

	// Exhaust the creation pool, parking the third award.
	for i := 0; i < 3; i++ {
		if _, err := a.Award("user-1", fmt.Sprintf("content-%d", i), models.RewardCreation, decimal.NewFromInt(150), nil, now); err != nil {
			t.Fatalf("award %d: %v", i, err)
		}
	}
	if a.DeferredDepth() != 1 {
		t.Fatalf("deferred depth = %d, want 1", a.DeferredDepth())
	}

	drained := a.ResetPool("2025-07-02", now.Add(24*time.Hour))
	if len(drained) != 1 {
		t.Fatalf("expected 1 drained transaction, got %d", len(drained))
	}
	if drained[0].Status != models.StatusAllocated || drained[0].Period != "2025-07-02" {
		t.Fatalf("unexpected drained transaction: %+v", drained[0])
	}
	if a.DeferredDepth() != 0 {
		t.Fatalf("deferred queue should be empty, depth = %d", a.DeferredDepth())
	}
}

func TestPoolConservationUnderConcurrency(t *testing.T) {
	a := testAllocator(t, "1000")
	now := time.Now()

	// 100 workers each request 10 from a 400-capacity sub-pool: at most 40
	// can be allocated, and remaining never goes negative.
	const workers = 100
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := a.Award(fmt.Sprintf("user-%d", i), fmt.Sprintf("content-%d", i), models.RewardCreation, decimal.NewFromInt(10), nil, now)
			if err != nil {
				t.Errorf("award %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	status := a.PoolStatus()
	remaining := status.Remaining[models.PoolCreation]
	if remaining.IsNegative() {
		t.Fatalf("sub-pool went negative: %s", remaining)
	}
	if !remaining.Equal(decimal.Zero) {
		t.Fatalf("creation remaining = %s, want 0", remaining)
	}
	if status.DeferredDepth != workers-40 {
		t.Fatalf("deferred depth = %d, want %d", status.DeferredDepth, workers-40)
	}
}

func TestPoolDebitErrors(t *testing.T) {
	p := NewPool("2025-07-01", decimal.NewFromInt(1000), models.DefaultPoolSplit())

	if err := p.Debit(models.PoolReserve, decimal.NewFromInt(100)); !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("expected ErrPoolExhausted for 100 against the 50 reserve, got %v", err)
	}
	if err := p.Debit(models.PoolReserve, decimal.NewFromInt(50)); err != nil {
		t.Fatalf("exact-balance debit must succeed: %v", err)
	}
	if err := p.Debit("bogus", decimal.NewFromInt(1)); err == nil {
		t.Fatal("expected unknown sub-pool to error")
	}
}

func TestLeaderboardAndAnalytics(t *testing.T) {
	a := testAllocator(t, "1000")
	now := time.Now()

	awards := []struct {
		user   string
		amount int64
	}{
		{"alice", 120}, {"bob", 80}, {"carol", 200},
	}
	for i, aw := range awards {
		if _, err := a.Award(aw.user, fmt.Sprintf("content-%d", i), models.RewardCreation, decimal.NewFromInt(aw.amount), nil, now); err != nil {
			t.Fatalf("award: %v", err)
		}
	}

	board := a.Leaderboard(2)
	if len(board) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(board))
	}
	if board[0].UserID != "carol" || board[0].Rank != 1 {
		t.Fatalf("unexpected leader: %+v", board[0])
	}
	if board[1].UserID != "alice" || board[1].Rank != 2 {
		t.Fatalf("unexpected runner-up: %+v", board[1])
	}

	analytics := a.Analytics(now.Add(-time.Hour))
	if !analytics.TotalDistributed.Equal(decimal.NewFromInt(400)) {
		t.Fatalf("total distributed = %s, want 400", analytics.TotalDistributed)
	}
	if analytics.UniqueRecipients != 3 {
		t.Fatalf("unique recipients = %d, want 3", analytics.UniqueRecipients)
	}
	if !analytics.ByReason[models.RewardCreation].Equal(decimal.NewFromInt(400)) {
		t.Fatalf("by-reason creation = %s, want 400", analytics.ByReason[models.RewardCreation])
	}

	stats, ok := a.UserStats("alice")
	if !ok || !stats.CreationRewards.Equal(decimal.NewFromInt(120)) {
		t.Fatalf("unexpected stats for alice: %+v ok=%v", stats, ok)
	}
}
