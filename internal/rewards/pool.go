package rewards

import (
	"errors"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/EchoLayerS/EchoLayer/pkg/models"
)

// ErrPoolExhausted signals that a sub-pool cannot cover a requested amount.
// It is non-fatal: the caller defers the transaction to the next period, it
// never truncates the amount.
var ErrPoolExhausted = errors.New("reward sub-pool exhausted")

// Pool tracks one period's daily budget split across the five sub-pools.
// Sub-pools are independent counters that only decrease between resets; the
// debit path is the system's shared-mutable-state hotspot and runs under a
// single mutex.
type Pool struct {
	mu        sync.Mutex
	period    string
	budget    decimal.Decimal
	split     models.PoolSplit
	allocated map[models.SubPool]decimal.Decimal
	remaining map[models.SubPool]decimal.Decimal
}

// NewPool allocates the budget across sub-pools for a period.
func NewPool(period string, budget decimal.Decimal, split models.PoolSplit) *Pool {
	p := &Pool{
		period: period,
		budget: budget,
		split:  split,
	}
	p.arm()
	return p
}

func (p *Pool) arm() {
	p.allocated = make(map[models.SubPool]decimal.Decimal, len(models.SubPools))
	p.remaining = make(map[models.SubPool]decimal.Decimal, len(models.SubPools))
	for _, pool := range models.SubPools {
		share := p.budget.Mul(decimal.NewFromFloat(p.split.Fraction(pool)))
		p.allocated[pool] = share
		p.remaining[pool] = share
	}
}

// Period returns the period this pool is armed for.
func (p *Pool) Period() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.period
}

// Debit atomically checks and decrements a sub-pool. Returns
// ErrPoolExhausted when the remaining balance cannot cover the amount; the
// balance is left untouched and never goes negative.
func (p *Pool) Debit(pool models.SubPool, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return errors.New("debit amount must be positive")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	remaining, ok := p.remaining[pool]
	if !ok {
		return errors.New("unknown sub-pool " + string(pool))
	}
	if remaining.LessThan(amount) {
		return ErrPoolExhausted
	}
	p.remaining[pool] = remaining.Sub(amount)
	return nil
}

// Remaining returns the current balance of a sub-pool.
func (p *Pool) Remaining(pool models.SubPool) decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remaining[pool]
}

// Reset re-arms all sub-pools for a new period.
func (p *Pool) Reset(period string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.period = period
	p.arm()
}

// Status reports the externally visible pool state.
func (p *Pool) Status(deferredDepth int) models.PoolStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	status := models.PoolStatus{
		Period:        p.period,
		DailyBudget:   p.budget,
		Allocated:     make(map[models.SubPool]decimal.Decimal, len(p.allocated)),
		Remaining:     make(map[models.SubPool]decimal.Decimal, len(p.remaining)),
		DeferredDepth: deferredDepth,
	}

	spent := decimal.Zero
	for _, pool := range models.SubPools {
		status.Allocated[pool] = p.allocated[pool]
		status.Remaining[pool] = p.remaining[pool]
		spent = spent.Add(p.allocated[pool].Sub(p.remaining[pool]))
	}
	if p.budget.IsPositive() {
		utilization, _ := spent.Div(p.budget).Float64()
		status.Utilization = utilization
	}
	return status
}
