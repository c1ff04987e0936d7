package domain

// CostBreakdown holds an agent's accumulated cost counters, all integer
// cents, monotonically non-decreasing across a run. Field names are
// canonical — carried over from the retrieval pack's
// shared/data_contracts.py CostBreakdownContract, which both a CLI display
// layer and an API layer were required to agree on. liquidity_cost there
// is this kernel's overdraft_cost; deadline_penalty (never penalty_cost)
// is the one-off deadline charge.
type CostBreakdown struct {
	LiquidityCost     Cents // overdraft/borrowing cost accrued this run
	DelayCost         Cents // time-based delay cost
	CollateralCost    Cents // opportunity cost of posted collateral
	DeadlinePenalty   Cents // one-time charge when a tx first goes overdue
	SplitFrictionCost Cents // one-time charge per Split event
	EODPenalty        Cents // charge per obligation still queued at day end
}

// TotalCost sums every category. Computed, never stored, so it can never
// drift from its components.
func (c CostBreakdown) TotalCost() Cents {
	return c.LiquidityCost + c.DelayCost + c.CollateralCost +
		c.DeadlinePenalty + c.SplitFrictionCost + c.EODPenalty
}

// Add returns the element-wise sum of two breakdowns.
func (c CostBreakdown) Add(o CostBreakdown) CostBreakdown {
	return CostBreakdown{
		LiquidityCost:     c.LiquidityCost + o.LiquidityCost,
		DelayCost:         c.DelayCost + o.DelayCost,
		CollateralCost:    c.CollateralCost + o.CollateralCost,
		DeadlinePenalty:   c.DeadlinePenalty + o.DeadlinePenalty,
		SplitFrictionCost: c.SplitFrictionCost + o.SplitFrictionCost,
		EODPenalty:        c.EODPenalty + o.EODPenalty,
	}
}

// Agent is a participant bank in the closed economy. The kernel owns every
// Agent; policies only ever see a read-only Context view (see
// internal/policytree).
type Agent struct {
	ID AgentID

	Balance          Cents // signed; may go negative within credit+collateral backing
	UnsecuredCap     Cents // non-negative unsecured credit cap
	CollateralPosted Cents // non-negative posted collateral
	HaircutBps       int64 // basis points haircut applied to collateral backing

	// Q1 (the agent's internal withholding queue) is not stored here: it
	// lives in internal/queue.Internal, owned by the orchestrator, to avoid
	// a domain<->queue import cycle.

	Costs CostBreakdown

	// pendingCredits accumulates this tick's deferred incoming credits,
	// applied to Balance only in phase 7 and cleared immediately after
	// (INV-defer). See internal/domain's design note: modeled as a flat
	// per-agent accumulator, not a secondary queue.
	pendingCredits Cents
}

// AvailableLiquidity is balance + unsecured credit + collateral backing
// after haircut — the spec's "effective liquidity".
func (a *Agent) AvailableLiquidity() Cents {
	backing := widenMulDivBps(int64(a.CollateralPosted), 10_000-a.HaircutBps, 10_000)
	return a.Balance + a.UnsecuredCap + Cents(backing)
}

// Liquidity is balance + unsecured credit, ignoring collateral backing —
// the canonical AgentStateContract.liquidity field from the retrieval
// pack's shared data contracts.
func (a *Agent) Liquidity() Cents {
	return a.Balance + a.UnsecuredCap
}

// Headroom is remaining unused unsecured credit.
func (a *Agent) Headroom() Cents {
	drawn := Cents(0)
	if a.Balance < 0 {
		drawn = -a.Balance
	}
	h := a.UnsecuredCap - drawn
	if h < 0 {
		return 0
	}
	return h
}

// BufferCredit adds amt to this tick's deferred-credit accumulator. It does
// NOT touch Balance — that only happens in ApplyDeferredCredits (phase 7).
func (a *Agent) BufferCredit(amt Cents) {
	a.pendingCredits += amt
}

// ApplyDeferredCredits moves the tick's buffered credits into Balance and
// clears the accumulator. Returns the amount applied, for event emission.
func (a *Agent) ApplyDeferredCredits() Cents {
	applied := a.pendingCredits
	a.Balance += applied
	a.pendingCredits = 0
	return applied
}

// PendingCredits reports the current tick's unapplied buffered credit,
// read-only (used by property tests asserting INV-defer).
func (a *Agent) PendingCredits() Cents { return a.pendingCredits }

// widenMulDivBps computes floor(amount * numBps / denBps) widening the
// intermediate product through a 128-bit-equivalent big.Int product so
// multi-day accrual on large balances cannot overflow a 64-bit
// multiplication, per §9's overflow note. Grounded on the teacher's
// internal/blockchain/banking/lsm.go, which already reaches for math/big
// to keep obligation amounts exact; this generalizes that same import to
// the bps/cents widening the cost model requires.
func widenMulDivBps(amount, numBps, denBps int64) int64 {
	return mulDivFloor(amount, numBps, denBps)
}

// BpsOfCents computes floor(amount * bps / 10_000), the cost model's basic
// rate-application primitive, exported for internal/costs to reuse the same
// overflow-safe widening this package uses internally.
func BpsOfCents(amount Cents, bps int64) Cents {
	return Cents(mulDivFloor(int64(amount), bps, 10_000))
}
