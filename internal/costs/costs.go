// Package costs implements §4.5's cost accrual formulas. Every rate is
// expressed in basis points and applied with floor division through
// domain.BpsOfCents, so two runs given the same integer inputs always
// accrue the same integer cents (INV-money, INV-det) — no float64 ever
// touches a balance.
package costs

import (
	"github.com/aerugo/simcash/internal/domain"
	"github.com/aerugo/simcash/internal/simconfig"
)

// DelayCost is charged once per tick an obligation spends queued (InQ1 or
// InRTGS) before settling, proportional to its remaining amount, then
// scaled by the configured priority multiplier and, once the obligation is
// overdue, the overdue multiplier. Both multipliers are bps where 10 000
// is unity (1x); leaving either at its zero value is "not configured" and
// applies no scaling.
func DelayCost(remaining domain.Cents, priority int, overdue bool, rates simconfig.CostRates) domain.Cents {
	cost := domain.BpsOfCents(remaining, rates.DelayCostBpsPerTick)
	if rates.PriorityDelayMultiplierBps > 0 {
		cost = domain.BpsOfCents(cost, 10_000+int64(priority)*rates.PriorityDelayMultiplierBps)
	}
	if overdue && rates.OverdueDelayMultiplierBps > 0 {
		cost = domain.BpsOfCents(cost, rates.OverdueDelayMultiplierBps)
	}
	return cost
}

// OverdraftCost (the spec's liquidity_cost) is charged once per tick an
// agent's balance is negative, proportional to the overdrawn amount.
func OverdraftCost(overdrawnBalance domain.Cents, rates simconfig.CostRates) domain.Cents {
	if overdrawnBalance >= 0 {
		return 0
	}
	return domain.BpsOfCents(-overdrawnBalance, rates.OverdraftCostBpsPerTick)
}

// CollateralCost is the per-tick opportunity cost of posted collateral,
// charged regardless of whether it is currently backing any obligation.
func CollateralCost(posted domain.Cents, rates simconfig.CostRates) domain.Cents {
	return domain.BpsOfCents(posted, rates.CollateralCostBpsPerTick)
}

// DeadlinePenalty is the flat, one-off charge applied the first tick an
// obligation is observed past its deadline. Callers must only invoke this
// once per obligation (see domain.Obligation.PastDeadline, which the
// clock's cost-accrual phase flips to prevent double charging).
func DeadlinePenalty(rates simconfig.CostRates) domain.Cents {
	return rates.DeadlinePenaltyCents
}

// SplitFriction is the flat, one-off charge applied when an obligation is
// divided by the Split action, regardless of fan-out count.
func SplitFriction(rates simconfig.CostRates) domain.Cents {
	return rates.SplitFrictionCents
}

// EODPenalty is the flat, one-off charge applied to every obligation still
// queued (InQ1 or InRTGS) when a day boundary is crossed.
func EODPenalty(rates simconfig.CostRates) domain.Cents {
	return rates.EODPenaltyCents
}
