// Package settlement implements §4.4's settlement engine: RTGS immediate
// (gross) settlement, and the LSM's bilateral-offset and multilateral-cycle
// netting passes. Grounded on the teacher's
// internal/blockchain/banking/lsm.go GridlockResolver — this keeps its
// shape (a resolver holding participant balances and a pending-obligation
// queue) but settles gross first and nets only what remains queued, works in
// int64 cents instead of big.Int, widening through domain.BpsOfCents only
// where bps math is involved, and never mutates Balance outside the
// deferred-credit discipline (INV-defer).
package settlement

import (
	"github.com/aerugo/simcash/internal/domain"
	"github.com/aerugo/simcash/internal/eventlog"
	"github.com/aerugo/simcash/internal/queue"
	"github.com/aerugo/simcash/internal/simconfig"
)

// Engine holds the live references the settlement algorithms operate over.
// It owns no state of its own; Agents, RTGS, and Log are supplied by the
// clock driver that owns a run's lifetime.
type Engine struct {
	Agents map[domain.AgentID]*domain.Agent
	RTGS   *queue.RTGS
	Log    *eventlog.Log
	LSM    simconfig.LSMConfig
}

// New builds an Engine over the given live references.
func New(agents map[domain.AgentID]*domain.Agent, rtgs *queue.RTGS, log *eventlog.Log, lsm simconfig.LSMConfig) *Engine {
	return &Engine{Agents: agents, RTGS: rtgs, Log: log, LSM: lsm}
}

// AttemptSettle tries to settle tx gross, immediately, against the sender's
// current available liquidity. On success the sender is debited now, the
// receiver's credit is buffered (INV-defer), tx is marked Settled, and an
// RtgsImmediateSettlement event is logged. On failure tx is left untouched
// for the caller to queue.
func (e *Engine) AttemptSettle(tick domain.Tick, tx *domain.Obligation) bool {
	sender := e.Agents[tx.Sender]
	receiver := e.Agents[tx.Receiver]
	if sender == nil || receiver == nil {
		return false
	}
	amt := tx.RemainingAmount()
	if sender.AvailableLiquidity() < amt {
		return false
	}

	sender.Balance -= amt
	receiver.BufferCredit(amt)
	if tx.State != domain.InRTGS {
		_ = tx.TransitionTo(domain.InRTGS)
	}
	_ = tx.TransitionTo(domain.Settled)

	e.Log.Append(tick, eventlog.RtgsImmediateSettlement, tx.Sender, tx.ID, map[string]any{
		"receiver": string(tx.Receiver),
		"amount":   int64(amt),
	})
	return true
}

// Enqueue pushes tx into the central RTGS queue and logs QueuedInRtgs. Used
// when AttemptSettle fails and when a policy action routes a transaction
// straight to Q2 (Queue, ResubmitToRtgs).
func (e *Engine) Enqueue(tick domain.Tick, tx *domain.Obligation) error {
	if err := tx.TransitionTo(domain.InRTGS); err != nil {
		return err
	}
	tx.SubmittedTick = tick
	e.RTGS.Push(tx)
	e.Log.Append(tick, eventlog.QueuedInRtgs, tx.Sender, tx.ID, map[string]any{
		"receiver": string(tx.Receiver),
		"amount":   int64(tx.RemainingAmount()),
		"priority": tx.Priority,
	})
	return nil
}

// Withdraw removes tx from the RTGS queue without settling it, for the
// WithdrawFromRtgs policy action. The caller is responsible for then moving
// tx into Q1 or another state.
func (e *Engine) Withdraw(id domain.TxID) bool {
	return e.RTGS.Remove(id)
}

// DrainQueue walks the RTGS queue once in priority order, settling whatever
// it can with each agent's current liquidity and leaving the rest queued.
// It is phase 4's pass over everything resident in Q2: obligations queued in
// a prior tick and those queued earlier in this tick (by the Queue or
// ResubmitToRtgs actions, or after a failed AttemptSettle on release).
func (e *Engine) DrainQueue(tick domain.Tick) {
	pending := e.RTGS.Sorted()
	stillQueued := make([]*domain.Obligation, 0, len(pending))
	for _, tx := range pending {
		if e.AttemptSettle(tick, tx) {
			e.RTGS.Remove(tx.ID)
		} else {
			stillQueued = append(stillQueued, tx)
		}
	}
	_ = stillQueued // queue already reflects removals; nothing left to push back
}
