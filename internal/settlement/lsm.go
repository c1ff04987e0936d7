package settlement

import (
	"sort"

	"github.com/aerugo/simcash/internal/domain"
	"github.com/aerugo/simcash/internal/eventlog"
)

// RunLSM performs one tick's liquidity-saving pass over the RTGS queue:
// first bilateral offset, then bounded multilateral cycle resolution,
// exactly as phase 5 specifies. Both passes only ever move obligations that
// are already queued in Q2; neither touches Q1.
func (e *Engine) RunLSM(tick domain.Tick) {
	if !e.LSM.Enabled {
		return
	}
	e.bilateralOffset(tick)
	e.multilateralCycles(tick)
}

type pairKey struct {
	lo, hi domain.AgentID
}

// bilateralOffset nets reciprocal obligations between every pair of agents
// with queued transactions in both directions. Pairs are processed in
// lexicographic (lo, hi) agent-ID order so the result is independent of
// queue iteration order (INV-det). Full nets settle with no balance change
// (the offsetting legs cancel exactly); a partial net reduces the larger
// leg's remaining amount in place and leaves it queued for gross
// settlement or a later pass.
func (e *Engine) bilateralOffset(tick domain.Tick) {
	byPair := make(map[pairKey]map[domain.AgentID][]*domain.Obligation)
	for _, tx := range e.RTGS.Sorted() {
		if tx.Sender == tx.Receiver {
			continue
		}
		lo, hi := tx.Sender, tx.Receiver
		if hi < lo {
			lo, hi = hi, lo
		}
		k := pairKey{lo, hi}
		if byPair[k] == nil {
			byPair[k] = make(map[domain.AgentID][]*domain.Obligation)
		}
		byPair[k][tx.Sender] = append(byPair[k][tx.Sender], tx)
	}

	keys := make([]pairKey, 0, len(byPair))
	for k := range byPair {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].lo != keys[j].lo {
			return keys[i].lo < keys[j].lo
		}
		return keys[i].hi < keys[j].hi
	})

	for _, k := range keys {
		dirs := byPair[k]
		forward := dirs[k.lo]
		backward := dirs[k.hi]
		if len(forward) == 0 || len(backward) == 0 {
			continue
		}
		e.netDirectionPair(tick, forward, backward)
	}
}

// netDirectionPair nets two FIFO-ordered obligation lists flowing in
// opposite directions between the same two agents, consuming from the
// front of each list until one side is exhausted. Each matched pair emits
// its own LsmBilateralOffset event carrying both legs' pre-offset amounts,
// per §4.4.
func (e *Engine) netDirectionPair(tick domain.Tick, forward, backward []*domain.Obligation) {
	fi, bi := 0, 0
	for fi < len(forward) && bi < len(backward) {
		f, b := forward[fi], backward[bi]
		amountA, amountB := f.RemainingAmount(), b.RemainingAmount()
		net := amountA
		if amountB < net {
			net = amountB
		}
		if net <= 0 {
			break
		}
		f.Amount -= net
		b.Amount -= net

		e.Log.Append(tick, eventlog.LsmBilateralOffset, f.Sender, "", map[string]any{
			"agent_a":  string(f.Sender),
			"agent_b":  string(b.Sender),
			"tx_id_a":  string(f.ID),
			"tx_id_b":  string(b.ID),
			"amount_a": int64(amountA),
			"amount_b": int64(amountB),
		})

		if f.RemainingAmount() == 0 {
			_ = f.TransitionTo(domain.Settled)
			e.RTGS.Remove(f.ID)
			fi++
		}
		if b.RemainingAmount() == 0 {
			_ = b.TransitionTo(domain.Settled)
			e.RTGS.Remove(b.ID)
			bi++
		}
	}
}

// multilateralCycles searches the current RTGS queue for settlement cycles
// (A owes B owes C ... owes A), bounded by MaxCycleLength, MaxCyclesPerTick,
// and MaxIterations. Candidate cycles are found by bounded depth-first
// search exploring edges in sorted order, so the same cycle is found
// regardless of map iteration order (INV-det). Every cycle found is settled
// at its Δ = min edge weight, which is always liquidity-neutral across the
// cycle, guaranteeing progress (the minimum edge always reaches zero) each
// pass.
func (e *Engine) multilateralCycles(tick domain.Tick) {
	settledThisPass := 0
	iterations := 0

	for settledThisPass < e.LSM.MaxCyclesPerTick {
		adj := e.buildAdjacency()
		agentIDs := sortedAgentIDs(adj)

		var found []*domain.Obligation
		for _, start := range agentIDs {
			if iterations >= e.LSM.MaxIterations {
				return
			}
			iterations++
			path := []*domain.Obligation{}
			visited := map[domain.AgentID]bool{start: true}
			if cyc := dfsCycle(adj, start, start, path, visited, e.LSM.MaxCycleLength, &iterations, e.LSM.MaxIterations); cyc != nil {
				found = cyc
				break
			}
		}

		if found == nil {
			return
		}
		e.settleCycle(tick, found)
		settledThisPass++
	}
}

type edge struct {
	tx   *domain.Obligation
	from domain.AgentID
	to   domain.AgentID
}

func (e *Engine) buildAdjacency() map[domain.AgentID][]edge {
	adj := make(map[domain.AgentID][]edge)
	for _, tx := range e.RTGS.Sorted() {
		if tx.Sender == tx.Receiver {
			continue
		}
		adj[tx.Sender] = append(adj[tx.Sender], edge{tx: tx, from: tx.Sender, to: tx.Receiver})
	}
	for k := range adj {
		sort.Slice(adj[k], func(i, j int) bool { return adj[k][i].tx.ID < adj[k][j].tx.ID })
	}
	return adj
}

func sortedAgentIDs(adj map[domain.AgentID][]edge) []domain.AgentID {
	ids := make([]domain.AgentID, 0, len(adj))
	for k := range adj {
		ids = append(ids, k)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// dfsCycle searches for a simple cycle back to target, exploring edges in
// deterministic (sorted) order and bounding both depth and total visited
// nodes by maxLen and maxIterations.
func dfsCycle(adj map[domain.AgentID][]edge, current, target domain.AgentID, path []*domain.Obligation, visited map[domain.AgentID]bool, maxLen int, iterations *int, maxIterations int) []*domain.Obligation {
	if len(path) >= maxLen {
		return nil
	}
	for _, ed := range adj[current] {
		if *iterations >= maxIterations {
			return nil
		}
		*iterations++
		if ed.to == target && len(path) >= 1 {
			return append(append([]*domain.Obligation{}, path...), ed.tx)
		}
		if visited[ed.to] {
			continue
		}
		visited[ed.to] = true
		if cyc := dfsCycle(adj, ed.to, target, append(path, ed.tx), visited, maxLen, iterations, maxIterations); cyc != nil {
			return cyc
		}
		delete(visited, ed.to)
	}
	return nil
}

// settleCycle applies §4.4's multilateral algorithm: let Δ = the smallest
// remaining amount among cyc's edges, debit each sender Δ, buffer Δ to
// each receiver (INV-defer), and reduce every edge by Δ. A Δ-net over a
// simple cycle is always liquidity-neutral — every participant is exactly
// one sender (−Δ) and one receiver (+Δ) — so no feasibility gate is
// needed; Δ is bounded by the cycle's own smallest edge, never by a
// participant's liquidity. The edge(s) at the minimum settle fully this
// pass; any edge with amount left over stays queued, reduced, for a later
// pass to clear.
func (e *Engine) settleCycle(tick domain.Tick, cyc []*domain.Obligation) {
	delta := cyc[0].RemainingAmount()
	for _, tx := range cyc[1:] {
		if r := tx.RemainingAmount(); r < delta {
			delta = r
		}
	}

	ids := make([]string, len(cyc))
	for i, tx := range cyc {
		sender := e.Agents[tx.Sender]
		receiver := e.Agents[tx.Receiver]
		sender.Balance -= delta
		receiver.BufferCredit(delta)
		tx.Amount -= delta
		if tx.RemainingAmount() == 0 {
			_ = tx.TransitionTo(domain.Settled)
			e.RTGS.Remove(tx.ID)
		}
		ids[i] = string(tx.ID)
	}
	e.Log.Append(tick, eventlog.LsmCycleSettlement, "", "", map[string]any{
		"cycle":  ids,
		"amount": int64(delta),
	})
}
