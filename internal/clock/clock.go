// Package clock implements §4.1's tick driver: the strict 8-phase ordering
// every tick executes in, single-threaded and cooperative (no goroutines or
// channels run inside a tick, per §5's concurrency model). It is the one
// package that calls into policytree, settlement, costs, and eventlog
// together, wiring the kernel's components the way a conductor wires
// sections of an orchestra rather than doing any of their work itself.
package clock

import (
	"sort"

	"github.com/aerugo/simcash/internal/costs"
	"github.com/aerugo/simcash/internal/domain"
	"github.com/aerugo/simcash/internal/eventlog"
	"github.com/aerugo/simcash/internal/policytree"
	"github.com/aerugo/simcash/internal/queue"
	"github.com/aerugo/simcash/internal/settlement"
	"github.com/aerugo/simcash/internal/simconfig"
)

// TxSource produces a tick's newly arriving obligations, from either the
// stochastic generator or a scenario schedule. The clock package does not
// care which.
type TxSource interface {
	Generate(tick domain.Tick) []*domain.Obligation
}

// Trees holds one agent's three decision trees plus the constraints they
// were validated against.
type Trees struct {
	Payment    *policytree.Tree
	Bank       *policytree.Tree
	Collateral *policytree.Tree
}

// Driver owns the full live simulation state and runs one tick at a time.
type Driver struct {
	Agents map[domain.AgentID]*domain.Agent
	Q1     map[domain.AgentID]*queue.Internal
	Trees  map[domain.AgentID]Trees

	// Obligations indexes every obligation this driver has ever seen
	// arrive or split off, by ID, and is never pruned — it is how a
	// caller can still look up a transaction's final record after it
	// settles or cancels and leaves both queues.
	Obligations map[domain.TxID]*domain.Obligation

	RTGS   *queue.RTGS
	Log    *eventlog.Log
	Engine *settlement.Engine

	Source TxSource
	Costs  simconfig.CostRates
	LSM    simconfig.LSMConfig

	TicksPerDay      int64
	DeadlineCapAtEOD bool

	CurrentTick domain.Tick
	TotalTicks  int64
	Complete    bool
}

// New wires a Driver over already-constructed agents, trees, and queues.
func New(agents map[domain.AgentID]*domain.Agent, q1 map[domain.AgentID]*queue.Internal, trees map[domain.AgentID]Trees, source TxSource, cfg simconfig.Config) *Driver {
	rtgs := queue.NewRTGS()
	log := eventlog.New()
	return &Driver{
		Agents:           agents,
		Q1:               q1,
		Trees:            trees,
		Obligations:      make(map[domain.TxID]*domain.Obligation),
		RTGS:             rtgs,
		Log:              log,
		Engine:           settlement.New(agents, rtgs, log, cfg.LSM),
		Source:           source,
		Costs:            cfg.Costs,
		LSM:              cfg.LSM,
		TicksPerDay:      cfg.TicksPerDay,
		DeadlineCapAtEOD: cfg.DeadlineCapAtEOD,
		TotalTicks:       cfg.TotalTicks(),
	}
}

// Tick runs phase 0 (bank and collateral trees) and phases 1-8 once and
// advances CurrentTick. Ticking a completed
// simulation is a no-op, per §6's External Interfaces contract.
func (d *Driver) Tick() {
	if d.Complete {
		return
	}
	tick := d.CurrentTick

	d.phaseBankTree(tick)
	arrivals := d.phaseArrivals(tick)
	d.phasePolicyArrivals(tick, arrivals)
	d.phasePolicyQ1(tick)
	d.phaseRTGSImmediate(tick)
	d.phaseLSM(tick)
	d.phaseCostAccrual(tick)
	d.phaseDeferredCredit(tick)
	d.phaseEndOfDay(tick)

	d.CurrentTick++
	if d.CurrentTick >= domain.Tick(d.TotalTicks) {
		d.Complete = true
	}
}

// phaseArrivals is phase 1: pull this tick's new obligations from Source
// and log an Arrival event for each, in source order (itself deterministic).
func (d *Driver) phaseArrivals(tick domain.Tick) []*domain.Obligation {
	arrivals := d.Source.Generate(tick)
	for _, tx := range arrivals {
		d.Obligations[tx.ID] = tx
		d.Log.Append(tick, eventlog.Arrival, tx.Sender, tx.ID, map[string]any{
			"receiver": string(tx.Receiver),
			"amount":   int64(tx.Amount),
			"deadline": int64(tx.Deadline),
			"priority": tx.Priority,
		})
	}
	return arrivals
}

// phasePolicyArrivals is phase 2: each newly arrived obligation is
// evaluated against its sender's payment_tree exactly once.
func (d *Driver) phasePolicyArrivals(tick domain.Tick, arrivals []*domain.Obligation) {
	for _, tx := range arrivals {
		d.evaluateAndRoute(tick, tx)
	}
}

// phasePolicyQ1 is phase 3: every obligation currently withheld in an
// agent's Q1 is re-evaluated, in stable (agent ID, then queue position)
// order for determinism.
func (d *Driver) phasePolicyQ1(tick domain.Tick) {
	for _, agentID := range d.sortedAgentIDs() {
		q1 := d.Q1[agentID]
		if q1 == nil {
			continue
		}
		for _, tx := range q1.Items() {
			q1.Remove(tx.ID)
			d.evaluateAndRoute(tick, tx)
		}
	}
}

// evaluateAndRoute evaluates tx's sender's payment_tree and carries out the
// resulting Decision (§4.3's action semantics).
func (d *Driver) evaluateAndRoute(tick domain.Tick, tx *domain.Obligation) {
	sender := d.Agents[tx.Sender]
	trees, ok := d.Trees[tx.Sender]
	if sender == nil || !ok || trees.Payment == nil {
		return
	}

	ctx := d.buildContext(tick, sender, tx)
	decision, err := policytree.Evaluate(trees.Payment, ctx)
	if err != nil {
		return
	}

	d.Log.Append(tick, eventlog.PolicyDecision, tx.Sender, tx.ID, map[string]any{"action": string(decision.Action)})

	switch decision.Action {
	case policytree.ActionRelease, policytree.ActionSubmit:
		_ = tx.TransitionTo(domain.Released)
		if !d.Engine.AttemptSettle(tick, tx) {
			_ = d.Engine.Enqueue(tick, tx)
		}
	case policytree.ActionHold:
		d.holdInQ1(tx)
	case policytree.ActionDefer:
		d.holdInQ1(tx)
	case policytree.ActionQueue:
		_ = tx.TransitionTo(domain.Released)
		_ = d.Engine.Enqueue(tick, tx)
	case policytree.ActionSplit:
		d.splitObligation(tick, tx, decision)
	case policytree.ActionWithdraw:
		if d.Engine.Withdraw(tx.ID) {
			_ = tx.TransitionTo(domain.InQ1)
			d.holdInQ1(tx)
		}
	case policytree.ActionResubmit:
		if len(decision.Args) > 0 {
			tx.Priority = int(decision.Args[0])
		}
		_ = tx.TransitionTo(domain.Released)
		_ = d.Engine.Enqueue(tick, tx)
	default:
		d.holdInQ1(tx)
	}
}

func (d *Driver) holdInQ1(tx *domain.Obligation) {
	if tx.State != domain.InQ1 {
		_ = tx.TransitionTo(domain.InQ1)
	}
	q1 := d.Q1[tx.Sender]
	if q1 == nil {
		q1 = queue.NewInternal()
		d.Q1[tx.Sender] = q1
	}
	q1.Enqueue(tx)
}

// splitObligation implements the Split action: fan out into n children,
// floor-dividing the amount and assigning the remainder to the last child,
// charging the flat split-friction cost once. The parent's amount is never
// reduced in place (§9's design note): the parent only records its ChildIDs
// and transitions to SplitState, and its children replace it in routing.
func (d *Driver) splitObligation(tick domain.Tick, parent *domain.Obligation, decision policytree.Decision) {
	n := 2
	if len(decision.Args) > 0 && decision.Args[0] >= 2 {
		n = int(decision.Args[0])
	}
	share := int64(parent.RemainingAmount()) / int64(n)
	remainder := int64(parent.RemainingAmount()) % int64(n)

	children := make([]*domain.Obligation, 0, n)
	for i := 0; i < n; i++ {
		amt := share
		if i == n-1 {
			amt += remainder
		}
		child := &domain.Obligation{
			ID:          domain.TxID(string(parent.ID) + "-split-" + itoa(i)),
			Sender:      parent.Sender,
			Receiver:    parent.Receiver,
			Amount:      domain.Cents(amt),
			ArrivalTick: parent.ArrivalTick,
			Deadline:    parent.Deadline,
			Priority:    parent.Priority,
			Divisible:   false,
			State:       domain.Arrived,
			ParentID:    parent.ID,
		}
		children = append(children, child)
		parent.ChildIDs = append(parent.ChildIDs, child.ID)
		d.Obligations[child.ID] = child
	}

	_ = parent.TransitionTo(domain.SplitState)

	sender := d.Agents[parent.Sender]
	if sender != nil {
		sender.Costs.SplitFrictionCost += costs.SplitFriction(d.Costs)
	}
	d.Log.Append(tick, eventlog.Split, parent.Sender, parent.ID, map[string]any{
		"fanout":   n,
		"children": childIDStrings(children),
	})

	for _, child := range children {
		d.evaluateAndRoute(tick, child)
	}
}

func childIDStrings(children []*domain.Obligation) []string {
	out := make([]string, len(children))
	for i, c := range children {
		out[i] = string(c.ID)
	}
	return out
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

// phaseRTGSImmediate is phase 4: drain whatever is sitting in Q2, whether
// queued in a prior tick or earlier in this one, attempting gross
// settlement against current liquidity.
func (d *Driver) phaseRTGSImmediate(tick domain.Tick) {
	d.Engine.DrainQueue(tick)
}

// phaseLSM is phase 5: bilateral offset, then bounded multilateral cycle
// resolution over whatever remains queued.
func (d *Driver) phaseLSM(tick domain.Tick) {
	d.Engine.RunLSM(tick)
}

// phaseCostAccrual is phase 6: accrue delay cost on every still-queued
// obligation, overdraft cost on every negative balance, collateral cost on
// every posted collateral balance, and the one-off deadline penalty the
// first tick an obligation is observed past its deadline.
func (d *Driver) phaseCostAccrual(tick domain.Tick) {
	for _, agentID := range d.sortedAgentIDs() {
		agent := d.Agents[agentID]

		overdraft := costs.OverdraftCost(agent.Balance, d.Costs)
		collateral := costs.CollateralCost(agent.CollateralPosted, d.Costs)
		agent.Costs.LiquidityCost += overdraft
		agent.Costs.CollateralCost += collateral

		var delayTotal, penaltyTotal domain.Cents
		for _, tx := range d.queuedObligations(agentID) {
			delay := costs.DelayCost(tx.RemainingAmount(), tx.Priority, tx.PastDeadline, d.Costs)
			delayTotal += delay

			if tx.Deadline < tick && !tx.PastDeadline {
				tx.PastDeadline = true
				penalty := costs.DeadlinePenalty(d.Costs)
				penaltyTotal += penalty
				d.Log.Append(tick, eventlog.TransactionWentOverdue, tx.Sender, tx.ID, map[string]any{"penalty": int64(penalty)})
			}
		}
		agent.Costs.DelayCost += delayTotal
		agent.Costs.DeadlinePenalty += penaltyTotal

		if overdraft > 0 || collateral > 0 || delayTotal > 0 || penaltyTotal > 0 {
			d.Log.Append(tick, eventlog.CostAccrual, agentID, "", map[string]any{
				"overdraft":  int64(overdraft),
				"collateral": int64(collateral),
				"delay":      int64(delayTotal),
				"penalty":    int64(penaltyTotal),
			})
		}
	}
}

// phaseBankTree is phase 0: evaluate each agent's bank_tree and
// collateral_tree once per tick, ahead of arrivals, against an agent-level
// context (no specific obligation is in play, so the obligation-scoped
// fields read zero). Both trees move collateral between Balance and
// CollateralPosted; they run back to back here rather than as a separate
// named phase, since both are once-per-tick agent-level policy steps with
// no ordering dependency between them.
func (d *Driver) phaseBankTree(tick domain.Tick) {
	for _, agentID := range d.sortedAgentIDs() {
		trees, ok := d.Trees[agentID]
		if !ok {
			continue
		}
		agent := d.Agents[agentID]
		ctx := d.bankContext(tick, agent)

		if trees.Bank != nil {
			d.evaluateBankTree(tick, agentID, agent, trees.Bank, ctx)
		}
		if trees.Collateral != nil {
			d.evaluateCollateralTree(tick, agentID, agent, trees.Collateral, ctx)
		}
	}
}

func (d *Driver) bankContext(tick domain.Tick, agent *domain.Agent) policytree.Context {
	return policytree.Context{
		Balance:               float64(agent.Balance),
		EffectiveLiquidity:    float64(agent.AvailableLiquidity()),
		SystemTickInDay:       float64(int64(tick) % d.TicksPerDay),
		TicksRemainingInDay:   float64(d.TicksPerDay - (int64(tick) % d.TicksPerDay)),
		PostedCollateral:      float64(agent.CollateralPosted),
		MaxCollateralCapacity: float64(agent.UnsecuredCap),
	}
}

// evaluateBankTree moves a fixed amount, carried as the tree's first action
// argument, between Balance and CollateralPosted.
func (d *Driver) evaluateBankTree(tick domain.Tick, agentID domain.AgentID, agent *domain.Agent, tree *policytree.Tree, ctx policytree.Context) {
	decision, err := policytree.Evaluate(tree, ctx)
	if err != nil {
		return
	}

	var amount domain.Cents
	if len(decision.Args) > 0 {
		amount = domain.Cents(decision.Args[0])
	}

	switch decision.Action {
	case policytree.ActionPostCollateral:
		if amount <= 0 || amount > agent.Balance {
			return
		}
		agent.Balance -= amount
		agent.CollateralPosted += amount
		d.Log.Append(tick, eventlog.CollateralPosted, agentID, "", map[string]any{"amount": int64(amount)})
	case policytree.ActionReleaseCollateral:
		if amount <= 0 || amount > agent.CollateralPosted {
			amount = agent.CollateralPosted
		}
		agent.CollateralPosted -= amount
		agent.Balance += amount
		d.Log.Append(tick, eventlog.CollateralReleased, agentID, "", map[string]any{"amount": int64(amount)})
	}
}

// evaluateCollateralTree runs collateral_tree's narrower action set: an
// agent may post fresh collateral, carried as the tree's first action
// argument, or explicitly hold its current posture. Releasing collateral
// remains bank_tree's call.
func (d *Driver) evaluateCollateralTree(tick domain.Tick, agentID domain.AgentID, agent *domain.Agent, tree *policytree.Tree, ctx policytree.Context) {
	decision, err := policytree.Evaluate(tree, ctx)
	if err != nil {
		return
	}

	switch decision.Action {
	case policytree.ActionPostCollateral:
		var amount domain.Cents
		if len(decision.Args) > 0 {
			amount = domain.Cents(decision.Args[0])
		}
		if amount <= 0 || amount > agent.Balance {
			return
		}
		agent.Balance -= amount
		agent.CollateralPosted += amount
		d.Log.Append(tick, eventlog.CollateralPosted, agentID, "", map[string]any{"amount": int64(amount)})
	case policytree.ActionHoldCollateral:
		// explicitly keep this tick's collateral posture unchanged.
	}
}

func (d *Driver) queuedObligations(agentID domain.AgentID) []*domain.Obligation {
	var out []*domain.Obligation
	if q1 := d.Q1[agentID]; q1 != nil {
		out = append(out, q1.Items()...)
	}
	for _, tx := range d.RTGS.Sorted() {
		if tx.Sender == agentID {
			out = append(out, tx)
		}
	}
	return out
}

// phaseDeferredCredit is phase 7: apply every agent's buffered incoming
// credits to Balance, exactly once, and never let a credit buffered this
// tick feed a settlement decision made this same tick (INV-defer).
func (d *Driver) phaseDeferredCredit(tick domain.Tick) {
	for _, agentID := range d.sortedAgentIDs() {
		d.Agents[agentID].ApplyDeferredCredits()
	}
}

// phaseEndOfDay is phase 8: on the last tick of a day, charge the EOD
// penalty against everything still queued and emit one EndOfDay marker
// event. DeadlineCapAtEOD additionally caps any deadline further in the
// future than the day boundary back to the boundary itself, so the
// deadline-penalty-fires-once invariant still applies to the capped
// deadline rather than the original one.
func (d *Driver) phaseEndOfDay(tick domain.Tick) {
	if d.TicksPerDay <= 0 || (int64(tick)+1)%d.TicksPerDay != 0 {
		return
	}
	for _, agentID := range d.sortedAgentIDs() {
		var total domain.Cents
		for _, tx := range d.queuedObligations(agentID) {
			if d.DeadlineCapAtEOD && tx.Deadline > tick {
				tx.Deadline = tick
			}
			total += costs.EODPenalty(d.Costs)
		}
		if total > 0 {
			d.Agents[agentID].Costs.EODPenalty += total
		}
	}
	d.Log.Append(tick, eventlog.EndOfDay, "", "", map[string]any{"day_boundary_tick": int64(tick)})
}

func (d *Driver) buildContext(tick domain.Tick, agent *domain.Agent, tx *domain.Obligation) policytree.Context {
	q1 := d.Q1[agent.ID]
	q1Total := domain.Cents(0)
	q1Size := 0
	if q1 != nil {
		q1Total = q1.TotalValue()
		q1Size = q1.Len()
	}
	ticksRemaining := d.TicksPerDay - (int64(tick) % d.TicksPerDay)

	return policytree.Context{
		Amount:                float64(tx.RemainingAmount()),
		Priority:              float64(tx.Priority),
		TicksToDeadline:       float64(int64(tx.Deadline) - int64(tick)),
		Balance:               float64(agent.Balance),
		EffectiveLiquidity:    float64(agent.AvailableLiquidity()),
		Queue1TotalValue:      float64(q1Total),
		SystemTickInDay:       float64(int64(tick) % d.TicksPerDay),
		TicksRemainingInDay:   float64(ticksRemaining),
		PostedCollateral:      float64(agent.CollateralPosted),
		RemainingAmount:       float64(tx.RemainingAmount()),
		OutgoingQueueSize:     float64(q1Size),
		MaxCollateralCapacity: float64(agent.UnsecuredCap),
	}
}

func (d *Driver) sortedAgentIDs() []domain.AgentID {
	ids := make([]domain.AgentID, 0, len(d.Agents))
	for id := range d.Agents {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
