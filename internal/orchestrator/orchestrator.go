// Package orchestrator implements §6's external interface: the single
// entry point a host process drives a simulation through. It owns every
// piece of mutable state (per §5, "all mutable state is owned by one
// orchestrator instance") and exposes construction, the tick loop,
// transaction submission, read-only state queries, checkpointing, and the
// policy schema/validation interfaces.
package orchestrator

import (
	"sort"

	"github.com/aerugo/simcash/internal/checkpoint"
	"github.com/aerugo/simcash/internal/clock"
	"github.com/aerugo/simcash/internal/domain"
	"github.com/aerugo/simcash/internal/eventlog"
	"github.com/aerugo/simcash/internal/generator"
	"github.com/aerugo/simcash/internal/policytree"
	"github.com/aerugo/simcash/internal/queue"
	"github.com/aerugo/simcash/internal/rngseed"
	"github.com/aerugo/simcash/internal/scenario"
	"github.com/aerugo/simcash/internal/simconfig"
	"github.com/aerugo/simcash/internal/simerrors"
)

// TickResult is the per-call summary tick() returns: a cursor into the
// event log for everything that tick produced. Ticking an already-completed
// run returns a result with no events and only Completed set (§6's no-op
// contract).
type TickResult struct {
	Tick      domain.Tick
	Events    []eventlog.Event
	Completed bool
}

// SystemMetrics is get_system_metrics()'s return shape.
type SystemMetrics struct {
	TotalArrivals    int64
	TotalSettlements int64
	TotalLSMReleases int64
	SettlementRate   float64
}

// Orchestrator is the top-level simulation handle.
type Orchestrator struct {
	driver      *clock.Driver
	src         *staticSource
	constraints policytree.ScenarioConstraints
}

// staticSource is the TxSource backing scenario-mode, stochastic, and
// direct-submission arrivals alike: scheduled/generated/submitted
// obligations all flow through the same per-tick buffer and share one
// monotonic ID counter, so resuming from a checkpoint mints the same IDs a
// from-scratch run would at the same tick.
type staticSource struct {
	scheduled map[domain.Tick][]*domain.Obligation
	gen       *generator.Generator
	seq       int64
}

func (s *staticSource) Generate(tick domain.Tick) []*domain.Obligation {
	out := append([]*domain.Obligation{}, s.scheduled[tick]...)
	delete(s.scheduled, tick)
	if s.gen != nil {
		out = append(out, s.gen.Generate(tick, s.mintID)...)
	}
	return out
}

func (s *staticSource) inject(tick domain.Tick, tx *domain.Obligation) {
	s.scheduled[tick] = append(s.scheduled[tick], tx)
}

func (s *staticSource) mintID() domain.TxID {
	s.seq++
	return domain.TxID(itoa64(s.seq))
}

// New validates config and every agent's policy trees against constraints,
// then constructs a ready-to-tick Orchestrator. Configuration and policy
// errors are fatal at construction, per §7.
func New(cfg simconfig.Config, trees map[domain.AgentID]clock.Trees, constraints policytree.ScenarioConstraints, sched *scenario.Schedule, profiles []generator.AgentProfile, seeds *rngseed.Manager) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var allErrs simerrors.List
	for _, t := range trees {
		check := func(tree *policytree.Tree) {
			if tree == nil {
				return
			}
			allErrs = append(allErrs, policytree.ValidatePolicy(tree, constraints)...)
		}
		check(t.Payment)
		check(t.Bank)
		check(t.Collateral)
	}
	if err := allErrs.ErrOrNil(); err != nil {
		return nil, err
	}

	agents := make(map[domain.AgentID]*domain.Agent, len(cfg.Agents))
	q1 := make(map[domain.AgentID]*queue.Internal, len(cfg.Agents))
	for _, a := range cfg.Agents {
		agents[a.ID] = &domain.Agent{
			ID:               a.ID,
			Balance:          a.OpeningBalance,
			UnsecuredCap:     a.UnsecuredCap,
			CollateralPosted: a.CollateralPosted,
			HaircutBps:       a.HaircutBps,
		}
		q1[a.ID] = queue.NewInternal()
	}

	src := &staticSource{scheduled: make(map[domain.Tick][]*domain.Obligation)}
	if sched != nil {
		for tick := domain.Tick(0); int64(tick) < cfg.TotalTicks(); tick++ {
			for _, tx := range sched.ToObligations(tick, src.mintID) {
				src.inject(tick, tx)
			}
		}
	}
	if seeds != nil && len(profiles) > 0 {
		src.gen = generator.New(seeds, profiles)
	}

	driver := clock.New(agents, q1, trees, src, cfg)

	return &Orchestrator{driver: driver, src: src, constraints: constraints}, nil
}

// Tick runs one tick and returns a cursor over the events it produced. A
// completed simulation returns TickResult{Completed: true}, with no events
// (§6).
func (o *Orchestrator) Tick() TickResult {
	if o.driver.Complete {
		return TickResult{Completed: true}
	}
	tick := o.driver.CurrentTick
	before := o.driver.Log.Len()
	o.driver.Tick()
	all := o.driver.Log.GetAllEvents()
	return TickResult{Tick: tick, Events: all[before:], Completed: o.driver.Complete}
}

// CurrentTick returns the next tick to be executed.
func (o *Orchestrator) CurrentTick() domain.Tick { return o.driver.CurrentTick }

// GetTickEvents returns every event recorded during tick.
func (o *Orchestrator) GetTickEvents(tick domain.Tick) []eventlog.Event {
	return o.driver.Log.GetTickEvents(tick)
}

// GetAllEvents returns the full event log in append order.
func (o *Orchestrator) GetAllEvents() []eventlog.Event {
	return o.driver.Log.GetAllEvents()
}

// SubmitTransaction injects a transaction directly, bypassing stochastic
// or scenario arrivals, for the current tick. Returns TransactionInvalid if
// sender/receiver is unknown, amount is non-positive, or deadline is not
// strictly after the current tick.
func (o *Orchestrator) SubmitTransaction(sender, receiver domain.AgentID, amount domain.Cents, deadline domain.Tick, priority int, divisible bool) (domain.TxID, error) {
	if _, ok := o.driver.Agents[sender]; !ok {
		return "", simerrors.Wrap(simerrors.TransactionInvalid, simerrors.ErrUnknownAgent, "sender")
	}
	if _, ok := o.driver.Agents[receiver]; !ok {
		return "", simerrors.Wrap(simerrors.TransactionInvalid, simerrors.ErrUnknownAgent, "receiver")
	}
	if amount <= 0 {
		return "", simerrors.Wrap(simerrors.TransactionInvalid, simerrors.ErrNonPositiveAmount, "amount")
	}
	if deadline <= o.driver.CurrentTick {
		return "", simerrors.Wrap(simerrors.TransactionInvalid, simerrors.ErrDeadlineNotInFuture, "deadline")
	}

	id := o.src.mintID()
	o.src.inject(o.driver.CurrentTick, &domain.Obligation{
		ID: id, Sender: sender, Receiver: receiver, Amount: amount,
		ArrivalTick: o.driver.CurrentTick, Deadline: deadline, Priority: priority,
		Divisible: divisible, State: domain.Arrived,
	})
	return id, nil
}

// WithdrawFromRtgs is the external-caller counterpart to the policy action
// of the same name: it pulls tx out of Q2 and parks it in its sender's Q1,
// for a caller driving the simulation between ticks rather than a policy
// tree evaluated during one. Returns OperationInvalid if tx is not
// currently in Q2.
func (o *Orchestrator) WithdrawFromRtgs(id domain.TxID) error {
	tx := o.findInRTGS(id)
	if tx == nil {
		return simerrors.Wrap(simerrors.OperationInvalid, simerrors.ErrTxNotInQ2, string(id))
	}
	o.driver.RTGS.Remove(id)
	_ = tx.TransitionTo(domain.InQ1)
	q1 := o.driver.Q1[tx.Sender]
	if q1 == nil {
		q1 = queue.NewInternal()
		o.driver.Q1[tx.Sender] = q1
	}
	q1.Enqueue(tx)
	return nil
}

// ResubmitToRtgs is the external-caller counterpart to the policy action
// of the same name: it
// pulls tx out of its sender's Q1, applies the new priority, and pushes it
// back into Q2. Returns OperationInvalid if tx is not currently in Q1.
func (o *Orchestrator) ResubmitToRtgs(id domain.TxID, newPriority int) error {
	for _, q1 := range o.driver.Q1 {
		for _, tx := range q1.Items() {
			if tx.ID != id {
				continue
			}
			q1.Remove(id)
			tx.Priority = newPriority
			_ = tx.TransitionTo(domain.Released)
			return o.driver.Engine.Enqueue(o.driver.CurrentTick, tx)
		}
	}
	return simerrors.Wrap(simerrors.OperationInvalid, simerrors.ErrTxNotInQ1, string(id))
}

func (o *Orchestrator) findInRTGS(id domain.TxID) *domain.Obligation {
	for _, tx := range o.driver.RTGS.Sorted() {
		if tx.ID == id {
			return tx
		}
	}
	return nil
}

func itoa64(i int64) string {
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
	return "tx" + string(buf[pos:])
}

// GetAgentBalance returns an agent's current balance.
func (o *Orchestrator) GetAgentBalance(id domain.AgentID) (domain.Cents, error) {
	a, ok := o.driver.Agents[id]
	if !ok {
		return 0, simerrors.Wrap(simerrors.OperationInvalid, simerrors.ErrUnknownAgent, string(id))
	}
	return a.Balance, nil
}

// GetAgentUnsecuredCap returns an agent's configured unsecured credit cap.
func (o *Orchestrator) GetAgentUnsecuredCap(id domain.AgentID) (domain.Cents, error) {
	a, ok := o.driver.Agents[id]
	if !ok {
		return 0, simerrors.Wrap(simerrors.OperationInvalid, simerrors.ErrUnknownAgent, string(id))
	}
	return a.UnsecuredCap, nil
}

// GetQueue1Size returns how many obligations an agent currently withholds
// in Q1.
func (o *Orchestrator) GetQueue1Size(id domain.AgentID) int {
	if q := o.driver.Q1[id]; q != nil {
		return q.Len()
	}
	return 0
}

// GetRTGSQueueContents returns every transaction ID currently queued in
// Q2, in priority order.
func (o *Orchestrator) GetRTGSQueueContents() []domain.TxID {
	sorted := o.driver.RTGS.Sorted()
	out := make([]domain.TxID, len(sorted))
	for i, tx := range sorted {
		out[i] = tx.ID
	}
	return out
}

// GetTransactionDetails returns the full record for tx_id, including
// obligations that have already settled, split, or cancelled and so no
// longer sit in Q1 or Q2.
func (o *Orchestrator) GetTransactionDetails(id domain.TxID) (*domain.Obligation, bool) {
	tx, ok := o.driver.Obligations[id]
	return tx, ok
}

// GetOverdueTransactions returns every queued obligation currently flagged
// past its deadline.
func (o *Orchestrator) GetOverdueTransactions() []*domain.Obligation {
	var out []*domain.Obligation
	for _, tx := range o.driver.RTGS.Sorted() {
		if tx.PastDeadline {
			out = append(out, tx)
		}
	}
	for _, q := range o.driver.Q1 {
		for _, tx := range q.Items() {
			if tx.PastDeadline {
				out = append(out, tx)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetTransactionsNearDeadline returns every queued obligation whose
// deadline is within the given number of ticks of now.
func (o *Orchestrator) GetTransactionsNearDeadline(withinTicks int64) []*domain.Obligation {
	cutoff := o.driver.CurrentTick + domain.Tick(withinTicks)
	var out []*domain.Obligation
	for _, tx := range o.driver.RTGS.Sorted() {
		if tx.Deadline <= cutoff {
			out = append(out, tx)
		}
	}
	for _, q := range o.driver.Q1 {
		for _, tx := range q.Items() {
			if tx.Deadline <= cutoff {
				out = append(out, tx)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetSystemMetrics computes aggregate counters by scanning the event log.
func (o *Orchestrator) GetSystemMetrics() SystemMetrics {
	var m SystemMetrics
	for _, e := range o.driver.Log.GetAllEvents() {
		switch e.Type {
		case eventlog.Arrival:
			m.TotalArrivals++
		case eventlog.RtgsImmediateSettlement:
			m.TotalSettlements++
		case eventlog.LsmBilateralOffset, eventlog.LsmCycleSettlement:
			m.TotalLSMReleases++
		}
	}
	if m.TotalArrivals > 0 {
		m.SettlementRate = float64(m.TotalSettlements+m.TotalLSMReleases) / float64(m.TotalArrivals)
	}
	return m
}

// GetPolicySchema returns a machine-readable description of every allowed
// field, operator, and action per tree type.
func (o *Orchestrator) GetPolicySchema() policytree.Schema {
	return policytree.BuildSchema(o.constraints)
}

// ValidatePolicy runs §4.3's static checks against the orchestrator's
// scenario constraints, returning every violation found.
func (o *Orchestrator) ValidatePolicy(tree *policytree.Tree) error {
	return policytree.ValidatePolicy(tree, o.constraints).ErrOrNil()
}

// SaveState serializes the full live state to MessagePack bytes.
func (o *Orchestrator) SaveState() ([]byte, error) {
	snap := checkpoint.State{
		CurrentTick: o.driver.CurrentTick,
		Complete:    o.driver.Complete,
		Q2:          o.driver.RTGS.Sorted(),
		Events:      o.driver.Log.GetAllEvents(),
		NextTxSeq:   o.src.seq,
	}
	for id, a := range o.driver.Agents {
		snap.Agents = append(snap.Agents, checkpoint.AgentSnapshot{
			ID: id, Balance: a.Balance, UnsecuredCap: a.UnsecuredCap,
			CollateralPosted: a.CollateralPosted, HaircutBps: a.HaircutBps,
			Costs: a.Costs, PendingCredits: a.PendingCredits(),
			Q1: o.driver.Q1[id].Items(),
		})
	}
	sort.Slice(snap.Agents, func(i, j int) bool { return snap.Agents[i].ID < snap.Agents[j].ID })
	return checkpoint.Marshal(snap)
}

// LoadState replaces the orchestrator's live state with a decoded
// checkpoint, restoring every agent, Q1, Q2, and event-log entry so a
// subsequent Tick() continues exactly where the snapshot was taken
// (§6's round-trip identity contract).
func (o *Orchestrator) LoadState(data []byte) error {
	snap, err := checkpoint.Unmarshal(data)
	if err != nil {
		return simerrors.Wrap(simerrors.OperationInvalid, simerrors.ErrCheckpointDecodeError, err.Error())
	}

	o.driver.CurrentTick = snap.CurrentTick
	o.driver.Complete = snap.Complete
	o.src.seq = snap.NextTxSeq

	for _, as := range snap.Agents {
		agent := &domain.Agent{
			ID: as.ID, Balance: as.Balance, UnsecuredCap: as.UnsecuredCap,
			CollateralPosted: as.CollateralPosted, HaircutBps: as.HaircutBps,
			Costs: as.Costs,
		}
		agent.BufferCredit(as.PendingCredits)
		o.driver.Agents[as.ID] = agent

		q := queue.NewInternal()
		for _, tx := range as.Q1 {
			q.Enqueue(tx)
		}
		o.driver.Q1[as.ID] = q
	}

	o.driver.RTGS = queue.NewRTGS()
	for _, tx := range snap.Q2 {
		o.driver.RTGS.Push(tx)
	}
	o.driver.Engine.RTGS = o.driver.RTGS

	restoredLog := eventlog.New()
	for _, e := range snap.Events {
		restoredLog.Append(e.Tick, e.Type, e.AgentID, e.TxID, e.Payload)
	}
	o.driver.Log = restoredLog
	o.driver.Engine.Log = restoredLog

	return nil
}
