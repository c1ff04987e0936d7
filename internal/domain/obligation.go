package domain

import "fmt"

// TxState is the lifecycle state of an Obligation. Overdue is modeled as
// an orthogonal flag on Obligation (PastDeadline), not a member of this
// enum, because a transaction can be InQ1 or InRTGS *and* overdue at the
// same time — the spec requires overdue-ness to remain visible to policy
// evaluation while the obligation is still being routed.
type TxState int

const (
	Arrived TxState = iota
	Released
	InQ1
	InRTGS
	Settled
	Cancelled
	SplitState // parent obligations move here once their children exist
)

func (s TxState) String() string {
	switch s {
	case Arrived:
		return "Arrived"
	case Released:
		return "Released"
	case InQ1:
		return "InQ1"
	case InRTGS:
		return "InRTGS"
	case Settled:
		return "Settled"
	case Cancelled:
		return "Cancelled"
	case SplitState:
		return "Split"
	default:
		return "Unknown"
	}
}

// legalTransitions is the closed adjacency table of allowed state moves.
// TransitionTo rejects anything not listed here, giving callers a single
// enforcement point instead of scattering state checks across the engine.
var legalTransitions = map[TxState]map[TxState]bool{
	Arrived:  {Released: true, InQ1: true, SplitState: true, Cancelled: true},
	Released: {InRTGS: true, Cancelled: true},
	InQ1:     {Released: true, InQ1: true, SplitState: true, Cancelled: true},
	InRTGS:   {Settled: true, InQ1: true, Cancelled: true},
	Settled:  {},
	Cancelled: {},
	SplitState: {},
}

// Obligation is a payment obligation between two agents: the spec's
// Transaction. Split children carry ParentID; the parent's amount is never
// reduced in place (new obligations are created instead, and the parent
// only gains ChildIDs and the SplitState state), matching §9's
// "Split obligations... do not mutate the parent in place" design note.
type Obligation struct {
	ID         TxID
	Sender     AgentID
	Receiver   AgentID
	Amount     Cents
	ArrivalTick Tick
	Deadline   Tick
	Priority   int // 0-10, declared priority; also used as internal priority
	Divisible  bool

	State        TxState
	PastDeadline bool // Overdue observable flag; see TxState doc

	ParentID TxID   // "" if not a split child
	ChildIDs []TxID // populated on the parent once split occurs

	// SubmittedTick records when the obligation entered Q2, used to order
	// Q2 FIFO within a priority class (INV-queue-order).
	SubmittedTick Tick
}

// TransitionTo enforces the legal-transition table. Returns an
// InvariantViolated-flavored error string the engine can wrap; it never
// panics, since an illegal transition is a kernel bug, not a policy bug,
// and must surface through the normal error path so a single bad policy
// interaction cannot crash the run.
func (o *Obligation) TransitionTo(next TxState) error {
	allowed, ok := legalTransitions[o.State]
	if !ok || !allowed[next] {
		return fmt.Errorf("illegal transition %s -> %s for tx %s", o.State, next, o.ID)
	}
	o.State = next
	return nil
}

// RemainingAmount is Amount for a non-split obligation. Present as its own
// accessor because policy context exposes "remaining_amount" as a field
// distinct from "amount" once partial netting has reduced an obligation in
// place during LSM bilateral offset.
func (o *Obligation) RemainingAmount() Cents { return o.Amount }
