// Package checkpoint implements §4.6/§6's save_state/load_state: a full,
// exact snapshot of simulation state, serialized with
// vmihailenco/msgpack/v5 the way the retrieval pack's bridge component
// uses it for its own wire format (msgpack.Marshal/Unmarshal over a plain
// struct). A round trip must reproduce bit-identical state, since resuming
// from a checkpoint has to continue the same deterministic sequence
// (INV-det, INV-replay).
package checkpoint

import (
	"github.com/aerugo/simcash/internal/domain"
	"github.com/aerugo/simcash/internal/eventlog"
	"github.com/vmihailenco/msgpack/v5"
)

// AgentSnapshot captures one agent's full mutable state.
type AgentSnapshot struct {
	ID               domain.AgentID
	Balance          domain.Cents
	UnsecuredCap     domain.Cents
	CollateralPosted domain.Cents
	HaircutBps       int64
	Costs            domain.CostBreakdown
	PendingCredits   domain.Cents
	Q1               []*domain.Obligation
}

// State is the full snapshot of a simulation run at a point in time:
// every agent (with its Q1), every transaction in Q2, the event log, and
// the transaction-ID counter. No RNG state is stored.
type State struct {
	CurrentTick domain.Tick
	Complete    bool

	Agents []AgentSnapshot
	Q2     []*domain.Obligation

	Events []eventlog.Event

	// NextTxSeq is the orchestrator's transaction-ID counter, snapshotted so
	// resumed runs mint the same IDs a from-scratch run would at the same
	// tick.
	NextTxSeq int64
}

// Marshal serializes s to MessagePack bytes.
func Marshal(s State) ([]byte, error) {
	return msgpack.Marshal(s)
}

// Unmarshal decodes MessagePack bytes produced by Marshal back into a
// State.
func Unmarshal(data []byte) (State, error) {
	var s State
	err := msgpack.Unmarshal(data, &s)
	return s, err
}
