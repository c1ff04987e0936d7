// Package eventlog implements §4.6's append-only, totally-ordered event
// log. Every event is hash-chained to the one before it, generalizing the
// teacher's internal/ledger hash-chain (there: one chain per wallet, linked
// by previous_hash/hash columns) to a single chain spanning the whole run.
// Because the kernel is deterministic, the chain input is built entirely
// from tick, sequence, and payload fields — never wall-clock time or random
// UUIDs — so two runs from the same seed produce byte-identical chains
// (INV-det, INV-replay).
package eventlog

import (
	"github.com/aerugo/simcash/internal/domain"
)

// EventType names one of the log's fixed event kinds (§4.6's minimum set).
type EventType string

const (
	Arrival                 EventType = "Arrival"
	PolicyDecision          EventType = "PolicyDecision"
	RtgsImmediateSettlement EventType = "RtgsImmediateSettlement"
	QueuedInRtgs            EventType = "QueuedInRtgs"
	LsmBilateralOffset      EventType = "LsmBilateralOffset"
	LsmCycleSettlement      EventType = "LsmCycleSettlement"
	CostAccrual             EventType = "CostAccrual"
	CollateralPosted        EventType = "CollateralPosted"
	CollateralReleased      EventType = "CollateralReleased"
	TransactionWentOverdue  EventType = "TransactionWentOverdue"
	TransactionCancelled    EventType = "TransactionCancelled"
	Split                   EventType = "Split"
	EndOfDay                EventType = "EndOfDay"
)

// Event is one entry in the log: a tick, a monotonic intra-tick sequence
// number, a type, optional agent/transaction references, an arbitrary
// payload, and the hash chain linking it to its predecessor.
type Event struct {
	Tick      domain.Tick
	Sequence  int64
	Type      EventType
	AgentID   domain.AgentID // "" if not agent-scoped
	TxID      domain.TxID    // "" if not transaction-scoped
	Payload   map[string]any

	PrevHash string
	Hash     string
}
