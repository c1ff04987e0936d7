package eventlog

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/aerugo/simcash/internal/domain"
)

const genesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Log is the append-only, single-writer event log for one simulation run.
type Log struct {
	events   []Event
	lastHash string
	seq      int64
}

// New returns an empty log, chained from the genesis hash.
func New() *Log {
	return &Log{lastHash: genesisHash}
}

// Append records one event, computing its hash from the chain so far, and
// returns the stored Event (with Sequence and hash fields populated).
func (l *Log) Append(tick domain.Tick, eventType EventType, agentID domain.AgentID, txID domain.TxID, payload map[string]any) Event {
	e := Event{
		Tick:     tick,
		Sequence: l.seq,
		Type:     eventType,
		AgentID:  agentID,
		TxID:     txID,
		Payload:  payload,
		PrevHash: l.lastHash,
	}
	e.Hash = calculateHash(e)
	l.events = append(l.events, e)
	l.lastHash = e.Hash
	l.seq++
	return e
}

// GetTickEvents returns every event recorded during tick, in append order.
func (l *Log) GetTickEvents(tick domain.Tick) []Event {
	var out []Event
	for _, e := range l.events {
		if e.Tick == tick {
			out = append(out, e)
		}
	}
	return out
}

// GetAllEvents returns the full log in append order. The slice is a
// defensive copy.
func (l *Log) GetAllEvents() []Event {
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// Len reports how many events have been recorded.
func (l *Log) Len() int { return len(l.events) }

// VerifyChain recomputes every event's hash from its stored fields and
// confirms it matches both the stored Hash and the next event's PrevHash,
// detecting any tampering or corruption of the in-memory or checkpointed
// log.
func (l *Log) VerifyChain() bool {
	prev := genesisHash
	for _, e := range l.events {
		if e.PrevHash != prev {
			return false
		}
		if calculateHash(e) != e.Hash {
			return false
		}
		prev = e.Hash
	}
	return true
}

// calculateHash mirrors the teacher's ledger chain formula (SHA256 of the
// concatenated previous hash plus entry fields), generalized from
// per-wallet entries to this log's (tick, sequence, type, agent, tx,
// payload) shape. The payload map is serialized with sorted keys so the
// hash never depends on Go's randomized map iteration order.
func calculateHash(e Event) string {
	var b strings.Builder
	b.WriteString(e.PrevHash)
	fmt.Fprintf(&b, "%d|%d|%s|%s|%s|", e.Tick, e.Sequence, e.Type, e.AgentID, e.TxID)
	writeSortedPayload(&b, e.Payload)

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func writeSortedPayload(b *strings.Builder, payload map[string]any) {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, "%s=%v;", k, payload[k])
	}
}
