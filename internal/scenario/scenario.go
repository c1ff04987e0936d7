// Package scenario implements §4.2's scenario mode: a pre-built schedule of
// (tick, sender, receiver, amount, deadline, priority, divisible) tuples,
// replayed verbatim instead of stochastically generated. Scenario files are
// parsed from TOML by internal/runconfig.LoadScenario (used by cmd/simulate
// and cmd/gateway), using
// pelletier/go-toml/v2 — never inside this package, which only knows about
// the already-decoded Schedule.
package scenario

import "github.com/aerugo/simcash/internal/domain"

// Entry is one scheduled transaction arrival.
type Entry struct {
	Tick      domain.Tick
	Sender    domain.AgentID
	Receiver  domain.AgentID
	Amount    domain.Cents
	Deadline  domain.Tick
	Priority  int
	Divisible bool
}

// Schedule is a full scenario-mode transaction plan, grouped by arrival
// tick for O(1) per-tick lookup.
type Schedule struct {
	byTick map[domain.Tick][]Entry
}

// NewSchedule indexes entries by arrival tick. Entries for the same tick
// keep their input order, which callers should make deterministic (e.g. by
// file order) since that order becomes Q2 submission order on ties.
func NewSchedule(entries []Entry) *Schedule {
	s := &Schedule{byTick: make(map[domain.Tick][]Entry)}
	for _, e := range entries {
		s.byTick[e.Tick] = append(s.byTick[e.Tick], e)
	}
	return s
}

// AtTick returns every entry scheduled to arrive at tick, in file order.
func (s *Schedule) AtTick(tick domain.Tick) []Entry {
	return s.byTick[tick]
}

// ToObligations converts tick's scheduled entries into fresh Obligations,
// using nextID to mint transaction IDs.
func (s *Schedule) ToObligations(tick domain.Tick, nextID func() domain.TxID) []*domain.Obligation {
	entries := s.AtTick(tick)
	out := make([]*domain.Obligation, 0, len(entries))
	for _, e := range entries {
		out = append(out, &domain.Obligation{
			ID:          nextID(),
			Sender:      e.Sender,
			Receiver:    e.Receiver,
			Amount:      e.Amount,
			ArrivalTick: tick,
			Deadline:    e.Deadline,
			Priority:    e.Priority,
			Divisible:   e.Divisible,
			State:       domain.Arrived,
		})
	}
	return out
}

// ScenarioFile is the TOML document shape a scenario file decodes into.
type ScenarioFile struct {
	Transactions []TOMLTransaction `toml:"transactions"`
}

// TOMLTransaction is one scenario-file row, using plain int64 cents and
// tick numbers (never floats) so a scenario file cannot smuggle fractional
// money into the kernel.
type TOMLTransaction struct {
	Tick      int64  `toml:"tick"`
	Sender    string `toml:"sender"`
	Receiver  string `toml:"receiver"`
	Amount    int64  `toml:"amount_cents"`
	Deadline  int64  `toml:"deadline"`
	Priority  int    `toml:"priority"`
	Divisible bool   `toml:"divisible"`
}

// FromTOML converts a decoded ScenarioFile into entries, ready for
// NewSchedule.
func FromTOML(f ScenarioFile) []Entry {
	out := make([]Entry, len(f.Transactions))
	for i, t := range f.Transactions {
		out[i] = Entry{
			Tick:      domain.Tick(t.Tick),
			Sender:    domain.AgentID(t.Sender),
			Receiver:  domain.AgentID(t.Receiver),
			Amount:    domain.Cents(t.Amount),
			Deadline:  domain.Tick(t.Deadline),
			Priority:  t.Priority,
			Divisible: t.Divisible,
		}
	}
	return out
}
