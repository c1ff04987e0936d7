// Package generator implements §4.2's stochastic transaction generator:
// Poisson-distributed arrival counts per tick, amount drawn from a
// configurable distribution, and weighted counterparty sampling. Amount
// distributions are drawn from gonum.org/v1/gonum/stat/distuv, seeded
// through internal/rngseed so two runs from the same master seed produce
// byte-identical arrival schedules (INV-det).
package generator

import (
	"math"

	"github.com/aerugo/simcash/internal/domain"
	"github.com/aerugo/simcash/internal/rngseed"
	"gonum.org/v1/gonum/stat/distuv"
)

// AmountDistribution names which distuv distribution an agent's outgoing
// payment amounts are drawn from.
type AmountDistribution string

const (
	Uniform     AmountDistribution = "uniform"
	Normal      AmountDistribution = "normal"
	LogNormal   AmountDistribution = "lognormal"
	Exponential AmountDistribution = "exponential"
)

// AgentProfile is one agent's arrival-generation parameters.
type AgentProfile struct {
	ID AgentIDString

	ArrivalRatePerTick float64 // Poisson lambda
	Distribution       AmountDistribution
	AmountParam1       float64 // Uniform: min: Normal/LogNormal: mu; Exponential: rate
	AmountParam2       float64 // Uniform: max; Normal/LogNormal: sigma; unused otherwise
	MinAmountCents     domain.Cents
	MaxAmountCents     domain.Cents

	// Counterparties lists every agent this one may pay, with relative
	// sampling weights. Weights need not sum to 1.
	Counterparties []CounterpartyWeight

	DeadlineTicksMin int64
	DeadlineTicksMax int64
	Priority         int
	Divisible        bool
}

// AgentIDString avoids importing domain's AgentID alias cycle issues in
// profile literals while keeping the same underlying representation.
type AgentIDString = domain.AgentID

// CounterpartyWeight is one candidate receiver and its relative sampling
// weight.
type CounterpartyWeight struct {
	AgentID domain.AgentID
	Weight  float64
}

// Generator produces each tick's new arrivals for a fixed set of agent
// profiles.
type Generator struct {
	seeds    *rngseed.Manager
	profiles []AgentProfile
}

// New builds a Generator over the given agent profiles, using seeds to
// derive every per-tick, per-agent, per-draw sub-seed.
func New(seeds *rngseed.Manager, profiles []AgentProfile) *Generator {
	return &Generator{seeds: seeds, profiles: profiles}
}

// IDFunc mints the next transaction ID. The caller supplies it so
// generated transaction IDs are stable and collision-free across ticks;
// Generate never mutates global state itself.
type IDFunc func() domain.TxID

// Generate produces every arrival for tick, across every agent profile, in
// profile-declaration order (itself deterministic since profiles is a
// fixed slice).
func (g *Generator) Generate(tick domain.Tick, nextID IDFunc) []*domain.Obligation {
	var out []*domain.Obligation
	for _, profile := range g.profiles {
		out = append(out, g.generateForAgent(tick, profile, nextID)...)
	}
	return out
}

func (g *Generator) generateForAgent(tick domain.Tick, profile AgentProfile, nextID IDFunc) []*domain.Obligation {
	if len(profile.Counterparties) == 0 || profile.ArrivalRatePerTick <= 0 {
		return nil
	}

	countSeed := g.seeds.StreamSeed("arrival_count", int64(tick), string(profile.ID), 0)
	poisson := distuv.Poisson{Lambda: profile.ArrivalRatePerTick, Src: rngseed.NewV1Source(countSeed)}
	count := int(poisson.Rand())

	out := make([]*domain.Obligation, 0, count)
	for i := 0; i < count; i++ {
		receiver := g.sampleCounterparty(tick, profile, i)
		amount := g.sampleAmount(tick, profile, i)
		deadline := g.sampleDeadline(tick, profile, i)

		out = append(out, &domain.Obligation{
			ID:          nextID(),
			Sender:      profile.ID,
			Receiver:    receiver,
			Amount:      amount,
			ArrivalTick: tick,
			Deadline:    deadline,
			Priority:    profile.Priority,
			Divisible:   profile.Divisible,
			State:       domain.Arrived,
		})
	}
	return out
}

func (g *Generator) sampleCounterparty(tick domain.Tick, profile AgentProfile, draw int) domain.AgentID {
	seed := g.seeds.StreamSeed("counterparty", int64(tick), string(profile.ID), draw)
	r := rngseed.NewRand(seed)

	total := 0.0
	for _, c := range profile.Counterparties {
		total += c.Weight
	}
	pick := r.Float64() * total
	cum := 0.0
	for _, c := range profile.Counterparties {
		cum += c.Weight
		if pick < cum {
			return c.AgentID
		}
	}
	return profile.Counterparties[len(profile.Counterparties)-1].AgentID
}

func (g *Generator) sampleAmount(tick domain.Tick, profile AgentProfile, draw int) domain.Cents {
	seed := g.seeds.StreamSeed("amount", int64(tick), string(profile.ID), draw)
	src := rngseed.NewV1Source(seed)

	var raw float64
	switch profile.Distribution {
	case Normal:
		raw = distuv.Normal{Mu: profile.AmountParam1, Sigma: profile.AmountParam2, Src: src}.Rand()
	case LogNormal:
		raw = distuv.LogNormal{Mu: profile.AmountParam1, Sigma: profile.AmountParam2, Src: src}.Rand()
	case Exponential:
		raw = distuv.Exponential{Rate: profile.AmountParam1, Src: src}.Rand()
	default: // Uniform
		raw = distuv.Uniform{Min: profile.AmountParam1, Max: profile.AmountParam2, Src: src}.Rand()
	}

	cents := domain.Cents(math.Round(math.Abs(raw)))
	if profile.MinAmountCents > 0 && cents < profile.MinAmountCents {
		cents = profile.MinAmountCents
	}
	if profile.MaxAmountCents > 0 && cents > profile.MaxAmountCents {
		cents = profile.MaxAmountCents
	}
	if cents <= 0 {
		cents = 1
	}
	return cents
}

func (g *Generator) sampleDeadline(tick domain.Tick, profile AgentProfile, draw int) domain.Tick {
	if profile.DeadlineTicksMax <= profile.DeadlineTicksMin {
		return tick + domain.Tick(profile.DeadlineTicksMin)
	}
	seed := g.seeds.StreamSeed("deadline", int64(tick), string(profile.ID), draw)
	r := rngseed.NewRand(seed)
	span := profile.DeadlineTicksMax - profile.DeadlineTicksMin
	offset := profile.DeadlineTicksMin + r.Int64N(span+1)
	return tick + domain.Tick(offset)
}
