// Package simconfig defines and validates the configuration a simulation
// run is constructed from (loading it from TOML is internal/runconfig's
// job). Layout mirrors the teacher's pkg/config package: a
// flat Config struct plus a Validate method that reports every violation
// found, not just the first.
package simconfig

import "github.com/aerugo/simcash/internal/domain"

// AgentConfig is the starting state and liquidity limits for one agent.
type AgentConfig struct {
	ID               domain.AgentID `validate:"required"`
	OpeningBalance   domain.Cents
	UnsecuredCap     domain.Cents `validate:"gte=0"`
	CollateralPosted domain.Cents `validate:"gte=0"`
	HaircutBps       int64        `validate:"gte=0,lte=10000"`
	PaymentTreeFile  string       `validate:"required"`
	BankTreeFile     string
	CollateralTreeFile string
}

// LSMConfig bounds the liquidity-saving-mechanism search.
type LSMConfig struct {
	Enabled           bool
	MaxCycleLength    int `validate:"required_if=Enabled true,gte=2"`
	MaxCyclesPerTick  int `validate:"required_if=Enabled true,gte=1"`
	MaxIterations     int `validate:"required_if=Enabled true,gte=1"`
}

// CostRates holds the basis-point / per-tick rates driving §4.5's cost
// model. All are expressed in basis points (1 bp = 0.01%) except
// DeadlinePenaltyCents, SplitFrictionCents, and EODPenaltyCents, which are
// flat cent amounts. PriorityDelayMultiplierBps and OverdueDelayMultiplierBps
// are unity at 10 000 bps (1x); left at zero, neither scaling is applied.
type CostRates struct {
	DelayCostBpsPerTick          int64        `validate:"gte=0"`
	OverdraftCostBpsPerTick      int64        `validate:"gte=0"`
	CollateralCostBpsPerTick     int64        `validate:"gte=0"`
	DeadlinePenaltyCents         domain.Cents `validate:"gte=0"`
	SplitFrictionCents           domain.Cents `validate:"gte=0"`
	EODPenaltyCents              domain.Cents `validate:"gte=0"`
	PriorityDelayMultiplierBps   int64        `validate:"gte=0"`
	OverdueDelayMultiplierBps    int64        `validate:"gte=0"`
}

// Config is the full, validated input to an orchestrator run.
type Config struct {
	TicksPerDay int64 `validate:"required,gt=0"`
	NumDays     int64 `validate:"required,gt=0"`
	RNGSeed     int64

	Mode         string `validate:"required,oneof=stochastic scenario"`
	ScenarioFile string `validate:"required_if=Mode scenario"`

	Agents []AgentConfig `validate:"required,min=1,dive"`
	LSM    LSMConfig
	Costs  CostRates

	DeadlineCapAtEOD bool
}

// TotalTicks is the simulation's fixed horizon: NumDays * TicksPerDay.
func (c Config) TotalTicks() int64 {
	return c.NumDays * c.TicksPerDay
}
