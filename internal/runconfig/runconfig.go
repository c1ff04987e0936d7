// Package runconfig loads the on-disk TOML/JSON documents that describe a
// simulation run (core config, scenario schedule, per-agent policy trees)
// and converts them into the typed structures the kernel packages expect.
// Both cmd/simulate and cmd/gateway share this loader so the wire format is
// defined in exactly one place.
package runconfig

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/aerugo/simcash/internal/clock"
	"github.com/aerugo/simcash/internal/domain"
	"github.com/aerugo/simcash/internal/policytree"
	"github.com/aerugo/simcash/internal/scenario"
	"github.com/aerugo/simcash/internal/simconfig"
	"github.com/pelletier/go-toml/v2"
)

// File is the TOML document shape loaded from a run configuration path: a
// thin wrapper over simconfig.Config using plain scalars so a hand-edited
// file cannot smuggle fractional cents or floating ticks into the kernel.
type File struct {
	TicksPerDay      int64             `toml:"ticks_per_day"`
	NumDays          int64             `toml:"num_days"`
	RNGSeed          int64             `toml:"rng_seed"`
	Mode             string            `toml:"mode"`
	DeadlineCapAtEOD bool              `toml:"deadline_cap_at_eod"`
	LSM              lsmConfigFile     `toml:"lsm"`
	Costs            costRatesFile     `toml:"costs"`
	Agents           []agentConfigFile `toml:"agents"`
}

type lsmConfigFile struct {
	Enabled          bool `toml:"enabled"`
	MaxCycleLength   int  `toml:"max_cycle_length"`
	MaxCyclesPerTick int  `toml:"max_cycles_per_tick"`
	MaxIterations    int  `toml:"max_iterations"`
}

type costRatesFile struct {
	DelayCostBpsPerTick        int64 `toml:"delay_cost_bps_per_tick"`
	OverdraftCostBpsPerTick    int64 `toml:"overdraft_cost_bps_per_tick"`
	CollateralCostBpsPerTick   int64 `toml:"collateral_cost_bps_per_tick"`
	DeadlinePenaltyCents       int64 `toml:"deadline_penalty_cents"`
	SplitFrictionCents         int64 `toml:"split_friction_cents"`
	EODPenaltyCents            int64 `toml:"eod_penalty_cents"`
	PriorityDelayMultiplierBps int64 `toml:"priority_delay_multiplier_bps"`
	OverdueDelayMultiplierBps  int64 `toml:"overdue_delay_multiplier_bps"`
}

type agentConfigFile struct {
	ID                 string `toml:"id"`
	OpeningBalance     int64  `toml:"opening_balance_cents"`
	UnsecuredCap       int64  `toml:"unsecured_cap_cents"`
	CollateralPosted   int64  `toml:"collateral_posted_cents"`
	HaircutBps         int64  `toml:"haircut_bps"`
	PaymentTreeFile    string `toml:"payment_tree_file"`
	BankTreeFile       string `toml:"bank_tree_file"`
	CollateralTreeFile string `toml:"collateral_tree_file"`
}

func (f File) toConfig() simconfig.Config {
	agents := make([]simconfig.AgentConfig, len(f.Agents))
	for i, a := range f.Agents {
		agents[i] = simconfig.AgentConfig{
			ID:                 domain.AgentID(a.ID),
			OpeningBalance:     domain.Cents(a.OpeningBalance),
			UnsecuredCap:       domain.Cents(a.UnsecuredCap),
			CollateralPosted:   domain.Cents(a.CollateralPosted),
			HaircutBps:         a.HaircutBps,
			PaymentTreeFile:    a.PaymentTreeFile,
			BankTreeFile:       a.BankTreeFile,
			CollateralTreeFile: a.CollateralTreeFile,
		}
	}
	return simconfig.Config{
		TicksPerDay:      f.TicksPerDay,
		NumDays:          f.NumDays,
		RNGSeed:          f.RNGSeed,
		Mode:             f.Mode,
		Agents:           agents,
		DeadlineCapAtEOD: f.DeadlineCapAtEOD,
		LSM: simconfig.LSMConfig{
			Enabled:          f.LSM.Enabled,
			MaxCycleLength:   f.LSM.MaxCycleLength,
			MaxCyclesPerTick: f.LSM.MaxCyclesPerTick,
			MaxIterations:    f.LSM.MaxIterations,
		},
		Costs: simconfig.CostRates{
			DelayCostBpsPerTick:        f.Costs.DelayCostBpsPerTick,
			OverdraftCostBpsPerTick:    f.Costs.OverdraftCostBpsPerTick,
			CollateralCostBpsPerTick:   f.Costs.CollateralCostBpsPerTick,
			DeadlinePenaltyCents:       domain.Cents(f.Costs.DeadlinePenaltyCents),
			SplitFrictionCents:         domain.Cents(f.Costs.SplitFrictionCents),
			EODPenaltyCents:            domain.Cents(f.Costs.EODPenaltyCents),
			PriorityDelayMultiplierBps: f.Costs.PriorityDelayMultiplierBps,
			OverdueDelayMultiplierBps:  f.Costs.OverdueDelayMultiplierBps,
		},
	}
}

// LoadConfig reads and parses a TOML run configuration.
func LoadConfig(path string) (simconfig.Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return simconfig.Config{}, fmt.Errorf("reading config file: %w", err)
	}
	var file File
	if err := toml.Unmarshal(raw, &file); err != nil {
		return simconfig.Config{}, fmt.Errorf("parsing TOML config: %w", err)
	}
	return file.toConfig(), nil
}

// LoadScenario reads and parses a TOML scenario schedule.
func LoadScenario(path string) (*scenario.Schedule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario file: %w", err)
	}
	var file scenario.ScenarioFile
	if err := toml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parsing scenario TOML: %w", err)
	}
	return scenario.NewSchedule(scenario.FromTOML(file)), nil
}

// policyTreeFile mirrors policytree.Tree's JSON-friendly wire shape for
// disk-loaded policies. Policy trees are authored as JSON (a tree-shaped
// sum type does not flatten cleanly into TOML), one file per agent per
// tree type.
type policyTreeFile struct {
	Type       string             `json:"type"`
	Root       *policyNodeFile    `json:"root"`
	Parameters map[string]float64 `json:"parameters"`
}

type policyNodeFile struct {
	IsAction   bool              `json:"is_action"`
	Field      string            `json:"field,omitempty"`
	Op         string            `json:"op,omitempty"`
	Value      policyValueFile   `json:"value,omitempty"`
	IfTrue     *policyNodeFile   `json:"if_true,omitempty"`
	IfFalse    *policyNodeFile   `json:"if_false,omitempty"`
	Action     string            `json:"action,omitempty"`
	ActionArgs []policyValueFile `json:"action_args,omitempty"`
}

type policyValueFile struct {
	Literal   float64 `json:"literal,omitempty"`
	ParamName string  `json:"param,omitempty"`
	IsParam   bool    `json:"is_param,omitempty"`
}

// LoadTrees loads every agent's policy tree files referenced from cfg.
func LoadTrees(cfg simconfig.Config) (map[domain.AgentID]clock.Trees, error) {
	trees := make(map[domain.AgentID]clock.Trees, len(cfg.Agents))
	for _, a := range cfg.Agents {
		t := clock.Trees{}
		var err error
		if a.PaymentTreeFile != "" {
			if t.Payment, err = loadOneTree(a.PaymentTreeFile); err != nil {
				return nil, err
			}
		}
		if a.BankTreeFile != "" {
			if t.Bank, err = loadOneTree(a.BankTreeFile); err != nil {
				return nil, err
			}
		}
		if a.CollateralTreeFile != "" {
			if t.Collateral, err = loadOneTree(a.CollateralTreeFile); err != nil {
				return nil, err
			}
		}
		trees[a.ID] = t
	}
	return trees, nil
}

func loadOneTree(path string) (*policytree.Tree, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy tree %s: %w", path, err)
	}
	var file policyTreeFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parsing policy tree %s: %w", path, err)
	}
	return &policytree.Tree{
		Type:       policytree.TreeType(file.Type),
		Root:       toNode(file.Root),
		Parameters: file.Parameters,
	}, nil
}

func toNode(n *policyNodeFile) *policytree.Node {
	if n == nil {
		return nil
	}
	if n.IsAction {
		args := make([]policytree.Value, len(n.ActionArgs))
		for i, a := range n.ActionArgs {
			args[i] = toValue(a)
		}
		return policytree.Act(policytree.Action(n.Action), args...)
	}
	return policytree.Cond(n.Field, policytree.Op(n.Op), toValue(n.Value), toNode(n.IfTrue), toNode(n.IfFalse))
}

func toValue(v policyValueFile) policytree.Value {
	if v.IsParam {
		return policytree.Param(v.ParamName)
	}
	return policytree.Lit(v.Literal)
}
