// Command simulate runs a single deterministic RTGS/LSM simulation from a
// TOML run configuration plus an optional TOML scenario schedule, and
// prints a human-readable summary at the end. Without a scenario schedule
// no arrivals occur: no arrival profiles are passed to the orchestrator, so
// the stochastic generator is not started. It follows the retrieval pack's
// aristath-sentinel planner CLI loads TOML-configured runs and logs their
// outcome through a structured logger.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aerugo/simcash/internal/domain"
	"github.com/aerugo/simcash/internal/orchestrator"
	"github.com/aerugo/simcash/internal/policytree"
	"github.com/aerugo/simcash/internal/rngseed"
	"github.com/aerugo/simcash/internal/runconfig"
	"github.com/aerugo/simcash/internal/scenario"
	"github.com/aerugo/simcash/pkg/logger"
	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"
)

func main() {
	log := logger.New("simcash-simulate")

	cmd := &cli.Command{
		Name:  "simulate",
		Usage: "run a deterministic RTGS/LSM settlement simulation",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Required: true, Usage: "path to a TOML run configuration"},
			&cli.StringFlag{Name: "scenario", Usage: "path to a TOML scenario schedule (scenario mode only)"},
			&cli.StringFlag{Name: "checkpoint-out", Usage: "write the final checkpoint to this path"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return run(ctx, cmd, log)
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal("simulate run failed", map[string]interface{}{"error": err})
	}
}

func run(_ context.Context, cmd *cli.Command, log logger.Logger) error {
	configPath := cmd.String("config")
	cfg, err := runconfig.LoadConfig(configPath)
	if err != nil {
		return err
	}

	log.Info("configuration loaded", map[string]interface{}{
		"path":          configPath,
		"ticks_per_day": cfg.TicksPerDay,
		"num_days":      cfg.NumDays,
		"agent_count":   len(cfg.Agents),
	})

	trees, err := runconfig.LoadTrees(cfg)
	if err != nil {
		return err
	}

	var sched *scenario.Schedule
	if scenarioPath := cmd.String("scenario"); scenarioPath != "" {
		sched, err = runconfig.LoadScenario(scenarioPath)
		if err != nil {
			return err
		}
	}

	seeds := rngseed.NewManager(cfg.RNGSeed)
	orch, err := orchestrator.New(cfg, trees, policytree.ScenarioConstraints{}, sched, nil, seeds)
	if err != nil {
		return fmt.Errorf("constructing orchestrator: %w", err)
	}

	total := cfg.TotalTicks()
	for orch.CurrentTick() < domain.Tick(total) {
		orch.Tick()
	}

	metrics := orch.GetSystemMetrics()
	log.Info("simulation complete", map[string]interface{}{
		"ticks_run":         int64(orch.CurrentTick()),
		"total_arrivals":    metrics.TotalArrivals,
		"total_settlements": metrics.TotalSettlements,
		"total_lsm":         metrics.TotalLSMReleases,
		"settlement_rate":   fmt.Sprintf("%.2f%%", metrics.SettlementRate*100),
	})

	for _, a := range cfg.Agents {
		bal, _ := orch.GetAgentBalance(a.ID)
		fmt.Printf("%s: balance %s\n", a.ID, humanize.Comma(int64(bal)))
	}

	if out := cmd.String("checkpoint-out"); out != "" {
		data, err := orch.SaveState()
		if err != nil {
			return fmt.Errorf("saving checkpoint: %w", err)
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return fmt.Errorf("writing checkpoint: %w", err)
		}
		log.Info("checkpoint written", map[string]interface{}{"path": out, "bytes": humanize.Bytes(uint64(len(data)))})
	}

	return nil
}
