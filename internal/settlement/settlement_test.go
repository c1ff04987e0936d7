package settlement_test

import (
	"testing"

	"github.com/aerugo/simcash/internal/domain"
	"github.com/aerugo/simcash/internal/eventlog"
	"github.com/aerugo/simcash/internal/queue"
	"github.com/aerugo/simcash/internal/settlement"
	"github.com/aerugo/simcash/internal/simconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAgent(id domain.AgentID, balance domain.Cents) *domain.Agent {
	return &domain.Agent{ID: id, Balance: balance}
}

func newEngine(agents map[domain.AgentID]*domain.Agent, lsm simconfig.LSMConfig) *settlement.Engine {
	return settlement.New(agents, queue.NewRTGS(), eventlog.New(), lsm)
}

func TestAttemptSettle_SucceedsWithSufficientLiquidity(t *testing.T) {
	agents := map[domain.AgentID]*domain.Agent{
		"A": newAgent("A", 1000),
		"B": newAgent("B", 0),
	}
	e := newEngine(agents, simconfig.LSMConfig{})
	tx := &domain.Obligation{ID: "tx1", Sender: "A", Receiver: "B", Amount: 500, State: domain.Released}
	require.NoError(t, tx.TransitionTo(domain.InRTGS))

	ok := e.AttemptSettle(0, tx)
	require.True(t, ok)
	assert.Equal(t, domain.Cents(500), agents["A"].Balance)
	assert.Equal(t, domain.Cents(500), agents["B"].PendingCredits())
	assert.Equal(t, domain.Settled, tx.State)
}

func TestAttemptSettle_FailsWithInsufficientLiquidity(t *testing.T) {
	agents := map[domain.AgentID]*domain.Agent{
		"A": newAgent("A", 100),
		"B": newAgent("B", 0),
	}
	e := newEngine(agents, simconfig.LSMConfig{})
	tx := &domain.Obligation{ID: "tx1", Sender: "A", Receiver: "B", Amount: 500, State: domain.InRTGS}

	ok := e.AttemptSettle(0, tx)
	assert.False(t, ok)
	assert.Equal(t, domain.Cents(100), agents["A"].Balance)
	assert.NotEqual(t, domain.Settled, tx.State)
}

func TestBilateralOffset_FullyNetsEqualReciprocalObligations(t *testing.T) {
	agents := map[domain.AgentID]*domain.Agent{
		"A": newAgent("A", 0),
		"B": newAgent("B", 0),
	}
	e := newEngine(agents, simconfig.LSMConfig{Enabled: true, MaxCycleLength: 2, MaxCyclesPerTick: 10, MaxIterations: 100})

	txAB := &domain.Obligation{ID: "ab", Sender: "A", Receiver: "B", Amount: 300, State: domain.InRTGS}
	txBA := &domain.Obligation{ID: "ba", Sender: "B", Receiver: "A", Amount: 300, State: domain.InRTGS}
	e.RTGS.Push(txAB)
	e.RTGS.Push(txBA)

	e.RunLSM(0)

	assert.Equal(t, domain.Settled, txAB.State)
	assert.Equal(t, domain.Settled, txBA.State)
	assert.Equal(t, 0, e.RTGS.Len())
	// Full net: no balance should move since both legs cancel exactly.
	assert.Equal(t, domain.Cents(0), agents["A"].Balance)
	assert.Equal(t, domain.Cents(0), agents["B"].Balance)
}

func TestBilateralOffset_PartialNetLeavesRemainderQueued(t *testing.T) {
	agents := map[domain.AgentID]*domain.Agent{
		"A": newAgent("A", 0),
		"B": newAgent("B", 0),
	}
	e := newEngine(agents, simconfig.LSMConfig{Enabled: true, MaxCycleLength: 2, MaxCyclesPerTick: 10, MaxIterations: 100})

	txAB := &domain.Obligation{ID: "ab", Sender: "A", Receiver: "B", Amount: 500, State: domain.InRTGS}
	txBA := &domain.Obligation{ID: "ba", Sender: "B", Receiver: "A", Amount: 300, State: domain.InRTGS}
	e.RTGS.Push(txAB)
	e.RTGS.Push(txBA)

	e.RunLSM(0)

	assert.Equal(t, domain.Settled, txBA.State)
	assert.Equal(t, domain.Cents(200), txAB.RemainingAmount())
	assert.NotEqual(t, domain.Settled, txAB.State)
}

func TestBilateralOffset_EmitsPerLegAmounts(t *testing.T) {
	agents := map[domain.AgentID]*domain.Agent{
		"A": newAgent("A", 30_000),
		"B": newAgent("B", 30_000),
	}
	log := eventlog.New()
	e := settlement.New(agents, queue.NewRTGS(), log, simconfig.LSMConfig{Enabled: true, MaxCycleLength: 2, MaxCyclesPerTick: 10, MaxIterations: 100})

	txAB := &domain.Obligation{ID: "ab", Sender: "A", Receiver: "B", Amount: 50_000, State: domain.InRTGS}
	txBA := &domain.Obligation{ID: "ba", Sender: "B", Receiver: "A", Amount: 40_000, State: domain.InRTGS}
	e.RTGS.Push(txAB)
	e.RTGS.Push(txBA)

	e.RunLSM(0)

	assert.Equal(t, domain.Cents(10_000), txAB.RemainingAmount())
	assert.Equal(t, domain.Settled, txBA.State)

	events := log.GetAllEvents()
	require.Len(t, events, 1)
	assert.Equal(t, eventlog.LsmBilateralOffset, events[0].Type)
	assert.Equal(t, map[string]any{
		"agent_a":  "A",
		"agent_b":  "B",
		"tx_id_a":  "ab",
		"tx_id_b":  "ba",
		"amount_a": int64(50_000),
		"amount_b": int64(40_000),
	}, events[0].Payload)
}

func TestMultilateralCycle_UnequalCycleNetsAtMinimumEdge(t *testing.T) {
	agents := map[domain.AgentID]*domain.Agent{
		"A": newAgent("A", 0),
		"B": newAgent("B", 0),
		"C": newAgent("C", 0),
	}
	log := eventlog.New()
	e := settlement.New(agents, queue.NewRTGS(), log, simconfig.LSMConfig{Enabled: true, MaxCycleLength: 3, MaxCyclesPerTick: 10, MaxIterations: 1000})

	txAB := &domain.Obligation{ID: "ab", Sender: "A", Receiver: "B", Amount: 100, State: domain.InRTGS}
	txBC := &domain.Obligation{ID: "bc", Sender: "B", Receiver: "C", Amount: 50, State: domain.InRTGS}
	txCA := &domain.Obligation{ID: "ca", Sender: "C", Receiver: "A", Amount: 100, State: domain.InRTGS}
	e.RTGS.Push(txAB)
	e.RTGS.Push(txBC)
	e.RTGS.Push(txCA)

	e.RunLSM(0)

	// Delta = min(100, 50, 100) = 50: bc fully settles, ab and ca reduce to
	// 50 each and stay queued rather than the whole cycle gridlocking.
	assert.Equal(t, domain.Settled, txBC.State)
	assert.Equal(t, domain.Cents(50), txAB.RemainingAmount())
	assert.Equal(t, domain.Cents(50), txCA.RemainingAmount())
	assert.NotEqual(t, domain.Settled, txAB.State)
	assert.NotEqual(t, domain.Settled, txCA.State)
	assert.Equal(t, domain.Cents(-50), agents["A"].Balance)
	assert.Equal(t, domain.Cents(50), agents["C"].PendingCredits())
}

func TestMultilateralCycle_SettlesThreeAgentCycle(t *testing.T) {
	agents := map[domain.AgentID]*domain.Agent{
		"A": newAgent("A", 0),
		"B": newAgent("B", 0),
		"C": newAgent("C", 0),
	}
	e := newEngine(agents, simconfig.LSMConfig{Enabled: true, MaxCycleLength: 3, MaxCyclesPerTick: 10, MaxIterations: 1000})

	txAB := &domain.Obligation{ID: "ab", Sender: "A", Receiver: "B", Amount: 100, State: domain.InRTGS}
	txBC := &domain.Obligation{ID: "bc", Sender: "B", Receiver: "C", Amount: 100, State: domain.InRTGS}
	txCA := &domain.Obligation{ID: "ca", Sender: "C", Receiver: "A", Amount: 100, State: domain.InRTGS}
	e.RTGS.Push(txAB)
	e.RTGS.Push(txBC)
	e.RTGS.Push(txCA)

	e.RunLSM(0)

	assert.Equal(t, domain.Settled, txAB.State)
	assert.Equal(t, domain.Settled, txBC.State)
	assert.Equal(t, domain.Settled, txCA.State)
	assert.Equal(t, 0, e.RTGS.Len())
}
