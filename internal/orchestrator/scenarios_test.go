package orchestrator_test

import (
	"testing"

	"github.com/aerugo/simcash/internal/clock"
	"github.com/aerugo/simcash/internal/domain"
	"github.com/aerugo/simcash/internal/orchestrator"
	"github.com/aerugo/simcash/internal/policytree"
	"github.com/aerugo/simcash/internal/simconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestScenario_SplitUnderInsufficientLiquidity adapts the split scenario:
// A has liquidity 200 000, policy splits any obligation over 150 000 cents
// when its own effective liquidity would fall short of the full amount.
// Submitting A->B 250 000 fans out into two 125 000 children, charging one
// split-friction accrual; since the combined children still exceed A's
// liquidity, only the first settles immediately and the second is left
// queued in Q2 awaiting further liquidity, which is the point of splitting
// under a liquidity shortfall rather than blocking the whole obligation.
func TestScenario_SplitUnderInsufficientLiquidity(t *testing.T) {
	splitTree := &policytree.Tree{
		Type: policytree.PaymentTree,
		Root: policytree.Cond("amount", policytree.OpGT, policytree.Lit(150000),
			policytree.Cond("effective_liquidity", policytree.OpLT, policytree.Lit(250000),
				policytree.Act(policytree.ActionSplit, policytree.Lit(2)),
				policytree.Act(policytree.ActionRelease),
			),
			policytree.Act(policytree.ActionRelease),
		),
	}
	releaseTree := alwaysReleaseTree()

	cfg := simconfig.Config{
		TicksPerDay: 10,
		NumDays:     1,
		Mode:        "stochastic",
		Costs:       simconfig.CostRates{SplitFrictionCents: 50},
		Agents: []simconfig.AgentConfig{
			{ID: "A", OpeningBalance: 200000, PaymentTreeFile: "a.json"},
			{ID: "B", OpeningBalance: 0, PaymentTreeFile: "b.json"},
		},
		LSM: simconfig.LSMConfig{Enabled: true, MaxCycleLength: 2, MaxCyclesPerTick: 5, MaxIterations: 100},
	}
	trees := map[domain.AgentID]clock.Trees{
		"A": {Payment: splitTree},
		"B": {Payment: releaseTree},
	}
	o, err := orchestrator.New(cfg, trees, policytree.ScenarioConstraints{}, nil, nil, nil)
	require.NoError(t, err)

	parentID, err := o.SubmitTransaction("A", "B", 250000, 5, 0, false)
	require.NoError(t, err)

	o.Tick()

	balA, err := o.GetAgentBalance("A")
	require.NoError(t, err)
	assert.Equal(t, domain.Cents(200000-125000), balA)

	child0, ok := o.GetTransactionDetails(domain.TxID(string(parentID) + "-split-0"))
	require.True(t, ok)
	assert.Equal(t, domain.Cents(125000), child0.Amount)
	assert.Equal(t, domain.Settled, child0.State)

	child1, ok := o.GetTransactionDetails(domain.TxID(string(parentID) + "-split-1"))
	require.True(t, ok)
	assert.Equal(t, domain.Cents(125000), child1.Amount)
	assert.Equal(t, domain.InRTGS, child1.State)
	assert.Contains(t, o.GetRTGSQueueContents(), child1.ID)

	parent, ok := o.GetTransactionDetails(parentID)
	require.True(t, ok)
	assert.Equal(t, domain.SplitState, parent.State)
}

// TestScenario_ThreeAgentCycle exercises the orchestrator-level end of the
// same multilateral cycle the settlement package tests in isolation:
// A->B, B->C, C->A all 100 cents, all starting at zero balance and zero
// unsecured cap. Gross settlement can settle nothing; the LSM cycle search
// must find and settle the whole cycle in one tick.
func TestScenario_ThreeAgentCycle(t *testing.T) {
	queueTree := &policytree.Tree{Type: policytree.PaymentTree, Root: policytree.Act(policytree.ActionQueue)}
	cfg := simconfig.Config{
		TicksPerDay: 10,
		NumDays:     1,
		Mode:        "stochastic",
		Agents: []simconfig.AgentConfig{
			{ID: "A", OpeningBalance: 0, PaymentTreeFile: "a.json"},
			{ID: "B", OpeningBalance: 0, PaymentTreeFile: "b.json"},
			{ID: "C", OpeningBalance: 0, PaymentTreeFile: "c.json"},
		},
		LSM: simconfig.LSMConfig{Enabled: true, MaxCycleLength: 3, MaxCyclesPerTick: 10, MaxIterations: 1000},
	}
	trees := map[domain.AgentID]clock.Trees{
		"A": {Payment: queueTree},
		"B": {Payment: queueTree},
		"C": {Payment: queueTree},
	}
	o, err := orchestrator.New(cfg, trees, policytree.ScenarioConstraints{}, nil, nil, nil)
	require.NoError(t, err)

	idAB, err := o.SubmitTransaction("A", "B", 100, 50, 0, false)
	require.NoError(t, err)
	idBC, err := o.SubmitTransaction("B", "C", 100, 50, 0, false)
	require.NoError(t, err)
	idCA, err := o.SubmitTransaction("C", "A", 100, 50, 0, false)
	require.NoError(t, err)

	o.Tick()

	for _, id := range []domain.TxID{idAB, idBC, idCA} {
		tx, ok := o.GetTransactionDetails(id)
		require.True(t, ok)
		assert.Equal(t, domain.Settled, tx.State)
	}
	for _, agent := range []domain.AgentID{"A", "B", "C"} {
		bal, err := o.GetAgentBalance(agent)
		require.NoError(t, err)
		assert.Equal(t, domain.Cents(0), bal)
	}
}
