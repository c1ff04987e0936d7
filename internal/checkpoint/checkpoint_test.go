package checkpoint_test

import (
	"testing"

	"github.com/aerugo/simcash/internal/checkpoint"
	"github.com/aerugo/simcash/internal/domain"
	"github.com/aerugo/simcash/internal/eventlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshal_RoundTripsExactly(t *testing.T) {
	log := eventlog.New()
	log.Append(0, eventlog.Arrival, "BANK_A", "tx1", map[string]any{"amount": int64(100)})

	original := checkpoint.State{
		CurrentTick: 5,
		Complete:    false,
		Agents: []checkpoint.AgentSnapshot{
			{ID: "BANK_A", Balance: 1000, UnsecuredCap: 500, Costs: domain.CostBreakdown{DelayCost: 10}},
		},
		Q2: []*domain.Obligation{
			{ID: "tx2", Sender: "BANK_A", Receiver: "BANK_B", Amount: 250, State: domain.InRTGS},
		},
		Events:    log.GetAllEvents(),
		NextTxSeq: 3,
	}

	data, err := checkpoint.Marshal(original)
	require.NoError(t, err)

	restored, err := checkpoint.Unmarshal(data)
	require.NoError(t, err)

	assert.Equal(t, original.CurrentTick, restored.CurrentTick)
	assert.Equal(t, original.NextTxSeq, restored.NextTxSeq)
	require.Len(t, restored.Agents, 1)
	assert.Equal(t, original.Agents[0], restored.Agents[0])
	require.Len(t, restored.Q2, 1)
	assert.Equal(t, *original.Q2[0], *restored.Q2[0])
	require.Len(t, restored.Events, 1)
	assert.Equal(t, original.Events[0].Hash, restored.Events[0].Hash)
}
