package eventlog_test

import (
	"testing"

	"github.com/aerugo/simcash/internal/domain"
	"github.com/aerugo/simcash/internal/eventlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppend_ChainsHashes(t *testing.T) {
	l := eventlog.New()
	e1 := l.Append(0, eventlog.Arrival, "BANK_A", "tx1", map[string]any{"amount": 100})
	e2 := l.Append(0, eventlog.RtgsImmediateSettlement, "BANK_A", "tx1", map[string]any{"amount": 100})

	assert.Equal(t, e1.Hash, e2.PrevHash)
	assert.NotEqual(t, e1.Hash, e2.Hash)
	assert.True(t, l.VerifyChain())
}

func TestAppend_IsDeterministicAcrossRuns(t *testing.T) {
	build := func() *eventlog.Log {
		l := eventlog.New()
		l.Append(0, eventlog.Arrival, "BANK_A", "tx1", map[string]any{"amount": 100, "priority": 2})
		l.Append(1, eventlog.CostAccrual, "BANK_A", "", map[string]any{"delay_cost": 5})
		return l
	}
	l1, l2 := build(), build()
	require.Equal(t, l1.Len(), l2.Len())
	for i := range l1.GetAllEvents() {
		assert.Equal(t, l1.GetAllEvents()[i].Hash, l2.GetAllEvents()[i].Hash)
	}
}

func TestGetTickEvents_FiltersByTick(t *testing.T) {
	l := eventlog.New()
	l.Append(0, eventlog.Arrival, "BANK_A", "tx1", nil)
	l.Append(1, eventlog.Arrival, "BANK_B", "tx2", nil)
	l.Append(1, eventlog.EndOfDay, "", "", nil)

	tick1 := l.GetTickEvents(1)
	require.Len(t, tick1, 2)
	assert.Equal(t, domain.TxID("tx2"), tick1[0].TxID)
	assert.Equal(t, eventlog.EndOfDay, tick1[1].Type)
}

func TestVerifyChain_AcceptsIntactChain(t *testing.T) {
	l := eventlog.New()
	l.Append(0, eventlog.Arrival, "BANK_A", "tx1", map[string]any{"amount": 100})
	require.True(t, l.VerifyChain())
}
