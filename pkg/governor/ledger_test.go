package governor

import (
	"fmt"
	"testing"
	"time"

	"github.com/core-tools/hsu-governor/pkg/resourcequota"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func violationAt(i int) *resourcequota.ResourceViolation {
	return &resourcequota.ResourceViolation{
		ID:           fmt.Sprintf("violation-%d", i),
		Type:         resourcequota.ViolationTypeMemory,
		Resource:     resourcequota.ResourceTypeMemory,
		Severity:     resourcequota.ViolationSeverityWarning,
		CurrentValue: float64(i),
		LimitValue:   1000,
		Timestamp:    time.Date(2025, 6, 1, 12, 0, i, 0, time.UTC),
		Message:      fmt.Sprintf("violation %d", i),
	}
}

func TestViolationLedger_RecordAndHistory(t *testing.T) {
	ledger := NewViolationLedger(100)

	assert.Equal(t, 0, ledger.Len())
	assert.Empty(t, ledger.History(0))

	for i := 0; i < 5; i++ {
		ledger.Record(violationAt(i))
	}

	assert.Equal(t, 5, ledger.Len())
	assert.Equal(t, uint64(5), ledger.Recorded())

	// Most recent first
	history := ledger.History(0)
	require.Len(t, history, 5)
	assert.Equal(t, "violation-4", history[0].ID)
	assert.Equal(t, "violation-0", history[4].ID)
}

func TestViolationLedger_HistoryLimit(t *testing.T) {
	ledger := NewViolationLedger(100)
	for i := 0; i < 10; i++ {
		ledger.Record(violationAt(i))
	}

	history := ledger.History(3)
	require.Len(t, history, 3)
	assert.Equal(t, "violation-9", history[0].ID)
	assert.Equal(t, "violation-7", history[2].ID)

	// Limit beyond the retained count returns everything
	assert.Len(t, ledger.History(50), 10)
}

func TestViolationLedger_EvictsOldestAtCapacity(t *testing.T) {
	ledger := NewViolationLedger(3)

	for i := 0; i < 5; i++ {
		ledger.Record(violationAt(i))
	}

	assert.Equal(t, 3, ledger.Len())

	// The two oldest are gone but still counted
	history := ledger.History(0)
	require.Len(t, history, 3)
	assert.Equal(t, "violation-4", history[0].ID)
	assert.Equal(t, "violation-2", history[2].ID)
	assert.Equal(t, uint64(5), ledger.Recorded())
}

func TestViolationLedger_Clear(t *testing.T) {
	ledger := NewViolationLedger(100)
	for i := 0; i < 4; i++ {
		ledger.Record(violationAt(i))
	}

	dropped := ledger.Clear()
	assert.Equal(t, 4, dropped)
	assert.Equal(t, 0, ledger.Len())
	assert.Empty(t, ledger.History(0))

	// Total recorded count survives clearing
	assert.Equal(t, uint64(4), ledger.Recorded())

	// Clearing an empty ledger drops nothing
	assert.Equal(t, 0, ledger.Clear())

	// The ledger keeps accepting violations after a clear
	ledger.Record(violationAt(9))
	assert.Equal(t, 1, ledger.Len())
	assert.Equal(t, uint64(5), ledger.Recorded())
}

func TestViolationLedger_NilViolationIgnored(t *testing.T) {
	ledger := NewViolationLedger(10)
	ledger.Record(nil)

	assert.Equal(t, 0, ledger.Len())
	assert.Equal(t, uint64(0), ledger.Recorded())
}

func TestViolationLedger_DefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultLedgerCapacity, NewViolationLedger(0).capacity)
	assert.Equal(t, DefaultLedgerCapacity, NewViolationLedger(-5).capacity)
	assert.Equal(t, 42, NewViolationLedger(42).capacity)
}
