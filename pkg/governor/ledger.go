package governor

import (
	"sync"

	"github.com/core-tools/hsu-governor/pkg/resourcequota"
)

// DefaultLedgerCapacity bounds the violation ledger when no capacity is
// configured
const DefaultLedgerCapacity = 10000

// ViolationLedger is a bounded, append-only record of quota violations.
// When full, the oldest entries are evicted. Entries cannot be removed
// selectively, only cleared in bulk.
type ViolationLedger struct {
	mutex      sync.RWMutex
	capacity   int
	violations []*resourcequota.ResourceViolation // oldest first
	recorded   uint64
}

// NewViolationLedger creates an empty ledger holding at most capacity
// entries. A capacity <= 0 selects the default.
func NewViolationLedger(capacity int) *ViolationLedger {
	if capacity <= 0 {
		capacity = DefaultLedgerCapacity
	}
	return &ViolationLedger{
		capacity:   capacity,
		violations: make([]*resourcequota.ResourceViolation, 0),
	}
}

// Record appends a violation, evicting the oldest entries beyond capacity
func (vl *ViolationLedger) Record(violation *resourcequota.ResourceViolation) {
	if violation == nil {
		return
	}

	vl.mutex.Lock()
	defer vl.mutex.Unlock()

	vl.violations = append(vl.violations, violation)
	vl.recorded++

	if overflow := len(vl.violations) - vl.capacity; overflow > 0 {
		vl.violations = vl.violations[overflow:]
	}
}

// History returns retained violations, most recent first. A limit <= 0
// returns all retained entries.
func (vl *ViolationLedger) History(limit int) []*resourcequota.ResourceViolation {
	vl.mutex.RLock()
	defer vl.mutex.RUnlock()

	n := len(vl.violations)
	if limit <= 0 || limit > n {
		limit = n
	}

	// Return a copy to prevent external modification
	result := make([]*resourcequota.ResourceViolation, limit)
	for i := 0; i < limit; i++ {
		result[i] = vl.violations[n-1-i]
	}
	return result
}

// Clear drops all retained violations and returns how many were dropped
func (vl *ViolationLedger) Clear() int {
	vl.mutex.Lock()
	defer vl.mutex.Unlock()

	dropped := len(vl.violations)
	vl.violations = vl.violations[:0]
	return dropped
}

// Len returns the number of retained violations
func (vl *ViolationLedger) Len() int {
	vl.mutex.RLock()
	defer vl.mutex.RUnlock()
	return len(vl.violations)
}

// Recorded returns the total number of violations ever recorded,
// including later-evicted ones
func (vl *ViolationLedger) Recorded() uint64 {
	vl.mutex.RLock()
	defer vl.mutex.RUnlock()
	return vl.recorded
}
