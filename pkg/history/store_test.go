package history

import (
	"testing"
	"time"

	"github.com/core-tools/hsu-governor/pkg/resourcequota"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testBase = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func usageAt(offset time.Duration, memoryMB float64) *resourcequota.ResourceUsage {
	return &resourcequota.ResourceUsage{
		Timestamp:  testBase.Add(offset),
		MemoryMB:   memoryMB,
		CPUPercent: memoryMB / 10,
	}
}

func TestStore_AppendAndSeries(t *testing.T) {
	store := NewStore(Config{})

	store.Append(usageAt(0, 100))
	store.Append(usageAt(time.Second, 110))
	store.Append(usageAt(2*time.Second, 120))

	series := store.Series(resourcequota.ResourceTypeMemory)
	require.Len(t, series, 3)
	assert.Equal(t, 100.0, series[0].Value)
	assert.Equal(t, 120.0, series[2].Value)

	// Every present resource gets a parallel series
	assert.Equal(t, 3, store.Len(resourcequota.ResourceTypeCPU))
	assert.Equal(t, 3, store.RowCount())
}

func TestStore_AbsentGPUNotRecorded(t *testing.T) {
	store := NewStore(Config{})
	store.Append(usageAt(0, 100))

	assert.Equal(t, 0, store.Len(resourcequota.ResourceTypeGPUMemory))

	withGPU := usageAt(time.Second, 100)
	withGPU.HasGPU = true
	withGPU.GPUMemoryMB = 512
	store.Append(withGPU)

	assert.Equal(t, 1, store.Len(resourcequota.ResourceTypeGPUMemory))
}

func TestStore_MaxEntriesBound(t *testing.T) {
	store := NewStore(Config{MaxEntries: 5})

	for i := 0; i < 10; i++ {
		store.Append(usageAt(time.Duration(i)*time.Second, float64(i)))
	}

	series := store.Series(resourcequota.ResourceTypeMemory)
	require.Len(t, series, 5)
	// Oldest entries dropped first
	assert.Equal(t, 5.0, series[0].Value)
	assert.Equal(t, 9.0, series[4].Value)

	rows := store.RecentRows(0)
	require.Len(t, rows, 5)
	assert.Equal(t, 5.0, rows[0].MemoryMB)
}

func TestStore_RetentionBound(t *testing.T) {
	store := NewStore(Config{Retention: time.Minute})

	store.Append(usageAt(0, 1))
	store.Append(usageAt(30*time.Second, 2))
	// This append makes the first entry older than the retention window
	store.Append(usageAt(90*time.Second, 3))

	series := store.Series(resourcequota.ResourceTypeMemory)
	require.Len(t, series, 2)
	assert.Equal(t, 2.0, series[0].Value)
	assert.Equal(t, 2, store.RowCount())
}

func TestStore_PruneIdempotent(t *testing.T) {
	store := NewStore(Config{Retention: time.Minute})

	store.Append(usageAt(0, 1))
	store.Append(usageAt(10*time.Second, 2))

	now := testBase.Add(70 * time.Second)
	store.Prune(now)
	require.Equal(t, 1, store.RowCount())

	// Second prune with the same now changes nothing
	store.Prune(now)
	assert.Equal(t, 1, store.RowCount())
	assert.Equal(t, 1, store.Len(resourcequota.ResourceTypeMemory))
}

func TestStore_WindowRelativeToNewest(t *testing.T) {
	store := NewStore(Config{})

	for i := 0; i < 10; i++ {
		store.Append(usageAt(time.Duration(i)*time.Second, float64(i)))
	}

	// Window anchored at the newest sample (t=9s), not wall time
	window := store.Window(resourcequota.ResourceTypeMemory, 3*time.Second)
	require.Len(t, window, 4)
	assert.Equal(t, 6.0, window[0].Value)
	assert.Equal(t, 9.0, window[3].Value)

	// Zero window returns everything
	all := store.Window(resourcequota.ResourceTypeMemory, 0)
	assert.Len(t, all, 10)

	// Empty series
	assert.Nil(t, store.Window(resourcequota.ResourceTypeGPUMemory, time.Minute))
}

func TestStore_RecentRows(t *testing.T) {
	store := NewStore(Config{})

	for i := 0; i < 5; i++ {
		store.Append(usageAt(time.Duration(i)*time.Second, float64(i)))
	}

	rows := store.RecentRows(2)
	require.Len(t, rows, 2)
	assert.Equal(t, 3.0, rows[0].MemoryMB)
	assert.Equal(t, 4.0, rows[1].MemoryMB)

	// Asking for more than kept returns all
	assert.Len(t, store.RecentRows(100), 5)
}

func TestStore_ReadsReturnCopies(t *testing.T) {
	store := NewStore(Config{})
	store.Append(usageAt(0, 100))

	series := store.Series(resourcequota.ResourceTypeMemory)
	series[0].Value = 999

	again := store.Series(resourcequota.ResourceTypeMemory)
	assert.Equal(t, 100.0, again[0].Value)

	rows := store.RecentRows(0)
	rows[0].MemoryMB = 999
	assert.Equal(t, 100.0, store.RecentRows(0)[0].MemoryMB)
}

func TestStore_AppendCopiesSample(t *testing.T) {
	store := NewStore(Config{})

	usage := usageAt(0, 100)
	store.Append(usage)

	// Caller mutation after Append must not leak into the store
	usage.MemoryMB = 999
	assert.Equal(t, 100.0, store.RecentRows(0)[0].MemoryMB)
}

func TestStore_Newest(t *testing.T) {
	store := NewStore(Config{})

	_, ok := store.Newest()
	assert.False(t, ok)

	store.Append(usageAt(5*time.Second, 1))
	newest, ok := store.Newest()
	require.True(t, ok)
	assert.Equal(t, testBase.Add(5*time.Second), newest)
}
