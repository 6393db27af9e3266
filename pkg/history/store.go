package history

import (
	"sort"
	"sync"
	"time"

	"github.com/core-tools/hsu-governor/pkg/resourcequota"
)

const (
	// DefaultMaxEntries bounds each resource series
	DefaultMaxEntries = 1000

	// DefaultRetention bounds the age of kept entries
	DefaultRetention = 1 * time.Hour
)

// Point is one timestamped reading of a resource series
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Config bounds the store
type Config struct {
	MaxEntries int           `yaml:"max_entries,omitempty"`
	Retention  time.Duration `yaml:"retention,omitempty"`
}

// Store keeps bounded usage history for one monitored target: a per-resource
// point series for trend queries plus an aligned window of full samples for
// model training. The store has a single writer (the sampling loop); reads
// return copies so callers never observe later mutation.
type Store struct {
	mutex  sync.RWMutex
	config Config
	series map[resourcequota.ResourceType][]Point
	rows   []resourcequota.ResourceUsage
}

// NewStore creates a history store, applying bound defaults for unset fields
func NewStore(config Config) *Store {
	if config.MaxEntries <= 0 {
		config.MaxEntries = DefaultMaxEntries
	}
	if config.Retention <= 0 {
		config.Retention = DefaultRetention
	}
	return &Store{
		config: config,
		series: make(map[resourcequota.ResourceType][]Point),
	}
}

// Append records a usage sample and opportunistically prunes, using the
// sample's own timestamp as "now" so behavior is identical under real and
// injected clocks. Absent readings (GPU memory without a GPU) are skipped.
func (s *Store) Append(usage *resourcequota.ResourceUsage) {
	if usage == nil {
		return
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, resourceType := range resourcequota.ResourceTypes() {
		value, present := usage.Value(resourceType)
		if !present {
			continue
		}
		s.series[resourceType] = append(s.series[resourceType], Point{
			Timestamp: usage.Timestamp,
			Value:     value,
		})
	}
	s.rows = append(s.rows, *usage)

	s.pruneLocked(usage.Timestamp)
}

// Prune drops entries older than the retention window relative to now.
// It is idempotent; pruning twice with the same now is a no-op.
func (s *Store) Prune(now time.Time) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.pruneLocked(now)
}

func (s *Store) pruneLocked(now time.Time) {
	cutoff := now.Add(-s.config.Retention)

	for resourceType, points := range s.series {
		points = trimBefore(points, cutoff)
		if len(points) > s.config.MaxEntries {
			points = points[len(points)-s.config.MaxEntries:]
		}
		s.series[resourceType] = points
	}

	firstKept := 0
	for firstKept < len(s.rows) && s.rows[firstKept].Timestamp.Before(cutoff) {
		firstKept++
	}
	s.rows = s.rows[firstKept:]
	if len(s.rows) > s.config.MaxEntries {
		s.rows = s.rows[len(s.rows)-s.config.MaxEntries:]
	}
}

func trimBefore(points []Point, cutoff time.Time) []Point {
	firstKept := 0
	for firstKept < len(points) && points[firstKept].Timestamp.Before(cutoff) {
		firstKept++
	}
	return points[firstKept:]
}

// Series returns a copy of the full series for a resource type
func (s *Store) Series(resourceType resourcequota.ResourceType) []Point {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	points := s.series[resourceType]
	result := make([]Point, len(points))
	copy(result, points)
	return result
}

// Window returns a copy of the series points within the window ending at
// the newest sample. Anchoring on the newest timestamp rather than wall
// time keeps trend queries deterministic.
func (s *Store) Window(resourceType resourcequota.ResourceType, window time.Duration) []Point {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	points := s.series[resourceType]
	if len(points) == 0 {
		return nil
	}
	if window <= 0 {
		result := make([]Point, len(points))
		copy(result, points)
		return result
	}

	cutoff := points[len(points)-1].Timestamp.Add(-window)
	first := sort.Search(len(points), func(i int) bool {
		return !points[i].Timestamp.Before(cutoff)
	})

	result := make([]Point, len(points)-first)
	copy(result, points[first:])
	return result
}

// RecentRows returns copies of the most recent n full samples in
// chronological order. n <= 0 returns all kept rows.
func (s *Store) RecentRows(n int) []resourcequota.ResourceUsage {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	start := 0
	if n > 0 && len(s.rows) > n {
		start = len(s.rows) - n
	}
	result := make([]resourcequota.ResourceUsage, len(s.rows)-start)
	copy(result, s.rows[start:])
	return result
}

// Len returns the number of kept points for a resource type
func (s *Store) Len(resourceType resourcequota.ResourceType) int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.series[resourceType])
}

// RowCount returns the number of kept full samples
func (s *Store) RowCount() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.rows)
}

// Newest returns the timestamp of the most recent sample, or false when
// the store is empty
func (s *Store) Newest() (time.Time, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.rows) == 0 {
		return time.Time{}, false
	}
	return s.rows[len(s.rows)-1].Timestamp, true
}
