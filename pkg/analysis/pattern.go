package analysis

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/core-tools/hsu-governor/pkg/history"
	"github.com/core-tools/hsu-governor/pkg/logging"
	"github.com/core-tools/hsu-governor/pkg/resourcequota"
)

// FindingKind classifies a detected usage pattern
type FindingKind string

const (
	FindingKindSpike     FindingKind = "spike"
	FindingKindTrendUp   FindingKind = "trend_up"
	FindingKindTrendDown FindingKind = "trend_down"
)

// PatternFinding records one detected pattern in a resource series
type PatternFinding struct {
	ID        string                    `json:"id"`
	Kind      FindingKind               `json:"kind"`
	Resource  resourcequota.ResourceType `json:"resource"`
	Timestamp time.Time                 `json:"timestamp"`
	Value     float64                   `json:"value"`
	Mean      float64                   `json:"mean"`
	StdDev    float64                   `json:"std_dev"`
	Slope     float64                   `json:"slope"`
	Message   string                    `json:"message"`
}

const (
	// minAnalysisSamples gates pattern analysis; shorter series carry too
	// little signal to grade
	minAnalysisSamples = 5

	// trendConsistency is the share of consecutive deltas that must agree
	// in sign for a trend finding
	trendConsistency = 0.8

	// sigmaFloor guards spike detection on flat series where the standard
	// deviation collapses to zero
	sigmaFloor = 1e-9
)

// PatternAnalyzer detects spikes and sustained trends in resource series
type PatternAnalyzer struct {
	spikeK float64
	logger logging.Logger
}

// NewPatternAnalyzer creates an analyzer with the given deviation
// multiplier for spike detection. spikeK <= 0 falls back to the default
// of 2 standard deviations.
func NewPatternAnalyzer(spikeK float64, logger logging.Logger) *PatternAnalyzer {
	if spikeK <= 0 {
		spikeK = 2.0
	}
	return &PatternAnalyzer{
		spikeK: spikeK,
		logger: logger,
	}
}

// Analyze inspects one resource series and returns at most one spike and
// one trend finding. Series shorter than the minimum sample count produce
// no findings.
func (pa *PatternAnalyzer) Analyze(resourceType resourcequota.ResourceType, points []history.Point) []*PatternFinding {
	if len(points) < minAnalysisSamples {
		return nil
	}

	var findings []*PatternFinding

	if finding := pa.detectSpike(resourceType, points); finding != nil {
		findings = append(findings, finding)
	}
	if finding := pa.detectTrend(resourceType, points); finding != nil {
		findings = append(findings, finding)
	}

	return findings
}

// detectSpike flags the latest sample when it deviates from the series
// mean by more than spikeK standard deviations. Flat series never spike.
func (pa *PatternAnalyzer) detectSpike(resourceType resourcequota.ResourceType, points []history.Point) *PatternFinding {
	mean, stdDev := meanStdDev(points)
	if stdDev <= sigmaFloor {
		return nil
	}

	latest := points[len(points)-1]
	deviation := math.Abs(latest.Value - mean)
	if deviation <= pa.spikeK*stdDev {
		return nil
	}

	return &PatternFinding{
		ID:        uuid.New().String(),
		Kind:      FindingKindSpike,
		Resource:  resourceType,
		Timestamp: latest.Timestamp,
		Value:     latest.Value,
		Mean:      mean,
		StdDev:    stdDev,
		Message: fmt.Sprintf("%s spike: %.2f deviates %.1f sigma from mean %.2f",
			resourceType, latest.Value, deviation/stdDev, mean),
	}
}

// detectTrend flags a sustained trend when enough consecutive deltas agree
// in sign. The reported slope is the least-squares slope per second.
func (pa *PatternAnalyzer) detectTrend(resourceType resourcequota.ResourceType, points []history.Point) *PatternFinding {
	increases, decreases := 0, 0
	for i := 1; i < len(points); i++ {
		delta := points[i].Value - points[i-1].Value
		if delta > 0 {
			increases++
		} else if delta < 0 {
			decreases++
		}
	}

	pairs := len(points) - 1
	var kind FindingKind
	switch {
	case float64(increases)/float64(pairs) >= trendConsistency:
		kind = FindingKindTrendUp
	case float64(decreases)/float64(pairs) >= trendConsistency:
		kind = FindingKindTrendDown
	default:
		return nil
	}

	slope := leastSquaresSlope(points)

	// The fitted slope must agree with the delta counts: one large
	// reversal at the end can outweigh many small steps
	if (kind == FindingKindTrendUp && slope <= 0) ||
		(kind == FindingKindTrendDown && slope >= 0) {
		return nil
	}

	latest := points[len(points)-1]
	direction := "increasing"
	if kind == FindingKindTrendDown {
		direction = "decreasing"
	}

	return &PatternFinding{
		ID:        uuid.New().String(),
		Kind:      kind,
		Resource:  resourceType,
		Timestamp: latest.Timestamp,
		Value:     latest.Value,
		Slope:     slope,
		Message: fmt.Sprintf("%s steadily %s: slope %.4f/s over %d samples",
			resourceType, direction, slope, len(points)),
	}
}

func meanStdDev(points []history.Point) (float64, float64) {
	n := float64(len(points))
	var sum float64
	for _, p := range points {
		sum += p.Value
	}
	mean := sum / n

	var sumSquares float64
	for _, p := range points {
		diff := p.Value - mean
		sumSquares += diff * diff
	}
	return mean, math.Sqrt(sumSquares / n)
}

// leastSquaresSlope fits value against seconds-from-start and returns the
// slope, zero for degenerate series
func leastSquaresSlope(points []history.Point) float64 {
	n := float64(len(points))
	start := points[0].Timestamp

	var sumX, sumY, sumXY, sumXX float64
	for _, p := range points {
		x := p.Timestamp.Sub(start).Seconds()
		sumX += x
		sumY += p.Value
		sumXY += x * p.Value
		sumXX += x * x
	}

	denominator := n*sumXX - sumX*sumX
	if math.Abs(denominator) < 1e-12 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denominator
}
