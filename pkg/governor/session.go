package governor

import (
	"context"
	"sync"
	"time"

	"github.com/core-tools/hsu-governor/pkg/analysis"
	"github.com/core-tools/hsu-governor/pkg/errors"
	"github.com/core-tools/hsu-governor/pkg/history"
	"github.com/core-tools/hsu-governor/pkg/logging"
	"github.com/core-tools/hsu-governor/pkg/resourcequota"
	"github.com/core-tools/hsu-governor/pkg/sampling"

	"github.com/google/uuid"
)

// EnforcerState represents the lifecycle state of a quota session
type EnforcerState string

const (
	// EnforcerStateIdle is the initial state before Start() is called
	EnforcerStateIdle EnforcerState = "idle"

	// EnforcerStateMonitoring means the sampling loop is running
	EnforcerStateMonitoring EnforcerState = "monitoring"

	// EnforcerStateStopped is terminal: a stopped session cannot be
	// restarted, a new session must be created instead
	EnforcerStateStopped EnforcerState = "stopped"
)

// StopReason records why a session left the monitoring state
type StopReason string

const (
	StopReasonRequested  StopReason = "requested"
	StopReasonTimeout    StopReason = "timeout"
	StopReasonTargetLost StopReason = "target_lost"
)

// maxRetainedFindings bounds the per-session pattern finding log
const maxRetainedFindings = 1000

// EnforcerOptions configures a quota session
type EnforcerOptions struct {
	// ID identifies the session; empty means a generated UUID
	ID string

	// Target is what the session samples
	Target sampling.Target

	// Quota holds the hard limits graded each tick. Required.
	Quota *resourcequota.ResourceQuota

	// Config sets the monitoring cadence; zero fields take defaults
	Config resourcequota.MonitorConfig

	// Sampler overrides the target-derived sampler, mainly for tests
	// and custom collectors
	Sampler sampling.Sampler

	// GPU supplies GPU memory readings; nil means no GPU
	GPU sampling.GPUReader

	// LedgerCapacity bounds the violation ledger; <= 0 means default
	LedgerCapacity int
}

// QuotaEnforcer drives the sampling loop for one target: each tick it
// samples usage, records it into history, grades it against the session
// quota, and periodically runs pattern analysis and model retraining.
type QuotaEnforcer struct {
	id     string
	target sampling.Target
	quota  *resourcequota.ResourceQuota
	config resourcequota.MonitorConfig
	logger logging.Logger

	sampler  sampling.Sampler
	store    *history.Store
	checker  *resourcequota.ViolationChecker
	analyzer *analysis.PatternAnalyzer
	scaler   *analysis.PredictiveScaler
	ledger   *ViolationLedger

	// Callbacks
	usageCallback     resourcequota.ResourceUsageCallback
	violationCallback resourcequota.ResourceViolationCallback

	// Control
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mutex  sync.RWMutex

	// State
	state      EnforcerState
	stopReason StopReason
	startedAt  time.Time
	ticks      uint64
	findings   []*analysis.PatternFinding

	// Forecast cached by the training goroutine after each retrain
	lastPrediction *analysis.ResourcePrediction
	lastAssessment *analysis.ScaleAssessment

	// Retrain handoff; one slot so a slow training run never blocks
	// the sampling loop
	retrainCh chan []resourcequota.ResourceUsage
}

// NewQuotaEnforcer creates an idle quota session. The quota is validated
// and copied; it cannot change for the session's lifetime.
func NewQuotaEnforcer(options EnforcerOptions, logger logging.Logger) (*QuotaEnforcer, error) {
	if err := resourcequota.ValidateQuota(options.Quota); err != nil {
		return nil, err
	}

	config := options.Config
	if err := resourcequota.ValidateMonitorConfig(&config); err != nil {
		return nil, err
	}
	config.ApplyDefaults()

	id := options.ID
	if id == "" {
		id = uuid.New().String()
	}

	sampler := options.Sampler
	if sampler == nil {
		gpu := options.GPU
		if gpu == nil {
			gpu = sampling.NoGPU{}
		}
		var err error
		sampler, err = sampling.New(options.Target, gpu, logger)
		if err != nil {
			return nil, err
		}
	}

	quota := *options.Quota

	return &QuotaEnforcer{
		id:      id,
		target:  options.Target,
		quota:   &quota,
		config:  config,
		logger:  logger,
		sampler: sampler,
		store: history.NewStore(history.Config{
			MaxEntries: config.MaxHistoryEntries,
			Retention:  config.RetentionWindow,
		}),
		checker:   resourcequota.NewViolationChecker(logger),
		analyzer:  analysis.NewPatternAnalyzer(config.SpikeK, logger),
		scaler:    analysis.NewPredictiveScaler(config.MinRetrainSamples, config.SampleInterval, logger),
		ledger:    NewViolationLedger(options.LedgerCapacity),
		state:     EnforcerStateIdle,
		retrainCh: make(chan []resourcequota.ResourceUsage, 1),
	}, nil
}

// Start launches the sampling loop
func (qe *QuotaEnforcer) Start(ctx context.Context) error {
	if ctx == nil {
		return errors.NewValidationError("context cannot be nil", nil)
	}

	qe.mutex.Lock()
	defer qe.mutex.Unlock()

	switch qe.state {
	case EnforcerStateMonitoring:
		return errors.NewConflictError("session is already monitoring", nil).WithContext("session_id", qe.id)
	case EnforcerStateStopped:
		return errors.NewValidationError("session is stopped and cannot be restarted", nil).WithContext("session_id", qe.id)
	}

	qe.ctx, qe.cancel = context.WithCancel(ctx)
	qe.state = EnforcerStateMonitoring
	qe.startedAt = time.Now()

	qe.logger.Infof("Starting quota session %s for %s, interval: %v, timeout: %v",
		qe.id, qe.target.String(), qe.config.SampleInterval, qe.quota.Timeout)

	qe.wg.Add(2)
	go qe.monitorLoop()
	go qe.trainLoop()

	return nil
}

// Stop cancels the sampling loop and waits for it to finish. Stopping a
// session that is not monitoring is a no-op.
func (qe *QuotaEnforcer) Stop() {
	qe.mutex.Lock()
	if qe.state != EnforcerStateMonitoring {
		qe.mutex.Unlock()
		qe.logger.Debugf("Quota session %s is not monitoring, nothing to stop", qe.id)
		return
	}
	qe.state = EnforcerStateStopped
	qe.stopReason = StopReasonRequested
	cancel := qe.cancel
	qe.mutex.Unlock()

	qe.logger.Infof("Stopping quota session %s for %s", qe.id, qe.target.String())

	cancel()
	qe.wg.Wait()

	qe.logger.Infof("Quota session %s stopped", qe.id)
}

// stopFromLoop transitions to stopped from inside the sampling loop.
// The loop goroutine exits on the cancelled context right after, so no
// wait happens here.
func (qe *QuotaEnforcer) stopFromLoop(reason StopReason) {
	qe.mutex.Lock()
	if qe.state != EnforcerStateMonitoring {
		qe.mutex.Unlock()
		return
	}
	qe.state = EnforcerStateStopped
	qe.stopReason = reason
	cancel := qe.cancel
	qe.mutex.Unlock()

	cancel()
}

// monitorLoop is the main sampling goroutine
func (qe *QuotaEnforcer) monitorLoop() {
	defer qe.wg.Done()

	ticker := time.NewTicker(qe.config.SampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-qe.ctx.Done():
			qe.logger.Debugf("Sampling loop stopped for session %s", qe.id)
			return

		case now := <-ticker.C:
			qe.tick(now)
		}
	}
}

// tick runs one pass of the sample/grade/analyze pipeline. A tick that
// raced a stop is dropped: ticks only process while monitoring.
func (qe *QuotaEnforcer) tick(now time.Time) {
	if qe.State() != EnforcerStateMonitoring {
		return
	}

	if qe.timedOut(now) {
		qe.logger.Infof("Quota session %s reached its timeout of %v, stopping", qe.id, qe.quota.Timeout)
		qe.stopFromLoop(StopReasonTimeout)
		return
	}

	usage, err := qe.sampler.Sample(now)
	if err != nil {
		if errors.IsSampleError(err) {
			qe.targetLost(now, err)
			return
		}
		qe.logger.Errorf("Failed to sample %s: %v", qe.target.String(), err)
		return
	}

	qe.store.Append(usage)

	violations := qe.checker.Check(usage, qe.quota)
	for _, violation := range violations {
		qe.recordViolation(violation)
	}

	qe.mutex.Lock()
	qe.ticks++
	ticks := qe.ticks
	usageCallback := qe.usageCallback
	qe.mutex.Unlock()

	if usageCallback != nil {
		usageCallback(usage)
	}

	if qe.config.AnalysisInterval > 0 && ticks%uint64(qe.config.AnalysisInterval) == 0 {
		qe.analyze()
	}
	if qe.config.RetrainInterval > 0 && ticks%uint64(qe.config.RetrainInterval) == 0 {
		qe.requestRetrain()
	}
}

// timedOut reports whether the session exceeded its quota timeout.
// Sessions without a timeout monitor until stopped.
func (qe *QuotaEnforcer) timedOut(now time.Time) bool {
	if qe.quota.Timeout <= 0 {
		return false
	}

	qe.mutex.RLock()
	startedAt := qe.startedAt
	qe.mutex.RUnlock()

	return now.Sub(startedAt) >= qe.quota.Timeout
}

// targetLost records the terminal sampling failure and stops the session
func (qe *QuotaEnforcer) targetLost(now time.Time, cause error) {
	qe.logger.Warnf("Target lost for session %s: %v", qe.id, cause)

	qe.recordViolation(resourcequota.NewTargetLostViolation(now, cause))
	qe.stopFromLoop(StopReasonTargetLost)
}

// recordViolation stores the violation and dispatches the callback
func (qe *QuotaEnforcer) recordViolation(violation *resourcequota.ResourceViolation) {
	qe.ledger.Record(violation)

	qe.logger.Warnf("Resource violation for %s: %s, severity: %s",
		qe.target.String(), violation.Message, violation.Severity)

	callback := qe.getViolationCallback()
	if callback != nil {
		go callback(violation)
	}
}

// analyze runs pattern detection over every resource series
func (qe *QuotaEnforcer) analyze() {
	var found []*analysis.PatternFinding
	for _, resourceType := range resourcequota.ResourceTypes() {
		points := qe.store.Series(resourceType)
		found = append(found, qe.analyzer.Analyze(resourceType, points)...)
	}
	if len(found) == 0 {
		return
	}

	for _, finding := range found {
		qe.logger.Infof("Pattern finding for %s: %s", qe.target.String(), finding.Message)
	}

	qe.mutex.Lock()
	qe.findings = append(qe.findings, found...)
	if overflow := len(qe.findings) - maxRetainedFindings; overflow > 0 {
		qe.findings = qe.findings[overflow:]
	}
	qe.mutex.Unlock()
}

// requestRetrain hands the history snapshot to the training goroutine.
// The handoff never blocks: if a training run is still in progress the
// snapshot is dropped and the next interval tries again.
func (qe *QuotaEnforcer) requestRetrain() {
	rows := qe.store.RecentRows(0)
	if len(rows) < qe.config.MinRetrainSamples {
		qe.logger.Debugf("Not enough history to retrain for session %s: %d rows", qe.id, len(rows))
		return
	}

	select {
	case qe.retrainCh <- rows:
	default:
		qe.logger.Debugf("Skipping retrain for session %s: previous run still in progress", qe.id)
	}
}

// trainLoop runs model retraining off the sampling goroutine
func (qe *QuotaEnforcer) trainLoop() {
	defer qe.wg.Done()

	for {
		select {
		case <-qe.ctx.Done():
			qe.logger.Debugf("Training loop stopped for session %s", qe.id)
			return

		case rows := <-qe.retrainCh:
			qe.handleRetrain(rows)
		}
	}
}

// handleRetrain fits fresh models, then computes and caches a forecast
// from them so a scale recommendation surfaces as soon as it is due
// instead of waiting for the next caller poll
func (qe *QuotaEnforcer) handleRetrain(rows []resourcequota.ResourceUsage) {
	if err := qe.scaler.Retrain(rows); err != nil {
		qe.logger.Warnf("Model training failed for session %s: %v", qe.id, err)
		return
	}
	qe.logger.Debugf("Model retrained for session %s on %d samples", qe.id, len(rows))

	usage, err := qe.CurrentUsage()
	if err != nil {
		return
	}

	prediction := qe.scaler.Predict(usage, qe.config.ForecastHorizon)
	assessment := qe.scaler.ShouldScale(usage, qe.quota, qe.config.ForecastHorizon)

	qe.mutex.Lock()
	qe.lastPrediction = prediction
	qe.lastAssessment = assessment
	qe.mutex.Unlock()

	for _, recommendation := range assessment.Recommendations {
		qe.logger.Warnf("Scale recommendation for %s: %s", qe.target.String(), recommendation.Message)
	}
}

// LatestForecast returns the prediction and scaling assessment computed
// after the most recent retrain, nil before the first one
func (qe *QuotaEnforcer) LatestForecast() (*analysis.ResourcePrediction, *analysis.ScaleAssessment) {
	qe.mutex.RLock()
	defer qe.mutex.RUnlock()
	return qe.lastPrediction, qe.lastAssessment
}

// ID returns the session identifier
func (qe *QuotaEnforcer) ID() string {
	return qe.id
}

// Target returns what the session samples
func (qe *QuotaEnforcer) Target() sampling.Target {
	return qe.target
}

// Quota returns a copy of the session quota
func (qe *QuotaEnforcer) Quota() resourcequota.ResourceQuota {
	return *qe.quota
}

// State returns the current lifecycle state
func (qe *QuotaEnforcer) State() EnforcerState {
	qe.mutex.RLock()
	defer qe.mutex.RUnlock()
	return qe.state
}

// LastStopReason returns why the session stopped, empty while it has not
func (qe *QuotaEnforcer) LastStopReason() StopReason {
	qe.mutex.RLock()
	defer qe.mutex.RUnlock()
	return qe.stopReason
}

// CurrentUsage returns the most recent usage sample
func (qe *QuotaEnforcer) CurrentUsage() (*resourcequota.ResourceUsage, error) {
	rows := qe.store.RecentRows(1)
	if len(rows) == 0 {
		return nil, errors.NewNotFoundError("no usage samples recorded yet", nil).WithContext("session_id", qe.id)
	}
	usage := rows[0]
	return &usage, nil
}

// UsageSeries returns the retained samples of one resource within the
// window, oldest first. A window <= 0 returns the full retained series.
func (qe *QuotaEnforcer) UsageSeries(resourceType resourcequota.ResourceType, window time.Duration) []history.Point {
	return qe.store.Window(resourceType, window)
}

// UsageRows returns up to n full samples, oldest first. n <= 0 returns
// all retained rows.
func (qe *QuotaEnforcer) UsageRows(n int) []resourcequota.ResourceUsage {
	return qe.store.RecentRows(n)
}

// Findings returns detected patterns, most recent first. A limit <= 0
// returns all retained findings.
func (qe *QuotaEnforcer) Findings(limit int) []*analysis.PatternFinding {
	qe.mutex.RLock()
	defer qe.mutex.RUnlock()

	n := len(qe.findings)
	if limit <= 0 || limit > n {
		limit = n
	}

	result := make([]*analysis.PatternFinding, limit)
	for i := 0; i < limit; i++ {
		result[i] = qe.findings[n-1-i]
	}
	return result
}

// Ledger returns the session's violation ledger
func (qe *QuotaEnforcer) Ledger() *ViolationLedger {
	return qe.ledger
}

// Predict forecasts usage from the latest sample. A horizon <= 0 uses
// the configured forecast horizon.
func (qe *QuotaEnforcer) Predict(horizon time.Duration) (*analysis.ResourcePrediction, error) {
	usage, err := qe.CurrentUsage()
	if err != nil {
		return nil, err
	}
	if horizon <= 0 {
		horizon = qe.config.ForecastHorizon
	}
	return qe.scaler.Predict(usage, horizon), nil
}

// AssessScaling checks the forecast against the quota's scaling
// thresholds. A horizon <= 0 uses the configured forecast horizon.
func (qe *QuotaEnforcer) AssessScaling(horizon time.Duration) (*analysis.ScaleAssessment, error) {
	usage, err := qe.CurrentUsage()
	if err != nil {
		return nil, err
	}
	if horizon <= 0 {
		horizon = qe.config.ForecastHorizon
	}
	return qe.scaler.ShouldScale(usage, qe.quota, horizon), nil
}

// SetUsageCallback sets the callback invoked after every sample
func (qe *QuotaEnforcer) SetUsageCallback(callback resourcequota.ResourceUsageCallback) {
	qe.mutex.Lock()
	defer qe.mutex.Unlock()
	qe.usageCallback = callback
}

// SetViolationCallback sets the callback invoked for every violation
func (qe *QuotaEnforcer) SetViolationCallback(callback resourcequota.ResourceViolationCallback) {
	qe.mutex.Lock()
	defer qe.mutex.Unlock()
	qe.violationCallback = callback
}

func (qe *QuotaEnforcer) getViolationCallback() resourcequota.ResourceViolationCallback {
	qe.mutex.RLock()
	defer qe.mutex.RUnlock()
	return qe.violationCallback
}

// SessionStatus is a point-in-time snapshot of a session
type SessionStatus struct {
	ID              string                      `json:"id"`
	Target          string                      `json:"target"`
	PID             int                         `json:"pid,omitempty"`
	State           EnforcerState               `json:"state"`
	StopReason      StopReason                  `json:"stop_reason,omitempty"`
	StartedAt       time.Time                   `json:"started_at,omitempty"`
	Ticks           uint64                      `json:"ticks"`
	Samples         int                         `json:"samples"`
	Violations      int                         `json:"violations"`
	TotalViolations uint64                      `json:"total_violations"`
	Findings        int                         `json:"findings"`
	TrainedSamples  int                         `json:"trained_samples"`
	Quota           resourcequota.ResourceQuota `json:"quota"`
}

// Status returns a snapshot of the session
func (qe *QuotaEnforcer) Status() SessionStatus {
	qe.mutex.RLock()
	state := qe.state
	stopReason := qe.stopReason
	startedAt := qe.startedAt
	ticks := qe.ticks
	findings := len(qe.findings)
	qe.mutex.RUnlock()

	return SessionStatus{
		ID:              qe.id,
		Target:          qe.target.String(),
		PID:             qe.target.PID,
		State:           state,
		StopReason:      stopReason,
		StartedAt:       startedAt,
		Ticks:           ticks,
		Samples:         qe.store.RowCount(),
		Violations:      qe.ledger.Len(),
		TotalViolations: qe.ledger.Recorded(),
		Findings:        findings,
		TrainedSamples:  qe.scaler.TrainedSamples(),
		Quota:           *qe.quota,
	}
}
