package governor

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/core-tools/hsu-governor/pkg/errors"
	"github.com/core-tools/hsu-governor/pkg/logging"
	"github.com/core-tools/hsu-governor/pkg/resourcequota"
	"github.com/core-tools/hsu-governor/pkg/sampling"

	"github.com/google/uuid"
)

// GovernorOptions configures a Governor
type GovernorOptions struct {
	// Defaults is the monitoring cadence applied to sessions that do
	// not override it
	Defaults resourcequota.MonitorConfig

	// LedgerCapacity bounds each session's violation ledger
	LedgerCapacity int
}

// GovernorState represents the current state of the governor
type GovernorState string

const (
	// GovernorStateNotStarted is the initial state before Start() is called
	GovernorStateNotStarted GovernorState = "not_started"

	// GovernorStateRunning means the governor can manage sessions
	GovernorStateRunning GovernorState = "running"

	// GovernorStateStopping means the governor is shutting down
	GovernorStateStopping GovernorState = "stopping"

	// GovernorStateStopped means the governor has stopped
	GovernorStateStopped GovernorState = "stopped"
)

// SessionRequest describes a session to start
type SessionRequest struct {
	// Target is what to sample; a zero PID means the whole host
	Target sampling.Target

	// Quota holds the hard limits for the session. Required.
	Quota *resourcequota.ResourceQuota

	// Config overrides the governor's default monitoring cadence
	Config *resourcequota.MonitorConfig

	// GPU supplies GPU memory readings; nil means no GPU
	GPU sampling.GPUReader

	// Sampler overrides the target-derived sampler
	Sampler sampling.Sampler
}

// Session-scoped event callbacks carry the session ID so one consumer
// can watch every session
type SessionUsageCallback func(sessionID string, usage *resourcequota.ResourceUsage)
type SessionViolationCallback func(sessionID string, violation *resourcequota.ResourceViolation)

// Governor owns quota sessions: it starts them, routes their events and
// answers queries about them. Each session keeps its own history and
// ledger; the governor never shares them between sessions.
type Governor struct {
	options  GovernorOptions
	logger   logging.Logger
	sessions map[string]*QuotaEnforcer
	state    GovernorState
	mutex    sync.Mutex

	usageCallback     SessionUsageCallback
	violationCallback SessionViolationCallback
}

// NewGovernor creates a governor with no sessions
func NewGovernor(options GovernorOptions, logger logging.Logger) *Governor {
	return &Governor{
		options:  options,
		logger:   logger,
		sessions: make(map[string]*QuotaEnforcer),
		state:    GovernorStateNotStarted,
	}
}

// Start transitions the governor to running
func (g *Governor) Start(ctx context.Context) {
	g.logger.Infof("Starting governor...")

	g.setState(GovernorStateRunning)

	g.logger.Infof("Governor started")
}

// Stop stops every session and transitions the governor to stopped
func (g *Governor) Stop(ctx context.Context) {
	g.logger.Infof("Stopping governor...")

	g.setState(GovernorStateStopping)

	// 1. Snapshot sessions under lock
	sessionsCopy := g.getAllSessions()

	// 2. Stop sessions outside of lock
	for id, session := range sessionsCopy {
		session.Stop()
		g.logger.Debugf("Session stopped, id: %s", id)
	}

	g.setState(GovernorStateStopped)

	g.logger.Infof("Governor stopped, sessions: %d", len(sessionsCopy))
}

// StartSession creates a quota session for the request's target and
// launches its sampling loop. Returns the generated session ID.
func (g *Governor) StartSession(ctx context.Context, request SessionRequest) (string, error) {
	if ctx == nil {
		return "", errors.NewValidationError("context cannot be nil", nil)
	}
	if request.Target.Name != "" {
		if err := ValidateTargetName(request.Target.Name); err != nil {
			return "", err
		}
	}
	if request.Target.PID < 0 {
		return "", errors.NewValidationError(
			fmt.Sprintf("invalid target pid: %d", request.Target.PID), nil)
	}

	currentState := g.GetState()
	if currentState != GovernorStateRunning {
		return "", errors.NewValidationError(
			fmt.Sprintf("governor must be running to start sessions, current state: %s", currentState),
			nil,
		).WithContext("governor_state", string(currentState))
	}

	config := g.options.Defaults
	if request.Config != nil {
		config = *request.Config
	}

	id := uuid.New().String()

	// Per-session logger tags every line with the session ID
	sessionLogger := logging.WithPrefix(g.logger, "session: "+id+" , ")

	session, err := NewQuotaEnforcer(EnforcerOptions{
		ID:             id,
		Target:         request.Target,
		Quota:          request.Quota,
		Config:         config,
		Sampler:        request.Sampler,
		GPU:            request.GPU,
		LedgerCapacity: g.options.LedgerCapacity,
	}, sessionLogger)
	if err != nil {
		return "", err
	}

	session.SetUsageCallback(func(usage *resourcequota.ResourceUsage) {
		g.dispatchUsage(id, usage)
	})
	session.SetViolationCallback(func(violation *resourcequota.ResourceViolation) {
		g.dispatchViolation(id, violation)
	})

	g.logger.Infof("Adding session, id: %s, target: %s", id, request.Target.String())

	g.mutex.Lock()
	if _, exists := g.sessions[id]; exists {
		g.mutex.Unlock()
		return "", errors.NewConflictError("session already exists", nil).WithContext("session_id", id)
	}
	g.sessions[id] = session
	g.mutex.Unlock()

	if err := session.Start(ctx); err != nil {
		g.mutex.Lock()
		delete(g.sessions, id)
		g.mutex.Unlock()

		g.logger.Errorf("Failed to start session, id: %s, error: %v", id, err)
		return "", err
	}

	g.logger.Infof("Session started successfully, id: %s, state: %s", id, session.State())
	return id, nil
}

// StopSession stops a session's sampling loop. The stopped session stays
// registered for inspection until removed.
func (g *Governor) StopSession(id string) error {
	session, err := g.Session(id)
	if err != nil {
		return err
	}

	g.logger.Infof("Stopping session, id: %s", id)
	session.Stop()
	return nil
}

// RemoveSession drops a stopped session from the registry
func (g *Governor) RemoveSession(id string) error {
	session, err := g.Session(id)
	if err != nil {
		return err
	}

	if state := session.State(); state == EnforcerStateMonitoring {
		return errors.NewValidationError(
			fmt.Sprintf("cannot remove session in state '%s': session must be stopped before removal", state),
			nil,
		).WithContext("session_id", id).
			WithContext("suggested_action", "call StopSession first")
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	// Double-check existence under lock
	if _, exists := g.sessions[id]; !exists {
		return errors.NewNotFoundError("session not found", nil).WithContext("session_id", id)
	}
	delete(g.sessions, id)

	g.logger.Infof("Session removed, id: %s", id)
	return nil
}

// Session returns a registered session by ID
func (g *Governor) Session(id string) (*QuotaEnforcer, error) {
	if id == "" {
		return nil, errors.NewValidationError("session ID cannot be empty", nil)
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	session, exists := g.sessions[id]
	if !exists {
		return nil, errors.NewNotFoundError("session not found", nil).WithContext("session_id", id)
	}
	return session, nil
}

// SessionIDs returns all registered session IDs, sorted
func (g *Governor) SessionIDs() []string {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	ids := make([]string, 0, len(g.sessions))
	for id := range g.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Describe returns a status snapshot of every session, sorted by ID
func (g *Governor) Describe() []SessionStatus {
	sessionsCopy := g.getAllSessions()

	result := make([]SessionStatus, 0, len(sessionsCopy))
	for _, session := range sessionsCopy {
		result = append(result, session.Status())
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result
}

// GetState returns the current state of the governor
func (g *Governor) GetState() GovernorState {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	return g.state
}

// SetUsageCallback sets the callback invoked for every session's samples
func (g *Governor) SetUsageCallback(callback SessionUsageCallback) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	g.usageCallback = callback
}

// SetViolationCallback sets the callback invoked for every session's
// violations
func (g *Governor) SetViolationCallback(callback SessionViolationCallback) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	g.violationCallback = callback
}

func (g *Governor) dispatchUsage(sessionID string, usage *resourcequota.ResourceUsage) {
	g.mutex.Lock()
	callback := g.usageCallback
	g.mutex.Unlock()

	if callback != nil {
		callback(sessionID, usage)
	}
}

func (g *Governor) dispatchViolation(sessionID string, violation *resourcequota.ResourceViolation) {
	g.mutex.Lock()
	callback := g.violationCallback
	g.mutex.Unlock()

	if callback != nil {
		callback(sessionID, violation)
	}
}

// getAllSessions returns a copy of the session map under lock
func (g *Governor) getAllSessions() map[string]*QuotaEnforcer {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	sessionsCopy := make(map[string]*QuotaEnforcer, len(g.sessions))
	for id, session := range g.sessions {
		sessionsCopy[id] = session
	}
	return sessionsCopy
}

func (g *Governor) setState(state GovernorState) {
	g.mutex.Lock()
	g.state = state
	g.mutex.Unlock()
}
