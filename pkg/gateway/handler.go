package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/core-tools/hsu-governor/pkg/errors"
	"github.com/core-tools/hsu-governor/pkg/governor"
	"github.com/core-tools/hsu-governor/pkg/logging"
	"github.com/core-tools/hsu-governor/pkg/resourcequota"
	"github.com/core-tools/hsu-governor/pkg/sampling"

	"github.com/gorilla/mux"
)

// Handler manages HTTP request handlers
type Handler struct {
	gov    *governor.Governor
	logger logging.Logger

	// ctx outlives individual requests; sessions started over HTTP run on
	// it, not on the request context
	ctx context.Context
}

// NewHandler creates a new HTTP handler
func NewHandler(ctx context.Context, gov *governor.Governor, logger logging.Logger) *Handler {
	return &Handler{
		gov:    gov,
		logger: logger,
		ctx:    ctx,
	}
}

// SetupRoutes configures API routes
func SetupRoutes(router *mux.Router, h *Handler) {
	// Session lifecycle
	router.HandleFunc("/sessions", h.ListSessions).Methods("GET")
	router.HandleFunc("/sessions", h.StartSession).Methods("POST")
	router.HandleFunc("/sessions/{id}", h.GetSession).Methods("GET")
	router.HandleFunc("/sessions/{id}", h.RemoveSession).Methods("DELETE")
	router.HandleFunc("/sessions/{id}/stop", h.StopSession).Methods("POST")

	// Usage and history
	router.HandleFunc("/sessions/{id}/usage", h.GetUsage).Methods("GET")
	router.HandleFunc("/sessions/{id}/usage/history", h.GetUsageHistory).Methods("GET")
	router.HandleFunc("/sessions/{id}/series/{resource}", h.GetSeries).Methods("GET")

	// Violations
	router.HandleFunc("/sessions/{id}/violations", h.GetViolations).Methods("GET")
	router.HandleFunc("/sessions/{id}/violations", h.ClearViolations).Methods("DELETE")

	// Analysis
	router.HandleFunc("/sessions/{id}/findings", h.GetFindings).Methods("GET")
	router.HandleFunc("/sessions/{id}/prediction", h.GetPrediction).Methods("GET")
	router.HandleFunc("/sessions/{id}/scaling", h.GetScaling).Methods("GET")
}

// StartSessionRequest is the POST /sessions request body
type StartSessionRequest struct {
	Name       string                       `json:"name,omitempty"`
	PID        int                          `json:"pid,omitempty"`
	Quota      *resourcequota.ResourceQuota `json:"quota"`
	Monitoring *resourcequota.MonitorConfig `json:"monitoring,omitempty"`
}

// ListSessions handles GET /sessions
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	statuses := h.gov.Describe()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": statuses,
		"total":    len(statuses),
	})
}

// StartSession handles POST /sessions
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid request body")
		return
	}

	id, err := h.gov.StartSession(h.ctx, governor.SessionRequest{
		Target: sampling.Target{PID: req.PID, Name: req.Name},
		Quota:  req.Quota,
		Config: req.Monitoring,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// GetSession handles GET /sessions/{id}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}

	respondJSON(w, http.StatusOK, session.Status())
}

// StopSession handles POST /sessions/{id}/stop
func (h *Handler) StopSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.gov.StopSession(id); err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "Session stopped", "id": id})
}

// RemoveSession handles DELETE /sessions/{id}
func (h *Handler) RemoveSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.gov.RemoveSession(id); err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "Session removed", "id": id})
}

// GetUsage handles GET /sessions/{id}/usage
func (h *Handler) GetUsage(w http.ResponseWriter, r *http.Request) {
	session, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}

	usage, err := session.CurrentUsage()
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, usage)
}

// GetUsageHistory handles GET /sessions/{id}/usage/history?limit=N
func (h *Handler) GetUsageHistory(w http.ResponseWriter, r *http.Request) {
	session, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}

	limit, err := queryLimit(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	rows := session.UsageRows(limit)
	if rows == nil {
		rows = []resourcequota.ResourceUsage{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"samples": rows,
		"count":   len(rows),
	})
}

// GetSeries handles GET /sessions/{id}/series/{resource}?window=30s
func (h *Handler) GetSeries(w http.ResponseWriter, r *http.Request) {
	session, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}

	resourceType, err := parseResourceType(mux.Vars(r)["resource"])
	if err != nil {
		respondDomainError(w, err)
		return
	}

	window, err := queryDuration(r, "window")
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	points := session.UsageSeries(resourceType, window)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"resource": resourceType,
		"points":   points,
		"count":    len(points),
	})
}

// GetViolations handles GET /sessions/{id}/violations?limit=N
func (h *Handler) GetViolations(w http.ResponseWriter, r *http.Request) {
	session, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}

	limit, err := queryLimit(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	ledger := session.Ledger()
	violations := ledger.History(limit)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"violations":     violations,
		"count":          len(violations),
		"total_recorded": ledger.Recorded(),
	})
}

// ClearViolations handles DELETE /sessions/{id}/violations
func (h *Handler) ClearViolations(w http.ResponseWriter, r *http.Request) {
	session, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}

	cleared := session.Ledger().Clear()
	h.logger.Infof("Cleared %d violations for session %s", cleared, session.ID())

	respondJSON(w, http.StatusOK, map[string]int{"cleared": cleared})
}

// GetFindings handles GET /sessions/{id}/findings?limit=N
func (h *Handler) GetFindings(w http.ResponseWriter, r *http.Request) {
	session, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}

	limit, err := queryLimit(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	findings := session.Findings(limit)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"findings": findings,
		"count":    len(findings),
	})
}

// GetPrediction handles GET /sessions/{id}/prediction?horizon=30s
func (h *Handler) GetPrediction(w http.ResponseWriter, r *http.Request) {
	session, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}

	horizon, err := queryDuration(r, "horizon")
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	prediction, err := session.Predict(horizon)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, prediction)
}

// GetScaling handles GET /sessions/{id}/scaling?horizon=30s
func (h *Handler) GetScaling(w http.ResponseWriter, r *http.Request) {
	session, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}

	horizon, err := queryDuration(r, "horizon")
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	assessment, err := session.AssessScaling(horizon)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, assessment)
}

// sessionFromRequest resolves the {id} path variable to a session,
// writing the error response on failure
func (h *Handler) sessionFromRequest(w http.ResponseWriter, r *http.Request) (*governor.QuotaEnforcer, bool) {
	id := mux.Vars(r)["id"]

	session, err := h.gov.Session(id)
	if err != nil {
		respondDomainError(w, err)
		return nil, false
	}
	return session, true
}

// queryLimit parses the optional limit query parameter; absent means 0
func queryLimit(r *http.Request) (int, error) {
	value := r.URL.Query().Get("limit")
	if value == "" {
		return 0, nil
	}

	limit, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid limit %q", value)
	}
	return limit, nil
}

// queryDuration parses an optional duration query parameter like "30s";
// absent means 0
func queryDuration(r *http.Request, name string) (time.Duration, error) {
	value := r.URL.Query().Get(name)
	if value == "" {
		return 0, nil
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, value)
	}
	return duration, nil
}

// parseResourceType resolves a path segment to a known resource type
func parseResourceType(value string) (resourcequota.ResourceType, error) {
	for _, resourceType := range resourcequota.ResourceTypes() {
		if string(resourceType) == value {
			return resourceType, nil
		}
	}
	return "", errors.NewValidationError(fmt.Sprintf("unknown resource type: %s", value), nil)
}
