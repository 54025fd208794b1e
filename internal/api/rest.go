package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pairlab/internal/event"
	"pairlab/internal/experiment"
	"pairlab/internal/gateway"
	"pairlab/internal/logging"
	"pairlab/internal/metrics"
	"pairlab/internal/results"
	"pairlab/internal/version"
)

const (
	statusTimeout      = 2 * time.Second
	resultsTimeout     = 5 * time.Second
	defaultLogLimit    = 200
	defaultResultLimit = 100
	maxListLimit       = 1000
)

type RestHandler struct {
	Hub     *gateway.Hub
	Stimuli experiment.StimulusSource
	Results results.Store
	Logger  *logging.Logger
	Metrics *metrics.Registry
}

type statusResponse struct {
	Version      version.VersionInfo          `json:"version"`
	ServerTime   time.Time                    `json:"server_time"`
	Stimuli      string                       `json:"stimuli,omitempty"`
	TrialsPerRun int                          `json:"trials_per_pair"`
	Waiting      []string                     `json:"waiting"`
	Participants []experiment.ParticipantView `json:"participants"`
	Pairs        []experiment.PairView        `json:"pairs"`
	Counters     statusCounters               `json:"counters"`
	Recording    bool                         `json:"recording"`
}

type statusCounters struct {
	ActiveParticipants int64 `json:"active_participants"`
	TrialsCompleted    int64 `json:"trials_completed"`
	Dropouts           int64 `json:"dropouts"`
}

type resultsResponse struct {
	Trials []event.TrialRecord `json:"trials"`
}

func (h *RestHandler) handleStatus(w http.ResponseWriter, r *http.Request) *apiError {
	if h.Hub == nil {
		return &apiError{Status: http.StatusServiceUnavailable, Message: "experiment unavailable"}
	}
	ctx, cancel := context.WithTimeout(r.Context(), statusTimeout)
	defer cancel()

	snapshot, err := h.Hub.Status(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &apiError{Status: http.StatusGatewayTimeout, Message: "status timed out"}
		}
		return &apiError{Status: http.StatusServiceUnavailable, Message: err.Error()}
	}

	response := statusResponse{
		Version:      version.GetVersionInfo(),
		ServerTime:   time.Now().UTC(),
		Waiting:      snapshot.Waiting,
		Participants: snapshot.Participants,
		Pairs:        snapshot.Pairs,
		Counters: statusCounters{
			ActiveParticipants: h.Metrics.ActiveParticipants(),
			TrialsCompleted:    h.Metrics.TrialsCompleted(),
			Dropouts:           h.Metrics.Dropouts(),
		},
		Recording: h.Results != nil,
	}
	if h.Stimuli != nil {
		set := h.Stimuli.Current()
		response.Stimuli = set.Name
		response.TrialsPerRun = len(set.Targets)
	}
	writeJSON(w, http.StatusOK, response)
	return nil
}

func (h *RestHandler) handleLogs(w http.ResponseWriter, r *http.Request) *apiError {
	query := r.URL.Query()
	limit, apiErr := parseLimit(query.Get("limit"), defaultLogLimit)
	if apiErr != nil {
		return apiErr
	}
	minLevel, hasLevel := logging.ParseLevel(query.Get("level"))
	if raw := strings.TrimSpace(query.Get("level")); raw != "" && !hasLevel {
		return &apiError{Status: http.StatusBadRequest, Message: "unknown log level"}
	}
	category := strings.TrimSpace(query.Get("category"))

	entries := h.Logger.Buffer().List()
	filtered := make([]logging.LogEntry, 0, len(entries))
	for _, entry := range entries {
		if hasLevel && !logging.LevelAtLeast(entry.Level, minLevel) {
			continue
		}
		if category != "" && entry.Context[logging.FieldCategory] != category {
			continue
		}
		filtered = append(filtered, entry)
	}
	if len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}
	writeJSON(w, http.StatusOK, filtered)
	return nil
}

func (h *RestHandler) handleResults(w http.ResponseWriter, r *http.Request) *apiError {
	if h.Results == nil {
		return &apiError{Status: http.StatusServiceUnavailable, Message: "result recording disabled"}
	}
	query := r.URL.Query()
	limit, apiErr := parseLimit(query.Get("limit"), defaultResultLimit)
	if apiErr != nil {
		return apiErr
	}
	ctx, cancel := context.WithTimeout(r.Context(), resultsTimeout)
	defer cancel()

	var (
		trials []event.TrialRecord
		err    error
	)
	if pairID := strings.TrimSpace(query.Get("pair")); pairID != "" {
		trials, err = h.Results.PairTrials(ctx, pairID)
	} else {
		trials, err = h.Results.RecentTrials(ctx, limit)
	}
	if err != nil {
		h.Logger.Error("results query failed", map[string]string{
			"error": err.Error(),
		})
		return &apiError{Status: http.StatusInternalServerError, Message: "results query failed"}
	}
	if trials == nil {
		trials = []event.TrialRecord{}
	}
	writeJSON(w, http.StatusOK, resultsResponse{Trials: trials})
	return nil
}

func (h *RestHandler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	if err := h.Metrics.WritePrometheus(w); err != nil {
		h.Logger.Warn("metrics write failed", map[string]string{
			"error": err.Error(),
		})
	}
}

func (h *RestHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func parseLimit(raw string, fallback int) (int, *apiError) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, &apiError{Status: http.StatusBadRequest, Message: "limit must be a positive integer"}
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return limit, nil
}
