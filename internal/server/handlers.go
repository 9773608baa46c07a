package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/promptmeter/spendgate/internal/metrics"
	"github.com/promptmeter/spendgate/internal/spendlogs"
	"github.com/promptmeter/spendgate/internal/storage"
	"github.com/promptmeter/spendgate/internal/tracking"
)

const dateLayout = "2006-01-02"

// Handlers exposes the spend tracking HTTP surface.
type Handlers struct {
	tracker *tracking.Tracker
	store   storage.SpendLogStore
	metrics *metrics.Collector
	logger  *slog.Logger
}

// NewHandlers creates the handler set. metrics may be nil, in which
// case /metrics is not registered.
func NewHandlers(tracker *tracking.Tracker, store storage.SpendLogStore, collector *metrics.Collector, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{tracker: tracker, store: store, metrics: collector, logger: logger}
}

// Register mounts all routes on the router.
func (h *Handlers) Register(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	}
	r.Route("/v1/spend", func(r chi.Router) {
		r.Post("/logs", h.handleIngest)
		r.Get("/logs", h.handleList)
		r.Get("/logs/{request_id}", h.handleGet)
		r.Get("/by-team", h.handleByTeam)
	})
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleIngest accepts one call context and writes its spend record.
func (h *Handlers) handleIngest(w http.ResponseWriter, r *http.Request) {
	var call spendlogs.CallContext
	if err := json.NewDecoder(r.Body).Decode(&call); err != nil {
		writeError(w, http.StatusBadRequest, "invalid call context: "+err.Error())
		return
	}

	payload, err := h.tracker.Track(r.Context(), &call)
	if err != nil {
		AddError(r.Context(), err)
		writeError(w, http.StatusInternalServerError, "failed to record spend log")
		return
	}

	AddLogField(r.Context(), "spend_request_id", payload.RequestID)
	writeJSON(w, http.StatusCreated, payload)
}

func (h *Handlers) handleGet(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "request_id")

	payload, err := h.store.GetSpendLog(r.Context(), requestID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "spend log not found")
			return
		}
		AddError(r.Context(), err)
		writeError(w, http.StatusInternalServerError, "failed to load spend log")
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (h *Handlers) handleList(w http.ResponseWriter, r *http.Request) {
	opts := storage.ListOptions{
		TeamID:  r.URL.Query().Get("team_id"),
		EndUser: r.URL.Query().Get("end_user"),
		Limit:   intParam(r, "limit", 100),
		Offset:  intParam(r, "offset", 0),
	}

	logs, err := h.store.ListSpendLogs(r.Context(), opts)
	if err != nil {
		AddError(r.Context(), err)
		writeError(w, http.StatusInternalServerError, "failed to list spend logs")
		return
	}
	if logs == nil {
		logs = []*spendlogs.Payload{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": logs})
}

// handleByTeam reports day-bucketed spend for one team/customer pair.
func (h *Handlers) handleByTeam(w http.ResponseWriter, r *http.Request) {
	teamID := r.URL.Query().Get("team_id")
	if teamID == "" {
		writeError(w, http.StatusBadRequest, "team_id is required")
		return
	}
	endUser := r.URL.Query().Get("end_user")

	end, err := dateParam(r, "end_date", time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end_date, want YYYY-MM-DD")
		return
	}
	start, err := dateParam(r, "start_date", end.AddDate(0, 0, -30))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start_date, want YYYY-MM-DD")
		return
	}
	// Cover the whole end day.
	end = end.Add(24*time.Hour - time.Nanosecond)

	days, err := h.store.SpendByTeamAndCustomer(r.Context(), start, end, teamID, endUser)
	if err != nil {
		AddError(r.Context(), err)
		writeError(w, http.StatusInternalServerError, "failed to aggregate spend")
		return
	}
	if days == nil {
		days = []storage.DailySpend{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": days})
}

func intParam(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func dateParam(r *http.Request, name string, fallback time.Time) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Date(fallback.Year(), fallback.Month(), fallback.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return time.Parse(dateLayout, raw)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{"message": message},
	})
}
