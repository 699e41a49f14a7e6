// Package server exposes the run archive over a read-only JSON API.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/ragle/driver-recon/internal/store"
)

const maxLimit = 500

// Handler serves archived runs.
type Handler struct {
	store store.Store
	log   *zap.Logger
}

// New creates a handler backed by st.
func New(st store.Store) *Handler {
	return &Handler{store: st, log: zap.L().With(zap.String("component", "server"))}
}

// Register mounts the run routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/health", h.HandleHealth)
	r.Route("/runs", func(r chi.Router) {
		r.Get("/", h.HandleListRuns)
		r.Get("/{date}", h.HandleLatestRun)
		r.Get("/{date}/summary", h.HandleLatestSummary)
		r.Get("/{date}/identities", h.HandleIdentities)
	})
}

// Router returns a chi router with CORS for allowedOrigins and every route
// registered. An empty origin list allows any origin.
func Router(h *Handler, allowedOrigins []string) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	h.Register(r)
	return r
}

// HandleHealth reports liveness.
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleListRuns lists archived runs, newest first. ?limit= caps the page and
// ?date= filters by report date.
func (h *Handler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	filter := store.RunFilter{Limit: 50}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = min(n, maxLimit)
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		filter.Offset = n
	}
	if v := r.URL.Query().Get("date"); v != "" {
		if !validDate(v) {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		filter.Date = v
	}

	runs, err := h.store.ListRuns(r.Context(), filter)
	if err != nil {
		h.internal(w, r, err)
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// HandleLatestRun returns the newest run for {date}, report included.
func (h *Handler) HandleLatestRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.latest(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// HandleLatestSummary returns only the summary of the newest run for {date}.
func (h *Handler) HandleLatestSummary(w http.ResponseWriter, r *http.Request) {
	run, ok := h.latest(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(run.Summary) //nolint:errcheck
}

// HandleIdentities returns the identity rows of the newest run for {date}.
func (h *Handler) HandleIdentities(w http.ResponseWriter, r *http.Request) {
	run, ok := h.latest(w, r)
	if !ok {
		return
	}
	ids, err := h.store.Identities(r.Context(), run.ID)
	if err != nil {
		h.internal(w, r, err)
		return
	}
	if ids == nil {
		ids = []store.IdentityRow{}
	}
	writeJSON(w, http.StatusOK, ids)
}

func (h *Handler) latest(w http.ResponseWriter, r *http.Request) (*store.Run, bool) {
	date := chi.URLParam(r, "date")
	if !validDate(date) {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return nil, false
	}
	run, err := h.store.GetLatestRun(r.Context(), date)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no run for "+date)
		return nil, false
	}
	if err != nil {
		h.internal(w, r, err)
		return nil, false
	}
	return run, true
}

func (h *Handler) internal(w http.ResponseWriter, r *http.Request, err error) {
	h.log.Error("server: request failed",
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func validDate(s string) bool {
	_, err := time.Parse(time.DateOnly, s)
	return err == nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
