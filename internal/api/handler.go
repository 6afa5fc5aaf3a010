// Package api exposes the memory system over HTTP: REST routes for worm
// memory operations, a dashboard page, and a WebSocket stats feed.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/wormworks/agentic-worm/internal/demo"
	"github.com/wormworks/agentic-worm/internal/memory"
	"github.com/wormworks/agentic-worm/internal/metrics"
	"github.com/wormworks/agentic-worm/internal/world"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	mem       *memory.Manager
	runner    *demo.Runner
	collector *metrics.Collector
	metrics   *metrics.Metrics
	clock     *world.Clock
	logger    *zap.Logger
	started   time.Time
}

// NewHandler creates a new API handler.
func NewHandler(
	mem *memory.Manager,
	runner *demo.Runner,
	collector *metrics.Collector,
	m *metrics.Metrics,
	clock *world.Clock,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		mem:       mem,
		runner:    runner,
		collector: collector,
		metrics:   m,
		clock:     clock,
		logger:    logger,
		started:   time.Now(),
	}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/", h.dashboard)
	r.Get("/health", h.healthCheck)
	r.Get("/ws", h.handleWebSocket)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)
		r.Get("/world/status", h.worldStatus)

		r.Post("/demo", h.startDemo)
		r.Get("/demo", h.demoStatus)
		r.Post("/memory/query", h.queryMemories)

		r.Get("/worms", h.listWorms)
		r.Route("/worms/{id}", func(r chi.Router) {
			r.Get("/stats", h.wormStats)
			r.Get("/state", h.wormState)
			r.Post("/experiences", h.recordExperience)
			r.Get("/experiences", h.recentExperiences)
			r.Post("/memories/query", h.queryMemories)
			r.Get("/context", h.spatialContext)
			r.Get("/strategies", h.listStrategies)
			r.Post("/strategies", h.createStrategy)
			r.Post("/consolidate", h.consolidate)
			r.Get("/series", h.wormSeries)
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK
	if err := h.mem.Ping(r.Context()); err != nil {
		status = "degraded: " + err.Error()
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":         status,
		"service":        "agentic-worm",
		"uptime_seconds": int(time.Since(h.started).Seconds()),
	})
}

func (h *Handler) listWorms(w http.ResponseWriter, r *http.Request) {
	var worms []string
	if h.collector != nil {
		worms = h.collector.Worms()
	}
	if st := h.runner.Status(); st.Running {
		found := false
		for _, id := range worms {
			if id == st.WormID {
				found = true
				break
			}
		}
		if !found {
			worms = append(worms, st.WormID)
		}
	}
	if worms == nil {
		worms = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"worms": worms})
}

func (h *Handler) wormState(w http.ResponseWriter, r *http.Request) {
	wormID := chi.URLParam(r, "id")
	if h.collector == nil {
		writeError(w, http.StatusNotFound, errors.New("no state recorded"))
		return
	}
	samples := h.collector.Series(wormID, 1)
	if len(samples) == 0 {
		writeError(w, http.StatusNotFound, errors.New("unknown worm: "+wormID))
		return
	}
	resp := map[string]any{
		"worm_id": wormID,
		"state":   samples[0],
	}
	if st := h.runner.Status(); st.Running && st.WormID == wormID {
		resp["scenario"] = st.Scenario
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) recentExperiences(w http.ResponseWriter, r *http.Request) {
	wormID := chi.URLParam(r, "id")
	limit := intQuery(r, "limit", 20)

	exps, err := h.mem.RecentExperiences(r.Context(), wormID, time.Time{}, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if exps == nil {
		exps = []memory.Experience{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":       len(exps),
		"experiences": exps,
	})
}

func (h *Handler) worldStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"demo": h.runner.Status(),
	}
	if h.clock != nil {
		resp["world_time"] = h.clock.WorldTime().UTC().Format(time.RFC3339)
		resp["ticks"] = h.clock.Ticks()
	}
	if h.collector != nil {
		resp["activity"] = h.collector.Summarize()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) wormStats(w http.ResponseWriter, r *http.Request) {
	wormID := chi.URLParam(r, "id")
	stats, err := h.mem.Stats(r.Context(), wormID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) recordExperience(w http.ResponseWriter, r *http.Request) {
	var exp memory.Experience
	if err := json.NewDecoder(r.Body).Decode(&exp); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	exp.WormID = chi.URLParam(r, "id")

	id, err := h.mem.RecordExperience(r.Context(), &exp)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if h.metrics != nil {
		h.metrics.ExperiencesRecorded.Inc()
	}
	writeJSON(w, http.StatusCreated, map[string]string{"experience_id": id})
}

// queryMemories serves both the per-worm route and /api/memory/query; on the
// per-worm route the URL id overrides whatever the body says.
func (h *Handler) queryMemories(w http.ResponseWriter, r *http.Request) {
	var q memory.Query
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if id := chi.URLParam(r, "id"); id != "" {
		q.WormID = id
	}

	results, err := h.mem.Query(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if results == nil {
		results = []memory.Result{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(results),
		"results": results,
	})
}

func (h *Handler) spatialContext(w http.ResponseWriter, r *http.Request) {
	wormID := chi.URLParam(r, "id")
	loc, err := locationFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	radius := floatQuery(r, "radius", 0)

	sc, err := h.mem.SpatialContext(r.Context(), wormID, loc, radius)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

func (h *Handler) listStrategies(w http.ResponseWriter, r *http.Request) {
	wormID := chi.URLParam(r, "id")
	goal := r.URL.Query().Get("goal")
	limit := intQuery(r, "limit", 5)

	strategies, err := h.mem.BestStrategies(r.Context(), wormID, goal, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if strategies == nil {
		strategies = []memory.Strategy{}
	}
	writeJSON(w, http.StatusOK, strategies)
}

func (h *Handler) createStrategy(w http.ResponseWriter, r *http.Request) {
	var strat memory.Strategy
	if err := json.NewDecoder(r.Body).Decode(&strat); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	strat.WormID = chi.URLParam(r, "id")

	id, err := h.mem.CreateStrategy(r.Context(), &strat)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"strategy_id": id})
}

func (h *Handler) consolidate(w http.ResponseWriter, r *http.Request) {
	wormID := chi.URLParam(r, "id")
	result, err := h.mem.Consolidate(r.Context(), wormID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if h.metrics != nil {
		h.metrics.Consolidations.Inc()
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) wormSeries(w http.ResponseWriter, r *http.Request) {
	if h.collector == nil {
		writeJSON(w, http.StatusOK, []metrics.Sample{})
		return
	}
	wormID := chi.URLParam(r, "id")
	limit := intQuery(r, "limit", 120)
	writeJSON(w, http.StatusOK, h.collector.Series(wormID, limit))
}

type demoRequest struct {
	Scenario        string `json:"scenario"`
	DurationSeconds int    `json:"duration_seconds"`
}

func (h *Handler) startDemo(w http.ResponseWriter, r *http.Request) {
	var req demoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Scenario == "" {
		req.Scenario = demo.ScenarioBasic
	}

	report, err := h.runner.Run(r.Context(), req.Scenario, time.Duration(req.DurationSeconds)*time.Second)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, demo.ErrBusy):
			status = http.StatusConflict
		case errors.Is(err, demo.ErrUnknownScenario):
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) demoStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    h.runner.Status(),
		"scenarios": demo.Scenarios(),
	})
}
