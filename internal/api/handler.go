package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arcwell-foundry/Aria-sub002/internal/discovery"
	"github.com/arcwell-foundry/Aria-sub002/internal/skill"
	"github.com/arcwell-foundry/Aria-sub002/internal/trigger"
)

// PlanReader reads and approves persisted execution plans.
type PlanReader interface {
	GetExecutionPlan(ctx context.Context, id string) (*trigger.ExecutionPlan, error)
	ApproveExecutionPlan(ctx context.Context, id string) error
}

// SignalStore persists ingested signals for recency lookups.
type SignalStore interface {
	SaveSignal(ctx context.Context, sig *trigger.Signal) error
}

// SignalIndexer adds ingested signals to the similarity index.
type SignalIndexer interface {
	IndexSignal(ctx context.Context, sig *trigger.Signal) error
}

// EntityStore manages the user's tracked competitors and topics.
type EntityStore interface {
	TrackEntity(ctx context.Context, userID string, e trigger.TrackedEntity) error
	ListTrackedEntities(ctx context.Context, userID string) ([]trigger.TrackedEntity, error)
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	registry   *skill.Registry
	pipeline   *trigger.Pipeline
	discovery  *discovery.Agent
	plans      PlanReader
	sigStore   SignalStore
	sigIndexer SignalIndexer
	entities   EntityStore
	logger     *zap.Logger
}

// NewHandler creates a new API handler. Every dependency except the
// registry may be nil when its backing service is unavailable; the affected
// routes return 503 or skip the degraded step.
func NewHandler(registry *skill.Registry, pipeline *trigger.Pipeline,
	disc *discovery.Agent, plans PlanReader, sigStore SignalStore,
	sigIndexer SignalIndexer, entities EntityStore, logger *zap.Logger) *Handler {
	return &Handler{
		registry:   registry,
		pipeline:   pipeline,
		discovery:  disc,
		plans:      plans,
		sigStore:   sigStore,
		sigIndexer: sigIndexer,
		entities:   entities,
		logger:     logger,
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

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)

		// Catalog routes
		r.Get("/skills", h.listSkills)
		r.Post("/skills/rank", h.rankSkills)
		r.Get("/skills/agent/{agentType}", h.skillsForAgent)
		r.Post("/skills/refresh-external", h.refreshExternal)

		// Discovery routes
		r.Post("/discovery/run", h.runDiscovery)

		// Signal and plan routes
		r.Post("/signals/trigger", h.triggerSignal)
		r.Get("/plans/{id}", h.getPlan)
		r.Post("/plans/{id}/approve", h.approvePlan)

		// Tracked entity routes
		r.Get("/entities", h.listEntities)
		r.Post("/entities", h.trackEntity)
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) listSkills(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := skill.SearchOptions{}
	if v := q.Get("trust_level"); v != "" {
		tl := skill.TrustLevel(v)
		opts.TrustLevel = &tl
	}
	if v := q.Get("life_sciences"); v != "" {
		ls := v == "true"
		opts.LifeSciences = &ls
	}
	entries := h.registry.Search(r.Context(), q.Get("query"), q.Get("user_id"), opts)
	writeJSON(w, http.StatusOK, map[string]any{
		"skills": entries,
		"count":  len(entries),
	})
}

type rankRequest struct {
	TaskType    string `json:"task_type"`
	Description string `json:"description"`
}

func (h *Handler) rankSkills(w http.ResponseWriter, r *http.Request) {
	var req rankRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.TaskType == "" && req.Description == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "task_type or description is required"})
		return
	}
	ranked := h.registry.GetForTask(r.Context(), skill.Task{
		Type:        req.TaskType,
		Description: req.Description,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"results": ranked,
		"count":   len(ranked),
	})
}

func (h *Handler) skillsForAgent(w http.ResponseWriter, r *http.Request) {
	agentType := chi.URLParam(r, "agentType")
	entries := h.registry.GetForAgent(agentType)
	writeJSON(w, http.StatusOK, map[string]any{
		"agent_type": agentType,
		"skills":     entries,
		"count":      len(entries),
	})
}

func (h *Handler) refreshExternal(w http.ResponseWriter, r *http.Request) {
	h.registry.RefreshExternal(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "refreshed",
		"entries": h.registry.Size(),
	})
}

type discoveryRequest struct {
	UserID string `json:"user_id"`
}

func (h *Handler) runDiscovery(w http.ResponseWriter, r *http.Request) {
	if h.discovery == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "discovery not initialized"})
		return
	}
	var req discoveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
		return
	}
	recs := h.discovery.Run(r.Context(), req.UserID)
	writeJSON(w, http.StatusOK, map[string]any{
		"recommendations": recs,
		"count":           len(recs),
	})
}

func (h *Handler) triggerSignal(w http.ResponseWriter, r *http.Request) {
	if h.pipeline == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "trigger pipeline not initialized"})
		return
	}
	var sig trigger.Signal
	if err := json.NewDecoder(r.Body).Decode(&sig); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if sig.UserID == "" || sig.Title == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id and title are required"})
		return
	}
	if sig.ID == "" {
		sig.ID = uuid.New().String()
	}
	if sig.DetectedAt.IsZero() {
		sig.DetectedAt = time.Now()
	}

	// Record the signal first so later signals can find it by recency or
	// similarity even if this analysis run degrades.
	if h.sigStore != nil {
		if err := h.sigStore.SaveSignal(r.Context(), &sig); err != nil {
			h.logger.Warn("persist signal failed", zap.Error(err))
		}
	}
	if h.sigIndexer != nil {
		if err := h.sigIndexer.IndexSignal(r.Context(), &sig); err != nil {
			h.logger.Warn("index signal failed", zap.Error(err))
		}
	}

	plan := h.pipeline.ProcessSignal(r.Context(), &sig)
	if plan == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "no implications"})
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (h *Handler) getPlan(w http.ResponseWriter, r *http.Request) {
	if h.plans == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "plan store not initialized"})
		return
	}
	id := chi.URLParam(r, "id")
	plan, err := h.plans.GetExecutionPlan(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "plan not found"})
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (h *Handler) approvePlan(w http.ResponseWriter, r *http.Request) {
	if h.plans == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "plan store not initialized"})
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.plans.ApproveExecutionPlan(r.Context(), id); err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "approved"})
}

func (h *Handler) listEntities(w http.ResponseWriter, r *http.Request) {
	if h.entities == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "entity graph not initialized"})
		return
	}
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
		return
	}
	entities, err := h.entities.ListTrackedEntities(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entities": entities,
		"count":    len(entities),
	})
}

type trackEntityRequest struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Kind   string `json:"kind"`
}

func (h *Handler) trackEntity(w http.ResponseWriter, r *http.Request) {
	if h.entities == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "entity graph not initialized"})
		return
	}
	var req trackEntityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.UserID == "" || req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id and name are required"})
		return
	}
	if req.Kind == "" {
		req.Kind = "competitor"
	}
	e := trigger.TrackedEntity{
		ID:   uuid.New().String(),
		Name: req.Name,
		Kind: req.Kind,
	}
	if err := h.entities.TrackEntity(r.Context(), req.UserID, e); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
