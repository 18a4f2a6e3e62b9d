package skill

import (
	"context"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// CustomSource loads a user's custom skill declarations from storage.
type CustomSource interface {
	ListCustomSkills(ctx context.Context, userID string) ([]*Entry, error)
}

// ExternalSource syncs and lists marketplace-installed skills.
type ExternalSource interface {
	SyncFromMarketplace(ctx context.Context) (int, error)
	ListExternalSkills(ctx context.Context) ([]*Entry, error)
}

// Registry aggregates native, definition, custom and external skills into one
// catalog. Construct one per process and pass it where needed; internal maps
// are guarded by a mutex so the registry is safe under concurrent handlers.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry // key: "{type}:{name}"
	nextSeq int

	// custom entries are user-scoped and merged into queries on demand.
	customByUser map[string][]*Entry

	custom      CustomSource
	external    ExternalSource
	initialized bool
	extLoaded   bool

	logger *zap.Logger
}

// NewRegistry creates an empty catalog. Either source may be nil, in which
// case that provenance simply contributes no entries.
func NewRegistry(custom CustomSource, external ExternalSource, logger *zap.Logger) *Registry {
	return &Registry{
		entries:      make(map[string]*Entry),
		customByUser: make(map[string][]*Entry),
		custom:       custom,
		external:     external,
		logger:       logger,
	}
}

// Initialize bootstraps the catalog once: the fixed native and definition
// sets are registered and the external provenance is loaded from storage.
// Calling it again is a no-op.
func (r *Registry) Initialize(ctx context.Context) {
	r.mu.Lock()
	if r.initialized {
		r.mu.Unlock()
		return
	}
	r.initialized = true
	r.mu.Unlock()

	for _, c := range NativeCapabilities() {
		r.RegisterCapability(c, TypeNative, TrustCore)
	}
	for _, e := range DefinitionSkills() {
		r.Register(e)
	}
	r.loadExternal(ctx)

	r.logger.Info("skill registry initialized", zap.Int("entries", r.Size()))
}

// RegisterCapability registers a live skill implementation, extracting its
// declared agent types and data classes. Idempotent by "{type}:{name}".
func (r *Registry) RegisterCapability(c Capability, t Type, trust TrustLevel) *Entry {
	e := &Entry{
		ID:          string(t) + ":" + c.Name(),
		Name:        c.Name(),
		Type:        t,
		AgentTypes:  c.AgentTypes(),
		TrustLevel:  trust,
		DataClasses: c.DataClasses(),
		Instance:    c,
	}
	if d, ok := c.(interface{ Description() string }); ok {
		e.Description = d.Description()
	}
	return r.Register(e)
}

// Register inserts an entry. If the key already exists the existing entry is
// kept and returned; registration order is preserved for tie-breaks.
func (r *Registry) Register(e *Entry) *Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.entries[e.Key()]; ok {
		return existing
	}
	if e.ID == "" {
		e.ID = string(e.Type) + ":" + e.Name
	}
	e.seq = r.nextSeq
	r.nextSeq++
	r.entries[e.Key()] = e
	return e
}

// SearchOptions narrow a catalog search.
type SearchOptions struct {
	// TrustLevel, when set, keeps only entries at this trust level or higher.
	TrustLevel *TrustLevel
	// LifeSciences, when set, keeps only entries matching the flag.
	LifeSciences *bool
}

// Search matches query as a case-insensitive substring of name+description
// over the catalog merged with the user's custom skills. An empty query
// returns the full filtered catalog. Results are ordered by provenance
// priority, ties by registration order.
func (r *Registry) Search(ctx context.Context, query, userID string, opts SearchOptions) []*Entry {
	r.ensureUserCustom(ctx, userID)

	q := strings.ToLower(strings.TrimSpace(query))
	var out []*Entry
	for _, e := range r.snapshot(userID) {
		if q != "" && !strings.Contains(strings.ToLower(e.Name+" "+e.Description), q) {
			continue
		}
		if opts.TrustLevel != nil && e.TrustLevel.Rank() > opts.TrustLevel.Rank() {
			continue
		}
		if opts.LifeSciences != nil && e.LifeSciences != *opts.LifeSciences {
			continue
		}
		out = append(out, e)
	}
	sortByPriority(out)
	return out
}

// GetForTask ranks every known entry against a task. Entries with a live
// instance are scored by CanHandle; a panic or error there scores 0 for that
// entry only. Declaration-only entries use the keyword heuristic. Zero
// scores are excluded. Order: relevance descending, ties by provenance
// priority.
func (r *Registry) GetForTask(ctx context.Context, task Task) []Ranked {
	var out []Ranked
	for _, e := range r.snapshot("") {
		score := r.scoreEntry(ctx, e, task)
		if score <= 0 {
			continue
		}
		out = append(out, Ranked{Entry: e, Relevance: score})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Relevance != out[j].Relevance {
			return out[i].Relevance > out[j].Relevance
		}
		return out[i].Entry.Type.Priority() < out[j].Entry.Type.Priority()
	})
	return out
}

// scoreEntry never lets a broken capability abort ranking of the rest.
func (r *Registry) scoreEntry(ctx context.Context, e *Entry, task Task) (score float64) {
	if e.Instance == nil {
		return KeywordRelevance(task, e.Name, e.Description)
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("capability panicked during applicability check",
				zap.String("skill", e.ID), zap.Any("panic", rec))
			score = 0
		}
	}()
	s, err := e.Instance.CanHandle(ctx, task)
	if err != nil {
		r.logger.Warn("applicability check failed",
			zap.String("skill", e.ID), zap.Error(err))
		return 0
	}
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// GetForAgent returns the entries whose agent types include the given role,
// ordered by provenance priority. An unknown role returns an empty slice.
func (r *Registry) GetForAgent(agentType string) []*Entry {
	var out []*Entry
	for _, e := range r.snapshot("") {
		if e.PermitsAgent(agentType) {
			out = append(out, e)
		}
	}
	sortByPriority(out)
	return out
}

// GetAllAvailable returns the full catalog for a user after making sure the
// custom and external sources have loaded at least once.
func (r *Registry) GetAllAvailable(ctx context.Context, userID string) []*Entry {
	r.ensureUserCustom(ctx, userID)
	r.mu.RLock()
	loaded := r.extLoaded
	r.mu.RUnlock()
	if !loaded {
		r.loadExternal(ctx)
	}

	out := r.snapshot(userID)
	sortByPriority(out)
	return out
}

// RefreshExternal syncs the marketplace and wholesale-replaces the external
// provenance. Native, definition and custom entries are untouched.
func (r *Registry) RefreshExternal(ctx context.Context) {
	if r.external == nil {
		return
	}
	if n, err := r.external.SyncFromMarketplace(ctx); err != nil {
		r.logger.Warn("marketplace sync failed", zap.Error(err))
	} else {
		r.logger.Info("marketplace synced", zap.Int("count", n))
	}
	r.loadExternal(ctx)
}

// RecordExecution feeds execution results back into an entry's metrics.
func (r *Registry) RecordExecution(skillID string, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.ID != skillID {
			continue
		}
		m := &e.Metrics
		total := float64(m.TotalExecutions)
		successes := m.SuccessRate * total
		if success {
			successes++
		}
		m.TotalExecutions++
		m.SuccessRate = successes / float64(m.TotalExecutions)
		return
	}
}

// Size returns the number of catalog entries excluding user-scoped customs.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// loadExternal replaces every external entry with the current stored set.
// A storage failure leaves the previous external set in place.
func (r *Registry) loadExternal(ctx context.Context) {
	if r.external == nil {
		r.mu.Lock()
		r.extLoaded = true
		r.mu.Unlock()
		return
	}
	entries, err := r.external.ListExternalSkills(ctx)
	if err != nil {
		r.logger.Warn("loading external skills failed", zap.Error(err))
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for k, e := range r.entries {
		if e.Type == TypeExternal {
			delete(r.entries, k)
		}
	}
	for _, e := range entries {
		e.Type = TypeExternal
		if e.ID == "" {
			e.ID = "external:" + e.Name
		}
		if _, ok := r.entries[e.Key()]; ok {
			continue
		}
		e.seq = r.nextSeq
		r.nextSeq++
		r.entries[e.Key()] = e
	}
	r.extLoaded = true
}

// ensureUserCustom loads a user's custom skills once per process lifetime.
// Storage errors degrade to zero custom rows.
func (r *Registry) ensureUserCustom(ctx context.Context, userID string) {
	if userID == "" || r.custom == nil {
		return
	}
	r.mu.RLock()
	_, loaded := r.customByUser[userID]
	r.mu.RUnlock()
	if loaded {
		return
	}

	entries, err := r.custom.ListCustomSkills(ctx, userID)
	if err != nil {
		r.logger.Warn("loading custom skills failed",
			zap.String("user_id", userID), zap.Error(err))
		entries = nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.customByUser[userID]; ok {
		return
	}
	for _, e := range entries {
		e.Type = TypeCustom
		if e.ID == "" {
			e.ID = "custom:" + userID + ":" + e.Name
		}
		e.seq = r.nextSeq
		r.nextSeq++
	}
	if entries == nil {
		entries = []*Entry{}
	}
	r.customByUser[userID] = entries
}

// snapshot copies the catalog, merging the given user's custom entries.
func (r *Registry) snapshot(userID string) []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	if userID != "" {
		out = append(out, r.customByUser[userID]...)
	}
	return out
}

// sortByPriority orders entries by provenance priority, then by
// registration sequence.
func sortByPriority(entries []*Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		pi, pj := entries[i].Type.Priority(), entries[j].Type.Priority()
		if pi != pj {
			return pi < pj
		}
		return entries[i].seq < entries[j].seq
	})
}
