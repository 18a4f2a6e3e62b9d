package llm

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Router manages multiple providers and routes generation requests to the
// default one, falling through the registered order when it fails.
type Router struct {
	mu        sync.RWMutex
	providers map[string]Provider
	order     []string
	defaults  string
	logger    *zap.Logger
}

// NewRouter creates an empty provider router.
func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		providers: make(map[string]Provider),
		logger:    logger,
	}
}

// Register adds a provider. The first registered provider becomes default.
func (r *Router) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[p.ID()]; !ok {
		r.order = append(r.order, p.ID())
	}
	r.providers[p.ID()] = p
	if r.defaults == "" {
		r.defaults = p.ID()
	}
	r.logger.Info("registered llm provider", zap.String("id", p.ID()), zap.String("name", p.Name()))
}

// SetDefault sets the default provider.
func (r *Router) SetDefault(providerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaults = providerID
}

// Generate routes a request to the default provider, trying the remaining
// providers in registration order when it errors.
func (r *Router) Generate(ctx context.Context, req *Request) (string, error) {
	r.mu.RLock()
	primary := r.providers[r.defaults]
	order := append([]string(nil), r.order...)
	r.mu.RUnlock()

	if primary == nil {
		return "", fmt.Errorf("no llm provider configured")
	}

	text, err := primary.Generate(ctx, req)
	if err == nil {
		return text, nil
	}
	r.logger.Warn("primary llm provider failed", zap.String("id", primary.ID()), zap.Error(err))

	for _, id := range order {
		if id == primary.ID() {
			continue
		}
		r.mu.RLock()
		p := r.providers[id]
		r.mu.RUnlock()
		if p == nil {
			continue
		}
		if text, ferr := p.Generate(ctx, req); ferr == nil {
			return text, nil
		} else {
			r.logger.Warn("fallback llm provider failed", zap.String("id", id), zap.Error(ferr))
		}
	}
	return "", fmt.Errorf("all llm providers failed: %w", err)
}
