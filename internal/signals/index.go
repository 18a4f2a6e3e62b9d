// Package signals maintains a vector index of detected signals so the
// trigger pipeline can pull the most relevant prior signals, not just the
// most recent ones.
package signals

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/arcwell-foundry/Aria-sub002/internal/embedding"
	"github.com/arcwell-foundry/Aria-sub002/internal/trigger"
	"github.com/arcwell-foundry/Aria-sub002/internal/vectorstore"
)

const collection = "aria_signals"

// Index embeds signal summaries into qdrant and answers similarity queries.
// Implements trigger.SignalSearcher.
type Index struct {
	qdrant   *vectorstore.Client
	embedder embedding.Provider
	logger   *zap.Logger
}

// NewIndex ensures the signal collection exists and returns the index.
func NewIndex(ctx context.Context, qdrant *vectorstore.Client, embedder embedding.Provider, logger *zap.Logger) (*Index, error) {
	if err := qdrant.EnsureCollection(ctx, collection, uint64(embedder.Dimension())); err != nil {
		return nil, fmt.Errorf("ensure signal collection: %w", err)
	}
	return &Index{qdrant: qdrant, embedder: embedder, logger: logger}, nil
}

// IndexSignal embeds and stores one signal. Called on every ingest;
// failures here only degrade later similarity searches.
func (i *Index) IndexSignal(ctx context.Context, sig *trigger.Signal) error {
	vectors, err := i.embedder.Embed(ctx, []string{sig.Title + " " + sig.Summary})
	if err != nil {
		return fmt.Errorf("embed signal: %w", err)
	}
	payload := map[string]string{
		"user_id":     sig.UserID,
		"type":        sig.Type,
		"title":       sig.Title,
		"summary":     sig.Summary,
		"source":      sig.Source,
		"detected_at": sig.DetectedAt.UTC().Format(time.RFC3339),
	}
	if err := i.qdrant.Upsert(ctx, collection, sig.ID, vectors[0], payload); err != nil {
		return fmt.Errorf("upsert signal: %w", err)
	}
	return nil
}

// RelevantSignals returns up to limit signals for the user most similar to
// the query, restricted to those detected after since.
func (i *Index) RelevantSignals(ctx context.Context, userID, query string, since time.Time, limit int) ([]trigger.Signal, error) {
	vectors, err := i.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	// Over-fetch so the time filter applied below still fills the limit.
	hits, err := i.qdrant.Search(ctx, collection, vectors[0], uint64(limit*3),
		map[string]string{"user_id": userID})
	if err != nil {
		return nil, err
	}

	out := make([]trigger.Signal, 0, limit)
	for _, h := range hits {
		detected, perr := time.Parse(time.RFC3339, h.Payload["detected_at"])
		if perr != nil || detected.Before(since) {
			continue
		}
		out = append(out, trigger.Signal{
			ID:         h.ID,
			UserID:     userID,
			Type:       h.Payload["type"],
			Title:      h.Payload["title"],
			Summary:    h.Payload["summary"],
			Source:     h.Payload["source"],
			DetectedAt: detected,
		})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
