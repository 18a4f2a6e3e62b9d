package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// feedEntry is one listing in the remote marketplace feed.
type feedEntry struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Tags         []string `json:"tags"`
	TrustLevel   string   `json:"trust_level"`
	Permissions  []string `json:"permissions"`
	DataAccess   []string `json:"data_access"`
	AgentTypes   []string `json:"agent_types"`
	InstallCount int      `json:"install_count"`
	LifeSciences bool     `json:"life_sciences_relevant"`
}

// SyncFromMarketplace refreshes the local mirror from the remote feed and
// returns how many listings were upserted. With no feed configured the
// mirror is left as-is.
func (i *Index) SyncFromMarketplace(ctx context.Context) (int, error) {
	if i.feedURL == "" {
		return 0, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, i.feedURL, nil)
	if err != nil {
		return 0, fmt.Errorf("create feed request: %w", err)
	}
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch marketplace feed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("marketplace feed status %d", resp.StatusCode)
	}

	var entries []feedEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return 0, fmt.Errorf("decode marketplace feed: %w", err)
	}

	count := 0
	for _, e := range entries {
		if e.ID == "" {
			e.ID = uuid.New().String()
		}
		_, err := i.db.Exec(ctx, `
			INSERT INTO marketplace_skills
				(id, name, description, tags, trust_level, permissions,
				 data_access, agent_types, install_count, life_sciences_relevant,
				 installed, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, false, NOW())
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				description = EXCLUDED.description,
				tags = EXCLUDED.tags,
				trust_level = EXCLUDED.trust_level,
				permissions = EXCLUDED.permissions,
				data_access = EXCLUDED.data_access,
				agent_types = EXCLUDED.agent_types,
				install_count = EXCLUDED.install_count,
				life_sciences_relevant = EXCLUDED.life_sciences_relevant,
				updated_at = NOW()`,
			e.ID, e.Name, e.Description, e.Tags, e.TrustLevel,
			e.Permissions, e.DataAccess, e.AgentTypes,
			e.InstallCount, e.LifeSciences)
		if err != nil {
			i.logger.Warn("marketplace upsert failed",
				zap.String("id", e.ID), zap.Error(err))
			continue
		}
		count++
		i.indexVector(ctx, e)
	}
	i.logger.Info("marketplace feed synced", zap.Int("count", count))
	return count, nil
}

// indexVector mirrors one listing into the vector index, best-effort.
func (i *Index) indexVector(ctx context.Context, e feedEntry) {
	if i.qdrant == nil || i.embedder == nil {
		return
	}
	text := e.Name + " " + e.Description
	for _, t := range e.Tags {
		text += " " + t
	}
	vectors, err := i.embedder.Embed(ctx, []string{text})
	if err != nil {
		i.logger.Debug("embed listing failed", zap.String("id", e.ID), zap.Error(err))
		return
	}
	pointID := e.ID
	if _, err := uuid.Parse(pointID); err != nil {
		pointID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(e.ID)).String()
	}
	if err := i.qdrant.Upsert(ctx, vectorCollection, pointID, vectors[0],
		map[string]string{"skill_id": e.ID}); err != nil {
		i.logger.Debug("vector upsert failed", zap.String("id", e.ID), zap.Error(err))
	}
}

// EnsureVectorCollection creates the marketplace vector collection.
func (i *Index) EnsureVectorCollection(ctx context.Context) error {
	if i.qdrant == nil || i.embedder == nil {
		return nil
	}
	return i.qdrant.EnsureCollection(ctx, vectorCollection, uint64(i.embedder.Dimension()))
}
