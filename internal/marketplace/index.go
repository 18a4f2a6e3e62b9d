package marketplace

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/arcwell-foundry/Aria-sub002/internal/embedding"
	"github.com/arcwell-foundry/Aria-sub002/internal/skill"
	"github.com/arcwell-foundry/Aria-sub002/internal/vectorstore"
)

const vectorCollection = "aria_marketplace"

// Index is the searchable marketplace catalog. Keyword search runs against
// the local postgres mirror of the marketplace; when a keyword finds
// nothing and qdrant is configured, a semantic lookup fills in. Implements
// discovery.SkillIndex and, together with Sync, skill.ExternalSource.
type Index struct {
	db       *pgxpool.Pool
	qdrant   *vectorstore.Client
	embedder embedding.Provider
	feedURL  string
	logger   *zap.Logger
}

// NewIndex creates the catalog. qdrant and embedder may be nil; semantic
// fallback is then skipped.
func NewIndex(db *pgxpool.Pool, qdrant *vectorstore.Client, embedder embedding.Provider, feedURL string, logger *zap.Logger) *Index {
	return &Index{db: db, qdrant: qdrant, embedder: embedder, feedURL: feedURL, logger: logger}
}

const skillColumns = `id, name, description, tags, trust_level, permissions,
	data_access, agent_types, install_count, life_sciences_relevant, installed, updated_at`

// Search matches one keyword against name, description and tags.
func (i *Index) Search(ctx context.Context, keyword string, limit int) ([]Skill, error) {
	rows, err := i.db.Query(ctx, `
		SELECT `+skillColumns+`
		FROM marketplace_skills
		WHERE name ILIKE '%' || $1 || '%'
		   OR description ILIKE '%' || $1 || '%'
		   OR $1 = ANY(tags)
		ORDER BY install_count DESC, id
		LIMIT $2`, keyword, limit)
	if err != nil {
		return nil, fmt.Errorf("search marketplace %q: %w", keyword, err)
	}
	found, err := scanSkills(rows)
	if err != nil {
		return nil, err
	}
	if len(found) > 0 || i.qdrant == nil || i.embedder == nil {
		return found, nil
	}
	return i.semanticSearch(ctx, keyword, limit)
}

// semanticSearch resolves a keyword with no literal hits through the
// vector index, then loads the matching rows.
func (i *Index) semanticSearch(ctx context.Context, keyword string, limit int) ([]Skill, error) {
	vectors, err := i.embedder.Embed(ctx, []string{keyword})
	if err != nil {
		return nil, fmt.Errorf("embed keyword: %w", err)
	}
	hits, err := i.qdrant.Search(ctx, vectorCollection, vectors[0], uint64(limit), nil)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.Payload["skill_id"])
	}
	rows, err := i.db.Query(ctx, `
		SELECT `+skillColumns+`
		FROM marketplace_skills
		WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("load semantic hits: %w", err)
	}
	loaded, err := scanSkills(rows)
	if err != nil {
		return nil, err
	}
	// Preserve similarity order from the vector search.
	byID := make(map[string]Skill, len(loaded))
	for _, s := range loaded {
		byID[s.ID] = s
	}
	out := make([]Skill, 0, len(ids))
	for _, id := range ids {
		if s, ok := byID[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

// InstallCounts fetches current install counts for the given skill ids.
func (i *Index) InstallCounts(ctx context.Context, ids []string) (map[string]int, error) {
	rows, err := i.db.Query(ctx, `
		SELECT id, install_count FROM marketplace_skills WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("install counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int, len(ids))
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scan install count: %w", err)
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

// ListExternalSkills returns the installed marketplace skills as catalog
// entries for the registry's external provenance.
func (i *Index) ListExternalSkills(ctx context.Context) ([]*skill.Entry, error) {
	rows, err := i.db.Query(ctx, `
		SELECT `+skillColumns+`
		FROM marketplace_skills
		WHERE installed
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list installed skills: %w", err)
	}
	installed, err := scanSkills(rows)
	if err != nil {
		return nil, err
	}

	entries := make([]*skill.Entry, 0, len(installed))
	for _, s := range installed {
		entries = append(entries, &skill.Entry{
			ID:           "external:" + s.Name,
			Name:         s.Name,
			Description:  s.Description,
			Type:         skill.TypeExternal,
			AgentTypes:   s.AgentTypes,
			TrustLevel:   s.TrustLevel,
			DataClasses:  s.DataAccess,
			LifeSciences: s.LifeSciences,
		})
	}
	return entries, nil
}

// MarkInstalled flips the installed flag for a marketplace skill.
func (i *Index) MarkInstalled(ctx context.Context, id string, installed bool) error {
	_, err := i.db.Exec(ctx, `
		UPDATE marketplace_skills SET installed = $2, updated_at = NOW() WHERE id = $1`,
		id, installed)
	if err != nil {
		return fmt.Errorf("mark installed %s: %w", id, err)
	}
	return nil
}

func scanSkills(rows interface {
	Next() bool
	Scan(dest ...any) error
	Close()
	Err() error
}) ([]Skill, error) {
	defer rows.Close()
	var out []Skill
	for rows.Next() {
		var s Skill
		if err := rows.Scan(
			&s.ID, &s.Name, &s.Description, &s.Tags, &s.TrustLevel,
			&s.Permissions, &s.DataAccess, &s.AgentTypes,
			&s.InstallCount, &s.LifeSciences, &s.Installed, &s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan marketplace skill: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
