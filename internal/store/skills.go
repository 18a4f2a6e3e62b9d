package store

import (
	"context"
	"fmt"
	"time"

	"github.com/arcwell-foundry/Aria-sub002/internal/skill"
)

// ListCustomSkills returns the user's prompt-defined skills as catalog
// entries. Custom skills always carry USER trust.
func (s *Store) ListCustomSkills(ctx context.Context, userID string) ([]*skill.Entry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, description, agent_types, data_classes
		FROM custom_skills
		WHERE user_id = $1 AND enabled
		ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list custom skills: %w", err)
	}
	defer rows.Close()

	var out []*skill.Entry
	for rows.Next() {
		e := &skill.Entry{
			Type:       skill.TypeCustom,
			TrustLevel: skill.TrustUser,
		}
		if err := rows.Scan(&e.ID, &e.Name, &e.Description, &e.AgentTypes, &e.DataClasses); err != nil {
			return nil, fmt.Errorf("scan custom skill: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SaveCustomSkill upserts a user-defined skill.
func (s *Store) SaveCustomSkill(ctx context.Context, userID string, e *skill.Entry) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO custom_skills (id, user_id, name, description, agent_types, data_classes, enabled, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			agent_types = EXCLUDED.agent_types,
			data_classes = EXCLUDED.data_classes`,
		e.ID, userID, e.Name, e.Description, e.AgentTypes, e.DataClasses, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save custom skill %s: %w", e.Name, err)
	}
	return nil
}
