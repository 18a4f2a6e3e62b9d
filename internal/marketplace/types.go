package marketplace

import (
	"time"

	"github.com/arcwell-foundry/Aria-sub002/internal/skill"
)

// Skill is one marketplace catalog listing.
type Skill struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Description  string           `json:"description"`
	Tags         []string         `json:"tags,omitempty"`
	TrustLevel   skill.TrustLevel `json:"trust_level"`
	Permissions  []string         `json:"permissions,omitempty"`
	DataAccess   []string         `json:"data_access,omitempty"`
	AgentTypes   []string         `json:"agent_types,omitempty"`
	InstallCount int              `json:"install_count"`
	LifeSciences bool             `json:"life_sciences_relevant"`
	Installed    bool             `json:"installed"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// SearchText returns the text the keyword matcher runs against.
func (s *Skill) SearchText() string {
	text := s.Name + " " + s.Description
	for _, t := range s.Tags {
		text += " " + t
	}
	return text
}
