package discovery

import (
	"context"
	"time"

	"github.com/arcwell-foundry/Aria-sub002/internal/marketplace"
	"github.com/arcwell-foundry/Aria-sub002/internal/skill"
)

// GapType classifies how an unmet need showed up in usage history.
type GapType string

const (
	GapSlowExecution    GapType = "slow_execution"
	GapFailedTask       GapType = "failed_task"
	GapUnhandledRequest GapType = "unhandled_request"
	GapManualWorkaround GapType = "manual_workaround"
)

// GapReport is one synthesized unmet need. Produced once per discovery run,
// never updated.
type GapReport struct {
	UserID      string    `json:"user_id"`
	GapType     GapType   `json:"gap_type"`
	Description string    `json:"description"`
	Evidence    []string  `json:"evidence,omitempty"`
	Frequency   int       `json:"frequency"`
	LastSeen    time.Time `json:"last_seen"`
	Keywords    []string  `json:"keywords"`
}

// SkillRecommendation is one scored marketplace candidate for a gap.
// Query-scoped, at most five survive per gap.
type SkillRecommendation struct {
	Skill          marketplace.Skill `json:"skill"`
	RelevanceScore float64           `json:"relevance_score"`
	TrustLevel     skill.TrustLevel  `json:"trust_level"`
	DataAccess     []string          `json:"data_access,omitempty"`
	LifeSciences   bool              `json:"life_sciences_relevant"`
	InstallCount   int               `json:"install_count"`
	CompositeScore float64           `json:"composite_score"`
}

// GapMatch pairs a gap with its surviving marketplace candidates.
type GapMatch struct {
	Gap    GapReport             `json:"gap"`
	Skills []SkillRecommendation `json:"skills"`
}

// Recommendation is one delivered suggestion: persisted as exactly one
// notification and one activity entry.
type Recommendation struct {
	ID        string                `json:"id"`
	UserID    string                `json:"user_id"`
	Gap       GapReport             `json:"gap"`
	Skills    []SkillRecommendation `json:"skills"`
	Message   string                `json:"message"`
	CreatedAt time.Time             `json:"created_at"`
}

// PlanEvidence is one execution-plan row examined for failure or slowness.
type PlanEvidence struct {
	PlanID      string     `json:"plan_id"`
	Status      string     `json:"status"`
	TaskSummary string     `json:"task_summary"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// TurnEvidence is one conversation turn the engine could not handle.
type TurnEvidence struct {
	TurnID    string    `json:"turn_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ActivityPattern is a manually repeated workflow from the activity log.
type ActivityPattern struct {
	Pattern  string    `json:"pattern"`
	Count    int       `json:"count"`
	LastSeen time.Time `json:"last_seen"`
}

// EvidenceStore reads the usage history tables.
type EvidenceStore interface {
	ListProblemPlans(ctx context.Context, userID string, since time.Time, limit int) ([]PlanEvidence, error)
	ListUnhandledTurns(ctx context.Context, userID string, since time.Time, limit int) ([]TurnEvidence, error)
	ListRepeatedActivities(ctx context.Context, userID string, since time.Time, minCount, limit int) ([]ActivityPattern, error)
}

// SkillIndex is the searchable marketplace catalog, consulted read-only.
type SkillIndex interface {
	Search(ctx context.Context, keyword string, limit int) ([]marketplace.Skill, error)
	InstallCounts(ctx context.Context, ids []string) (map[string]int, error)
}

// Window remembers which keyword sets were recommended recently so repeat
// gaps are suppressed.
type Window interface {
	Record(ctx context.Context, userID string, keywords []string) error
	RecentKeywordSets(ctx context.Context, userID string) ([][]string, error)
}
