package trigger

import (
	"context"
	"time"

	"github.com/arcwell-foundry/Aria-sub002/internal/skill"
)

// Signal is an externally detected event routed through the pipeline.
type Signal struct {
	ID         string         `json:"id"`
	UserID     string         `json:"user_id"`
	Type       string         `json:"type"` // e.g. "competitor_approval", "trial_readout"
	Title      string         `json:"title"`
	Summary    string         `json:"summary"`
	Source     string         `json:"source"`
	DetectedAt time.Time      `json:"detected_at"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Implication is an inferred, non-obvious consequence of a signal for the
// user's business, with the action the model proposes in response.
type Implication struct {
	Description      string         `json:"description"`
	Urgency          string         `json:"urgency"` // low|medium|high
	ActionType       string         `json:"action_type"`
	AffectedEntities []string       `json:"affected_entities,omitempty"`
	Confidence       float64        `json:"confidence"`
	Reasoning        string         `json:"reasoning,omitempty"`
	InputData        map[string]any `json:"input_data,omitempty"`
}

// SkillTrigger is one mapped implication: the skill to invoke and whether it
// may run unattended. AutoExecute is decided by gating, never declared.
type SkillTrigger struct {
	ImplicationIndex int             `json:"implication_index"`
	SkillPath        string          `json:"skill_path"`
	ActionType       string          `json:"action_type"`
	RiskLevel        skill.RiskLevel `json:"risk_level"`
	AutoExecute      bool            `json:"auto_execute"`
	InputData        map[string]any  `json:"input_data,omitempty"`
	Priority         int             `json:"priority"`
	Reasoning        string          `json:"reasoning,omitempty"`
}

// ExecutionStep is one schedulable unit of an ExecutionPlan.
type ExecutionStep struct {
	StepNumber int            `json:"step_number"`
	SkillID    string         `json:"skill_id"`
	SkillPath  string         `json:"skill_path"`
	DependsOn  []int          `json:"depends_on,omitempty"`
	Status     string         `json:"status"`
	InputData  map[string]any `json:"input_data,omitempty"`
}

// Plan statuses persisted for the downstream executor. The stored status is
// the durable source of truth, not any in-memory flag.
const (
	PlanStatusApproved        = "approved"
	PlanStatusPendingApproval = "pending_approval"
	StepStatusPending         = "pending"
)

// ExecutionPlan is the tiered, dependency-respecting schedule handed to the
// external executor. Steps inside one parallel group are safe to run
// concurrently; the executor must finish a group before starting the next.
type ExecutionPlan struct {
	ID                  string          `json:"id"`
	UserID              string          `json:"user_id"`
	Steps               []ExecutionStep `json:"steps"`
	ParallelGroups      [][]int         `json:"parallel_groups"`
	RiskLevel           skill.RiskLevel `json:"risk_level"`
	ApprovalRequired    bool            `json:"approval_required"`
	EstimatedDurationMS int             `json:"estimated_duration_ms"`
	Status              string          `json:"status"`
	CreatedAt           time.Time       `json:"created_at"`
}

// ImplicationPlan is the root aggregate persisted per processed signal.
type ImplicationPlan struct {
	ID              string         `json:"id"`
	Signal          *Signal        `json:"signal"`
	Implications    []Implication  `json:"implications"`
	Triggers        []SkillTrigger `json:"triggers"`
	ExecutionPlanID string         `json:"execution_plan_id,omitempty"`
	Summary         string         `json:"summary"`
	CreatedAt       time.Time      `json:"created_at"`
}

// TrackedEntity is a competitor or topic the user watches.
type TrackedEntity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Kind string `json:"kind"` // competitor|topic
}

// Lead is a CRM lead surfaced as analysis context.
type Lead struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Company string `json:"company"`
	Stage   string `json:"stage"`
}

// CompanyProfile carries the user's company and product settings.
type CompanyProfile struct {
	UserID           string   `json:"user_id"`
	Company          string   `json:"company"`
	Products         []string `json:"products"`
	TherapeuticAreas []string `json:"therapeutic_areas"`
}

// Context is the gathered business context fed to implication analysis.
// Any field may be empty when its sub-query degraded.
type Context struct {
	Entities      []TrackedEntity
	Leads         []Lead
	Profile       *CompanyProfile
	RecentSignals []Signal
}

// ContextStore reads the CRM-side context tables.
type ContextStore interface {
	ListActiveLeads(ctx context.Context, userID string, limit int) ([]Lead, error)
	GetCompanyProfile(ctx context.Context, userID string) (*CompanyProfile, error)
	ListRecentSignals(ctx context.Context, userID string, since time.Time, limit int) ([]Signal, error)
}

// EntitySource lists the user's tracked competitor/topic entities.
type EntitySource interface {
	ListTrackedEntities(ctx context.Context, userID string) ([]TrackedEntity, error)
}

// SignalSearcher retrieves the signals most relevant to a query, typically
// by vector similarity. Optional; recency from the ContextStore is the
// fallback.
type SignalSearcher interface {
	RelevantSignals(ctx context.Context, userID, query string, since time.Time, limit int) ([]Signal, error)
}

// ApprovalChecker is the per-(user, skill, risk) autonomy decision.
type ApprovalChecker interface {
	CheckApproval(ctx context.Context, userID, skillID string, risk skill.RiskLevel) (bool, error)
}

// PlanStore persists the plan aggregates for the external executor.
type PlanStore interface {
	SaveExecutionPlan(ctx context.Context, plan *ExecutionPlan) error
	SaveImplicationPlan(ctx context.Context, plan *ImplicationPlan) error
}
