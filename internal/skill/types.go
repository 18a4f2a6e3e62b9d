package skill

import "context"

// Type identifies the provenance of a skill entry. The catalog sorts by
// provenance first: native before definition before custom before external.
type Type string

const (
	TypeNative     Type = "native"
	TypeDefinition Type = "definition"
	TypeCustom     Type = "custom"
	TypeExternal   Type = "external"
)

// Priority returns the catalog sort rank for a provenance. Lower runs first.
func (t Type) Priority() int {
	switch t {
	case TypeNative:
		return 0
	case TypeDefinition:
		return 1
	case TypeCustom:
		return 2
	case TypeExternal:
		return 3
	default:
		return 4
	}
}

// TrustLevel classifies how much a skill is trusted with user data.
type TrustLevel string

const (
	TrustCore      TrustLevel = "core"
	TrustVerified  TrustLevel = "verified"
	TrustUser      TrustLevel = "user"
	TrustCommunity TrustLevel = "community"
)

// Rank orders trust levels, highest trust first (core=0).
func (l TrustLevel) Rank() int {
	switch l {
	case TrustCore:
		return 0
	case TrustVerified:
		return 1
	case TrustUser:
		return 2
	case TrustCommunity:
		return 3
	default:
		return 4
	}
}

// RiskLevel grades how consequential an action is if it runs unattended.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Severity orders risk levels ascending: low=0 .. critical=3.
func (r RiskLevel) Severity() int {
	switch r {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	case RiskCritical:
		return 3
	default:
		return 1
	}
}

// Task is a unit of work presented to the catalog for ranking.
type Task struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Text returns the searchable text of a task.
func (t Task) Text() string {
	if t.Description == "" {
		return t.Type
	}
	return t.Type + " " + t.Description
}

// Capability is a live skill implementation. Entries backed by a Capability
// are scored by CanHandle; the rest fall back to keyword heuristics.
type Capability interface {
	Name() string
	AgentTypes() []string
	DataClasses() []string
	// CanHandle scores applicability against a task in [0,1].
	CanHandle(ctx context.Context, task Task) (float64, error)
}

// Metrics track execution feedback for a skill. Updated only through
// RecordExecution, never by catalog queries.
type Metrics struct {
	SuccessRate     float64 `json:"success_rate"`
	TotalExecutions int     `json:"total_executions"`
}

// Entry is one catalog row. IDs are provenance-prefixed and unique across all
// four provenances at once.
type Entry struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Type        Type       `json:"type"`
	AgentTypes  []string   `json:"agent_types"`
	TrustLevel  TrustLevel `json:"trust_level"`
	DataClasses []string   `json:"data_classes"`
	Metrics     Metrics    `json:"metrics"`

	// LifeSciences marks entries relevant to life-sciences workflows.
	// Carried through from marketplace listings for external entries.
	LifeSciences bool `json:"life_sciences_relevant,omitempty"`

	// Instance is the live implementation, nil for entries that only exist
	// as declarations (definitions, custom prompts, marketplace listings).
	Instance Capability `json:"-"`

	// seq is the registration sequence, used as the tie-break after
	// provenance priority.
	seq int
}

// Key returns the registry key, "{type}:{name}".
func (e *Entry) Key() string {
	return string(e.Type) + ":" + e.Name
}

// PermitsAgent reports whether the given agent role may use this skill.
func (e *Entry) PermitsAgent(agentType string) bool {
	for _, a := range e.AgentTypes {
		if a == agentType {
			return true
		}
	}
	return false
}

// Ranked pairs an entry with its relevance for one task. Query-scoped,
// never persisted.
type Ranked struct {
	Entry     *Entry  `json:"entry"`
	Relevance float64 `json:"relevance"`
}
