package trigger

import "github.com/arcwell-foundry/Aria-sub002/internal/skill"

// ActionMapping binds an action type to the skill that performs it and the
// default risk of doing so unattended.
type ActionMapping struct {
	SkillPath   string          `json:"skill_path"`
	DefaultRisk skill.RiskLevel `json:"default_risk"`
}

// ActionTable is the closed action vocabulary. Action types absent from the
// table never produce triggers; their implications are still recorded in
// summaries. The table is static configuration, versioned so a changed
// vocabulary is visible in persisted plans.
type ActionTable struct {
	Version  string
	mappings map[string]ActionMapping
}

// Lookup resolves an action type, reporting whether it is known.
func (t *ActionTable) Lookup(actionType string) (ActionMapping, bool) {
	m, ok := t.mappings[actionType]
	return m, ok
}

// DefaultActionTable returns the current action vocabulary.
func DefaultActionTable() *ActionTable {
	return &ActionTable{
		Version: "2026-08",
		mappings: map[string]ActionMapping{
			"enrich_lead": {
				SkillPath:   "native/lead_enrichment",
				DefaultRisk: skill.RiskLow,
			},
			"competitor_brief": {
				SkillPath:   "native/competitor_analysis",
				DefaultRisk: skill.RiskLow,
			},
			"rescore_leads": {
				SkillPath:   "native/lead_scoring",
				DefaultRisk: skill.RiskLow,
			},
			"update_crm": {
				SkillPath:   "native/crm_update",
				DefaultRisk: skill.RiskMedium,
			},
			"draft_outreach": {
				SkillPath:   "native/document_draft",
				DefaultRisk: skill.RiskMedium,
			},
			"congress_followup": {
				SkillPath:   "definition/congress_followup",
				DefaultRisk: skill.RiskMedium,
			},
			"alert_account_team": {
				SkillPath:   "native/document_draft",
				DefaultRisk: skill.RiskHigh,
			},
			"flag_compliance_review": {
				SkillPath:   "definition/territory_briefing",
				DefaultRisk: skill.RiskCritical,
			},
		},
	}
}
