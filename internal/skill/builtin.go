package skill

import (
	"context"
	"strings"
)

// builtinCapability is the shared implementation behind the fixed native
// set. Applicability is a task-type match plus keyword hits against the
// task text; real work happens in the external executor.
type builtinCapability struct {
	name        string
	description string
	agentTypes  []string
	dataClasses []string
	taskTypes   []string
	keywords    []string
}

func (c *builtinCapability) Name() string          { return c.name }
func (c *builtinCapability) Description() string   { return c.description }
func (c *builtinCapability) AgentTypes() []string  { return c.agentTypes }
func (c *builtinCapability) DataClasses() []string { return c.dataClasses }

func (c *builtinCapability) CanHandle(_ context.Context, task Task) (float64, error) {
	text := strings.ToLower(strings.TrimSpace(task.Text()))
	if text == "" {
		return 0, nil
	}

	var score float64
	for _, tt := range c.taskTypes {
		if strings.EqualFold(task.Type, tt) {
			score += 0.5
			break
		}
	}
	matched := 0
	for _, kw := range c.keywords {
		if strings.Contains(text, kw) {
			matched++
		}
	}
	if len(c.keywords) > 0 {
		score += 0.5 * float64(matched) / float64(len(c.keywords))
	}
	if score > 1 {
		score = 1
	}
	return score, nil
}

// NativeCapabilities returns the closed set of built-in skills. The set is
// known ahead of time; no dynamic discovery happens at startup.
func NativeCapabilities() []Capability {
	return []Capability{
		&builtinCapability{
			name:        "lead_enrichment",
			description: "Enrich a lead with public research: affiliations, publications, trial involvement",
			agentTypes:  []string{"hunter", "researcher"},
			dataClasses: []string{"contact", "public_research"},
			taskTypes:   []string{"enrich_lead", "research_contact"},
			keywords:    []string{"enrich", "research", "lead", "contact", "background"},
		},
		&builtinCapability{
			name:        "crm_update",
			description: "Create or update CRM records: accounts, contacts, opportunities, interactions",
			agentTypes:  []string{"hunter", "operator"},
			dataClasses: []string{"contact", "crm_record"},
			taskTypes:   []string{"update_crm", "log_interaction"},
			keywords:    []string{"crm", "update", "record", "account", "opportunity"},
		},
		&builtinCapability{
			name:        "document_draft",
			description: "Draft outreach emails, meeting follow-ups and medical information letters",
			agentTypes:  []string{"hunter", "writer"},
			dataClasses: []string{"contact", "correspondence"},
			taskTypes:   []string{"draft_outreach", "draft_followup"},
			keywords:    []string{"draft", "email", "letter", "outreach", "follow"},
		},
		&builtinCapability{
			name:        "competitor_analysis",
			description: "Summarize competitor moves: approvals, trial readouts, pricing and label changes",
			agentTypes:  []string{"analyst", "researcher"},
			dataClasses: []string{"public_research", "market_intel"},
			taskTypes:   []string{"competitor_brief", "analyze_competitor"},
			keywords:    []string{"competitor", "approval", "trial", "launch", "market"},
		},
		&builtinCapability{
			name:        "lead_scoring",
			description: "Re-score leads against the current product and therapeutic-area settings",
			agentTypes:  []string{"analyst"},
			dataClasses: []string{"contact", "crm_record"},
			taskTypes:   []string{"rescore_leads", "score_lead"},
			keywords:    []string{"score", "rank", "prioritize", "lead", "pipeline"},
		},
	}
}

// DefinitionSkills returns the fixed LLM-defined skills. They have no live
// instance; ranking uses the keyword heuristic.
func DefinitionSkills() []*Entry {
	return []*Entry{
		{
			ID:          "definition:kol_mapping",
			Name:        "kol_mapping",
			Description: "Map key opinion leaders for a therapeutic area from publications and congress activity",
			Type:        TypeDefinition,
			AgentTypes:  []string{"researcher", "analyst"},
			TrustLevel:  TrustCore,
			DataClasses: []string{"public_research"},
		},
		{
			ID:          "definition:congress_followup",
			Name:        "congress_followup",
			Description: "Plan post-congress follow-up touches for booth and session contacts",
			Type:        TypeDefinition,
			AgentTypes:  []string{"hunter", "writer"},
			TrustLevel:  TrustCore,
			DataClasses: []string{"contact", "correspondence"},
		},
		{
			ID:          "definition:territory_briefing",
			Name:        "territory_briefing",
			Description: "Compile a weekly territory briefing: account movements, signals, open tasks",
			Type:        TypeDefinition,
			AgentTypes:  []string{"analyst", "operator"},
			TrustLevel:  TrustCore,
			DataClasses: []string{"crm_record", "market_intel"},
		},
	}
}
