package trigger

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arcwell-foundry/Aria-sub002/internal/llm"
	"github.com/arcwell-foundry/Aria-sub002/internal/notify"
	"github.com/arcwell-foundry/Aria-sub002/internal/skill"
)

const (
	maxContextLeads    = 100
	maxRelevantSignals = 10
	signalWindow       = 7 * 24 * time.Hour
	maxImplications    = 5

	// Fixed per-step placeholder; there is no execution history to
	// estimate from yet.
	stepDurationEstimateMS = 5000
)

// Pipeline turns a detected signal into skill triggers and a persisted,
// tiered execution plan. One invocation is scoped to one signal and runs to
// completion before the next; nothing blocks on human approval.
type Pipeline struct {
	client    llm.Client
	contexts  ContextStore
	entities  EntitySource
	signals   SignalSearcher
	approvals ApprovalChecker
	plans     PlanStore
	notifier  notify.Sink
	actions   *ActionTable
	logger    *zap.Logger
}

// NewPipeline wires the pipeline. contexts, entities, signals, approvals,
// plans and notifier may each be nil; the affected stage degrades per the
// failure policy instead of erroring.
func NewPipeline(client llm.Client, contexts ContextStore, entities EntitySource,
	signals SignalSearcher, approvals ApprovalChecker, plans PlanStore,
	notifier notify.Sink, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		client:    client,
		contexts:  contexts,
		entities:  entities,
		signals:   signals,
		approvals: approvals,
		plans:     plans,
		notifier:  notifier,
		actions:   DefaultActionTable(),
		logger:    logger,
	}
}

// ProcessSignal runs the full pipeline. It returns nil when analysis fails
// or yields no implications; in that case nothing is persisted and no
// notification is sent. Persistence failures are logged and the computed
// aggregate is still returned.
func (p *Pipeline) ProcessSignal(ctx context.Context, sig *Signal) *ImplicationPlan {
	if sig.ID == "" {
		sig.ID = uuid.New().String()
	}

	bc := p.gatherContext(ctx, sig)

	implications, err := p.analyze(ctx, sig, bc)
	if err != nil {
		p.logger.Warn("implication analysis failed",
			zap.String("signal_id", sig.ID), zap.Error(err))
		return nil
	}
	if len(implications) == 0 {
		p.logger.Debug("signal produced no implications", zap.String("signal_id", sig.ID))
		return nil
	}

	triggers := p.mapAndGate(ctx, sig.UserID, implications)

	aggregate := &ImplicationPlan{
		ID:           uuid.New().String(),
		Signal:       sig,
		Implications: implications,
		Triggers:     triggers,
		CreatedAt:    time.Now(),
	}

	var plan *ExecutionPlan
	if len(triggers) > 0 {
		plan = p.buildExecutionPlan(sig.UserID, triggers)
		aggregate.ExecutionPlanID = plan.ID
	}
	aggregate.Summary = p.summarize(sig, implications, triggers)

	p.persist(ctx, aggregate, plan)
	p.notify(ctx, sig, aggregate, triggers)

	return aggregate
}

// gatherContext collects business context for analysis. Each sub-query is
// fault-isolated: a failure contributes an empty slice, never an abort.
func (p *Pipeline) gatherContext(ctx context.Context, sig *Signal) *Context {
	bc := &Context{}

	if p.entities != nil {
		entities, err := p.entities.ListTrackedEntities(ctx, sig.UserID)
		if err != nil {
			p.logger.Warn("tracked entity lookup failed", zap.Error(err))
		} else {
			bc.Entities = entities
		}
	}

	if p.contexts != nil {
		leads, err := p.contexts.ListActiveLeads(ctx, sig.UserID, maxContextLeads)
		if err != nil {
			p.logger.Warn("active lead lookup failed", zap.Error(err))
		} else {
			bc.Leads = leads
		}

		profile, err := p.contexts.GetCompanyProfile(ctx, sig.UserID)
		if err != nil {
			p.logger.Warn("company profile lookup failed", zap.Error(err))
		} else {
			bc.Profile = profile
		}
	}

	since := time.Now().Add(-signalWindow)
	bc.RecentSignals = p.relevantSignals(ctx, sig, since)

	return bc
}

// relevantSignals prefers similarity search, falling back to recency. The
// ingest path persists and indexes a signal before the pipeline runs, so
// both lookups would return the signal under analysis as their top hit; it
// is filtered out here.
func (p *Pipeline) relevantSignals(ctx context.Context, sig *Signal, since time.Time) []Signal {
	if p.signals != nil {
		found, err := p.signals.RelevantSignals(ctx, sig.UserID, sig.Title+" "+sig.Summary, since, maxRelevantSignals)
		if err == nil {
			return excludeSignal(found, sig.ID)
		}
		p.logger.Warn("signal similarity search failed, falling back to recency", zap.Error(err))
	}
	if p.contexts == nil {
		return nil
	}
	recent, err := p.contexts.ListRecentSignals(ctx, sig.UserID, since, maxRelevantSignals)
	if err != nil {
		p.logger.Warn("recent signal lookup failed", zap.Error(err))
		return nil
	}
	return excludeSignal(recent, sig.ID)
}

func excludeSignal(signals []Signal, id string) []Signal {
	out := make([]Signal, 0, len(signals))
	for _, s := range signals {
		if s.ID != id {
			out = append(out, s)
		}
	}
	return out
}

const analysisSystemPrompt = `You analyze business signals for a life-sciences CRM user and infer non-obvious implications.
Respond with a JSON array of 1-5 implication objects:
[{"description": "...", "urgency": "low|medium|high", "action_type": "...",
  "affected_entities": ["..."], "confidence": 0.0, "reasoning": "...", "input_data": {}}]
Action types must come from the given vocabulary. Respond with JSON only.`

// analyze makes the single combined implication + action-mapping LLM call.
func (p *Pipeline) analyze(ctx context.Context, sig *Signal, bc *Context) ([]Implication, error) {
	if p.client == nil {
		return nil, fmt.Errorf("no llm client configured")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Signal: %s\nType: %s\nSummary: %s\nSource: %s\n\n",
		sig.Title, sig.Type, sig.Summary, sig.Source)
	fmt.Fprintf(&b, "Action vocabulary: %s\n\n", strings.Join(p.actions.Types(), ", "))
	writeContext(&b, bc)

	text, err := p.client.Generate(ctx, &llm.Request{
		Messages:     []llm.Message{{Role: "user", Content: b.String()}},
		SystemPrompt: analysisSystemPrompt,
		MaxTokens:    2000,
		Temperature:  0.2,
	})
	if err != nil {
		return nil, fmt.Errorf("generate implications: %w", err)
	}

	implications, err := parseImplications(text)
	if err != nil {
		return nil, fmt.Errorf("parse implications: %w", err)
	}
	if len(implications) > maxImplications {
		implications = implications[:maxImplications]
	}
	return implications, nil
}

// writeContext flattens gathered context into the analysis prompt.
func writeContext(b *strings.Builder, bc *Context) {
	if bc.Profile != nil {
		fmt.Fprintf(b, "Company: %s; products: %s; therapeutic areas: %s\n",
			bc.Profile.Company,
			strings.Join(bc.Profile.Products, ", "),
			strings.Join(bc.Profile.TherapeuticAreas, ", "))
	}
	if len(bc.Entities) > 0 {
		names := make([]string, 0, len(bc.Entities))
		for _, e := range bc.Entities {
			names = append(names, e.Name+" ("+e.Kind+")")
		}
		fmt.Fprintf(b, "Tracked entities: %s\n", strings.Join(names, ", "))
	}
	if len(bc.Leads) > 0 {
		fmt.Fprintf(b, "Active leads: %d", len(bc.Leads))
		sample := bc.Leads
		if len(sample) > 5 {
			sample = sample[:5]
		}
		names := make([]string, 0, len(sample))
		for _, l := range sample {
			names = append(names, l.Name+" @ "+l.Company)
		}
		fmt.Fprintf(b, " (e.g. %s)\n", strings.Join(names, "; "))
	}
	for _, s := range bc.RecentSignals {
		fmt.Fprintf(b, "Earlier signal: %s — %s\n", s.Title, s.Summary)
	}
}

// parseImplications accepts a bare array or an {"implications": [...]} wrapper.
func parseImplications(text string) ([]Implication, error) {
	raw := llm.StripFences(text)

	var implications []Implication
	if err := json.Unmarshal([]byte(raw), &implications); err == nil {
		return implications, nil
	}
	var wrapper struct {
		Implications []Implication `json:"implications"`
	}
	if err := json.Unmarshal([]byte(raw), &wrapper); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	return wrapper.Implications, nil
}

// mapAndGate resolves each implication's action against the static table and
// decides auto-execution. Unknown action types are dropped with a debug log;
// the implication itself stays recorded.
func (p *Pipeline) mapAndGate(ctx context.Context, userID string, implications []Implication) []SkillTrigger {
	var triggers []SkillTrigger
	for i, imp := range implications {
		mapping, ok := p.actions.Lookup(imp.ActionType)
		if !ok {
			p.logger.Debug("unknown action type dropped",
				zap.String("action_type", imp.ActionType))
			continue
		}
		t := SkillTrigger{
			ImplicationIndex: i,
			SkillPath:        mapping.SkillPath,
			ActionType:       imp.ActionType,
			RiskLevel:        mapping.DefaultRisk,
			InputData:        imp.InputData,
			Priority:         urgencyPriority(imp.Urgency),
			Reasoning:        imp.Reasoning,
		}
		t.AutoExecute = p.autoApproved(ctx, userID, &t)
		triggers = append(triggers, t)
	}
	return triggers
}

// autoApproved applies autonomy gating. High and critical risk never run
// unattended; low and medium ask the autonomy service, failing closed.
func (p *Pipeline) autoApproved(ctx context.Context, userID string, t *SkillTrigger) bool {
	if t.RiskLevel.Severity() >= skill.RiskHigh.Severity() {
		return false
	}
	if p.approvals == nil {
		return false
	}
	ok, err := p.approvals.CheckApproval(ctx, userID, t.SkillPath, t.RiskLevel)
	if err != nil {
		p.logger.Warn("autonomy check failed, requiring approval",
			zap.String("skill_path", t.SkillPath), zap.Error(err))
		return false
	}
	return ok
}

func urgencyPriority(urgency string) int {
	switch strings.ToLower(urgency) {
	case "high":
		return 1
	case "low":
		return 3
	default:
		return 2
	}
}

// buildExecutionPlan partitions triggers into exactly two tiers: Tier 1 is
// low-risk read-only enrichment with no dependencies, Tier 2 is everything
// else, each step depending on the full Tier-1 set.
func (p *Pipeline) buildExecutionPlan(userID string, triggers []SkillTrigger) *ExecutionPlan {
	var tier1, tier2 []SkillTrigger
	for _, t := range triggers {
		if t.RiskLevel == skill.RiskLow {
			tier1 = append(tier1, t)
		} else {
			tier2 = append(tier2, t)
		}
	}

	plan := &ExecutionPlan{
		ID:        uuid.New().String(),
		UserID:    userID,
		RiskLevel: skill.RiskLow,
		CreatedAt: time.Now(),
	}

	var tier1Steps []int
	step := 1
	for _, t := range tier1 {
		plan.Steps = append(plan.Steps, newStep(step, t, nil))
		tier1Steps = append(tier1Steps, step)
		step++
	}
	var tier2Steps []int
	for _, t := range tier2 {
		deps := append([]int(nil), tier1Steps...)
		plan.Steps = append(plan.Steps, newStep(step, t, deps))
		tier2Steps = append(tier2Steps, step)
		step++
	}

	if len(tier1Steps) > 0 {
		plan.ParallelGroups = append(plan.ParallelGroups, tier1Steps)
	}
	if len(tier2Steps) > 0 {
		plan.ParallelGroups = append(plan.ParallelGroups, tier2Steps)
	}

	allAuto := true
	for _, t := range triggers {
		if !t.AutoExecute {
			allAuto = false
		}
		if t.RiskLevel.Severity() > skill.RiskLow.Severity() {
			plan.RiskLevel = skill.RiskMedium
		}
	}
	plan.ApprovalRequired = !allAuto
	plan.EstimatedDurationMS = len(plan.Steps) * stepDurationEstimateMS
	if plan.ApprovalRequired {
		plan.Status = PlanStatusPendingApproval
	} else {
		plan.Status = PlanStatusApproved
	}
	return plan
}

func newStep(number int, t SkillTrigger, deps []int) ExecutionStep {
	return ExecutionStep{
		StepNumber: number,
		SkillID:    strings.ReplaceAll(t.SkillPath, "/", ":"),
		SkillPath:  t.SkillPath,
		DependsOn:  deps,
		Status:     StepStatusPending,
		InputData:  t.InputData,
	}
}

// persist writes the plan aggregates. Failures are logged; the in-memory
// aggregate is still returned to the caller.
func (p *Pipeline) persist(ctx context.Context, aggregate *ImplicationPlan, plan *ExecutionPlan) {
	if p.plans == nil {
		return
	}
	if plan != nil {
		if err := p.plans.SaveExecutionPlan(ctx, plan); err != nil {
			p.logger.Error("persist execution plan failed",
				zap.String("plan_id", plan.ID), zap.Error(err))
		}
	}
	if err := p.plans.SaveImplicationPlan(ctx, aggregate); err != nil {
		p.logger.Error("persist implication plan failed",
			zap.String("plan_id", aggregate.ID), zap.Error(err))
	}
}

// notify sends exactly one in-app notification summarizing the run.
func (p *Pipeline) notify(ctx context.Context, sig *Signal, aggregate *ImplicationPlan, triggers []SkillTrigger) {
	if p.notifier == nil {
		return
	}
	auto, approval := 0, 0
	for _, t := range triggers {
		if t.AutoExecute {
			auto++
		} else {
			approval++
		}
	}
	n := &notify.Notification{
		ID:      uuid.New().String(),
		UserID:  sig.UserID,
		Type:    "implication_plan",
		Title:   "Signal analyzed: " + sig.Title,
		Message: aggregate.Summary,
		Link:    "/plans/" + aggregate.ExecutionPlanID,
		Metadata: map[string]any{
			"signal_id":         sig.ID,
			"execution_plan_id": aggregate.ExecutionPlanID,
			"auto_count":        auto,
			"approval_count":    approval,
		},
	}
	if aggregate.ExecutionPlanID == "" {
		n.Link = ""
	}
	if err := p.notifier.CreateNotification(ctx, n); err != nil {
		p.logger.Warn("notify failed", zap.Error(err))
	}
}

// summarize renders the run summary, collapsing long entity and action
// lists beyond three items.
func (p *Pipeline) summarize(sig *Signal, implications []Implication, triggers []SkillTrigger) string {
	var entities []string
	seen := make(map[string]bool)
	for _, imp := range implications {
		for _, e := range imp.AffectedEntities {
			if !seen[e] {
				seen[e] = true
				entities = append(entities, e)
			}
		}
	}
	var actions []string
	seenAction := make(map[string]bool)
	auto := 0
	for _, t := range triggers {
		if !seenAction[t.ActionType] {
			seenAction[t.ActionType] = true
			actions = append(actions, t.ActionType)
		}
		if t.AutoExecute {
			auto++
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%q produced %d implication(s).", sig.Title, len(implications))
	if len(entities) > 0 {
		fmt.Fprintf(&b, " Affected: %s.", collapseList(entities, "entities"))
	}
	if len(actions) > 0 {
		fmt.Fprintf(&b, " Planned actions: %s.", collapseList(actions, "actions"))
		fmt.Fprintf(&b, " %d will run automatically, %d await approval.",
			auto, len(triggers)-auto)
	}
	return b.String()
}

// collapseList joins up to three items; longer lists collapse into
// "N <noun> including X and Y".
func collapseList(items []string, noun string) string {
	if len(items) <= 3 {
		return strings.Join(items, ", ")
	}
	return fmt.Sprintf("%d %s including %s and %s", len(items), noun, items[0], items[1])
}

// Types returns the sorted action vocabulary for prompt construction.
func (t *ActionTable) Types() []string {
	out := make([]string, 0, len(t.mappings))
	for k := range t.mappings {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
