package e2e

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/arcwell-foundry/Aria-sub002/internal/autonomy"
	"github.com/arcwell-foundry/Aria-sub002/internal/discovery"
	"github.com/arcwell-foundry/Aria-sub002/internal/graph"
	"github.com/arcwell-foundry/Aria-sub002/internal/notify"
	"github.com/arcwell-foundry/Aria-sub002/internal/skill"
	pgstore "github.com/arcwell-foundry/Aria-sub002/internal/store"
	"github.com/arcwell-foundry/Aria-sub002/internal/trigger"
)

func TestMain(m *testing.M) {
	ctx := context.Background()
	testLogger, _ = zap.NewDevelopment()

	pgDSN, pgCleanup, err := startPostgres(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "postgres: %v\n", err)
		os.Exit(1)
	}
	defer pgCleanup()

	testStore, err = pgstore.New(pgDSN, testLogger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "store: %v\n", err)
		os.Exit(1)
	}
	defer testStore.Close()

	if err := testStore.Migrate(ctx, "../../migrations"); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}

	redisURL, redisCleanup, err := startRedis(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "redis: %v\n", err)
		os.Exit(1)
	}
	defer redisCleanup()
	testRedisURL = redisURL

	neo4jURI, neo4jCleanup, err := startNeo4j(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "neo4j: %v\n", err)
		os.Exit(1)
	}
	defer neo4jCleanup()

	testGraph, err = graph.New(neo4jURI, "", "", testLogger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "graph: %v\n", err)
		os.Exit(1)
	}
	defer testGraph.Close(ctx)

	os.Exit(m.Run())
}

func TestExecutionPlanRoundTrip(t *testing.T) {
	ctx := context.Background()
	plan := &trigger.ExecutionPlan{
		ID:     "plan-rt-1",
		UserID: "user-rt",
		Steps: []trigger.ExecutionStep{
			{StepNumber: 1, SkillID: "native:lead_enrichment", SkillPath: "native/lead_enrichment", Status: trigger.StepStatusPending},
			{StepNumber: 2, SkillID: "native:crm_update", SkillPath: "native/crm_update", DependsOn: []int{1}, Status: trigger.StepStatusPending},
		},
		ParallelGroups:      [][]int{{1}, {2}},
		RiskLevel:           skill.RiskMedium,
		ApprovalRequired:    true,
		EstimatedDurationMS: 10000,
		Status:              trigger.PlanStatusPendingApproval,
		CreatedAt:           time.Now().UTC(),
	}
	if err := testStore.SaveExecutionPlan(ctx, plan); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := testStore.GetExecutionPlan(ctx, plan.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Steps) != 2 || got.Steps[1].DependsOn[0] != 1 {
		t.Fatalf("steps not preserved: %+v", got.Steps)
	}
	if len(got.ParallelGroups) != 2 {
		t.Fatalf("parallel groups not preserved: %v", got.ParallelGroups)
	}
	if got.RiskLevel != skill.RiskMedium || !got.ApprovalRequired {
		t.Errorf("risk/approval not preserved: %s %v", got.RiskLevel, got.ApprovalRequired)
	}

	// Pending -> approved transition.
	if err := testStore.ApproveExecutionPlan(ctx, plan.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	got, _ = testStore.GetExecutionPlan(ctx, plan.ID)
	if got.Status != trigger.PlanStatusApproved {
		t.Fatalf("status %q after approval", got.Status)
	}

	// A second approval finds nothing pending.
	if err := testStore.ApproveExecutionPlan(ctx, plan.ID); err == nil {
		t.Error("approving an approved plan should fail")
	}
}

func TestImplicationPlanPersistence(t *testing.T) {
	ctx := context.Background()
	sig := &trigger.Signal{
		ID:         "sig-ip-1",
		UserID:     "user-ip",
		Type:       "competitor_approval",
		Title:      "CompetitorX approved",
		DetectedAt: time.Now().UTC(),
	}
	plan := &trigger.ImplicationPlan{
		ID:     "impl-1",
		Signal: sig,
		Implications: []trigger.Implication{
			{Description: "refresh leads", Urgency: "high", ActionType: "enrich_lead"},
		},
		Summary:   "one implication",
		CreatedAt: time.Now().UTC(),
	}
	if err := testStore.SaveImplicationPlan(ctx, plan); err != nil {
		t.Fatalf("save implication plan: %v", err)
	}
}

func TestCustomSkills(t *testing.T) {
	ctx := context.Background()
	entry := &skill.Entry{
		ID:          "custom-1",
		Name:        "weekly_pipeline_report",
		Description: "Summarize pipeline changes every Friday",
		AgentTypes:  []string{"analyst"},
		DataClasses: []string{"crm"},
	}
	if err := testStore.SaveCustomSkill(ctx, "user-cs", entry); err != nil {
		t.Fatalf("save custom skill: %v", err)
	}

	entries, err := testStore.ListCustomSkills(ctx, "user-cs")
	if err != nil {
		t.Fatalf("list custom skills: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d custom skills, want 1", len(entries))
	}
	if entries[0].Type != skill.TypeCustom || entries[0].TrustLevel != skill.TrustUser {
		t.Errorf("custom provenance not applied: %s %s", entries[0].Type, entries[0].TrustLevel)
	}

	// Other users see nothing.
	entries, _ = testStore.ListCustomSkills(ctx, "someone-else")
	if len(entries) != 0 {
		t.Errorf("custom skills leaked across users: %d", len(entries))
	}
}

func TestEvidenceQueries(t *testing.T) {
	ctx := context.Background()
	user := "user-ev"
	now := time.Now().UTC()
	started := now.Add(-2 * time.Minute)
	slowDone := started.Add(45 * time.Second)

	failed := &trigger.ExecutionPlan{
		ID: "plan-ev-failed", UserID: user, Status: "failed",
		Steps:     []trigger.ExecutionStep{{StepNumber: 1, SkillPath: "native/lead_enrichment"}},
		CreatedAt: now,
	}
	if err := testStore.SaveExecutionPlan(ctx, failed); err != nil {
		t.Fatalf("seed failed plan: %v", err)
	}
	pool := testStore.Pool()
	if _, err := pool.Exec(ctx, `
		UPDATE execution_plans SET started_at = $2, completed_at = $3 WHERE id = $1`,
		failed.ID, started, slowDone); err != nil {
		t.Fatalf("seed timestamps: %v", err)
	}

	plans, err := testStore.ListProblemPlans(ctx, user, now.Add(-time.Hour), 50)
	if err != nil {
		t.Fatalf("list problem plans: %v", err)
	}
	if len(plans) != 1 || plans[0].Status != "failed" {
		t.Fatalf("problem plans: %+v", plans)
	}
	if plans[0].StartedAt == nil || plans[0].CompletedAt == nil {
		t.Error("timestamps not returned")
	}

	// Fast completions are not evidence and must not consume the row cap.
	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("plan-ev-fast-%d", i)
		fast := &trigger.ExecutionPlan{
			ID: id, UserID: user, Status: "completed",
			Steps:     []trigger.ExecutionStep{{StepNumber: 1, SkillPath: "native/crm_update"}},
			CreatedAt: now.Add(time.Duration(i+1) * time.Minute),
		}
		if err := testStore.SaveExecutionPlan(ctx, fast); err != nil {
			t.Fatalf("seed fast plan: %v", err)
		}
		if _, err := pool.Exec(ctx, `
			UPDATE execution_plans SET started_at = $2, completed_at = $3 WHERE id = $1`,
			id, now, now.Add(5*time.Second)); err != nil {
			t.Fatalf("seed fast timestamps: %v", err)
		}
	}
	plans, err = testStore.ListProblemPlans(ctx, user, now.Add(-time.Hour), 1)
	if err != nil {
		t.Fatalf("list problem plans: %v", err)
	}
	if len(plans) != 1 || plans[0].PlanID != failed.ID {
		t.Fatalf("fast completions crowded out the failed plan: %+v", plans)
	}

	// Unhandled turns.
	if _, err := pool.Exec(ctx, `
		INSERT INTO conversation_turns (id, user_id, content, handled) VALUES
		('turn-1', $1, 'export my pipeline to excel', FALSE),
		('turn-2', $1, 'hello', TRUE)`, user); err != nil {
		t.Fatalf("seed turns: %v", err)
	}
	turns, err := testStore.ListUnhandledTurns(ctx, user, now.Add(-time.Hour), 50)
	if err != nil {
		t.Fatalf("list unhandled turns: %v", err)
	}
	if len(turns) != 1 || turns[0].TurnID != "turn-1" {
		t.Fatalf("unhandled turns: %+v", turns)
	}

	// Repeated manual activities.
	for i := 0; i < 4; i++ {
		if _, err := pool.Exec(ctx, `
			INSERT INTO activity_log (id, user_id, agent, activity_type, title)
			VALUES ($1, $2, 'user', 'manual', 'exported congress leads')`,
			fmt.Sprintf("act-%d", i), user); err != nil {
			t.Fatalf("seed activity: %v", err)
		}
	}
	patterns, err := testStore.ListRepeatedActivities(ctx, user, now.Add(-time.Hour), 3, 50)
	if err != nil {
		t.Fatalf("list repeated activities: %v", err)
	}
	if len(patterns) != 1 || patterns[0].Count != 4 {
		t.Fatalf("activity patterns: %+v", patterns)
	}
}

func TestContextStore(t *testing.T) {
	ctx := context.Background()
	user := "user-ctx"
	pool := testStore.Pool()

	if _, err := pool.Exec(ctx, `
		INSERT INTO leads (id, user_id, name, company, stage) VALUES
		('lead-1', $1, 'Dr. Chen', 'Oncora Bio', 'qualified'),
		('lead-2', $1, 'Dr. Patel', 'Metria', 'closed_won')`, user); err != nil {
		t.Fatalf("seed leads: %v", err)
	}
	leads, err := testStore.ListActiveLeads(ctx, user, 10)
	if err != nil {
		t.Fatalf("list active leads: %v", err)
	}
	if len(leads) != 1 || leads[0].ID != "lead-1" {
		t.Fatalf("active leads: %+v", leads)
	}

	// Missing profile is nil, not an error.
	profile, err := testStore.GetCompanyProfile(ctx, user)
	if err != nil {
		t.Fatalf("get missing profile: %v", err)
	}
	if profile != nil {
		t.Fatalf("expected nil profile, got %+v", profile)
	}
	if _, err := pool.Exec(ctx, `
		INSERT INTO company_profiles (user_id, company, products, therapeutic_areas)
		VALUES ($1, 'Arcwell', '{"OncoAssist"}', '{"oncology"}')`, user); err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	profile, err = testStore.GetCompanyProfile(ctx, user)
	if err != nil || profile == nil {
		t.Fatalf("get profile: %v %v", profile, err)
	}
	if profile.Company != "Arcwell" || len(profile.Products) != 1 {
		t.Errorf("profile: %+v", profile)
	}

	// Signals round trip through SaveSignal / ListRecentSignals.
	sig := &trigger.Signal{
		ID: "sig-ctx-1", UserID: user, Type: "trial_readout",
		Title: "Phase 3 readout", Summary: "positive results",
		Source: "news", DetectedAt: time.Now().UTC(),
		Metadata: map[string]any{"trial": "NCT123"},
	}
	if err := testStore.SaveSignal(ctx, sig); err != nil {
		t.Fatalf("save signal: %v", err)
	}
	signals, err := testStore.ListRecentSignals(ctx, user, time.Now().Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("list recent signals: %v", err)
	}
	if len(signals) != 1 || signals[0].Metadata["trial"] != "NCT123" {
		t.Fatalf("signals: %+v", signals)
	}
}

func TestNotificationsAndActivity(t *testing.T) {
	ctx := context.Background()
	n := &notify.Notification{
		ID: "note-1", UserID: "user-n", Type: "skill_recommendation",
		Title: "Skill suggestion", Message: "Install congress followup?",
		Metadata:  map[string]any{"skill_id": "s1"},
		CreatedAt: time.Now().UTC(),
	}
	if err := testStore.CreateNotification(ctx, n); err != nil {
		t.Fatalf("create notification: %v", err)
	}
	a := &notify.Activity{
		ID: "act-n-1", UserID: "user-n", Agent: "skill_discovery",
		ActivityType: "skill_recommended", Title: "Recommended congress followup",
		Confidence: 0.8, CreatedAt: time.Now().UTC(),
	}
	if err := testStore.RecordActivity(ctx, a); err != nil {
		t.Fatalf("record activity: %v", err)
	}
}

func TestAutonomyGrants(t *testing.T) {
	ctx := context.Background()
	svc := autonomy.New(testStore.Pool(), testLogger)
	user, skillID := "user-auto", "native/lead_enrichment"

	// No grant row: fail closed.
	ok, err := svc.CheckApproval(ctx, user, skillID, skill.RiskLow)
	if err != nil || ok {
		t.Fatalf("ungranted check: ok=%v err=%v", ok, err)
	}

	if err := svc.Grant(ctx, user, skillID, skill.RiskMedium, true); err != nil {
		t.Fatalf("grant: %v", err)
	}
	// Enabled but streak too short.
	ok, _ = svc.CheckApproval(ctx, user, skillID, skill.RiskLow)
	if ok {
		t.Fatal("approval granted before streak earned")
	}

	for i := 0; i < 3; i++ {
		if err := svc.RecordOutcome(ctx, user, skillID, true); err != nil {
			t.Fatalf("record outcome: %v", err)
		}
	}
	ok, _ = svc.CheckApproval(ctx, user, skillID, skill.RiskLow)
	if !ok {
		t.Fatal("approval denied after earned streak")
	}
	// Risk above the grant ceiling stays denied.
	ok, _ = svc.CheckApproval(ctx, user, skillID, skill.RiskHigh)
	if ok {
		t.Fatal("approval above max risk")
	}

	// One failure revokes the streak.
	if err := svc.RecordOutcome(ctx, user, skillID, false); err != nil {
		t.Fatalf("record failure: %v", err)
	}
	ok, _ = svc.CheckApproval(ctx, user, skillID, skill.RiskLow)
	if ok {
		t.Fatal("approval survived a failure")
	}
}

func TestRedisDedupWindow(t *testing.T) {
	ctx := context.Background()
	window, err := discovery.NewRedisWindow(testRedisURL, 7*24*time.Hour, testLogger)
	if err != nil {
		t.Fatalf("redis window: %v", err)
	}

	user := "user-window"
	if err := window.Record(ctx, user, []string{"congress", "followup"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := window.Record(ctx, user, []string{"excel", "export"}); err != nil {
		t.Fatalf("record: %v", err)
	}

	sets, err := window.RecentKeywordSets(ctx, user)
	if err != nil {
		t.Fatalf("recent sets: %v", err)
	}
	if len(sets) != 2 {
		t.Fatalf("got %d keyword sets, want 2", len(sets))
	}

	// Other users have independent windows.
	sets, _ = window.RecentKeywordSets(ctx, "someone-else")
	if len(sets) != 0 {
		t.Errorf("window leaked across users: %v", sets)
	}
}
