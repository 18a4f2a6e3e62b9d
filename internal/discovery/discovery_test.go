package discovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/arcwell-foundry/Aria-sub002/internal/llm"
	"github.com/arcwell-foundry/Aria-sub002/internal/marketplace"
	"github.com/arcwell-foundry/Aria-sub002/internal/notify"
	"github.com/arcwell-foundry/Aria-sub002/internal/skill"
)

type fakeEvidence struct {
	plans    []PlanEvidence
	turns    []TurnEvidence
	patterns []ActivityPattern
	planErr  error
}

func (f *fakeEvidence) ListProblemPlans(_ context.Context, _ string, _ time.Time, _ int) ([]PlanEvidence, error) {
	return f.plans, f.planErr
}

func (f *fakeEvidence) ListUnhandledTurns(_ context.Context, _ string, _ time.Time, _ int) ([]TurnEvidence, error) {
	return f.turns, nil
}

func (f *fakeEvidence) ListRepeatedActivities(_ context.Context, _ string, _ time.Time, _, _ int) ([]ActivityPattern, error) {
	return f.patterns, nil
}

type fakeIndex struct {
	byKeyword map[string][]marketplace.Skill
	counts    map[string]int
}

func (f *fakeIndex) Search(_ context.Context, keyword string, _ int) ([]marketplace.Skill, error) {
	return f.byKeyword[keyword], nil
}

func (f *fakeIndex) InstallCounts(_ context.Context, ids []string) (map[string]int, error) {
	out := make(map[string]int)
	for _, id := range ids {
		if n, ok := f.counts[id]; ok {
			out[id] = n
		}
	}
	return out, nil
}

type fakeWindow struct {
	recorded [][]string
	recent   [][]string
	readErr  error
}

func (f *fakeWindow) Record(_ context.Context, _ string, keywords []string) error {
	f.recorded = append(f.recorded, keywords)
	return nil
}

func (f *fakeWindow) RecentKeywordSets(_ context.Context, _ string) ([][]string, error) {
	return f.recent, f.readErr
}

type fakeLLM struct {
	response string
	err      error
	calls    int
}

func (f *fakeLLM) Generate(_ context.Context, _ *llm.Request) (string, error) {
	f.calls++
	return f.response, f.err
}

type fakeSink struct {
	notifications []*notify.Notification
	activities    []*notify.Activity
}

func (f *fakeSink) CreateNotification(_ context.Context, n *notify.Notification) error {
	f.notifications = append(f.notifications, n)
	return nil
}

func (f *fakeSink) RecordActivity(_ context.Context, a *notify.Activity) error {
	f.activities = append(f.activities, a)
	return nil
}

func listing(id, name string, installs int) marketplace.Skill {
	return marketplace.Skill{
		ID:           id,
		Name:         name,
		Description:  name + " automation for congress leads",
		Tags:         []string{"congress", "leads"},
		TrustLevel:   skill.TrustVerified,
		InstallCount: installs,
	}
}

func TestAnalyzeUsageGapsZeroEvidence(t *testing.T) {
	client := &fakeLLM{response: `[]`}
	a := NewAgent(&fakeEvidence{}, nil, client, nil, nil, zap.NewNop())

	gaps := a.AnalyzeUsageGaps(context.Background(), "user-1")
	if gaps != nil {
		t.Fatalf("expected no gaps, got %v", gaps)
	}
	if client.calls != 0 {
		t.Fatalf("zero evidence must not call the LLM, got %d calls", client.calls)
	}
}

func TestAnalyzeUsageGapsClassification(t *testing.T) {
	start := time.Now().Add(-2 * time.Minute)
	slowEnd := start.Add(45 * time.Second)
	fastEnd := start.Add(2 * time.Second)
	ev := &fakeEvidence{
		plans: []PlanEvidence{
			{PlanID: "p1", Status: "failed", TaskSummary: "enrich leads"},
			{PlanID: "p2", Status: "completed", StartedAt: &start, CompletedAt: &slowEnd},
			{PlanID: "p3", Status: "completed", StartedAt: &start, CompletedAt: &fastEnd},
		},
	}
	client := &fakeLLM{response: `[{"gap_type": "failed_task", "description": "lead enrichment keeps failing",
		"frequency": 2, "keywords": ["lead enrichment"]}]`}
	a := NewAgent(ev, nil, client, nil, nil, zap.NewNop())

	gaps := a.AnalyzeUsageGaps(context.Background(), "user-1")
	if client.calls != 1 {
		t.Fatalf("expected one synthesis call, got %d", client.calls)
	}
	if len(gaps) != 1 {
		t.Fatalf("got %d gaps, want 1", len(gaps))
	}
	if gaps[0].UserID != "user-1" {
		t.Errorf("gap user %q", gaps[0].UserID)
	}
	if gaps[0].LastSeen.IsZero() {
		t.Error("last seen not defaulted")
	}
}

func TestAnalyzeUsageGapsMalformedSynthesis(t *testing.T) {
	ev := &fakeEvidence{turns: []TurnEvidence{{TurnID: "t1", Content: "export my pipeline to excel"}}}
	client := &fakeLLM{response: "sorry, I cannot do that"}
	a := NewAgent(ev, nil, client, nil, nil, zap.NewNop())

	if gaps := a.AnalyzeUsageGaps(context.Background(), "user-1"); gaps != nil {
		t.Fatalf("malformed synthesis should degrade to none, got %v", gaps)
	}
}

func TestClassifyPlans(t *testing.T) {
	start := time.Now()
	slow := start.Add(31 * time.Second)
	problems := classifyPlans([]PlanEvidence{
		{PlanID: "a", Status: "failed"},
		{PlanID: "b", Status: "completed", StartedAt: &start, CompletedAt: &slow},
		{PlanID: "c", Status: "completed"},
	})
	if len(problems) != 2 {
		t.Fatalf("got %d problems, want 2", len(problems))
	}
	if problems[0].Kind != GapFailedTask || problems[1].Kind != GapSlowExecution {
		t.Errorf("kinds %v, %v", problems[0].Kind, problems[1].Kind)
	}
}

func TestSearchMarketplaceNoKeywords(t *testing.T) {
	a := NewAgent(nil, &fakeIndex{}, nil, nil, nil, zap.NewNop())
	if recs := a.SearchMarketplace(context.Background(), GapReport{}); recs != nil {
		t.Fatalf("keywordless gap returned %v", recs)
	}
}

func TestSearchMarketplaceCompositeRanking(t *testing.T) {
	idx := &fakeIndex{
		byKeyword: map[string][]marketplace.Skill{
			"congress": {
				listing("s1", "congress followup", 0),
				listing("s2", "congress planner", 0),
			},
		},
		// Counts arrive in the second pass only.
		counts: map[string]int{"s1": 5000, "s2": 10},
	}
	a := NewAgent(nil, idx, nil, nil, nil, zap.NewNop())

	recs := a.SearchMarketplace(context.Background(), GapReport{Keywords: []string{"congress"}})
	if len(recs) != 2 {
		t.Fatalf("got %d recommendations, want 2", len(recs))
	}
	if recs[0].Skill.ID != "s1" {
		t.Fatalf("higher install count should rank first, got %s", recs[0].Skill.ID)
	}
	if recs[0].InstallCount != 5000 {
		t.Errorf("install count not refreshed in second pass: %d", recs[0].InstallCount)
	}
	if recs[0].CompositeScore <= recs[1].CompositeScore {
		t.Errorf("scores not descending: %f vs %f", recs[0].CompositeScore, recs[1].CompositeScore)
	}
}

func TestSearchMarketplaceTopFive(t *testing.T) {
	var skills []marketplace.Skill
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		skills = append(skills, listing(id, "skill "+id, 1))
	}
	idx := &fakeIndex{byKeyword: map[string][]marketplace.Skill{"leads": skills}}
	a := NewAgent(nil, idx, nil, nil, nil, zap.NewNop())

	recs := a.SearchMarketplace(context.Background(), GapReport{Keywords: []string{"leads"}})
	if len(recs) != maxRecommendations {
		t.Fatalf("got %d recommendations, want %d", len(recs), maxRecommendations)
	}
}

func TestCompositeScorePermissionPenalty(t *testing.T) {
	base := SkillRecommendation{RelevanceScore: 1, TrustLevel: skill.TrustVerified}
	many := base
	many.Skill.Permissions = []string{"p1", "p2", "p3", "p4", "p5", "p6"}
	some := base
	some.Skill.Permissions = []string{"p1", "p2", "p3", "p4"}

	clean := compositeScore(&base, 0)
	penalized := compositeScore(&some, 0)
	heavy := compositeScore(&many, 0)
	if !(clean > penalized && penalized > heavy) {
		t.Fatalf("permission penalty not monotonic: %f, %f, %f", clean, penalized, heavy)
	}
}

func TestCompositeScoreLifeSciencesBonus(t *testing.T) {
	plain := SkillRecommendation{RelevanceScore: 0.5, TrustLevel: skill.TrustCommunity}
	ls := plain
	ls.LifeSciences = true
	diff := compositeScore(&ls, 0) - compositeScore(&plain, 0)
	if diff < lifeSciencesWeight-1e-9 || diff > lifeSciencesWeight+1e-9 {
		t.Fatalf("life-sciences bonus %f, want %f", diff, lifeSciencesWeight)
	}
}

func TestCoveredRecently(t *testing.T) {
	recent := [][]string{{"congress", "followup", "leads"}}

	// 2 of 3 gap keywords covered: 0.67 > 0.5, suppressed.
	if !coveredRecently([]string{"congress", "followup", "crm"}, recent) {
		t.Error("majority overlap should suppress")
	}
	// 1 of 3: 0.33, delivered.
	if coveredRecently([]string{"congress", "excel", "export"}, recent) {
		t.Error("minority overlap should not suppress")
	}
	// Exactly half is not more than half.
	if coveredRecently([]string{"congress", "excel"}, recent) {
		t.Error("50% overlap must not suppress")
	}
}

func TestRecommendDelivery(t *testing.T) {
	sink := &fakeSink{}
	window := &fakeWindow{}
	client := &fakeLLM{response: `["Try the congress followup skill."]`}
	a := NewAgent(nil, nil, client, window, sink, zap.NewNop())

	matches := []GapMatch{{
		Gap:    GapReport{Description: "missed congress followups", Keywords: []string{"congress"}},
		Skills: []SkillRecommendation{{Skill: listing("s1", "congress followup", 100)}},
	}}
	recs := a.Recommend(context.Background(), "user-1", matches)
	if len(recs) != 1 {
		t.Fatalf("got %d recommendations, want 1", len(recs))
	}
	if recs[0].Message != "Try the congress followup skill." {
		t.Errorf("drafted message not used: %q", recs[0].Message)
	}
	if len(sink.notifications) != 1 || len(sink.activities) != 1 {
		t.Fatalf("delivery wrote %d notifications and %d activities, want 1 and 1",
			len(sink.notifications), len(sink.activities))
	}
	if len(window.recorded) != 1 {
		t.Fatalf("keyword set not recorded in dedup window")
	}
}

func TestRecommendSkipsMatchesWithoutSkills(t *testing.T) {
	sink := &fakeSink{}
	a := NewAgent(nil, nil, nil, nil, sink, zap.NewNop())

	matches := []GapMatch{
		{Gap: GapReport{Description: "nothing matched", Keywords: []string{"obscure"}}},
		{
			Gap:    GapReport{Description: "missed congress followups", Keywords: []string{"congress"}},
			Skills: []SkillRecommendation{{Skill: listing("s1", "congress followup", 0)}},
		},
	}
	recs := a.Recommend(context.Background(), "user-1", matches)
	if len(recs) != 1 {
		t.Fatalf("got %d recommendations, want 1", len(recs))
	}
	if recs[0].Gap.Description != "missed congress followups" {
		t.Errorf("wrong match delivered: %+v", recs[0].Gap)
	}
	if len(sink.notifications) != 1 {
		t.Fatalf("got %d notifications, want 1", len(sink.notifications))
	}
}

func TestRecommendWindowFailureStillDelivers(t *testing.T) {
	sink := &fakeSink{}
	window := &fakeWindow{readErr: errors.New("redis down")}
	a := NewAgent(nil, nil, nil, window, sink, zap.NewNop())

	matches := []GapMatch{{
		Gap:    GapReport{Description: "gap", Keywords: []string{"congress"}},
		Skills: []SkillRecommendation{{Skill: listing("s1", "congress followup", 0)}},
	}}
	recs := a.Recommend(context.Background(), "user-1", matches)
	if len(recs) != 1 {
		t.Fatal("window failure must deliver, not drop")
	}
}

func TestRecommendSuppressed(t *testing.T) {
	sink := &fakeSink{}
	window := &fakeWindow{recent: [][]string{{"congress", "followup"}}}
	a := NewAgent(nil, nil, nil, window, sink, zap.NewNop())

	matches := []GapMatch{{
		Gap:    GapReport{Keywords: []string{"congress", "followup"}},
		Skills: []SkillRecommendation{{Skill: listing("s1", "congress followup", 0)}},
	}}
	if recs := a.Recommend(context.Background(), "user-1", matches); recs != nil {
		t.Fatalf("fully covered gap should be suppressed, got %v", recs)
	}
	if len(sink.notifications) != 0 {
		t.Error("suppressed gap must not notify")
	}
}

func TestDraftMessagesFallback(t *testing.T) {
	client := &fakeLLM{err: errors.New("provider down")}
	a := NewAgent(nil, nil, client, nil, nil, zap.NewNop())

	matches := []GapMatch{{
		Gap: GapReport{Description: "missed congress followups"},
		Skills: []SkillRecommendation{{
			Skill:      listing("s1", "congress followup", 0),
			DataAccess: []string{"contacts"},
		}},
	}}
	messages := a.draftMessages(context.Background(), matches)
	if len(messages) != 1 {
		t.Fatalf("got %d messages, want 1", len(messages))
	}
	want := templateMessage(matches[0])
	if messages[0] != want {
		t.Errorf("fallback message %q, want template %q", messages[0], want)
	}
}

func TestRunEndToEnd(t *testing.T) {
	ev := &fakeEvidence{patterns: []ActivityPattern{{Pattern: "manually exported congress leads", Count: 4}}}
	idx := &fakeIndex{
		byKeyword: map[string][]marketplace.Skill{
			"congress": {listing("s1", "congress followup", 200)},
		},
	}
	// One response serves both synthesis and drafting; drafting output is
	// not valid for synthesis and vice versa, so split via call order.
	client := &orderedLLM{responses: []string{
		`[{"gap_type": "manual_workaround", "description": "manual congress exports", "frequency": 4, "keywords": ["congress"]}]`,
		`["Install the congress followup skill?"]`,
	}}
	sink := &fakeSink{}
	a := NewAgent(ev, idx, client, &fakeWindow{}, sink, zap.NewNop())

	recs := a.Run(context.Background(), "user-1")
	if len(recs) != 1 {
		t.Fatalf("got %d recommendations, want 1", len(recs))
	}
	if recs[0].Skills[0].Skill.ID != "s1" {
		t.Errorf("recommended %q", recs[0].Skills[0].Skill.ID)
	}
	if len(sink.notifications) != 1 {
		t.Errorf("got %d notifications, want 1", len(sink.notifications))
	}
}

type orderedLLM struct {
	responses []string
	next      int
}

func (o *orderedLLM) Generate(_ context.Context, _ *llm.Request) (string, error) {
	if o.next >= len(o.responses) {
		return "", errors.New("no more responses")
	}
	r := o.responses[o.next]
	o.next++
	return r, nil
}
