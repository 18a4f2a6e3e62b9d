package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arcwell-foundry/Aria-sub002/internal/llm"
)

const (
	evidenceWindow   = 30 * 24 * time.Hour
	maxEvidenceRows  = 50
	minRepeatCount   = 3
	slowPlanDuration = 30 * time.Second
	maxGapReports    = 10
)

// AnalyzeUsageGaps mines 30 days of usage history and synthesizes at most
// ten ranked gap reports. The three evidence queries are independent; a
// failing source contributes nothing instead of aborting the others. Zero
// evidence across all sources returns empty without an LLM call.
func (a *Agent) AnalyzeUsageGaps(ctx context.Context, userID string) []GapReport {
	if a.evidence == nil {
		return nil
	}
	since := time.Now().Add(-evidenceWindow)

	var (
		wg       sync.WaitGroup
		plans    []PlanEvidence
		turns    []TurnEvidence
		patterns []ActivityPattern
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		rows, err := a.evidence.ListProblemPlans(ctx, userID, since, maxEvidenceRows)
		if err != nil {
			a.logger.Warn("plan evidence query failed", zap.Error(err))
			return
		}
		plans = rows
	}()
	go func() {
		defer wg.Done()
		rows, err := a.evidence.ListUnhandledTurns(ctx, userID, since, maxEvidenceRows)
		if err != nil {
			a.logger.Warn("turn evidence query failed", zap.Error(err))
			return
		}
		turns = rows
	}()
	go func() {
		defer wg.Done()
		rows, err := a.evidence.ListRepeatedActivities(ctx, userID, since, minRepeatCount, maxEvidenceRows)
		if err != nil {
			a.logger.Warn("activity evidence query failed", zap.Error(err))
			return
		}
		patterns = rows
	}()
	wg.Wait()

	problems := classifyPlans(plans)
	if len(problems)+len(turns)+len(patterns) == 0 {
		return nil
	}

	gaps, err := a.synthesizeGaps(ctx, userID, problems, turns, patterns)
	if err != nil {
		a.logger.Warn("gap synthesis failed", zap.Error(err))
		return nil
	}
	return gaps
}

// planProblem is one plan evidence row with its failure mode resolved.
type planProblem struct {
	PlanEvidence
	Kind GapType
}

// classifyPlans keeps failed plans and plans whose execution ran past the
// slow threshold, computed from start/end timestamps.
func classifyPlans(plans []PlanEvidence) []planProblem {
	var out []planProblem
	for _, p := range plans {
		switch {
		case p.Status == "failed":
			out = append(out, planProblem{PlanEvidence: p, Kind: GapFailedTask})
		case p.StartedAt != nil && p.CompletedAt != nil &&
			p.CompletedAt.Sub(*p.StartedAt) > slowPlanDuration:
			out = append(out, planProblem{PlanEvidence: p, Kind: GapSlowExecution})
		}
	}
	return out
}

const gapSystemPrompt = `You analyze an autonomous assistant's usage history and identify unmet capability needs.
Respond with a JSON array of at most 10 gap objects, most significant first:
[{"gap_type": "slow_execution|failed_task|unhandled_request|manual_workaround",
  "description": "...", "evidence": ["..."], "frequency": 0,
  "keywords": ["..."]}]
Keywords should be short marketplace search terms. Respond with JSON only.`

// synthesizeGaps makes the single LLM synthesis call over the combined
// evidence. Malformed output degrades to an empty list.
func (a *Agent) synthesizeGaps(ctx context.Context, userID string,
	problems []planProblem, turns []TurnEvidence, patterns []ActivityPattern) ([]GapReport, error) {
	if a.client == nil {
		return nil, fmt.Errorf("no llm client configured")
	}

	var b strings.Builder
	for _, p := range problems {
		fmt.Fprintf(&b, "[%s] plan %s: %s\n", p.Kind, p.PlanID, p.TaskSummary)
	}
	for _, t := range turns {
		fmt.Fprintf(&b, "[unhandled] %s\n", t.Content)
	}
	for _, p := range patterns {
		fmt.Fprintf(&b, "[repeated x%d] %s\n", p.Count, p.Pattern)
	}

	text, err := a.client.Generate(ctx, &llm.Request{
		Messages:     []llm.Message{{Role: "user", Content: b.String()}},
		SystemPrompt: gapSystemPrompt,
		MaxTokens:    2000,
		Temperature:  0.3,
	})
	if err != nil {
		return nil, fmt.Errorf("generate gaps: %w", err)
	}

	var gaps []GapReport
	if err := json.Unmarshal([]byte(llm.StripFences(text)), &gaps); err != nil {
		return nil, fmt.Errorf("parse gaps: %w", err)
	}
	if len(gaps) > maxGapReports {
		gaps = gaps[:maxGapReports]
	}
	now := time.Now()
	for i := range gaps {
		gaps[i].UserID = userID
		if gaps[i].LastSeen.IsZero() {
			gaps[i].LastSeen = now
		}
	}
	return gaps, nil
}
