package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arcwell-foundry/Aria-sub002/internal/llm"
	"github.com/arcwell-foundry/Aria-sub002/internal/notify"
)

// maxKeywordOverlap is the dedup threshold: a gap whose keywords overlap a
// recently delivered set by more than half is suppressed.
const maxKeywordOverlap = 0.5

// Recommend drops recently covered gaps, drafts one message per surviving
// gap and delivers each as one notification plus one activity entry.
// Message generation failure falls back to a deterministic template;
// delivery is never blocked by generation. Matches without skills carry
// nothing to recommend and are skipped.
func (a *Agent) Recommend(ctx context.Context, userID string, matches []GapMatch) []Recommendation {
	var viable []GapMatch
	for _, m := range matches {
		if len(m.Skills) > 0 {
			viable = append(viable, m)
		}
	}
	survivors := a.dropRecentlyCovered(ctx, userID, viable)
	if len(survivors) == 0 {
		return nil
	}

	messages := a.draftMessages(ctx, survivors)

	out := make([]Recommendation, 0, len(survivors))
	for i, m := range survivors {
		rec := Recommendation{
			ID:        uuid.New().String(),
			UserID:    userID,
			Gap:       m.Gap,
			Skills:    m.Skills,
			Message:   messages[i],
			CreatedAt: time.Now(),
		}
		a.deliver(ctx, &rec)
		out = append(out, rec)
	}
	return out
}

// dropRecentlyCovered suppresses gaps whose keyword sets overlap >50% with
// a recommendation delivered inside the dedup window. Window failures leave
// the gap in (deliver rather than silently drop).
func (a *Agent) dropRecentlyCovered(ctx context.Context, userID string, matches []GapMatch) []GapMatch {
	if a.window == nil {
		return matches
	}
	recent, err := a.window.RecentKeywordSets(ctx, userID)
	if err != nil {
		a.logger.Warn("dedup window read failed", zap.Error(err))
		return matches
	}

	var out []GapMatch
	for _, m := range matches {
		if coveredRecently(m.Gap.Keywords, recent) {
			a.logger.Debug("gap suppressed by dedup window",
				zap.Strings("keywords", m.Gap.Keywords))
			continue
		}
		out = append(out, m)
	}
	return out
}

// coveredRecently reports whether any recent set overlaps the gap's
// keywords by more than the threshold, measured against the gap's set.
func coveredRecently(keywords []string, recent [][]string) bool {
	if len(keywords) == 0 {
		return false
	}
	gapSet := make(map[string]bool, len(keywords))
	for _, k := range keywords {
		gapSet[strings.ToLower(k)] = true
	}
	for _, set := range recent {
		overlap := 0
		for _, k := range set {
			if gapSet[strings.ToLower(k)] {
				overlap++
			}
		}
		if float64(overlap)/float64(len(gapSet)) > maxKeywordOverlap {
			return true
		}
	}
	return false
}

const messageSystemPrompt = `You write short in-app recommendations for installing assistant skills.
For each gap write 2-3 sentences: acknowledge the observed pattern, name the top skill,
describe it in one line, state its required data-access level, and ask whether to install it.
Respond with a JSON array of strings, one message per gap, in order. Respond with JSON only.`

// draftMessages makes one LLM call for the whole batch, falling back to the
// template per gap when the call or its output is unusable.
func (a *Agent) draftMessages(ctx context.Context, matches []GapMatch) []string {
	messages := make([]string, len(matches))
	for i, m := range matches {
		messages[i] = templateMessage(m)
	}
	if a.client == nil {
		return messages
	}

	var b strings.Builder
	for i, m := range matches {
		top := m.Skills[0]
		fmt.Fprintf(&b, "Gap %d (%s): %s\nTop skill: %s — %s (data access: %s)\n\n",
			i+1, m.Gap.GapType, m.Gap.Description,
			top.Skill.Name, top.Skill.Description, dataAccessLabel(top))
	}

	text, err := a.client.Generate(ctx, &llm.Request{
		Messages:     []llm.Message{{Role: "user", Content: b.String()}},
		SystemPrompt: messageSystemPrompt,
		MaxTokens:    1500,
		Temperature:  0.5,
	})
	if err != nil {
		a.logger.Warn("message drafting failed, using template", zap.Error(err))
		return messages
	}
	var drafted []string
	if err := json.Unmarshal([]byte(llm.StripFences(text)), &drafted); err != nil || len(drafted) != len(matches) {
		a.logger.Warn("message drafting returned unusable output, using template")
		return messages
	}
	for i, msg := range drafted {
		if strings.TrimSpace(msg) != "" {
			messages[i] = msg
		}
	}
	return messages
}

// templateMessage is the deterministic fallback message for one gap.
func templateMessage(m GapMatch) string {
	top := m.Skills[0]
	return fmt.Sprintf(
		"I noticed a recurring pattern: %s. The %q skill could help — %s. It needs %s data access. Want me to install it?",
		m.Gap.Description, top.Skill.Name, top.Skill.Description, dataAccessLabel(top))
}

func dataAccessLabel(r SkillRecommendation) string {
	if len(r.DataAccess) == 0 {
		return "no"
	}
	return strings.Join(r.DataAccess, ", ")
}

// deliver emits exactly one notification and one activity entry, then
// records the keyword set in the dedup window.
func (a *Agent) deliver(ctx context.Context, rec *Recommendation) {
	if a.notifier != nil {
		top := rec.Skills[0]
		err := a.notifier.CreateNotification(ctx, &notify.Notification{
			ID:      uuid.New().String(),
			UserID:  rec.UserID,
			Type:    "skill_recommendation",
			Title:   "Skill suggestion: " + top.Skill.Name,
			Message: rec.Message,
			Link:    "/marketplace/" + top.Skill.ID,
			Metadata: map[string]any{
				"recommendation_id": rec.ID,
				"gap_type":          string(rec.Gap.GapType),
				"skill_id":          top.Skill.ID,
				"composite_score":   top.CompositeScore,
			},
		})
		if err != nil {
			a.logger.Warn("recommendation notification failed", zap.Error(err))
		}
		err = a.notifier.RecordActivity(ctx, &notify.Activity{
			ID:           uuid.New().String(),
			UserID:       rec.UserID,
			Agent:        "skill_discovery",
			ActivityType: "skill_recommended",
			Title:        "Recommended " + top.Skill.Name,
			Description:  rec.Gap.Description,
			Confidence:   top.CompositeScore,
			Metadata:     map[string]any{"recommendation_id": rec.ID},
		})
		if err != nil {
			a.logger.Warn("recommendation activity failed", zap.Error(err))
		}
	}

	if a.window != nil {
		if err := a.window.Record(ctx, rec.UserID, rec.Gap.Keywords); err != nil {
			a.logger.Warn("dedup window record failed", zap.Error(err))
		}
	}
}
