package discovery

import (
	"context"

	"go.uber.org/zap"

	"github.com/arcwell-foundry/Aria-sub002/internal/llm"
	"github.com/arcwell-foundry/Aria-sub002/internal/notify"
)

// Agent runs the passive gap-discovery loop: mine usage history for unmet
// needs, match them against the marketplace, and recommend installs. Every
// stage is independently failure-tolerant; an empty stage result
// short-circuits the rest without erroring.
type Agent struct {
	evidence EvidenceStore
	index    SkillIndex
	client   llm.Client
	window   Window
	notifier notify.Sink
	logger   *zap.Logger
}

// NewAgent wires a discovery agent. index and evidence are required for the
// loop to find anything; window, client and notifier may be nil and degrade.
func NewAgent(evidence EvidenceStore, index SkillIndex, client llm.Client,
	window Window, notifier notify.Sink, logger *zap.Logger) *Agent {
	return &Agent{
		evidence: evidence,
		index:    index,
		client:   client,
		window:   window,
		notifier: notifier,
		logger:   logger,
	}
}

// Run executes the full pipeline for one user and returns what was
// delivered. Invoked by the weekly scheduler or on demand.
func (a *Agent) Run(ctx context.Context, userID string) []Recommendation {
	gaps := a.AnalyzeUsageGaps(ctx, userID)
	if len(gaps) == 0 {
		a.logger.Debug("no usage gaps found", zap.String("user_id", userID))
		return nil
	}

	var matches []GapMatch
	for _, gap := range gaps {
		skills := a.SearchMarketplace(ctx, gap)
		if len(skills) == 0 {
			continue
		}
		matches = append(matches, GapMatch{Gap: gap, Skills: skills})
	}
	if len(matches) == 0 {
		return nil
	}

	return a.Recommend(ctx, userID, matches)
}
