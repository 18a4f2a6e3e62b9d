package discovery

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/arcwell-foundry/Aria-sub002/internal/marketplace"
	"github.com/arcwell-foundry/Aria-sub002/internal/skill"
)

const (
	maxResultsPerKeyword = 20
	maxRecommendations   = 5

	relevanceWeight    = 0.40
	securityWeight     = 0.25
	communityWeight    = 0.20
	lifeSciencesWeight = 0.15
)

// SearchMarketplace expands a gap's keywords into marketplace searches and
// returns the top five candidates by composite score. A gap without
// keywords yields no matches.
func (a *Agent) SearchMarketplace(ctx context.Context, gap GapReport) []SkillRecommendation {
	if a.index == nil || len(gap.Keywords) == 0 {
		return nil
	}

	// Keyword searches fan out concurrently; results are merged in keyword
	// order so equal composite scores keep a stable, reproducible order.
	perKeyword := make([][]marketplace.Skill, len(gap.Keywords))
	var wg sync.WaitGroup
	for i, kw := range gap.Keywords {
		wg.Add(1)
		go func(i int, kw string) {
			defer wg.Done()
			found, err := a.index.Search(ctx, kw, maxResultsPerKeyword)
			if err != nil {
				a.logger.Warn("marketplace search failed",
					zap.String("keyword", kw), zap.Error(err))
				return
			}
			perKeyword[i] = found
		}(i, kw)
	}
	wg.Wait()

	seen := make(map[string]bool)
	var candidates []marketplace.Skill
	for _, results := range perKeyword {
		for _, s := range results {
			if seen[s.ID] {
				continue
			}
			seen[s.ID] = true
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	recs := make([]SkillRecommendation, 0, len(candidates))
	for _, c := range candidates {
		recs = append(recs, SkillRecommendation{
			Skill:          c,
			RelevanceScore: keywordCoverage(gap.Keywords, c.SearchText()),
			TrustLevel:     c.TrustLevel,
			DataAccess:     c.DataAccess,
			LifeSciences:   c.LifeSciences,
			InstallCount:   c.InstallCount,
		})
	}

	// Second pass: install counts arrive separately, community score is 0
	// until they do.
	a.fetchInstallCounts(ctx, recs)
	var maxInstalls int
	for _, r := range recs {
		if r.InstallCount > maxInstalls {
			maxInstalls = r.InstallCount
		}
	}
	for i := range recs {
		recs[i].CompositeScore = compositeScore(&recs[i], maxInstalls)
	}

	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].CompositeScore > recs[j].CompositeScore
	})
	if len(recs) > maxRecommendations {
		recs = recs[:maxRecommendations]
	}
	return recs
}

func (a *Agent) fetchInstallCounts(ctx context.Context, recs []SkillRecommendation) {
	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.Skill.ID)
	}
	counts, err := a.index.InstallCounts(ctx, ids)
	if err != nil {
		a.logger.Warn("install count fetch failed", zap.Error(err))
		return
	}
	for i := range recs {
		if n, ok := counts[recs[i].Skill.ID]; ok {
			recs[i].InstallCount = n
		}
	}
}

// compositeScore implements the weighted multi-factor ranking:
// 0.40 relevance + 0.25 security + 0.20 community + 0.15 life-sciences.
func compositeScore(r *SkillRecommendation, maxInstalls int) float64 {
	security := trustScore(r.TrustLevel)
	switch {
	case len(r.Skill.Permissions) > 5:
		security *= 0.7
	case len(r.Skill.Permissions) > 3:
		security *= 0.85
	}

	var community float64
	if maxInstalls > 0 && r.InstallCount > 0 {
		community = math.Log1p(float64(r.InstallCount)) / math.Log1p(float64(maxInstalls))
	}

	var lsBonus float64
	if r.LifeSciences {
		lsBonus = 1.0
	}

	return relevanceWeight*r.RelevanceScore +
		securityWeight*security +
		communityWeight*community +
		lifeSciencesWeight*lsBonus
}

func trustScore(level skill.TrustLevel) float64 {
	switch level {
	case skill.TrustCore:
		return 1.0
	case skill.TrustVerified:
		return 0.9
	case skill.TrustUser:
		return 0.6
	case skill.TrustCommunity:
		return 0.4
	default:
		return 0.4
	}
}

// keywordCoverage returns the fraction of gap keywords found in the
// listing's name, description and tags.
func keywordCoverage(keywords []string, text string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	target := strings.ToLower(text)
	matched := 0
	for _, kw := range keywords {
		if strings.Contains(target, strings.ToLower(kw)) {
			matched++
		}
	}
	return float64(matched) / float64(len(keywords))
}
