package skill

import "testing"

func TestKeywordRelevanceEmptyTask(t *testing.T) {
	score := KeywordRelevance(Task{}, "lead_enrichment", "Enrich lead records")
	if score != 0 {
		t.Fatalf("empty task scored %f, want 0", score)
	}
}

func TestKeywordRelevanceTypeMatch(t *testing.T) {
	task := Task{Type: "lead_enrichment"}
	score := KeywordRelevance(task, "lead_enrichment", "")
	if score < typeMatchWeight {
		t.Fatalf("exact type match scored %f, want at least %f", score, typeMatchWeight)
	}

	// Separator differences still match.
	task = Task{Type: "lead-enrichment"}
	if s := KeywordRelevance(task, "lead_enrichment", ""); s < typeMatchWeight {
		t.Errorf("hyphenated type scored %f, want at least %f", s, typeMatchWeight)
	}
}

func TestKeywordRelevanceOverlap(t *testing.T) {
	task := Task{Description: "enrich the new lead with company data"}
	full := KeywordRelevance(task, "lead_enrichment", "enrich lead records with company data")
	none := KeywordRelevance(task, "invoice_export", "export invoices to csv")
	if full <= none {
		t.Fatalf("overlapping description scored %f, disjoint scored %f", full, none)
	}
	if full > 1 {
		t.Errorf("score %f exceeds 1", full)
	}
}

func TestKeywordRelevanceClamped(t *testing.T) {
	task := Task{Type: "lead_enrichment", Description: "lead enrichment lead enrichment"}
	score := KeywordRelevance(task, "lead_enrichment", "lead enrichment")
	if score > 1 {
		t.Fatalf("score %f exceeds 1", score)
	}
}

func TestTokenizeDropsShortTokens(t *testing.T) {
	tokens := Tokenize("a CRM update, x y-z!")
	for _, tok := range tokens {
		if len(tok) < 2 {
			t.Errorf("kept short token %q", tok)
		}
	}
	found := false
	for _, tok := range tokens {
		if tok == "crm" {
			found = true
		}
	}
	if !found {
		t.Error("expected lowercase token crm")
	}
}
