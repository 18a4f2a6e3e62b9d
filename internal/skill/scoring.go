package skill

import "strings"

// Heuristic weights for entries without a live instance. An exact match
// between the task type and the skill name is worth 0.4; token overlap
// between the task text and the name+description fills the remaining 0.6.
const (
	typeMatchWeight = 0.4
	overlapWeight   = 0.6
)

// KeywordRelevance scores an entry against a task without invoking any
// capability. Returns exactly 0 for an empty task; otherwise a value in [0,1].
func KeywordRelevance(task Task, name, description string) float64 {
	text := strings.TrimSpace(task.Text())
	if text == "" {
		return 0
	}

	var score float64
	if task.Type != "" && normalize(task.Type) == normalize(name) {
		score += typeMatchWeight
	}

	taskTokens := Tokenize(text)
	if len(taskTokens) > 0 {
		target := make(map[string]bool)
		for _, w := range Tokenize(name + " " + description) {
			target[w] = true
		}
		matched := 0
		for _, w := range taskTokens {
			if target[w] {
				matched++
			}
		}
		score += overlapWeight * float64(matched) / float64(len(taskTokens))
	}

	if score > 1 {
		score = 1
	}
	return score
}

// Tokenize splits text into lowercase word tokens, dropping single characters.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !((r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') ||
			r == '_' || r == '-' ||
			r > 127)
	})
	result := make([]string, 0, len(fields))
	for _, f := range fields {
		w := strings.ToLower(f)
		if len(w) > 1 {
			result = append(result, w)
		}
	}
	return result
}

// normalize folds a skill or task-type name for exact comparison:
// lowercased with separators unified.
func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
