package store

import (
	"context"
	"fmt"
	"time"

	"github.com/arcwell-foundry/Aria-sub002/internal/discovery"
)

// ListProblemPlans returns recent failed or slow plans with their
// timestamps. The predicate is applied before the row cap so fast
// completions never crowd problem plans out of the window; the 30-second
// threshold mirrors the discovery classifier.
func (s *Store) ListProblemPlans(ctx context.Context, userID string, since time.Time, limit int) ([]discovery.PlanEvidence, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, status, COALESCE(task_summary, ''), started_at, completed_at
		FROM execution_plans
		WHERE user_id = $1 AND created_at >= $2
		  AND (status = 'failed'
		       OR (started_at IS NOT NULL AND completed_at IS NOT NULL
		           AND completed_at - started_at > interval '30 seconds'))
		ORDER BY created_at DESC
		LIMIT $3`, userID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("list problem plans: %w", err)
	}
	defer rows.Close()

	var out []discovery.PlanEvidence
	for rows.Next() {
		var e discovery.PlanEvidence
		if err := rows.Scan(&e.PlanID, &e.Status, &e.TaskSummary, &e.StartedAt, &e.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan plan evidence: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListUnhandledTurns returns conversation turns the engine could not serve.
func (s *Store) ListUnhandledTurns(ctx context.Context, userID string, since time.Time, limit int) ([]discovery.TurnEvidence, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, content, created_at
		FROM conversation_turns
		WHERE user_id = $1 AND created_at >= $2 AND NOT handled
		ORDER BY created_at DESC
		LIMIT $3`, userID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("list unhandled turns: %w", err)
	}
	defer rows.Close()

	var out []discovery.TurnEvidence
	for rows.Next() {
		var e discovery.TurnEvidence
		if err := rows.Scan(&e.TurnID, &e.Content, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn evidence: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListRepeatedActivities returns manual activity titles repeated at least
// minCount times inside the window.
func (s *Store) ListRepeatedActivities(ctx context.Context, userID string, since time.Time, minCount, limit int) ([]discovery.ActivityPattern, error) {
	rows, err := s.db.Query(ctx, `
		SELECT title, COUNT(*) AS cnt, MAX(created_at) AS last_seen
		FROM activity_log
		WHERE user_id = $1 AND created_at >= $2 AND agent = 'user'
		GROUP BY title
		HAVING COUNT(*) >= $3
		ORDER BY cnt DESC, last_seen DESC
		LIMIT $4`, userID, since, minCount, limit)
	if err != nil {
		return nil, fmt.Errorf("list repeated activities: %w", err)
	}
	defer rows.Close()

	var out []discovery.ActivityPattern
	for rows.Next() {
		var p discovery.ActivityPattern
		if err := rows.Scan(&p.Pattern, &p.Count, &p.LastSeen); err != nil {
			return nil, fmt.Errorf("scan activity pattern: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
