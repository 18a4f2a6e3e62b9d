package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/arcwell-foundry/Aria-sub002/internal/skill"
	"github.com/arcwell-foundry/Aria-sub002/internal/trigger"
)

// SaveExecutionPlan upserts an execution plan. The persisted status is the
// durable source of truth the external executor acts on.
func (s *Store) SaveExecutionPlan(ctx context.Context, plan *trigger.ExecutionPlan) error {
	steps, err := json.Marshal(plan.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}
	groups, err := json.Marshal(plan.ParallelGroups)
	if err != nil {
		return fmt.Errorf("marshal parallel groups: %w", err)
	}

	var paths []string
	for _, st := range plan.Steps {
		paths = append(paths, st.SkillPath)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO execution_plans
			(id, user_id, steps, parallel_groups, risk_level, approval_required,
			 estimated_duration_ms, status, task_summary, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			steps = EXCLUDED.steps,
			parallel_groups = EXCLUDED.parallel_groups`,
		plan.ID, plan.UserID, steps, groups, string(plan.RiskLevel),
		plan.ApprovalRequired, plan.EstimatedDurationMS, plan.Status,
		strings.Join(paths, ", "), plan.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save execution plan %s: %w", plan.ID, err)
	}
	return nil
}

// GetExecutionPlan retrieves a plan by id.
func (s *Store) GetExecutionPlan(ctx context.Context, id string) (*trigger.ExecutionPlan, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, user_id, steps, parallel_groups, risk_level,
		       approval_required, estimated_duration_ms, status, created_at
		FROM execution_plans WHERE id = $1`, id)

	var (
		plan      trigger.ExecutionPlan
		steps     []byte
		groups    []byte
		riskLevel string
	)
	err := row.Scan(&plan.ID, &plan.UserID, &steps, &groups, &riskLevel,
		&plan.ApprovalRequired, &plan.EstimatedDurationMS, &plan.Status, &plan.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get execution plan %s: %w", id, err)
	}
	plan.RiskLevel = skill.RiskLevel(riskLevel)
	if err := json.Unmarshal(steps, &plan.Steps); err != nil {
		return nil, fmt.Errorf("unmarshal steps: %w", err)
	}
	if err := json.Unmarshal(groups, &plan.ParallelGroups); err != nil {
		return nil, fmt.Errorf("unmarshal parallel groups: %w", err)
	}
	return &plan, nil
}

// ApproveExecutionPlan marks a pending plan approved. The asynchronous
// approval flow calls this; nothing in the pipeline blocks on it.
func (s *Store) ApproveExecutionPlan(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE execution_plans SET status = $2
		WHERE id = $1 AND status = $3`,
		id, trigger.PlanStatusApproved, trigger.PlanStatusPendingApproval)
	if err != nil {
		return fmt.Errorf("approve execution plan %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("execution plan %s not pending approval", id)
	}
	return nil
}

// SaveImplicationPlan persists the root aggregate for a processed signal.
func (s *Store) SaveImplicationPlan(ctx context.Context, plan *trigger.ImplicationPlan) error {
	signal, err := json.Marshal(plan.Signal)
	if err != nil {
		return fmt.Errorf("marshal signal: %w", err)
	}
	implications, err := json.Marshal(plan.Implications)
	if err != nil {
		return fmt.Errorf("marshal implications: %w", err)
	}
	triggers, err := json.Marshal(plan.Triggers)
	if err != nil {
		return fmt.Errorf("marshal triggers: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO implication_plans
			(id, user_id, signal, implications, triggers,
			 execution_plan_id, summary, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8)`,
		plan.ID, plan.Signal.UserID, signal, implications, triggers,
		plan.ExecutionPlanID, plan.Summary, plan.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save implication plan %s: %w", plan.ID, err)
	}
	return nil
}
