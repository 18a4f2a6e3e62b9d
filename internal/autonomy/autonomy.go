// Package autonomy decides whether a planned action may run unattended,
// based on per-user trust history recorded in autonomy_grants.
package autonomy

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/arcwell-foundry/Aria-sub002/internal/skill"
)

// minStreakForAuto is the successful-execution streak a grant needs before
// it auto-approves anything.
const minStreakForAuto = 3

// Service answers per-(user, skill, risk) auto-approve checks. Implements
// trigger.ApprovalChecker.
type Service struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// New creates the autonomy service over a shared connection pool.
func New(db *pgxpool.Pool, logger *zap.Logger) *Service {
	return &Service{db: db, logger: logger}
}

// CheckApproval reports whether the skill may auto-execute for this user at
// this risk level. No grant row means no: autonomy is earned, never default.
func (s *Service) CheckApproval(ctx context.Context, userID, skillID string, risk skill.RiskLevel) (bool, error) {
	row := s.db.QueryRow(ctx, `
		SELECT enabled, max_risk, success_streak
		FROM autonomy_grants
		WHERE user_id = $1 AND skill_id = $2`,
		userID, skillID)

	var (
		enabled bool
		maxRisk string
		streak  int
	)
	if err := row.Scan(&enabled, &maxRisk, &streak); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("read autonomy grant %s/%s: %w", userID, skillID, err)
	}

	if !enabled || streak < minStreakForAuto {
		return false, nil
	}
	return risk.Severity() <= skill.RiskLevel(maxRisk).Severity(), nil
}

// RecordOutcome feeds an execution result back into the grant's streak.
// A failure resets the streak, revoking earned autonomy until re-proven.
func (s *Service) RecordOutcome(ctx context.Context, userID, skillID string, success bool) error {
	var err error
	if success {
		_, err = s.db.Exec(ctx, `
			INSERT INTO autonomy_grants (user_id, skill_id, enabled, max_risk, success_streak)
			VALUES ($1, $2, true, 'low', 1)
			ON CONFLICT (user_id, skill_id) DO UPDATE SET
				success_streak = autonomy_grants.success_streak + 1,
				updated_at = NOW()`,
			userID, skillID)
	} else {
		_, err = s.db.Exec(ctx, `
			UPDATE autonomy_grants SET success_streak = 0, updated_at = NOW()
			WHERE user_id = $1 AND skill_id = $2`,
			userID, skillID)
	}
	if err != nil {
		return fmt.Errorf("record outcome %s/%s: %w", userID, skillID, err)
	}
	return nil
}

// Grant sets the explicit autonomy ceiling for a (user, skill) pair.
func (s *Service) Grant(ctx context.Context, userID, skillID string, maxRisk skill.RiskLevel, enabled bool) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO autonomy_grants (user_id, skill_id, enabled, max_risk, success_streak)
		VALUES ($1, $2, $3, $4, 0)
		ON CONFLICT (user_id, skill_id) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			max_risk = EXCLUDED.max_risk,
			updated_at = NOW()`,
		userID, skillID, enabled, string(maxRisk))
	if err != nil {
		return fmt.Errorf("grant autonomy %s/%s: %w", userID, skillID, err)
	}
	return nil
}
