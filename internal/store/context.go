package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/arcwell-foundry/Aria-sub002/internal/trigger"
)

// ListActiveLeads returns the user's open pipeline, newest first.
func (s *Store) ListActiveLeads(ctx context.Context, userID string, limit int) ([]trigger.Lead, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, company, stage
		FROM leads
		WHERE user_id = $1 AND stage NOT IN ('closed_won', 'closed_lost')
		ORDER BY updated_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list active leads: %w", err)
	}
	defer rows.Close()

	var out []trigger.Lead
	for rows.Next() {
		var l trigger.Lead
		if err := rows.Scan(&l.ID, &l.Name, &l.Company, &l.Stage); err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// GetCompanyProfile loads the user's company settings. Returns nil without
// error when no profile exists yet.
func (s *Store) GetCompanyProfile(ctx context.Context, userID string) (*trigger.CompanyProfile, error) {
	var p trigger.CompanyProfile
	err := s.db.QueryRow(ctx, `
		SELECT user_id, company, products, therapeutic_areas
		FROM company_profiles
		WHERE user_id = $1`, userID).
		Scan(&p.UserID, &p.Company, &p.Products, &p.TherapeuticAreas)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get company profile: %w", err)
	}
	return &p, nil
}

// ListRecentSignals returns signals detected since the cutoff, newest first.
func (s *Store) ListRecentSignals(ctx context.Context, userID string, since time.Time, limit int) ([]trigger.Signal, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, type, title, summary, source, detected_at, COALESCE(metadata, '{}'::jsonb)
		FROM signals
		WHERE user_id = $1 AND detected_at >= $2
		ORDER BY detected_at DESC
		LIMIT $3`, userID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent signals: %w", err)
	}
	defer rows.Close()

	var out []trigger.Signal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sig)
	}
	return out, rows.Err()
}

// SaveSignal upserts a detected signal.
func (s *Store) SaveSignal(ctx context.Context, sig *trigger.Signal) error {
	meta, err := json.Marshal(sig.Metadata)
	if err != nil {
		return fmt.Errorf("marshal signal metadata: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO signals (id, user_id, type, title, summary, source, detected_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			summary = EXCLUDED.summary,
			metadata = EXCLUDED.metadata`,
		sig.ID, sig.UserID, sig.Type, sig.Title, sig.Summary, sig.Source, sig.DetectedAt, meta)
	if err != nil {
		return fmt.Errorf("save signal: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSignal(row rowScanner) (*trigger.Signal, error) {
	var sig trigger.Signal
	var meta []byte
	if err := row.Scan(&sig.ID, &sig.UserID, &sig.Type, &sig.Title, &sig.Summary, &sig.Source, &sig.DetectedAt, &meta); err != nil {
		return nil, fmt.Errorf("scan signal: %w", err)
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &sig.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal signal metadata: %w", err)
		}
	}
	return &sig, nil
}
