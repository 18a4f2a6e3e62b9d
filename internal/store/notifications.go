package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/arcwell-foundry/Aria-sub002/internal/notify"
)

// CreateNotification inserts an in-app notification row.
func (s *Store) CreateNotification(ctx context.Context, n *notify.Notification) error {
	meta, err := json.Marshal(n.Metadata)
	if err != nil {
		return fmt.Errorf("marshal notification metadata: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO notifications (id, user_id, type, title, message, link, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8)`,
		n.ID, n.UserID, n.Type, n.Title, n.Message, n.Link, meta, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// RecordActivity appends an activity-log entry.
func (s *Store) RecordActivity(ctx context.Context, a *notify.Activity) error {
	meta, err := json.Marshal(a.Metadata)
	if err != nil {
		return fmt.Errorf("marshal activity metadata: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO activity_log (id, user_id, agent, activity_type, title, description, confidence, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.UserID, a.Agent, a.ActivityType, a.Title, a.Description, a.Confidence, meta, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("record activity: %w", err)
	}
	return nil
}
