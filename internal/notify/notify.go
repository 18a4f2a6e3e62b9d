package notify

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Notification is one in-app notification row.
type Notification struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Link      string         `json:"link,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Activity is one activity-log entry.
type Activity struct {
	ID           string         `json:"id"`
	UserID       string         `json:"user_id"`
	Agent        string         `json:"agent"`
	ActivityType string         `json:"activity_type"`
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	Confidence   float64        `json:"confidence"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Sink delivers notifications and activity entries.
type Sink interface {
	CreateNotification(ctx context.Context, n *Notification) error
	RecordActivity(ctx context.Context, a *Activity) error
}

// Mirror posts a rendered notification to an external channel. Mirrors are
// best-effort; a failed mirror never fails the delivery.
type Mirror interface {
	Platform() string
	Post(ctx context.Context, n *Notification) error
}

// Service writes through the canonical store sink and fans out to any
// configured mirrors.
type Service struct {
	store   Sink
	mirrors []Mirror
	logger  *zap.Logger
}

// NewService creates a notification service. store may be nil, in which case
// deliveries are log-only (degraded mode, used when postgres is down).
func NewService(store Sink, logger *zap.Logger, mirrors ...Mirror) *Service {
	return &Service{store: store, mirrors: mirrors, logger: logger}
}

// CreateNotification persists the notification and mirrors it. Store
// failures are logged, not returned: computed results upstream must not be
// discarded because delivery stumbled.
func (s *Service) CreateNotification(ctx context.Context, n *Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	if s.store != nil {
		if err := s.store.CreateNotification(ctx, n); err != nil {
			s.logger.Error("persist notification failed",
				zap.String("user_id", n.UserID), zap.Error(err))
		}
	}
	for _, m := range s.mirrors {
		if err := m.Post(ctx, n); err != nil {
			s.logger.Warn("notification mirror failed",
				zap.String("platform", m.Platform()), zap.Error(err))
		}
	}
	return nil
}

// RecordActivity persists an activity-log entry, best-effort.
func (s *Service) RecordActivity(ctx context.Context, a *Activity) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	if s.store == nil {
		return nil
	}
	if err := s.store.RecordActivity(ctx, a); err != nil {
		s.logger.Error("persist activity failed",
			zap.String("user_id", a.UserID), zap.Error(err))
	}
	return nil
}
