package service

import (
	"context"

	"github.com/Baaaki/component-review/internal/broker"
	"github.com/Baaaki/component-review/internal/metrics"
	"github.com/Baaaki/component-review/internal/models"
	"github.com/Baaaki/component-review/internal/repository"
	"github.com/Baaaki/component-review/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Notice is one notification to create
type Notice struct {
	Actor    *models.User
	Verb     models.NotificationVerb
	TargetID *uuid.UUID
	ReviewID *uuid.UUID
	Message  string
}

// Notifier persists one notification per recipient and pushes it to live
// subscribers. It never batches, deduplicates or retries.
type Notifier struct {
	users         *repository.UserRepository
	notifications *repository.NotificationRepository
	broker        broker.NotificationBroker
	metrics       *metrics.Metrics
}

func NewNotifier(
	users *repository.UserRepository,
	notifications *repository.NotificationRepository,
	b broker.NotificationBroker,
	m *metrics.Metrics,
) *Notifier {
	if b == nil {
		b = broker.NoopBroker{}
	}
	return &Notifier{
		users:         users,
		notifications: notifications,
		broker:        b,
		metrics:       m,
	}
}

// Notify creates a single notification for recipientID
func (n *Notifier) Notify(ctx context.Context, recipientID uuid.UUID, notice Notice) (*models.Notification, error) {
	row := &models.Notification{
		RecipientID: recipientID,
		Verb:        notice.Verb,
		TargetID:    notice.TargetID,
		ReviewID:    notice.ReviewID,
		Message:     truncate(notice.Message, 255),
	}
	if notice.Actor != nil {
		id := notice.Actor.ID
		row.ActorID = &id
	}

	if err := n.notifications.Create(row); err != nil {
		logger.Log.Error("Failed to create notification",
			zap.String("recipient_id", recipientID.String()),
			zap.String("verb", string(notice.Verb)),
			zap.Error(err),
		)
		return nil, err
	}
	if n.metrics != nil {
		n.metrics.Notifications.WithLabelValues(string(notice.Verb)).Inc()
	}

	// Live delivery is best effort; the row above is the source of truth
	event := broker.Event{
		ID:        row.ID,
		Verb:      string(row.Verb),
		Message:   row.Message,
		ActorID:   row.ActorID,
		TargetID:  row.TargetID,
		ReviewID:  row.ReviewID,
		CreatedAt: row.CreatedAt,
	}
	if err := n.broker.Publish(ctx, recipientID, event); err != nil {
		logger.Log.Warn("Failed to publish notification",
			zap.String("recipient_id", recipientID.String()),
			zap.Error(err),
		)
	}

	return row, nil
}

// NotifyCoachesAndAdmins fans out to the current coach-or-admin set. An empty
// set creates nothing. Returns the number of notifications created.
func (n *Notifier) NotifyCoachesAndAdmins(ctx context.Context, notice Notice) int {
	recipients, err := n.users.ListCoachesAndAdmins()
	if err != nil {
		logger.Log.Error("Failed to load coaches and admins", zap.Error(err))
		return 0
	}
	return n.fanOut(ctx, recipients, notice)
}

func (n *Notifier) NotifyAdmins(ctx context.Context, notice Notice) int {
	recipients, err := n.users.ListAdmins()
	if err != nil {
		logger.Log.Error("Failed to load admins", zap.Error(err))
		return 0
	}
	return n.fanOut(ctx, recipients, notice)
}

func (n *Notifier) fanOut(ctx context.Context, recipients []models.User, notice Notice) int {
	created := 0
	for _, r := range recipients {
		if _, err := n.Notify(ctx, r.ID, notice); err == nil {
			created++
		}
	}
	return created
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
