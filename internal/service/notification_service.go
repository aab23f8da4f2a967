package service

import (
	"context"

	"github.com/Baaaki/component-review/internal/broker"
	"github.com/Baaaki/component-review/internal/models"
	"github.com/Baaaki/component-review/internal/repository"
	"github.com/Baaaki/component-review/pkg/apperror"
	"github.com/google/uuid"
)

// NotificationService is the recipient-facing side of notifications
type NotificationService struct {
	repo   *repository.NotificationRepository
	broker broker.NotificationBroker
}

func NewNotificationService(repo *repository.NotificationRepository, b broker.NotificationBroker) *NotificationService {
	if b == nil {
		b = broker.NoopBroker{}
	}
	return &NotificationService{repo: repo, broker: b}
}

// List pages through the user's notifications. Page sizes are clamped to
// repository.MaxNotificationPageSize.
func (s *NotificationService) List(user *models.User, filter repository.NotificationFilter) (*repository.NotificationPage, error) {
	return s.repo.ListForRecipient(user.ID, filter)
}

func (s *NotificationService) MarkRead(user *models.User, id uuid.UUID) error {
	found, err := s.repo.MarkRead(id, user.ID)
	if err != nil {
		return err
	}
	if !found {
		return apperror.NotFound("notification not found")
	}
	return nil
}

func (s *NotificationService) MarkAllRead(user *models.User) (int64, error) {
	return s.repo.MarkAllRead(user.ID)
}

func (s *NotificationService) UnreadCount(user *models.User) (int64, error) {
	return s.repo.CountUnread(user.ID)
}

// Stream subscribes to the user's live notifications until ctx ends
func (s *NotificationService) Stream(ctx context.Context, user *models.User) (<-chan broker.Event, error) {
	return s.broker.Subscribe(ctx, user.ID)
}
