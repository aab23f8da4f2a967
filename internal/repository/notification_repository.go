package repository

import (
	"github.com/Baaaki/component-review/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) WithTx(tx *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: tx}
}

func (r *NotificationRepository) Create(n *models.Notification) error {
	return r.db.Create(n).Error
}

const (
	DefaultNotificationPageSize = 50
	MaxNotificationPageSize     = 200
)

type NotificationFilter struct {
	UnreadOnly bool
	Page       int
	PageSize   int
}

func (f *NotificationFilter) normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = DefaultNotificationPageSize
	}
	if f.PageSize > MaxNotificationPageSize {
		f.PageSize = MaxNotificationPageSize
	}
}

type NotificationPage struct {
	Notifications []models.Notification
	Total         int64
	Page          int
	PageSize      int
}

// ListForRecipient returns one page of the recipient's notifications, newest first
func (r *NotificationRepository) ListForRecipient(recipientID uuid.UUID, filter NotificationFilter) (*NotificationPage, error) {
	filter.normalize()

	q := r.db.Model(&models.Notification{}).Where("recipient_id = ?", recipientID)
	if filter.UnreadOnly {
		q = q.Where("is_read = ?", false)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, err
	}

	var notifications []models.Notification
	err := q.Preload("Actor").
		Order("created_at DESC").
		Limit(filter.PageSize).
		Offset((filter.Page - 1) * filter.PageSize).
		Find(&notifications).Error
	if err != nil {
		return nil, err
	}
	return &NotificationPage{
		Notifications: notifications,
		Total:         total,
		Page:          filter.Page,
		PageSize:      filter.PageSize,
	}, nil
}

func (r *NotificationRepository) CountUnread(recipientID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.Model(&models.Notification{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Count(&count).Error
	return count, err
}

// MarkRead reports false when id does not belong to recipientID
func (r *NotificationRepository) MarkRead(id, recipientID uuid.UUID) (bool, error) {
	var n models.Notification
	err := r.db.Where("id = ? AND recipient_id = ?", id, recipientID).Limit(1).Find(&n).Error
	if err != nil {
		return false, err
	}
	if n.ID == uuid.Nil {
		return false, nil
	}
	if n.IsRead {
		return true, nil
	}
	return true, r.db.Model(&models.Notification{}).Where("id = ?", id).Update("is_read", true).Error
}

func (r *NotificationRepository) MarkAllRead(recipientID uuid.UUID) (int64, error) {
	res := r.db.Model(&models.Notification{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Update("is_read", true)
	return res.RowsAffected, res.Error
}

// CountByRecipientAndVerb counts one kind of notification for a recipient
func (r *NotificationRepository) CountByRecipientAndVerb(recipientID uuid.UUID, verb models.NotificationVerb) (int64, error) {
	var count int64
	err := r.db.Model(&models.Notification{}).
		Where("recipient_id = ? AND verb = ?", recipientID, verb).
		Count(&count).Error
	return count, err
}

// DetachActor keeps the notifications of a deleted actor but drops the reference
func (r *NotificationRepository) DetachActor(actorID uuid.UUID) error {
	return r.db.Model(&models.Notification{}).
		Where("actor_id = ?", actorID).
		Update("actor_id", nil).Error
}

func (r *NotificationRepository) DeleteByRecipient(recipientID uuid.UUID) error {
	return r.db.Where("recipient_id = ?", recipientID).Delete(&models.Notification{}).Error
}

func (r *NotificationRepository) DeleteByTargets(componentIDs []uuid.UUID) error {
	if len(componentIDs) == 0 {
		return nil
	}
	return r.db.Where("target_id IN ?", componentIDs).Delete(&models.Notification{}).Error
}

func (r *NotificationRepository) DeleteByReviews(reviewIDs []uuid.UUID) error {
	if len(reviewIDs) == 0 {
		return nil
	}
	return r.db.Where("review_id IN ?", reviewIDs).Delete(&models.Notification{}).Error
}
