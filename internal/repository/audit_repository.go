package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/Baaaki/component-review/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DefaultAuditPageSize = 50
	MaxAuditPageSize     = 200
)

type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) WithTx(tx *gorm.DB) *AuditRepository {
	return &AuditRepository{db: tx}
}

// AuditFilter narrows audit queries. From is inclusive, To is exclusive.
type AuditFilter struct {
	Action       *models.AuditAction
	ActorID      *uuid.UUID
	TargetUserID *uuid.UUID
	InvolvedUser *uuid.UUID // actor or target user
	Severity     *models.Severity
	From         *time.Time
	To           *time.Time
	Search       string
	Page         int
	PageSize     int
}

// Normalize clamps paging to the allowed window
func (f *AuditFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = DefaultAuditPageSize
	}
	if f.PageSize > MaxAuditPageSize {
		f.PageSize = MaxAuditPageSize
	}
}

type AuditPage struct {
	Logs     []models.AuditLog `json:"results"`
	Total    int64             `json:"count"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
}

type ActionCount struct {
	Action models.AuditAction `json:"action"`
	Label  string             `json:"label"`
	Count  int64              `json:"count"`
}

type SeverityCount struct {
	Severity models.Severity `json:"severity"`
	Count    int64           `json:"count"`
}

type AuditStats struct {
	Total      int64           `json:"total_logs"`
	ByAction   []ActionCount   `json:"actions"`
	BySeverity []SeverityCount `json:"severities"`
	Last24h    int64           `json:"last_24h"`
	Last7d     int64           `json:"last_7d"`
	Last30d    int64           `json:"last_30d"`
}

func (r *AuditRepository) Create(entry *models.AuditLog) error {
	return r.db.Create(entry).Error
}

func (r *AuditRepository) Exists(id uuid.UUID) (bool, error) {
	var count int64
	err := r.db.Model(&models.AuditLog{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

func (r *AuditRepository) GetByID(id uuid.UUID) (*models.AuditLog, error) {
	var entry models.AuditLog
	err := r.db.Preload("Actor").Preload("TargetUser").Where("id = ?", id).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

// List returns one page, newest first
func (r *AuditRepository) List(filter AuditFilter) (*AuditPage, error) {
	filter.Normalize()

	q := r.db.Model(&models.AuditLog{})
	if filter.Action != nil {
		q = q.Where("action = ?", *filter.Action)
	}
	if filter.ActorID != nil {
		q = q.Where("actor_id = ?", *filter.ActorID)
	}
	if filter.TargetUserID != nil {
		q = q.Where("target_user_id = ?", *filter.TargetUserID)
	}
	if filter.InvolvedUser != nil {
		q = q.Where("actor_id = ? OR target_user_id = ?", *filter.InvolvedUser, *filter.InvolvedUser)
	}
	if filter.Severity != nil {
		q = q.Where("severity = ?", *filter.Severity)
	}
	if filter.From != nil {
		q = q.Where("timestamp >= ?", *filter.From)
	}
	if filter.To != nil {
		q = q.Where("timestamp < ?", *filter.To)
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		q = q.Where("LOWER(description) LIKE ?", "%"+strings.ToLower(s)+"%")
	}

	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, err
	}

	var logs []models.AuditLog
	err := q.Preload("Actor").Preload("TargetUser").
		Order("timestamp DESC").
		Limit(filter.PageSize).
		Offset((filter.Page - 1) * filter.PageSize).
		Find(&logs).Error
	if err != nil {
		return nil, err
	}

	return &AuditPage{Logs: logs, Total: total, Page: filter.Page, PageSize: filter.PageSize}, nil
}

func (r *AuditRepository) Stats(now time.Time) (*AuditStats, error) {
	stats := &AuditStats{}

	if err := r.db.Model(&models.AuditLog{}).Count(&stats.Total).Error; err != nil {
		return nil, err
	}

	var actions []ActionCount
	err := r.db.Model(&models.AuditLog{}).
		Select("action, COUNT(*) AS count").
		Group("action").
		Having("COUNT(*) > 0").
		Order("count DESC").
		Scan(&actions).Error
	if err != nil {
		return nil, err
	}
	for i := range actions {
		actions[i].Label = actions[i].Action.Label()
	}
	stats.ByAction = actions

	err = r.db.Model(&models.AuditLog{}).
		Select("severity, COUNT(*) AS count").
		Group("severity").
		Order("severity").
		Scan(&stats.BySeverity).Error
	if err != nil {
		return nil, err
	}

	windows := []struct {
		since time.Duration
		dst   *int64
	}{
		{24 * time.Hour, &stats.Last24h},
		{7 * 24 * time.Hour, &stats.Last7d},
		{30 * 24 * time.Hour, &stats.Last30d},
	}
	for _, w := range windows {
		if err := r.db.Model(&models.AuditLog{}).Where("timestamp >= ?", now.Add(-w.since)).Count(w.dst).Error; err != nil {
			return nil, err
		}
	}

	return stats, nil
}

// DeleteOlderThan removes rows strictly older than cutoff
func (r *AuditRepository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	res := r.db.Where("timestamp < ?", cutoff).Delete(&models.AuditLog{})
	return res.RowsAffected, res.Error
}

// DetachUser clears actor and target references to a user that is being removed
func (r *AuditRepository) DetachUser(userID uuid.UUID) error {
	if err := r.db.Model(&models.AuditLog{}).Where("actor_id = ?", userID).Update("actor_id", nil).Error; err != nil {
		return err
	}
	return r.db.Model(&models.AuditLog{}).Where("target_user_id = ?", userID).Update("target_user_id", nil).Error
}
