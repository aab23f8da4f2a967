package service

import (
	"fmt"
	"time"

	"github.com/Baaaki/component-review/internal/config"
	"github.com/Baaaki/component-review/internal/models"
	"github.com/Baaaki/component-review/internal/repository"
	"github.com/Baaaki/component-review/pkg/apperror"
	"github.com/Baaaki/component-review/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AuditService is the read and retention side of the audit trail
type AuditService struct {
	db       *gorm.DB
	repo     *repository.AuditRepository
	recorder *AuditRecorder
	now      func() time.Time
}

func NewAuditService(db *gorm.DB, repo *repository.AuditRepository, recorder *AuditRecorder) *AuditService {
	return &AuditService{
		db:       db,
		repo:     repo,
		recorder: recorder,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *AuditService) List(actor *models.User, filter repository.AuditFilter) (*repository.AuditPage, error) {
	if !actor.IsAdmin() {
		return nil, apperror.Forbidden("admin access required")
	}
	return s.repo.List(filter)
}

func (s *AuditService) Get(actor *models.User, id uuid.UUID) (*models.AuditLog, error) {
	if !actor.IsAdmin() {
		return nil, apperror.Forbidden("admin access required")
	}
	entry, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, apperror.NotFound("audit log not found")
	}
	return entry, nil
}

func (s *AuditService) Stats(actor *models.User) (*repository.AuditStats, error) {
	if !actor.IsAdmin() {
		return nil, apperror.Forbidden("admin access required")
	}
	return s.repo.Stats(s.now())
}

// Cleanup is the manual purge. It is recorded as critical with the admin as actor.
func (s *AuditService) Cleanup(actor *models.User, meta RequestMeta, days int) (int64, error) {
	if !actor.IsAdmin() {
		return 0, apperror.Forbidden("admin access required")
	}
	return s.purge(actor, meta, days, models.SeverityCritical)
}

// Purge is the scheduled retention run; the audit row has no actor.
func (s *AuditService) Purge(days int) (int64, error) {
	return s.purge(nil, RequestMeta{}, days, models.SeverityInfo)
}

func (s *AuditService) purge(actor *models.User, meta RequestMeta, days int, severity models.Severity) (int64, error) {
	if days < config.MinAuditRetentionDays {
		return 0, apperror.Validation(fmt.Sprintf("days must be at least %d", config.MinAuditRetentionDays))
	}

	cutoff := s.now().Add(-time.Duration(days) * 24 * time.Hour)
	var deleted int64

	trail := s.recorder.Begin()
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		deleted, err = s.repo.WithTx(tx).DeleteOlderThan(cutoff)
		if err != nil {
			return err
		}

		by := "system"
		if actor != nil {
			by = actor.Username
		}
		trail.Record(tx, AuditEntry{
			Action:      models.ActionAuditCleanup,
			Actor:       actor,
			TargetModel: "AuditLog",
			Description: fmt.Sprintf("%s purged %d audit logs older than %d days", by, deleted, days),
			Changes: map[string]interface{}{
				"days":    days,
				"cutoff":  cutoff.Format(time.RFC3339),
				"deleted": deleted,
			},
			Severity: severity,
			Meta:     meta,
		})
		return nil
	})
	trail.Settle(err)
	if err != nil {
		logger.Log.Error("Audit cleanup failed", zap.Int("days", days), zap.Error(err))
		return 0, err
	}

	logger.Log.Info("Audit cleanup completed",
		zap.Int("days", days),
		zap.Int64("deleted", deleted),
	)
	return deleted, nil
}
