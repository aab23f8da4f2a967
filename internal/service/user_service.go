package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/Baaaki/component-review/internal/models"
	"github.com/Baaaki/component-review/internal/repository"
	"github.com/Baaaki/component-review/internal/search"
	"github.com/Baaaki/component-review/pkg/apperror"
	"github.com/Baaaki/component-review/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// UserService is the admin surface over accounts. The admin account itself
// and the acting user are never valid targets.
type UserService struct {
	db            *gorm.DB
	users         *repository.UserRepository
	components    *repository.ComponentRepository
	reviews       *repository.ReviewRepository
	notifications *repository.NotificationRepository
	resets        *repository.PasswordResetRepository
	audits        *repository.AuditRepository
	audit         *AuditRecorder
	indexer       search.Indexer
}

func NewUserService(
	db *gorm.DB,
	users *repository.UserRepository,
	components *repository.ComponentRepository,
	reviews *repository.ReviewRepository,
	notifications *repository.NotificationRepository,
	resets *repository.PasswordResetRepository,
	audits *repository.AuditRepository,
	audit *AuditRecorder,
	indexer search.Indexer,
) *UserService {
	if indexer == nil {
		indexer = search.NoopIndexer{}
	}
	return &UserService{
		db:            db,
		users:         users,
		components:    components,
		reviews:       reviews,
		notifications: notifications,
		resets:        resets,
		audits:        audits,
		audit:         audit,
		indexer:       indexer,
	}
}

func (s *UserService) ListUsers(actor *models.User, filter repository.UserFilter) ([]models.User, error) {
	if !actor.CanManageUsers() {
		return nil, apperror.Forbidden("admin access required")
	}
	if filter.Role != nil && !filter.Role.Valid() {
		return nil, apperror.Validation("unknown role")
	}
	return s.users.ListUsers(filter)
}

// ChangeRole sets a new role on a non-admin account. At most one admin exists,
// so promotion to admin is refused while one is present.
func (s *UserService) ChangeRole(actor *models.User, meta RequestMeta, targetID uuid.UUID, role models.Role) (*models.User, error) {
	target, err := s.loadTarget(actor, targetID)
	if err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, apperror.Validation("unknown role")
	}
	if role == models.RoleAdmin {
		admins, err := s.users.CountAdmins()
		if err != nil {
			return nil, err
		}
		if admins > 0 {
			return nil, apperror.Conflict("the platform already has an admin")
		}
	}
	if target.Role == role {
		return target, nil
	}

	oldRole := target.Role
	trail := s.audit.Begin()
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.users.WithTx(tx).UpdateRole(target.ID, role); err != nil {
			return err
		}
		trail.Record(tx, AuditEntry{
			Action:      models.ActionRoleChanged,
			Actor:       actor,
			TargetUser:  &target.ID,
			TargetModel: "User",
			TargetID:    target.ID.String(),
			Description: fmt.Sprintf("%s changed role of %s from %s to %s", actor.Username, target.Username, oldRole, role),
			Changes:     map[string]interface{}{"old_role": string(oldRole), "new_role": string(role)},
			Severity:    models.SeverityWarning,
			Meta:        meta,
		})
		return nil
	})
	trail.Settle(err)
	if err != nil {
		return nil, err
	}

	logger.Log.Info("User role changed",
		zap.String("target_id", target.ID.String()),
		zap.String("old_role", string(oldRole)),
		zap.String("new_role", string(role)),
		zap.String("admin_id", actor.ID.String()),
	)
	target.Role = role
	return target, nil
}

func (s *UserService) SetActive(actor *models.User, meta RequestMeta, targetID uuid.UUID, active bool) (*models.User, error) {
	target, err := s.loadTarget(actor, targetID)
	if err != nil {
		return nil, err
	}
	if target.IsActive == active {
		return target, nil
	}

	action := models.ActionUserDeactivated
	severity := models.SeverityWarning
	verb := "deactivated"
	if active {
		action = models.ActionUserActivated
		severity = models.SeverityInfo
		verb = "activated"
	}

	trail := s.audit.Begin()
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.users.WithTx(tx).UpdateActive(target.ID, active); err != nil {
			return err
		}
		trail.Record(tx, AuditEntry{
			Action:      action,
			Actor:       actor,
			TargetUser:  &target.ID,
			TargetModel: "User",
			TargetID:    target.ID.String(),
			Description: fmt.Sprintf("%s %s account %s", actor.Username, verb, target.Username),
			Changes:     map[string]interface{}{"old_status": activeLabel(target.IsActive), "new_status": activeLabel(active)},
			Severity:    severity,
			Meta:        meta,
		})
		return nil
	})
	trail.Settle(err)
	if err != nil {
		return nil, err
	}

	target.IsActive = active
	return target, nil
}

// DeleteUser removes the account and everything it owns in one transaction.
// Audit rows and notifications the user acted in are kept with the reference cleared.
func (s *UserService) DeleteUser(actor *models.User, meta RequestMeta, targetID uuid.UUID) error {
	start := time.Now()

	target, err := s.loadTarget(actor, targetID)
	if err != nil {
		return err
	}

	var componentIDs []uuid.UUID
	trail := s.audit.Begin()
	err = s.db.Transaction(func(tx *gorm.DB) error {
		components := s.components.WithTx(tx)
		reviews := s.reviews.WithTx(tx)
		notifications := s.notifications.WithTx(tx)

		var err error
		componentIDs, err = components.ListIDsByOwner(target.ID)
		if err != nil {
			return err
		}
		reviewIDs, err := reviews.ListIDsByUserOrComponents(target.ID, componentIDs)
		if err != nil {
			return err
		}

		// 1. Keep history, drop references
		if err := s.audits.WithTx(tx).DetachUser(target.ID); err != nil {
			return err
		}
		if err := notifications.DetachActor(target.ID); err != nil {
			return err
		}

		// 2. Owned data
		if err := notifications.DeleteByRecipient(target.ID); err != nil {
			return err
		}
		if err := notifications.DeleteByReviews(reviewIDs); err != nil {
			return err
		}
		if err := notifications.DeleteByTargets(componentIDs); err != nil {
			return err
		}
		if err := reviews.DeleteByIDs(reviewIDs); err != nil {
			return err
		}
		if _, err := components.DeleteByOwner(target.ID); err != nil {
			return err
		}
		if err := s.resets.WithTx(tx).DeleteByUser(target.ID); err != nil {
			return err
		}
		if err := s.users.WithTx(tx).DeleteUser(target.ID); err != nil {
			return err
		}

		// 3. Audit last; the snapshot keeps the deleted identity
		trail.Record(tx, AuditEntry{
			Action:      models.ActionUserDeleted,
			Actor:       actor,
			TargetModel: "User",
			TargetID:    target.ID.String(),
			Description: fmt.Sprintf("%s deleted account %s", actor.Username, target.Username),
			Changes: map[string]interface{}{
				"deleted_user": map[string]interface{}{
					"id":          target.ID.String(),
					"username":    target.Username,
					"email":       target.Email,
					"role":        string(target.Role),
					"is_active":   target.IsActive,
					"date_joined": target.CreatedAt.UTC().Format(time.RFC3339),
				},
				"deleted_components": len(componentIDs),
				"deleted_reviews":    len(reviewIDs),
			},
			Severity: models.SeverityCritical,
			Meta:     meta,
		})
		return nil
	})
	trail.Settle(err)
	if err != nil {
		logger.Log.Error("Failed to delete user",
			zap.String("target_id", target.ID.String()),
			zap.Error(err),
		)
		return err
	}

	for _, id := range componentIDs {
		if err := s.indexer.DeleteComponent(id.String()); err != nil {
			logger.Log.Warn("Failed to remove component from search index",
				zap.String("component_id", id.String()),
				zap.Error(err),
			)
		}
	}

	logger.Log.Info("User deleted",
		zap.String("target_id", target.ID.String()),
		zap.String("admin_id", actor.ID.String()),
		zap.Int("components", len(componentIDs)),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// Activity lists audit rows where the user is actor or target
func (s *UserService) Activity(actor *models.User, userID uuid.UUID, page, pageSize int) (*repository.AuditPage, error) {
	if !actor.CanManageUsers() {
		return nil, apperror.Forbidden("admin access required")
	}
	user, err := s.users.GetUserByID(userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperror.NotFound("user not found")
	}
	return s.audits.List(repository.AuditFilter{InvolvedUser: &userID, Page: page, PageSize: pageSize})
}

func (s *UserService) loadTarget(actor *models.User, targetID uuid.UUID) (*models.User, error) {
	if !actor.CanManageUsers() {
		return nil, apperror.Forbidden("admin access required")
	}
	if targetID == actor.ID {
		return nil, apperror.Forbidden("you cannot modify your own account")
	}
	target, err := s.users.GetUserByID(targetID)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, apperror.NotFound("user not found")
	}
	if target.IsAdmin() {
		return nil, apperror.Forbidden("admin accounts cannot be modified")
	}
	return target, nil
}

func activeLabel(active bool) string {
	if active {
		return "active"
	}
	return "inactive"
}

// ParseRole normalizes a role name from user input
func ParseRole(s string) models.Role {
	return models.Role(strings.ToLower(strings.TrimSpace(s)))
}
