package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Baaaki/component-review/internal/metrics"
	"github.com/Baaaki/component-review/internal/models"
	"github.com/Baaaki/component-review/internal/repository"
	"github.com/Baaaki/component-review/internal/search"
	"github.com/Baaaki/component-review/pkg/apperror"
	"github.com/Baaaki/component-review/pkg/logger"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

type ComponentInput struct {
	Name        string
	Description string
	Category    models.ComponentCategory
	Code        string
}

type ComponentStats struct {
	Pending  int64 `json:"pending"`
	Approved int64 `json:"approved"`
	Rejected int64 `json:"rejected"`
}

// ComponentService owns the component lifecycle. Status only changes through
// Submit and Decide, each a compare-and-set on the stored status.
type ComponentService struct {
	db            *gorm.DB
	components    *repository.ComponentRepository
	reviews       *repository.ReviewRepository
	notifications *repository.NotificationRepository
	audit         *AuditRecorder
	notifier      *Notifier
	indexer       search.Indexer
	metrics       *metrics.Metrics
	sanitizer     *bluemonday.Policy
}

func NewComponentService(
	db *gorm.DB,
	components *repository.ComponentRepository,
	reviews *repository.ReviewRepository,
	notifications *repository.NotificationRepository,
	audit *AuditRecorder,
	notifier *Notifier,
	indexer search.Indexer,
	m *metrics.Metrics,
) *ComponentService {
	if indexer == nil {
		indexer = search.NoopIndexer{}
	}
	return &ComponentService{
		db:            db,
		components:    components,
		reviews:       reviews,
		notifications: notifications,
		audit:         audit,
		notifier:      notifier,
		indexer:       indexer,
		metrics:       m,
		sanitizer:     bluemonday.StrictPolicy(),
	}
}

func (s *ComponentService) Create(actor *models.User, input ComponentInput) (*models.Component, error) {
	if !actor.CanCreateContent() {
		return nil, apperror.Forbidden("you cannot create components")
	}
	input, err := s.cleanInput(input)
	if err != nil {
		return nil, err
	}

	component := &models.Component{
		Name:        input.Name,
		Description: input.Description,
		Category:    input.Category,
		Code:        input.Code,
		Status:      models.StatusDraft,
		OwnerID:     actor.ID,
	}
	if err := s.components.Create(component); err != nil {
		logger.Log.Error("Failed to create component",
			zap.String("owner_id", actor.ID.String()),
			zap.Error(err),
		)
		return nil, err
	}
	component.Owner = actor

	logger.Log.Info("Component created",
		zap.String("component_id", component.ID.String()),
		zap.String("owner_id", actor.ID.String()),
	)
	return component, nil
}

// Update edits a draft owned by actor
func (s *ComponentService) Update(actor *models.User, id uuid.UUID, input ComponentInput) (*models.Component, error) {
	component, err := s.load(id)
	if err != nil {
		return nil, err
	}
	if component.OwnerID != actor.ID {
		return nil, apperror.Forbidden("only the owner can edit this component")
	}
	if component.Status != models.StatusDraft {
		return nil, apperror.Conflict("only draft components can be edited")
	}

	input, err = s.cleanInput(input)
	if err != nil {
		return nil, err
	}
	component.Name = input.Name
	component.Description = input.Description
	component.Category = input.Category
	component.Code = input.Code

	updated, err := s.components.UpdateDraft(component)
	if err != nil {
		return nil, err
	}
	if !updated {
		// submitted between the read and the write
		return nil, apperror.Conflict("only draft components can be edited")
	}
	return s.load(id)
}

// Delete removes a component owned by actor together with its reviews and notifications
func (s *ComponentService) Delete(actor *models.User, meta RequestMeta, id uuid.UUID) error {
	component, err := s.load(id)
	if err != nil {
		return err
	}
	if component.OwnerID != actor.ID {
		return apperror.Forbidden("only the owner can delete this component")
	}

	trail := s.audit.Begin()
	err = s.db.Transaction(func(tx *gorm.DB) error {
		reviews := s.reviews.WithTx(tx)
		notifications := s.notifications.WithTx(tx)

		reviewIDs, err := reviews.ListIDsByComponent(id)
		if err != nil {
			return err
		}
		if err := notifications.DeleteByReviews(reviewIDs); err != nil {
			return err
		}
		if err := notifications.DeleteByTargets([]uuid.UUID{id}); err != nil {
			return err
		}
		if err := reviews.DeleteByIDs(reviewIDs); err != nil {
			return err
		}
		if err := s.components.WithTx(tx).Delete(id); err != nil {
			return err
		}

		trail.Record(tx, AuditEntry{
			Action:      models.ActionComponentDeleted,
			Actor:       actor,
			TargetUser:  &component.OwnerID,
			TargetModel: "Component",
			TargetID:    id.String(),
			Description: fmt.Sprintf("%s deleted component '%s'", actor.Username, component.Name),
			Changes: map[string]interface{}{
				"name":     component.Name,
				"category": string(component.Category),
				"status":   string(component.Status),
			},
			Severity: models.SeverityWarning,
			Meta:     meta,
		})
		return nil
	})
	trail.Settle(err)
	if err != nil {
		logger.Log.Error("Failed to delete component",
			zap.String("component_id", id.String()),
			zap.Error(err),
		)
		return err
	}

	if component.Status == models.StatusApproved {
		if err := s.indexer.DeleteComponent(id.String()); err != nil {
			logger.Log.Warn("Failed to remove component from search index",
				zap.String("component_id", id.String()),
				zap.Error(err),
			)
		}
	}
	return nil
}

// Get applies read visibility: approved is public, owners see their own in
// any state, validators also see pending and rejected. Anything else is
// reported as not found.
func (s *ComponentService) Get(viewer *models.User, id uuid.UUID) (*models.Component, error) {
	component, err := s.load(id)
	if err != nil {
		return nil, err
	}
	if !CanView(viewer, component) {
		return nil, apperror.NotFound("component not found")
	}
	return component, nil
}

// CanView reports whether viewer (nil for anonymous) may read component
func CanView(viewer *models.User, component *models.Component) bool {
	if component.Status == models.StatusApproved {
		return true
	}
	if viewer == nil {
		return false
	}
	if component.OwnerID == viewer.ID {
		return true
	}
	return viewer.CanValidate() && component.Status != models.StatusDraft
}

// ListApproved is the public catalog
func (s *ComponentService) ListApproved(category string, search string) ([]models.Component, error) {
	status := models.StatusApproved
	filter := repository.ComponentFilter{Status: &status, Search: search}
	if category != "" {
		c := models.ComponentCategory(strings.ToUpper(category))
		if !c.Valid() {
			return nil, apperror.Validation("unknown category")
		}
		filter.Category = &c
	}
	return s.components.List(filter)
}

func (s *ComponentService) ListOwn(actor *models.User) ([]models.Component, error) {
	return s.components.List(repository.ComponentFilter{OwnerID: &actor.ID})
}

func (s *ComponentService) ListPending(actor *models.User) ([]models.Component, error) {
	if !actor.CanValidate() {
		return nil, apperror.Forbidden("only coaches and admins can see pending components")
	}
	status := models.StatusPending
	return s.components.List(repository.ComponentFilter{Status: &status})
}

func (s *ComponentService) Stats(actor *models.User) (*ComponentStats, error) {
	if !actor.CanValidate() {
		return nil, apperror.Forbidden("only coaches and admins can see review statistics")
	}
	counts, err := s.components.CountByStatus()
	if err != nil {
		return nil, err
	}
	return &ComponentStats{
		Pending:  counts[models.StatusPending],
		Approved: counts[models.StatusApproved],
		Rejected: counts[models.StatusRejected],
	}, nil
}

// Submit moves a draft owned by actor to pending and notifies every coach and admin
func (s *ComponentService) Submit(ctx context.Context, actor *models.User, meta RequestMeta, id uuid.UUID) (*models.Component, error) {
	start := time.Now()

	component, err := s.transition(id, models.EventSubmit,
		func(c *models.Component) error {
			if c.OwnerID != actor.ID {
				return apperror.Forbidden("only the owner can submit this component")
			}
			return nil
		},
		func(c *models.Component, t models.Transition) AuditEntry {
			return AuditEntry{
				Action:      models.ActionComponentSubmitted,
				Actor:       actor,
				TargetUser:  &c.OwnerID,
				TargetModel: "Component",
				TargetID:    c.ID.String(),
				Description: fmt.Sprintf("%s submitted component '%s' for review", actor.Username, c.Name),
				Changes:     map[string]interface{}{"old_status": string(t.From), "new_status": string(t.To)},
				Severity:    models.SeverityInfo,
				Meta:        meta,
			}
		},
	)
	if err != nil {
		logger.Log.Warn("Component submit rejected",
			zap.String("component_id", id.String()),
			zap.String("actor_id", actor.ID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	sent := s.notifier.NotifyCoachesAndAdmins(ctx, Notice{
		Actor:    actor,
		Verb:     models.VerbComponentSubmitted,
		TargetID: &component.ID,
		Message:  fmt.Sprintf("%s submitted '%s' for review", actor.DisplayName(), component.Name),
	})

	logger.Log.Info("Component submitted",
		zap.String("component_id", component.ID.String()),
		zap.Int("notified", sent),
		zap.Duration("duration", time.Since(start)),
	)
	return component, nil
}

// Decide approves or rejects a pending component
func (s *ComponentService) Decide(ctx context.Context, actor *models.User, meta RequestMeta, id uuid.UUID, decision Decision, reason string) (*models.Component, error) {
	start := time.Now()

	if !actor.CanValidate() {
		return nil, apperror.Forbidden("only coaches and admins can review components")
	}

	var event models.ComponentEvent
	switch decision {
	case DecisionApprove:
		event = models.EventApprove
	case DecisionReject:
		event = models.EventReject
	default:
		return nil, apperror.Validation(`action must be "approve" or "reject"`)
	}
	reason = strings.TrimSpace(s.sanitizer.Sanitize(reason))

	component, err := s.transition(id, event,
		func(*models.Component) error { return nil },
		func(c *models.Component, t models.Transition) AuditEntry {
			action := models.ActionComponentApproved
			if event == models.EventReject {
				action = models.ActionComponentRejected
			}
			changes := map[string]interface{}{"old_status": string(t.From), "new_status": string(t.To)}
			if reason != "" {
				changes["reason"] = reason
			}
			return AuditEntry{
				Action:      action,
				Actor:       actor,
				TargetUser:  &c.OwnerID,
				TargetModel: "Component",
				TargetID:    c.ID.String(),
				Description: fmt.Sprintf("%s %s component '%s'", actor.Username, t.To, c.Name),
				Changes:     changes,
				Severity:    models.SeverityInfo,
				Meta:        meta,
			}
		},
	)
	if err != nil {
		logger.Log.Warn("Component decision rejected",
			zap.String("component_id", id.String()),
			zap.String("actor_id", actor.ID.String()),
			zap.String("decision", string(decision)),
			zap.Error(err),
		)
		return nil, err
	}

	verbText := "approved"
	if component.Status == models.StatusRejected {
		verbText = "rejected"
	}
	ownerMessage := fmt.Sprintf("Your component '%s' was %s", component.Name, verbText)
	if reason != "" {
		ownerMessage += ": " + reason
	}
	if _, err := s.notifier.Notify(ctx, component.OwnerID, Notice{
		Actor:    actor,
		Verb:     models.VerbComponentReviewed,
		TargetID: &component.ID,
		Message:  ownerMessage,
	}); err != nil {
		logger.Log.Warn("Owner notification failed", zap.String("component_id", component.ID.String()), zap.Error(err))
	}
	s.notifier.NotifyAdmins(ctx, Notice{
		Actor:    actor,
		Verb:     models.VerbComponentReviewed,
		TargetID: &component.ID,
		Message:  fmt.Sprintf("%s %s the component '%s'", actor.DisplayName(), verbText, component.Name),
	})

	if component.Status == models.StatusApproved {
		if err := s.indexer.IndexComponent(component); err != nil {
			logger.Log.Warn("Failed to index approved component",
				zap.String("component_id", component.ID.String()),
				zap.Error(err),
			)
		}
	}

	logger.Log.Info("Component reviewed",
		zap.String("component_id", component.ID.String()),
		zap.String("status", string(component.Status)),
		zap.String("reviewer_id", actor.ID.String()),
		zap.Duration("duration", time.Since(start)),
	)
	return component, nil
}

// transition runs one guarded lifecycle step: load, authorize, compare-and-set
// the status and write the audit row, all in one transaction.
func (s *ComponentService) transition(
	id uuid.UUID,
	event models.ComponentEvent,
	authorize func(*models.Component) error,
	audit func(*models.Component, models.Transition) AuditEntry,
) (*models.Component, error) {
	t, ok := models.TransitionFor(event)
	if !ok {
		return nil, apperror.Validation("unknown lifecycle event")
	}

	var result *models.Component
	trail := s.audit.Begin()
	err := s.db.Transaction(func(tx *gorm.DB) error {
		repo := s.components.WithTx(tx)

		component, err := repo.GetByID(id)
		if err != nil {
			return err
		}
		if component == nil {
			return apperror.NotFound("component not found")
		}
		if err := authorize(component); err != nil {
			return err
		}
		if component.Status != t.From {
			return invalidState(event)
		}

		swapped, err := repo.CompareAndSetStatus(id, t.From, t.To)
		if err != nil {
			return err
		}
		if !swapped {
			return invalidState(event)
		}
		component.Status = t.To

		trail.Record(tx, audit(component, t))
		result = component
		return nil
	})
	trail.Settle(err)

	s.countTransition(event, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func invalidState(event models.ComponentEvent) error {
	if event == models.EventSubmit {
		return apperror.Conflict("component is not in draft state")
	}
	return apperror.Conflict("component is not pending review")
}

func (s *ComponentService) countTransition(event models.ComponentEvent, err error) {
	if s.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = apperror.KindName(err)
	}
	s.metrics.Transitions.WithLabelValues(string(event), result).Inc()
}

func (s *ComponentService) load(id uuid.UUID) (*models.Component, error) {
	component, err := s.components.GetByID(id)
	if err != nil {
		return nil, err
	}
	if component == nil {
		return nil, apperror.NotFound("component not found")
	}
	return component, nil
}

func (s *ComponentService) cleanInput(input ComponentInput) (ComponentInput, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Category = models.ComponentCategory(strings.ToUpper(string(input.Category)))
	input.Description = strings.TrimSpace(s.sanitizer.Sanitize(input.Description))

	switch {
	case input.Name == "":
		return input, apperror.Validation("name is required")
	case len([]rune(input.Name)) > 100:
		return input, apperror.Validation("name must be at most 100 characters")
	case !input.Category.Valid():
		return input, apperror.Validation("unknown category")
	case strings.TrimSpace(input.Code) == "":
		return input, apperror.Validation("code is required")
	}
	return input, nil
}
