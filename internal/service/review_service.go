package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Baaaki/component-review/internal/models"
	"github.com/Baaaki/component-review/internal/repository"
	"github.com/Baaaki/component-review/pkg/apperror"
	"github.com/Baaaki/component-review/pkg/logger"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxCommentLength = 2000

var errDuplicateReview = apperror.Conflict("you have already reviewed this component")

type ReviewUpdate struct {
	Rating  *int
	Comment *string
}

// ReviewService manages ratings. One review per (component, user), enforced by
// a unique index; the pre-check only gives a nicer error on the common path.
type ReviewService struct {
	reviews    *repository.ReviewRepository
	components *repository.ComponentRepository
	notifier   *Notifier
	sanitizer  *bluemonday.Policy
}

func NewReviewService(reviews *repository.ReviewRepository, components *repository.ComponentRepository, notifier *Notifier) *ReviewService {
	return &ReviewService{
		reviews:    reviews,
		components: components,
		notifier:   notifier,
		sanitizer:  bluemonday.StrictPolicy(),
	}
}

func (s *ReviewService) Create(ctx context.Context, actor *models.User, componentID uuid.UUID, rating int, comment string) (*models.Review, error) {
	component, err := s.visibleComponent(actor, componentID)
	if err != nil {
		return nil, err
	}
	if !models.ValidRating(rating) {
		return nil, ratingError()
	}
	comment, err = s.cleanComment(comment)
	if err != nil {
		return nil, err
	}

	exists, err := s.reviews.ExistsFor(componentID, actor.ID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, errDuplicateReview
	}

	review := &models.Review{
		ComponentID: componentID,
		UserID:      actor.ID,
		Rating:      rating,
		Comment:     comment,
	}
	if err := s.reviews.Create(review); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errDuplicateReview
		}
		logger.Log.Error("Failed to create review",
			zap.String("component_id", componentID.String()),
			zap.String("user_id", actor.ID.String()),
			zap.Error(err),
		)
		return nil, err
	}
	review.User = actor

	s.notifyOwner(ctx, actor, component, review, models.VerbReviewCreated,
		fmt.Sprintf("%s added a review on your component '%s'", actor.Username, component.Name))

	logger.Log.Info("Review created",
		zap.String("review_id", review.ID.String()),
		zap.String("component_id", componentID.String()),
		zap.Int("rating", rating),
	)
	return review, nil
}

func (s *ReviewService) Get(id uuid.UUID) (*models.Review, error) {
	review, err := s.reviews.GetByID(id)
	if err != nil {
		return nil, err
	}
	if review == nil {
		return nil, apperror.NotFound("review not found")
	}
	return review, nil
}

// ListForComponent returns the reviews of a component the viewer can see
func (s *ReviewService) ListForComponent(viewer *models.User, componentID uuid.UUID) ([]models.Review, repository.RatingSummary, error) {
	if _, err := s.visibleComponent(viewer, componentID); err != nil {
		return nil, repository.RatingSummary{}, err
	}
	reviews, err := s.reviews.ListByComponent(componentID)
	if err != nil {
		return nil, repository.RatingSummary{}, err
	}
	summary, err := s.reviews.Summary(componentID)
	if err != nil {
		return nil, repository.RatingSummary{}, err
	}
	return reviews, summary, nil
}

// Update changes the actor's own review. The owner is notified only when the
// rating or comment actually changed.
func (s *ReviewService) Update(ctx context.Context, actor *models.User, id uuid.UUID, update ReviewUpdate) (*models.Review, error) {
	review, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if review.UserID != actor.ID {
		return nil, apperror.Forbidden("you can only modify your own review")
	}

	changed := false
	if update.Rating != nil {
		if !models.ValidRating(*update.Rating) {
			return nil, ratingError()
		}
		if *update.Rating != review.Rating {
			review.Rating = *update.Rating
			changed = true
		}
	}
	if update.Comment != nil {
		comment, err := s.cleanComment(*update.Comment)
		if err != nil {
			return nil, err
		}
		if comment != review.Comment {
			review.Comment = comment
			changed = true
		}
	}
	if !changed {
		return review, nil
	}

	if err := s.reviews.Update(review); err != nil {
		return nil, err
	}

	component, err := s.components.GetByID(review.ComponentID)
	if err != nil {
		logger.Log.Warn("Failed to load component for review notification", zap.Error(err))
	} else if component != nil {
		s.notifyOwner(ctx, actor, component, review, models.VerbReviewUpdated,
			fmt.Sprintf("%s updated their review on '%s'", actor.Username, component.Name))
	}

	return s.Get(id)
}

func (s *ReviewService) Delete(actor *models.User, id uuid.UUID) error {
	review, err := s.Get(id)
	if err != nil {
		return err
	}
	if review.UserID != actor.ID {
		return apperror.Forbidden("you can only delete your own review")
	}
	return s.reviews.Delete(id)
}

func (s *ReviewService) notifyOwner(ctx context.Context, actor *models.User, component *models.Component, review *models.Review, verb models.NotificationVerb, message string) {
	if component.OwnerID == actor.ID {
		return
	}
	if _, err := s.notifier.Notify(ctx, component.OwnerID, Notice{
		Actor:    actor,
		Verb:     verb,
		TargetID: &component.ID,
		ReviewID: &review.ID,
		Message:  message,
	}); err != nil {
		logger.Log.Warn("Review notification failed",
			zap.String("review_id", review.ID.String()),
			zap.Error(err),
		)
	}
}

func (s *ReviewService) visibleComponent(viewer *models.User, id uuid.UUID) (*models.Component, error) {
	component, err := s.components.GetByID(id)
	if err != nil {
		return nil, err
	}
	if component == nil || !CanView(viewer, component) {
		return nil, apperror.NotFound("component not found")
	}
	return component, nil
}

func (s *ReviewService) cleanComment(comment string) (string, error) {
	comment = strings.TrimSpace(s.sanitizer.Sanitize(comment))
	if len([]rune(comment)) > maxCommentLength {
		return "", apperror.Validation(fmt.Sprintf("comment must be at most %d characters", maxCommentLength))
	}
	return comment, nil
}

func ratingError() error {
	return apperror.Validation(fmt.Sprintf("rating must be between %d and %d", models.MinRating, models.MaxRating))
}
