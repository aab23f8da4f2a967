package repository

import (
	"errors"

	"github.com/Baaaki/component-review/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ReviewRepository struct {
	db *gorm.DB
}

func NewReviewRepository(db *gorm.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

func (r *ReviewRepository) WithTx(tx *gorm.DB) *ReviewRepository {
	return &ReviewRepository{db: tx}
}

type RatingSummary struct {
	Count   int64   `json:"count"`
	Average float64 `json:"average"`
}

// Create relies on the (component_id, user_id) unique index; a duplicate
// surfaces as gorm.ErrDuplicatedKey.
func (r *ReviewRepository) Create(review *models.Review) error {
	return r.db.Create(review).Error
}

func (r *ReviewRepository) GetByID(id uuid.UUID) (*models.Review, error) {
	var review models.Review
	err := r.db.Preload("User").Where("id = ?", id).First(&review).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &review, nil
}

func (r *ReviewRepository) ExistsFor(componentID, userID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.Model(&models.Review{}).
		Where("component_id = ? AND user_id = ?", componentID, userID).
		Count(&count).Error
	return count > 0, err
}

func (r *ReviewRepository) ListByComponent(componentID uuid.UUID) ([]models.Review, error) {
	var reviews []models.Review
	err := r.db.Preload("User").
		Where("component_id = ?", componentID).
		Order("created_at DESC").
		Find(&reviews).Error
	return reviews, err
}

func (r *ReviewRepository) Summary(componentID uuid.UUID) (RatingSummary, error) {
	var summary RatingSummary
	err := r.db.Model(&models.Review{}).
		Select("COUNT(*) AS count, COALESCE(AVG(rating), 0) AS average").
		Where("component_id = ?", componentID).
		Scan(&summary).Error
	return summary, err
}

func (r *ReviewRepository) Update(review *models.Review) error {
	return r.db.Model(&models.Review{}).
		Where("id = ?", review.ID).
		Updates(map[string]interface{}{
			"rating":  review.Rating,
			"comment": review.Comment,
		}).Error
}

func (r *ReviewRepository) Delete(id uuid.UUID) error {
	return r.db.Delete(&models.Review{}, "id = ?", id).Error
}

func (r *ReviewRepository) ListIDsByUserOrComponents(userID uuid.UUID, componentIDs []uuid.UUID) ([]uuid.UUID, error) {
	q := r.db.Model(&models.Review{}).Where("user_id = ?", userID)
	if len(componentIDs) > 0 {
		q = q.Or("component_id IN ?", componentIDs)
	}
	var ids []uuid.UUID
	err := q.Pluck("id", &ids).Error
	return ids, err
}

func (r *ReviewRepository) ListIDsByComponent(componentID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.Model(&models.Review{}).Where("component_id = ?", componentID).Pluck("id", &ids).Error
	return ids, err
}

func (r *ReviewRepository) DeleteByIDs(ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.Where("id IN ?", ids).Delete(&models.Review{}).Error
}
