package repository

import (
	"errors"
	"strings"

	"github.com/Baaaki/component-review/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ComponentRepository struct {
	db *gorm.DB
}

func NewComponentRepository(db *gorm.DB) *ComponentRepository {
	return &ComponentRepository{db: db}
}

func (r *ComponentRepository) WithTx(tx *gorm.DB) *ComponentRepository {
	return &ComponentRepository{db: tx}
}

type ComponentFilter struct {
	Status   *models.ComponentStatus
	Category *models.ComponentCategory
	OwnerID  *uuid.UUID
	Search   string // case-insensitive substring on name
}

func (r *ComponentRepository) Create(component *models.Component) error {
	return r.db.Create(component).Error
}

// GetByID returns the component with its owner, or nil when missing
func (r *ComponentRepository) GetByID(id uuid.UUID) (*models.Component, error) {
	var component models.Component
	err := r.db.Preload("Owner").Where("id = ?", id).First(&component).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &component, nil
}

func (r *ComponentRepository) List(filter ComponentFilter) ([]models.Component, error) {
	q := r.db.Model(&models.Component{}).Preload("Owner")
	if filter.Status != nil {
		q = q.Where("status = ?", *filter.Status)
	}
	if filter.Category != nil {
		q = q.Where("category = ?", *filter.Category)
	}
	if filter.OwnerID != nil {
		q = q.Where("owner_id = ?", *filter.OwnerID)
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		q = q.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(s)+"%")
	}

	var components []models.Component
	err := q.Order("created_at DESC").Find(&components).Error
	return components, err
}

// UpdateDraft writes the editable fields while the component is still a
// draft. Status is never touched here. It reports whether a row was updated.
func (r *ComponentRepository) UpdateDraft(component *models.Component) (bool, error) {
	res := r.db.Model(&models.Component{}).
		Where("id = ? AND status = ?", component.ID, models.StatusDraft).
		Updates(map[string]interface{}{
			"name":        component.Name,
			"description": component.Description,
			"category":    component.Category,
			"code":        component.Code,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CompareAndSetStatus moves id from one status to another only if it still
// holds the expected status. It reports whether a row was updated.
func (r *ComponentRepository) CompareAndSetStatus(id uuid.UUID, from, to models.ComponentStatus) (bool, error) {
	res := r.db.Model(&models.Component{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *ComponentRepository) CountByStatus() (map[models.ComponentStatus]int64, error) {
	var rows []struct {
		Status models.ComponentStatus
		Count  int64
	}
	err := r.db.Model(&models.Component{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[models.ComponentStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func (r *ComponentRepository) ListIDsByOwner(ownerID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.Model(&models.Component{}).Where("owner_id = ?", ownerID).Pluck("id", &ids).Error
	return ids, err
}

func (r *ComponentRepository) Delete(id uuid.UUID) error {
	return r.db.Delete(&models.Component{}, "id = ?", id).Error
}

func (r *ComponentRepository) DeleteByOwner(ownerID uuid.UUID) (int64, error) {
	res := r.db.Where("owner_id = ?", ownerID).Delete(&models.Component{})
	return res.RowsAffected, res.Error
}
