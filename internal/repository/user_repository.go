package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/Baaaki/component-review/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *UserRepository) WithTx(tx *gorm.DB) *UserRepository {
	return &UserRepository{db: tx}
}

type UserFilter struct {
	Role     *models.Role
	IsActive *bool
	Search   string
}

func (r *UserRepository) CreateUser(user *models.User) error {
	return r.db.Create(user).Error
}

func (r *UserRepository) GetUserByEmail(email string) (*models.User, error) {
	return r.first("LOWER(email) = ?", strings.ToLower(email))
}

func (r *UserRepository) GetUserByUsername(username string) (*models.User, error) {
	return r.first("username = ?", username)
}

func (r *UserRepository) GetUserByID(id uuid.UUID) (*models.User, error) {
	return r.first("id = ?", id)
}

// first returns nil, nil when no row matches
func (r *UserRepository) first(query string, args ...interface{}) (*models.User, error) {
	var user models.User
	err := r.db.Where(query, args...).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) ListUsers(filter UserFilter) ([]models.User, error) {
	q := r.db.Model(&models.User{})
	if filter.Role != nil {
		q = q.Where("role = ?", *filter.Role)
	}
	if filter.IsActive != nil {
		q = q.Where("is_active = ?", *filter.IsActive)
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		q = q.Where("LOWER(username) LIKE ? OR LOWER(email) LIKE ? OR LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ?",
			like, like, like, like)
	}

	var users []models.User
	err := q.Order("created_at DESC").Find(&users).Error
	return users, err
}

// ListCoachesAndAdmins returns every user allowed to validate submissions,
// deactivated accounts included
func (r *UserRepository) ListCoachesAndAdmins() ([]models.User, error) {
	var users []models.User
	err := r.db.
		Where("role IN ? OR is_staff = ?", []models.Role{models.RoleCoach, models.RoleAdmin}, true).
		Order("created_at ASC").
		Find(&users).Error
	return users, err
}

func (r *UserRepository) ListAdmins() ([]models.User, error) {
	var users []models.User
	err := r.db.
		Where("role = ? OR is_staff = ?", models.RoleAdmin, true).
		Order("created_at ASC").
		Find(&users).Error
	return users, err
}

func (r *UserRepository) CountAdmins() (int64, error) {
	var count int64
	err := r.db.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&count).Error
	return count, err
}

func (r *UserRepository) UpdateRole(id uuid.UUID, role models.Role) error {
	return r.db.Model(&models.User{}).Where("id = ?", id).Update("role", role).Error
}

func (r *UserRepository) UpdateActive(id uuid.UUID, active bool) error {
	return r.db.Model(&models.User{}).Where("id = ?", id).Update("is_active", active).Error
}

func (r *UserRepository) UpdatePasswordHash(id uuid.UUID, hash string) error {
	return r.db.Model(&models.User{}).Where("id = ?", id).Update("password_hash", hash).Error
}

func (r *UserRepository) UpdateLastLogin(id uuid.UUID, at time.Time) error {
	return r.db.Model(&models.User{}).Where("id = ?", id).Update("last_login", at).Error
}

// DeleteUser removes the row permanently
func (r *UserRepository) DeleteUser(id uuid.UUID) error {
	return r.db.Delete(&models.User{}, "id = ?", id).Error
}
