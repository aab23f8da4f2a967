package testutil

import (
	"fmt"
	"testing"

	"github.com/Baaaki/component-review/internal/models"
	"github.com/Baaaki/component-review/internal/utils"
	"gorm.io/gorm"
)

// DefaultPassword is the plain password of every fixture user
const DefaultPassword = "Test123456"

// CreateUser persists an active user with DefaultPassword
func CreateUser(t *testing.T, db *gorm.DB, username string, role models.Role) *models.User {
	t.Helper()

	hash, err := utils.HashPassword(DefaultPassword)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}

	user := &models.User{
		Username:     username,
		Email:        fmt.Sprintf("%s@example.com", username),
		PasswordHash: hash,
		FirstName:    username,
		Role:         role,
		IsActive:     true,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create user %s: %v", username, err)
	}
	return user
}

// CreateComponent persists a component owned by owner in the given status
func CreateComponent(t *testing.T, db *gorm.DB, owner *models.User, name string, status models.ComponentStatus) *models.Component {
	t.Helper()

	component := &models.Component{
		Name:        name,
		Description: name + " description",
		Category:    models.CategoryButton,
		Code:        "<button>" + name + "</button>",
		Status:      status,
		OwnerID:     owner.ID,
	}
	if err := db.Create(component).Error; err != nil {
		t.Fatalf("Failed to create component %s: %v", name, err)
	}
	return component
}
