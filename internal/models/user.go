package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Role string

const (
	RoleDeveloper Role = "developer"
	RoleCoach     Role = "coach"
	RoleAdmin     Role = "admin" // at most one per platform
)

// Valid checks if the role is a known value
func (r Role) Valid() bool {
	return r == RoleDeveloper || r == RoleCoach || r == RoleAdmin
}

type User struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Username     string     `gorm:"type:varchar(50);uniqueIndex;not null" json:"username"`
	Email        string     `gorm:"type:varchar(100);uniqueIndex;not null" json:"email"`
	PasswordHash string     `gorm:"type:varchar(255);not null" json:"-"` // Never expose password hash in JSON
	FirstName    string     `gorm:"type:varchar(150)" json:"first_name"`
	LastName     string     `gorm:"type:varchar(150)" json:"last_name"`
	Role         Role       `gorm:"type:varchar(20);not null;default:'developer';index" json:"role"`
	IsActive     bool       `gorm:"not null;default:true" json:"is_active"`
	IsStaff      bool       `gorm:"not null;default:false" json:"-"`
	LastLogin    *time.Time `json:"last_login"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// IsAdmin is true for the admin role or an elevated staff account.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin || u.IsStaff
}

// IsCoach is true for coaches and admins.
func (u *User) IsCoach() bool {
	return u.IsAdmin() || u.Role == RoleCoach
}

// CanValidate reports whether the user may approve or reject submissions.
func (u *User) CanValidate() bool {
	return u.IsCoach()
}

func (u *User) CanManageUsers() bool {
	return u.IsAdmin()
}

func (u *User) CanCreateContent() bool {
	return u.Role.Valid()
}

// DisplayName prefers the full name and falls back to the username.
func (u *User) DisplayName() string {
	full := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if full != "" {
		return full
	}
	return u.Username
}
