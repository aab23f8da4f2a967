package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AuditAction string

const (
	ActionUserLogin              AuditAction = "user_login"
	ActionUserLogout             AuditAction = "user_logout"
	ActionUserRegister           AuditAction = "user_register"
	ActionLoginFailed            AuditAction = "login_failed"
	ActionUserCreated            AuditAction = "user_created"
	ActionUserUpdated            AuditAction = "user_updated"
	ActionUserDeleted            AuditAction = "user_deleted"
	ActionRoleChanged            AuditAction = "role_changed"
	ActionUserActivated          AuditAction = "user_activated"
	ActionUserDeactivated        AuditAction = "user_deactivated"
	ActionComponentSubmitted     AuditAction = "component_submitted"
	ActionComponentApproved      AuditAction = "component_approved"
	ActionComponentRejected      AuditAction = "component_rejected"
	ActionComponentDeleted       AuditAction = "component_deleted"
	ActionPasswordResetRequested AuditAction = "password_reset_requested"
	ActionPasswordResetCompleted AuditAction = "password_reset_completed"
	ActionAuditCleanup           AuditAction = "audit_cleanup"
	ActionAdminAction            AuditAction = "admin_action"
)

var auditActionLabels = map[AuditAction]string{
	ActionUserLogin:              "User login",
	ActionUserLogout:             "User logout",
	ActionUserRegister:           "User registration",
	ActionLoginFailed:            "Failed login",
	ActionUserCreated:            "User created",
	ActionUserUpdated:            "User updated",
	ActionUserDeleted:            "User deleted",
	ActionRoleChanged:            "Role changed",
	ActionUserActivated:          "User activated",
	ActionUserDeactivated:        "User deactivated",
	ActionComponentSubmitted:     "Component submitted",
	ActionComponentApproved:      "Component approved",
	ActionComponentRejected:      "Component rejected",
	ActionComponentDeleted:       "Component deleted",
	ActionPasswordResetRequested: "Password reset requested",
	ActionPasswordResetCompleted: "Password reset completed",
	ActionAuditCleanup:           "Audit log cleanup",
	ActionAdminAction:            "Admin action",
}

// Label returns the human-readable name, or the raw value for unknown actions.
func (a AuditAction) Label() string {
	if l, ok := auditActionLabels[a]; ok {
		return l
	}
	return string(a)
}

func (a AuditAction) Valid() bool {
	_, ok := auditActionLabels[a]
	return ok
}

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

func (s Severity) Valid() bool {
	return s == SeverityInfo || s == SeverityWarning || s == SeverityCritical
}

// AuditLog is append-only. Only retention cleanup deletes rows, and user
// deletion only detaches the actor/target references.
type AuditLog struct {
	ID           uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	ActorID      *uuid.UUID        `gorm:"type:uuid;index" json:"actor_id"`
	Action       AuditAction       `gorm:"type:varchar(50);not null;index" json:"action"`
	TargetUserID *uuid.UUID        `gorm:"type:uuid;index" json:"target_user_id"`
	TargetModel  *string           `gorm:"type:varchar(100)" json:"target_model"`
	TargetID     *string           `gorm:"type:varchar(100)" json:"target_id"`
	Description  string            `gorm:"type:text" json:"description"`
	Changes      datatypes.JSONMap `json:"changes"`
	IPAddress    *string           `gorm:"type:varchar(45)" json:"ip_address"`
	UserAgent    string            `gorm:"type:text" json:"user_agent"`
	Severity     Severity          `gorm:"type:varchar(20);not null;default:'info';index" json:"severity"`
	Timestamp    time.Time         `gorm:"not null;index" json:"timestamp"`

	Actor      *User `gorm:"foreignKey:ActorID;constraint:OnDelete:SET NULL" json:"-"`
	TargetUser *User `gorm:"foreignKey:TargetUserID;constraint:OnDelete:SET NULL" json:"-"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}
	if a.Severity == "" {
		a.Severity = SeverityInfo
	}
	return nil
}
