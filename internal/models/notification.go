package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type NotificationVerb string

const (
	VerbComponentSubmitted NotificationVerb = "component_submitted"
	VerbComponentReviewed  NotificationVerb = "component_reviewed"
	VerbReviewCreated      NotificationVerb = "review_created"
	VerbReviewUpdated      NotificationVerb = "review_updated"
)

type Notification struct {
	ID          uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	RecipientID uuid.UUID        `gorm:"type:uuid;not null;index:idx_notifications_recipient_read" json:"recipient_id"`
	ActorID     *uuid.UUID       `gorm:"type:uuid;index" json:"actor_id"` // null once the actor account is deleted
	Verb        NotificationVerb `gorm:"type:varchar(50);not null" json:"verb"`
	TargetID    *uuid.UUID       `gorm:"type:uuid;index" json:"target_id,omitempty"`
	ReviewID    *uuid.UUID       `gorm:"type:uuid;index" json:"review_id,omitempty"`
	Message     string           `gorm:"type:varchar(255);not null" json:"message"`
	IsRead      bool             `gorm:"not null;default:false;index:idx_notifications_recipient_read" json:"is_read"`
	CreatedAt   time.Time        `gorm:"index" json:"created_at"`

	Recipient *User      `gorm:"foreignKey:RecipientID;constraint:OnDelete:CASCADE" json:"-"`
	Actor     *User      `gorm:"foreignKey:ActorID;constraint:OnDelete:SET NULL" json:"-"`
	Target    *Component `gorm:"foreignKey:TargetID;constraint:OnDelete:CASCADE" json:"-"`
	Review    *Review    `gorm:"foreignKey:ReviewID;constraint:OnDelete:CASCADE" json:"-"`
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}
