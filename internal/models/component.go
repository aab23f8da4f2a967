package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ComponentStatus string

const (
	StatusDraft    ComponentStatus = "draft"
	StatusPending  ComponentStatus = "pending"
	StatusApproved ComponentStatus = "approved"
	StatusRejected ComponentStatus = "rejected"
)

type ComponentCategory string

const (
	CategoryButton ComponentCategory = "BUTTON"
	CategoryCard   ComponentCategory = "CARD"
	CategoryInput  ComponentCategory = "INPUT"
	CategoryModal  ComponentCategory = "MODAL"
)

type CategoryOption struct {
	Value ComponentCategory `json:"value"`
	Label string            `json:"label"`
}

// Categories lists the catalog categories in display order.
func Categories() []CategoryOption {
	return []CategoryOption{
		{Value: CategoryButton, Label: "Button"},
		{Value: CategoryCard, Label: "Card"},
		{Value: CategoryInput, Label: "Input"},
		{Value: CategoryModal, Label: "Modal"},
	}
}

func (c ComponentCategory) Valid() bool {
	switch c {
	case CategoryButton, CategoryCard, CategoryInput, CategoryModal:
		return true
	}
	return false
}

// ComponentEvent is an actor-initiated lifecycle event.
type ComponentEvent string

const (
	EventSubmit  ComponentEvent = "submit"
	EventApprove ComponentEvent = "approve"
	EventReject  ComponentEvent = "reject"
)

type Transition struct {
	From ComponentStatus
	To   ComponentStatus
}

// componentTransitions is the whole lifecycle: draft -> pending -> approved | rejected.
var componentTransitions = map[ComponentEvent]Transition{
	EventSubmit:  {From: StatusDraft, To: StatusPending},
	EventApprove: {From: StatusPending, To: StatusApproved},
	EventReject:  {From: StatusPending, To: StatusRejected},
}

// TransitionFor returns the legal transition for an event.
func TransitionFor(event ComponentEvent) (Transition, bool) {
	t, ok := componentTransitions[event]
	return t, ok
}

// IsTerminal reports whether no workflow event leaves this status.
func (s ComponentStatus) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

type Component struct {
	ID          uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string            `gorm:"type:varchar(100);not null;index" json:"name"`
	Description string            `gorm:"type:text" json:"description"`
	Category    ComponentCategory `gorm:"type:varchar(50);not null;index" json:"category"`
	Code        string            `gorm:"type:text;not null" json:"code"`
	Status      ComponentStatus   `gorm:"type:varchar(20);not null;default:'draft';index" json:"status"`
	OwnerID     uuid.UUID         `gorm:"type:uuid;not null;index" json:"owner_id"`
	CreatedAt   time.Time         `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`

	Owner *User `gorm:"foreignKey:OwnerID;constraint:OnDelete:CASCADE" json:"-"`
}

func (c *Component) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
