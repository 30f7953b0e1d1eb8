package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	BookingStatusPendingPayment = "pending_payment"
	BookingStatusPaid           = "paid"
	BookingStatusCompleted      = "completed"
	BookingStatusFailed         = "failed"
)

type Booking struct {
	ID            uuid.UUID `gorm:"type:uuid;primary_key"`
	ParentID      uuid.UUID `gorm:"not null"`
	TeacherID     uuid.UUID `gorm:"not null"`
	Subject       string    `gorm:"size:100"`
	TotalAmount   float64   `gorm:"type:numeric(10,2);not null"`
	TeacherPayout float64   `gorm:"type:numeric(10,2);default:0.00"`
	Status        string    `gorm:"size:20;not null;default:'pending_payment'"`
	MeetingLink   *string   `gorm:"size:255"`

	Parent  Parent  `gorm:"foreignkey:ParentID"`
	Teacher Teacher `gorm:"foreignkey:TeacherID"`

	PaidAt      *time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
