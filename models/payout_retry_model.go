package models

import (
	"time"

	"github.com/google/uuid"
)

type PayoutRetry struct {
	ID                  uuid.UUID `gorm:"type:uuid;primary_key"`
	PayoutTransactionID uuid.UUID `gorm:"not null;index"`
	BookingID           uuid.UUID `gorm:"not null"`
	TeacherID           uuid.UUID `gorm:"not null"`
	Attempts            int       `gorm:"not null;default:1"`
	MaxAttempts         int       `gorm:"not null;default:3"`
	Exhausted           bool      `gorm:"not null;default:false"`
	ScheduledAt         time.Time `gorm:"not null"`
	NextRetryAt         time.Time `gorm:"not null;index"`
	UpdatedAt           time.Time
}
