package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	LessonStatusScheduled = "scheduled"
	LessonStatusActive    = "active"
	LessonStatusCompleted = "completed"
)

type Lesson struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key"`
	BookingID   uuid.UUID `gorm:"not null;index"`
	TeacherID   uuid.UUID `gorm:"not null"`
	Status      string    `gorm:"size:20;not null;default:'scheduled'"`
	MeetingLink *string   `gorm:"size:255"`

	Booking Booking `gorm:"foreignkey:BookingID"`

	CreatedAt time.Time
	UpdatedAt time.Time
}
