package models

import (
	"time"

	"github.com/google/uuid"
)

type Parent struct {
	ID       uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	FullName string    `gorm:"size:255;not null" json:"full_name"`
	Phone    *string   `gorm:"size:20" json:"phone"`
	FcmToken *string   `gorm:"size:512" json:"-"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}
