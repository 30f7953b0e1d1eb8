package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	TransactionTypePayment = "payment"
	TransactionTypePayout  = "payout"

	TransactionStatusPending   = "pending"
	TransactionStatusCompleted = "completed"
	TransactionStatusFailed    = "failed"
)

type Transaction struct {
	ID                 uuid.UUID  `gorm:"type:uuid;primary_key"`
	Type               string     `gorm:"size:20;not null;index:idx_txn_type_booking_status,priority:1"`
	BookingID          uuid.UUID  `gorm:"not null;index:idx_txn_type_booking_status,priority:2"`
	TeacherID          *uuid.UUID
	Amount             float64    `gorm:"type:numeric(10,2);not null"`
	MpesaTransactionID *string    `gorm:"size:255;unique"`
	MpesaReceiptNumber *string    `gorm:"size:255"`
	PhoneNumber        *string    `gorm:"size:20"`
	Status             string     `gorm:"size:20;not null;default:'pending';index:idx_txn_type_booking_status,priority:3"`
	ProviderResponse   *string    `gorm:"type:text"`

	Booking Booking `gorm:"foreignkey:BookingID"`

	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// IsTerminal reports whether the transaction has already been settled one
// way or the other. Terminal statuses never transition back to pending.
func (t *Transaction) IsTerminal() bool {
	return t.Status == TransactionStatusCompleted || t.Status == TransactionStatusFailed
}
