package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	LedgerEntryCredit = "credit"
	LedgerEntryDebit  = "debit"
)

// LedgerEntry is an immutable row in the platform ledger. Entries are only
// ever inserted; Balance carries the running total after this entry was
// applied, so the full chain can be audited without recomputation.
type LedgerEntry struct {
	ID            string    `gorm:"size:40;primary_key"`
	Seq           uint64    `gorm:"not null;uniqueIndex"`
	TransactionID uuid.UUID `gorm:"not null;index"`
	Type          string    `gorm:"size:10;not null"`
	Amount        float64   `gorm:"type:numeric(10,2);not null"`
	Balance       float64   `gorm:"type:numeric(12,2);not null"`
	Description   string    `gorm:"size:255"`
	TeacherID     *uuid.UUID
	CreatedAt     time.Time
}

// LedgerHead is the single bookkeeping row (id = 1) behind the ledger
// chain. Appends increment Seq inside the same database transaction that
// inserts the entry; the row lock taken by that update gives appends a
// total order across processes.
type LedgerHead struct {
	ID        uint    `gorm:"primary_key"`
	Seq       uint64  `gorm:"not null;default:0"`
	Balance   float64 `gorm:"type:numeric(12,2);not null;default:0.00"`
	UpdatedAt time.Time
}
