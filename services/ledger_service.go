package services

import (
	"fmt"
	"sync"
	"time"

	"github.com/anjiri1684/tutor_settlement/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LedgerService appends balance-chained entries to the platform ledger.
// Every append runs inside a database transaction that first bumps the
// ledger head row; the row lock taken by that update serializes appends
// across processes, so the chain has a genuine total order. The mutex only
// keeps appends from the same process off each other's toes.
type LedgerService struct {
	db *gorm.DB
	mu sync.Mutex
}

func NewLedgerService(db *gorm.DB) *LedgerService {
	return &LedgerService{db: db}
}

func (s *LedgerService) Append(entryType string, amount float64, transactionID uuid.UUID, description string, teacherID *uuid.UUID) (*models.LedgerEntry, error) {
	if err := validateEntry(entryType, amount); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var entry models.LedgerEntry
	err := s.db.Transaction(func(tx *gorm.DB) error {
		e, err := appendEntry(tx, entryType, amount, transactionID, description, teacherID)
		if err != nil {
			return err
		}
		entry = *e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// AppendPair records the fee credit and the payout debit of a settled
// payment inside one database transaction, so the pair can never be
// half-written. Halves that already exist for the transaction are skipped,
// which lets replays converge on exactly one pair.
func (s *LedgerService) AppendPair(fee, payout float64, transactionID uuid.UUID, feeDescription, payoutDescription string, teacherID *uuid.UUID) error {
	if err := validateEntry(models.LedgerEntryCredit, fee); err != nil {
		return err
	}
	if err := validateEntry(models.LedgerEntryDebit, payout); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	halves := []struct {
		entryType   string
		amount      float64
		description string
		teacherID   *uuid.UUID
	}{
		{models.LedgerEntryCredit, fee, feeDescription, nil},
		{models.LedgerEntryDebit, payout, payoutDescription, teacherID},
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		for _, h := range halves {
			var count int64
			err := tx.Model(&models.LedgerEntry{}).
				Where("transaction_id = ? AND type = ?", transactionID, h.entryType).
				Count(&count).Error
			if err != nil {
				return err
			}
			if count > 0 {
				continue
			}
			if _, err := appendEntry(tx, h.entryType, h.amount, transactionID, h.description, h.teacherID); err != nil {
				return err
			}
		}
		return nil
	})
}

func validateEntry(entryType string, amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: amount must be positive, got %.2f", ErrInvalidLedgerEntry, amount)
	}
	if entryType != models.LedgerEntryCredit && entryType != models.LedgerEntryDebit {
		return fmt.Errorf("%w: unknown entry type %q", ErrInvalidLedgerEntry, entryType)
	}
	return nil
}

// appendEntry does one head bump plus insert. Callers hold the service
// mutex and run inside a database transaction.
func appendEntry(tx *gorm.DB, entryType string, amount float64, transactionID uuid.UUID, description string, teacherID *uuid.UUID) (*models.LedgerEntry, error) {
	res := tx.Model(&models.LedgerHead{}).Where("id = ?", 1).Update("seq", gorm.Expr("seq + 1"))
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		if err := tx.Create(&models.LedgerHead{ID: 1, Seq: 1}).Error; err != nil {
			return nil, err
		}
	}

	var head models.LedgerHead
	if err := tx.First(&head, "id = ?", 1).Error; err != nil {
		return nil, err
	}

	balance := head.Balance
	if entryType == models.LedgerEntryCredit {
		balance += amount
	} else {
		balance -= amount
	}

	entry := models.LedgerEntry{
		ID:            fmt.Sprintf("PLG%d", time.Now().UnixNano()),
		Seq:           head.Seq,
		TransactionID: transactionID,
		Type:          entryType,
		Amount:        amount,
		Balance:       balance,
		Description:   description,
		TeacherID:     teacherID,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return nil, err
	}

	if err := tx.Model(&head).Update("balance", balance).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// HasEntriesFor reports whether the transaction already produced ledger
// entries.
func (s *LedgerService) HasEntriesFor(transactionID uuid.UUID) (bool, error) {
	var count int64
	err := s.db.Model(&models.LedgerEntry{}).Where("transaction_id = ?", transactionID).Count(&count).Error
	return count > 0, err
}

// HasEntryPairFor reports whether the transaction carries both halves of
// its settlement pair. The replay guard for crash-resumed settlements: a
// lone half means an earlier invocation died mid-settlement and the pair
// still needs completing.
func (s *LedgerService) HasEntryPairFor(transactionID uuid.UUID) (bool, error) {
	var count int64
	err := s.db.Model(&models.LedgerEntry{}).
		Where("transaction_id = ?", transactionID).
		Distinct("type").
		Count(&count).Error
	return count >= 2, err
}

func (s *LedgerService) CurrentBalance() (float64, error) {
	var head models.LedgerHead
	if err := s.db.First(&head, "id = ?", 1).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return 0, nil
		}
		return 0, err
	}
	return head.Balance, nil
}

func (s *LedgerService) Entries(limit int) ([]models.LedgerEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var entries []models.LedgerEntry
	err := s.db.Order("seq desc").Limit(limit).Find(&entries).Error
	return entries, err
}
