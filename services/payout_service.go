package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/anjiri1684/tutor_settlement/models"
	"github.com/anjiri1684/tutor_settlement/notifications"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LessonStatusEvent is the validated shape of a delivery-unit status
// change, whether it arrives over HTTP or off the message queue.
type LessonStatusEvent struct {
	LessonID       string `json:"lesson_id" validate:"required,uuid"`
	BookingID      string `json:"booking_id" validate:"required,uuid"`
	TeacherID      string `json:"teacher_id" validate:"required,uuid"`
	PreviousStatus string `json:"previous_status" validate:"required"`
	NewStatus      string `json:"new_status" validate:"required"`
}

// TransferResult is the outcome of a funds-transfer attempt. A declined or
// limit-exceeded transfer is a normal failed result, not an error; errors
// are reserved for transport-level problems and are treated as failures by
// the caller anyway.
type TransferResult struct {
	Success       bool
	TransactionID string
	ReceiptNumber string
	ErrorCode     string
	ErrorMessage  string
}

// Transferer moves money to a payout destination. correlationID is our
// payout transaction id, passed through for reconciliation on the
// provider's side.
type Transferer interface {
	Transfer(phoneNumber string, amount float64, correlationID uuid.UUID) (*TransferResult, error)
}

// SanitizePhone normalizes a payout destination before it is handed to the
// transfer provider. Injected so tests can reject or accept destinations
// deterministically; production wires payments.SanitizeMpesaNumber.
type SanitizePhone func(string) (string, error)

// RetryPolicy drives rescheduling of failed payouts. Backoff receives the
// number of attempts made so far.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff:     func(int) time.Duration { return time.Hour },
	}
}

// PayoutService drives the payout state machine for a booking: once every
// lesson is delivered it creates the payout transaction, invokes the
// transfer collaborator and settles the booking, with bounded retries on
// failure. The entry points fail open; a payout problem must never break
// the lesson update that triggered it.
type PayoutService struct {
	db       *gorm.DB
	transfer Transferer
	notifier notifications.Notifier
	sanitize SanitizePhone
	policy   RetryPolicy
}

func NewPayoutService(db *gorm.DB, transfer Transferer, notifier notifications.Notifier, sanitize SanitizePhone, policy RetryPolicy) *PayoutService {
	if policy.MaxAttempts < 1 {
		policy = DefaultRetryPolicy()
	}
	return &PayoutService{db: db, transfer: transfer, notifier: notifier, sanitize: sanitize, policy: policy}
}

// HandleLessonCompleted processes one delivery-unit status change. Safe
// under at-least-once delivery: replays and concurrent triggers for the
// same booking settle exactly one payout.
func (s *PayoutService) HandleLessonCompleted(event LessonStatusEvent) {
	if event.PreviousStatus == models.LessonStatusCompleted || event.NewStatus != models.LessonStatusCompleted {
		return
	}

	bookingID, err := uuid.Parse(event.BookingID)
	if err != nil {
		log.Printf("HandleLessonCompleted: invalid booking id %q: %v", event.BookingID, err)
		return
	}

	done, err := s.allLessonsCompleted(bookingID)
	if err != nil {
		log.Printf("🔥 HandleLessonCompleted: completion check failed for booking %s: %v", bookingID, err)
		return
	}
	if !done {
		return
	}

	if err := s.attemptPayout(bookingID, nil); err != nil {
		log.Printf("🔥 HandleLessonCompleted: payout attempt failed for booking %s: %v", bookingID, err)
	}
}

// allLessonsCompleted is the completion detector: true iff the booking has
// at least one lesson and every one of them is completed. A single query
// keeps the snapshot consistent against lessons transitioning mid-check.
func (s *PayoutService) allLessonsCompleted(bookingID uuid.UUID) (bool, error) {
	var counts struct {
		Total     int64
		Completed int64
	}
	err := s.db.Model(&models.Lesson{}).
		Select("COUNT(*) AS total, SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS completed", models.LessonStatusCompleted).
		Where("booking_id = ?", bookingID).
		Scan(&counts).Error
	if err != nil {
		return false, err
	}
	return counts.Total > 0 && counts.Total == counts.Completed, nil
}

// attemptPayout runs one full payout attempt for the booking. retry is nil
// on the first attempt and carries the scheduling record on re-attempts.
func (s *PayoutService) attemptPayout(bookingID uuid.UUID, retry *models.PayoutRetry) error {
	var booking models.Booking
	if err := s.db.First(&booking, "id = ?", bookingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrBookingNotFound
		}
		return err
	}

	// Idempotency guard: a completed payout for this booking means a
	// duplicate trigger or an already-consumed retry.
	var existing int64
	err := s.db.Model(&models.Transaction{}).
		Where("type = ? AND booking_id = ? AND status = ?",
			models.TransactionTypePayout, bookingID, models.TransactionStatusCompleted).
		Count(&existing).Error
	if err != nil {
		return err
	}
	if existing > 0 {
		log.Printf("attemptPayout: payout already processed for booking %s", bookingID)
		s.consumeRetry(retry)
		return nil
	}

	txn := models.Transaction{
		ID:        uuid.New(),
		Type:      models.TransactionTypePayout,
		BookingID: booking.ID,
		TeacherID: &booking.TeacherID,
		Amount:    booking.TeacherPayout,
		Status:    models.TransactionStatusPending,
	}
	if err := s.db.Create(&txn).Error; err != nil {
		return err
	}

	phone, err := s.resolveDestination(booking.TeacherID)
	if err != nil {
		s.markTransferFailed(&txn, "DESTINATION_UNRESOLVED", err.Error())
		s.scheduleRetry(&txn, &booking, retry)
		return nil
	}

	result, err := s.transfer.Transfer(phone, txn.Amount, txn.ID)
	if err != nil {
		// Timeouts and transport errors follow the failure path; a payout
		// is never left silently pending.
		s.markTransferFailed(&txn, "TRANSFER_ERROR", err.Error())
		s.scheduleRetry(&txn, &booking, retry)
		return nil
	}

	if !result.Success {
		s.markTransferFailed(&txn, result.ErrorCode, result.ErrorMessage)
		s.scheduleRetry(&txn, &booking, retry)
		return nil
	}

	return s.settlePayout(&txn, &booking, result, retry)
}

func (s *PayoutService) resolveDestination(teacherID uuid.UUID) (string, error) {
	var teacher models.Teacher
	if err := s.db.First(&teacher, "id = ?", teacherID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("%w: teacher %s not found", ErrDestinationUnresolved, teacherID)
		}
		return "", err
	}
	if teacher.Phone == nil || *teacher.Phone == "" {
		return "", fmt.Errorf("%w: no phone number for teacher %s", ErrDestinationUnresolved, teacherID)
	}
	phone, err := s.sanitize(*teacher.Phone)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDestinationUnresolved, err)
	}
	return phone, nil
}

// settlePayout records a successful transfer. The compare-and-swap plus
// the partial unique index on (booking_id) for completed payouts close the
// race between two concurrent "last lesson completed" triggers.
func (s *PayoutService) settlePayout(txn *models.Transaction, booking *models.Booking, result *TransferResult, retry *models.PayoutRetry) error {
	now := time.Now()
	res := s.db.Model(&models.Transaction{}).
		Where("id = ? AND status = ?", txn.ID, models.TransactionStatusPending).
		Updates(map[string]interface{}{
			"status":               models.TransactionStatusCompleted,
			"mpesa_transaction_id": &result.TransactionID,
			"mpesa_receipt_number": &result.ReceiptNumber,
			"processed_at":         &now,
		})
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			// Lost the uniqueness race: another trigger settled first.
			log.Printf("settlePayout: concurrent payout already completed for booking %s", booking.ID)
			s.markTransferFailed(txn, "DUPLICATE_PAYOUT", "payout settled by a concurrent trigger")
			s.consumeRetry(retry)
			return nil
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return nil
	}

	err := s.db.Model(&models.Booking{}).
		Where("id = ? AND status <> ?", booking.ID, models.BookingStatusCompleted).
		Updates(map[string]interface{}{
			"status":       models.BookingStatusCompleted,
			"completed_at": &now,
		}).Error
	if err != nil {
		return err
	}

	s.consumeRetry(retry)
	s.notifyPayoutProcessed(booking, txn)
	log.Printf("✅ Payout %s completed for booking %s (Ksh %.2f)", txn.ID, booking.ID, txn.Amount)
	return nil
}

func (s *PayoutService) markTransferFailed(txn *models.Transaction, code, message string) {
	response, _ := json.Marshal(map[string]string{"error": message, "errorCode": code})
	body := string(response)
	now := time.Now()
	err := s.db.Model(&models.Transaction{}).
		Where("id = ? AND status = ?", txn.ID, models.TransactionStatusPending).
		Updates(map[string]interface{}{
			"status":            models.TransactionStatusFailed,
			"provider_response": &body,
			"processed_at":      &now,
		}).Error
	if err != nil {
		log.Printf("🔥 markTransferFailed: failed to update transaction %s: %v", txn.ID, err)
	}
	log.Printf("Payout %s failed: %s (%s)", txn.ID, message, code)
}

// scheduleRetry creates the scheduling record on a first failure, or
// advances the existing record on a failed re-attempt. Once attempts
// reaches the policy's maximum the record is marked exhausted and left for
// manual handling.
func (s *PayoutService) scheduleRetry(txn *models.Transaction, booking *models.Booking, retry *models.PayoutRetry) {
	if retry == nil {
		record := models.PayoutRetry{
			ID:                  uuid.New(),
			PayoutTransactionID: txn.ID,
			BookingID:           booking.ID,
			TeacherID:           booking.TeacherID,
			Attempts:            1,
			MaxAttempts:         s.policy.MaxAttempts,
			ScheduledAt:         time.Now(),
			NextRetryAt:         time.Now().Add(s.policy.Backoff(1)),
		}
		if record.Attempts >= record.MaxAttempts {
			record.Exhausted = true
		}
		if err := s.db.Create(&record).Error; err != nil {
			log.Printf("🔥 scheduleRetry: failed to create retry record for payout %s: %v", txn.ID, err)
			return
		}
		log.Printf("Payout retry scheduled for booking %s (attempt 1/%d, next at %s)",
			booking.ID, record.MaxAttempts, record.NextRetryAt.Format(time.RFC3339))
		return
	}

	retry.Attempts++
	retry.PayoutTransactionID = txn.ID
	if retry.Attempts >= retry.MaxAttempts {
		retry.Exhausted = true
		log.Printf("🔥 Payout retries exhausted for booking %s after %d attempts, manual handling required",
			booking.ID, retry.Attempts)
	} else {
		retry.NextRetryAt = time.Now().Add(s.policy.Backoff(retry.Attempts))
		log.Printf("Payout retry rescheduled for booking %s (attempt %d/%d, next at %s)",
			booking.ID, retry.Attempts, retry.MaxAttempts, retry.NextRetryAt.Format(time.RFC3339))
	}
	if err := s.db.Save(retry).Error; err != nil {
		log.Printf("🔥 scheduleRetry: failed to update retry record %s: %v", retry.ID, err)
	}
}

// consumeRetry removes a scheduling record whose payout no longer needs
// retrying. Exhausted records are kept instead, surfaced for manual
// handling.
func (s *PayoutService) consumeRetry(retry *models.PayoutRetry) {
	if retry == nil {
		return
	}
	if err := s.db.Delete(retry).Error; err != nil {
		log.Printf("🔥 consumeRetry: failed to retire retry record %s: %v", retry.ID, err)
	}
}

// DueRetries returns active retry records whose window has elapsed.
func (s *PayoutService) DueRetries(now time.Time) ([]models.PayoutRetry, error) {
	var due []models.PayoutRetry
	err := s.db.Where("exhausted = ? AND next_retry_at <= ?", false, now).
		Order("next_retry_at asc").
		Find(&due).Error
	return due, err
}

// RunRetry re-attempts the payout behind a scheduling record.
func (s *PayoutService) RunRetry(retry *models.PayoutRetry) error {
	return s.attemptPayout(retry.BookingID, retry)
}

func (s *PayoutService) notifyPayoutProcessed(booking *models.Booking, txn *models.Transaction) {
	var teacher models.Teacher
	if err := s.db.First(&teacher, "id = ?", booking.TeacherID).Error; err != nil {
		log.Printf("notifyPayoutProcessed: failed to load teacher %s: %v", booking.TeacherID, err)
		return
	}
	if teacher.FcmToken == nil {
		return
	}
	s.notifier.Notify(*teacher.FcmToken,
		"Payout Processed Successfully!",
		fmt.Sprintf("Your payout of Ksh %.2f for %s has been processed to your M-Pesa account. Transaction ID: %s",
			txn.Amount, booking.Subject, txn.ID),
		map[string]string{"type": "payout", "payoutTransactionId": txn.ID.String()})
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
