package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/anjiri1684/tutor_settlement/models"
	"github.com/anjiri1684/tutor_settlement/notifications"
	"gorm.io/gorm"
)

// PaymentResultEvent is the validated shape of an inbound M-Pesa payment
// result callback. TransactionID is the gateway's reference for the
// payment transaction we created when the STK push was initiated.
type PaymentResultEvent struct {
	TransactionID      string `json:"TransactionID" validate:"required"`
	ResultCode         int    `json:"ResultCode"`
	ResultDesc         string `json:"ResultDesc"`
	CheckoutRequestID  string `json:"CheckoutRequestID"`
	MpesaReceiptNumber string `json:"MpesaReceiptNumber"`
	PhoneNumber        string `json:"MSISDN"`
}

type ReconcileOutcome struct {
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
	Replayed      bool   `json:"replayed"`
}

// SettlementService reconciles payment-result events against pending
// payment transactions. Reconcile tolerates at-least-once delivery: the
// status transition is a compare-and-swap keyed on the pending status, and
// every downstream side effect is either idempotent or guarded by an
// existence check, so replays and crash-resumed invocations converge.
type SettlementService struct {
	db             *gorm.DB
	ledger         *LedgerService
	activation     *ActivationService
	notifier       notifications.Notifier
	commissionRate float64
}

func NewSettlementService(db *gorm.DB, ledger *LedgerService, activation *ActivationService, notifier notifications.Notifier, commissionRate float64) *SettlementService {
	return &SettlementService{
		db:             db,
		ledger:         ledger,
		activation:     activation,
		notifier:       notifier,
		commissionRate: commissionRate,
	}
}

func (s *SettlementService) Reconcile(event PaymentResultEvent) (*ReconcileOutcome, error) {
	var txn models.Transaction
	err := s.db.Where("mpesa_transaction_id = ?", event.TransactionID).First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}

	if txn.IsTerminal() {
		log.Printf("Reconcile: transaction %s already %s, replaying recorded outcome", txn.ID, txn.Status)
		if txn.Status == models.TransactionStatusCompleted {
			// Resume downstream work in case an earlier invocation died
			// between the status update and the side effects.
			if err := s.finalizeSuccess(&txn); err != nil {
				return nil, err
			}
		}
		return &ReconcileOutcome{TransactionID: txn.ID.String(), Status: txn.Status, Replayed: true}, nil
	}

	status := models.TransactionStatusFailed
	if event.ResultCode == 0 {
		status = models.TransactionStatusCompleted
	}

	providerResponse, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	response := string(providerResponse)
	now := time.Now()

	updates := map[string]interface{}{
		"status":            status,
		"provider_response": &response,
		"processed_at":      &now,
	}
	if event.MpesaReceiptNumber != "" {
		updates["mpesa_receipt_number"] = &event.MpesaReceiptNumber
	}
	if event.PhoneNumber != "" {
		updates["phone_number"] = &event.PhoneNumber
	}

	res := s.db.Model(&models.Transaction{}).
		Where("id = ? AND status = ?", txn.ID, models.TransactionStatusPending).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		// A concurrent reconciliation won the compare-and-swap; report
		// whatever it recorded.
		if err := s.db.First(&txn, "id = ?", txn.ID).Error; err != nil {
			return nil, err
		}
		return &ReconcileOutcome{TransactionID: txn.ID.String(), Status: txn.Status, Replayed: true}, nil
	}

	txn.Status = status
	txn.ProcessedAt = &now

	if status == models.TransactionStatusCompleted {
		if err := s.finalizeSuccess(&txn); err != nil {
			return nil, err
		}
	} else {
		log.Printf("Reconcile: payment %s failed: %s", txn.ID, event.ResultDesc)
		s.notifyPaymentFailed(&txn, event.ResultDesc)
	}

	return &ReconcileOutcome{TransactionID: txn.ID.String(), Status: status}, nil
}

// finalizeSuccess runs the downstream side effects of a settled payment:
// booking activation, the fee/payout ledger pair and the success
// notifications. Safe to re-run; a complete ledger pair is the marker for
// "side effects already applied", and a lone half left by a crash is
// completed on the next replay.
func (s *SettlementService) finalizeSuccess(txn *models.Transaction) error {
	var booking models.Booking
	if err := s.db.First(&booking, "id = ?", txn.BookingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrBookingNotFound
		}
		return err
	}

	if err := s.activation.Activate(txn.BookingID); err != nil {
		return err
	}

	done, err := s.ledger.HasEntryPairFor(txn.ID)
	if err != nil {
		return err
	}
	if done {
		return nil
	}

	fee := txn.Amount * s.commissionRate
	payout := txn.Amount - fee

	// Written together with the ledger pair and never after it is complete;
	// a settled booking keeps the split it was settled with.
	err = s.db.Model(&models.Booking{}).
		Where("id = ?", txn.BookingID).
		Update("teacher_payout", payout).Error
	if err != nil {
		return err
	}

	err = s.ledger.AppendPair(fee, payout, txn.ID,
		fmt.Sprintf("Platform fee for booking %s", txn.BookingID),
		fmt.Sprintf("Teacher payout for booking %s", txn.BookingID),
		&booking.TeacherID)
	if err != nil {
		return err
	}

	s.notifyPaymentSucceeded(txn)
	return nil
}

func (s *SettlementService) notifyPaymentSucceeded(txn *models.Transaction) {
	var booking models.Booking
	if err := s.db.Preload("Parent").Preload("Teacher").First(&booking, "id = ?", txn.BookingID).Error; err != nil {
		log.Printf("notifyPaymentSucceeded: failed to load booking %s: %v", txn.BookingID, err)
		return
	}

	if booking.Teacher.FcmToken != nil {
		s.notifier.Notify(*booking.Teacher.FcmToken,
			"New Booking Confirmed!",
			fmt.Sprintf("You have a new booking with %s for %s. Check your dashboard for details.", booking.Parent.FullName, booking.Subject),
			map[string]string{"type": "booking", "bookingId": booking.ID.String()})
	}
	if booking.Parent.FcmToken != nil {
		s.notifier.Notify(*booking.Parent.FcmToken,
			"Booking Confirmed!",
			fmt.Sprintf("Your booking with %s for %s has been confirmed. Check your email for the meeting link.", booking.Teacher.FullName, booking.Subject),
			map[string]string{"type": "booking", "bookingId": booking.ID.String()})
	}
}

func (s *SettlementService) notifyPaymentFailed(txn *models.Transaction, reason string) {
	var booking models.Booking
	if err := s.db.Preload("Parent").First(&booking, "id = ?", txn.BookingID).Error; err != nil {
		log.Printf("notifyPaymentFailed: failed to load booking %s: %v", txn.BookingID, err)
		return
	}

	if booking.Parent.FcmToken != nil {
		s.notifier.Notify(*booking.Parent.FcmToken,
			"Payment Failed",
			fmt.Sprintf("Your payment for the %s booking failed. Reason: %s. Please try again.", booking.Subject, reason),
			map[string]string{"type": "payment_failed", "bookingId": booking.ID.String()})
	}
}
