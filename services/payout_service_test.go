package services

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/anjiri1684/tutor_settlement/models"
	"gorm.io/gorm"
)

func newPayouts(db *gorm.DB, transfer Transferer, notifier *stubNotifier) *PayoutService {
	return NewPayoutService(db, transfer, notifier, okPhone, RetryPolicy{
		MaxAttempts: 3,
		Backoff:     func(int) time.Duration { return time.Hour },
	})
}

// paidFixture seeds a booking that has already settled its payment, so the
// payout workflow sees a paid booking with a stored teacher payout.
func paidFixture(t *testing.T, db *gorm.DB, lessons int, amount float64, ref string) *fixture {
	t.Helper()
	f := seedBooking(t, db, lessons, amount, ref)
	settlements := newSettlement(db, &stubNotifier{})
	if _, err := settlements.Reconcile(PaymentResultEvent{TransactionID: ref, ResultCode: 0}); err != nil {
		t.Fatalf("settle payment: %v", err)
	}
	return f
}

func payoutTransactions(t *testing.T, db *gorm.DB, f *fixture, status string) []models.Transaction {
	t.Helper()
	var txns []models.Transaction
	err := db.Where("type = ? AND booking_id = ? AND status = ?",
		models.TransactionTypePayout, f.booking.ID, status).Find(&txns).Error
	if err != nil {
		t.Fatalf("load payout transactions: %v", err)
	}
	return txns
}

func TestPayoutWaitsForFullDelivery(t *testing.T) {
	db := newTestDB(t)
	transfer := &stubTransferer{}
	payouts := newPayouts(db, transfer, &stubNotifier{})
	f := paidFixture(t, db, 3, 1000, "TX-P1")

	event := completeLessons(t, db, f, 2)
	payouts.HandleLessonCompleted(event)

	if transfer.callCount() != 0 {
		t.Fatalf("transfer called with %d of 3 lessons completed", transfer.callCount())
	}
	var count int64
	db.Model(&models.Transaction{}).Where("type = ?", models.TransactionTypePayout).Count(&count)
	if count != 0 {
		t.Fatalf("payout transactions created early: %d", count)
	}

	event = completeLessons(t, db, f, 3)
	payouts.HandleLessonCompleted(event)

	if transfer.callCount() != 1 {
		t.Fatalf("transfer calls = %d, want 1", transfer.callCount())
	}
	completed := payoutTransactions(t, db, f, models.TransactionStatusCompleted)
	if len(completed) != 1 {
		t.Fatalf("completed payouts = %d, want 1", len(completed))
	}
	if math.Abs(completed[0].Amount-800) > 1e-9 {
		t.Fatalf("payout amount = %.2f, want teacherPayout 800", completed[0].Amount)
	}

	var booking models.Booking
	db.First(&booking, "id = ?", f.booking.ID)
	if booking.Status != models.BookingStatusCompleted {
		t.Fatalf("booking status = %q, want completed", booking.Status)
	}
	if booking.CompletedAt == nil {
		t.Fatal("booking CompletedAt not set")
	}
}

func TestPayoutReplayGuard(t *testing.T) {
	db := newTestDB(t)
	transfer := &stubTransferer{}
	payouts := newPayouts(db, transfer, &stubNotifier{})
	f := paidFixture(t, db, 1, 1000, "TX-P2")

	event := completeLessons(t, db, f, 1)
	payouts.HandleLessonCompleted(event)

	// Redelivery of the same trigger: previous status already completed.
	replay := event
	replay.PreviousStatus = models.LessonStatusCompleted
	payouts.HandleLessonCompleted(replay)

	if transfer.callCount() != 1 {
		t.Fatalf("transfer calls = %d, want 1", transfer.callCount())
	}
}

func TestPayoutIdempotencyGuardOnDuplicateTrigger(t *testing.T) {
	db := newTestDB(t)
	transfer := &stubTransferer{}
	notifier := &stubNotifier{}
	payouts := newPayouts(db, transfer, notifier)
	f := paidFixture(t, db, 1, 1000, "TX-P3")

	event := completeLessons(t, db, f, 1)
	payouts.HandleLessonCompleted(event)
	// Same event again with the stale previous status, as an at-least-once
	// delivery would replay it.
	payouts.HandleLessonCompleted(event)

	if transfer.callCount() != 1 {
		t.Fatalf("transfer calls = %d, want 1", transfer.callCount())
	}
	completed := payoutTransactions(t, db, f, models.TransactionStatusCompleted)
	if len(completed) != 1 {
		t.Fatalf("completed payouts = %d, want exactly 1", len(completed))
	}
}

func TestPayoutConcurrentTriggersSettleOnce(t *testing.T) {
	db := newTestDB(t)
	transfer := &stubTransferer{}
	payouts := newPayouts(db, transfer, &stubNotifier{})
	f := paidFixture(t, db, 1, 1000, "TX-P4")

	event := completeLessons(t, db, f, 1)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			payouts.HandleLessonCompleted(event)
		}()
	}
	wg.Wait()

	completed := payoutTransactions(t, db, f, models.TransactionStatusCompleted)
	if len(completed) != 1 {
		t.Fatalf("completed payouts = %d, want exactly 1", len(completed))
	}
}

func TestPayoutTransferFailureSchedulesRetry(t *testing.T) {
	db := newTestDB(t)
	transfer := &stubTransferer{results: []*TransferResult{
		{Success: false, ErrorCode: "AMOUNT_EXCEEDS_LIMIT", ErrorMessage: "Amount exceeds limit"},
	}}
	payouts := newPayouts(db, transfer, &stubNotifier{})
	f := paidFixture(t, db, 1, 75000, "TX-P5")

	start := time.Now()
	event := completeLessons(t, db, f, 1)
	payouts.HandleLessonCompleted(event)

	failed := payoutTransactions(t, db, f, models.TransactionStatusFailed)
	if len(failed) != 1 {
		t.Fatalf("failed payouts = %d, want 1", len(failed))
	}
	if failed[0].ProviderResponse == nil {
		t.Fatal("failed payout missing provider response")
	}

	var retries []models.PayoutRetry
	if err := db.Find(&retries).Error; err != nil {
		t.Fatalf("load retries: %v", err)
	}
	if len(retries) != 1 {
		t.Fatalf("retry records = %d, want 1", len(retries))
	}
	retry := retries[0]
	if retry.Attempts != 1 || retry.MaxAttempts != 3 || retry.Exhausted {
		t.Fatalf("retry record = %+v, want attempts 1 of 3, not exhausted", retry)
	}
	wantAt := start.Add(time.Hour)
	if retry.NextRetryAt.Before(wantAt.Add(-time.Minute)) || retry.NextRetryAt.After(wantAt.Add(time.Minute)) {
		t.Fatalf("nextRetryAt = %v, want ≈ %v", retry.NextRetryAt, wantAt)
	}

	var booking models.Booking
	db.First(&booking, "id = ?", f.booking.ID)
	if booking.Status == models.BookingStatusCompleted {
		t.Fatal("booking completed despite failed payout")
	}
}

func TestPayoutRetriesAreBounded(t *testing.T) {
	db := newTestDB(t)
	declined := &TransferResult{Success: false, ErrorCode: "DECLINED", ErrorMessage: "insufficient float"}
	transfer := &stubTransferer{results: []*TransferResult{declined}}
	payouts := newPayouts(db, transfer, &stubNotifier{})
	f := paidFixture(t, db, 1, 1000, "TX-P6")

	event := completeLessons(t, db, f, 1)
	payouts.HandleLessonCompleted(event)

	// Drive the scheduler until nothing is due anymore, pretending the
	// backoff windows have elapsed.
	for i := 0; i < 5; i++ {
		due, err := payouts.DueRetries(time.Now().Add(100 * time.Hour))
		if err != nil {
			t.Fatalf("DueRetries: %v", err)
		}
		for j := range due {
			if err := payouts.RunRetry(&due[j]); err != nil {
				t.Fatalf("RunRetry: %v", err)
			}
		}
	}

	if transfer.callCount() != 3 {
		t.Fatalf("transfer attempts = %d, want exactly 3", transfer.callCount())
	}

	var retries []models.PayoutRetry
	db.Find(&retries)
	if len(retries) != 1 {
		t.Fatalf("retry records = %d, want 1", len(retries))
	}
	if retries[0].Attempts != 3 || !retries[0].Exhausted {
		t.Fatalf("retry record = %+v, want attempts 3, exhausted", retries[0])
	}
}

func TestPayoutRetrySucceedsSecondTime(t *testing.T) {
	db := newTestDB(t)
	transfer := &stubTransferer{results: []*TransferResult{
		{Success: false, ErrorCode: "TIMEOUT", ErrorMessage: "provider timeout"},
		{Success: true, TransactionID: "B2C77", ReceiptNumber: "REC77"},
	}}
	notifier := &stubNotifier{}
	payouts := newPayouts(db, transfer, notifier)
	f := paidFixture(t, db, 1, 1000, "TX-P7")

	event := completeLessons(t, db, f, 1)
	payouts.HandleLessonCompleted(event)

	due, err := payouts.DueRetries(time.Now().Add(2 * time.Hour))
	if err != nil || len(due) != 1 {
		t.Fatalf("DueRetries = %d records, err %v; want 1", len(due), err)
	}
	if err := payouts.RunRetry(&due[0]); err != nil {
		t.Fatalf("RunRetry: %v", err)
	}

	completed := payoutTransactions(t, db, f, models.TransactionStatusCompleted)
	if len(completed) != 1 {
		t.Fatalf("completed payouts = %d, want 1", len(completed))
	}
	if completed[0].MpesaReceiptNumber == nil || *completed[0].MpesaReceiptNumber != "REC77" {
		t.Fatal("completed payout missing provider receipt")
	}

	var remaining int64
	db.Model(&models.PayoutRetry{}).Count(&remaining)
	if remaining != 0 {
		t.Fatalf("retry records left after success = %d, want 0", remaining)
	}

	var booking models.Booking
	db.First(&booking, "id = ?", f.booking.ID)
	if booking.Status != models.BookingStatusCompleted {
		t.Fatalf("booking status = %q, want completed", booking.Status)
	}
}

func TestPayoutUnresolvedDestination(t *testing.T) {
	db := newTestDB(t)
	transfer := &stubTransferer{}
	payouts := newPayouts(db, transfer, &stubNotifier{})
	f := paidFixture(t, db, 1, 1000, "TX-P8")

	if err := db.Model(&models.Teacher{}).Where("id = ?", f.teacher.ID).
		Update("phone", nil).Error; err != nil {
		t.Fatalf("clear teacher phone: %v", err)
	}

	event := completeLessons(t, db, f, 1)
	payouts.HandleLessonCompleted(event)

	if transfer.callCount() != 0 {
		t.Fatal("transfer attempted without a destination")
	}
	failed := payoutTransactions(t, db, f, models.TransactionStatusFailed)
	if len(failed) != 1 {
		t.Fatalf("failed payouts = %d, want 1", len(failed))
	}

	var retries int64
	db.Model(&models.PayoutRetry{}).Count(&retries)
	if retries != 1 {
		t.Fatalf("retry records = %d, want 1", retries)
	}
}
