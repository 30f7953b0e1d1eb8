package services

import (
	"errors"
	"time"

	"github.com/anjiri1684/tutor_settlement/models"
	"github.com/anjiri1684/tutor_settlement/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ActivationService flips a booking and its lessons into the delivered-paid
// state once the payment has settled. Activate is idempotent: re-running it
// never regenerates the meeting link and never partially updates lessons.
type ActivationService struct {
	db *gorm.DB
}

func NewActivationService(db *gorm.DB) *ActivationService {
	return &ActivationService{db: db}
}

func (s *ActivationService) Activate(bookingID uuid.UUID) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var booking models.Booking
		if err := tx.First(&booking, "id = ?", bookingID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBookingNotFound
			}
			return err
		}

		// A completed booking already went through activation and payout.
		if booking.Status == models.BookingStatusCompleted {
			return nil
		}

		link := booking.MeetingLink
		if link == nil || *link == "" {
			generated := utils.GenerateMeetingLink(booking.ID)
			link = &generated
		}
		paidAt := booking.PaidAt
		if paidAt == nil {
			now := time.Now()
			paidAt = &now
		}

		err := tx.Model(&models.Booking{}).
			Where("id = ? AND status IN ?", booking.ID, []string{models.BookingStatusPendingPayment, models.BookingStatusPaid}).
			Updates(map[string]interface{}{
				"status":       models.BookingStatusPaid,
				"paid_at":      paidAt,
				"meeting_link": link,
			}).Error
		if err != nil {
			return err
		}

		// One batch update for every lesson still waiting on activation:
		// either all of them move to active with the shared link, or the
		// transaction rolls back and none do.
		return tx.Model(&models.Lesson{}).
			Where("booking_id = ? AND status = ?", booking.ID, models.LessonStatusScheduled).
			Updates(map[string]interface{}{
				"status":       models.LessonStatusActive,
				"meeting_link": link,
			}).Error
	})
}
