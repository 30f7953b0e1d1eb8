package services

import (
	"errors"
	"testing"

	"github.com/anjiri1684/tutor_settlement/models"
	"github.com/google/uuid"
)

func TestActivateSetsBookingAndLessons(t *testing.T) {
	db := newTestDB(t)
	activation := NewActivationService(db)
	f := seedBooking(t, db, 3, 1000, "TX-ACT-1")

	if err := activation.Activate(f.booking.ID); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	var booking models.Booking
	if err := db.First(&booking, "id = ?", f.booking.ID).Error; err != nil {
		t.Fatalf("reload booking: %v", err)
	}
	if booking.Status != models.BookingStatusPaid {
		t.Fatalf("booking status = %q, want paid", booking.Status)
	}
	if booking.PaidAt == nil {
		t.Fatal("booking PaidAt not set")
	}
	if booking.MeetingLink == nil || *booking.MeetingLink == "" {
		t.Fatal("booking meeting link not set")
	}

	var lessons []models.Lesson
	if err := db.Find(&lessons, "booking_id = ?", f.booking.ID).Error; err != nil {
		t.Fatalf("load lessons: %v", err)
	}
	if len(lessons) != 3 {
		t.Fatalf("lesson count = %d, want 3", len(lessons))
	}
	for _, l := range lessons {
		if l.Status != models.LessonStatusActive {
			t.Fatalf("lesson %s status = %q, want active", l.ID, l.Status)
		}
		if l.MeetingLink == nil || *l.MeetingLink != *booking.MeetingLink {
			t.Fatalf("lesson %s meeting link does not match the booking's", l.ID)
		}
	}
}

func TestActivateIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	activation := NewActivationService(db)
	f := seedBooking(t, db, 2, 500, "TX-ACT-2")

	if err := activation.Activate(f.booking.ID); err != nil {
		t.Fatalf("first Activate: %v", err)
	}

	var first models.Booking
	if err := db.First(&first, "id = ?", f.booking.ID).Error; err != nil {
		t.Fatalf("reload booking: %v", err)
	}

	if err := activation.Activate(f.booking.ID); err != nil {
		t.Fatalf("second Activate: %v", err)
	}

	var second models.Booking
	if err := db.First(&second, "id = ?", f.booking.ID).Error; err != nil {
		t.Fatalf("reload booking: %v", err)
	}

	if *first.MeetingLink != *second.MeetingLink {
		t.Fatalf("meeting link regenerated on replay: %q then %q", *first.MeetingLink, *second.MeetingLink)
	}
	if !first.PaidAt.Equal(*second.PaidAt) {
		t.Fatalf("paidAt changed on replay: %v then %v", first.PaidAt, second.PaidAt)
	}

	var lessons []models.Lesson
	db.Find(&lessons, "booking_id = ?", f.booking.ID)
	for _, l := range lessons {
		if l.Status != models.LessonStatusActive || *l.MeetingLink != *second.MeetingLink {
			t.Fatalf("lesson %s inconsistent after replay", l.ID)
		}
	}
}

func TestActivateLeavesCompletedLessonsAlone(t *testing.T) {
	db := newTestDB(t)
	activation := NewActivationService(db)
	f := seedBooking(t, db, 2, 500, "TX-ACT-3")

	if err := activation.Activate(f.booking.ID); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	completeLessons(t, db, f, 1)

	if err := activation.Activate(f.booking.ID); err != nil {
		t.Fatalf("re-run Activate: %v", err)
	}

	var lesson models.Lesson
	if err := db.First(&lesson, "id = ?", f.lessons[0].ID).Error; err != nil {
		t.Fatalf("reload lesson: %v", err)
	}
	if lesson.Status != models.LessonStatusCompleted {
		t.Fatalf("completed lesson regressed to %q", lesson.Status)
	}
}

func TestActivateUnknownBooking(t *testing.T) {
	db := newTestDB(t)
	activation := NewActivationService(db)

	err := activation.Activate(uuid.New())
	if !errors.Is(err, ErrBookingNotFound) {
		t.Fatalf("err = %v, want ErrBookingNotFound", err)
	}
}
