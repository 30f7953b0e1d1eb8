package services

import (
	"fmt"
	"sync"
	"testing"

	"github.com/anjiri1684/tutor_settlement/database"
	"github.com/anjiri1684/tutor_settlement/models"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap test database: %v", err)
	}
	// A single connection keeps the shared in-memory database alive and
	// avoids sqlite write contention in concurrent tests.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.MigrateWith(db); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	return db
}

type sentNotification struct {
	Token string
	Title string
	Body  string
	Data  map[string]string
}

type stubNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *stubNotifier) Notify(token, title, body string, data map[string]string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{Token: token, Title: title, Body: body, Data: data})
}

func (n *stubNotifier) sentTitles() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	titles := make([]string, 0, len(n.sent))
	for _, s := range n.sent {
		titles = append(titles, s.Title)
	}
	return titles
}

type stubTransferer struct {
	mu      sync.Mutex
	calls   int
	results []*TransferResult
	errs    []error
}

func (s *stubTransferer) Transfer(phone string, amount float64, correlationID uuid.UUID) (*TransferResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i >= len(s.results) {
		i = len(s.results) - 1
	}
	if i < 0 {
		return &TransferResult{Success: true, TransactionID: "B2C1", ReceiptNumber: "REC1"}, nil
	}
	if s.errs != nil && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	return s.results[i], nil
}

func (s *stubTransferer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func okPhone(phone string) (string, error) { return phone, nil }

type fixture struct {
	teacher models.Teacher
	parent  models.Parent
	booking models.Booking
	lessons []models.Lesson
	payment models.Transaction
}

// seedBooking creates a teacher, a parent, a booking with the given number
// of scheduled lessons, and a pending payment transaction referenced by
// the external id.
func seedBooking(t *testing.T, db *gorm.DB, lessonCount int, amount float64, externalRef string) *fixture {
	t.Helper()

	phone := "254712345678"
	teacherToken := "teacher-device-token"
	parentToken := "parent-device-token"

	f := &fixture{
		teacher: models.Teacher{ID: uuid.New(), FullName: "Grace Wanjiru", Phone: &phone, FcmToken: &teacherToken},
		parent:  models.Parent{ID: uuid.New(), FullName: "James Otieno", Phone: &phone, FcmToken: &parentToken},
	}
	if err := db.Create(&f.teacher).Error; err != nil {
		t.Fatalf("seed teacher: %v", err)
	}
	if err := db.Create(&f.parent).Error; err != nil {
		t.Fatalf("seed parent: %v", err)
	}

	f.booking = models.Booking{
		ID:          uuid.New(),
		ParentID:    f.parent.ID,
		TeacherID:   f.teacher.ID,
		Subject:     "Mathematics",
		TotalAmount: amount,
		Status:      models.BookingStatusPendingPayment,
	}
	if err := db.Create(&f.booking).Error; err != nil {
		t.Fatalf("seed booking: %v", err)
	}

	for i := 0; i < lessonCount; i++ {
		lesson := models.Lesson{
			ID:        uuid.New(),
			BookingID: f.booking.ID,
			TeacherID: f.teacher.ID,
			Status:    models.LessonStatusScheduled,
		}
		if err := db.Create(&lesson).Error; err != nil {
			t.Fatalf("seed lesson %d: %v", i, err)
		}
		f.lessons = append(f.lessons, lesson)
	}

	f.payment = models.Transaction{
		ID:                 uuid.New(),
		Type:               models.TransactionTypePayment,
		BookingID:          f.booking.ID,
		Amount:             amount,
		MpesaTransactionID: &externalRef,
		Status:             models.TransactionStatusPending,
	}
	if err := db.Create(&f.payment).Error; err != nil {
		t.Fatalf("seed payment transaction: %v", err)
	}
	return f
}

// completeLessons flips the given lessons straight to completed and
// returns the status-change event for the last one.
func completeLessons(t *testing.T, db *gorm.DB, f *fixture, n int) LessonStatusEvent {
	t.Helper()

	var last LessonStatusEvent
	for i := 0; i < n; i++ {
		var lesson models.Lesson
		if err := db.First(&lesson, "id = ?", f.lessons[i].ID).Error; err != nil {
			t.Fatalf("reload lesson: %v", err)
		}
		prev := lesson.Status
		if err := db.Model(&models.Lesson{}).Where("id = ?", lesson.ID).
			Update("status", models.LessonStatusCompleted).Error; err != nil {
			t.Fatalf("complete lesson: %v", err)
		}
		last = LessonStatusEvent{
			LessonID:       lesson.ID.String(),
			BookingID:      f.booking.ID.String(),
			TeacherID:      f.teacher.ID.String(),
			PreviousStatus: prev,
			NewStatus:      models.LessonStatusCompleted,
		}
	}
	return last
}
