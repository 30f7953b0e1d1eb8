package database

import (
	"fmt"
	"log"

	config "github.com/anjiri1684/tutor_settlement/configs"
	"github.com/anjiri1684/tutor_settlement/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

func ConnectDB() {
	var err error
	dsn := config.Config("DATABASE_URL")

	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		PrepareStmt:                              false,
		SkipDefaultTransaction:                   true,
		DisableForeignKeyConstraintWhenMigrating: true,
		DisableNestedTransaction:                 true,
	})
	if err != nil {
		log.Fatalf("🔥 Failed to connect to database: %v", err)
	}

	fmt.Println("✅ Database connected successfully")
}

func Migrate() {
	if err := MigrateWith(DB); err != nil {
		log.Fatalf("🔥 Failed to migrate database: %v", err)
	}
	fmt.Println("✅ Database migration successful")
}

// MigrateWith runs the schema migration against the given connection. Split
// out from Migrate so tests can apply the same schema to their own database.
func MigrateWith(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Teacher{},
		&models.Parent{},
		&models.Booking{},
		&models.Lesson{},
		&models.Transaction{},
		&models.LedgerEntry{},
		&models.LedgerHead{},
		&models.PayoutRetry{},
	)
	if err != nil {
		return err
	}

	// At most one completed payout per booking, enforced at write time.
	err = db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_one_completed_payout_per_booking
		ON transactions (booking_id) WHERE type = 'payout' AND status = 'completed'`).Error
	if err != nil {
		return err
	}

	return SeedLedgerHead(db)
}

// SeedLedgerHead makes sure the single ledger bookkeeping row exists so
// appends always have a row to lock.
func SeedLedgerHead(db *gorm.DB) error {
	head := models.LedgerHead{ID: 1}
	return db.FirstOrCreate(&head, models.LedgerHead{ID: 1}).Error
}
