package storage

import (
	"log"
	"os"

	"github.com/Matchbook-Rentals/matchbook-web-frontend-sub019/models"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

func connectToDB() *gorm.DB {
	// Only load .env in development (when RENDER env var is not set)
	if os.Getenv("RENDER") == "" {
		err := godotenv.Load()
		if err != nil {
			log.Println("Warning: Could not load .env file (this is normal in production)")
		}
	}

	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		log.Panic("DB_CONNECTION_STRING environment variable is required")
	}

	db, dbError := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if dbError != nil {
		log.Panic("error connection to db: " + dbError.Error())
	}

	DB = db
	return db
}

// MigrateModels runs the schema migrations. Exported so DB-backed tests can
// migrate the same models against their own database handle.
func MigrateModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Listing{},
		&models.Match{},
		&models.Booking{},
		&models.RentPayment{},
		&models.PaymentTransaction{},
		&models.RentPaymentFailure{},
		&models.ListingUnavailability{},
		&models.Notification{},
		&models.AuditLog{},
	)
}

func InitializeDB() *gorm.DB {
	db := connectToDB()
	if err := MigrateModels(db); err != nil {
		log.Panic("error running migrations: " + err.Error())
	}
	return db
}
