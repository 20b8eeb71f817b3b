package database

import (
	"log"
	"os"

	"github.com/keymonitor/backend/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	DB     *gorm.DB
	dbPath string
)

func Initialize(path string) error {
	var err error
	DB, err = gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return err
	}
	dbPath = path

	log.Println("Database connected successfully")

	// Auto-migrate the schema
	err = DB.AutoMigrate(&models.Game{}, &models.PriceRecord{})
	if err != nil {
		return err
	}

	log.Println("Database migration completed")
	return nil
}

func GetDB() *gorm.DB {
	return DB
}

// Path returns the on-disk location of the active database file.
func Path() string {
	return dbPath
}

// FileSize returns the database file size in bytes, or 0 if the file does not
// exist yet (sqlite creates it lazily on first write).
func FileSize() int64 {
	if dbPath == "" {
		return 0
	}
	info, err := os.Stat(dbPath)
	if err != nil {
		return 0
	}
	return info.Size()
}
