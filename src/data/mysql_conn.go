package data

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MySQLDSN returns MYSQL_DSN and whether it is set. The settings database is optional.
func MySQLDSN() (string, bool) {
	dsn := strings.TrimSpace(os.Getenv("MYSQL_DSN"))
	return dsn, dsn != ""
}

// ConnectMySQL opens a gorm DB with sane defaults.
func ConnectMySQL(dsn string) (*gorm.DB, error) {
	dsn = ensureParam(dsn, "parseTime", "true")
	if !strings.Contains(dsn, "charset=") {
		dsn = ensureParam(dsn, "charset", "utf8mb4")
		dsn = ensureParam(dsn, "collation", "utf8mb4_unicode_ci")
	}
	return gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: gormLogger()})
}

// OpenSettings connects, migrates the settings table and fills the cache.
func OpenSettings(dsn string) (*gorm.DB, error) {
	db, err := ConnectMySQL(dsn)
	if err != nil {
		return nil, fmt.Errorf("connect settings db: %w", err)
	}
	if err := PrepareSettings(db); err != nil {
		return nil, err
	}
	return db, nil
}

// PrepareSettings migrates the settings table on an open DB and loads the cache.
func PrepareSettings(db *gorm.DB) error {
	if err := db.AutoMigrate(&Setting{}); err != nil {
		return fmt.Errorf("migrate settings: %w", err)
	}
	if err := LoadSettings(db); err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	return nil
}

func gormLogger() logger.Interface {
	return logger.New(
		log.New(log.Writer(), "\r\n", log.LstdFlags),
		logger.Config{SlowThreshold: time.Second, LogLevel: logger.Warn, IgnoreRecordNotFoundError: true, Colorful: false},
	)
}

func ensureParam(dsn, key, val string) string {
	if strings.Contains(dsn, key+"=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + key + "=" + val
}
