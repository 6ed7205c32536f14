package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/customeros/mailpulse/config"
	"github.com/customeros/mailpulse/interfaces"
	"github.com/customeros/mailpulse/internal/models"
)

type Repositories struct {
	MailboxRepository            interfaces.MailboxRepository
	MailboxCursorRepository      interfaces.MailboxCursorRepository
	DeviceTokenRepository        interfaces.DeviceTokenRepository
	VerificationRecordRepository interfaces.VerificationRecordRepository
}

func InitRepositories(mailpulseDB *gorm.DB) *Repositories {
	return &Repositories{
		MailboxRepository:            NewMailboxRepository(mailpulseDB),
		MailboxCursorRepository:      NewMailboxCursorRepository(mailpulseDB),
		DeviceTokenRepository:        NewDeviceTokenRepository(mailpulseDB),
		VerificationRecordRepository: NewVerificationRecordRepository(mailpulseDB),
	}
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Mailbox{},
		&models.MailboxCursor{},
		&models.DeviceToken{},
		&models.VerificationRecord{},
	)
}

func MigrateMailpulseDB(dbConfig *config.MailpulseDatabaseConfig, mailpulseDB *gorm.DB) error {
	db, err := mailpulseDB.DB()
	if err != nil {
		return err
	}

	db.SetMaxOpenConns(5)

	err = AutoMigrate(mailpulseDB)

	db.SetMaxIdleConns(dbConfig.MaxIdleConn)
	db.SetMaxOpenConns(dbConfig.MaxConn)
	db.SetConnMaxLifetime(time.Duration(dbConfig.ConnMaxLifetime) * time.Minute)

	return err
}
