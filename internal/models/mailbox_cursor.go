package models

import (
	"time"
)

// MailboxCursor is the Gmail history id up to which a mailbox has been synced.
// HistoryID never decreases.
type MailboxCursor struct {
	MailboxID string    `gorm:"column:mailbox_id;type:varchar(50);primaryKey"`
	HistoryID uint64    `gorm:"column:history_id;not null"`
	LastSync  time.Time `gorm:"column:last_sync;type:timestamp;not null"`
	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp"`
}

func (MailboxCursor) TableName() string {
	return "mailbox_cursors"
}
