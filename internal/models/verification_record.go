package models

import (
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/customeros/mailpulse/internal/utils"
)

// VerificationRecord stores the codes and links detected in one message.
// At most one record exists per (mailbox, thread, message). Codes are
// comma-joined, links newline-joined since URLs may contain commas.
type VerificationRecord struct {
	ID        string    `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	MailboxID string    `gorm:"column:mailbox_id;type:varchar(50);not null;uniqueIndex:idx_verification_records_message" json:"mailboxId"`
	ThreadID  string    `gorm:"column:thread_id;type:varchar(100);not null;uniqueIndex:idx_verification_records_message" json:"threadId"`
	MessageID string    `gorm:"column:message_id;type:varchar(100);not null;uniqueIndex:idx_verification_records_message" json:"messageId"`
	Codes     string    `gorm:"column:codes;type:text" json:"codes"`
	Links     string    `gorm:"column:links;type:text" json:"links"`
	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
}

func (VerificationRecord) TableName() string {
	return "verification_records"
}

func (v *VerificationRecord) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = utils.GenerateNanoIDWithPrefix("vrec", 16)
	}
	return nil
}

func (v *VerificationRecord) CodeList() []string {
	return utils.StringToSlice(v.Codes)
}

func (v *VerificationRecord) LinkList() []string {
	if v.Links == "" {
		return []string{}
	}
	return strings.Split(v.Links, "\n")
}

func JoinLinks(links []string) string {
	return strings.Join(links, "\n")
}
