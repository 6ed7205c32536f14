package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/customeros/mailpulse/internal/utils"
)

// DeviceToken is a push registration of one physical device of the mailbox owner.
type DeviceToken struct {
	ID        string    `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	MailboxID string    `gorm:"column:mailbox_id;type:varchar(50);not null;uniqueIndex:idx_device_tokens_mailbox_device" json:"mailboxId"`
	DeviceKey string    `gorm:"column:device_key;type:varchar(255);not null;uniqueIndex:idx_device_tokens_mailbox_device" json:"deviceKey"`
	Token     string    `gorm:"column:token;type:text;not null" json:"-"`
	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
}

func (DeviceToken) TableName() string {
	return "device_tokens"
}

func (d *DeviceToken) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = utils.GenerateNanoIDWithPrefix("dtok", 16)
	}
	return nil
}
