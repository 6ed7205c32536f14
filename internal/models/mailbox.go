package models

import (
	"strings"
	"time"

	"golang.org/x/oauth2"
	"gorm.io/gorm"

	"github.com/customeros/mailpulse/internal/utils"
)

// Mailbox is a Gmail account registered for push sync, with the OAuth
// credential used to read its history.
type Mailbox struct {
	ID           string `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	OwnerID      string `gorm:"column:owner_id;type:varchar(50);index;not null" json:"ownerId"`
	EmailAddress string `gorm:"column:email_address;type:varchar(255);uniqueIndex;not null" json:"emailAddress"`
	// OAuth credential
	AccessToken  string     `gorm:"column:access_token;type:text" json:"-"`
	RefreshToken string     `gorm:"column:refresh_token;type:text" json:"-"`
	TokenType    string     `gorm:"column:token_type;type:varchar(50)" json:"-"`
	TokenExpiry  *time.Time `gorm:"column:token_expiry;type:timestamp" json:"-"`
	// Gmail watch
	WatchLabels     string     `gorm:"column:watch_labels;type:varchar(255);default:'INBOX'" json:"watchLabels"`
	WatchExpiration *time.Time `gorm:"column:watch_expiration;type:timestamp;index" json:"watchExpiration"`
	// Standard timestamps
	CreatedAt time.Time      `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time      `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

func (Mailbox) TableName() string {
	return "mailboxes"
}

func (m *Mailbox) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = utils.GenerateNanoIDWithPrefix("mbox", 16)
	}
	m.EmailAddress = strings.ToLower(strings.TrimSpace(m.EmailAddress))
	return nil
}

// OAuthToken converts the stored credential into an oauth2 token.
func (m *Mailbox) OAuthToken() *oauth2.Token {
	token := &oauth2.Token{
		AccessToken:  m.AccessToken,
		RefreshToken: m.RefreshToken,
		TokenType:    m.TokenType,
	}
	if m.TokenExpiry != nil {
		token.Expiry = *m.TokenExpiry
	}
	return token
}

func (m *Mailbox) WatchLabelIDs() []string {
	if m.WatchLabels == "" {
		return []string{"INBOX"}
	}
	return utils.StringToSlice(m.WatchLabels)
}
