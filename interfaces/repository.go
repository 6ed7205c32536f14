package interfaces

import (
	"context"
	"time"

	"github.com/customeros/mailpulse/internal/models"
)

type MailboxRepository interface {
	GetMailbox(ctx context.Context, id string) (*models.Mailbox, error)
	GetMailboxByEmailAddress(ctx context.Context, emailAddress string) (*models.Mailbox, error)
	GetMailboxesWithWatchExpiringBefore(ctx context.Context, before time.Time) ([]*models.Mailbox, error)
	SaveMailbox(ctx context.Context, mailbox *models.Mailbox) error
	UpdateWatchExpiration(ctx context.Context, mailboxID string, expiration time.Time) error
}

type MailboxCursorRepository interface {
	GetCursor(ctx context.Context, mailboxID string) (*models.MailboxCursor, error)
	// EnsureCursor creates the cursor at historyID when the mailbox has none yet.
	EnsureCursor(ctx context.Context, mailboxID string, historyID uint64) (*models.MailboxCursor, error)
	// AdvanceCursor moves the cursor forward only; it reports whether it moved.
	AdvanceCursor(ctx context.Context, mailboxID string, historyID uint64) (bool, error)
}

type DeviceTokenRepository interface {
	ListByMailbox(ctx context.Context, mailboxID string) ([]*models.DeviceToken, error)
	Upsert(ctx context.Context, token *models.DeviceToken) error
	DeleteByToken(ctx context.Context, mailboxID, token string) error
}

type VerificationRecordRepository interface {
	// Create inserts the record unless one exists for the same message; it
	// reports whether a row was written.
	Create(ctx context.Context, record *models.VerificationRecord) (bool, error)
	ListByMailbox(ctx context.Context, mailboxID string) ([]*models.VerificationRecord, error)
}
