package interfaces

import (
	"context"

	"github.com/customeros/mailpulse/dto"
	"github.com/customeros/mailpulse/internal/models"
)

type MailboxLocker interface {
	// WithLock runs fn while holding the exclusive section of one mailbox.
	WithLock(ctx context.Context, mailboxID string, fn func(ctx context.Context) error) error
	Mode() string
}

type MailboxSyncService interface {
	HandleEnvelope(ctx context.Context, envelope dto.PubSubEnvelope) (*dto.SyncSummary, error)
}

type WatchService interface {
	RenewExpiringWatches(ctx context.Context) error
	WatchMailbox(ctx context.Context, mailbox *models.Mailbox) (*dto.WatchResult, error)
}
