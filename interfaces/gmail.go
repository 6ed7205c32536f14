package interfaces

import (
	"context"

	"github.com/customeros/mailpulse/dto"
	"github.com/customeros/mailpulse/internal/models"
)

type GmailClient interface {
	ListHistory(ctx context.Context, mailbox *models.Mailbox, startHistoryID uint64) (*dto.HistoryPage, error)
	GetMessage(ctx context.Context, mailbox *models.Mailbox, messageID string) (*dto.MessageDetail, error)
	Watch(ctx context.Context, mailbox *models.Mailbox, topic string) (*dto.WatchResult, error)
}
