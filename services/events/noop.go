package events

import (
	"context"

	"github.com/customeros/mailpulse/dto"
)

type NoopPublisher struct{}

func (NoopPublisher) PublishGmailNotificationReceived(context.Context, dto.GmailNotificationReceived) error {
	return nil
}

func (NoopPublisher) PublishMailboxSynced(context.Context, dto.MailboxSynced) error {
	return nil
}

func (NoopPublisher) Close() error {
	return nil
}
