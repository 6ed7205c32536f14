package interfaces

import (
	"context"

	"github.com/customeros/mailpulse/dto"
)

type EventPublisher interface {
	PublishGmailNotificationReceived(ctx context.Context, message dto.GmailNotificationReceived) error
	PublishMailboxSynced(ctx context.Context, message dto.MailboxSynced) error
	Close() error
}

type EventListener interface {
	Handle(ctx context.Context, event any) error
	GetEventType() string
	GetQueueName() string
}

type EventSubscriber interface {
	RegisterListener(listener EventListener)
	ListenQueue(queueName string) error
	ListenQueueExclusive(queueName string) error
	Close() error
}
