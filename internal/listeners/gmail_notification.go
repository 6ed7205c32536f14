package listeners

import (
	"context"

	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailpulse/dto"
	"github.com/customeros/mailpulse/interfaces"
	"github.com/customeros/mailpulse/internal/logger"
	"github.com/customeros/mailpulse/internal/tracing"
	"github.com/customeros/mailpulse/services/events"
	"github.com/customeros/mailpulse/services/mailsync"
)

// GmailNotificationListener runs queued push deliveries through the sync pipeline.
type GmailNotificationListener struct {
	events.BaseEventListener
	syncService interfaces.MailboxSyncService
}

func NewGmailNotificationListener(log logger.Logger, syncService interfaces.MailboxSyncService) interfaces.EventListener {
	return &GmailNotificationListener{
		BaseEventListener: events.NewBaseEventListener(
			log,
			events.GetEventType[dto.GmailNotificationReceived](),
			events.QueueGmailNotifications,
		),
		syncService: syncService,
	}
}

// Handle returns an error only when a redelivery may succeed.
func (l *GmailNotificationListener) Handle(ctx context.Context, baseEvent any) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "GmailNotificationListener.Handle")
	defer span.Finish()
	tracing.SetDefaultListenerSpanTags(ctx, span)

	validatedEvent, err := l.ValidateBaseEvent(ctx, baseEvent)
	if err != nil {
		tracing.TraceErr(span, err)
		l.Logger().Errorf("Dropping invalid event: %v", err)
		return nil
	}
	tracing.TagEntity(span, validatedEvent.Event.EntityId)

	received, err := events.DecodeEventData[dto.GmailNotificationReceived](ctx, validatedEvent)
	if err != nil {
		tracing.TraceErr(span, err)
		l.Logger().Errorf("Dropping undecodable event %s: %v", validatedEvent.Event.Id, err)
		return nil
	}

	summary, err := l.syncService.HandleEnvelope(ctx, received.Envelope)
	if err != nil {
		tracing.TraceErr(span, err)
		if mailsync.IsDropped(err) {
			return nil
		}
		return err
	}
	tracing.LogObjectAsJson(span, "summary", summary)
	return nil
}
