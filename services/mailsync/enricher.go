package mailsync

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailpulse/dto"
	"github.com/customeros/mailpulse/interfaces"
	"github.com/customeros/mailpulse/internal/enum"
	mperrors "github.com/customeros/mailpulse/internal/errors"
	"github.com/customeros/mailpulse/internal/logger"
	"github.com/customeros/mailpulse/internal/models"
	"github.com/customeros/mailpulse/internal/tracing"
)

// DeletedSentinel replaces title and body of deleted messages.
const DeletedSentinel = "message deleted"

type Enricher struct {
	log   logger.Logger
	gmail interfaces.GmailClient
}

func NewEnricher(log logger.Logger, gmail interfaces.GmailClient) *Enricher {
	return &Enricher{log: log, gmail: gmail}
}

// Enrich loads the message behind an event. Deleted messages are not fetched.
func (e *Enricher) Enrich(ctx context.Context, mailbox *models.Mailbox, event dto.ChangeEvent) (dto.EnrichedEvent, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Enricher.Enrich")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, event.MessageID)
	span.LogKV("kind", event.Kind.String())

	enriched := dto.EnrichedEvent{ChangeEvent: event}

	if event.Kind == enum.ChangeDeleted {
		enriched.Title = DeletedSentinel
		enriched.Body = DeletedSentinel
		return enriched, nil
	}

	detail, err := e.gmail.GetMessage(ctx, mailbox, event.MessageID)
	if err != nil {
		tracing.TraceErr(span, err)
		if errors.Is(err, mperrors.ErrMessageNotFound) {
			// the history page is replayed until this message can be fetched
			span.LogKV("messageGone", true)
			e.log.Warnf("Message %s of mailbox %s is gone from Gmail, cursor stays at the current history", event.MessageID, mailbox.ID)
		}
		return enriched, fmt.Errorf("%w: message %s: %w", mperrors.ErrMessageEnrichment, event.MessageID, err)
	}

	enriched.Title = senderAddress(detail.From)
	enriched.Body = detail.Subject
	if enriched.Body == "" {
		enriched.Body = detail.Snippet
	}

	if event.Kind == enum.ChangeAdded {
		enriched.Verification = ExtractVerification(detail.Payload)
		enriched.Verified = enriched.Verification.Found()
		span.LogKV("verified", enriched.Verified)
	}

	return enriched, nil
}

// senderAddress reduces a From header to the bare address.
func senderAddress(from string) string {
	from = strings.TrimSpace(from)
	if from == "" {
		return ""
	}

	address := from
	if parsed, err := mail.ParseAddress(from); err == nil {
		address = parsed.Address
	}

	validation := mailvalidate.ValidateEmailSyntax(address)
	if validation.IsValid && validation.CleanEmail != "" {
		return validation.CleanEmail
	}
	return address
}
