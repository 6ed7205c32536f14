package gmail

import (
	"context"
	"fmt"
	"strings"

	"github.com/opentracing/opentracing-go"
	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/customeros/mailpulse/dto"
	mperrors "github.com/customeros/mailpulse/internal/errors"
	"github.com/customeros/mailpulse/internal/models"
	"github.com/customeros/mailpulse/internal/tracing"
)

func (c *Client) GetMessage(ctx context.Context, mailbox *models.Mailbox, messageID string) (*dto.MessageDetail, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "GmailClient.GetMessage")
	defer span.Finish()
	tracing.TagComponentGmail(span)
	tracing.TagMailbox(span, mailbox.ID)
	tracing.TagEntity(span, messageID)

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	svc, err := c.newService(ctx, mailbox)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("gmail service: %w", err)
	}

	var message *gmailapi.Message
	err = c.execute(func() error {
		var callErr error
		message, callErr = svc.Users.Messages.Get(userMe, messageID).Format("full").Context(ctx).Do()
		return callErr
	})
	if err != nil {
		tracing.TraceErr(span, err)
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: get message %s: %w", mperrors.ErrMessageNotFound, messageID, err)
		}
		return nil, fmt.Errorf("get message %s: %w", messageID, err)
	}

	return mapMessage(message), nil
}

func mapMessage(message *gmailapi.Message) *dto.MessageDetail {
	if message == nil {
		return &dto.MessageDetail{}
	}
	detail := &dto.MessageDetail{
		ID:       message.Id,
		ThreadID: message.ThreadId,
		Snippet:  message.Snippet,
		LabelIDs: append([]string{}, message.LabelIds...),
		Payload:  mapPart(message.Payload),
	}
	if message.Payload != nil {
		for _, header := range message.Payload.Headers {
			if header == nil {
				continue
			}
			switch strings.ToLower(header.Name) {
			case "subject":
				detail.Subject = header.Value
			case "from":
				detail.From = header.Value
			}
		}
	}
	return detail
}

func mapPart(part *gmailapi.MessagePart) *dto.MessagePart {
	if part == nil {
		return nil
	}
	mapped := &dto.MessagePart{
		PartID:   part.PartId,
		MimeType: part.MimeType,
		Filename: part.Filename,
	}
	if part.Body != nil {
		mapped.Data = part.Body.Data
	}
	for _, child := range part.Parts {
		if child := mapPart(child); child != nil {
			mapped.Parts = append(mapped.Parts, child)
		}
	}
	return mapped
}
