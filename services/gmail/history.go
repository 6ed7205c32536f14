package gmail

import (
	"context"
	"fmt"

	"github.com/opentracing/opentracing-go"
	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/customeros/mailpulse/dto"
	mperrors "github.com/customeros/mailpulse/internal/errors"
	"github.com/customeros/mailpulse/internal/models"
	"github.com/customeros/mailpulse/internal/tracing"
)

// ListHistory reads one page of inbox history after startHistoryID.
func (c *Client) ListHistory(ctx context.Context, mailbox *models.Mailbox, startHistoryID uint64) (*dto.HistoryPage, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "GmailClient.ListHistory")
	defer span.Finish()
	tracing.TagComponentGmail(span)
	tracing.TagMailbox(span, mailbox.ID)
	span.LogKV("startHistoryId", startHistoryID)

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	svc, err := c.newService(ctx, mailbox)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("%w: gmail service: %w", mperrors.ErrUpstreamFetch, err)
	}

	var resp *gmailapi.ListHistoryResponse
	err = c.execute(func() error {
		var callErr error
		resp, callErr = svc.Users.History.List(userMe).
			StartHistoryId(startHistoryID).
			LabelId(inboxLabel).
			MaxResults(historyPageLimit).
			Context(ctx).
			Do()
		return callErr
	})
	if err != nil {
		tracing.TraceErr(span, err)
		if isNotFound(err) {
			c.log.Warnf("History %d for mailbox %s is no longer available", startHistoryID, mailbox.ID)
			return nil, fmt.Errorf("%w: history %d expired: %w", mperrors.ErrUpstreamFetch, startHistoryID, err)
		}
		return nil, fmt.Errorf("%w: %w", mperrors.ErrUpstreamFetch, err)
	}

	page := mapHistory(resp)
	span.LogKV("records", len(page.Records))
	return page, nil
}

func mapHistory(resp *gmailapi.ListHistoryResponse) *dto.HistoryPage {
	page := &dto.HistoryPage{Records: make([]dto.HistoryRecord, 0)}
	if resp == nil {
		return page
	}
	page.HistoryID = resp.HistoryId

	for _, h := range resp.History {
		if h == nil {
			continue
		}
		record := dto.HistoryRecord{ID: h.Id}
		for _, added := range h.MessagesAdded {
			if added != nil {
				record.MessagesAdded = appendMessage(record.MessagesAdded, added.Message, nil)
			}
		}
		for _, deleted := range h.MessagesDeleted {
			if deleted != nil {
				record.MessagesDeleted = appendMessage(record.MessagesDeleted, deleted.Message, nil)
			}
		}
		for _, labelAdded := range h.LabelsAdded {
			if labelAdded != nil {
				record.LabelsAdded = appendMessage(record.LabelsAdded, labelAdded.Message, labelAdded.LabelIds)
			}
		}
		for _, labelRemoved := range h.LabelsRemoved {
			if labelRemoved != nil {
				record.LabelsRemoved = appendMessage(record.LabelsRemoved, labelRemoved.Message, labelRemoved.LabelIds)
			}
		}
		page.Records = append(page.Records, record)
	}
	return page
}

// changed labels win over the message's full label set for label events
func appendMessage(list []dto.HistoryMessage, message *gmailapi.Message, changedLabels []string) []dto.HistoryMessage {
	if message == nil {
		return list
	}
	labels := changedLabels
	if labels == nil {
		labels = message.LabelIds
	}
	return append(list, dto.HistoryMessage{
		MessageID: message.Id,
		ThreadID:  message.ThreadId,
		LabelIDs:  append([]string{}, labels...),
	})
}
