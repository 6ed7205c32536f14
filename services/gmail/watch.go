package gmail

import (
	"context"
	"fmt"
	"time"

	"github.com/opentracing/opentracing-go"
	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/customeros/mailpulse/dto"
	"github.com/customeros/mailpulse/internal/models"
	"github.com/customeros/mailpulse/internal/tracing"
)

// Watch (re)registers push notifications for the mailbox labels on the topic.
func (c *Client) Watch(ctx context.Context, mailbox *models.Mailbox, topic string) (*dto.WatchResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "GmailClient.Watch")
	defer span.Finish()
	tracing.TagComponentGmail(span)
	tracing.TagMailbox(span, mailbox.ID)

	if topic == "" {
		return nil, fmt.Errorf("pubsub topic is not configured")
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	svc, err := c.newService(ctx, mailbox)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("gmail service: %w", err)
	}

	req := &gmailapi.WatchRequest{
		TopicName: topic,
		LabelIds:  mailbox.WatchLabelIDs(),
	}

	var resp *gmailapi.WatchResponse
	err = c.execute(func() error {
		var callErr error
		resp, callErr = svc.Users.Watch(userMe, req).Context(ctx).Do()
		return callErr
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("watch mailbox %s: %w", mailbox.ID, err)
	}

	return mapWatch(resp), nil
}

func mapWatch(resp *gmailapi.WatchResponse) *dto.WatchResult {
	if resp == nil {
		return &dto.WatchResult{}
	}
	return &dto.WatchResult{
		HistoryID:  resp.HistoryId,
		Expiration: time.UnixMilli(resp.Expiration).UTC(),
	}
}
