package watch

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailpulse/dto"
	"github.com/customeros/mailpulse/interfaces"
	"github.com/customeros/mailpulse/internal/logger"
	"github.com/customeros/mailpulse/internal/models"
	"github.com/customeros/mailpulse/internal/repository"
	"github.com/customeros/mailpulse/internal/tracing"
	"github.com/customeros/mailpulse/internal/utils"
)

// RenewalWindow is how far ahead of expiry a watch gets renewed. Gmail
// watches live for seven days.
const RenewalWindow = 24 * time.Hour

type WatchService struct {
	log   logger.Logger
	repos *repository.Repositories
	gmail interfaces.GmailClient
	topic string
}

func NewWatchService(log logger.Logger, repos *repository.Repositories, gmail interfaces.GmailClient, topic string) *WatchService {
	return &WatchService{
		log:   log,
		repos: repos,
		gmail: gmail,
		topic: topic,
	}
}

// RenewExpiringWatches renews every watch that expires inside the renewal
// window. One failing mailbox does not stop the others.
func (s *WatchService) RenewExpiringWatches(ctx context.Context) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "WatchService.RenewExpiringWatches")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	mailboxes, err := s.repos.MailboxRepository.GetMailboxesWithWatchExpiringBefore(ctx, utils.Now().Add(RenewalWindow))
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	span.LogKV("mailboxes", len(mailboxes))

	failed := 0
	for _, mailbox := range mailboxes {
		if _, err := s.WatchMailbox(ctx, mailbox); err != nil {
			failed++
			s.log.Errorf("Failed to renew watch for mailbox %s: %v", mailbox.EmailAddress, err)
		}
	}

	if failed > 0 {
		err = errors.Errorf("%d of %d watch renewals failed", failed, len(mailboxes))
		tracing.TraceErr(span, err)
		return err
	}
	if len(mailboxes) > 0 {
		s.log.Infof("Renewed %d Gmail watches", len(mailboxes))
	}
	return nil
}

// WatchMailbox starts or renews the Gmail watch of one mailbox. A mailbox
// without a cursor gets one at the watch history id, mailbox changes before
// that point are never fetched.
func (s *WatchService) WatchMailbox(ctx context.Context, mailbox *models.Mailbox) (*dto.WatchResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "WatchService.WatchMailbox")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagMailbox(span, mailbox.ID)

	result, err := s.gmail.Watch(ctx, mailbox, s.topic)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	if _, err = s.repos.MailboxCursorRepository.EnsureCursor(ctx, mailbox.ID, result.HistoryID); err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to ensure cursor")
	}

	if err = s.repos.MailboxRepository.UpdateWatchExpiration(ctx, mailbox.ID, result.Expiration); err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to store watch expiration")
	}

	span.LogKV("historyId", result.HistoryID, "expiration", result.Expiration)
	return result, nil
}
