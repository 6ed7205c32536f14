package mailsync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/customeros/mailpulse/dto"
	"github.com/customeros/mailpulse/internal/enum"
	mperrors "github.com/customeros/mailpulse/internal/errors"
	"github.com/customeros/mailpulse/internal/logger"
	"github.com/customeros/mailpulse/internal/models"
	"github.com/customeros/mailpulse/internal/tracing"
	"github.com/customeros/mailpulse/internal/utils"
)

func (s *MailboxSyncService) fetchHistory(ctx context.Context, mailbox *models.Mailbox, startHistoryID uint64) (*dto.HistoryPage, error) {
	history, err := s.enricher.gmail.ListHistory(ctx, mailbox, startHistoryID)
	if err != nil {
		if errors.Is(err, mperrors.ErrUpstreamFetch) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", mperrors.ErrUpstreamFetch, err)
	}
	if history == nil {
		history = &dto.HistoryPage{}
	}
	return history, nil
}

func (s *MailboxSyncService) deviceTokens(ctx context.Context, mailboxID string) ([]string, error) {
	deviceTokens, err := s.repos.DeviceTokenRepository.ListByMailbox(ctx, mailboxID)
	if err != nil {
		return nil, err
	}
	tokens := make([]string, 0, len(deviceTokens))
	for _, deviceToken := range deviceTokens {
		tokens = utils.AppendUnique(tokens, deviceToken.Token)
	}
	return tokens, nil
}

// enrichAll fetches message details in parallel. The first failure cancels
// the rest and aborts the run.
func (s *MailboxSyncService) enrichAll(ctx context.Context, mailbox *models.Mailbox, events []dto.ChangeEvent) ([]dto.EnrichedEvent, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MailboxSyncService.enrichAll")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	enriched := make([]dto.EnrichedEvent, len(events))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.DispatchConcurrency)

	for i, event := range events {
		i, event := i, event
		g.Go(func() error {
			result, err := s.enricher.Enrich(gctx, mailbox, event)
			if err != nil {
				return err
			}
			enriched[i] = result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return enriched, nil
}

// recordVerifications stores one record per verified added message, in event order.
func (s *MailboxSyncService) recordVerifications(ctx context.Context, mailbox *models.Mailbox, events []dto.EnrichedEvent) (int, error) {
	recorded := 0
	for _, event := range events {
		if event.Kind != enum.ChangeAdded || !event.Verified {
			continue
		}
		created, err := s.repos.VerificationRecordRepository.Create(ctx, &models.VerificationRecord{
			MailboxID: mailbox.ID,
			ThreadID:  event.ThreadID,
			MessageID: event.MessageID,
			Codes:     utils.SliceToString(event.Verification.Codes),
			Links:     models.JoinLinks(event.Verification.Links),
		})
		if err != nil {
			if !errors.Is(err, mperrors.ErrVerificationRecord) {
				err = fmt.Errorf("%w: %w", mperrors.ErrVerificationRecord, err)
			}
			return recorded, err
		}
		if created {
			recorded++
		}
	}
	return recorded, nil
}

// dispatchAll pushes every event to all tokens. Failures are collected on the
// summary and never stop other events.
func (s *MailboxSyncService) dispatchAll(ctx context.Context, events []dto.EnrichedEvent, tokens []string, summary *dto.SyncSummary) {
	if len(tokens) == 0 || len(events) == 0 {
		return
	}

	span, ctx := opentracing.StartSpanFromContext(ctx, "MailboxSyncService.dispatchAll")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogKV("events", len(events), "tokens", len(tokens))

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(s.opts.DispatchConcurrency)

	for _, event := range events {
		event := event
		g.Go(func() error {
			err := s.dispatch(ctx, event, tokens)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.DispatchErrors = append(summary.DispatchErrors, err)
			} else {
				summary.Notified++
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (s *MailboxSyncService) dispatch(ctx context.Context, event dto.EnrichedEvent, tokens []string) error {
	payload := BuildPayload(event)
	result, err := s.push.SendMulticast(ctx, payload, tokens)
	if err != nil {
		return fmt.Errorf("%w: %s event for message %s: %w", mperrors.ErrPushDispatch, event.Kind, event.MessageID, err)
	}
	if result != nil && result.FailureCount > 0 {
		s.log.Warnf("Push for message %s reached %d of %d devices", event.MessageID, result.SuccessCount, len(tokens))
	}
	return nil
}

func (s *MailboxSyncService) publishSynced(ctx context.Context, log logger.Logger, mailbox *models.Mailbox, summary *dto.SyncSummary) {
	if s.publisher == nil {
		return
	}
	publishCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err := s.publisher.PublishMailboxSynced(publishCtx, dto.MailboxSynced{
		MailboxID:           mailbox.ID,
		EmailAddress:        mailbox.EmailAddress,
		FromHistoryID:       summary.FromHistoryID,
		ToHistoryID:         summary.ToHistoryID,
		Events:              summary.Events,
		Notified:            summary.Notified,
		VerificationRecords: summary.VerificationRecords,
		DispatchFailures:    summary.DispatchFailures(),
	})
	if err != nil {
		log.Warnf("Failed to publish mailbox synced event: %v", err)
	}
}
