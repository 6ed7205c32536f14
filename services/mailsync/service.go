package mailsync

import (
	"context"
	"fmt"

	"github.com/opentracing/opentracing-go"
	"go.uber.org/zap"

	"github.com/customeros/mailpulse/dto"
	"github.com/customeros/mailpulse/interfaces"
	mperrors "github.com/customeros/mailpulse/internal/errors"
	"github.com/customeros/mailpulse/internal/logger"
	"github.com/customeros/mailpulse/internal/models"
	"github.com/customeros/mailpulse/internal/repository"
	"github.com/customeros/mailpulse/internal/tracing"
	"github.com/customeros/mailpulse/internal/utils"
)

const defaultConcurrency = 4

type Options struct {
	// DispatchConcurrency bounds parallel enrichment and push dispatch per run
	DispatchConcurrency int
}

type MailboxSyncService struct {
	log       logger.Logger
	repos     *repository.Repositories
	resolver  *MailboxResolver
	enricher  *Enricher
	push      interfaces.PushGateway
	locker    interfaces.MailboxLocker
	publisher interfaces.EventPublisher
	opts      Options
}

// NewMailboxSyncService wires the pipeline. publisher may be nil.
func NewMailboxSyncService(
	log logger.Logger,
	repos *repository.Repositories,
	gmail interfaces.GmailClient,
	push interfaces.PushGateway,
	locker interfaces.MailboxLocker,
	publisher interfaces.EventPublisher,
	opts Options,
) *MailboxSyncService {
	if opts.DispatchConcurrency <= 0 {
		opts.DispatchConcurrency = defaultConcurrency
	}
	return &MailboxSyncService{
		log:       log,
		repos:     repos,
		resolver:  NewMailboxResolver(repos.MailboxRepository),
		enricher:  NewEnricher(log, gmail),
		push:      push,
		locker:    locker,
		publisher: publisher,
		opts:      opts,
	}
}

// HandleEnvelope runs one push delivery through the pipeline. The returned
// summary is never nil; the error is nil for skipped deliveries and for runs
// whose only failures were push dispatches.
func (s *MailboxSyncService) HandleEnvelope(ctx context.Context, envelope dto.PubSubEnvelope) (*dto.SyncSummary, error) {
	runId := utils.GetRunIdFromContext(ctx)
	if runId == "" {
		runId = utils.NewRunId()
		ctx = utils.SetRunIdInContext(ctx, runId)
	}

	span, ctx := opentracing.StartSpanFromContext(ctx, "MailboxSyncService.HandleEnvelope")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogKV("pubsub.messageId", envelope.Message.MessageID)

	summary := &dto.SyncSummary{RunID: runId}
	log := s.log.With(zap.String("runId", runId))

	notification, err := DecodeEnvelope(envelope)
	if err != nil {
		tracing.TraceErr(span, err)
		log.Warnf("Dropping push delivery %s: %v", envelope.Message.MessageID, err)
		return summary, err
	}
	summary.EmailAddress = notification.EmailAddress
	span.LogKV("attempt", notification.Attempt, "historyId", notification.HistoryID)

	if !ShouldProcess(notification.Attempt) {
		summary.Skipped = true
		summary.SkipReason = dto.SkipReasonAttemptsExceeded
		log.Infof("Skipping notification for %s, delivery attempt %d exceeds %d",
			notification.EmailAddress, notification.Attempt, MaxDeliveryAttempts)
		return summary, nil
	}

	mailbox, err := s.resolver.Resolve(ctx, notification.EmailAddress)
	if err != nil {
		tracing.TraceErr(span, err)
		log.Warnf("Unable to resolve mailbox %s: %v", notification.EmailAddress, err)
		return summary, err
	}
	summary.MailboxID = mailbox.ID
	ctx = utils.SetMailboxInContext(ctx, mailbox.ID)
	tracing.TagMailbox(span, mailbox.ID)
	log = log.With(zap.String("mailboxId", mailbox.ID))

	err = s.locker.WithLock(ctx, mailbox.ID, func(ctx context.Context) error {
		return s.sync(ctx, log, mailbox, notification, summary)
	})
	if err != nil {
		tracing.TraceErr(span, err)
		log.Errorf("Sync failed for mailbox %s: %v", mailbox.EmailAddress, err)
		return summary, err
	}

	for _, dispatchErr := range summary.DispatchErrors {
		log.Warnf("Push dispatch failed: %v", dispatchErr)
	}

	if summary.CursorAdvanced {
		s.publishSynced(ctx, log, mailbox, summary)
	}

	log.Infof("Synced mailbox %s from %d to %d: %d events, %d notified, %d verification records, %d dispatch failures",
		mailbox.EmailAddress, summary.FromHistoryID, summary.ToHistoryID, summary.Events,
		summary.Notified, summary.VerificationRecords, summary.DispatchFailures())
	return summary, nil
}

// sync runs inside the mailbox exclusive section, from cursor read to commit.
func (s *MailboxSyncService) sync(ctx context.Context, log logger.Logger, mailbox *models.Mailbox, notification dto.GmailNotification, summary *dto.SyncSummary) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MailboxSyncService.sync")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	cursor, err := s.repos.MailboxCursorRepository.GetCursor(ctx, mailbox.ID)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	summary.FromHistoryID = cursor.HistoryID

	history, err := s.fetchHistory(ctx, mailbox, cursor.HistoryID)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	if len(history.Records) == 0 {
		summary.Skipped = true
		summary.SkipReason = dto.SkipReasonEmptyHistory
		summary.ToHistoryID = cursor.HistoryID
		log.Debugf("No history after %d", cursor.HistoryID)
		return nil
	}

	events := CollapseForwarded(Normalize(history.Records))
	summary.Events = len(events)
	span.LogKV("records", len(history.Records), "events", len(events))

	tokens, err := s.deviceTokens(ctx, mailbox.ID)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	enriched, err := s.enrichAll(ctx, mailbox, events)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	recorded, err := s.recordVerifications(ctx, mailbox, enriched)
	summary.VerificationRecords = recorded
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	s.dispatchAll(ctx, enriched, tokens, summary)

	advanced, err := s.repos.MailboxCursorRepository.AdvanceCursor(ctx, mailbox.ID, notification.HistoryID)
	if err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("%w: %w", mperrors.ErrCursorCommit, err)
	}
	summary.CursorAdvanced = advanced
	summary.ToHistoryID = notification.HistoryID
	if !advanced {
		log.Infof("Cursor already at or past %d, left unchanged", notification.HistoryID)
		summary.ToHistoryID = cursor.HistoryID
	}

	return nil
}
