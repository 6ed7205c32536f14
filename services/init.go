package services

import (
	"context"

	"gorm.io/gorm"

	"github.com/customeros/mailpulse/config"
	"github.com/customeros/mailpulse/interfaces"
	"github.com/customeros/mailpulse/internal/logger"
	"github.com/customeros/mailpulse/internal/repository"
	"github.com/customeros/mailpulse/services/events"
	"github.com/customeros/mailpulse/services/gmail"
	"github.com/customeros/mailpulse/services/locks"
	"github.com/customeros/mailpulse/services/mailsync"
	"github.com/customeros/mailpulse/services/push"
	"github.com/customeros/mailpulse/services/watch"
)

type Services struct {
	EventsService      *events.EventsService
	GmailClient        interfaces.GmailClient
	PushGateway        interfaces.PushGateway
	MailboxLocker      interfaces.MailboxLocker
	MailboxSyncService interfaces.MailboxSyncService
	WatchService       interfaces.WatchService
}

func InitServices(ctx context.Context, cfg *config.Config, log logger.Logger, db *gorm.DB, repos *repository.Repositories) (*Services, error) {
	eventsService, err := events.NewEventsService(cfg.AppConfig.RabbitMQURL, log, events.DefaultPublisherConfig())
	if err != nil {
		return nil, err
	}

	pushGateway, err := push.NewFCMGateway(ctx, cfg.FirebaseConfig, log)
	if err != nil {
		_ = eventsService.Close()
		return nil, err
	}

	locker, err := locks.NewMailboxLocker(cfg.SyncConfig.LockMode, db, log)
	if err != nil {
		_ = eventsService.Close()
		return nil, err
	}

	gmailClient := gmail.NewClient(cfg.GoogleConfig, log)

	services := Services{
		EventsService: eventsService,
		GmailClient:   gmailClient,
		PushGateway:   pushGateway,
		MailboxLocker: locker,
		MailboxSyncService: mailsync.NewMailboxSyncService(log, repos, gmailClient, pushGateway, locker, eventsService.Publisher, mailsync.Options{
			DispatchConcurrency: cfg.SyncConfig.DispatchConcurrency,
		}),
		WatchService: watch.NewWatchService(log, repos, gmailClient, cfg.GoogleConfig.PubSubTopic),
	}

	return &services, nil
}

func (s *Services) Close() error {
	if s.EventsService == nil {
		return nil
	}
	return s.EventsService.Close()
}
