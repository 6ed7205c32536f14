package repository

import (
	"context"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/customeros/mailpulse/interfaces"
	mperrors "github.com/customeros/mailpulse/internal/errors"
	"github.com/customeros/mailpulse/internal/models"
	"github.com/customeros/mailpulse/internal/tracing"
)

type mailboxRepository struct {
	db *gorm.DB
}

func NewMailboxRepository(db *gorm.DB) interfaces.MailboxRepository {
	return &mailboxRepository{db: db}
}

func (r *mailboxRepository) GetMailbox(ctx context.Context, id string) (*models.Mailbox, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailboxRepository.GetMailbox")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagEntity(span, id)

	var mailbox models.Mailbox
	err := r.db.WithContext(ctx).First(&mailbox, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, mperrors.ErrMailboxNotFound
		}
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to get mailbox")
	}
	return &mailbox, nil
}

// GetMailboxByEmailAddress matches case-insensitively; addresses are stored lowercased.
func (r *mailboxRepository) GetMailboxByEmailAddress(ctx context.Context, emailAddress string) (*models.Mailbox, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailboxRepository.GetMailboxByEmailAddress")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	span.LogKV("emailAddress", emailAddress)

	var mailbox models.Mailbox
	err := r.db.WithContext(ctx).
		Where("email_address = ?", strings.ToLower(strings.TrimSpace(emailAddress))).
		First(&mailbox).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, mperrors.ErrMailboxNotFound
		}
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to get mailbox by email address")
	}
	return &mailbox, nil
}

func (r *mailboxRepository) GetMailboxesWithWatchExpiringBefore(ctx context.Context, before time.Time) ([]*models.Mailbox, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailboxRepository.GetMailboxesWithWatchExpiringBefore")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	var mailboxes []*models.Mailbox
	err := r.db.WithContext(ctx).
		Where("watch_expiration IS NULL OR watch_expiration < ?", before).
		Order("watch_expiration ASC").
		Find(&mailboxes).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to list mailboxes with expiring watch")
	}
	span.LogKV("result.count", len(mailboxes))
	return mailboxes, nil
}

func (r *mailboxRepository) SaveMailbox(ctx context.Context, mailbox *models.Mailbox) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailboxRepository.SaveMailbox")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	if mailbox == nil || mailbox.EmailAddress == "" {
		return ErrInvalidInput
	}

	err := r.db.WithContext(ctx).Save(mailbox).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to save mailbox")
	}
	return nil
}

func (r *mailboxRepository) UpdateWatchExpiration(ctx context.Context, mailboxID string, expiration time.Time) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailboxRepository.UpdateWatchExpiration")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagEntity(span, mailboxID)

	result := r.db.WithContext(ctx).
		Model(&models.Mailbox{}).
		Where("id = ?", mailboxID).
		Updates(map[string]interface{}{
			"watch_expiration": expiration,
			"updated_at":       time.Now(),
		})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return errors.Wrap(result.Error, "failed to update watch expiration")
	}
	if result.RowsAffected == 0 {
		return mperrors.ErrMailboxNotFound
	}
	return nil
}
