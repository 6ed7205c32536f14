package repository

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/customeros/mailpulse/interfaces"
	"github.com/customeros/mailpulse/internal/models"
	"github.com/customeros/mailpulse/internal/tracing"
)

type deviceTokenRepository struct {
	db *gorm.DB
}

func NewDeviceTokenRepository(db *gorm.DB) interfaces.DeviceTokenRepository {
	return &deviceTokenRepository{db: db}
}

func (r *deviceTokenRepository) ListByMailbox(ctx context.Context, mailboxID string) ([]*models.DeviceToken, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "deviceTokenRepository.ListByMailbox")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagEntity(span, mailboxID)

	var tokens []*models.DeviceToken
	err := r.db.WithContext(ctx).
		Where("mailbox_id = ?", mailboxID).
		Order("created_at ASC").
		Find(&tokens).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to list device tokens")
	}
	span.LogKV("result.count", len(tokens))
	return tokens, nil
}

// Upsert registers a device, replacing the token when the device key is known.
func (r *deviceTokenRepository) Upsert(ctx context.Context, token *models.DeviceToken) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "deviceTokenRepository.Upsert")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	if token == nil || token.MailboxID == "" || token.DeviceKey == "" || token.Token == "" {
		return ErrInvalidInput
	}
	token.UpdatedAt = time.Now()

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "mailbox_id"}, {Name: "device_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"token", "updated_at"}),
		}).
		Create(token).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to upsert device token")
	}
	return nil
}

func (r *deviceTokenRepository) DeleteByToken(ctx context.Context, mailboxID, token string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "deviceTokenRepository.DeleteByToken")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagEntity(span, mailboxID)

	err := r.db.WithContext(ctx).
		Where("mailbox_id = ? AND token = ?", mailboxID, token).
		Delete(&models.DeviceToken{}).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to delete device token")
	}
	return nil
}
