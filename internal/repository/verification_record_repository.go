package repository

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/customeros/mailpulse/interfaces"
	mperrors "github.com/customeros/mailpulse/internal/errors"
	"github.com/customeros/mailpulse/internal/models"
	"github.com/customeros/mailpulse/internal/tracing"
)

type verificationRecordRepository struct {
	db *gorm.DB
}

func NewVerificationRecordRepository(db *gorm.DB) interfaces.VerificationRecordRepository {
	return &verificationRecordRepository{db: db}
}

// Create relies on the unique (mailbox_id, thread_id, message_id) index, a
// redelivered message produces no second row.
func (r *verificationRecordRepository) Create(ctx context.Context, record *models.VerificationRecord) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "verificationRecordRepository.Create")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	if record == nil || record.MailboxID == "" || record.MessageID == "" {
		return false, ErrInvalidInput
	}
	tracing.TagEntity(span, record.MessageID)

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(record)
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return false, errors.Wrap(mperrors.ErrVerificationRecord, result.Error.Error())
	}

	created := result.RowsAffected > 0
	span.LogKV("result.created", created)
	return created, nil
}

func (r *verificationRecordRepository) ListByMailbox(ctx context.Context, mailboxID string) ([]*models.VerificationRecord, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "verificationRecordRepository.ListByMailbox")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagEntity(span, mailboxID)

	var records []*models.VerificationRecord
	err := r.db.WithContext(ctx).
		Where("mailbox_id = ?", mailboxID).
		Order("created_at ASC").
		Find(&records).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to list verification records")
	}
	return records, nil
}
