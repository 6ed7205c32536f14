package repository

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/customeros/mailpulse/interfaces"
	mperrors "github.com/customeros/mailpulse/internal/errors"
	"github.com/customeros/mailpulse/internal/models"
	"github.com/customeros/mailpulse/internal/tracing"
)

type mailboxCursorRepository struct {
	db *gorm.DB
}

func NewMailboxCursorRepository(db *gorm.DB) interfaces.MailboxCursorRepository {
	return &mailboxCursorRepository{db: db}
}

func (r *mailboxCursorRepository) GetCursor(ctx context.Context, mailboxID string) (*models.MailboxCursor, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailboxCursorRepository.GetCursor")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagEntity(span, mailboxID)

	var cursor models.MailboxCursor
	err := r.db.WithContext(ctx).
		Where("mailbox_id = ?", mailboxID).
		First(&cursor).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, mperrors.ErrCursorNotFound
		}
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to get cursor")
	}

	return &cursor, nil
}

func (r *mailboxCursorRepository) EnsureCursor(ctx context.Context, mailboxID string, historyID uint64) (*models.MailboxCursor, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailboxCursorRepository.EnsureCursor")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagEntity(span, mailboxID)

	now := time.Now()
	cursor := models.MailboxCursor{
		MailboxID: mailboxID,
		HistoryID: historyID,
		LastSync:  now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&cursor).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to create cursor")
	}

	return r.GetCursor(ctx, mailboxID)
}

// AdvanceCursor is a single conditional update so a stale writer can never
// move the cursor backwards, even without the mailbox lock.
func (r *mailboxCursorRepository) AdvanceCursor(ctx context.Context, mailboxID string, historyID uint64) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailboxCursorRepository.AdvanceCursor")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagEntity(span, mailboxID)
	span.LogKV("historyId", historyID)

	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&models.MailboxCursor{}).
		Where("mailbox_id = ? AND history_id < ?", mailboxID, historyID).
		Updates(map[string]interface{}{
			"history_id": historyID,
			"last_sync":  now,
			"updated_at": now,
		})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return false, errors.Wrap(result.Error, "failed to advance cursor")
	}

	if result.RowsAffected > 0 {
		span.LogKV("result.advanced", true)
		return true, nil
	}

	// nothing updated: either the cursor is already ahead or it does not exist
	if _, err := r.GetCursor(ctx, mailboxID); err != nil {
		return false, err
	}
	span.LogKV("result.advanced", false)
	return false, nil
}
