package locks

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/customeros/mailpulse/internal/enum"
	"github.com/customeros/mailpulse/internal/logger"
	"github.com/customeros/mailpulse/internal/tracing"
)

// PostgresAdvisoryLocker holds a session level advisory lock for the duration
// of fn, so replicas behind the same database serialize per mailbox. The lock
// and unlock run on one pinned connection.
type PostgresAdvisoryLocker struct {
	db  *gorm.DB
	log logger.Logger
}

func NewPostgresAdvisoryLocker(db *gorm.DB, log logger.Logger) *PostgresAdvisoryLocker {
	return &PostgresAdvisoryLocker{db: db, log: log}
}

func (l *PostgresAdvisoryLocker) Mode() string {
	return enum.LockModePostgres.String()
}

func (l *PostgresAdvisoryLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "PostgresAdvisoryLocker.WithLock")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, key)

	err := l.db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		if err := conn.Exec("SELECT pg_advisory_lock(hashtext(?))", key).Error; err != nil {
			return errors.Wrap(err, "failed to acquire advisory lock")
		}
		defer l.unlock(conn, key)
		return fn(ctx)
	})
	if err != nil {
		tracing.TraceErr(span, err)
	}
	return err
}

// unlock runs on the pinned connection with a fresh context, the request
// context may be done by now. A lock that stays held blocks other replicas
// on this key until the connection is recycled.
func (l *PostgresAdvisoryLocker) unlock(conn *gorm.DB, key string) {
	var released bool
	err := conn.WithContext(context.Background()).Raw("SELECT pg_advisory_unlock(hashtext(?))", key).Scan(&released).Error
	if err != nil {
		l.log.Errorf("Failed to release advisory lock for %s: %v", key, err)
		return
	}
	if !released {
		l.log.Warnf("Advisory lock for %s was not held at release", key)
	}
}
