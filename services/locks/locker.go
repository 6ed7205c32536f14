package locks

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/customeros/mailpulse/interfaces"
	"github.com/customeros/mailpulse/internal/enum"
	"github.com/customeros/mailpulse/internal/logger"
)

// NewMailboxLocker returns the locker for the configured mode. An empty mode
// means local.
func NewMailboxLocker(mode string, db *gorm.DB, log logger.Logger) (interfaces.MailboxLocker, error) {
	switch enum.LockMode(mode) {
	case "", enum.LockModeLocal:
		return NewKeyedMutex(), nil
	case enum.LockModePostgres:
		if db == nil {
			return nil, fmt.Errorf("lock mode %s needs a database", mode)
		}
		return NewPostgresAdvisoryLocker(db, log), nil
	default:
		return nil, fmt.Errorf("unknown lock mode %q", mode)
	}
}
