package mailsync

import (
	"github.com/pkg/errors"

	mperrors "github.com/customeros/mailpulse/internal/errors"
)

// IsDropped reports errors that a redelivery can never fix.
func IsDropped(err error) bool {
	return errors.Is(err, mperrors.ErrMalformedEnvelope) ||
		errors.Is(err, mperrors.ErrMailboxNotFound) ||
		errors.Is(err, mperrors.ErrCursorNotFound)
}

// IsRetryable reports whether the push channel should redeliver.
func IsRetryable(err error) bool {
	return err != nil && !IsDropped(err)
}
