package mailsync

import (
	"context"
	"strings"

	"github.com/customeros/mailsherpa/mailvalidate"

	"github.com/customeros/mailpulse/interfaces"
	"github.com/customeros/mailpulse/internal/models"
)

// MailboxResolver maps a notification address to the registered mailbox.
type MailboxResolver struct {
	mailboxes interfaces.MailboxRepository
}

func NewMailboxResolver(mailboxes interfaces.MailboxRepository) *MailboxResolver {
	return &MailboxResolver{mailboxes: mailboxes}
}

func (r *MailboxResolver) Resolve(ctx context.Context, emailAddress string) (*models.Mailbox, error) {
	return r.mailboxes.GetMailboxByEmailAddress(ctx, normalizeAddress(emailAddress))
}

func normalizeAddress(emailAddress string) string {
	validation := mailvalidate.ValidateEmailSyntax(emailAddress)
	if validation.IsValid && validation.CleanEmail != "" {
		return strings.ToLower(validation.CleanEmail)
	}
	return strings.ToLower(strings.TrimSpace(emailAddress))
}
