package interfaces

import (
	"context"

	"github.com/customeros/mailpulse/dto"
)

type PushGateway interface {
	// SendMulticast delivers one payload to every token, best effort per token.
	SendMulticast(ctx context.Context, payload dto.NotificationPayload, tokens []string) (*dto.MulticastResult, error)
}
