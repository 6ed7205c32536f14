package push

import (
	"context"
	"fmt"
	"time"

	"github.com/opentracing/opentracing-go"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	fcm "google.golang.org/api/fcm/v1"
	"google.golang.org/api/option"

	"github.com/customeros/mailpulse/config"
	"github.com/customeros/mailpulse/dto"
	"github.com/customeros/mailpulse/internal/logger"
	"github.com/customeros/mailpulse/internal/tracing"
)

type sendFunc func(ctx context.Context, message *fcm.Message) error

// FCMGateway delivers one notification to many device tokens. FCM v1 has no
// multicast endpoint, so every token is a separate send, bounded by a semaphore.
type FCMGateway struct {
	log     logger.Logger
	timeout time.Duration
	sem     *semaphore.Weighted
	send    sendFunc
}

func NewFCMGateway(ctx context.Context, cfg *config.FirebaseConfig, log logger.Logger) (*FCMGateway, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("firebase project id is not configured")
	}

	opts := []option.ClientOption{option.WithScopes(fcm.FirebaseMessagingScope)}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	svc, err := fcm.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create fcm service: %w", err)
	}

	parent := "projects/" + cfg.ProjectID
	return newGateway(cfg, log, func(ctx context.Context, message *fcm.Message) error {
		_, err := svc.Projects.Messages.Send(parent, &fcm.SendMessageRequest{Message: message}).Context(ctx).Do()
		return err
	}), nil
}

func newGateway(cfg *config.FirebaseConfig, log logger.Logger, send sendFunc) *FCMGateway {
	limit := cfg.MaxConcurrentSends
	if limit <= 0 {
		limit = 1
	}
	return &FCMGateway{
		log:     log,
		timeout: cfg.RequestTimeout,
		sem:     semaphore.NewWeighted(int64(limit)),
		send:    send,
	}
}

// SendMulticast returns an error only when no token received the message.
func (g *FCMGateway) SendMulticast(ctx context.Context, payload dto.NotificationPayload, tokens []string) (*dto.MulticastResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "FCMGateway.SendMulticast")
	defer span.Finish()
	tracing.TagComponentPush(span)
	span.LogKV("tokens", len(tokens), "type", payload.Data["type"])

	result := &dto.MulticastResult{}
	if len(tokens) == 0 {
		return result, nil
	}

	errs := make([]error, len(tokens))
	group, gctx := errgroup.WithContext(ctx)
	for i, token := range tokens {
		i, token := i, token
		if err := g.sem.Acquire(gctx, 1); err != nil {
			errs[i] = err
			continue
		}
		group.Go(func() error {
			defer g.sem.Release(1)
			errs[i] = g.sendOne(gctx, payload, token)
			return nil
		})
	}
	_ = group.Wait()

	for i, err := range errs {
		if err == nil {
			result.SuccessCount++
			continue
		}
		result.FailureCount++
		result.Failures = append(result.Failures, dto.TokenFailure{Token: tokens[i], Error: err.Error()})
	}
	span.LogKV("success", result.SuccessCount, "failure", result.FailureCount)

	if result.SuccessCount == 0 {
		err := fmt.Errorf("all %d sends failed, first error: %s", result.FailureCount, result.Failures[0].Error)
		tracing.TraceErr(span, err)
		return result, err
	}
	return result, nil
}

func (g *FCMGateway) sendOne(ctx context.Context, payload dto.NotificationPayload, token string) error {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	return g.send(ctx, buildMessage(payload, token))
}

func buildMessage(payload dto.NotificationPayload, token string) *fcm.Message {
	data := make(map[string]string, len(payload.Data))
	for k, v := range payload.Data {
		data[k] = v
	}
	return &fcm.Message{
		Token: token,
		Notification: &fcm.Notification{
			Title: payload.Title,
			Body:  payload.Body,
		},
		Data: data,
	}
}
