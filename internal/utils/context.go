package utils

import (
	"context"

	"github.com/gin-gonic/gin"
)

type CustomContext struct {
	AppSource string
	Mailbox   string
	RunId     string
}

type customContextKey struct{}

func WithCustomContext(ctx context.Context, customContext *CustomContext) context.Context {
	return context.WithValue(ctx, customContextKey{}, customContext)
}

func WithCustomContextFromGinRequest(c *gin.Context, appSource string) context.Context {
	return WithCustomContext(c.Request.Context(), &CustomContext{
		AppSource: appSource,
		RunId:     c.GetHeader("X-Request-Id"),
	})
}

func GetContext(ctx context.Context) *CustomContext {
	customContext, ok := ctx.Value(customContextKey{}).(*CustomContext)
	if !ok {
		return new(CustomContext)
	}
	return customContext
}

func GetAppSourceFromContext(ctx context.Context) string {
	return GetContext(ctx).AppSource
}

func GetMailboxFromContext(ctx context.Context) string {
	return GetContext(ctx).Mailbox
}

func GetRunIdFromContext(ctx context.Context) string {
	return GetContext(ctx).RunId
}

// SetMailboxInContext copies the custom context so concurrent runs never share it.
func SetMailboxInContext(ctx context.Context, mailbox string) context.Context {
	customContext := *GetContext(ctx)
	customContext.Mailbox = mailbox
	return WithCustomContext(ctx, &customContext)
}

func SetRunIdInContext(ctx context.Context, runId string) context.Context {
	customContext := *GetContext(ctx)
	customContext.RunId = runId
	return WithCustomContext(ctx, &customContext)
}
