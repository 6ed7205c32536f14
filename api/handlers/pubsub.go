package handlers

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"go.uber.org/zap"

	"github.com/customeros/mailpulse/dto"
	"github.com/customeros/mailpulse/interfaces"
	"github.com/customeros/mailpulse/internal/logger"
	"github.com/customeros/mailpulse/internal/tracing"
	"github.com/customeros/mailpulse/internal/utils"
	"github.com/customeros/mailpulse/services/mailsync"
)

type PubSubConfig struct {
	// VerificationToken must match the token query parameter; empty disables the check
	VerificationToken string
	// Async enqueues deliveries on RabbitMQ instead of running the pipeline inline
	Async bool
}

// GmailPush receives Cloud Pub/Sub push deliveries. Any 2xx acks the
// delivery; 500 makes Pub/Sub redeliver.
func GmailPush(log logger.Logger, syncService interfaces.MailboxSyncService, publisher interfaces.EventPublisher, cfg PubSubConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "GmailPush")
		defer span.Finish()
		tracing.TagComponentRest(span)

		if cfg.VerificationToken != "" &&
			subtle.ConstantTimeCompare([]byte(c.Query("token")), []byte(cfg.VerificationToken)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid verification token"})
			return
		}

		var envelope dto.PubSubEnvelope
		if err := c.ShouldBindJSON(&envelope); err != nil {
			tracing.TraceErr(span, err)
			log.Warnf("Dropping unparseable push delivery: %v", err)
			c.JSON(http.StatusOK, gin.H{"status": "dropped", "error": err.Error()})
			return
		}
		span.LogKV("pubsub.messageId", envelope.Message.MessageID)

		if cfg.Async {
			err := publisher.PublishGmailNotificationReceived(ctx, dto.GmailNotificationReceived{
				Envelope:   envelope,
				ReceivedAt: utils.Now(),
			})
			if err != nil {
				tracing.TraceErr(span, err)
				log.With(zap.String("messageId", envelope.Message.MessageID)).Errorf("Failed to enqueue push delivery: %v", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
			return
		}

		summary, err := syncService.HandleEnvelope(ctx, envelope)
		if err != nil {
			tracing.TraceErr(span, err)
			if mailsync.IsDropped(err) {
				c.JSON(http.StatusOK, gin.H{"status": "dropped", "error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		status := "processed"
		if summary != nil && summary.Skipped {
			status = "skipped"
		}
		c.JSON(http.StatusOK, gin.H{"status": status, "summary": summary})
	}
}
