package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailpulse/interfaces"
	mperrors "github.com/customeros/mailpulse/internal/errors"
	"github.com/customeros/mailpulse/internal/models"
	"github.com/customeros/mailpulse/internal/repository"
	"github.com/customeros/mailpulse/internal/tracing"
)

type RegisterDeviceRequest struct {
	DeviceKey string `json:"deviceKey" binding:"required"`
	Token     string `json:"token" binding:"required"`
}

// RegisterDevice stores the push token of one device, replacing the token
// previously registered for the same device key.
func RegisterDevice(repos *repository.Repositories) gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "RegisterDevice")
		defer span.Finish()
		tracing.TagComponentRest(span)

		var request RegisterDeviceRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		mailbox, ok := lookupMailbox(c, repos.MailboxRepository)
		if !ok {
			return
		}

		token := &models.DeviceToken{
			MailboxID: mailbox.ID,
			DeviceKey: strings.TrimSpace(request.DeviceKey),
			Token:     strings.TrimSpace(request.Token),
		}
		if err := repos.DeviceTokenRepository.Upsert(ctx, token); err != nil {
			tracing.TraceErr(span, err)
			if errors.Is(err, repository.ErrInvalidInput) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusCreated, gin.H{"status": "device registered", "mailboxId": mailbox.ID, "deviceKey": token.DeviceKey})
	}
}

func UnregisterDevice(repos *repository.Repositories) gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "UnregisterDevice")
		defer span.Finish()
		tracing.TagComponentRest(span)

		mailbox, ok := lookupMailbox(c, repos.MailboxRepository)
		if !ok {
			return
		}

		if err := repos.DeviceTokenRepository.DeleteByToken(ctx, mailbox.ID, c.Param("token")); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.Status(http.StatusNoContent)
	}
}

// StartWatch (re)registers the Gmail watch of a mailbox and seeds its cursor.
func StartWatch(repos *repository.Repositories, watchService interfaces.WatchService) gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "StartWatch")
		defer span.Finish()
		tracing.TagComponentRest(span)

		mailbox, ok := lookupMailbox(c, repos.MailboxRepository)
		if !ok {
			return
		}

		result, err := watchService.WatchMailbox(ctx, mailbox)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

// lookupMailbox writes the error response itself when it returns false.
func lookupMailbox(c *gin.Context, mailboxes interfaces.MailboxRepository) (*models.Mailbox, bool) {
	mailbox, err := mailboxes.GetMailbox(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, mperrors.ErrMailboxNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	return mailbox, true
}
