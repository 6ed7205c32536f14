package api

import (
	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailpulse/api/handlers"
	"github.com/customeros/mailpulse/api/middleware"
	"github.com/customeros/mailpulse/config"
	"github.com/customeros/mailpulse/internal/logger"
	"github.com/customeros/mailpulse/internal/repository"
	"github.com/customeros/mailpulse/internal/tracing"
	"github.com/customeros/mailpulse/services"
)

const AppSource = "mailpulse"

// RegisterRoutes sets up all API endpoints. cronJobs may be nil.
func RegisterRoutes(r *gin.Engine, log logger.Logger, s *services.Services, repos *repository.Repositories, appConfig *config.AppConfig, cronJobs func() []string) {
	if s == nil {
		panic("Services cannot be nil")
	}
	if repos == nil {
		panic("Repositories cannot be nil")
	}

	r.Use(gin.Recovery())
	r.Use(tracing.RecoveryWithJaeger(opentracing.GlobalTracer()))

	r.GET("/health", handlers.HealthCheck)
	r.GET("/status", handlers.Status(handlers.StatusInfo{
		LockMode:       s.MailboxLocker.Mode(),
		AsyncIngestion: appConfig.PubSubAsync,
		EventsEnabled:  s.EventsService.Enabled(),
		CronJobs:       cronJobs,
	}))

	api := r.Group("/v1")
	api.Use(middleware.CustomContextMiddleware(AppSource))
	api.Use(middleware.TracingMiddleware())
	{
		// Pub/Sub authenticates with the verification token, not the API key
		api.POST("/pubsub/gmail", handlers.GmailPush(log, s.MailboxSyncService, s.EventsService.Publisher, handlers.PubSubConfig{
			VerificationToken: appConfig.PubSubVerificationToken,
			Async:             appConfig.PubSubAsync,
		}))

		mailboxes := api.Group("/mailboxes")
		mailboxes.Use(middleware.APIKeyMiddleware(middleware.APIKeyConfig{
			HeaderName:  middleware.APIKeyHeader,
			ValidAPIKey: appConfig.APIKey,
		}))
		{
			mailboxes.POST("/:id/devices", handlers.RegisterDevice(repos))
			mailboxes.DELETE("/:id/devices/:token", handlers.UnregisterDevice(repos))
			mailboxes.POST("/:id/watch", handlers.StartWatch(repos, s.WatchService))
		}
	}
}
