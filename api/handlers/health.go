package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthCheck provides a simple health check endpoint
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// StatusInfo describes the runtime wiring reported by /status.
type StatusInfo struct {
	LockMode       string
	AsyncIngestion bool
	EventsEnabled  bool
	// CronJobs returns the names of the registered cron jobs; nil when cron is off
	CronJobs func() []string
}

func Status(info StatusInfo) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobs := []string{}
		if info.CronJobs != nil {
			jobs = append(jobs, info.CronJobs()...)
		}
		c.JSON(http.StatusOK, gin.H{
			"status":         "ok",
			"lockMode":       info.LockMode,
			"asyncIngestion": info.AsyncIngestion,
			"eventsEnabled":  info.EventsEnabled,
			"cronJobs":       jobs,
		})
	}
}
