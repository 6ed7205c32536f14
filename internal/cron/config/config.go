package cron_config

type Config struct {
	// Heartbeat check, every minute
	CronScheduleHeartbeat string `env:"CRON_SCHEDULE_HEARTBEAT" envDefault:"0 * * * * *"`
	// Gmail watch renewal, every hour
	CronScheduleWatchRenewal string `env:"CRON_SCHEDULE_WATCH_RENEWAL" envDefault:"0 0 * * * *"`
}
