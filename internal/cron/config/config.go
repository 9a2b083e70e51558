package cron_config

type Config struct {
	// Heartbeat check, every minute
	CronScheduleHeartbeat string `env:"CRON_SCHEDULE_HEARTBEAT" envDefault:"0 * * * * *"`
	// Incremental mailbox sync, every 15 minutes
	CronScheduleMailboxSync string `env:"CRON_SCHEDULE_MAILBOX_SYNC" envDefault:"0 */15 * * * *"`
	// Temp file sweep, daily at 03:00
	CronScheduleTempSweep string `env:"CRON_SCHEDULE_TEMP_SWEEP" envDefault:"0 0 3 * * *"`
}
