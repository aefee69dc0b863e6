package logging

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// CronLogger adapts an slog.Logger to cron.Logger so scheduled jobs log
// through the same handler as the rest of the process.
type CronLogger struct {
	logger *slog.Logger
}

var _ cron.Logger = (*CronLogger)(nil)

// NewCronLogger creates a CronLogger. If logger is nil, slog.Default() is used.
func NewCronLogger(logger *slog.Logger) *CronLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &CronLogger{logger: logger.With(slog.String("component", "cron"))}
}

// Info logs routine scheduler messages at debug level; cron reports every
// wake-up and job start here.
func (c *CronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.logger.Debug(msg, keysAndValues...)
}

// Error logs scheduler failures, including recovered job panics.
func (c *CronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	args := append([]interface{}{Err(err)}, keysAndValues...)
	c.logger.Error(msg, args...)
}

// Logger returns the underlying slog.Logger.
func (c *CronLogger) Logger() *slog.Logger {
	return c.logger
}
