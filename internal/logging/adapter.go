package logging

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// CronAdapter adapts an slog.Logger to cron.Logger.
//
// cron reports every wake-up and schedule at info level, which is noise for
// a job running every few minutes, so Info is logged at debug level.
type CronAdapter struct {
	logger *slog.Logger
}

var _ cron.Logger = (*CronAdapter)(nil)

// NewCronAdapter creates a new CronAdapter wrapping the given slog.Logger.
// If logger is nil, slog.Default() is used.
func NewCronAdapter(logger *slog.Logger) *CronAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CronAdapter{logger: logger}
}

// Info logs a routine cron message at debug level.
// Arguments are alternating key-value pairs: key1, value1, key2, value2, ...
func (a *CronAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Debug(msg, keysAndValues...)
}

// Error logs a cron failure, such as a recovered panic, at error level.
func (a *CronAdapter) Error(err error, msg string, keysAndValues ...interface{}) {
	args := append([]interface{}{Err(err)}, keysAndValues...)
	a.logger.Error(msg, args...)
}

// Logger returns the underlying slog.Logger for direct access when needed.
func (a *CronAdapter) Logger() *slog.Logger {
	return a.logger
}
