package daemon

import (
	"log/slog"

	"github.com/robfig/cron/v3"

	"mltscript/internal/logging"
)

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

var _ cron.Logger = cronLogger{}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("scheduler: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	logging.WarnWithContext(l.logger, "scheduler: "+msg, "scheduler_error",
		logging.Error(err),
		logging.Any("details", keysAndValues),
		logging.String(logging.FieldImpact, "a scheduled reload was skipped"))
}
