package logger

import (
	"go.uber.org/zap"
)

// LoggerAdapter pairs the general process logger with the optional
// categorized file loggers, so callers never need nil checks.
type LoggerAdapter struct {
	general     *zap.Logger
	multiLogger *MultiLogger
}

// NewLoggerAdapter creates an adapter; multiLogger may be nil
func NewLoggerAdapter(general *zap.Logger, multiLogger *MultiLogger) *LoggerAdapter {
	if general == nil {
		general = zap.NewNop()
	}
	return &LoggerAdapter{general: general, multiLogger: multiLogger}
}

// General returns the process logger
func (la *LoggerAdapter) General() *zap.Logger {
	return la.general
}

// Queue returns the queue event logger, or the general logger without files
func (la *LoggerAdapter) Queue() *zap.Logger {
	if la.multiLogger != nil {
		return la.multiLogger.Queue()
	}
	return la.general
}

// LogQueueEvent records a queue lifecycle event
func (la *LoggerAdapter) LogQueueEvent(event string, fields ...zap.Field) {
	la.Queue().Info(event, fields...)
}

// LogError logs to the general logger and to the error file when present
func (la *LoggerAdapter) LogError(msg string, fields ...zap.Field) {
	la.general.Error(msg, fields...)
	if la.multiLogger != nil {
		la.multiLogger.LogAppError(msg, fields...)
	}
}

// MultiLogger returns the categorized logger, which may be nil
func (la *LoggerAdapter) MultiLogger() *MultiLogger {
	return la.multiLogger
}

// Sync flushes all loggers
func (la *LoggerAdapter) Sync() error {
	err := la.general.Sync()
	if la.multiLogger != nil {
		if mErr := la.multiLogger.Sync(); mErr != nil {
			err = mErr
		}
	}
	return err
}
