package errors

import (
	"fmt"

	"focustrack/internal/infrastructure/logging"
)

// LoggerBridge adapts logging.Logger to RetryLogger
type LoggerBridge struct {
	logger logging.Logger
}

// NewLoggerBridge creates a new bridge from logging.Logger to RetryLogger
func NewLoggerBridge(logger logging.Logger) RetryLogger {
	return &LoggerBridge{logger: logger}
}

// Printf formats the message and emits it as a warning with a retry marker
func (b *LoggerBridge) Printf(format string, v ...interface{}) {
	if b.logger != nil {
		b.logger.Warn(fmt.Sprintf(format, v...), "source", "retry")
	}
}

// InstallRetryLogger routes retry messages to the given logger
func InstallRetryLogger(logger logging.Logger) {
	SetRetryLogger(NewLoggerBridge(logger))
}
