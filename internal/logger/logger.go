// Package logger provides leveled logging for the autopilot engine.
//
// Implementations are thread-safe. All subsystems accept the Logger
// interface so tests can substitute NopLogger.
package logger

// Logger is the leveled logging interface accepted across the engine.
type Logger interface {
	LogTrace(message string)
	LogDebug(message string)
	LogInfo(message string)
	LogWarn(message string)
	LogError(message string)
}

// NopLogger discards all messages. Useful for tests and when logging is
// disabled.
type NopLogger struct{}

// NewNopLogger creates a NopLogger instance.
func NewNopLogger() *NopLogger {
	return &NopLogger{}
}

// LogTrace is a no-op implementation.
func (n *NopLogger) LogTrace(message string) {}

// LogDebug is a no-op implementation.
func (n *NopLogger) LogDebug(message string) {}

// LogInfo is a no-op implementation.
func (n *NopLogger) LogInfo(message string) {}

// LogWarn is a no-op implementation.
func (n *NopLogger) LogWarn(message string) {}

// LogError is a no-op implementation.
func (n *NopLogger) LogError(message string) {}
