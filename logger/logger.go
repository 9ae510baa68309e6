// Package logger is the structured-logging surface the gateway, facilitator,
// and ledger client share. Implementations must be safe for concurrent use;
// fields carry request-scoped context like token ids, txids, and payers.
package logger

// Logger is the leveled sink components log into. Production wiring uses the
// zap implementation; collaborators constructed without a logger get the noop.
type Logger interface {
	Debug(msg string, fields map[string]any)
	Info(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
}

// NoopLogger discards everything. Tests and the read-only CLI commands use it.
type NoopLogger struct{}

func (NoopLogger) Debug(string, map[string]any) {}
func (NoopLogger) Info(string, map[string]any)  {}
func (NoopLogger) Warn(string, map[string]any)  {}
func (NoopLogger) Error(string, map[string]any) {}
