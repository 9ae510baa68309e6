package metrics

import "time"

// NoopRecorder drops all measurements. It is the default when metrics are
// disabled in config, and the recorder tests and CLI commands run with.
type NoopRecorder struct{}

func (NoopRecorder) IncCounter(string, map[string]string)                    {}
func (NoopRecorder) ObserveLatency(string, time.Duration, map[string]string) {}
