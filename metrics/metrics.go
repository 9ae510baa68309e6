// Package metrics records payment-gateway counters and latencies.
package metrics

import "time"

// Recorder is the sink the gateway, facilitator, and metering strategies
// report into.
type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}

// Event and operation names used across the service.
const (
	EventPaymentChallenged = "payment_challenged"
	EventPaymentVerified   = "payment_verified"
	EventPaymentRejected   = "payment_rejected"
	EventPaymentSettled    = "payment_settled"
	EventSettlementFailed  = "settlement_failed"
	EventQuotaFree         = "quota_free"
	EventQuotaExhausted    = "quota_exhausted"

	OpVerify    = "verify"
	OpSettle    = "settle"
	OpBroadcast = "broadcast"
)
