// Package gateway routes requests through a metering strategy and, when the
// strategy demands payment, through the facilitator's verify and settle
// steps before the handler runs. Per request the flow is a small state
// machine: Evaluating -> Allowed, or Evaluating -> challenge (402) ->
// Verifying -> Settling -> Allowed/Rejected. The gateway holds no state
// between requests; the only shared mutable state in the system is the quota
// store owned by the free-quota strategy.
package gateway

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dengrow/dengrow/logger"
	"github.com/dengrow/dengrow/metering"
	"github.com/dengrow/dengrow/metrics"
	"github.com/dengrow/dengrow/types"
)

// Header names of the x402 transport binding.
const (
	PaymentHeader         = "X-Payment"
	PaymentResponseHeader = "X-Payment-Response"
)

// Context keys for values the middleware hands to handlers.
const (
	payerContextKey = "dengrow_payer"
	tierContextKey  = "dengrow_tier"
)

// Settler is the facilitator surface the gateway drives.
type Settler interface {
	Verify(ctx context.Context, payload *types.PaymentPayload, reqs *types.PaymentRequirements) *types.VerificationResult
	Settle(ctx context.Context, payload *types.PaymentPayload, reqs *types.PaymentRequirements) *types.SettlementResult
}

// Payment builds the gin middleware gating a route with the given strategy.
// Handlers behind it run at most once per request, and only after either a
// free Allow decision or a verified and settled payment.
func Payment(strategy metering.Strategy, settler Settler, log logger.Logger, rec metrics.Recorder) gin.HandlerFunc {
	if log == nil {
		log = logger.NoopLogger{}
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}

	return func(c *gin.Context) {
		route := c.FullPath()
		decision := strategy.Evaluate(c.Request)

		switch decision.Kind {
		case metering.DecisionReject:
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": decision.Reason})
			return

		case metering.DecisionAllow:
			if decision.Tier != "" {
				c.Set(tierContextKey, decision.Tier)
			}
			rec.IncCounter(metrics.EventQuotaFree, map[string]string{"route": route})
			c.Next()
			return
		}

		reqs := decision.Requirements
		if decision.Tier != "" {
			c.Set(tierContextKey, decision.Tier)
		}
		if decision.QuotaExhausted {
			rec.IncCounter(metrics.EventQuotaExhausted, map[string]string{"route": route})
		}

		header := c.GetHeader(PaymentHeader)
		if header == "" {
			// Stateless challenge: the client is expected to resubmit the
			// same request with a payment payload attached.
			log.Info("payment required", map[string]any{"path": c.Request.URL.Path, "amount": reqs.MaxAmountRequired})
			rec.IncCounter(metrics.EventPaymentChallenged, map[string]string{"route": route})
			sendPaymentRequired(c, reqs, "Payment required")
			return
		}

		payment, err := DecodePaymentHeader(header)
		if err != nil {
			log.Warn("malformed payment header", map[string]any{"error": err.Error()})
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"x402Version": types.X402Version,
				"error":       "Invalid payment header",
			})
			return
		}

		verification := settler.Verify(c.Request.Context(), payment, reqs)
		if !verification.IsValid {
			log.Warn("payment rejected", map[string]any{"reason": verification.InvalidReason})
			rec.IncCounter(metrics.EventPaymentRejected, map[string]string{"route": route})
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"x402Version": types.X402Version,
				"error":       verification.InvalidReason,
			})
			return
		}
		rec.IncCounter(metrics.EventPaymentVerified, map[string]string{"route": route})

		settlement := settler.Settle(c.Request.Context(), payment, reqs)
		if !settlement.Success {
			log.Warn("settlement failed", map[string]any{"reason": settlement.ErrorReason})
			sendPaymentRequired(c, reqs, settlement.ErrorReason)
			return
		}

		if encoded, err := EncodeSettlementHeader(settlement); err == nil {
			c.Header(PaymentResponseHeader, encoded)
		}

		c.Set(payerContextKey, settlement.Payer)
		c.Next()
	}
}

// sendPaymentRequired writes the 402 challenge embedding the payment
// requirements a compliant client needs to construct a payload.
func sendPaymentRequired(c *gin.Context, reqs *types.PaymentRequirements, errMsg string) {
	c.AbortWithStatusJSON(http.StatusPaymentRequired, types.X402Response{
		X402Version: types.X402Version,
		Accepts:     []types.PaymentRequirements{*reqs},
		Error:       errMsg,
	})
}

// Payer returns the settled payer address, if the request paid.
func Payer(c *gin.Context) string {
	payer, _ := c.Value(payerContextKey).(string)
	return payer
}

// Tier returns the pricing tier the metering strategy selected, if any.
func Tier(c *gin.Context) string {
	tier, _ := c.Value(tierContextKey).(string)
	return tier
}
