// Package metering decides, per incoming request, whether a valid payment is
// required before the handler may run. Three policies are provided: fixed
// price, tiered price by request parameter, and free quota then pay. The
// gateway drives a strategy's decision to completion; strategies themselves
// never talk to the facilitator or the ledger.
package metering

import (
	"net/http"

	"github.com/dengrow/dengrow/types"
)

// DecisionKind tags the outcome of an evaluation.
type DecisionKind int

const (
	// DecisionAllow lets the handler run without payment.
	DecisionAllow DecisionKind = iota

	// DecisionRequirePayment demands a settled payment first.
	DecisionRequirePayment

	// DecisionReject refuses the request outright.
	DecisionReject
)

// Tier names the pricing/response-detail levels.
const (
	TierBasic   = "basic"
	TierPremium = "premium"
)

// Decision is the result of evaluating one request.
type Decision struct {
	Kind DecisionKind

	// Tier is set when the strategy selected a pricing tier; the gateway
	// records it into the request context so handlers can branch.
	Tier string

	// Requirements is set for DecisionRequirePayment.
	Requirements *types.PaymentRequirements

	// QuotaExhausted marks a RequirePayment decision caused by a spent free
	// quota, as opposed to an always-paid policy.
	QuotaExhausted bool

	// Reason is set for DecisionReject.
	Reason string
}

// Strategy is the common metering contract. Evaluate must be safe for
// concurrent use; any shared state lives behind the strategy's own store.
type Strategy interface {
	Evaluate(r *http.Request) Decision
}

// Allow is a free-path decision.
func Allow() Decision { return Decision{Kind: DecisionAllow} }

// RequirePayment demands the given payment.
func RequirePayment(reqs types.PaymentRequirements) Decision {
	return Decision{Kind: DecisionRequirePayment, Requirements: &reqs}
}

// Reject refuses the request.
func Reject(reason string) Decision {
	return Decision{Kind: DecisionReject, Reason: reason}
}

// FixedPrice charges the same amount for every request.
type FixedPrice struct {
	Requirements types.PaymentRequirements
}

// NewFixedPrice builds a fixed-price strategy.
func NewFixedPrice(reqs types.PaymentRequirements) *FixedPrice {
	return &FixedPrice{Requirements: reqs}
}

// Evaluate always requires payment; the gateway attaches the verified payer
// once a payload settles. The requirement is rebuilt per request so the
// resource URL reflects the request path.
func (s *FixedPrice) Evaluate(r *http.Request) Decision {
	reqs := s.Requirements
	reqs.Resource = r.URL.Path
	return RequirePayment(reqs)
}

// TierOption is one entry of a tiered price table.
type TierOption struct {
	Amount      string
	Description string
}

// TieredPrice selects a price by a request query parameter. Unrecognized
// values deterministically fall back to the default tier; a bad tier value is
// never a rejection.
type TieredPrice struct {
	Param       string
	Tiers       map[string]TierOption
	DefaultTier string
	Base        types.PaymentRequirements
}

// NewTieredPrice builds a tiered strategy. It panics if the default tier is
// not in the table, which is a configuration bug caught at startup.
func NewTieredPrice(param, defaultTier string, tiers map[string]TierOption, base types.PaymentRequirements) *TieredPrice {
	if _, ok := tiers[defaultTier]; !ok {
		panic("metering: default tier missing from tier table")
	}
	return &TieredPrice{Param: param, Tiers: tiers, DefaultTier: defaultTier, Base: base}
}

// Evaluate picks the tier from the query parameter and requires its price.
func (s *TieredPrice) Evaluate(r *http.Request) Decision {
	tier := r.URL.Query().Get(s.Param)
	option, ok := s.Tiers[tier]
	if !ok {
		tier = s.DefaultTier
		option = s.Tiers[tier]
	}

	reqs := s.Base
	reqs.MaxAmountRequired = option.Amount
	reqs.Description = option.Description
	reqs.Resource = r.URL.Path

	d := RequirePayment(reqs)
	d.Tier = tier
	return d
}
