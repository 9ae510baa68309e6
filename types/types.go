// Package types defines the x402 protocol types exchanged between the
// DenGrow gateway, the self-hosted facilitator, and paying clients.
package types

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// X402Version is the protocol version this service speaks.
const X402Version = 1

// Network identifies the ledger a payment settles on.
type Network string

const (
	NetworkMainnet Network = "mainnet"
	NetworkTestnet Network = "testnet"
)

func (n Network) String() string { return string(n) }

// PaymentScheme identifies how the amount in a requirement is interpreted.
type PaymentScheme string

const (
	SchemeExact PaymentScheme = "exact"
)

// microSTXPerSTX is the smallest-unit scale of the settlement currency.
var microSTXPerSTX = decimal.NewFromInt(1_000_000)

// STXToMicroSTX converts a decimal STX amount to an integer microSTX string,
// the unit PaymentRequirements carry on the wire.
func STXToMicroSTX(stx decimal.Decimal) string {
	return stx.Mul(microSTXPerSTX).Truncate(0).String()
}

// PaymentRequirements describes what a single request must pay. It is
// constructed fresh per evaluation; tiered pricing varies the amount and
// description between requests.
type PaymentRequirements struct {
	// Scheme of the payment protocol to use. Only "exact" is supported.
	Scheme string `json:"scheme" validate:"required,eq=exact"`

	// Network the payment must settle on, e.g. "testnet".
	Network string `json:"network" validate:"required"`

	// MaxAmountRequired is the price in microSTX, as a base-10 string.
	MaxAmountRequired string `json:"maxAmountRequired" validate:"required,number"`

	// Resource is the URL of the resource being paid for.
	Resource string `json:"resource,omitempty"`

	// Description of what the payment buys.
	Description string `json:"description"`

	// PayTo is the address the payment must be sent to.
	PayTo string `json:"payTo" validate:"required"`
}

// Validate checks the fields a facilitator needs before it will verify or
// settle against these requirements.
func (pr *PaymentRequirements) Validate() error {
	if pr.Scheme == "" {
		return fmt.Errorf("paymentRequirements.scheme is required")
	}
	if pr.Network == "" {
		return fmt.Errorf("paymentRequirements.network is required")
	}
	if pr.PayTo == "" {
		return fmt.Errorf("paymentRequirements.payTo is required")
	}
	if _, err := decimal.NewFromString(pr.MaxAmountRequired); err != nil {
		return fmt.Errorf("paymentRequirements.maxAmountRequired is not a number: %w", err)
	}
	return nil
}

// ExactPayload is the scheme-specific half of a PaymentPayload: the signed
// settlement transaction plus the payer address the client asserts.
type ExactPayload struct {
	// Transaction is the hex-encoded signed transaction.
	Transaction string `json:"transaction"`

	// Payer is the address that signed the transaction.
	Payer string `json:"payer,omitempty"`
}

// PaymentPayload is the client-submitted proof of payment. The gateway treats
// it as opaque except for the embedded transaction, which the facilitator
// decodes and broadcasts.
type PaymentPayload struct {
	X402Version int          `json:"x402Version"`
	Scheme      string       `json:"scheme"`
	Network     string       `json:"network"`
	Payload     ExactPayload `json:"payload"`
}

// VerifyRequest is the envelope POSTed to the facilitator /verify and
// /settle endpoints.
type VerifyRequest struct {
	X402Version         int                 `json:"x402Version"`
	PaymentPayload      PaymentPayload      `json:"paymentPayload"`
	PaymentRequirements PaymentRequirements `json:"paymentRequirements"`
}

// Validate checks that the VerifyRequest carries the required fields.
func (v *VerifyRequest) Validate() error {
	if v.X402Version <= 0 {
		return fmt.Errorf("x402Version must be greater than 0")
	}
	if v.PaymentPayload.Payload.Transaction == "" {
		return fmt.Errorf("paymentPayload is required")
	}
	return v.PaymentRequirements.Validate()
}

// VerificationResult is the facilitator's answer to /verify. Invalid payloads
// are reported through IsValid/InvalidReason, never as an error.
type VerificationResult struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

// SettlementResult is the facilitator's answer to /settle. Broadcast
// rejections (including duplicate transactions) are reported through
// Success/ErrorReason, never as an error.
type SettlementResult struct {
	Success     bool   `json:"success"`
	Payer       string `json:"payer,omitempty"`
	TxID        string `json:"txId,omitempty"`
	Network     string `json:"network,omitempty"`
	ErrorReason string `json:"errorReason,omitempty"`
}

// SupportedItem is one (scheme, network) pair the facilitator can settle.
type SupportedItem struct {
	X402Version int    `json:"x402Version"`
	Scheme      string `json:"scheme"`
	Network     string `json:"network"`
}

// SupportedResponse is the facilitator capability discovery document.
type SupportedResponse struct {
	Kinds []SupportedItem `json:"kinds"`
}

// X402Response is the body of a 402 challenge: the payment options the
// server accepts for the requested resource.
type X402Response struct {
	X402Version int                   `json:"x402Version"`
	Accepts     []PaymentRequirements `json:"accepts"`
	Error       string                `json:"error,omitempty"`
}

// X402Error is a structured protocol error.
type X402Error struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e X402Error) Error() string {
	return e.Message
}

// Protocol error codes.
const (
	ErrInvalidPayload      = "INVALID_PAYLOAD"
	ErrInvalidRequirements = "INVALID_REQUIREMENTS"
	ErrUnsupportedNetwork  = "UNSUPPORTED_NETWORK"
	ErrUnsupportedScheme   = "UNSUPPORTED_SCHEME"
	ErrVerificationFailed  = "VERIFICATION_FAILED"
	ErrSettlementFailed    = "SETTLEMENT_FAILED"
	ErrNetworkError        = "NETWORK_ERROR"
	ErrConfigError         = "CONFIG_ERROR"
)
