package gateway

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/dengrow/dengrow/types"
)

// DecodePaymentHeader converts the base64(JSON) X-Payment header value into
// a PaymentPayload.
func DecodePaymentHeader(encoded string) (*types.PaymentPayload, error) {
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode payment header base64: %w", err)
	}
	var payment types.PaymentPayload
	if err := json.Unmarshal(decoded, &payment); err != nil {
		return nil, fmt.Errorf("unmarshal payment header: %w", err)
	}
	return &payment, nil
}

// EncodeSettlementHeader renders a settlement result for the
// X-Payment-Response header.
func EncodeSettlementHeader(settlement *types.SettlementResult) (string, error) {
	data, err := json.Marshal(settlement)
	if err != nil {
		return "", fmt.Errorf("marshal settlement: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// EncodePaymentHeader is the inverse of DecodePaymentHeader, used by tests
// and client tooling.
func EncodePaymentHeader(payment *types.PaymentPayload) (string, error) {
	data, err := json.Marshal(payment)
	if err != nil {
		return "", fmt.Errorf("marshal payment: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
