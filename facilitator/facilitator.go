// Package facilitator verifies and settles x402 payments against the Stacks
// ledger. Verification is purely structural; settlement broadcasts the
// client's signed transaction. Both entry points validate from scratch:
// /verify and /settle are independent network surfaces and neither trusts
// the other's side effects.
package facilitator

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dengrow/dengrow/logger"
	"github.com/dengrow/dengrow/metrics"
	"github.com/dengrow/dengrow/stacks"
	"github.com/dengrow/dengrow/types"
)

// Broadcaster is the slice of the ledger client settlement needs.
type Broadcaster interface {
	BroadcastRaw(ctx context.Context, raw []byte) (*stacks.BroadcastResult, error)
}

// Facilitator verifies and settles payments for a single (scheme, network)
// pair.
type Facilitator struct {
	broadcaster Broadcaster
	network     types.Network
	txVersion   byte
	timeout     time.Duration
	log         logger.Logger
	metrics     metrics.Recorder
}

// Option configures a Facilitator.
type Option func(*Facilitator)

func WithLogger(l logger.Logger) Option {
	return func(f *Facilitator) { f.log = l }
}

func WithMetrics(r metrics.Recorder) Option {
	return func(f *Facilitator) { f.metrics = r }
}

func WithTimeout(t time.Duration) Option {
	return func(f *Facilitator) { f.timeout = t }
}

// New builds a facilitator for the given network.
func New(b Broadcaster, network types.Network, opts ...Option) *Facilitator {
	f := &Facilitator{
		broadcaster: b,
		network:     network,
		txVersion:   stacks.VersionTestnet,
		timeout:     30 * time.Second,
		log:         logger.NoopLogger{},
		metrics:     metrics.NoopRecorder{},
	}
	if network == types.NetworkMainnet {
		f.txVersion = stacks.VersionMainnet
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Supported reports the (scheme, network) pairs this facilitator settles.
func (f *Facilitator) Supported() *types.SupportedResponse {
	return &types.SupportedResponse{
		Kinds: []types.SupportedItem{
			{
				X402Version: types.X402Version,
				Scheme:      string(types.SchemeExact),
				Network:     f.network.String(),
			},
		},
	}
}

// Verify checks that a payment payload is structurally settleable against
// the requirements. Every failure is reported through the result; Verify
// never mutates ledger state and never returns an error to the caller.
func (f *Facilitator) Verify(ctx context.Context, payload *types.PaymentPayload, reqs *types.PaymentRequirements) *types.VerificationResult {
	start := time.Now()
	defer func() {
		f.metrics.ObserveLatency(metrics.OpVerify, time.Since(start), map[string]string{"route": reqs.Resource})
	}()

	_, payer, reason := f.decodeAndCheck(payload, reqs)
	if reason != "" {
		f.log.Warn("payment verification failed", map[string]any{"reason": reason})
		return &types.VerificationResult{IsValid: false, InvalidReason: reason}
	}

	return &types.VerificationResult{IsValid: true, Payer: payer}
}

// Settle re-validates the payload from scratch and broadcasts the embedded
// transaction. Ledger rejections (including replayed transactions, which the
// node refuses by nonce) come back as a failed result, never a panic or an
// error escaping to the transport layer.
func (f *Facilitator) Settle(ctx context.Context, payload *types.PaymentPayload, reqs *types.PaymentRequirements) *types.SettlementResult {
	start := time.Now()
	defer func() {
		f.metrics.ObserveLatency(metrics.OpSettle, time.Since(start), map[string]string{"route": reqs.Resource})
	}()

	tx, payer, reason := f.decodeAndCheck(payload, reqs)
	if reason != "" {
		f.log.Warn("settlement refused before broadcast", map[string]any{"reason": reason})
		return &types.SettlementResult{Success: false, ErrorReason: reason, Network: f.network.String()}
	}

	settleCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	broadcastStart := time.Now()
	result, err := f.broadcaster.BroadcastRaw(settleCtx, tx.Bytes())
	f.metrics.ObserveLatency(metrics.OpBroadcast, time.Since(broadcastStart), map[string]string{"route": reqs.Resource})
	if err != nil {
		f.metrics.IncCounter(metrics.EventSettlementFailed, map[string]string{"route": reqs.Resource})
		f.log.Error("broadcast failed", map[string]any{"error": err.Error()})
		return &types.SettlementResult{
			Success:     false,
			ErrorReason: fmt.Sprintf("broadcast failed: %v", err),
			Network:     f.network.String(),
		}
	}
	if !result.OK {
		f.metrics.IncCounter(metrics.EventSettlementFailed, map[string]string{"route": reqs.Resource})
		return &types.SettlementResult{
			Success:     false,
			ErrorReason: result.Reason,
			Network:     f.network.String(),
		}
	}

	f.metrics.IncCounter(metrics.EventPaymentSettled, map[string]string{"route": reqs.Resource})
	f.log.Info("payment settled", map[string]any{"txid": result.TxID, "payer": payer})
	return &types.SettlementResult{
		Success: true,
		Payer:   payer,
		TxID:    result.TxID,
		Network: f.network.String(),
	}
}

// decodeAndCheck performs the shared structural validation: protocol fields,
// hex framing, wire decode, network, recipient, and amount. It returns the
// decoded transaction and payer on success, or a non-empty reason.
func (f *Facilitator) decodeAndCheck(payload *types.PaymentPayload, reqs *types.PaymentRequirements) (*stacks.Transaction, string, string) {
	if payload == nil {
		return nil, "", "missing payment payload"
	}
	if payload.X402Version != types.X402Version {
		return nil, "", fmt.Sprintf("unsupported x402 version %d", payload.X402Version)
	}
	if payload.Scheme != string(types.SchemeExact) {
		return nil, "", fmt.Sprintf("unsupported scheme %q", payload.Scheme)
	}
	if payload.Network != f.network.String() {
		return nil, "", fmt.Sprintf("unsupported network %q", payload.Network)
	}
	if reqs != nil && payload.Network != reqs.Network {
		return nil, "", "payload network does not match requirements network"
	}

	raw, err := hex.DecodeString(strings.TrimPrefix(payload.Payload.Transaction, "0x"))
	if err != nil {
		return nil, "", fmt.Sprintf("transaction is not hex: %v", err)
	}
	tx, err := stacks.DecodeTransaction(raw)
	if err != nil {
		return nil, "", fmt.Sprintf("transaction decode failed: %v", err)
	}
	if tx.Version != f.txVersion {
		return nil, "", "transaction is for a different network"
	}
	if tx.Transfer == nil {
		return nil, "", "transaction is not an STX transfer"
	}

	payer := tx.SenderAddress()
	if asserted := payload.Payload.Payer; asserted != "" && asserted != payer {
		return nil, "", "asserted payer does not match transaction signer"
	}

	if reqs != nil {
		if tx.Transfer.Recipient != reqs.PayTo {
			return nil, "", "recipient does not match payTo"
		}
		required, err := decimal.NewFromString(reqs.MaxAmountRequired)
		if err != nil {
			return nil, "", fmt.Sprintf("invalid required amount: %v", err)
		}
		paid := decimal.NewFromBigInt(new(big.Int).SetUint64(tx.Transfer.Amount), 0)
		if paid.LessThan(required) {
			return nil, "", fmt.Sprintf("insufficient amount: got %s, need %s", paid, required)
		}
	}

	return tx, payer, ""
}
