package server

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dengrow/dengrow/config"
	"github.com/dengrow/dengrow/facilitator"
	"github.com/dengrow/dengrow/gateway"
	"github.com/dengrow/dengrow/stacks"
	"github.com/dengrow/dengrow/types"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const serviceAddress = "ST23SRWT9A0CYMPW4Q32D0D7KT2YY07PQAVJY3NJZ"

type fakeLedger struct {
	plant     *stacks.Plant
	plantErr  error
	canWater  bool
	water     *stacks.BroadcastResult
	waterErr  error
	events    []stacks.FeedEvent
	eventsErr error
	stats     *stacks.PoolStats
	height    uint64
	lastToken uint64

	waterCalls     int
	broadcastCalls int
}

func (f *fakeLedger) GetPlant(ctx context.Context, tokenID uint64) (*stacks.Plant, error) {
	if f.plantErr != nil {
		return nil, f.plantErr
	}
	return f.plant, nil
}

func (f *fakeLedger) CanWater(ctx context.Context, tokenID uint64) (bool, error) {
	return f.canWater, nil
}

func (f *fakeLedger) GetPoolStats(ctx context.Context) (*stacks.PoolStats, error) {
	return f.stats, nil
}

func (f *fakeLedger) GetLastTokenID(ctx context.Context) (uint64, error) {
	return f.lastToken, nil
}

func (f *fakeLedger) CurrentBlockHeight(ctx context.Context) (uint64, error) {
	return f.height, nil
}

func (f *fakeLedger) Water(ctx context.Context, tokenID uint64) (*stacks.BroadcastResult, error) {
	f.waterCalls++
	return f.water, f.waterErr
}

func (f *fakeLedger) BroadcastRaw(ctx context.Context, raw []byte) (*stacks.BroadcastResult, error) {
	f.broadcastCalls++
	return &stacks.BroadcastResult{OK: true, TxID: "settletxid"}, nil
}

func (f *fakeLedger) RecentEvents(ctx context.Context, limit int) ([]stacks.FeedEvent, error) {
	if f.eventsErr != nil {
		return nil, f.eventsErr
	}
	if limit < len(f.events) {
		return f.events[:limit], nil
	}
	return f.events, nil
}

func testConfig() *config.Config {
	return &config.Config{
		ServiceKey: "unused",
		Port:       3402,
		Network:    "testnet",
		StacksAPI:  "http://stacks.invalid",
		LogLevel:   "info",
		Prices: config.Prices{
			Water:        decimal.RequireFromString("0.001"),
			PlantBasic:   decimal.RequireFromString("0.0001"),
			PlantPremium: decimal.RequireFromString("0.001"),
			Feed:         decimal.RequireFromString("0.001"),
		},
		FeedFreeLimit: 2,
		FeedWindow:    time.Hour,
	}
}

func testRouter(ledger *fakeLedger) *gin.Engine {
	fac := facilitator.New(ledger, types.NetworkTestnet)
	return New(testConfig(), ledger, fac, serviceAddress, nil, nil).Router()
}

// paymentHeader builds a settleable X-Payment value: a transfer of amount
// microSTX to the service address.
func paymentHeader(t *testing.T, amount uint64) (string, string) {
	t.Helper()
	tx := &stacks.Transaction{
		Version:           stacks.VersionTestnet,
		ChainID:           0x80000000,
		AnchorMode:        0x03,
		PostConditionMode: 0x02,
		Transfer:          &stacks.TokenTransfer{Recipient: serviceAddress, Amount: amount},
	}
	tx.Auth.Signer[0] = 0x42

	header, err := gateway.EncodePaymentHeader(&types.PaymentPayload{
		X402Version: types.X402Version,
		Scheme:      string(types.SchemeExact),
		Network:     "testnet",
		Payload:     types.ExactPayload{Transaction: hex.EncodeToString(tx.Bytes())},
	})
	require.NoError(t, err)
	return header, tx.SenderAddress()
}

func TestHealth(t *testing.T) {
	r := testRouter(&fakeLedger{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), serviceAddress)
	assert.Contains(t, w.Body.String(), "testnet")
}

func TestSupportedEndpoint(t *testing.T) {
	r := testRouter(&fakeLedger{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/supported", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var supported types.SupportedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &supported))
	require.Len(t, supported.Kinds, 1)
	assert.Equal(t, "exact", supported.Kinds[0].Scheme)
}

func TestVerifyEndpoint(t *testing.T) {
	r := testRouter(&fakeLedger{})

	header, payer := paymentHeader(t, 1000)
	payload, err := gateway.DecodePaymentHeader(header)
	require.NoError(t, err)

	body, err := json.Marshal(types.VerifyRequest{
		X402Version:    types.X402Version,
		PaymentPayload: *payload,
		PaymentRequirements: types.PaymentRequirements{
			Scheme:            "exact",
			Network:           "testnet",
			MaxAmountRequired: "1000",
			PayTo:             serviceAddress,
		},
	})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/verify", strings.NewReader(string(body))))

	require.Equal(t, http.StatusOK, w.Code)
	var result types.VerificationResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.IsValid, result.InvalidReason)
	assert.Equal(t, payer, result.Payer)
}

func TestVerifyEndpointBadBody(t *testing.T) {
	r := testRouter(&fakeLedger{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/verify", strings.NewReader("{not json")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSettleEndpoint(t *testing.T) {
	ledger := &fakeLedger{}
	r := testRouter(ledger)

	header, _ := paymentHeader(t, 1000)
	payload, err := gateway.DecodePaymentHeader(header)
	require.NoError(t, err)

	body, err := json.Marshal(types.VerifyRequest{
		X402Version:    types.X402Version,
		PaymentPayload: *payload,
		PaymentRequirements: types.PaymentRequirements{
			Scheme:            "exact",
			Network:           "testnet",
			MaxAmountRequired: "1000",
			PayTo:             serviceAddress,
		},
	})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/settle", strings.NewReader(string(body))))

	require.Equal(t, http.StatusOK, w.Code)
	var result types.SettlementResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.Success, result.ErrorReason)
	assert.Equal(t, "settletxid", result.TxID)
	assert.Equal(t, 1, ledger.broadcastCalls)
}

func TestWaterChallenge(t *testing.T) {
	ledger := &fakeLedger{canWater: true}
	r := testRouter(ledger)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/water/101", nil))

	require.Equal(t, http.StatusPaymentRequired, w.Code)
	var challenge types.X402Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &challenge))
	require.Len(t, challenge.Accepts, 1)
	assert.Equal(t, "1000", challenge.Accepts[0].MaxAmountRequired)
	assert.Equal(t, serviceAddress, challenge.Accepts[0].PayTo)
	assert.Equal(t, 0, ledger.waterCalls)
}

func TestWaterPaid(t *testing.T) {
	ledger := &fakeLedger{
		canWater: true,
		water:    &stacks.BroadcastResult{OK: true, TxID: "watertxid"},
	}
	r := testRouter(ledger)

	header, payer := paymentHeader(t, 1000)
	req := httptest.NewRequest("POST", "/water/101", nil)
	req.Header.Set(gateway.PaymentHeader, header)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1, ledger.broadcastCalls)
	assert.Equal(t, 1, ledger.waterCalls)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "watertxid", body["txid"])
	assert.Equal(t, payer, body["payer"])
	assert.Contains(t, body["explorerUrl"], "watertxid")

	assert.NotEmpty(t, w.Header().Get(gateway.PaymentResponseHeader))
}

func TestWaterCooldown(t *testing.T) {
	ledger := &fakeLedger{canWater: false}
	r := testRouter(ledger)

	header, _ := paymentHeader(t, 1000)
	req := httptest.NewRequest("POST", "/water/101", nil)
	req.Header.Set(gateway.PaymentHeader, header)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "cannot be watered")
	assert.Equal(t, 0, ledger.waterCalls)
}

func TestWaterInvalidTokenID(t *testing.T) {
	ledger := &fakeLedger{canWater: true}
	r := testRouter(ledger)

	header, _ := paymentHeader(t, 1000)
	for _, id := range []string{"abc", "0", "-3"} {
		req := httptest.NewRequest("POST", "/water/"+id, nil)
		req.Header.Set(gateway.PaymentHeader, header)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, "token %q", id)
	}
	assert.Equal(t, 0, ledger.waterCalls)
}

func TestPlantBasic(t *testing.T) {
	ledger := &fakeLedger{
		plant: &stacks.Plant{Stage: 1, GrowthPoints: 5, LastWaterBlock: 100, Owner: serviceAddress},
	}
	r := testRouter(ledger)

	header, _ := paymentHeader(t, 100)
	req := httptest.NewRequest("GET", "/plant/150", nil)
	req.Header.Set(gateway.PaymentHeader, header)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Sprout", body["stageName"])
	assert.Equal(t, float64(5), body["growthPoints"])
	assert.Equal(t, "basic", body["tier"])
	assert.NotContains(t, body, "impactScore")
	assert.NotContains(t, body, "poolStats")
}

func TestPlantPremium(t *testing.T) {
	ledger := &fakeLedger{
		plant:    &stacks.Plant{Stage: 2, GrowthPoints: 14, LastWaterBlock: 100, Owner: serviceAddress},
		canWater: true,
		height:   107,
		stats:    &stacks.PoolStats{TotalGraduated: 3, CurrentPoolSize: 2},
	}
	r := testRouter(ledger)

	// The premium tier costs more.
	header, _ := paymentHeader(t, 1000)
	req := httptest.NewRequest("GET", "/plant/150?tier=premium", nil)
	req.Header.Set(gateway.PaymentHeader, header)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "premium", body["tier"])
	assert.Equal(t, true, body["canWater"])
	assert.Contains(t, body, "impactScore")
	assert.Contains(t, body, "poolStats")
}

func TestPlantPremiumChallengePrice(t *testing.T) {
	r := testRouter(&fakeLedger{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/plant/150?tier=premium", nil))

	require.Equal(t, http.StatusPaymentRequired, w.Code)
	var challenge types.X402Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &challenge))
	require.Len(t, challenge.Accepts, 1)
	assert.Equal(t, "1000", challenge.Accepts[0].MaxAmountRequired)
}

func TestPlantNotFound(t *testing.T) {
	ledger := &fakeLedger{plantErr: stacks.ErrNotFound}
	r := testRouter(ledger)

	header, _ := paymentHeader(t, 100)
	req := httptest.NewRequest("GET", "/plant/9999", nil)
	req.Header.Set(gateway.PaymentHeader, header)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFeedFreeThenPaid(t *testing.T) {
	tokenID := uint64(101)
	ledger := &fakeLedger{
		events: []stacks.FeedEvent{
			{Type: "water", TokenID: &tokenID, Actor: serviceAddress, BlockHeight: 500, TxID: "feedtx"},
		},
	}
	r := testRouter(ledger)

	// FeedFreeLimit is 2 in the test config.
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("GET", "/feed", nil))
		require.Equal(t, http.StatusOK, w.Code, "free request %d", i+1)
		assert.Contains(t, w.Body.String(), "feedtx")
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/feed", nil))
	require.Equal(t, http.StatusPaymentRequired, w.Code)

	// Paying clears the gate.
	header, _ := paymentHeader(t, 1000)
	req := httptest.NewRequest("GET", "/feed", nil)
	req.Header.Set(gateway.PaymentHeader, header)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestFeedUpstreamError(t *testing.T) {
	ledger := &fakeLedger{eventsErr: context.DeadlineExceeded}
	r := testRouter(ledger)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/feed", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
