// Package stacks is the ledger collaborator: read-only contract calls,
// structural decoding of signed transactions, raw broadcast, and submission
// of the single water() mutation the service performs with its operator key.
// It speaks to a Hiro-style Stacks API over HTTP.
package stacks

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dengrow/dengrow/logger"
)

// ErrNotFound is returned when the addressed plant does not exist on chain.
var ErrNotFound = errors.New("plant not found")

// StageNames maps the on-chain growth stage to its display name.
var StageNames = [...]string{"Seed", "Sprout", "Plant", "Bloom", "Tree"}

// StageTree is the terminal growth stage; a Tree can no longer be watered.
const StageTree = 4

// TokenIDOffset is where plant-nft-v4 starts token IDs, avoiding legacy
// collisions.
const TokenIDOffset = 100

// MaxGrowthPoints is the growth-point total at which a plant graduates.
const MaxGrowthPoints = 28

// Plant is the ledger-resident game entity.
type Plant struct {
	Stage          uint64 `json:"stage"`
	GrowthPoints   uint64 `json:"growthPoints"`
	LastWaterBlock uint64 `json:"lastWaterBlock"`
	Owner          string `json:"owner"`
}

// StageName returns the display name for the plant's stage.
func (p *Plant) StageName() string {
	if p.Stage < uint64(len(StageNames)) {
		return StageNames[p.Stage]
	}
	return "Unknown"
}

// PoolStats is the impact-registry pool aggregate.
type PoolStats struct {
	TotalGraduated  uint64 `json:"totalGraduated"`
	TotalRedeemed   uint64 `json:"totalRedeemed"`
	CurrentPoolSize uint64 `json:"currentPoolSize"`
	TotalBatches    uint64 `json:"totalBatches"`
}

// BroadcastResult normalizes the node's broadcast response into one tagged
// shape: accepted with a txid, or rejected with a reason.
type BroadcastResult struct {
	OK     bool
	TxID   string
	Reason string
}

// FeedEvent is one successful game mutation observed on chain.
type FeedEvent struct {
	Type        string  `json:"type"`
	TokenID     *uint64 `json:"tokenId"`
	Actor       string  `json:"actor"`
	BlockHeight uint64  `json:"blockHeight"`
	TxID        string  `json:"txid"`
}

// Contracts names the deployed game contracts.
type Contracts struct {
	Deployer string
	Game     string
	Storage  string
	NFT      string
	Impact   string
}

// DefaultContracts are the DenGrow testnet deployments.
var DefaultContracts = Contracts{
	Deployer: "ST23SRWT9A0CYMPW4Q32D0D7KT2YY07PQAVJY3NJZ",
	Game:     "plant-game-v3",
	Storage:  "plant-storage",
	NFT:      "plant-nft-v4",
	Impact:   "impact-registry-v2",
}

// Client is the ledger surface the handlers consume.
type Client interface {
	GetPlant(ctx context.Context, tokenID uint64) (*Plant, error)
	CanWater(ctx context.Context, tokenID uint64) (bool, error)
	GetPoolStats(ctx context.Context) (*PoolStats, error)
	GetLastTokenID(ctx context.Context) (uint64, error)
	CurrentBlockHeight(ctx context.Context) (uint64, error)
	Water(ctx context.Context, tokenID uint64) (*BroadcastResult, error)
	BroadcastRaw(ctx context.Context, raw []byte) (*BroadcastResult, error)
	RecentEvents(ctx context.Context, limit int) ([]FeedEvent, error)
}

// HTTPClient implements Client against a Hiro-style Stacks API.
type HTTPClient struct {
	apiURL    string
	network   byte
	contracts Contracts
	signer    *Signer
	fee       uint64
	http      *http.Client
	log       logger.Logger
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient builds the ledger client. signer may be nil for read-only
// use (CLI tools); Water then fails.
func NewHTTPClient(apiURL string, network byte, contracts Contracts, signer *Signer, feeMicroSTX uint64, log logger.Logger) *HTTPClient {
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &HTTPClient{
		apiURL:    strings.TrimRight(apiURL, "/"),
		network:   network,
		contracts: contracts,
		signer:    signer,
		fee:       feeMicroSTX,
		http:      &http.Client{Timeout: 30 * time.Second},
		log:       log,
	}
}

type readOnlyRequest struct {
	Sender    string   `json:"sender"`
	Arguments []string `json:"arguments"`
}

type readOnlyResponse struct {
	Okay   bool   `json:"okay"`
	Result string `json:"result"`
	Cause  string `json:"cause"`
}

// callReadOnly invokes a read-only contract function and decodes the Clarity
// result.
func (c *HTTPClient) callReadOnly(ctx context.Context, contract, fn string, args ...[]byte) (*ClarityValue, error) {
	hexArgs := make([]string, len(args))
	for i, a := range args {
		hexArgs[i] = "0x" + hex.EncodeToString(a)
	}
	body, err := json.Marshal(readOnlyRequest{Sender: c.contracts.Deployer, Arguments: hexArgs})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/v2/contracts/call-read/%s/%s/%s", c.apiURL, c.contracts.Deployer, contract, fn)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s.%s: %w", contract, fn, err)
	}
	defer resp.Body.Close()

	var decoded readOnlyResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("call %s.%s: decode response: %w", contract, fn, err)
	}
	if !decoded.Okay {
		return nil, fmt.Errorf("call %s.%s rejected: %s", contract, fn, decoded.Cause)
	}

	raw, err := hex.DecodeString(strings.TrimPrefix(decoded.Result, "0x"))
	if err != nil {
		return nil, fmt.Errorf("call %s.%s: result is not hex: %w", contract, fn, err)
	}
	cv, _, err := DecodeClarity(raw)
	if err != nil {
		return nil, fmt.Errorf("call %s.%s: %w", contract, fn, err)
	}
	return cv, nil
}

// GetPlant reads a plant from plant-storage. Returns ErrNotFound for (none).
func (c *HTTPClient) GetPlant(ctx context.Context, tokenID uint64) (*Plant, error) {
	cv, err := c.callReadOnly(ctx, c.contracts.Storage, "get-plant", EncodeUint(tokenID))
	if err != nil {
		return nil, err
	}
	if cv.IsNone() {
		return nil, ErrNotFound
	}

	plant := &Plant{}
	if plant.Stage, err = cv.TupleUint("stage"); err != nil {
		return nil, err
	}
	if plant.GrowthPoints, err = cv.TupleUint("growth-points"); err != nil {
		return nil, err
	}
	if plant.LastWaterBlock, err = cv.TupleUint("last-water-block"); err != nil {
		return nil, err
	}
	if plant.Owner, err = cv.TuplePrincipal("owner"); err != nil {
		return nil, err
	}
	return plant, nil
}

// CanWater asks the game contract whether the plant can be watered now.
func (c *HTTPClient) CanWater(ctx context.Context, tokenID uint64) (bool, error) {
	cv, err := c.callReadOnly(ctx, c.contracts.Game, "can-water", EncodeUint(tokenID))
	if err != nil {
		return false, err
	}
	return cv.AsBool()
}

// GetPoolStats reads the impact-registry pool aggregate.
func (c *HTTPClient) GetPoolStats(ctx context.Context) (*PoolStats, error) {
	cv, err := c.callReadOnly(ctx, c.contracts.Impact, "get-pool-stats")
	if err != nil {
		return nil, err
	}
	stats := &PoolStats{}
	if stats.TotalGraduated, err = cv.TupleUint("total-graduated"); err != nil {
		return nil, err
	}
	if stats.TotalRedeemed, err = cv.TupleUint("total-redeemed"); err != nil {
		return nil, err
	}
	if stats.CurrentPoolSize, err = cv.TupleUint("current-pool-size"); err != nil {
		return nil, err
	}
	if stats.TotalBatches, err = cv.TupleUint("total-batches"); err != nil {
		return nil, err
	}
	return stats, nil
}

// GetLastTokenID reads the NFT contract's last minted token id.
func (c *HTTPClient) GetLastTokenID(ctx context.Context) (uint64, error) {
	cv, err := c.callReadOnly(ctx, c.contracts.NFT, "get-last-token-id")
	if err != nil {
		return 0, err
	}
	return cv.AsUint()
}

type nodeInfo struct {
	StacksTipHeight uint64 `json:"stacks_tip_height"`
}

// CurrentBlockHeight reads the chain tip from /v2/info.
func (c *HTTPClient) CurrentBlockHeight(ctx context.Context) (uint64, error) {
	var info nodeInfo
	if err := c.getJSON(ctx, c.apiURL+"/v2/info", &info); err != nil {
		return 0, err
	}
	return info.StacksTipHeight, nil
}

type accountNonces struct {
	PossibleNextNonce uint64 `json:"possible_next_nonce"`
}

func (c *HTTPClient) nextNonce(ctx context.Context, address string) (uint64, error) {
	var nonces accountNonces
	url := fmt.Sprintf("%s/extended/v1/address/%s/nonces", c.apiURL, address)
	if err := c.getJSON(ctx, url, &nonces); err != nil {
		return 0, err
	}
	return nonces.PossibleNextNonce, nil
}

// Water signs and broadcasts water(token-id) with the operator key. The fee
// is fixed from config to avoid the fee-estimation endpoint and its rate
// limits; the nonce is fetched fresh per call.
func (c *HTTPClient) Water(ctx context.Context, tokenID uint64) (*BroadcastResult, error) {
	if c.signer == nil {
		return nil, fmt.Errorf("no operator key configured")
	}

	nonce, err := c.nextNonce(ctx, c.signer.Address())
	if err != nil {
		return nil, fmt.Errorf("fetch nonce: %w", err)
	}

	tx, err := NewWaterCall(c.network, c.contracts.Deployer, c.contracts.Game, tokenID, nonce, c.fee, c.signer.Hash160())
	if err != nil {
		return nil, err
	}
	if err := c.signer.SignTransaction(tx); err != nil {
		return nil, err
	}

	c.log.Info("submitting water transaction", map[string]any{
		"tokenId": tokenID,
		"nonce":   nonce,
		"txid":    tx.TxID(),
	})
	return c.BroadcastRaw(ctx, tx.Bytes())
}

type broadcastError struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
	TxID   string `json:"txid"`
}

// BroadcastRaw posts a signed transaction to /v2/transactions. Node
// rejections (bad nonce, replayed transaction, insufficient funds) come back
// as a rejected BroadcastResult, not an error; errors are transport-level.
func (c *HTTPClient) BroadcastRaw(ctx context.Context, raw []byte) (*BroadcastResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/v2/transactions", bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("broadcast: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("broadcast: read response: %w", err)
	}

	if resp.StatusCode == http.StatusOK {
		// The node answers with the txid as a bare JSON string.
		var txid string
		if err := json.Unmarshal(body, &txid); err != nil {
			txid = strings.Trim(strings.TrimSpace(string(body)), `"`)
		}
		return &BroadcastResult{OK: true, TxID: strings.TrimPrefix(txid, "0x")}, nil
	}

	var rejection broadcastError
	if err := json.Unmarshal(body, &rejection); err != nil || rejection.Error == "" {
		return &BroadcastResult{OK: false, Reason: fmt.Sprintf("broadcast failed with status %d", resp.StatusCode)}, nil
	}
	reason := rejection.Error
	if rejection.Reason != "" {
		reason = rejection.Error + ": " + rejection.Reason
	}
	c.log.Warn("transaction rejected by node", map[string]any{"reason": reason})
	return &BroadcastResult{OK: false, Reason: reason}, nil
}

type addressTransactions struct {
	Results []struct {
		TxID          string `json:"tx_id"`
		TxType        string `json:"tx_type"`
		TxStatus      string `json:"tx_status"`
		SenderAddress string `json:"sender_address"`
		BlockHeight   uint64 `json:"block_height"`
		ContractCall  struct {
			FunctionName string `json:"function_name"`
			FunctionArgs []struct {
				Name string `json:"name"`
				Repr string `json:"repr"`
			} `json:"function_args"`
		} `json:"contract_call"`
	} `json:"results"`
}

// RecentEvents lists recent successful game contract calls, most recent
// first.
func (c *HTTPClient) RecentEvents(ctx context.Context, limit int) ([]FeedEvent, error) {
	url := fmt.Sprintf("%s/extended/v1/address/%s.%s/transactions?limit=%d",
		c.apiURL, c.contracts.Deployer, c.contracts.Game, limit)

	var txs addressTransactions
	if err := c.getJSON(ctx, url, &txs); err != nil {
		return nil, err
	}

	events := make([]FeedEvent, 0, len(txs.Results))
	for _, tx := range txs.Results {
		if tx.TxType != "contract_call" || tx.TxStatus != "success" {
			continue
		}
		event := FeedEvent{
			Type:        tx.ContractCall.FunctionName,
			Actor:       tx.SenderAddress,
			BlockHeight: tx.BlockHeight,
			TxID:        tx.TxID,
		}
		for _, arg := range tx.ContractCall.FunctionArgs {
			if arg.Name != "token-id" {
				continue
			}
			if id, err := strconv.ParseUint(strings.TrimPrefix(arg.Repr, "u"), 10, 64); err == nil {
				event.TokenID = &id
			}
		}
		events = append(events, event)
	}
	return events, nil
}

func (c *HTTPClient) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("get %s: status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("get %s: decode: %w", url, err)
	}
	return nil
}
