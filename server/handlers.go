package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dengrow/dengrow/gateway"
	"github.com/dengrow/dengrow/metering"
	"github.com/dengrow/dengrow/score"
	"github.com/dengrow/dengrow/stacks"
	"github.com/dengrow/dengrow/types"
)

// handleHealth reports liveness plus the identity the service settles to.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": s.serviceAddr,
		"network": s.cfg.Network,
	})
}

// handleSupported exposes facilitator capability discovery.
func (s *Server) handleSupported(c *gin.Context) {
	c.JSON(http.StatusOK, s.facilitator.Supported())
}

// handleVerify is the facilitator /verify endpoint. Malformed envelopes are
// 400s; an invalid payment is a 200 with isValid=false.
func (s *Server) handleVerify(c *gin.Context) {
	var req types.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.X402Error{Code: types.ErrInvalidPayload, Message: "invalid request body"})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, types.X402Error{Code: types.ErrInvalidRequirements, Message: err.Error()})
		return
	}

	result := s.facilitator.Verify(c.Request.Context(), &req.PaymentPayload, &req.PaymentRequirements)
	c.JSON(http.StatusOK, result)
}

// handleSettle is the facilitator /settle endpoint. Broadcast rejections are
// a 200 with success=false; only a malformed envelope is a 400.
func (s *Server) handleSettle(c *gin.Context) {
	var req types.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.X402Error{Code: types.ErrInvalidPayload, Message: "invalid request body"})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, types.X402Error{Code: types.ErrInvalidRequirements, Message: err.Error()})
		return
	}

	result := s.facilitator.Settle(c.Request.Context(), &req.PaymentPayload, &req.PaymentRequirements)
	c.JSON(http.StatusOK, result)
}

// fail renders an APIError with its mapped status code.
func fail(c *gin.Context, err *types.APIError) {
	c.JSON(err.HTTPStatus(), gin.H{"error": err.Message, "kind": err.Kind})
}

// tokenIDParam parses and bounds-checks the :tokenId path segment.
func tokenIDParam(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("tokenId"), 10, 64)
	if err != nil || id == 0 {
		fail(c, types.NewValidationError("Invalid token ID"))
		return 0, false
	}
	return id, true
}

// handleWater runs after payment has settled. The contract's own cooldown is
// re-checked first so a paid request against an unwaterable plant fails fast
// instead of burning the operator's transaction fee.
func (s *Server) handleWater(c *gin.Context) {
	tokenID, ok := tokenIDParam(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	canWater, err := s.ledger.CanWater(ctx, tokenID)
	if err != nil {
		s.log.Error("can-water check failed", map[string]any{"tokenId": tokenID, "error": err.Error()})
		fail(c, types.NewUpstreamError("Failed to check plant state", err))
		return
	}
	if !canWater {
		fail(c, types.NewValidationError("Plant cannot be watered (already a Tree or cooldown active)"))
		return
	}

	result, err := s.ledger.Water(ctx, tokenID)
	if err != nil {
		s.log.Error("water broadcast failed", map[string]any{"tokenId": tokenID, "error": err.Error()})
		fail(c, types.NewUpstreamError("Failed to water plant", err))
		return
	}
	if !result.OK {
		fail(c, &types.APIError{Kind: types.ErrKindUpstream, Message: result.Reason})
		return
	}

	s.log.Info("plant watered", map[string]any{"tokenId": tokenID, "txid": result.TxID})
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"tokenId":     tokenID,
		"txid":        result.TxID,
		"payer":       gateway.Payer(c),
		"explorerUrl": explorerURL(result.TxID, s.cfg.Network),
	})
}

// handlePlant serves the tiered plant read. The basic tier is the raw plant
// record; premium adds the cooldown state, the computed impact score, and the
// registry pool aggregate.
func (s *Server) handlePlant(c *gin.Context) {
	tokenID, ok := tokenIDParam(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	plant, err := s.ledger.GetPlant(ctx, tokenID)
	if errors.Is(err, stacks.ErrNotFound) {
		fail(c, types.NewNotFoundError("Plant not found"))
		return
	}
	if err != nil {
		s.log.Error("plant read failed", map[string]any{"tokenId": tokenID, "error": err.Error()})
		fail(c, types.NewUpstreamError("Failed to fetch plant", err))
		return
	}

	body := gin.H{
		"tokenId":      tokenID,
		"stage":        plant.Stage,
		"stageName":    plant.StageName(),
		"growthPoints": plant.GrowthPoints,
		"owner":        plant.Owner,
		"tier":         gateway.Tier(c),
		"payer":        gateway.Payer(c),
	}

	if gateway.Tier(c) == metering.TierPremium {
		canWater, err := s.ledger.CanWater(ctx, tokenID)
		if err != nil {
			s.log.Error("can-water check failed", map[string]any{"tokenId": tokenID, "error": err.Error()})
			fail(c, types.NewUpstreamError("Failed to fetch premium data", err))
			return
		}
		height, err := s.ledger.CurrentBlockHeight(ctx)
		if err != nil {
			s.log.Error("block height read failed", map[string]any{"error": err.Error()})
			fail(c, types.NewUpstreamError("Failed to fetch premium data", err))
			return
		}
		stats, err := s.ledger.GetPoolStats(ctx)
		if err != nil {
			s.log.Error("pool stats read failed", map[string]any{"error": err.Error()})
			fail(c, types.NewUpstreamError("Failed to fetch premium data", err))
			return
		}

		body["canWater"] = canWater
		body["impactScore"] = score.Compute(plant.GrowthPoints, plant.LastWaterBlock, height)
		body["poolStats"] = stats
	}

	c.JSON(http.StatusOK, body)
}

const (
	feedDefaultLimit = 20
	feedMaxLimit     = 50
)

// handleFeed returns recent successful game mutations. Free within the
// per-client quota, paid beyond it; the limit is clamped, never rejected.
func (s *Server) handleFeed(c *gin.Context) {
	limit := feedDefaultLimit
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > feedMaxLimit {
		limit = feedMaxLimit
	}

	events, err := s.ledger.RecentEvents(c.Request.Context(), limit)
	if err != nil {
		s.log.Error("feed fetch failed", map[string]any{"error": err.Error()})
		fail(c, types.NewUpstreamError("Failed to fetch events", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"count":  len(events),
	})
}
