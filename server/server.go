// Package server wires the HTTP surface: facilitator endpoints, the three
// metered game routes, health, and metrics.
package server

import (
	"fmt"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dengrow/dengrow/config"
	"github.com/dengrow/dengrow/facilitator"
	"github.com/dengrow/dengrow/gateway"
	"github.com/dengrow/dengrow/logger"
	"github.com/dengrow/dengrow/metering"
	"github.com/dengrow/dengrow/metrics"
	"github.com/dengrow/dengrow/stacks"
	"github.com/dengrow/dengrow/types"
)

// explorerURL formats the block-explorer link returned with mutations.
func explorerURL(txid, network string) string {
	return fmt.Sprintf("https://explorer.hiro.so/txid/%s?chain=%s", txid, network)
}

// Server holds the wired components behind the HTTP surface.
type Server struct {
	cfg         *config.Config
	ledger      stacks.Client
	facilitator *facilitator.Facilitator
	serviceAddr string
	log         logger.Logger
	rec         metrics.Recorder
}

// New assembles a server from its collaborators. serviceAddr is the operator
// address payments are made to.
func New(cfg *config.Config, ledger stacks.Client, fac *facilitator.Facilitator, serviceAddr string, log logger.Logger, rec metrics.Recorder) *Server {
	if log == nil {
		log = logger.NoopLogger{}
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Server{
		cfg:         cfg,
		ledger:      ledger,
		facilitator: fac,
		serviceAddr: serviceAddr,
		log:         log,
		rec:         rec,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.Default())

	// Unmetered surface.
	r.GET("/health", s.handleHealth)
	r.GET("/supported", s.handleSupported)
	r.POST("/verify", s.handleVerify)
	r.POST("/settle", s.handleSettle)
	if s.cfg.EnableMetrics {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	network := s.cfg.Network

	// POST /water/:tokenId — fixed price per request.
	waterStrategy := metering.NewFixedPrice(types.PaymentRequirements{
		Scheme:            string(types.SchemeExact),
		Network:           network,
		MaxAmountRequired: types.STXToMicroSTX(s.cfg.Prices.Water),
		PayTo:             s.serviceAddr,
		Description:       "Water a DenGrow plant on Stacks " + network,
	})
	r.POST("/water/:tokenId",
		gateway.Payment(waterStrategy, s.facilitator, s.log, s.rec),
		s.handleWater)

	// GET /plant/:tokenId — price depends on ?tier=.
	tierStrategy := metering.NewTieredPrice("tier", metering.TierBasic,
		map[string]metering.TierOption{
			metering.TierBasic: {
				Amount:      types.STXToMicroSTX(s.cfg.Prices.PlantBasic),
				Description: "basic plant data",
			},
			metering.TierPremium: {
				Amount:      types.STXToMicroSTX(s.cfg.Prices.PlantPremium),
				Description: "premium plant data",
			},
		},
		types.PaymentRequirements{
			Scheme:  string(types.SchemeExact),
			Network: network,
			PayTo:   s.serviceAddr,
		})
	r.GET("/plant/:tokenId",
		gateway.Payment(tierStrategy, s.facilitator, s.log, s.rec),
		s.handlePlant)

	// GET /feed — free quota per client, then paid.
	feedStrategy := metering.NewFreeQuota(
		s.cfg.FeedFreeLimit,
		s.cfg.FeedWindow,
		metering.NewMemoryQuotaStore(),
		types.PaymentRequirements{
			Scheme:            string(types.SchemeExact),
			Network:           network,
			MaxAmountRequired: types.STXToMicroSTX(s.cfg.Prices.Feed),
			PayTo:             s.serviceAddr,
			Description:       "DenGrow activity feed (beyond free tier)",
		})
	r.GET("/feed",
		gateway.Payment(feedStrategy, s.facilitator, s.log, s.rec),
		s.handleFeed)

	return r
}

// Run starts the HTTP listener.
func (s *Server) Run() error {
	s.log.Info("dengrow server starting", map[string]any{
		"port":    s.cfg.Port,
		"service": s.serviceAddr,
		"network": s.cfg.Network,
	})
	return s.Router().Run(fmt.Sprintf(":%d", s.cfg.Port))
}
