package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dengrow/dengrow/config"
	"github.com/dengrow/dengrow/facilitator"
	"github.com/dengrow/dengrow/logger"
	"github.com/dengrow/dengrow/metrics"
	"github.com/dengrow/dengrow/server"
	"github.com/dengrow/dengrow/stacks"
	"github.com/dengrow/dengrow/types"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}

			log := logger.NewZapLogger(cfg.LogLevel)

			txVersion := byte(stacks.VersionTestnet)
			network := types.NetworkTestnet
			if cfg.Network == "mainnet" {
				txVersion = stacks.VersionMainnet
				network = types.NetworkMainnet
			}

			signer, err := stacks.NewSigner(cfg.ServiceKey, txVersion)
			if err != nil {
				return fmt.Errorf("load service key: %w", err)
			}

			var rec metrics.Recorder = metrics.NoopRecorder{}
			if cfg.EnableMetrics {
				rec = metrics.NewPrometheusRecorder()
			}

			ledger := stacks.NewHTTPClient(cfg.StacksAPI, txVersion, stacks.DefaultContracts, signer, cfg.FeeMicroSTX, log)
			fac := facilitator.New(ledger, network,
				facilitator.WithLogger(log),
				facilitator.WithMetrics(rec))

			srv := server.New(cfg, ledger, fac, signer.Address(), log, rec)
			return srv.Run()
		},
	}
}
