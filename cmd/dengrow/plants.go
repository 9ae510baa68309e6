package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dengrow/dengrow/logger"
	"github.com/dengrow/dengrow/stacks"
)

func checkPlantsCmd() *cobra.Command {
	var apiURL string

	cmd := &cobra.Command{
		Use:   "check-plants",
		Short: "Scan all minted plants and report which are waterable",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ledger := stacks.NewHTTPClient(apiURL, stacks.VersionTestnet, stacks.DefaultContracts, nil, 0, logger.NoopLogger{})

			lastID, err := ledger.GetLastTokenID(ctx)
			if err != nil {
				return fmt.Errorf("fetch last token id: %w", err)
			}
			if lastID <= stacks.TokenIDOffset {
				fmt.Println("No plants minted yet.")
				return nil
			}

			fmt.Printf("Checking plants %d..%d\n\n", stacks.TokenIDOffset+1, lastID)
			waterable := 0
			for id := uint64(stacks.TokenIDOffset + 1); id <= lastID; id++ {
				plant, err := ledger.GetPlant(ctx, id)
				if errors.Is(err, stacks.ErrNotFound) {
					fmt.Printf("#%d: no plant record\n", id)
					continue
				}
				if err != nil {
					return fmt.Errorf("fetch plant %d: %w", id, err)
				}

				canWater, err := ledger.CanWater(ctx, id)
				if err != nil {
					return fmt.Errorf("check plant %d: %w", id, err)
				}

				status := "cooldown"
				if canWater {
					status = "WATERABLE"
					waterable++
				}
				if plant.Stage == stacks.StageTree {
					status = "graduated"
				}
				fmt.Printf("#%d: %s (%d/%d growth) owner=%s [%s]\n",
					id, plant.StageName(), plant.GrowthPoints, stacks.MaxGrowthPoints, plant.Owner, status)
			}

			fmt.Printf("\n%d plant(s) ready to water\n", waterable)
			return nil
		},
	}

	cmd.Flags().StringVar(&apiURL, "api", "https://api.testnet.hiro.so", "Stacks API base URL")
	return cmd
}
