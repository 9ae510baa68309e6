package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dengrow/dengrow/facilitator"
	"github.com/dengrow/dengrow/types"
)

func supportedCmd() *cobra.Command {
	var network string

	cmd := &cobra.Command{
		Use:   "supported",
		Short: "Print the facilitator capability document",
		RunE: func(cmd *cobra.Command, args []string) error {
			fac := facilitator.New(nil, types.Network(network))
			out, err := json.MarshalIndent(fac.Supported(), "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}

	cmd.Flags().StringVar(&network, "network", "testnet", "settlement network (mainnet|testnet)")
	return cmd
}
