// Command dengrow runs the payment-gated DenGrow API and its operator
// tooling.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "dengrow",
		Short: "Payment-gated API for the DenGrow plant game on Stacks",
	}

	root.AddCommand(serveCmd())
	root.AddCommand(checkPlantsCmd())
	root.AddCommand(supportedCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
