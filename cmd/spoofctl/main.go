package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "spoofctl",
		Short: "Operator tool for the register spoofer",
		Long: `spoofctl talks to a running register spoofer over the bus protocol and
prepares configuration material such as API key hashes and access tokens.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newProbeCmd())
	rootCmd.AddCommand(newHashKeyCmd())
	rootCmd.AddCommand(newTokenCmd())
	rootCmd.AddCommand(newCheckCmd())

	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
