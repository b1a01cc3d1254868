package main

import (
	"fmt"

	"github.com/KevinKickass/OpenBusSpoofer/internal/auth"
	"github.com/spf13/cobra"
)

func newHashKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-key <key>",
		Short: "Hash an API key for auth.api_key_hashes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args[0]) < 16 {
				return fmt.Errorf("api key must be at least 16 characters")
			}
			hash, err := auth.NewKeyHasher().HashKey(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
