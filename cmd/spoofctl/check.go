package main

import (
	"fmt"
	"os"

	"github.com/KevinKickass/OpenBusSpoofer/internal/config"
	"github.com/KevinKickass/OpenBusSpoofer/internal/tables"
	"github.com/spf13/cobra"
)

func newCheckCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate a configuration and its table file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, configPath)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "configs/config.yaml", "Configuration file")

	return cmd
}

func runCheck(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	path := cfg.TableFile()
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var entries int
	if cfg.Mode.Telemetry {
		table, err := tables.ParseSpoofTable(f, path)
		if err != nil {
			return err
		}
		entries = len(table)
	} else {
		dataset, err := tables.ParseDataset(f, path)
		if err != nil {
			return err
		}
		entries = len(dataset)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "config ok: mode=%s table=%s entries=%d\n",
		cfg.OperatingMode(), path, entries)
	return nil
}
