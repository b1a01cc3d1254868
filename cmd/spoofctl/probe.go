package main

import (
	"context"
	"fmt"
	"time"

	"github.com/KevinKickass/OpenBusSpoofer/internal/bus"
	"github.com/KevinKickass/OpenBusSpoofer/internal/types"
	"github.com/spf13/cobra"
)

type probeFlags struct {
	addr      string
	registers []string
	timeout   time.Duration
}

func newProbeCmd() *cobra.Command {
	flags := &probeFlags{}

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Read registers from a running spoofer",
		Long: `Send read-register requests over the bus protocol and print the raw
response frames. Unknown registers are reported as the error sentinel.`,
		Example: `  # Read one register
  spoofctl probe --addr 127.0.0.1:10000 --register 0x42

  # Read several registers over one connection
  spoofctl probe --register 10 --register 11 --register 60`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(flags.registers) == 0 {
				return fmt.Errorf("required flag --register not set")
			}
			return runProbe(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.addr, "addr", "127.0.0.1:10000", "Bus address of the spoofer")
	cmd.Flags().StringArrayVar(&flags.registers, "register", nil, "Register to read, hex (repeatable)")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 5*time.Second, "Per-request timeout")

	return cmd
}

func runProbe(cmd *cobra.Command, flags *probeFlags) error {
	regs := make([]types.Register, 0, len(flags.registers))
	for _, s := range flags.registers {
		reg, err := types.ParseRegister(s)
		if err != nil {
			return err
		}
		regs = append(regs, reg)
	}

	client := bus.NewClient(flags.addr, flags.timeout)
	if err := client.Connect(); err != nil {
		return err
	}
	defer client.Close()

	out := cmd.OutOrStdout()
	for _, reg := range regs {
		ctx, cancel := context.WithTimeout(cmd.Context(), flags.timeout)
		payload, found, err := client.ReadRegister(ctx, reg)
		cancel()
		if err != nil {
			return fmt.Errorf("register %s: %w", reg, err)
		}
		if !found {
			fmt.Fprintf(out, "%s  error sentinel\n", reg)
			continue
		}
		fmt.Fprintf(out, "%s  %s\n", reg, bus.Hex(payload))
	}

	return nil
}
