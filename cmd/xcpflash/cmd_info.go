package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/xcptools/xcpflash/pkg/xcp"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show device identification and communication parameters",
	Long:  "Connects to the device and prints its station identifier and the communication limits it advertises, then disconnects.",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, iface, bitrate, err := sessionConfig()
		if err != nil {
			return err
		}
		bus, err := openTransport(iface, bitrate, cfg.RXID)
		if err != nil {
			return err
		}
		defer bus.Close()

		sess := xcp.NewSession(bus, cfg)
		if err := sess.Connect(); err != nil {
			return fmt.Errorf("could not connect: %w", err)
		}
		defer func() {
			if err := sess.Disconnect(); err != nil {
				slog.Error("Disconnect failed", "err", err)
			}
		}()

		if id, err := sess.Identifier(); err != nil {
			slog.Error("Could not read station identifier", "err", err)
		} else {
			fmt.Printf("Identifier: %s\n", id)
		}

		cmi, err := sess.CommModeInfo()
		if err != nil {
			slog.Error("Could not read comm mode info", "err", err)
			return nil
		}
		fmt.Printf(" Comm mode: 0x%02x\n", cmi.CommModeOptional)
		fmt.Printf("    Max BS: %d\n", cmi.MaxBS)
		fmt.Printf("    Min ST: %d\n", cmi.MinST)
		fmt.Printf("     Queue: %d\n", cmi.QueueSize)
		fmt.Printf("    Driver: 0x%02x\n", cmi.DriverVersion)
		return nil
	},
}
