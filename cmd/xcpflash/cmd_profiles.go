package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xcptools/xcpflash/pkg/profile"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Manage stored flashing profiles",
}

var profilesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored profiles",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		names, err := profile.Names()
		if err != nil {
			return err
		}
		profiles, err := profile.LoadAll()
		if err != nil {
			return err
		}
		for _, name := range names {
			p := profiles[name]
			fmt.Printf("%s: txid=0x%x rxid=0x%x mode=0x%x", name, p.TXID, p.RXID, p.Mode)
			if p.Interface != "" {
				fmt.Printf(" interface=%s", p.Interface)
			}
			if p.Bitrate != 0 {
				fmt.Printf(" bitrate=%d", p.Bitrate)
			}
			fmt.Println()
		}
		return nil
	},
}

var profilesSaveCmd = &cobra.Command{
	Use:   "save [name] [txid] [rxid]",
	Short: "Store a profile",
	Long:  "Stores transmit/receive identifiers (hex) under a name. Optional mode, interface and bitrate come from the usual flags on the flash command next time the profile is used.",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		txid, err := parseNumber(args[1])
		if err != nil {
			return fmt.Errorf("invalid txid")
		}
		rxid, err := parseNumber(args[2])
		if err != nil {
			return fmt.Errorf("invalid rxid")
		}
		return profile.Save(args[0], profile.Profile{TXID: txid, RXID: rxid})
	},
}
