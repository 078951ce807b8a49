package main

import (
	"flag"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var rootCmd = &cobra.Command{
	Use:   "xcpflash",
	Short: "xcpflash reprograms ECU flash memory over CAN using XCP",
	Long: `Flashes firmware images (S-record, Intel HEX or raw binary) onto
electronic control units that implement the XCP programming command set,
over SocketCAN interfaces or candleLight USB adapters.`,
	SilenceUsage: true,
}

var verboseLog bool

func main() {
	flashCmd.Flags().StringVar(&flashTxID, "txid", "", "Arbitration ID for outgoing frames (hex)")
	flashCmd.Flags().StringVar(&flashRxID, "rxid", "", "Arbitration ID for incoming frames (hex)")
	flashCmd.Flags().StringVar(&flashMode, "mode", "0", "Connection mode for the XCP session (hex)")
	flashCmd.Flags().StringVarP(&flashInterface, "interface", "i", "can0", "SocketCAN interface name, or 'gsusb' for a candleLight USB adapter")
	flashCmd.Flags().IntVar(&flashBitrate, "bitrate", 500000, "Bus bitrate (gsusb only; SocketCAN interfaces are configured via ip link)")
	flashCmd.Flags().StringVar(&flashBase, "base", "0x0", "Load address for raw .bin images (hex)")
	flashCmd.Flags().StringVarP(&flashProfile, "profile", "p", "", "Use a stored profile for identifiers and bus settings")
	infoCmd.Flags().StringVar(&flashTxID, "txid", "", "Arbitration ID for outgoing frames (hex)")
	infoCmd.Flags().StringVar(&flashRxID, "rxid", "", "Arbitration ID for incoming frames (hex)")
	infoCmd.Flags().StringVar(&flashMode, "mode", "0", "Connection mode for the XCP session (hex)")
	infoCmd.Flags().StringVarP(&flashInterface, "interface", "i", "can0", "SocketCAN interface name, or 'gsusb' for a candleLight USB adapter")
	infoCmd.Flags().IntVar(&flashBitrate, "bitrate", 500000, "Bus bitrate (gsusb only)")
	infoCmd.Flags().StringVarP(&flashProfile, "profile", "p", "", "Use a stored profile for identifiers and bus settings")
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().BoolVarP(&verboseLog, "verbose", "v", false, "Enable verbose debug logging")
	rootCmd.AddCommand(flashCmd)
	rootCmd.AddCommand(infoCmd)
	profilesCmd.AddCommand(profilesListCmd)
	profilesCmd.AddCommand(profilesSaveCmd)
	rootCmd.AddCommand(profilesCmd)
	cobra.OnInitialize(func() {
		if verboseLog {
			slog.SetLogLoggerLevel(slog.LevelDebug)
		}
	})
	rootCmd.Execute()
}

func init() {
	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)
}

func parseNumber(s string) (uint32, error) {
	var err error
	var res uint64
	if strings.HasPrefix(strings.ToLower(s), "0x") {
		res, err = strconv.ParseUint(s[2:], 16, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid number")
		}
	} else {
		res, err = strconv.ParseUint(s, 16, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid number")
		}
	}
	return uint32(res), nil
}
