package main

import (
	"fmt"

	"github.com/xcptools/xcpflash/pkg/canbus"
	"github.com/xcptools/xcpflash/pkg/profile"
	"github.com/xcptools/xcpflash/pkg/xcp"
)

var (
	flashTxID      string
	flashRxID      string
	flashMode      string
	flashInterface string
	flashBitrate   int
	flashBase      string
	flashProfile   string
)

// sessionConfig resolves the identifier/mode/interface flags, letting a
// stored profile provide defaults that explicit flags override.
func sessionConfig() (xcp.Config, string, int, error) {
	cfg := xcp.Config{}
	iface := flashInterface
	bitrate := flashBitrate

	if flashProfile != "" {
		p, err := profile.Get(flashProfile)
		if err != nil {
			return cfg, "", 0, err
		}
		cfg.TXID = p.TXID
		cfg.RXID = p.RXID
		cfg.Mode = p.Mode
		if p.Interface != "" {
			iface = p.Interface
		}
		if p.Bitrate != 0 {
			bitrate = p.Bitrate
		}
	}

	if flashTxID != "" {
		id, err := parseNumber(flashTxID)
		if err != nil {
			return cfg, "", 0, fmt.Errorf("invalid txid")
		}
		cfg.TXID = id
	}
	if flashRxID != "" {
		id, err := parseNumber(flashRxID)
		if err != nil {
			return cfg, "", 0, fmt.Errorf("invalid rxid")
		}
		cfg.RXID = id
	}
	if flashMode != "" {
		mode, err := parseNumber(flashMode)
		if err != nil || mode > 0xFF {
			return cfg, "", 0, fmt.Errorf("invalid mode")
		}
		cfg.Mode = byte(mode)
	}

	if cfg.TXID == 0 || cfg.RXID == 0 {
		return cfg, "", 0, fmt.Errorf("both --txid and --rxid are required (or a --profile providing them)")
	}
	return cfg, iface, bitrate, nil
}

// openTransport opens the selected bus backend with inbound filtering for
// the session's receive identifier.
func openTransport(iface string, bitrate int, rxID uint32) (canbus.Transport, error) {
	if iface == "gsusb" {
		return canbus.NewGSUSB(bitrate, rxID)
	}
	return canbus.NewSocketCAN(iface, rxID)
}
