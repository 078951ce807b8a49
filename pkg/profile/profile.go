// Package profile stores named flashing presets (identifiers, connection
// mode, bus interface) in the user's configuration directory, so devices
// that are flashed repeatedly don't need their identifiers retyped.
package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/adrg/xdg"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Profile is one stored preset.
type Profile struct {
	TXID      uint32 `json:"txid"`
	RXID      uint32 `json:"rxid"`
	Mode      byte   `json:"mode,omitempty"`
	Interface string `json:"interface,omitempty"`
	Bitrate   int    `json:"bitrate,omitempty"`
}

func configPath() (string, error) {
	return xdg.ConfigFile("xcpflash/profiles.json")
}

// LoadAll reads every stored profile. A missing config file is not an
// error and yields an empty map.
func LoadAll() (map[string]Profile, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]Profile{}, nil
		}
		return nil, err
	}
	profiles := map[string]Profile{}
	if err := json.Unmarshal(data, &profiles); err != nil {
		return nil, fmt.Errorf("could not parse %s: %w", path, err)
	}
	return profiles, nil
}

// Get returns the named profile.
func Get(name string) (*Profile, error) {
	profiles, err := LoadAll()
	if err != nil {
		return nil, err
	}
	p, ok := profiles[name]
	if !ok {
		return nil, fmt.Errorf("no profile named %q", name)
	}
	return &p, nil
}

// Save stores a profile under name, creating the config file if needed.
func Save(name string, p Profile) error {
	profiles, err := LoadAll()
	if err != nil {
		return err
	}
	profiles[name] = p

	path, err := configPath()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(profiles, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// Names lists stored profile names in sorted order.
func Names() ([]string, error) {
	profiles, err := LoadAll()
	if err != nil {
		return nil, err
	}
	names := maps.Keys(profiles)
	slices.Sort(names)
	return names, nil
}
