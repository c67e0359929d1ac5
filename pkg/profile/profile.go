package profile

import (
	"embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed profiles/*.yaml
var profileFS embed.FS

// Profile names.
const (
	// Normal is the application-firmware characteristic set.
	Normal = "normal"

	// Bootloader is the bootloader characteristic set, disjoint from Normal.
	Bootloader = "bootloader"
)

// Manifest describes one profile's characteristic set.
type Manifest struct {
	Profile         string           `yaml:"profile"`
	Description     string           `yaml:"description"`
	Characteristics []Characteristic `yaml:"characteristics"`
}

// Characteristic is one expected characteristic.
type Characteristic struct {
	// Name is the protocol-level role of the characteristic.
	Name string `yaml:"name"`

	// UUID identifies it on the wire.
	UUID string `yaml:"uuid"`

	// Notify marks characteristics the gateway subscribes to; these need a
	// client-configuration handle as well as a value handle.
	Notify bool `yaml:"notify"`

	// MinVersion is the first firmware version exposing this characteristic
	// as its own attribute. Empty means always present.
	MinVersion string `yaml:"min_version"`

	// MergedInto names the characteristic that carries this one's traffic
	// on firmware older than MinVersion.
	MergedInto string `yaml:"merged_into"`
}

var (
	cacheMu sync.RWMutex
	cache   = make(map[string]*Manifest)
)

// Load loads a profile manifest by name.
func Load(name string) (*Manifest, error) {
	cacheMu.RLock()
	if m, ok := cache[name]; ok {
		cacheMu.RUnlock()
		return m, nil
	}
	cacheMu.RUnlock()

	data, err := profileFS.ReadFile("profiles/" + name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("profile %q not found: %w", name, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing profile %q: %w", name, err)
	}

	cacheMu.Lock()
	cache[name] = &m
	cacheMu.Unlock()

	return &m, nil
}

// ForDevice returns the manifest matching a device's mode.
func ForDevice(bootloader bool) (*Manifest, error) {
	if bootloader {
		return Load(Bootloader)
	}
	return Load(Normal)
}

// ExpectedFor returns the characteristics a device on the given firmware
// version exposes. Characteristics newer than the firmware are dropped:
// ones with MergedInto share another characteristic's attribute there, the
// rest simply do not exist yet.
func (m *Manifest) ExpectedFor(v Version) []Characteristic {
	out := make([]Characteristic, 0, len(m.Characteristics))
	for _, c := range m.Characteristics {
		if c.MinVersion != "" {
			min, err := ParseVersion(c.MinVersion)
			if err != nil || !v.AtLeast(min) {
				continue
			}
		}
		out = append(out, c)
	}
	return out
}

// UUIDs returns the UUIDs of the given characteristic set, plus the set of
// UUIDs that need a notification handle. The pair feeds the registry's
// missing-handle check.
func UUIDs(chars []Characteristic) (uuids []string, notify map[string]bool) {
	notify = make(map[string]bool)
	for _, c := range chars {
		uuids = append(uuids, c.UUID)
		if c.Notify {
			notify[c.UUID] = true
		}
	}
	return uuids, notify
}
