// Package profile maps firmware versions to expected characteristic sets.
//
// A device's firmware version, read during connection setup, determines
// which characteristics it exposes: newer firmware adds characteristics,
// and some that are separate today were merged into one on older firmware.
// Bootloader mode exposes a disjoint set. The sets are embedded YAML
// manifests, one per profile.
package profile

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a parsed "major.minor.patch" firmware version.
type Version struct {
	Major uint16
	Minor uint16
	Patch uint16
}

// ParseVersion parses a firmware version string. The patch component is
// optional.
func ParseVersion(s string) (Version, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) < 2 || len(parts) > 3 {
		return Version{}, fmt.Errorf("invalid firmware version %q: expected major.minor[.patch]", s)
	}

	var fields [3]uint16
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 10, 16)
		if err != nil || p == "" {
			return Version{}, fmt.Errorf("invalid firmware version %q: bad component %q", s, p)
		}
		fields[i] = uint16(v)
	}
	return Version{Major: fields[0], Minor: fields[1], Patch: fields[2]}, nil
}

// String returns the version as "major.minor.patch".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// AtLeast reports whether v is the same as or newer than other.
func (v Version) AtLeast(other Version) bool {
	if v.Major != other.Major {
		return v.Major > other.Major
	}
	if v.Minor != other.Minor {
		return v.Minor > other.Minor
	}
	return v.Patch >= other.Patch
}
