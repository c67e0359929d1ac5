package frame

import (
	"fmt"
	"strings"
)

// AddressingMode describes how the source or destination of a modern frame
// is expressed on the wire. The mode is derived purely from the address
// length.
type AddressingMode uint8

const (
	// ModeAssigned is the 1-byte form used once a device holds an assigned
	// unicast or group slot.
	ModeAssigned AddressingMode = 0

	// ModeUnassigned is the 3-byte form used by devices without an assigned
	// logical address. The value is the low 3 bytes of the radio address.
	ModeUnassigned AddressingMode = 1

	// ModeLegacy is the 4-byte full logical identifier used by first
	// generation firmware and for legacy-compatible broadcasts.
	ModeLegacy AddressingMode = 2
)

// String returns the addressing mode name.
func (m AddressingMode) String() string {
	switch m {
	case ModeAssigned:
		return "ASSIGNED"
	case ModeUnassigned:
		return "UNASSIGNED"
	case ModeLegacy:
		return "LEGACY"
	default:
		return "UNKNOWN"
	}
}

// addressLen returns the wire length of an address in the given mode.
func (m AddressingMode) addressLen() int {
	switch m {
	case ModeAssigned:
		return 1
	case ModeUnassigned:
		return 3
	case ModeLegacy:
		return 4
	default:
		return 0
	}
}

// WildcardByte matches any value at its position in a 4-byte logical
// address comparison.
const WildcardByte = 0xFF

// BroadcastAddress addresses every device on the network.
var BroadcastAddress = LogicalAddress{0xFF, 0xFF, 0xFF, 0xFF}

// UnassignedSlot is the group-table sentinel for an empty slot.
const UnassignedSlot uint16 = 0xFFFF

// LogicalAddress is the application-level light-control identifier.
// Its length selects the addressing mode: 1 byte for an assigned unicast or
// group slot, 3 bytes for an unassigned device (low radio address bytes),
// 4 bytes for the legacy full identifier.
type LogicalAddress []byte

// Mode derives the addressing mode from the address length.
func (a LogicalAddress) Mode() (AddressingMode, bool) {
	switch len(a) {
	case 1:
		return ModeAssigned, true
	case 3:
		return ModeUnassigned, true
	case 4:
		return ModeLegacy, true
	default:
		return 0, false
	}
}

// IsAssigned reports whether the address is the 1-byte assigned form.
func (a LogicalAddress) IsAssigned() bool { return len(a) == 1 }

// IsBroadcast reports whether every byte of the address is the wildcard.
func (a LogicalAddress) IsBroadcast() bool {
	if len(a) == 0 {
		return false
	}
	for _, b := range a {
		if b != WildcardByte {
			return false
		}
	}
	return true
}

// Equal compares two logical addresses byte for byte.
func (a LogicalAddress) Equal(other LogicalAddress) bool {
	if len(a) != len(other) {
		return false
	}
	for i := range a {
		if a[i] != other[i] {
			return false
		}
	}
	return true
}

// Matches reports whether the address falls inside the given 4-byte mask.
// A WildcardByte (0xFF) in either the mask or the address matches any value
// at that position. Short forms are widened before comparison.
func (a LogicalAddress) Matches(mask LogicalAddress) bool {
	wide := a.Widen()
	wideMask := mask.Widen()
	if wide == nil || wideMask == nil {
		return false
	}
	for i := 0; i < 4; i++ {
		if wideMask[i] != WildcardByte && wide[i] != WildcardByte && wideMask[i] != wide[i] {
			return false
		}
	}
	return true
}

// Widen converts the address to the 4-byte legacy form, left-padding the
// short forms with wildcard bytes. Returns nil for invalid lengths.
func (a LogicalAddress) Widen() LogicalAddress {
	switch len(a) {
	case 4:
		out := make(LogicalAddress, 4)
		copy(out, a)
		return out
	case 1:
		return LogicalAddress{WildcardByte, WildcardByte, WildcardByte, a[0]}
	case 3:
		return LogicalAddress{WildcardByte, a[0], a[1], a[2]}
	default:
		return nil
	}
}

// String formats the address as dot-separated decimal bytes.
func (a LogicalAddress) String() string {
	if len(a) == 0 {
		return "<none>"
	}
	parts := make([]string, len(a))
	for i, b := range a {
		parts[i] = fmt.Sprintf("%d", b)
	}
	return strings.Join(parts, ".")
}

// ParseLogicalAddress parses the dot-separated decimal notation into a
// 1, 3 or 4 byte logical address.
func ParseLogicalAddress(s string) (LogicalAddress, error) {
	parts := strings.Split(s, ".")
	switch len(parts) {
	case 1, 3, 4:
	default:
		return nil, fmt.Errorf("invalid logical address %q: expected 1, 3 or 4 components", s)
	}
	addr := make(LogicalAddress, len(parts))
	for i, p := range parts {
		var v int
		if _, err := fmt.Sscanf(p, "%d", &v); err != nil || v < 0 || v > 255 {
			return nil, fmt.Errorf("invalid logical address %q: bad component %q", s, p)
		}
		addr[i] = byte(v)
	}
	return addr, nil
}

// RadioAddress is the stable 6-byte link-layer identifier of a device and
// the registry key.
type RadioAddress [6]byte

// String formats the radio address as dot-separated decimal bytes, the
// notation used throughout the persisted files.
func (r RadioAddress) String() string {
	parts := make([]string, len(r))
	for i, b := range r {
		parts[i] = fmt.Sprintf("%d", b)
	}
	return strings.Join(parts, ".")
}

// ParseRadioAddress parses the dot-separated decimal notation.
func ParseRadioAddress(s string) (RadioAddress, error) {
	var addr RadioAddress
	parts := strings.Split(s, ".")
	if len(parts) != 6 {
		return addr, fmt.Errorf("invalid radio address %q: expected 6 components", s)
	}
	for i, p := range parts {
		var v int
		if _, err := fmt.Sscanf(p, "%d", &v); err != nil || v < 0 || v > 255 {
			return addr, fmt.Errorf("invalid radio address %q: bad component %q", s, p)
		}
		addr[i] = byte(v)
	}
	return addr, nil
}

// Unassigned returns the 3-byte unassigned logical address for a radio
// address: its low 3 bytes.
func (r RadioAddress) Unassigned() LogicalAddress {
	return LogicalAddress{r[3], r[4], r[5]}
}

// DestinationFor selects the wire form for addressing a device. The 1-byte
// assigned form is preferred whenever the device is known assigned; the
// 4-byte legacy form is only used for explicit legacy-compatible
// broadcasts.
func DestinationFor(addr LogicalAddress, legacyBroadcast bool) LogicalAddress {
	if legacyBroadcast {
		return addr.Widen()
	}
	if len(addr) == 4 && !addr.IsBroadcast() {
		// A fully-specified 4-byte unicast with three leading wildcards is
		// really an assigned slot.
		if addr[0] == WildcardByte && addr[1] == WildcardByte && addr[2] == WildcardByte && addr[3] != WildcardByte {
			return LogicalAddress{addr[3]}
		}
	}
	if addr.IsBroadcast() {
		return LogicalAddress{WildcardByte}
	}
	return addr
}
