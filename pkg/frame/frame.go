package frame

// CompanyID is the manufacturer identifier tagging every XBeacon
// advertisement. Frames carrying any other company id are foreign traffic
// and classified Unrecognized.
const CompanyID uint16 = 0x039A

// Advertising size limits.
const (
	// MaxAdvertisingData is the BLE advertising data budget.
	MaxAdvertisingData = 31

	// MaxFrameBody is the largest frame body that fits the manufacturer
	// field next to its AD header and company id.
	MaxFrameBody = MaxAdvertisingData - 2 - 2 - 1

	// MaxPayload is the largest modern-frame payload.
	MaxPayload = 12

	// TagSize is the integrity tag length appended to encrypted frames.
	TagSize = 4
)

// Modern frame type byte layout.
const (
	// modernMarker occupies the high nibble of the type byte.
	modernMarker = 0x10

	// flagEncrypted marks an encrypted payload (tag appended).
	flagEncrypted = 0x04

	// flagHeaderEncrypted marks an obfuscated header region.
	flagHeaderEncrypted = 0x08

	// modeMask selects the addressing-mode bits.
	modeMask = 0x03
)

// Kind discriminates the recognized frame layouts.
type Kind uint8

const (
	// KindUnrecognized is anything that is not an XBeacon frame. Not an
	// error; such frames are silently dropped.
	KindUnrecognized Kind = iota

	// KindStatus1 is the fixed-length legacy telemetry frame.
	KindStatus1

	// KindStatus2 is the fixed-length legacy counters frame.
	KindStatus2

	// KindModern is the variable-length self-describing frame.
	KindModern
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindStatus1:
		return "STATUS1"
	case KindStatus2:
		return "STATUS2"
	case KindModern:
		return "MODERN"
	default:
		return "UNRECOGNIZED"
	}
}

// Frame is a decoded XBeacon advertisement.
//
// For legacy kinds the telemetry is fully decoded into Status1/Status2.
// For modern frames the payload is left as bytes: an encrypted frame must
// pass through the security engine before ParsePayload can type it.
type Frame struct {
	Kind Kind

	// Mode and Address describe the frame's address field (modern frames
	// only; legacy frames carry a 4-byte identifier in Status1/Status2).
	// The field names the sender on telemetry pages and the destination on
	// control operations.
	Mode    AddressingMode
	Address LogicalAddress

	// Sequence is the anti-replay counter (assigned form only). While
	// HeaderEncrypted is set the value is still obfuscated; the security
	// engine recovers it from HeaderBlock.
	Sequence uint32

	// HeaderBlock is the raw sequence region (4-byte counter plus one
	// reserved byte) as received, present on assigned-form frames.
	HeaderBlock []byte

	// Encrypted marks a payload ciphertext with Tag appended.
	Encrypted bool

	// HeaderEncrypted marks an obfuscated sequence region.
	HeaderEncrypted bool

	// Payload is the modern frame payload: plaintext, or ciphertext while
	// Encrypted is set.
	Payload []byte

	// Tag is the 4-byte integrity tag of an encrypted payload.
	Tag []byte

	// Status1 and Status2 carry decoded legacy telemetry.
	Status1 *Status1
	Status2 *Status2
}

// Status1 is the legacy real-time telemetry frame.
type Status1 struct {
	DeviceID   LogicalAddress // 4-byte legacy identifier
	SequenceID uint8
	HopCount   uint8
	Intensity  uint16 // hundredths of a percent
	Status     uint8
	Power      uint16 // tenths of a watt
	LedTemp    int8   // degrees C
	PcbTemp    int8   // degrees C
	Vin        uint8  // 0.2 V steps
	VinRipple  uint8  // 0.1 V steps
	LockoutTime uint8
	ExtendedVin uint8
}

// Status2 is the legacy lifetime counters frame.
type Status2 struct {
	DeviceID           LogicalAddress // 4-byte legacy identifier
	ProductID          uint16
	OnHours            uint16
	PowerCycles        uint16
	LedCycles          uint16
	OperationExtension uint8
	DaliStatus         uint8
}

// Wire sizes of the legacy frame bodies.
const (
	status1BodyLen = 17
	status2BodyLen = 14
)
