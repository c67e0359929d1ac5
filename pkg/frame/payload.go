package frame

import (
	"encoding/binary"

	"golang.org/x/crypto/cryptobyte"
)

// Modern payload type tags. Telemetry pages sit below 0x40, control
// operations at 0x40 and above.
const (
	TagRequestAdv uint8 = 0x01
	TagStatus     uint8 = 0x02
	TagHistory    uint8 = 0x03
	TagSensor     uint8 = 0x04
	TagGroupInfo  uint8 = 0x10

	OpSetLightLevel     uint8 = 0x40
	OpStopFade          uint8 = 0x41
	OpSensorControlMode uint8 = 0x42
	OpRecallScene       uint8 = 0x43
	OpIndicate          uint8 = 0x44
	OpEnableConnections uint8 = 0x45
	OpGroupInfoRequest  uint8 = 0x46
)

// GroupSlotsPerSegment is the most group slots one segment can carry.
const GroupSlotsPerSegment = 5

// GroupTableSize is the number of group-membership slots per device.
const GroupTableSize = 16

// Payload is a typed modern-frame payload.
type Payload interface {
	// Tag returns the payload type tag.
	Tag() uint8

	// Append serializes the payload, tag first, onto b.
	Append(b []byte) []byte
}

// StatusPayload is the modern real-time telemetry page.
type StatusPayload struct {
	Intensity uint16 // hundredths of a percent
	Status    uint8
	Power     uint16 // tenths of a watt
	LedTemp   int8
	PcbTemp   int8
	Vin       uint8 // 0.2 V steps
	VinRipple uint8 // 0.1 V steps
}

// Tag returns TagStatus.
func (p *StatusPayload) Tag() uint8 { return TagStatus }

// Append serializes the page.
func (p *StatusPayload) Append(b []byte) []byte {
	b = append(b, TagStatus)
	b = binary.LittleEndian.AppendUint16(b, p.Intensity)
	b = append(b, p.Status)
	b = binary.LittleEndian.AppendUint16(b, p.Power)
	b = append(b, byte(p.LedTemp), byte(p.PcbTemp), p.Vin, p.VinRipple)
	return b
}

// HistoryPayload is the modern lifetime counters page.
type HistoryPayload struct {
	OnHours     uint16
	PowerCycles uint16
	LedCycles   uint16
	ProductID   uint16
	DaliStatus  uint8
}

// Tag returns TagHistory.
func (p *HistoryPayload) Tag() uint8 { return TagHistory }

// Append serializes the page.
func (p *HistoryPayload) Append(b []byte) []byte {
	b = append(b, TagHistory)
	b = binary.LittleEndian.AppendUint16(b, p.OnHours)
	b = binary.LittleEndian.AppendUint16(b, p.PowerCycles)
	b = binary.LittleEndian.AppendUint16(b, p.LedCycles)
	b = binary.LittleEndian.AppendUint16(b, p.ProductID)
	b = append(b, p.DaliStatus)
	return b
}

// SensorPayload is the modern sensor telemetry page.
type SensorPayload struct {
	Temperature int8
	Voltage     uint8 // 0.2 V steps
	Motion      uint8
	Illuminance uint16 // lux
}

// Tag returns TagSensor.
func (p *SensorPayload) Tag() uint8 { return TagSensor }

// Append serializes the page.
func (p *SensorPayload) Append(b []byte) []byte {
	b = append(b, TagSensor, byte(p.Temperature), p.Voltage, p.Motion)
	b = binary.LittleEndian.AppendUint16(b, p.Illuminance)
	return b
}

// GroupInfoPayload is one segment of a device's 16-slot group table.
type GroupInfoPayload struct {
	// Offset is the slot index of the first value in this segment.
	Offset uint8

	// LastPacket marks the final segment of the table.
	LastPacket bool

	// Slots holds up to GroupSlotsPerSegment group values.
	Slots []uint16
}

// Tag returns TagGroupInfo.
func (p *GroupInfoPayload) Tag() uint8 { return TagGroupInfo }

// Append serializes the segment.
func (p *GroupInfoPayload) Append(b []byte) []byte {
	header := p.Offset & 0x7F
	if p.LastPacket {
		header |= 0x80
	}
	b = append(b, TagGroupInfo, header)
	for _, s := range p.Slots {
		b = binary.LittleEndian.AppendUint16(b, s)
	}
	return b
}

// RequestAdvPayload asks a device to broadcast the listed telemetry pages.
type RequestAdvPayload struct {
	Pages []uint8
}

// Tag returns TagRequestAdv.
func (p *RequestAdvPayload) Tag() uint8 { return TagRequestAdv }

// Append serializes the request.
func (p *RequestAdvPayload) Append(b []byte) []byte {
	b = append(b, TagRequestAdv)
	return append(b, p.Pages...)
}

// ControlPayload is a broadcast control operation. The parameter bytes are
// produced by the command layer; the codec treats them as opaque.
type ControlPayload struct {
	Op     uint8
	Params []byte
}

// Tag returns the operation code.
func (p *ControlPayload) Tag() uint8 { return p.Op }

// Append serializes the operation.
func (p *ControlPayload) Append(b []byte) []byte {
	b = append(b, p.Op)
	return append(b, p.Params...)
}

// ParsePayload types a plaintext modern-frame payload. Returns false for an
// empty, truncated, or unknown payload; such frames are dropped.
func ParsePayload(raw []byte) (Payload, bool) {
	s := cryptobyte.String(raw)

	var tag uint8
	if !s.ReadUint8(&tag) {
		return nil, false
	}

	switch tag {
	case TagStatus:
		var body []byte
		if !s.ReadBytes(&body, 9) || !s.Empty() {
			return nil, false
		}
		return &StatusPayload{
			Intensity: binary.LittleEndian.Uint16(body[0:2]),
			Status:    body[2],
			Power:     binary.LittleEndian.Uint16(body[3:5]),
			LedTemp:   int8(body[5]),
			PcbTemp:   int8(body[6]),
			Vin:       body[7],
			VinRipple: body[8],
		}, true

	case TagHistory:
		var body []byte
		if !s.ReadBytes(&body, 9) || !s.Empty() {
			return nil, false
		}
		return &HistoryPayload{
			OnHours:     binary.LittleEndian.Uint16(body[0:2]),
			PowerCycles: binary.LittleEndian.Uint16(body[2:4]),
			LedCycles:   binary.LittleEndian.Uint16(body[4:6]),
			ProductID:   binary.LittleEndian.Uint16(body[6:8]),
			DaliStatus:  body[8],
		}, true

	case TagSensor:
		var body []byte
		if !s.ReadBytes(&body, 5) || !s.Empty() {
			return nil, false
		}
		return &SensorPayload{
			Temperature: int8(body[0]),
			Voltage:     body[1],
			Motion:      body[2],
			Illuminance: binary.LittleEndian.Uint16(body[3:5]),
		}, true

	case TagGroupInfo:
		var header uint8
		if !s.ReadUint8(&header) {
			return nil, false
		}
		rest := []byte(s)
		if len(rest)%2 != 0 || len(rest)/2 > GroupSlotsPerSegment {
			return nil, false
		}
		p := &GroupInfoPayload{
			Offset:     header & 0x7F,
			LastPacket: header&0x80 != 0,
		}
		for i := 0; i < len(rest); i += 2 {
			p.Slots = append(p.Slots, binary.LittleEndian.Uint16(rest[i:i+2]))
		}
		return p, true

	case TagRequestAdv:
		return &RequestAdvPayload{Pages: append([]uint8(nil), s...)}, true

	default:
		if tag >= OpSetLightLevel && tag <= OpGroupInfoRequest {
			return &ControlPayload{Op: tag, Params: append([]byte(nil), s...)}, true
		}
		return nil, false
	}
}
