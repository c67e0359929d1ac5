package frame

import (
	"encoding/binary"

	"golang.org/x/crypto/cryptobyte"
)

// Decode classifies and decodes one manufacturer-specific advertising
// field. Anything that is not an XBeacon frame comes back with
// KindUnrecognized; malformed and foreign data is never an error.
func Decode(manufacturerData []byte) Frame {
	if len(manufacturerData) < 3 {
		return Frame{}
	}
	if binary.LittleEndian.Uint16(manufacturerData[0:2]) != CompanyID {
		return Frame{}
	}
	body := manufacturerData[2:]

	isModern := body[0]&0xF0 == modernMarker

	switch {
	case len(body) == status1BodyLen && !isModern:
		return decodeStatus1(body)
	case len(body) == status2BodyLen && !isModern:
		return decodeStatus2(body)
	case isModern:
		return decodeModern(body)
	default:
		return Frame{}
	}
}

func decodeStatus1(body []byte) Frame {
	return Frame{
		Kind: KindStatus1,
		Status1: &Status1{
			DeviceID:    LogicalAddress(append([]byte(nil), body[0:4]...)),
			SequenceID:  body[4],
			HopCount:    body[5],
			Intensity:   binary.LittleEndian.Uint16(body[6:8]),
			Status:      body[8],
			Power:       binary.LittleEndian.Uint16(body[9:11]),
			LedTemp:     int8(body[11]),
			PcbTemp:     int8(body[12]),
			Vin:         body[13],
			VinRipple:   body[14],
			LockoutTime: body[15],
			ExtendedVin: body[16],
		},
	}
}

func decodeStatus2(body []byte) Frame {
	return Frame{
		Kind: KindStatus2,
		Status2: &Status2{
			DeviceID:           LogicalAddress(append([]byte(nil), body[0:4]...)),
			ProductID:          binary.LittleEndian.Uint16(body[4:6]),
			OnHours:            binary.LittleEndian.Uint16(body[6:8]),
			PowerCycles:        binary.LittleEndian.Uint16(body[8:10]),
			LedCycles:          binary.LittleEndian.Uint16(body[10:12]),
			OperationExtension: body[12],
			DaliStatus:         body[13],
		},
	}
}

func decodeModern(body []byte) Frame {
	s := cryptobyte.String(body)

	var typeByte uint8
	if !s.ReadUint8(&typeByte) {
		return Frame{}
	}

	mode := AddressingMode(typeByte & modeMask)
	addrLen := mode.addressLen()
	if addrLen == 0 {
		return Frame{}
	}

	f := Frame{
		Kind:            KindModern,
		Mode:            mode,
		Encrypted:       typeByte&flagEncrypted != 0,
		HeaderEncrypted: typeByte&flagHeaderEncrypted != 0,
	}

	var addr []byte
	if !s.ReadBytes(&addr, addrLen) {
		return Frame{}
	}
	f.Address = LogicalAddress(addr)

	if mode == ModeAssigned {
		var header []byte
		if !s.ReadBytes(&header, 5) {
			return Frame{}
		}
		f.HeaderBlock = header
		if !f.HeaderEncrypted {
			f.Sequence = binary.LittleEndian.Uint32(header[0:4])
		}
	} else if f.HeaderEncrypted {
		// Header obfuscation covers the sequence region, which only the
		// assigned form carries.
		return Frame{}
	}

	rest := []byte(s)
	if f.Encrypted {
		if len(rest) < 1+TagSize {
			return Frame{}
		}
		f.Payload = rest[:len(rest)-TagSize]
		f.Tag = rest[len(rest)-TagSize:]
	} else {
		if len(rest) < 1 {
			return Frame{}
		}
		f.Payload = rest
	}
	if len(f.Payload) > MaxPayload {
		return Frame{}
	}
	return f
}
