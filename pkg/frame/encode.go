package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Encoding errors.
var (
	// ErrFrameTooLarge indicates the encoded frame would exceed the
	// advertising-data budget.
	ErrFrameTooLarge = errors.New("frame exceeds advertising data limit")

	// ErrBadAddress indicates an address with an unrecognized length.
	ErrBadAddress = errors.New("invalid logical address length")

	// ErrPayloadTooLarge indicates a payload over the modern-frame limit.
	ErrPayloadTooLarge = errors.New("payload exceeds modern frame limit")
)

// Sealer encrypts outbound frames. Implemented by the security engine;
// a nil Sealer encodes plaintext frames.
type Sealer interface {
	// SealPayload encrypts a payload under the transmit credential and
	// returns ciphertext plus the 4-byte integrity tag. The sequence number
	// has already been issued by the caller.
	SealPayload(address LogicalAddress, sequence uint32, plaintext []byte) (ciphertext, tag []byte, err error)

	// SealHeader obfuscates the sequence region in place. The nonce input
	// is the already-produced payload ciphertext with its tag appended:
	// the payload must always be sealed first.
	SealHeader(header, payloadWithTag []byte) error
}

// EncodeStatus1 encodes a legacy Status-1 frame as manufacturer data
// (company id included).
func EncodeStatus1(s *Status1) ([]byte, error) {
	if len(s.DeviceID) != 4 {
		return nil, ErrBadAddress
	}
	b := make([]byte, 0, 2+status1BodyLen)
	b = binary.LittleEndian.AppendUint16(b, CompanyID)
	b = append(b, s.DeviceID...)
	b = append(b, s.SequenceID, s.HopCount)
	b = binary.LittleEndian.AppendUint16(b, s.Intensity)
	b = append(b, s.Status)
	b = binary.LittleEndian.AppendUint16(b, s.Power)
	b = append(b, byte(s.LedTemp), byte(s.PcbTemp), s.Vin, s.VinRipple, s.LockoutTime, s.ExtendedVin)
	return b, nil
}

// EncodeStatus2 encodes a legacy Status-2 frame as manufacturer data.
func EncodeStatus2(s *Status2) ([]byte, error) {
	if len(s.DeviceID) != 4 {
		return nil, ErrBadAddress
	}
	b := make([]byte, 0, 2+status2BodyLen)
	b = binary.LittleEndian.AppendUint16(b, CompanyID)
	b = append(b, s.DeviceID...)
	b = binary.LittleEndian.AppendUint16(b, s.ProductID)
	b = binary.LittleEndian.AppendUint16(b, s.OnHours)
	b = binary.LittleEndian.AppendUint16(b, s.PowerCycles)
	b = binary.LittleEndian.AppendUint16(b, s.LedCycles)
	b = append(b, s.OperationExtension, s.DaliStatus)
	return b, nil
}

// EncodeModern encodes a modern frame as manufacturer data. A non-nil
// sealer produces an encrypted frame: the payload is sealed first, then the
// header region is obfuscated with the payload ciphertext as nonce input.
// Only the assigned (1-byte) address form carries a sequence region, so
// encryption requires an assigned address.
func EncodeModern(address LogicalAddress, sequence uint32, payload Payload, sealer Sealer) ([]byte, error) {
	mode, ok := address.Mode()
	if !ok {
		return nil, ErrBadAddress
	}

	plain := payload.Append(nil)
	if len(plain) > MaxPayload {
		return nil, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, len(plain), MaxPayload)
	}

	typeByte := byte(modernMarker) | byte(mode)
	if sealer != nil {
		if mode != ModeAssigned {
			return nil, fmt.Errorf("%w: encryption requires the assigned form", ErrBadAddress)
		}
		typeByte |= flagEncrypted | flagHeaderEncrypted
	}

	b := make([]byte, 0, 2+1+len(address)+5+len(plain)+TagSize)
	b = binary.LittleEndian.AppendUint16(b, CompanyID)
	b = append(b, typeByte)
	b = append(b, address...)

	headerStart := len(b)
	if mode == ModeAssigned {
		b = binary.LittleEndian.AppendUint32(b, sequence)
		b = append(b, 0) // reserved
	}

	if sealer == nil {
		b = append(b, plain...)
	} else {
		ct, tag, err := sealer.SealPayload(address, sequence, plain)
		if err != nil {
			return nil, fmt.Errorf("seal payload: %w", err)
		}
		b = append(b, ct...)
		b = append(b, tag...)
		withTag := b[len(b)-len(ct)-len(tag):]
		if err := sealer.SealHeader(b[headerStart:headerStart+5], withTag); err != nil {
			return nil, fmt.Errorf("seal header: %w", err)
		}
	}

	if len(b)-2 > MaxFrameBody {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(b))
	}
	return b, nil
}
