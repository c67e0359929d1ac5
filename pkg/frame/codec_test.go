package frame

import (
	"encoding/binary"
	"testing"
)

func mfg(body ...byte) []byte {
	b := make([]byte, 0, 2+len(body))
	b = binary.LittleEndian.AppendUint16(b, CompanyID)
	return append(b, body...)
}

func TestDecodeStatus1(t *testing.T) {
	body := []byte{
		1, 2, 3, 4, // device id
		7,          // sequence id
		1,          // hop count
		0x10, 0x27, // intensity 10000 -> 100.00%
		0x05,       // status
		0xC8, 0x00, // power 200 -> 20.0 W
		72,   // led temp
		55,   // pcb temp
		120,  // vin -> 24.0 V
		3,    // vin ripple -> 0.3 V
		0,    // lockout time
		0x01, // extended vin
	}
	f := Decode(mfg(body...))
	if f.Kind != KindStatus1 {
		t.Fatalf("Kind = %v, want STATUS1", f.Kind)
	}
	s := f.Status1
	if !s.DeviceID.Equal(LogicalAddress{1, 2, 3, 4}) {
		t.Errorf("DeviceID = %v", s.DeviceID)
	}
	if got := IntensityPercent(s.Intensity); got != 100.00 {
		t.Errorf("intensity = %v, want 100.00", got)
	}
	if got := PowerWatts(s.Power); got != 20.0 {
		t.Errorf("power = %v, want 20.0", got)
	}
	if got := SupplyVolts(s.Vin); got != 24.0 {
		t.Errorf("vin = %v, want 24.0", got)
	}
	if s.LedTemp != 72 || s.PcbTemp != 55 {
		t.Errorf("temps = %d/%d, want 72/55", s.LedTemp, s.PcbTemp)
	}
}

func TestDecodeStatus2(t *testing.T) {
	body := []byte{
		9, 9, 9, 9, // device id
		0x39, 0x05, // product id 1337
		0x10, 0x00, // on hours 16
		0x03, 0x00, // power cycles 3
		0x05, 0x00, // led cycles 5
		0,    // operation extension
		0x40, // dali status
	}
	f := Decode(mfg(body...))
	if f.Kind != KindStatus2 {
		t.Fatalf("Kind = %v, want STATUS2", f.Kind)
	}
	if f.Status2.ProductID != 1337 || f.Status2.OnHours != 16 {
		t.Errorf("decoded %+v", f.Status2)
	}
}

func TestDecodeUnrecognized(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short", []byte{0x9A}},
		{"foreign company", []byte{0x4C, 0x00, 0x02, 0x15, 0x01}},
		{"bad length", mfg(1, 2, 3)},
		{"legacy length mismatch", mfg(make([]byte, 15)...)},
		{"modern bad mode", mfg(0x13, 0x01, 0x02)},
		{"modern truncated", mfg(0x10, 0x01)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if f := Decode(tt.data); f.Kind != KindUnrecognized {
				t.Errorf("Kind = %v, want UNRECOGNIZED", f.Kind)
			}
		})
	}
}

func TestModernRoundTripPlaintext(t *testing.T) {
	tests := []struct {
		name    string
		address LogicalAddress
		payload Payload
	}{
		{
			name:    "assigned status",
			address: LogicalAddress{0x21},
			payload: &StatusPayload{Intensity: 5000, Status: 1, Power: 123, LedTemp: 68, PcbTemp: 51, Vin: 120, VinRipple: 2},
		},
		{
			name:    "unassigned sensor",
			address: LogicalAddress{0x0A, 0x0B, 0x0C},
			payload: &SensorPayload{Temperature: 21, Voltage: 120, Motion: 1, Illuminance: 430},
		},
		{
			name:    "legacy history",
			address: LogicalAddress{1, 2, 3, 4},
			payload: &HistoryPayload{OnHours: 77, PowerCycles: 8, LedCycles: 13, ProductID: 1000, DaliStatus: 4},
		},
		{
			name:    "group info segment",
			address: LogicalAddress{0x21},
			payload: &GroupInfoPayload{Offset: 5, LastPacket: true, Slots: []uint16{1, 2, UnassignedSlot}},
		},
		{
			name:    "request adv",
			address: LogicalAddress{0x21},
			payload: &RequestAdvPayload{Pages: []uint8{TagStatus, TagHistory}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := EncodeModern(tt.address, 42, tt.payload, nil)
			if err != nil {
				t.Fatalf("EncodeModern failed: %v", err)
			}
			f := Decode(raw)
			if f.Kind != KindModern {
				t.Fatalf("Kind = %v, want MODERN", f.Kind)
			}
			if !f.Address.Equal(tt.address) {
				t.Errorf("Address = %v, want %v", f.Address, tt.address)
			}
			if tt.address.IsAssigned() && f.Sequence != 42 {
				t.Errorf("Sequence = %d, want 42", f.Sequence)
			}
			if f.Encrypted || f.HeaderEncrypted {
				t.Errorf("plaintext frame decoded with encryption flags set")
			}
			p, ok := ParsePayload(f.Payload)
			if !ok {
				t.Fatalf("ParsePayload failed on %x", f.Payload)
			}
			if p.Tag() != tt.payload.Tag() {
				t.Errorf("payload tag = %#x, want %#x", p.Tag(), tt.payload.Tag())
			}
		})
	}
}

func TestGroupInfoSegment(t *testing.T) {
	p := &GroupInfoPayload{Offset: 10, LastPacket: true, Slots: []uint16{3, UnassignedSlot}}
	raw := p.Append(nil)
	parsed, ok := ParsePayload(raw)
	if !ok {
		t.Fatal("ParsePayload failed")
	}
	g := parsed.(*GroupInfoPayload)
	if g.Offset != 10 || !g.LastPacket || len(g.Slots) != 2 {
		t.Errorf("parsed %+v", g)
	}
	if g.Slots[1] != UnassignedSlot {
		t.Errorf("Slots[1] = %#x, want unassigned sentinel", g.Slots[1])
	}
}

func TestParsePayloadRejects(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{"empty", nil},
		{"truncated status", []byte{TagStatus, 1, 2}},
		{"odd group bytes", []byte{TagGroupInfo, 0x00, 0x01}},
		{"unknown tag", []byte{0x7F, 1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := ParsePayload(tt.raw); ok {
				t.Errorf("ParsePayload accepted %x", tt.raw)
			}
		})
	}
}
