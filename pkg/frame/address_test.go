package frame

import "testing"

func TestLogicalAddressMatches(t *testing.T) {
	tests := []struct {
		name string
		addr LogicalAddress
		mask LogicalAddress
		want bool
	}{
		{"exact", LogicalAddress{1, 2, 3, 4}, LogicalAddress{1, 2, 3, 4}, true},
		{"mismatch", LogicalAddress{1, 2, 3, 4}, LogicalAddress{1, 2, 3, 5}, false},
		{"wildcard last byte", LogicalAddress{1, 2, 3, 4}, LogicalAddress{1, 2, 3, 0xFF}, true},
		{"wildcard middle", LogicalAddress{1, 9, 3, 4}, LogicalAddress{1, 0xFF, 3, 4}, true},
		{"full broadcast", LogicalAddress{200, 10, 4, 77}, BroadcastAddress, true},
		{"assigned widens", LogicalAddress{4}, LogicalAddress{0xFF, 0xFF, 0xFF, 4}, true},
		{"assigned against broadcast", LogicalAddress{4}, BroadcastAddress, true},
		{"invalid length", LogicalAddress{1, 2}, BroadcastAddress, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.addr.Matches(tt.mask); got != tt.want {
				t.Errorf("Matches(%v, %v) = %v, want %v", tt.addr, tt.mask, got, tt.want)
			}
		})
	}
}

func TestDestinationFor(t *testing.T) {
	tests := []struct {
		name   string
		addr   LogicalAddress
		legacy bool
		want   LogicalAddress
	}{
		{"assigned kept short", LogicalAddress{0x21}, false, LogicalAddress{0x21}},
		{"wide unicast collapses", LogicalAddress{0xFF, 0xFF, 0xFF, 0x21}, false, LogicalAddress{0x21}},
		{"broadcast collapses", BroadcastAddress, false, LogicalAddress{0xFF}},
		{"legacy broadcast stays wide", BroadcastAddress, true, BroadcastAddress},
		{"legacy widens assigned", LogicalAddress{0x21}, true, LogicalAddress{0xFF, 0xFF, 0xFF, 0x21}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DestinationFor(tt.addr, tt.legacy)
			if !got.Equal(tt.want) {
				t.Errorf("DestinationFor(%v, %v) = %v, want %v", tt.addr, tt.legacy, got, tt.want)
			}
		})
	}
}

func TestParseLogicalAddress(t *testing.T) {
	tests := []struct {
		in      string
		want    LogicalAddress
		wantErr bool
	}{
		{"33", LogicalAddress{33}, false},
		{"10.20.30", LogicalAddress{10, 20, 30}, false},
		{"255.255.255.255", BroadcastAddress, false},
		{"1.2", nil, true},
		{"1.2.3.4.5", nil, true},
		{"300", nil, true},
		{"a.b.c.d", nil, true},
	}
	for _, tt := range tests {
		got, err := ParseLogicalAddress(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseLogicalAddress(%q) accepted", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseLogicalAddress(%q) failed: %v", tt.in, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("ParseLogicalAddress(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRadioAddressRoundTrip(t *testing.T) {
	addr := RadioAddress{35, 69, 103, 80, 160, 0}
	s := addr.String()
	if s != "35.69.103.80.160.0" {
		t.Fatalf("String() = %q", s)
	}
	parsed, err := ParseRadioAddress(s)
	if err != nil {
		t.Fatalf("ParseRadioAddress failed: %v", err)
	}
	if parsed != addr {
		t.Errorf("round trip mismatch: %v != %v", parsed, addr)
	}
	if _, err := ParseRadioAddress("1.2.3"); err == nil {
		t.Error("short address accepted")
	}

	unassigned := addr.Unassigned()
	if !unassigned.Equal(LogicalAddress{80, 160, 0}) {
		t.Errorf("Unassigned() = %v", unassigned)
	}
}
