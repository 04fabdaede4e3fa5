package core

import "testing"

func TestParseWirePinPhysical(t *testing.T) {
	cases := []struct {
		raw   uint32
		port  PortID
		index uint8
		name  string
	}{
		{0, PortA, 0, "PA0"},
		{9, PortA, 9, "PA9"},
		{16, PortB, 0, "PB0"},
		{25, PortB, 9, "PB9"},
		{49, PortD, 1, "PD1"},
	}

	for _, tc := range cases {
		pin, err := ParseWirePin(tc.raw)
		if err != nil {
			t.Errorf("ParseWirePin(%d) failed: %v", tc.raw, err)
			continue
		}
		if pin.IsVirtual() {
			t.Errorf("pin %d parsed as virtual", tc.raw)
		}
		if pin.Port() != tc.port || pin.Index() != tc.index {
			t.Errorf("pin %d: got port %d index %d", tc.raw, pin.Port(), pin.Index())
		}
		if pin.String() != tc.name {
			t.Errorf("pin %d: got name %s, want %s", tc.raw, pin.String(), tc.name)
		}
		if pin.Wire() != tc.raw {
			t.Errorf("pin %d: wire round trip gave %d", tc.raw, pin.Wire())
		}
	}
}

func TestParseWirePinVirtual(t *testing.T) {
	cases := []struct {
		raw     uint32
		channel MotorChannel
		role    MotorRole
		name    string
	}{
		{VirtualPinBase, 0, MotorDrive, "AT8236_M1_DRIVE"},
		{VirtualPinBase + 1, 0, MotorDir, "AT8236_M1_DIR"},
		{VirtualPinBase + 6, 3, MotorDrive, "AT8236_M4_DRIVE"},
		{VirtualPinBase + 7, 3, MotorDir, "AT8236_M4_DIR"},
	}

	for _, tc := range cases {
		pin, err := ParseWirePin(tc.raw)
		if err != nil {
			t.Errorf("ParseWirePin(%d) failed: %v", tc.raw, err)
			continue
		}
		if !pin.IsVirtual() {
			t.Errorf("pin %d parsed as physical", tc.raw)
		}
		if pin.Channel() != tc.channel || pin.Role() != tc.role {
			t.Errorf("pin %d: got channel %d role %d", tc.raw, pin.Channel(), pin.Role())
		}
		if pin.String() != tc.name {
			t.Errorf("pin %d: got name %s, want %s", tc.raw, pin.String(), tc.name)
		}
		if pin.Wire() != tc.raw {
			t.Errorf("pin %d: wire round trip gave %d", tc.raw, pin.Wire())
		}
	}
}

func TestParseWirePinInvalid(t *testing.T) {
	// The virtual window holds exactly MotorChannels*2 sub-pins.
	if _, err := ParseWirePin(VirtualPinBase + MotorChannels*2); err == nil {
		t.Error("Expected error past the virtual pin window")
	}
	if _, err := ParseWirePin(1000); err == nil {
		t.Error("Expected error for out-of-range pin")
	}
}
