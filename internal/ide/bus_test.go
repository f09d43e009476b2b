package ide

import "testing"

func TestWord(t *testing.T) {
	w := WordOf(0xEB14)
	if w.Low != 0x14 || w.High != 0xEB {
		t.Errorf("WordOf(0xEB14) = %+v", w)
	}
	if w.Value() != 0xEB14 {
		t.Errorf("Value() = 0x%04X, want 0xEB14", w.Value())
	}

	b := Byte(0xA0)
	if b.Low != 0xA0 || b.High != 0xFF {
		t.Errorf("Byte(0xA0) = %+v, want high lane 0xFF", b)
	}
}

func TestRegisterDecoding(t *testing.T) {
	tests := []struct {
		reg     Register
		a       uint8
		cs1     bool // asserted (low)
		cs3     bool
		control bool
	}{
		{RegData, 0, true, false, false},
		{RegStatus, 7, true, false, false},
		{RegCylinderLow, 4, true, false, false},
		{RegDeviceControl, 6, false, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.reg.String(), func(t *testing.T) {
			v := uint8(tt.reg)
			if v&0x7 != tt.a {
				t.Errorf("address lines = %d, want %d", v&0x7, tt.a)
			}
			if (v&0x08 == 0) != tt.cs1 {
				t.Errorf("CS1FX asserted = %v, want %v", v&0x08 == 0, tt.cs1)
			}
			if (v&0x10 == 0) != tt.cs3 {
				t.Errorf("CS3FX asserted = %v, want %v", v&0x10 == 0, tt.cs3)
			}
			if v&ctlMask != ctlMask {
				t.Error("register addresses must leave the strobe and reset lines released")
			}
		})
	}
}
