package selve

import (
	"errors"
	"fmt"
	"testing"
)

func TestDecodeFlagsSentinel(t *testing.T) {
	f, err := DecodeFlags(FlagsUnknown)
	if err != nil {
		t.Fatalf("DecodeFlags(%q) error: %v", FlagsUnknown, err)
	}
	if f != nil {
		t.Fatalf("DecodeFlags(%q) = %+v, want nil", FlagsUnknown, f)
	}
}

func TestDecodeFlagsInvalid(t *testing.T) {
	cases := []string{"", "0", "00f", "00fff", "zzzz", "0x1f", " 01f", "-000"}
	for _, raw := range cases {
		t.Run(fmt.Sprintf("%q", raw), func(t *testing.T) {
			if _, err := DecodeFlags(raw); !errors.Is(err, ErrInvalidFlags) {
				t.Errorf("DecodeFlags(%q) error = %v, want ErrInvalidFlags", raw, err)
			}
		})
	}
}

func TestDecodeFlagsBitMapping(t *testing.T) {
	tests := []struct {
		raw   string
		check func(Flags) bool
		desc  string
	}{
		{"0001", func(f Flags) bool { return f.Timeout }, "bit0 timeout"},
		{"0002", func(f Flags) bool { return f.Overload }, "bit1 overload"},
		{"0004", func(f Flags) bool { return f.Obstacle }, "bit2 obstacle"},
		{"0008", func(f Flags) bool { return f.EmergencyAlarm }, "bit3 emergency"},
		{"0010", func(f Flags) bool { return f.SensorLearned }, "bit4 sensor learned"},
		{"0020", func(f Flags) bool { return !f.SensorConnected }, "bit5 sensor lost"},
		{"0040", func(f Flags) bool { return f.AutomaticMode }, "bit6 automatic"},
		{"0080", func(f Flags) bool { return f.CCTimeout }, "bit7 cc timeout"},
		{"0100", func(f Flags) bool { return f.WindAlarm }, "bit8 wind"},
		{"0200", func(f Flags) bool { return f.RainAlarm }, "bit9 rain"},
		{"0400", func(f Flags) bool { return f.FrostAlarm }, "bit10 frost"},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			f, err := DecodeFlags(tt.raw)
			if err != nil {
				t.Fatalf("DecodeFlags(%q) error: %v", tt.raw, err)
			}
			if !tt.check(*f) {
				t.Errorf("DecodeFlags(%q) = %+v: %s not set", tt.raw, *f, tt.desc)
			}
		})
	}
}

// Every 16-bit value must round-trip exactly: decoding the hex rendering
// yields the same bits DecodeFlagBits maps, reserved bits ignored.
func TestDecodeFlagsExhaustive(t *testing.T) {
	for bits := 0; bits <= 0xFFFF; bits++ {
		raw := fmt.Sprintf("%04x", bits)
		f, err := DecodeFlags(raw)
		if err != nil {
			t.Fatalf("DecodeFlags(%q) error: %v", raw, err)
		}
		want := DecodeFlagBits(uint16(bits))
		if *f != want {
			t.Fatalf("DecodeFlags(%q) = %+v, want %+v", raw, *f, want)
		}
	}
}

func TestDecodeFlagsUppercaseHex(t *testing.T) {
	f, err := DecodeFlags("04FF")
	if err != nil {
		t.Fatalf("DecodeFlags uppercase error: %v", err)
	}
	if !f.FrostAlarm || !f.Timeout || !f.CCTimeout {
		t.Errorf("DecodeFlags(\"04FF\") = %+v", *f)
	}
}

func TestDecodeFlagBitsAllClear(t *testing.T) {
	f := DecodeFlagBits(0)
	if !f.SensorConnected {
		t.Error("all-clear bits: SensorConnected = false, want true (inverted bit)")
	}
	if f.Timeout || f.Overload || f.Obstacle || f.WindAlarm {
		t.Errorf("all-clear bits set unexpected fields: %+v", f)
	}
}
