package selve

import (
	"fmt"
	"strconv"
)

// FlagsUnknown is the sentinel the gateway transmits when a device has not
// yet reported its condition flags.
const FlagsUnknown = "-"

// rawFlagsLen is the exact width of a transmitted flags field.
const rawFlagsLen = 4

// Flags is the decoded form of the 16-bit condition bitfield a Commeo device
// reports alongside its status. Bits 11-15 are reserved and not exposed.
type Flags struct {
	Timeout        bool `json:"timeout"`
	Overload       bool `json:"overload"`
	Obstacle       bool `json:"obstacle"`
	EmergencyAlarm bool `json:"emergency_alarm"`
	SensorLearned  bool `json:"sensor_learned"`

	// SensorConnected is the inverse of the transmitted "sensor lost" bit,
	// so that true means healthy across all fields.
	SensorConnected bool `json:"sensor_connected"`

	AutomaticMode bool `json:"automatic_mode"`
	CCTimeout     bool `json:"cc_timeout"`
	WindAlarm     bool `json:"wind_alarm"`
	RainAlarm     bool `json:"rain_alarm"`
	FrostAlarm    bool `json:"frost_alarm"`
}

// DecodeFlags parses a transmitted flags field. The sentinel "-" decodes to
// (nil, nil): flags explicitly unknown rather than all clear. Any other value
// must be exactly four hexadecimal digits.
func DecodeFlags(raw string) (*Flags, error) {
	if raw == FlagsUnknown {
		return nil, nil
	}
	if len(raw) != rawFlagsLen {
		return nil, fmt.Errorf("%w: %q is not %d hex digits", ErrInvalidFlags, raw, rawFlagsLen)
	}
	bits, err := strconv.ParseUint(raw, 16, 16)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidFlags, raw, err)
	}
	f := DecodeFlagBits(uint16(bits))
	return &f, nil
}

// DecodeFlagBits maps the raw bitfield to its decoded form. It is exposed
// separately because the multicast path occasionally delivers the field as a
// plain decimal number instead of a hex string.
func DecodeFlagBits(bits uint16) Flags {
	return Flags{
		Timeout:         bits&(1<<0) != 0,
		Overload:        bits&(1<<1) != 0,
		Obstacle:        bits&(1<<2) != 0,
		EmergencyAlarm:  bits&(1<<3) != 0,
		SensorLearned:   bits&(1<<4) != 0,
		SensorConnected: bits&(1<<5) == 0,
		AutomaticMode:   bits&(1<<6) != 0,
		CCTimeout:       bits&(1<<7) != 0,
		WindAlarm:       bits&(1<<8) != 0,
		RainAlarm:       bits&(1<<9) != 0,
		FrostAlarm:      bits&(1<<10) != 0,
	}
}
