package selve

import "errors"

var (
	// ErrInvalidRecord indicates a device record that could not be parsed as
	// JSON or was missing required fields.
	ErrInvalidRecord = errors.New("selve: malformed device record")

	// ErrUnknownWireType indicates a record whose "type" tag is not one the
	// gateway is known to emit.
	ErrUnknownWireType = errors.New("selve: unknown record type")

	// ErrUnknownDeviceType indicates a Commeo record whose "deviceType" tag
	// is neither receiver nor sensor.
	ErrUnknownDeviceType = errors.New("selve: unknown commeo device type")

	// ErrInvalidFlags indicates a flags field that is present but not a
	// 4-digit hexadecimal string.
	ErrInvalidFlags = errors.New("selve: invalid flags field")
)
