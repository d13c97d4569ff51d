package history

import (
	"context"
	"time"
)

// State history source values, matching the store's update sources.
const (
	SourcePoll      = "poll"
	SourceMulticast = "multicast"
	SourceCommand   = "command"
)

// Snapshot is the JSON-serialisable state captured per entry.
type Snapshot = map[string]any

// Entry represents a single device state change record.
type Entry struct {
	// ID is the auto-incremented primary key for the history row.
	ID int64 `json:"id"`

	// DeviceID is the gateway-scoped device identifier (sid).
	DeviceID string `json:"device_id"`

	// State is the JSON snapshot of the device state.
	State Snapshot `json:"state"`

	// Source identifies the channel that produced the change.
	Source string `json:"source"`

	// CreatedAt is the timestamp of the state change (UTC).
	CreatedAt time.Time `json:"created_at"`
}

// Repository stores and retrieves device state change history.
//
// Implementations must be thread-safe and use UTC timestamps.
type Repository interface {
	// RecordStateChange records a device state change.
	RecordStateChange(ctx context.Context, deviceID string, state Snapshot, source string) error

	// GetHistory returns recent history for the device, newest first.
	// The limit may be clamped by the implementation.
	GetHistory(ctx context.Context, deviceID string, limit int) ([]Entry, error)
}
