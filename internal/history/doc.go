// Package history persists a local audit trail of device state changes in
// SQLite. Each applied update, whether it arrived via poll, multicast or as
// the echo of a command, is stored as a full JSON snapshot, so the recent
// behaviour of a device can be inspected without a time-series database.
package history
