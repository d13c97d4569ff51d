package bridge

import (
	"time"

	"github.com/nerrad567/selve-bridge/internal/history"
	"github.com/nerrad567/selve-bridge/internal/selve"
)

// Device kinds used in state messages.
const (
	KindCommeoReceiver = "commeo_receiver"
	KindCommeoSensor   = "commeo_sensor"
	KindIveoReceiver   = "iveo_receiver"
	KindGroup          = "group"
)

// StateMessage is the JSON payload published (retained) to selve/state/<sid>
// whenever a device's reconciled state changes. Fields not meaningful for a
// device kind are omitted: an Iveo receiver has no status block, a group has
// no position.
type StateMessage struct {
	SID  string `json:"sid"`
	Kind string `json:"kind"`
	Name string `json:"name,omitempty"`

	// Group fields.
	System    string `json:"system,omitempty"`
	GroupKind string `json:"group_kind,omitempty"`

	// Commeo receiver classification.
	EType      *int   `json:"etype,omitempty"`
	ETypeLabel string `json:"etype_label,omitempty"`
	IsMotor    bool   `json:"is_motor,omitempty"`

	// Iveo assumed state.
	State string `json:"state,omitempty"`

	// Commeo status block. Position stays on the gateway's scale; consumers
	// that want open=100 invert it themselves.
	Position *int         `json:"position,omitempty"`
	RunState *int         `json:"run_state,omitempty"`
	Current  *int         `json:"current,omitempty"`
	Target   *int         `json:"target,omitempty"`
	Timeout  *int         `json:"timeout,omitempty"`
	Flags    *selve.Flags `json:"flags,omitempty"`
	RawFlags string       `json:"raw_flags,omitempty"`

	// Commands is the advisory vocabulary for the device, empty for sensors.
	Commands []string `json:"commands,omitempty"`

	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// NewStateMessage builds the outward state representation of a device.
// source identifies the channel that produced the change (poll/multicast).
func NewStateMessage(dev selve.Device, source string) StateMessage {
	msg := StateMessage{
		SID:       dev.SID(),
		Name:      dev.DisplayName(),
		Commands:  selve.CommandsFor(dev),
		Source:    source,
		Timestamp: time.Now().UTC(),
	}

	switch d := dev.(type) {
	case *selve.CommeoReceiver:
		msg.Kind = KindCommeoReceiver
		etype := d.EType
		msg.EType = &etype
		msg.ETypeLabel = selve.ETypeLabel(d.EType)
		msg.IsMotor = d.IsMotor()
		fillStatus(&msg, d.Status)
	case *selve.CommeoSensor:
		msg.Kind = KindCommeoSensor
		fillStatus(&msg, d.Status)
	case *selve.IveoReceiver:
		msg.Kind = KindIveoReceiver
		msg.State = string(d.State)
	case *selve.DeviceGroup:
		msg.Kind = KindGroup
		msg.System = string(d.System)
		msg.GroupKind = string(d.Kind)
	}
	return msg
}

func fillStatus(msg *StateMessage, st selve.Status) {
	if st.Position != nil {
		p := *st.Position
		msg.Position = &p
	}
	run, cur, tgt, to := st.RunState, st.Current, st.Target, st.Timeout
	msg.RunState = &run
	msg.Current = &cur
	msg.Target = &tgt
	msg.Timeout = &to
	msg.RawFlags = st.RawFlags
	if st.Flags != nil {
		f := *st.Flags
		msg.Flags = &f
	}
}

// Snapshot flattens the message into the map shape the history repository
// stores. Zero-value optional fields are left out so rows stay compact.
func (m StateMessage) Snapshot() history.Snapshot {
	s := history.Snapshot{"kind": m.Kind}
	if m.Name != "" {
		s["name"] = m.Name
	}
	if m.System != "" {
		s["system"] = m.System
	}
	if m.GroupKind != "" {
		s["group_kind"] = m.GroupKind
	}
	if m.State != "" {
		s["state"] = m.State
	}
	if m.Position != nil {
		s["position"] = *m.Position
	}
	if m.RunState != nil {
		s["run_state"] = *m.RunState
	}
	if m.Current != nil {
		s["current"] = *m.Current
	}
	if m.Target != nil {
		s["target"] = *m.Target
	}
	if m.Timeout != nil {
		s["timeout"] = *m.Timeout
	}
	if m.Flags != nil {
		s["flags"] = *m.Flags
	}
	return s
}

// CommandMessage is the JSON payload accepted on selve/command/<sid>.
//
//	{"cmd": "moveTo", "value": 40, "source": "hass"}
//
// value is required only by commands that take a parameter (moveTo);
// source is free-form and used for logging only.
type CommandMessage struct {
	Cmd    string `json:"cmd"`
	Value  *int   `json:"value,omitempty"`
	Source string `json:"source,omitempty"`
}

// Health statuses published to selve/health.
type HealthStatus string

const (
	HealthStarting HealthStatus = "starting"
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthStopping HealthStatus = "stopping"
)

// GatewayIdentity is the stable identity of the gateway behind the bridge,
// taken from its /info self-description. The MAC is the canonical key.
type GatewayIdentity struct {
	MAC      string `json:"mac,omitempty"`
	Name     string `json:"name,omitempty"`
	Serial   string `json:"serial,omitempty"`
	Firmware string `json:"firmware,omitempty"`
	IP       string `json:"ip,omitempty"`
}

// identityFrom extracts the identity fields from a full server info record.
func identityFrom(info *selve.ServerInfo) *GatewayIdentity {
	if info == nil {
		return nil
	}
	return &GatewayIdentity{
		MAC:      info.MAC,
		Name:     info.Name,
		Serial:   info.Serial,
		Firmware: info.MFV,
		IP:       info.IP,
	}
}

// HealthMessage is the retained heartbeat published to selve/health.
type HealthMessage struct {
	Status        HealthStatus     `json:"status"`
	Reason        string           `json:"reason,omitempty"`
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	DeviceCount   int              `json:"device_count"`
	Polls         uint64           `json:"polls"`
	DeltasApplied uint64           `json:"deltas_applied"`
	DeltasDropped uint64           `json:"deltas_dropped"`
	CommandsSent  uint64           `json:"commands_sent"`
	Gateway       *GatewayIdentity `json:"gateway,omitempty"`
	Timestamp     time.Time        `json:"timestamp"`
}

// NewHealthMessage assembles a heartbeat from the current counters.
func NewHealthMessage(status HealthStatus, version string, stats HealthStats, gw *GatewayIdentity, startTime time.Time) HealthMessage {
	return HealthMessage{
		Status:        status,
		Version:       version,
		UptimeSeconds: int64(time.Since(startTime).Seconds()),
		DeviceCount:   stats.DeviceCount,
		Polls:         stats.Polls,
		DeltasApplied: stats.DeltasApplied,
		DeltasDropped: stats.DeltasDropped,
		CommandsSent:  stats.CommandsSent,
		Gateway:       gw,
		Timestamp:     time.Now().UTC(),
	}
}
