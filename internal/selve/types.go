package selve

// System identifies the radio protocol family a device or group belongs to.
type System string

const (
	// SystemCommeo is the bidirectional protocol: devices report status.
	SystemCommeo System = "CM"
	// SystemIveo is the unidirectional protocol: state is assumed, not read.
	SystemIveo System = "IV"
)

// GroupKind distinguishes what a device group actuates.
type GroupKind string

const (
	GroupMotor  GroupKind = "motor"
	GroupSwitch GroupKind = "switch"
)

// IveoState is the coarse assumed state of a positionless Iveo receiver.
type IveoState string

const (
	IveoOpen    IveoState = "open"
	IveoClosed  IveoState = "closed"
	IveoUnknown IveoState = "unknown"
)

// Device is the closed set of typed records the gateway reports. The only
// constructor is DecodeDevice; implementations live in this package.
type Device interface {
	// SID returns the gateway-scoped stable identifier used for addressing
	// the device in commands, state topics and multicast updates.
	SID() string
	// DisplayName returns the repaired human-readable name.
	DisplayName() string

	// Clone returns a deep copy safe to hand outside a store lock.
	Clone() Device

	isDevice()
}

// Status is the Commeo status block reported for receivers and sensors.
type Status struct {
	// Position is the reported position on the 0-100 scale as transmitted.
	// Nil when the device has not reported one yet ("-" on the wire).
	// Note the gateway's scale is inverted relative to the usual open=100
	// convention; presentation layers subtract from 100.
	Position *int

	RunState int
	Current  int
	Target   int
	Timeout  int

	// RawFlags is the flags field exactly as transmitted ("-" when unknown).
	RawFlags string
	// Flags is RawFlags decoded locally; nil while RawFlags is the sentinel.
	Flags *Flags
}

func (s Status) clone() Status {
	out := s
	if s.Position != nil {
		p := *s.Position
		out.Position = &p
	}
	if s.Flags != nil {
		f := *s.Flags
		out.Flags = &f
	}
	return out
}

// CommeoReceiver is a bidirectional actuator: a motor drive or switching
// actuator that reports live status.
type CommeoReceiver struct {
	ID       string
	Address  string
	CommeoID string
	EType    int
	GroupID  string
	Name     string
	Status   Status
}

func (d *CommeoReceiver) SID() string         { return d.ID }
func (d *CommeoReceiver) DisplayName() string { return d.Name }
func (d *CommeoReceiver) Clone() Device {
	out := *d
	out.Status = d.Status.clone()
	return &out
}
func (*CommeoReceiver) isDevice() {}

// IsMotor reports whether the receiver is a positional motor drive.
func (d *CommeoReceiver) IsMotor() bool { return IsMotorEType(d.EType) }

// CommeoSensor is a bidirectional sensor (wind, rain, sun). It carries the
// same status block as a receiver but no eType or group membership.
type CommeoSensor struct {
	ID       string
	Address  string
	CommeoID string
	Name     string
	Status   Status
}

func (d *CommeoSensor) SID() string         { return d.ID }
func (d *CommeoSensor) DisplayName() string { return d.Name }
func (d *CommeoSensor) Clone() Device {
	out := *d
	out.Status = d.Status.clone()
	return &out
}
func (*CommeoSensor) isDevice() {}

// IveoReceiver is a unidirectional actuator. The gateway tracks only an
// assumed coarse state for it, and the wire record carries no display name.
type IveoReceiver struct {
	ID      string
	Address string
	Config  string
	State   IveoState
}

func (d *IveoReceiver) SID() string         { return d.ID }
func (d *IveoReceiver) DisplayName() string { return "" }
func (d *IveoReceiver) Clone() Device {
	out := *d
	return &out
}
func (*IveoReceiver) isDevice() {}

// DeviceGroup is a gateway-defined group of devices addressed as one unit.
// Its name arrives base64-encoded on the wire.
type DeviceGroup struct {
	ID      string
	Address string
	System  System
	Kind    GroupKind
	Name    string
}

func (d *DeviceGroup) SID() string         { return d.ID }
func (d *DeviceGroup) DisplayName() string { return d.Name }
func (d *DeviceGroup) Clone() Device {
	out := *d
	return &out
}
func (*DeviceGroup) isDevice() {}

// ServerInfo is the gateway's self-description from the /info endpoint.
// The MAC address serves as the stable identity of the gateway itself.
type ServerInfo struct {
	Name   string `json:"name"`
	MHV    string `json:"mhv"`
	MFV    string `json:"mfv"`
	MSV    string `json:"msv"`
	HWV    string `json:"hwv"`
	VID    string `json:"vid"`
	Mem    string `json:"mem"`
	IP     string `json:"ip"`
	SN     string `json:"sn"`
	GW     string `json:"gw"`
	DNS    string `json:"dns"`
	MAC    string `json:"mac"`
	NTP    string `json:"ntp"`
	Start  string `json:"start"`
	Time   string `json:"time"`
	Loc    string `json:"loc"`
	Serial string `json:"serial"`
	IO     string `json:"io"`
	Cfg    string `json:"cfg"`
	Server string `json:"server"`
	SID    string `json:"sid"`
	Locked string `json:"locked"`
	WiFi   string `json:"wifi"`
	RSSI   string `json:"rssi"`
}
