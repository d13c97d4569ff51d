package selve

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Wire discriminator values for the "type" tag.
const (
	wireTypeCommeo = "CM"
	wireTypeIveo   = "IV"
	wireTypeGroup  = "SGROUP"
	wireTypeEvent  = "EVENT"
)

// Commeo "deviceType" tag values.
const (
	commeoTypeReceiver = "00"
	commeoTypeSensor   = "01"
)

type rawRecord struct {
	Type       string          `json:"type"`
	SID        string          `json:"sid"`
	Adr        string          `json:"adr"`
	CID        string          `json:"cid"`
	DeviceType string          `json:"deviceType"`
	EType      string          `json:"eType"`
	Name       string          `json:"name"`
	Group      string          `json:"group"`
	Sys        string          `json:"sys"`
	Config     string          `json:"config"`
	State      json.RawMessage `json:"state"`
}

type rawCommeoStatus struct {
	Position json.RawMessage `json:"position"`
	RunState int             `json:"run_state"`
	Current  int             `json:"current"`
	Target   int             `json:"target"`
	Flags    string          `json:"flags"`
	Timeout  int             `json:"timeout"`
}

// DecodeDevice parses one raw record from a gateway state response. It
// returns (nil, nil) for transient EVENT records, which carry no device
// state and are intentionally dropped. Unknown type tags and malformed
// records return an error; the caller decides whether to skip or abort.
func DecodeDevice(raw json.RawMessage) (Device, error) {
	var rec rawRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	switch rec.Type {
	case wireTypeCommeo:
		return decodeCommeo(&rec)
	case wireTypeIveo:
		return decodeIveo(&rec)
	case wireTypeGroup:
		return decodeGroup(&rec)
	case wireTypeEvent:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownWireType, rec.Type)
	}
}

func decodeCommeo(rec *rawRecord) (Device, error) {
	status, err := decodeCommeoStatus(rec.State)
	if err != nil {
		return nil, fmt.Errorf("sid %s: %w", rec.SID, err)
	}
	switch rec.DeviceType {
	case commeoTypeReceiver:
		eType, err := strconv.Atoi(strings.TrimSpace(rec.EType))
		if err != nil {
			return nil, fmt.Errorf("%w: sid %s: eType %q", ErrInvalidRecord, rec.SID, rec.EType)
		}
		return &CommeoReceiver{
			ID:       rec.SID,
			Address:  rec.Adr,
			CommeoID: rec.CID,
			EType:    eType,
			GroupID:  rec.Group,
			Name:     RepairName(rec.Name),
			Status:   status,
		}, nil
	case commeoTypeSensor:
		return &CommeoSensor{
			ID:       rec.SID,
			Address:  rec.Adr,
			CommeoID: rec.CID,
			Name:     RepairName(rec.Name),
			Status:   status,
		}, nil
	default:
		return nil, fmt.Errorf("%w: sid %s: deviceType %q", ErrUnknownDeviceType, rec.SID, rec.DeviceType)
	}
}

func decodeCommeoStatus(raw json.RawMessage) (Status, error) {
	if len(raw) == 0 {
		return Status{}, fmt.Errorf("%w: missing state block", ErrInvalidRecord)
	}
	var rs rawCommeoStatus
	if err := json.Unmarshal(raw, &rs); err != nil {
		return Status{}, fmt.Errorf("%w: state block: %v", ErrInvalidRecord, err)
	}
	pos, err := DecodePosition(rs.Position)
	if err != nil {
		return Status{}, err
	}
	rawFlags := rs.Flags
	if rawFlags == "" {
		rawFlags = FlagsUnknown
	}
	flags, err := DecodeFlags(rawFlags)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Position: pos,
		RunState: rs.RunState,
		Current:  rs.Current,
		Target:   rs.Target,
		Timeout:  rs.Timeout,
		RawFlags: rawFlags,
		Flags:    flags,
	}, nil
}

// DecodePosition parses the position field, which is either an integer or
// the "-" sentinel meaning not yet reported.
func DecodePosition(raw json.RawMessage) (*int, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == FlagsUnknown {
			return nil, nil
		}
		n, convErr := strconv.Atoi(strings.TrimSpace(s))
		if convErr != nil {
			return nil, fmt.Errorf("%w: position %q", ErrInvalidRecord, s)
		}
		return &n, nil
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, fmt.Errorf("%w: position %s", ErrInvalidRecord, raw)
	}
	return &n, nil
}

func decodeIveo(rec *rawRecord) (Device, error) {
	state := IveoUnknown
	var s string
	if len(rec.State) > 0 {
		if err := json.Unmarshal(rec.State, &s); err != nil {
			return nil, fmt.Errorf("%w: sid %s: iveo state %s", ErrInvalidRecord, rec.SID, rec.State)
		}
	}
	switch s {
	case "open":
		state = IveoOpen
	case "closed":
		state = IveoClosed
	}
	return &IveoReceiver{
		ID:      rec.SID,
		Address: rec.Adr,
		Config:  rec.Config,
		State:   state,
	}, nil
}

func decodeGroup(rec *rawRecord) (Device, error) {
	name := ""
	if decoded, err := base64.StdEncoding.DecodeString(rec.Name); err == nil {
		name = strings.TrimSpace(strings.ToValidUTF8(string(decoded), "�"))
	}
	// Group records reuse the deviceType tag to say what the group actuates.
	kind := GroupMotor
	if rec.DeviceType == "01" {
		kind = GroupSwitch
	}
	return &DeviceGroup{
		ID:      rec.SID,
		Address: rec.Adr,
		System:  System(rec.Sys),
		Kind:    kind,
		Name:    name,
	}, nil
}
