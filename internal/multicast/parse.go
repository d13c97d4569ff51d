package multicast

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/nerrad567/selve-bridge/internal/selve"
	"github.com/nerrad567/selve-bridge/internal/state"
)

// Datagram prefixes. Both carry the same JSON payload shape.
const (
	prefixState = "STA:"
	prefixEvent = "EVT:"
)

// Kind tags which prefix a message arrived under.
type Kind string

const (
	KindState Kind = "state"
	KindEvent Kind = "event"
)

// Message is one parsed multicast datagram.
type Message struct {
	Kind  Kind
	SID   string
	Delta state.Delta
}

type rawMessage struct {
	SID     string          `json:"sid"`
	State   rawDeltaState   `json:"state"`
	Changed json.RawMessage `json:"changed"`
}

type rawDeltaState struct {
	Position json.RawMessage `json:"position"`
	RunState *int            `json:"run_state"`
	Current  *int            `json:"current"`
	Target   *int            `json:"target"`
	Timeout  *int            `json:"timeout"`
	Flags    json.RawMessage `json:"flags"`
	Changed  json.RawMessage `json:"changed"`
}

// ParseDatagram decodes one raw datagram. Invalid UTF-8 is replaced before
// parsing, mirroring how the gateway's own tooling reads the feed.
func ParseDatagram(data []byte) (Message, error) {
	msg := strings.TrimSpace(strings.ToValidUTF8(string(data), "�"))

	var kind Kind
	var payload string
	switch {
	case strings.HasPrefix(msg, prefixState):
		kind, payload = KindState, msg[len(prefixState):]
	case strings.HasPrefix(msg, prefixEvent):
		kind, payload = KindEvent, msg[len(prefixEvent):]
	default:
		return Message{}, fmt.Errorf("%w: %.16q", ErrBadPrefix, msg)
	}
	var raw rawMessage
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if raw.SID == "" {
		return Message{}, fmt.Errorf("%w: missing sid", ErrBadPayload)
	}

	delta := state.Delta{
		RunState: raw.State.RunState,
		Current:  raw.State.Current,
		Target:   raw.State.Target,
		Timeout:  raw.State.Timeout,
	}
	// Position may be an integer or the "-" sentinel; the sentinel simply
	// does not update the field.
	pos, err := selve.DecodePosition(raw.State.Position)
	if err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	delta.Position = pos
	delta.Flags = parseDeltaFlags(raw.State.Flags)

	// The changed list is seen both at the top level and inside the state
	// block, depending on gateway firmware.
	changed := raw.Changed
	if changed == nil {
		changed = raw.State.Changed
	}
	if changed != nil {
		var names []string
		if err := json.Unmarshal(changed, &names); err == nil {
			delta.Changed = names
		}
	}

	return Message{Kind: kind, SID: raw.SID, Delta: delta}, nil
}

// parseDeltaFlags handles the flag field's wire forms on the multicast path.
// Unlike the HTTP path's 4-hex-digit strings, the gateway emits flags here in
// decimal, as a number or a numeric string. A string therefore reads as
// decimal first; the hex form applies only when it carries hex letters.
// Undecodable flags are dropped, never fatal to the message.
func parseDeltaFlags(raw json.RawMessage) *selve.Flags {
	if len(raw) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		if s == selve.FlagsUnknown {
			return nil
		}
		if n, err := strconv.ParseUint(s, 10, 16); err == nil {
			f := selve.DecodeFlagBits(uint16(n))
			return &f
		}
		if f, err := selve.DecodeFlags(s); err == nil {
			return f
		}
		return nil
	}
	var n uint16
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil
	}
	f := selve.DecodeFlagBits(n)
	return &f
}
