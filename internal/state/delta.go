package state

import "github.com/nerrad567/selve-bridge/internal/selve"

// Delta is a partial Commeo status update extracted from one multicast
// message. Nil fields were not present in the message.
type Delta struct {
	Position *int
	RunState *int
	Current  *int
	Target   *int
	Timeout  *int
	Flags    *selve.Flags

	// Changed lists the field names the gateway claims triggered the
	// update, exactly as transmitted. Consumed by the anomaly filter.
	Changed []string
}

// IsZero reports whether the delta carries no status fields at all.
func (d Delta) IsZero() bool {
	return d.Position == nil && d.RunState == nil && d.Current == nil &&
		d.Target == nil && d.Timeout == nil && d.Flags == nil
}

func (d Delta) clone() Delta {
	out := d
	out.Position = cloneInt(d.Position)
	out.RunState = cloneInt(d.RunState)
	out.Current = cloneInt(d.Current)
	out.Target = cloneInt(d.Target)
	out.Timeout = cloneInt(d.Timeout)
	if d.Flags != nil {
		f := *d.Flags
		out.Flags = &f
	}
	if d.Changed != nil {
		out.Changed = append([]string(nil), d.Changed...)
	}
	return out
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	n := *p
	return &n
}
