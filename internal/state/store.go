package state

import (
	"sync"
	"time"

	"github.com/nerrad567/selve-bridge/internal/selve"
)

// udpFreshWindow is how long a multicast delta outranks a conflicting poll
// value. The gateway's poll output can lag its multicast feed by a few
// seconds; beyond this window a disagreement is a real divergence.
const udpFreshWindow = 20 * time.Second

// Update sources, recorded per notification so downstream consumers (state
// history, telemetry) know which channel produced a change.
const (
	SourcePoll      = "poll"
	SourceMulticast = "multicast"
)

// Logger is the minimal logging interface the store needs. A nil logger
// disables logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Observer is notified after a device's stored state changed. sid identifies
// the device; source is SourcePoll or SourceMulticast. Observers run on the
// mutating goroutine and must not block.
type Observer func(sid, source string)

type recencyEntry struct {
	delta Delta
	at    time.Time
}

// Store is the reconciling device-state store. The zero value is not usable;
// use NewStore.
type Store struct {
	mu        sync.Mutex
	devices   map[string]selve.Device
	recency   map[string]recencyEntry
	observers []Observer

	logger   Logger
	loggerMu sync.RWMutex

	// now is replaceable for tests.
	now func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		devices: make(map[string]selve.Device),
		recency: make(map[string]recencyEntry),
		now:     time.Now,
	}
}

// SetLogger attaches a logger. Safe to call at any time.
func (s *Store) SetLogger(logger Logger) {
	s.loggerMu.Lock()
	s.logger = logger
	s.loggerMu.Unlock()
}

// Subscribe registers an observer for state changes. Not safe to call
// concurrently with Apply* once the ingest loops are running; register
// observers during wiring.
func (s *Store) Subscribe(fn Observer) {
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
}

// Get returns a deep copy of the device with the given sid.
func (s *Store) Get(sid string) (selve.Device, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dev, ok := s.devices[sid]
	if !ok {
		return nil, false
	}
	return dev.Clone(), true
}

// All returns deep copies of every known device, keyed by sid.
func (s *Store) All() map[string]selve.Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]selve.Device, len(s.devices))
	for sid, dev := range s.devices {
		out[sid] = dev.Clone()
	}
	return out
}

// Len returns the number of known devices.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.devices)
}

// ApplySnapshot merges a full poll snapshot. For each Commeo device the most
// recent multicast delta is replayed field by field: a fresh delta wins
// silently, a stale one loses to the poll with a mismatch warning. Devices
// the snapshot does not mention are retained as-is, so a partially decoded
// response never erases known devices.
func (s *Store) ApplySnapshot(devices []selve.Device) {
	s.mu.Lock()
	now := s.now()
	updated := make([]string, 0, len(devices))
	for _, dev := range devices {
		if dev == nil {
			continue
		}
		stored := dev.Clone()
		if st := statusOf(stored); st != nil {
			if entry, ok := s.recency[stored.SID()]; ok {
				s.reconcile(stored.SID(), st, entry, now)
			}
		}
		s.devices[stored.SID()] = stored
		updated = append(updated, stored.SID())
	}
	observers := append([]Observer(nil), s.observers...)
	s.mu.Unlock()

	for _, sid := range updated {
		notify(observers, sid, SourcePoll)
	}
}

// reconcile replays a remembered delta over a freshly polled status.
// Caller holds s.mu.
func (s *Store) reconcile(sid string, st *selve.Status, entry recencyEntry, now time.Time) {
	fresh := now.Sub(entry.at) <= udpFreshWindow
	d := entry.delta

	if d.Position != nil && !intPtrEqual(st.Position, d.Position) {
		if fresh {
			st.Position = cloneInt(d.Position)
		} else {
			s.warnMismatch(sid, "position", st.Position, *d.Position)
		}
	}
	if d.RunState != nil && st.RunState != *d.RunState {
		if fresh {
			st.RunState = *d.RunState
		} else {
			s.warnMismatch(sid, "run_state", st.RunState, *d.RunState)
		}
	}
	if d.Current != nil && st.Current != *d.Current {
		if fresh {
			st.Current = *d.Current
		} else {
			s.warnMismatch(sid, "current", st.Current, *d.Current)
		}
	}
	if d.Target != nil && st.Target != *d.Target {
		if fresh {
			st.Target = *d.Target
		} else {
			s.warnMismatch(sid, "target", st.Target, *d.Target)
		}
	}
	if d.Timeout != nil && st.Timeout != *d.Timeout {
		if fresh {
			st.Timeout = *d.Timeout
		} else {
			s.warnMismatch(sid, "timeout", st.Timeout, *d.Timeout)
		}
	}
	if d.Flags != nil && !flagsEqual(st.Flags, d.Flags) {
		if fresh {
			f := *d.Flags
			st.Flags = &f
			// Deltas carry flags only in decoded form; the polled raw
			// string no longer matches and is dropped.
			st.RawFlags = ""
		} else {
			s.warnMismatch(sid, "flags", st.Flags, *d.Flags)
		}
	}
}

// ApplyDelta merges one multicast delta. Returns true when the delta was
// applied. Deltas for unknown devices or non-Commeo devices are dropped, as
// is the gateway's known bogus reset burst.
func (s *Store) ApplyDelta(sid string, d Delta) bool {
	s.mu.Lock()
	dev, ok := s.devices[sid]
	if !ok {
		s.mu.Unlock()
		s.logDebug("delta for unknown device dropped", "sid", sid)
		return false
	}
	st := statusOf(dev)
	if st == nil {
		s.mu.Unlock()
		s.logDebug("delta for statusless device dropped", "sid", sid)
		return false
	}
	if isBogusBurst(d, st.RunState) {
		s.mu.Unlock()
		s.logWarn("discarding bogus multicast burst", "sid", sid)
		return false
	}

	if d.Position != nil {
		st.Position = cloneInt(d.Position)
	}
	if d.RunState != nil {
		st.RunState = *d.RunState
	}
	if d.Current != nil {
		st.Current = *d.Current
	}
	if d.Target != nil {
		st.Target = *d.Target
	}
	if d.Timeout != nil {
		st.Timeout = *d.Timeout
	}
	if d.Flags != nil {
		f := *d.Flags
		st.Flags = &f
		// Deltas carry flags only in decoded form; a previously polled raw
		// string would now contradict them.
		st.RawFlags = ""
	}
	s.recency[sid] = recencyEntry{delta: d.clone(), at: s.now()}
	observers := append([]Observer(nil), s.observers...)
	s.mu.Unlock()

	notify(observers, sid, SourceMulticast)
	return true
}

// The gateway sporadically multicasts a burst claiming a device at rest has
// reset to endpoints (position 0, current/target 100). The burst always
// names exactly these seven fields. Matching deltas for an idle device are
// discarded wholesale; a genuinely moving device (run-state != 0) is never
// filtered.
var bogusBurstFields = map[string]struct{}{
	"overload":      {},
	"obstacle":      {},
	"alarm":         {},
	"position":      {},
	"current":       {},
	"target":        {},
	"running_state": {},
}

func isBogusBurst(d Delta, prevRunState int) bool {
	if prevRunState != 0 {
		return false
	}
	if len(d.Changed) != len(bogusBurstFields) {
		return false
	}
	for _, name := range d.Changed {
		if _, ok := bogusBurstFields[name]; !ok {
			return false
		}
	}
	return d.RunState != nil && *d.RunState == 0 &&
		d.Position != nil && *d.Position == 0 &&
		d.Current != nil && *d.Current == 100 &&
		d.Target != nil && *d.Target == 100 &&
		d.Timeout != nil && *d.Timeout == 0
}

// statusOf returns a pointer into the stored device's status block, or nil
// for devices without one. Caller must hold s.mu for the pointer to be safe.
func statusOf(dev selve.Device) *selve.Status {
	switch d := dev.(type) {
	case *selve.CommeoReceiver:
		return &d.Status
	case *selve.CommeoSensor:
		return &d.Status
	default:
		return nil
	}
}

func notify(observers []Observer, sid, source string) {
	for _, fn := range observers {
		fn(sid, source)
	}
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func flagsEqual(a, b *selve.Flags) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (s *Store) warnMismatch(sid, field string, pollVal, udpVal any) {
	s.logWarn("poll/multicast state mismatch",
		"sid", sid, "field", field, "poll", pollVal, "udp", udpVal)
}

func (s *Store) logDebug(msg string, args ...any) {
	s.loggerMu.RLock()
	logger := s.logger
	s.loggerMu.RUnlock()
	if logger != nil {
		logger.Debug(msg, args...)
	}
}

func (s *Store) logWarn(msg string, args ...any) {
	s.loggerMu.RLock()
	logger := s.logger
	s.loggerMu.RUnlock()
	if logger != nil {
		logger.Warn(msg, args...)
	}
}
