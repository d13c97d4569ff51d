package multicast

import "errors"

var (
	// ErrBadPrefix indicates a datagram that is not STA:/EVT: prefixed.
	ErrBadPrefix = errors.New("multicast: unexpected datagram prefix")

	// ErrBadPayload indicates a datagram whose JSON payload is unusable.
	ErrBadPayload = errors.New("multicast: invalid datagram payload")

	// ErrAlreadyStarted is returned by Start on a running listener.
	ErrAlreadyStarted = errors.New("multicast: listener already started")

	// ErrClosed is returned by Start on a listener that was shut down.
	ErrClosed = errors.New("multicast: listener closed")
)
