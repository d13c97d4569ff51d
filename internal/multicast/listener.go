package multicast

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Defaults for the gateway's announcement group.
const (
	DefaultGroup = "239.255.255.250"
	DefaultPort  = 1901
)

const (
	// readBufferSize comfortably holds the largest datagram the gateway
	// sends (a full state burst).
	readBufferSize = 64 * 1024

	// readDeadline bounds each blocking read so shutdown is prompt.
	readDeadline = 1 * time.Second

	// retryDelay throttles the loop after a transient socket error.
	retryDelay = 100 * time.Millisecond
)

// Logger is the minimal logging interface the listener needs. Nil disables
// logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Handler receives each successfully parsed message. It runs on the receive
// goroutine; blocking work must be dispatched elsewhere by the handler.
type Handler func(Message)

// Options configures a Listener.
type Options struct {
	// Group is the multicast group address. Defaults to DefaultGroup.
	Group string
	// Port is the UDP port. Defaults to DefaultPort.
	Port int
	// OnMessage is invoked for every parsed datagram. Required.
	OnMessage Handler
	// Logger is optional.
	Logger Logger
}

// Listener joins the gateway's multicast group and feeds parsed messages to
// a handler until closed.
type Listener struct {
	group     string
	port      int
	onMessage Handler

	conn *net.UDPConn
	wg   sync.WaitGroup

	started  atomic.Bool
	done     chan struct{}
	doneOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex

	received  atomic.Uint64
	discarded atomic.Uint64
}

// NewListener creates a listener. Start must be called before any messages
// flow.
func NewListener(opts Options) (*Listener, error) {
	if opts.OnMessage == nil {
		return nil, fmt.Errorf("multicast: OnMessage handler is required")
	}
	group := opts.Group
	if group == "" {
		group = DefaultGroup
	}
	port := opts.Port
	if port == 0 {
		port = DefaultPort
	}
	return &Listener{
		group:     group,
		port:      port,
		onMessage: opts.OnMessage,
		done:      make(chan struct{}),
		logger:    opts.Logger,
	}, nil
}

// SetLogger attaches a logger after construction.
func (l *Listener) SetLogger(logger Logger) {
	l.loggerMu.Lock()
	l.logger = logger
	l.loggerMu.Unlock()
}

// Start joins the multicast group and launches the receive loop.
func (l *Listener) Start() error {
	select {
	case <-l.done:
		return ErrClosed
	default:
	}
	if !l.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	ip := net.ParseIP(l.group)
	if ip == nil {
		return fmt.Errorf("multicast: invalid group address %q", l.group)
	}
	conn, err := net.ListenMulticastUDP("udp4", nil, &net.UDPAddr{IP: ip, Port: l.port})
	if err != nil {
		return fmt.Errorf("multicast: join %s:%d: %w", l.group, l.port, err)
	}
	if err := conn.SetReadBuffer(readBufferSize); err != nil {
		l.logDebug("failed to grow socket read buffer", "error", err)
	}
	l.conn = conn

	l.logInfo("multicast listener started", "group", l.group, "port", l.port)
	l.wg.Add(1)
	go l.receiveLoop()
	return nil
}

// Close stops the receive loop and releases the socket. Idempotent.
func (l *Listener) Close() error {
	l.doneOnce.Do(func() {
		close(l.done)
		if l.conn != nil {
			_ = l.conn.Close()
		}
	})
	l.wg.Wait()
	return nil
}

// Stats returns the running datagram counters.
func (l *Listener) Stats() (received, discarded uint64) {
	return l.received.Load(), l.discarded.Load()
}

func (l *Listener) receiveLoop() {
	defer l.wg.Done()
	buf := make([]byte, readBufferSize)
	for {
		select {
		case <-l.done:
			return
		default:
		}

		_ = l.conn.SetReadDeadline(time.Now().Add(readDeadline))
		n, _, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			l.logDebug("multicast read error", "error", err)
			time.Sleep(retryDelay)
			continue
		}
		l.received.Add(1)
		l.handleDatagram(buf[:n])
	}
}

func (l *Listener) handleDatagram(data []byte) {
	msg, err := ParseDatagram(data)
	if err != nil {
		l.discarded.Add(1)
		if errors.Is(err, ErrBadPrefix) {
			l.logWarn("discarding datagram", "error", err)
		} else {
			l.logWarn("discarding datagram", "error", err, "size", len(data))
		}
		return
	}
	l.invoke(msg)
}

// invoke shields the receive loop from a panicking handler.
func (l *Listener) invoke(msg Message) {
	defer func() {
		if r := recover(); r != nil {
			l.logError("message handler panic", "panic", r, "sid", msg.SID)
		}
	}()
	l.onMessage(msg)
}

func (l *Listener) logDebug(msg string, args ...any) {
	if logger := l.getLogger(); logger != nil {
		logger.Debug(msg, args...)
	}
}

func (l *Listener) logInfo(msg string, args ...any) {
	if logger := l.getLogger(); logger != nil {
		logger.Info(msg, args...)
	}
}

func (l *Listener) logWarn(msg string, args ...any) {
	if logger := l.getLogger(); logger != nil {
		logger.Warn(msg, args...)
	}
}

func (l *Listener) logError(msg string, args ...any) {
	if logger := l.getLogger(); logger != nil {
		logger.Error(msg, args...)
	}
}

func (l *Listener) getLogger() Logger {
	l.loggerMu.RLock()
	defer l.loggerMu.RUnlock()
	return l.logger
}
