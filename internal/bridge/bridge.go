package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/selve-bridge/internal/history"
	"github.com/nerrad567/selve-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/selve-bridge/internal/multicast"
	"github.com/nerrad567/selve-bridge/internal/selve"
	"github.com/nerrad567/selve-bridge/internal/state"
)

const (
	// defaultPollInterval drives the fallback state poll.
	defaultPollInterval = 30 * time.Second

	// commandTimeout bounds one command POST to the gateway.
	commandTimeout = 10 * time.Second

	// updateQueueSize buffers store notifications between the observer
	// (which must not block) and the publish worker. A full poll of a large
	// installation fits several times over.
	updateQueueSize = 256
)

// Logger is the minimal logging interface the bridge needs. Nil disables
// logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// GatewayClient is the interface to the Selve Home Server, satisfied by
// *gateway.Client. Narrowed for mocking in tests.
type GatewayClient interface {
	FetchServerInfo(ctx context.Context) (*selve.ServerInfo, error)
	FetchAllStates(ctx context.Context) ([]selve.Device, error)
	SendCommand(ctx context.Context, env selve.Envelope) error
}

// MQTTClient is the interface for MQTT operations, satisfied by
// *mqtt.Client.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// HistoryRecorder persists state changes, satisfied by
// *history.SQLiteRepository. Optional.
type HistoryRecorder interface {
	RecordStateChange(ctx context.Context, deviceID string, st history.Snapshot, source string) error
}

// Telemetry writes time-series points, satisfied by *influxdb.Client.
// Optional.
type Telemetry interface {
	WriteDeviceState(deviceID string, source string, position, target, current, runState int)
}

// MulticastOptions configures the listener for the gateway's push feed.
type MulticastOptions struct {
	// Enabled joins the multicast group when true.
	Enabled bool
	// Group is the multicast group address. Defaults to multicast.DefaultGroup.
	Group string
	// Port is the UDP port. Defaults to multicast.DefaultPort.
	Port int
}

// Options holds everything a bridge needs. Gateway, Store and MQTT are
// required; History and Telemetry are optional sinks.
type Options struct {
	Gateway   GatewayClient
	Store     *state.Store
	MQTT      MQTTClient
	History   HistoryRecorder
	Telemetry Telemetry

	Multicast MulticastOptions

	// PollInterval for the fallback state poll. Defaults to 30 seconds.
	PollInterval time.Duration

	// DisablePolling switches the bridge to UDP-only operation after the
	// initial snapshot.
	DisablePolling bool

	// HealthInterval for the heartbeat. Defaults to 30 seconds.
	HealthInterval time.Duration

	// Version is the bridge software version reported in heartbeats.
	Version string

	// GatewayName, when set, replaces the gateway's self-reported name in
	// server info and heartbeats. Gateways tend to ship with a default name.
	GatewayName string

	Logger Logger
}

type update struct {
	sid    string
	source string
}

// Bridge connects one Selve gateway to an MQTT broker. It owns the poll
// loop, the multicast listener and the outward publish path; the store does
// the reconciliation.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	gateway  GatewayClient
	store    *state.Store
	mqtt     MQTTClient
	history  HistoryRecorder
	influx   Telemetry
	listener *multicast.Listener
	health   *HealthReporter

	pollInterval   time.Duration
	disablePolling bool
	gatewayName    string

	updates chan update

	polls          atomic.Uint64
	deltasApplied  atomic.Uint64
	deltasDropped  atomic.Uint64
	commandsSent   atomic.Uint64
	updatesDropped atomic.Uint64

	// Shutdown coordination
	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context    // bridge-level context, cancelled on Stop()
	ctxCancel context.CancelFunc

	logger   Logger
	loggerMu sync.RWMutex
}

// New creates a bridge. Call Start to begin operation.
func New(opts Options) (*Bridge, error) {
	if opts.Gateway == nil {
		return nil, fmt.Errorf("gateway client is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("state store is required")
	}
	if opts.MQTT == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}

	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	ctx, ctxCancel := context.WithCancel(context.Background())

	b := &Bridge{
		gateway:        opts.Gateway,
		store:          opts.Store,
		mqtt:           opts.MQTT,
		history:        opts.History,
		influx:         opts.Telemetry,
		pollInterval:   pollInterval,
		disablePolling: opts.DisablePolling,
		gatewayName:    opts.GatewayName,
		updates:        make(chan update, updateQueueSize),
		done:           make(chan struct{}),
		ctx:            ctx,
		ctxCancel:      ctxCancel,
		logger:         opts.Logger,
	}

	if opts.Multicast.Enabled {
		listener, err := multicast.NewListener(multicast.Options{
			Group:     opts.Multicast.Group,
			Port:      opts.Multicast.Port,
			OnMessage: b.handleMulticast,
		})
		if err != nil {
			ctxCancel()
			return nil, fmt.Errorf("create multicast listener: %w", err)
		}
		b.listener = listener
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		Version:   opts.Version,
		Interval:  opts.HealthInterval,
		Publisher: opts.MQTT,
		Stats:     b.healthStats,
	})

	b.SetLogger(opts.Logger)

	// The observer only queues; the publish worker does the blocking work.
	b.store.Subscribe(b.onStoreUpdate)

	return b, nil
}

// Start brings the bridge up: server info, initial snapshot, command
// subscription, multicast listener, poll loop and health reporting. A failed
// initial snapshot is fatal; everything downstream needs a device table.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logError("failed to publish starting status", err)
	}

	// Gateway self-description. Not fatal: the state path works without it.
	if info, err := b.gateway.FetchServerInfo(ctx); err != nil {
		b.logWarn("failed to fetch server info", "error", err)
	} else {
		if b.gatewayName != "" {
			info.Name = b.gatewayName
		}
		b.health.SetGatewayInfo(info)
		b.publishServerInfo(info)
	}

	// Publish worker first so snapshot notifications have a consumer.
	b.wg.Add(1)
	go b.publishLoop()

	devices, err := b.gateway.FetchAllStates(ctx)
	if err != nil {
		return fmt.Errorf("initial state fetch: %w", err)
	}
	b.store.ApplySnapshot(devices)
	b.polls.Add(1)

	commandTopic := mqtt.Topics{}.AllDeviceCommands()
	if err := b.mqtt.Subscribe(commandTopic, 1, b.handleCommandMessage); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logInfo("subscribed to commands", "topic", commandTopic)

	if b.listener != nil {
		if err := b.listener.Start(); err != nil {
			return fmt.Errorf("start multicast listener: %w", err)
		}
	}

	if !b.disablePolling {
		b.wg.Add(1)
		go b.pollLoop()
	}

	b.health.Start(ctx)

	b.logInfo("bridge started",
		"devices", b.store.Len(),
		"polling", !b.disablePolling,
		"multicast", b.listener != nil)
	return nil
}

// Stop gracefully shuts down the bridge. Idempotent.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		b.ctxCancel()

		if b.listener != nil {
			if err := b.listener.Close(); err != nil {
				b.logError("failed to close multicast listener", err)
			}
		}

		// Publishes a final "stopping" status.
		b.health.Stop()

		b.wg.Wait()
		b.logInfo("bridge stopped")
	})
}

// SetLogger sets the logger for the bridge and its components.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()

	if b.health != nil {
		b.health.SetLogger(logger)
	}
	if b.listener != nil && logger != nil {
		b.listener.SetLogger(logger)
	}
	if logger != nil {
		b.store.SetLogger(logger)
	}
}

// onStoreUpdate queues a changed device for publishing. Runs on the store's
// mutating goroutine, so it must never block.
func (b *Bridge) onStoreUpdate(sid, source string) {
	select {
	case b.updates <- update{sid: sid, source: source}:
	default:
		b.updatesDropped.Add(1)
		b.logDebug("update queue full, dropping notification", "sid", sid)
	}
}

// publishLoop drains the update queue, fanning each change out to MQTT,
// the history repository and the telemetry sink.
func (b *Bridge) publishLoop() {
	defer b.wg.Done()
	for {
		select {
		case <-b.done:
			return
		case u := <-b.updates:
			b.publishDevice(u.sid, u.source)
		}
	}
}

func (b *Bridge) publishDevice(sid, source string) {
	dev, ok := b.store.Get(sid)
	if !ok {
		return
	}

	msg := NewStateMessage(dev, source)
	payload, err := json.Marshal(msg)
	if err != nil {
		b.logError("failed to marshal state message", err)
		return
	}

	topic := mqtt.Topics{}.DeviceState(sid)
	if err := b.mqtt.Publish(topic, payload, 1, true); err != nil {
		b.logError("failed to publish state", err)
	}

	if b.history != nil {
		if err := b.history.RecordStateChange(b.ctx, sid, msg.Snapshot(), source); err != nil {
			b.logDebug("history write skipped", "sid", sid, "reason", err.Error())
		}
	}

	if b.influx != nil && msg.RunState != nil {
		position := 0
		if msg.Position != nil {
			position = *msg.Position
		}
		b.influx.WriteDeviceState(sid, source, position, *msg.Target, *msg.Current, *msg.RunState)
	}
}

// publishServerInfo publishes the gateway's self-description (retained) to
// selve/server.
func (b *Bridge) publishServerInfo(info *selve.ServerInfo) {
	payload, err := json.Marshal(info)
	if err != nil {
		b.logError("failed to marshal server info", err)
		return
	}
	if err := b.mqtt.Publish(mqtt.Topics{}.ServerInfo(), payload, 1, true); err != nil {
		b.logError("failed to publish server info", err)
	}
}

// handleMulticast feeds a parsed datagram into the store. Runs on the
// listener's receive goroutine; the store merge is a short critical section.
func (b *Bridge) handleMulticast(msg multicast.Message) {
	if b.store.ApplyDelta(msg.SID, msg.Delta) {
		b.deltasApplied.Add(1)
	} else {
		b.deltasDropped.Add(1)
	}
}

// handleCommandMessage processes one command from selve/command/<sid>.
// The vocabulary check is advisory: the gateway is the final arbiter of
// what a device accepts, so unknown names are warned about and sent anyway.
func (b *Bridge) handleCommandMessage(topic string, payload []byte) error {
	sid, err := commandSID(topic)
	if err != nil {
		return err
	}

	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return fmt.Errorf("parse command for %s: %w", sid, err)
	}
	if cmd.Cmd == "" {
		return fmt.Errorf("command for %s has no cmd field", sid)
	}

	if dev, ok := b.store.Get(sid); !ok {
		b.logWarn("command for unknown device", "sid", sid, "cmd", cmd.Cmd)
	} else if !selve.KnownCommand(dev, cmd.Cmd) {
		b.logWarn("command not in device vocabulary, sending anyway",
			"sid", sid, "cmd", cmd.Cmd)
	}

	b.logInfo("received command", "sid", sid, "cmd", cmd.Cmd, "source", cmd.Source)

	env := selve.NewCommand(sid, cmd.Cmd, cmd.Value)

	// Stop closes done before waiting on the group; a command arriving after
	// that must not add to it.
	select {
	case <-b.done:
		return fmt.Errorf("bridge stopping, command for %s dropped", sid)
	default:
	}

	// Blocking HTTP off the MQTT callback goroutine. Fire-and-forget: the
	// effect is observed through the normal state channels.
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
		defer cancel()

		if err := b.gateway.SendCommand(ctx, env); err != nil {
			b.logError("command send failed", fmt.Errorf("sid=%s cmd=%s: %w", sid, cmd.Cmd, err))
			return
		}
		b.commandsSent.Add(1)
	}()
	return nil
}

// commandSID extracts the device sid from a selve/command/<sid> topic.
func commandSID(topic string) (string, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[1] != "command" || parts[2] == "" {
		return "", fmt.Errorf("unexpected command topic %q", topic)
	}
	return parts[2], nil
}

// pollLoop runs the fallback state poll. A failed poll is logged and
// retried on the next tick; the store keeps the last good state meanwhile.
func (b *Bridge) pollLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
			devices, err := b.gateway.FetchAllStates(b.ctx)
			if err != nil {
				b.logWarn("state poll failed", "error", err)
				continue
			}
			b.store.ApplySnapshot(devices)
			b.polls.Add(1)
		}
	}
}

func (b *Bridge) healthStats() HealthStats {
	return HealthStats{
		DeviceCount:   b.store.Len(),
		Polls:         b.polls.Load(),
		DeltasApplied: b.deltasApplied.Load(),
		DeltasDropped: b.deltasDropped.Load(),
		CommandsSent:  b.commandsSent.Load(),
	}
}

// Metrics is a point-in-time counter snapshot, exposed for diagnostics.
type Metrics struct {
	Devices        int
	Polls          uint64
	DeltasApplied  uint64
	DeltasDropped  uint64
	CommandsSent   uint64
	UpdatesDropped uint64
}

// GetMetrics returns the current bridge counters.
func (b *Bridge) GetMetrics() Metrics {
	return Metrics{
		Devices:        b.store.Len(),
		Polls:          b.polls.Load(),
		DeltasApplied:  b.deltasApplied.Load(),
		DeltasDropped:  b.deltasDropped.Load(),
		CommandsSent:   b.commandsSent.Load(),
		UpdatesDropped: b.updatesDropped.Load(),
	}
}

func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, err error) {
	if logger := b.getLogger(); logger != nil {
		logger.Error(msg, "error", err)
	}
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}
