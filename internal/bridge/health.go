package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/selve-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/selve-bridge/internal/selve"
)

// defaultHealthInterval is how often the heartbeat is published when the
// config does not say otherwise.
const defaultHealthInterval = 30 * time.Second

// HealthStats is the counter snapshot included in each heartbeat.
type HealthStats struct {
	DeviceCount   int
	Polls         uint64
	DeltasApplied uint64
	DeltasDropped uint64
	CommandsSent  uint64
}

// HealthReporter publishes a retained heartbeat to selve/health at regular
// intervals. It pulls counters through a snapshot callback so it carries no
// domain state of its own.
type HealthReporter struct {
	version   string
	startTime time.Time
	interval  time.Duration
	publisher MQTTClient
	stats     func() HealthStats

	// gateway identity, set once the /info fetch succeeds
	gateway   *GatewayIdentity
	gatewayMu sync.RWMutex

	// Shutdown coordination (stopOnce prevents double-close panics)
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	// Version is the bridge software version.
	Version string

	// Interval is how often to publish health status.
	// Default: 30 seconds.
	Interval time.Duration

	// Publisher is the MQTT client for publishing messages.
	Publisher MQTTClient

	// Stats returns the current counter snapshot. Required.
	Stats func() HealthStats
}

// NewHealthReporter creates a health reporter. Call Start to begin reporting.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultHealthInterval
	}
	return &HealthReporter{
		version:   cfg.Version,
		startTime: time.Now(),
		interval:  interval,
		publisher: cfg.Publisher,
		stats:     cfg.Stats,
		done:      make(chan struct{}),
	}
}

// Start begins periodic health reporting.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop gracefully stops health reporting. Publishes a final "stopping"
// status before returning. Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		// Best-effort during shutdown, nothing to do if it fails.
		_ = h.publishStatus(HealthStopping, "")
	})
}

// SetGatewayInfo records the gateway's identity for inclusion in heartbeats.
// Called once the /info fetch succeeds.
func (h *HealthReporter) SetGatewayInfo(info *selve.ServerInfo) {
	h.gatewayMu.Lock()
	h.gateway = identityFrom(info)
	h.gatewayMu.Unlock()
}

// SetLogger sets the logger for this reporter.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

// PublishStarting publishes a "starting" status during bridge initialisation.
func (h *HealthReporter) PublishStarting() error {
	return h.publishStatus(HealthStarting, "bridge starting")
}

// PublishNow publishes the current health status immediately.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publishStatus(status, reason)
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	if err := h.PublishNow(); err != nil {
		h.logError("failed to publish initial health", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logError("failed to publish health", err)
			}
		}
	}
}

// determineStatus evaluates the current bridge status.
func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if h.publisher == nil || !h.publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}
	return HealthHealthy, ""
}

func (h *HealthReporter) publishStatus(status HealthStatus, reason string) error {
	if h.publisher == nil {
		return nil
	}

	var stats HealthStats
	if h.stats != nil {
		stats = h.stats()
	}

	h.gatewayMu.RLock()
	gw := h.gateway
	h.gatewayMu.RUnlock()

	msg := NewHealthMessage(status, h.version, stats, gw, h.startTime)
	msg.Reason = reason

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return h.publisher.Publish(mqtt.Topics{}.Health(), payload, 1, true)
}

func (h *HealthReporter) logError(msg string, err error) {
	h.loggerMu.RLock()
	logger := h.logger
	h.loggerMu.RUnlock()
	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
