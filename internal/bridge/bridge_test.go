package bridge

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/selve-bridge/internal/history"
	"github.com/nerrad567/selve-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/selve-bridge/internal/multicast"
	"github.com/nerrad567/selve-bridge/internal/selve"
	"github.com/nerrad567/selve-bridge/internal/state"
)

// =============================================================================
// Mocks
// =============================================================================

type mockGateway struct {
	mu      sync.Mutex
	info    *selve.ServerInfo
	infoErr error
	devices []selve.Device
	fetches int
	sent    []selve.Envelope
	sendErr error
}

func (g *mockGateway) FetchServerInfo(ctx context.Context) (*selve.ServerInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.infoErr != nil {
		return nil, g.infoErr
	}
	return g.info, nil
}

func (g *mockGateway) FetchAllStates(ctx context.Context) ([]selve.Device, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fetches++
	return g.devices, nil
}

func (g *mockGateway) SendCommand(ctx context.Context, env selve.Envelope) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sendErr != nil {
		return g.sendErr
	}
	g.sent = append(g.sent, env)
	return nil
}

func (g *mockGateway) sentCommands() []selve.Envelope {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]selve.Envelope(nil), g.sent...)
}

type published struct {
	topic    string
	payload  []byte
	retained bool
}

type mockMQTT struct {
	mu           sync.Mutex
	messages     []published
	subs         map[string]mqtt.MessageHandler
	disconnected bool
}

func newMockMQTT() *mockMQTT {
	return &mockMQTT{subs: make(map[string]mqtt.MessageHandler)}
}

func (m *mockMQTT) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, published{topic: topic, payload: payload, retained: retained})
	return nil
}

func (m *mockMQTT) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[topic] = handler
	return nil
}

func (m *mockMQTT) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.disconnected
}

func (m *mockMQTT) published(topic string) []published {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []published
	for _, p := range m.messages {
		if p.topic == topic {
			out = append(out, p)
		}
	}
	return out
}

func (m *mockMQTT) handlerFor(topic string) mqtt.MessageHandler {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subs[topic]
}

type historyRow struct {
	deviceID string
	state    history.Snapshot
	source   string
}

type mockHistory struct {
	mu   sync.Mutex
	rows []historyRow
}

func (h *mockHistory) RecordStateChange(ctx context.Context, deviceID string, st history.Snapshot, source string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rows = append(h.rows, historyRow{deviceID: deviceID, state: st, source: source})
	return nil
}

func (h *mockHistory) recorded() []historyRow {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]historyRow(nil), h.rows...)
}

// =============================================================================
// Helpers
// =============================================================================

func testReceiver(sid string, pos int) *selve.CommeoReceiver {
	return &selve.CommeoReceiver{
		ID:    sid,
		EType: 1, // shutter, a motor type
		Name:  "Test Shutter",
		Status: selve.Status{
			Position: &pos,
			Target:   pos,
			Current:  pos,
		},
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func startedBridge(t *testing.T, gw *mockGateway, broker *mockMQTT, hist HistoryRecorder) *Bridge {
	t.Helper()
	b, err := New(Options{
		Gateway:        gw,
		Store:          state.NewStore(),
		MQTT:           broker,
		History:        hist,
		DisablePolling: true,
		HealthInterval: time.Hour, // only the initial publish during tests
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(b.Stop)
	return b
}

// =============================================================================
// Construction
// =============================================================================

func TestNewRequiredOptions(t *testing.T) {
	store := state.NewStore()
	broker := newMockMQTT()
	gw := &mockGateway{}

	tests := []struct {
		name string
		opts Options
	}{
		{"missing gateway", Options{Store: store, MQTT: broker}},
		{"missing store", Options{Gateway: gw, MQTT: broker}},
		{"missing mqtt", Options{Gateway: gw, Store: store}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.opts); err == nil {
				t.Error("New() expected error")
			}
		})
	}
}

// =============================================================================
// Startup
// =============================================================================

func TestStartPublishesInitialStates(t *testing.T) {
	gw := &mockGateway{
		info:    &selve.ServerInfo{Name: "Home Server", MAC: "AA:BB:CC:DD:EE:FF"},
		devices: []selve.Device{testReceiver("1a", 40)},
	}
	broker := newMockMQTT()
	startedBridge(t, gw, broker, nil)

	waitFor(t, func() bool {
		return len(broker.published("selve/state/1a")) > 0
	}, "initial state never published")

	msgs := broker.published("selve/state/1a")
	if !msgs[0].retained {
		t.Error("state message not retained")
	}

	var msg StateMessage
	if err := json.Unmarshal(msgs[0].payload, &msg); err != nil {
		t.Fatalf("state payload invalid: %v", err)
	}
	if msg.Kind != KindCommeoReceiver {
		t.Errorf("Kind = %q, want %q", msg.Kind, KindCommeoReceiver)
	}
	if msg.Source != state.SourcePoll {
		t.Errorf("Source = %q, want %q", msg.Source, state.SourcePoll)
	}
	if msg.Position == nil || *msg.Position != 40 {
		t.Errorf("Position = %v, want 40", msg.Position)
	}
}

func TestStartPublishesServerInfo(t *testing.T) {
	gw := &mockGateway{
		info: &selve.ServerInfo{Name: "Home Server", MAC: "AA:BB:CC:DD:EE:FF"},
	}
	broker := newMockMQTT()
	startedBridge(t, gw, broker, nil)

	msgs := broker.published("selve/server")
	if len(msgs) != 1 {
		t.Fatalf("server info published %d times, want 1", len(msgs))
	}
	if !msgs[0].retained {
		t.Error("server info not retained")
	}

	var info selve.ServerInfo
	if err := json.Unmarshal(msgs[0].payload, &info); err != nil {
		t.Fatalf("server info payload invalid: %v", err)
	}
	if info.MAC != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("MAC = %q", info.MAC)
	}
}

func TestStartGatewayNameOverride(t *testing.T) {
	gw := &mockGateway{
		info: &selve.ServerInfo{Name: "Home Server", MAC: "AA:BB:CC:DD:EE:FF"},
	}
	broker := newMockMQTT()

	b, err := New(Options{
		Gateway:        gw,
		Store:          state.NewStore(),
		MQTT:           broker,
		GatewayName:    "Ground Floor",
		DisablePolling: true,
		HealthInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(b.Stop)

	var info selve.ServerInfo
	msgs := broker.published("selve/server")
	if len(msgs) != 1 {
		t.Fatalf("server info published %d times, want 1", len(msgs))
	}
	if err := json.Unmarshal(msgs[0].payload, &info); err != nil {
		t.Fatalf("server info payload invalid: %v", err)
	}
	if info.Name != "Ground Floor" {
		t.Errorf("Name = %q, want Ground Floor", info.Name)
	}
}

func TestStartServerInfoFailureNotFatal(t *testing.T) {
	gw := &mockGateway{infoErr: context.DeadlineExceeded}
	broker := newMockMQTT()
	startedBridge(t, gw, broker, nil)

	if len(broker.published("selve/server")) != 0 {
		t.Error("server info published despite fetch failure")
	}
}

func TestStartSubscribesToCommands(t *testing.T) {
	broker := newMockMQTT()
	startedBridge(t, &mockGateway{}, broker, nil)

	if broker.handlerFor("selve/command/+") == nil {
		t.Error("no subscription for selve/command/+")
	}
}

// =============================================================================
// Command path
// =============================================================================

func TestCommandDispatch(t *testing.T) {
	gw := &mockGateway{devices: []selve.Device{testReceiver("1a", 40)}}
	broker := newMockMQTT()
	startedBridge(t, gw, broker, nil)

	handler := broker.handlerFor("selve/command/+")
	if err := handler("selve/command/1a", []byte(`{"cmd":"moveTo","value":25}`)); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	waitFor(t, func() bool {
		return len(gw.sentCommands()) == 1
	}, "command never reached gateway")

	env := gw.sentCommands()[0]
	if env.Function != selve.FunctionSendGenericCmd {
		t.Errorf("Function = %q", env.Function)
	}
	if env.ID != "1a" {
		t.Errorf("ID = %q, want 1a", env.ID)
	}
	if env.Data.Cmd != "moveTo" {
		t.Errorf("Cmd = %q, want moveTo", env.Data.Cmd)
	}
	if env.Data.Value == nil || *env.Data.Value != 25 {
		t.Errorf("Value = %v, want 25", env.Data.Value)
	}
}

func TestCommandUnknownDeviceStillSent(t *testing.T) {
	gw := &mockGateway{}
	broker := newMockMQTT()
	startedBridge(t, gw, broker, nil)

	handler := broker.handlerFor("selve/command/+")
	if err := handler("selve/command/zz", []byte(`{"cmd":"stop"}`)); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	waitFor(t, func() bool {
		return len(gw.sentCommands()) == 1
	}, "command for unknown device never sent")
}

func TestCommandInvalidPayload(t *testing.T) {
	gw := &mockGateway{}
	broker := newMockMQTT()
	startedBridge(t, gw, broker, nil)

	handler := broker.handlerFor("selve/command/+")

	tests := []struct {
		name    string
		topic   string
		payload string
	}{
		{"bad json", "selve/command/1a", `{garbage`},
		{"missing cmd", "selve/command/1a", `{"value":5}`},
		{"bad topic", "selve/command", `{"cmd":"stop"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := handler(tt.topic, []byte(tt.payload)); err == nil {
				t.Error("handler expected error")
			}
		})
	}

	time.Sleep(20 * time.Millisecond)
	if n := len(gw.sentCommands()); n != 0 {
		t.Errorf("%d commands sent, want 0", n)
	}
}

func TestCommandSID(t *testing.T) {
	tests := []struct {
		topic   string
		want    string
		wantErr bool
	}{
		{"selve/command/1a", "1a", false},
		{"selve/command/", "", true},
		{"selve/command", "", true},
		{"selve/state/1a", "", true},
		{"selve/command/1a/extra", "", true},
	}

	for _, tt := range tests {
		sid, err := commandSID(tt.topic)
		if tt.wantErr {
			if err == nil {
				t.Errorf("commandSID(%q) expected error", tt.topic)
			}
			continue
		}
		if err != nil {
			t.Errorf("commandSID(%q) error = %v", tt.topic, err)
			continue
		}
		if sid != tt.want {
			t.Errorf("commandSID(%q) = %q, want %q", tt.topic, sid, tt.want)
		}
	}
}

// =============================================================================
// Multicast path
// =============================================================================

func TestMulticastDeltaPublishes(t *testing.T) {
	gw := &mockGateway{devices: []selve.Device{testReceiver("1a", 40)}}
	broker := newMockMQTT()
	b := startedBridge(t, gw, broker, nil)

	waitFor(t, func() bool {
		return len(broker.published("selve/state/1a")) == 1
	}, "initial state never published")

	pos, run := 55, 1
	b.handleMulticast(multicast.Message{
		Kind: multicast.KindState,
		SID:  "1a",
		Delta: state.Delta{
			Position: &pos,
			RunState: &run,
			Changed:  []string{"position", "running_state"},
		},
	})

	waitFor(t, func() bool {
		return len(broker.published("selve/state/1a")) == 2
	}, "delta state never published")

	var msg StateMessage
	msgs := broker.published("selve/state/1a")
	if err := json.Unmarshal(msgs[1].payload, &msg); err != nil {
		t.Fatalf("state payload invalid: %v", err)
	}
	if msg.Source != state.SourceMulticast {
		t.Errorf("Source = %q, want %q", msg.Source, state.SourceMulticast)
	}
	if msg.Position == nil || *msg.Position != 55 {
		t.Errorf("Position = %v, want 55", msg.Position)
	}

	if got := b.GetMetrics().DeltasApplied; got != 1 {
		t.Errorf("DeltasApplied = %d, want 1", got)
	}
}

func TestMulticastDeltaUnknownDeviceDropped(t *testing.T) {
	gw := &mockGateway{}
	broker := newMockMQTT()
	b := startedBridge(t, gw, broker, nil)

	run := 1
	b.handleMulticast(multicast.Message{
		Kind:  multicast.KindState,
		SID:   "zz",
		Delta: state.Delta{RunState: &run},
	})

	if got := b.GetMetrics().DeltasDropped; got != 1 {
		t.Errorf("DeltasDropped = %d, want 1", got)
	}
	if len(broker.published("selve/state/zz")) != 0 {
		t.Error("dropped delta was published")
	}
}

// =============================================================================
// History fan-out
// =============================================================================

func TestHistoryFanout(t *testing.T) {
	gw := &mockGateway{devices: []selve.Device{testReceiver("1a", 40)}}
	broker := newMockMQTT()
	hist := &mockHistory{}
	startedBridge(t, gw, broker, hist)

	waitFor(t, func() bool {
		return len(hist.recorded()) == 1
	}, "history row never recorded")

	row := hist.recorded()[0]
	if row.deviceID != "1a" {
		t.Errorf("deviceID = %q, want 1a", row.deviceID)
	}
	if row.source != state.SourcePoll {
		t.Errorf("source = %q, want poll", row.source)
	}
	if row.state["position"] != 40 {
		t.Errorf("state position = %v, want 40", row.state["position"])
	}
}

// =============================================================================
// Health
// =============================================================================

func TestHealthHeartbeatCarriesGatewayIdentity(t *testing.T) {
	gw := &mockGateway{
		info:    &selve.ServerInfo{Name: "Home Server", MAC: "AA:BB:CC:DD:EE:FF"},
		devices: []selve.Device{testReceiver("1a", 40)},
	}
	broker := newMockMQTT()
	startedBridge(t, gw, broker, nil)

	waitFor(t, func() bool {
		for _, p := range broker.published("selve/health") {
			if strings.Contains(string(p.payload), `"status":"healthy"`) {
				return true
			}
		}
		return false
	}, "healthy heartbeat never published")

	var found HealthMessage
	for _, p := range broker.published("selve/health") {
		var msg HealthMessage
		if err := json.Unmarshal(p.payload, &msg); err != nil {
			t.Fatalf("health payload invalid: %v", err)
		}
		if msg.Status == HealthHealthy {
			found = msg
		}
	}
	if found.Gateway == nil || found.Gateway.MAC != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("Gateway identity = %+v", found.Gateway)
	}
	if found.DeviceCount != 1 {
		t.Errorf("DeviceCount = %d, want 1", found.DeviceCount)
	}
	if found.Polls != 1 {
		t.Errorf("Polls = %d, want 1", found.Polls)
	}
}

// =============================================================================
// Shutdown
// =============================================================================

func TestStopIdempotent(t *testing.T) {
	gw := &mockGateway{}
	broker := newMockMQTT()
	b := startedBridge(t, gw, broker, nil)

	b.Stop()
	b.Stop() // must not panic
}

func TestCommandAfterStopRejected(t *testing.T) {
	gw := &mockGateway{devices: []selve.Device{testReceiver("1a", 40)}}
	broker := newMockMQTT()
	b := startedBridge(t, gw, broker, nil)

	handler := broker.handlerFor("selve/command/+")
	b.Stop()

	if err := handler("selve/command/1a", []byte(`{"cmd":"stop"}`)); err == nil {
		t.Error("handler accepted a command after Stop")
	}

	time.Sleep(20 * time.Millisecond)
	if n := len(gw.sentCommands()); n != 0 {
		t.Errorf("%d commands sent after Stop, want 0", n)
	}
}
