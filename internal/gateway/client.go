package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/selve-bridge/internal/selve"
)

const (
	// defaultTimeout bounds each request to the gateway.
	defaultTimeout = 10 * time.Second

	// maxResponseSize caps how much of a response body is read. A full
	// state dump for a large installation is well under this.
	maxResponseSize = 4 << 20

	// envelopeKey wraps every successful payload.
	envelopeKey = "XC_SUC"
)

// Logger is the minimal logging interface the client needs. Nil disables
// logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the connection parameters for a gateway.
type Config struct {
	// Host is the gateway address. A bare host or host:port gets an
	// http:// scheme; an explicit http:// or https:// is kept.
	Host string
	// Password authenticates every request (auth query parameter).
	Password string
	// Timeout per request. Defaults to defaultTimeout.
	Timeout time.Duration
	// Logger is optional.
	Logger Logger
}

// Client talks to one Selve Home Server.
type Client struct {
	baseURL  string
	password string
	http     *http.Client

	logger   Logger
	loggerMu sync.RWMutex
}

// NewClient creates a client. It does not touch the network; the first
// request does.
func NewClient(cfg Config) *Client {
	host := strings.TrimSpace(cfg.Host)
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "http://" + host
	}
	host = strings.TrimRight(host, "/")

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:  host,
		password: cfg.Password,
		http:     &http.Client{Timeout: timeout},
		logger:   cfg.Logger,
	}
}

// SetLogger attaches a logger after construction.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// FetchServerInfo retrieves the gateway's self-description from /info.
func (c *Client) FetchServerInfo(ctx context.Context) (*selve.ServerInfo, error) {
	body, err := c.get(ctx, "/info", nil)
	if err != nil {
		return nil, err
	}
	payload, err := unwrapEnvelope(body)
	if err != nil {
		return nil, fmt.Errorf("server info: %w", err)
	}
	var info selve.ServerInfo
	if err := json.Unmarshal(payload, &info); err != nil {
		return nil, fmt.Errorf("%w: server info payload: %v", ErrConnectivity, err)
	}
	info.Name = selve.RepairName(info.Name)
	return &info, nil
}

// FetchAllStates retrieves and decodes the state of every device the
// gateway knows about. Records that fail to decode are logged and skipped;
// an empty or null envelope yields ErrNoData.
func (c *Client) FetchAllStates(ctx context.Context) ([]selve.Device, error) {
	payload, err := c.requestCmd(ctx, url.Values{
		"XC_FNC": {"GetStates"},
		"config": {"1"},
	})
	if err != nil {
		return nil, err
	}
	if isJSONNull(payload) {
		return nil, ErrNoData
	}

	var records []json.RawMessage
	if err := json.Unmarshal(payload, &records); err != nil {
		return nil, fmt.Errorf("%w: state list: %v", ErrConnectivity, err)
	}

	devices := make([]selve.Device, 0, len(records))
	for _, rec := range records {
		dev, err := selve.DecodeDevice(rec)
		if err != nil {
			c.logWarn("skipping undecodable device record", "error", err)
			continue
		}
		if dev == nil {
			// Transient EVENT record.
			continue
		}
		devices = append(devices, dev)
	}
	return devices, nil
}

// FetchAll retrieves the gateway's full configuration dump (XC_FNC=GetAll).
// The payload shape varies by firmware, so it is returned raw.
func (c *Client) FetchAll(ctx context.Context) (json.RawMessage, error) {
	return c.requestCmd(ctx, url.Values{"XC_FNC": {"GetAll"}})
}

// FetchConfig retrieves the configuration of one device by RF address.
func (c *Client) FetchConfig(ctx context.Context, system selve.System, adr string) (json.RawMessage, error) {
	return c.requestCmd(ctx, url.Values{
		"XC_FNC": {"GetConfig"},
		"adr":    {adr},
		"type":   {string(system)},
	})
}

// SendCommand POSTs a command envelope to /cmd. Fire-and-forget: a 200
// means the gateway accepted the request; the effect is observed through
// the normal state channels.
func (c *Client) SendCommand(ctx context.Context, env selve.Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("%w: encode command: %v", ErrConnectivity, err)
	}

	u := c.baseURL + "/cmd?auth=" + url.QueryEscape(c.password)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnectivity, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnectivity, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: POST /cmd: status %d", ErrConnectivity, resp.StatusCode)
	}
	c.logDebug("command sent", "sid", env.ID, "cmd", env.Data.Cmd)
	return nil
}

// requestCmd performs a GET /cmd call and unwraps the success envelope.
func (c *Client) requestCmd(ctx context.Context, params url.Values) (json.RawMessage, error) {
	body, err := c.get(ctx, "/cmd", params)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, ErrNoData
	}
	return unwrapEnvelope(body)
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	query := url.Values{"auth": {c.password}}
	for k, vs := range params {
		for _, v := range vs {
			query.Add(k, v)
		}
	}
	u := c.baseURL + path + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectivity, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectivity, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrConnectivity, path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: GET %s: status %d", ErrConnectivity, path, resp.StatusCode)
	}
	return body, nil
}

// unwrapEnvelope extracts the XC_SUC payload. A parseable response without
// the success key is a rejection, not a transport failure.
func unwrapEnvelope(body []byte) (json.RawMessage, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: invalid envelope: %v", ErrConnectivity, err)
	}
	payload, ok := envelope[envelopeKey]
	if !ok {
		return nil, fmt.Errorf("%w: %.200s", ErrRejected, body)
	}
	return payload, nil
}

func isJSONNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}

func (c *Client) logDebug(msg string, args ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Debug(msg, args...)
	}
}

func (c *Client) logWarn(msg string, args ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Warn(msg, args...)
	}
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}
