package nodehttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"
)

const (
	// DefaultTimeout is the per-request timeout when none is configured.
	DefaultTimeout = 5 * time.Second

	// maxResponseSize caps how much of a node response is read. Nodes are
	// microcontrollers; anything larger than this is not a node talking.
	maxResponseSize = 1 << 20
)

// Logger defines the logging interface used by the client.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Client talks to node devices over their plain HTTP/JSON interface:
// GET /status, POST /control, GET /info.
//
// Thread Safety: all methods are safe for concurrent use; the underlying
// http.Client pools connections across goroutines.
type Client struct {
	httpClient *http.Client
	logger     Logger
}

// NewClient creates a node client.
//
// Parameters:
//   - timeout: Per-request timeout; DefaultTimeout if zero or negative
//   - logger: Logger instance (nil for no logging)
func NewClient(timeout time.Duration, logger Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// ReadState polls a node's /status endpoint and returns its full state.
// Sensor entries without a usable numeric value are dropped.
func (c *Client) ReadState(ctx context.Context, address string, port int) (*State, error) {
	var envelope stateEnvelope
	if err := c.getJSON(ctx, address, port, "/status", &envelope); err != nil {
		return nil, err
	}
	return envelope.toState(), nil
}

// SendCommand POSTs a command map to a node's /control endpoint and
// returns the node's JSON reply.
func (c *Client) SendCommand(ctx context.Context, address string, port int, command map[string]any) (map[string]any, error) {
	body, err := json.Marshal(command)
	if err != nil {
		return nil, fmt.Errorf("encoding command: %w", err)
	}

	url := nodeURL(address, port, "/control")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	data, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("%w: decoding /control reply: %v", ErrBadResponse, err)
	}

	c.logger.Debug("command sent", "address", address, "port", port)
	return result, nil
}

// Info fetches a node's /info endpoint and returns the reply untouched.
func (c *Client) Info(ctx context.Context, address string, port int) (map[string]any, error) {
	var info map[string]any
	if err := c.getJSON(ctx, address, port, "/info", &info); err != nil {
		return nil, err
	}
	return info, nil
}

// getJSON performs a GET against a node path and decodes the JSON reply
// into out.
func (c *Client) getJSON(ctx context.Context, address string, port int, path string, out any) error {
	url := nodeURL(address, port, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	data, err := c.do(req)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decoding %s reply: %v", ErrBadResponse, path, err)
	}
	return nil
}

// do executes the request and returns the response body, classifying
// transport and status failures into the package sentinels.
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize)) //nolint:errcheck // drain for connection reuse
		return nil, fmt.Errorf("%w: status %d", ErrBadResponse, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, classifyTransportError(err)
	}
	return data, nil
}

// classifyTransportError maps a transport failure onto the package
// sentinels. Context cancellation passes through unwrapped so callers can
// tell shutdown from device failure.
func classifyTransportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}

// nodeURL builds http://address:port/path, bracketing IPv6 literals.
func nodeURL(address string, port int, path string) string {
	return "http://" + net.JoinHostPort(address, strconv.Itoa(port)) + path
}
