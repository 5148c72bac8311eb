package tsdb

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/homeforge/control-core/internal/infrastructure/config"
)

// Timeouts applied to the three HTTP calls this client makes: the initial
// connect-time health probe, each batch flush, and any ad-hoc health check.
const (
	defaultConnectTimeout = 10 * time.Second
	defaultWriteTimeout   = 5 * time.Second
	defaultHealthTimeout  = 5 * time.Second
)

// Client writes device-state points to a VictoriaMetrics instance over the
// InfluxDB line-protocol /write endpoint, as the fallback history backend
// when InfluxDB itself is not enabled (see cmd/graylogic/telemetry.go).
//
// Points are accumulated in memory and flushed as a single HTTP POST either
// when the pending batch reaches its configured size or when the flush
// ticker fires, whichever comes first. All exported methods are safe for
// concurrent use.
type Client struct {
	endpoint   string
	httpClient *http.Client

	connected bool
	mu        sync.RWMutex

	pending     []string
	pendingMu   sync.Mutex
	pendingSize int
	ticker      *time.Ticker
	stopCh      chan struct{}
	wg          sync.WaitGroup

	onError func(err error)
}

// Connect validates cfg, probes /health once, and starts the background
// flush loop. Returns ErrDisabled if the backend is turned off in config.
func Connect(ctx context.Context, cfg config.TSDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	pendingSize := cfg.BatchSize
	if pendingSize <= 0 {
		pendingSize = 1000
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = 1
	}

	endpoint := strings.TrimRight(cfg.URL, "/")

	c := &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: defaultWriteTimeout,
		},
		pending:     make([]string, 0, pendingSize),
		pendingSize: pendingSize,
		ticker:      time.NewTicker(time.Duration(flushInterval) * time.Second),
		stopCh:      make(chan struct{}),
		connected:   true,
	}

	healthCtx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()

	if err := c.HealthCheck(healthCtx); err != nil {
		c.connected = false
		return nil, fmt.Errorf("%w: health check failed: %w", ErrConnectionFailed, err)
	}

	c.wg.Add(1)
	go c.runFlushLoop()

	return c, nil
}

// runFlushLoop flushes the pending batch on every ticker tick until stopCh
// is closed.
func (c *Client) runFlushLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ticker.C:
			c.Flush()
		case <-c.stopCh:
			return
		}
	}
}

// Close stops the flush loop and flushes whatever remains pending. Flush
// errors after Close are reported through onError, not returned here.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}

	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	c.ticker.Stop()
	close(c.stopCh)
	c.wg.Wait()

	c.Flush()

	return nil
}

// HealthCheck probes the backend's /health endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/health", nil)
	if err != nil {
		return fmt.Errorf("tsdb health check: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("tsdb health check: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tsdb health check: status %d", resp.StatusCode)
	}

	return nil
}

// IsConnected reports the last known connection state; it does not probe
// the backend. Use HealthCheck for an active check.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// SetOnError registers a callback invoked whenever an asynchronous flush
// fails, since WritePoint itself never returns an error.
func (c *Client) SetOnError(callback func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = callback
}

// enqueueLine appends a line-protocol string to the pending batch, flushing
// immediately once the batch reaches its configured size.
func (c *Client) enqueueLine(line string) {
	if !c.IsConnected() {
		return
	}

	c.pendingMu.Lock()
	c.pending = append(c.pending, line)
	full := len(c.pending) >= c.pendingSize
	c.pendingMu.Unlock()

	if full {
		c.Flush()
	}
}

// Flush POSTs every pending line to the /write endpoint as one request.
// Safe to call concurrently with itself or with enqueueLine; only one
// flush's worth of lines is swapped out at a time.
func (c *Client) Flush() {
	c.pendingMu.Lock()
	if len(c.pending) == 0 {
		c.pendingMu.Unlock()
		return
	}
	lines := c.pending
	c.pending = make([]string, 0, c.pendingSize)
	c.pendingMu.Unlock()

	body := strings.Join(lines, "\n")
	ctx, cancel := context.WithTimeout(context.Background(), defaultWriteTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/write", bytes.NewBufferString(body))
	if err != nil {
		c.notifyError(fmt.Errorf("%w: %w", ErrWriteFailed, err))
		return
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.notifyError(fmt.Errorf("%w: %w", ErrWriteFailed, err))
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		c.notifyError(fmt.Errorf("%w: HTTP %d", ErrWriteFailed, resp.StatusCode))
	}
}

// notifyError forwards err to onError, if one is registered.
func (c *Client) notifyError(err error) {
	c.mu.RLock()
	callback := c.onError
	c.mu.RUnlock()

	if callback != nil {
		callback(err)
	}
}
