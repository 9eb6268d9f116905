// Package statsd emits pipeline metrics using the StatsD line protocol.
package statsd

import (
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Sink describes the minimal interface required to emit StatsD-style metrics.
type Sink interface {
	Count(name string, value int64, tags map[string]string)
	Gauge(name string, value float64, tags map[string]string)
	Timing(name string, value time.Duration, tags map[string]string)
}

// Config describes how to connect to a StatsD-compatible sink.
type Config struct {
	Enabled bool
	Address string
	Prefix  string
	Logger  *slog.Logger
}

// Client emits metrics over UDP using the StatsD line protocol.
// It is safe for concurrent use. A disabled client is a valid no-op Sink.
type Client struct {
	enabled bool
	prefix  string
	logger  *slog.Logger

	mu   sync.Mutex
	conn net.Conn
}

var _ Sink = (*Client)(nil)

// NewClient dials the configured StatsD endpoint unless disabled.
func NewClient(cfg Config) (*Client, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	address := strings.TrimSpace(cfg.Address)
	client := &Client{
		enabled: cfg.Enabled && address != "",
		prefix:  sanitizePrefix(cfg.Prefix),
		logger:  logger,
	}

	if !client.enabled {
		return client, nil
	}

	conn, err := net.Dial("udp", address)
	if err != nil {
		return nil, fmt.Errorf("dial statsd %s: %w", address, err)
	}
	client.conn = conn
	return client, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// Count emits a counter increment.
func (c *Client) Count(name string, value int64, tags map[string]string) {
	c.send(formatMetric(c.prefix, name, strconv.FormatInt(value, 10), "c", tags))
}

// Gauge emits a gauge value.
func (c *Client) Gauge(name string, value float64, tags map[string]string) {
	c.send(formatMetric(c.prefix, name, strconv.FormatFloat(value, 'f', -1, 64), "g", tags))
}

// Timing emits a duration in milliseconds.
func (c *Client) Timing(name string, value time.Duration, tags map[string]string) {
	ms := strconv.FormatInt(value.Milliseconds(), 10)
	c.send(formatMetric(c.prefix, name, ms, "ms", tags))
}

func (c *Client) send(line string) {
	if !c.enabled {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return
	}
	if _, err := c.conn.Write([]byte(line)); err != nil {
		// Metrics are best-effort; never let a sink outage affect the pipeline.
		c.logger.Debug("statsd write failed", "error", err)
	}
}

// formatMetric builds a DogStatsD-style line: prefix.name:value|type|#k:v,k:v
func formatMetric(prefix, name, value, metricType string, tags map[string]string) string {
	var b strings.Builder
	if prefix != "" {
		b.WriteString(prefix)
		b.WriteByte('.')
	}
	b.WriteString(name)
	b.WriteByte(':')
	b.WriteString(value)
	b.WriteByte('|')
	b.WriteString(metricType)

	if len(tags) > 0 {
		keys := make([]string, 0, len(tags))
		for k := range tags {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteString("|#")
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(k)
			b.WriteByte(':')
			b.WriteString(tags[k])
		}
	}
	return b.String()
}

func sanitizePrefix(prefix string) string {
	return strings.Trim(strings.TrimSpace(prefix), ".")
}
