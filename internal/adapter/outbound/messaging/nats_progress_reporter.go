package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"embedfill/internal/config"
	"embedfill/internal/port/outbound"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const (
	// NATS connection timeout.
	natsConnectionTimeoutSeconds = 5

	DefaultSubject = "embedfill.progress"

	eventBatch = "batch"
	eventDone  = "done"

	maxFailures         = 3
	circuitOpenDuration = 30 * time.Second
)

// ErrCircuitOpen is returned while publishing is suspended after repeated failures.
var ErrCircuitOpen = errors.New("circuit breaker open: too many recent failures")

// Publisher is the subset of *nats.Conn used by the reporter.
type Publisher interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Close()
}

// ConnectionHealthStatus represents the health status of NATS connection.
type ConnectionHealthStatus struct {
	Connected    bool      `json:"connected"`
	LastError    string    `json:"last_error,omitempty"`
	Reconnects   int       `json:"reconnects"`
	LastPingTime time.Time `json:"last_ping_time"`
}

// MessageMetrics tracks message publishing metrics.
type MessageMetrics struct {
	PublishedCount    int64         `json:"published_count"`
	FailedCount       int64         `json:"failed_count"`
	AverageLatency    time.Duration `json:"average_latency"`
	LastPublishedTime time.Time     `json:"last_published_time"`
}

// ProgressEvent is the JSON payload published for every report.
type ProgressEvent struct {
	MessageID string                  `json:"message_id"`
	Type      string                  `json:"type"`
	Timestamp time.Time               `json:"timestamp"`
	Batch     *outbound.BatchProgress `json:"batch,omitempty"`
	Summary   *outbound.RunSummary    `json:"summary,omitempty"`
}

// NATSReporter publishes backfill progress events to a NATS subject.
type NATSReporter struct {
	config           config.NATSConfig
	subject          string
	conn             Publisher
	connectionHealth ConnectionHealthStatus
	messageMetrics   MessageMetrics
	mutex            sync.RWMutex
	// Circuit breaker state
	circuitBreakerOpen bool
	lastFailureTime    time.Time
	failureCount       int
}

// NewNATSReporter validates cfg and returns an unconnected reporter.
func NewNATSReporter(cfg config.NATSConfig) (*NATSReporter, error) {
	if cfg.URL == "" {
		return nil, errors.New("NATS URL cannot be empty")
	}
	if !strings.HasPrefix(cfg.URL, "nats://") && !strings.HasPrefix(cfg.URL, "tls://") {
		return nil, errors.New("invalid NATS URL scheme")
	}
	if cfg.MaxReconnects < 0 {
		return nil, errors.New("max reconnects cannot be negative")
	}
	if cfg.ReconnectWait < 0 {
		return nil, errors.New("reconnect wait cannot be negative")
	}

	subject := cfg.Subject
	if subject == "" {
		subject = DefaultSubject
	}

	return &NATSReporter{config: cfg, subject: subject}, nil
}

// NewNATSReporterWithPublisher returns a reporter that publishes through p.
func NewNATSReporterWithPublisher(p Publisher, subject string) *NATSReporter {
	if subject == "" {
		subject = DefaultSubject
	}
	r := &NATSReporter{subject: subject, conn: p}
	r.connectionHealth.Connected = true
	return r
}

// Connect establishes connection to NATS server.
func (n *NATSReporter) Connect() error {
	opts := []nats.Option{
		nats.Name("embedfill"),
		nats.MaxReconnects(n.config.MaxReconnects),
		nats.ReconnectWait(n.config.ReconnectWait),
		nats.Timeout(natsConnectionTimeoutSeconds * time.Second),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			n.mutex.Lock()
			n.connectionHealth.Reconnects++
			n.mutex.Unlock()
			n.updateConnectionHealth(true, nil)
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err == nil {
				err = errors.New("connection lost")
			}
			n.updateConnectionHealth(false, err)
		}),
	}

	conn, err := nats.Connect(n.config.URL, opts...)
	if err != nil {
		n.updateConnectionHealth(false, err)
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	n.mutex.Lock()
	n.conn = conn
	n.mutex.Unlock()
	n.updateConnectionHealth(true, nil)
	return nil
}

// Close flushes pending messages and closes the connection.
func (n *NATSReporter) Close() error {
	n.mutex.Lock()
	conn := n.conn
	n.conn = nil
	n.mutex.Unlock()

	if conn == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), natsConnectionTimeoutSeconds*time.Second)
	defer cancel()
	err := conn.FlushWithContext(ctx)
	conn.Close()
	n.updateConnectionHealth(false, nil)
	if err != nil {
		return fmt.Errorf("failed to flush NATS connection: %w", err)
	}
	return nil
}

// ReportBatch publishes a batch event.
func (n *NATSReporter) ReportBatch(ctx context.Context, progress outbound.BatchProgress) error {
	return n.publish(ctx, ProgressEvent{Type: eventBatch, Batch: &progress})
}

// ReportDone publishes the run summary and flushes so it is not lost on exit.
func (n *NATSReporter) ReportDone(ctx context.Context, summary outbound.RunSummary) error {
	if err := n.publish(ctx, ProgressEvent{Type: eventDone, Summary: &summary}); err != nil {
		return err
	}

	n.mutex.RLock()
	conn := n.conn
	n.mutex.RUnlock()
	if err := conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("failed to flush NATS connection: %w", err)
	}
	return nil
}

func (n *NATSReporter) publish(ctx context.Context, event ProgressEvent) error {
	start := time.Now()

	if err := ctx.Err(); err != nil {
		n.updateMetrics(false, time.Since(start))
		return err
	}

	if n.isCircuitBreakerOpen() {
		return ErrCircuitOpen
	}

	n.mutex.RLock()
	conn := n.conn
	n.mutex.RUnlock()
	if conn == nil {
		n.updateMetrics(false, time.Since(start))
		return errors.New("publish failed: not connected to NATS")
	}

	event.MessageID = uuid.New().String()
	event.Timestamp = time.Now().UTC()
	data, err := json.Marshal(event)
	if err != nil {
		n.updateMetrics(false, time.Since(start))
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := conn.Publish(n.subject, data); err != nil {
		n.updateMetrics(false, time.Since(start))
		return fmt.Errorf("failed to publish message: %w", err)
	}

	n.updateMetrics(true, time.Since(start))
	return nil
}

// GetConnectionHealth returns the current connection health status.
func (n *NATSReporter) GetConnectionHealth() ConnectionHealthStatus {
	n.mutex.RLock()
	defer n.mutex.RUnlock()
	return n.connectionHealth
}

// GetMessageMetrics returns current message publishing metrics.
func (n *NATSReporter) GetMessageMetrics() MessageMetrics {
	n.mutex.RLock()
	defer n.mutex.RUnlock()
	return n.messageMetrics
}

func (n *NATSReporter) updateConnectionHealth(connected bool, err error) {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	n.connectionHealth.Connected = connected
	n.connectionHealth.LastPingTime = time.Now()
	if err != nil {
		n.connectionHealth.LastError = err.Error()
	}
}

func (n *NATSReporter) updateMetrics(success bool, latency time.Duration) {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	if success {
		n.messageMetrics.PublishedCount++
		n.messageMetrics.LastPublishedTime = time.Now()

		// EMA with alpha = 0.1
		if n.messageMetrics.AverageLatency == 0 {
			n.messageMetrics.AverageLatency = latency
		} else {
			n.messageMetrics.AverageLatency = time.Duration(
				0.9*float64(n.messageMetrics.AverageLatency) + 0.1*float64(latency),
			)
		}
		n.failureCount = 0
		n.circuitBreakerOpen = false
		return
	}

	n.messageMetrics.FailedCount++
	n.failureCount++
	n.lastFailureTime = time.Now()
	if n.failureCount >= maxFailures {
		n.circuitBreakerOpen = true
	}
}

// isCircuitBreakerOpen reports whether publishing is suspended, closing the
// breaker again once circuitOpenDuration has passed since the last failure.
func (n *NATSReporter) isCircuitBreakerOpen() bool {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	if n.circuitBreakerOpen && time.Since(n.lastFailureTime) > circuitOpenDuration {
		n.circuitBreakerOpen = false
		n.failureCount = 0
	}
	return n.circuitBreakerOpen
}
