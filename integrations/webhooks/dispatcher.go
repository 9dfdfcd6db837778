// Package webhooks delivers marketplace events to an operator endpoint with
// HMAC signatures and retry.
package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"vitrine/core/events"
	"vitrine/core/types"
)

const (
	defaultMaxAttempts = 5
	defaultMinBackoff  = 2 * time.Second
	defaultMaxBackoff  = 30 * time.Second
	defaultQueueSize   = 64
)

var ErrClosed = errors.New("webhook: dispatcher closed")

// Payload is the webhook body.
type Payload struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	EmittedAt  time.Time         `json:"emittedAt"`
	DeliveryID string            `json:"deliveryId"`
}

// Dispatcher orchestrates webhook deliveries with retry and exponential
// backoff. It implements events.Emitter so it can sit on the event fan-out.
type Dispatcher struct {
	endpoint    string
	secret      []byte
	client      *http.Client
	maxAttempts int
	minBackoff  time.Duration
	maxBackoff  time.Duration
	topics      map[string]struct{}
	throttle    *topicThrottle
	now         func() time.Time
	logger      *slog.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	queue     chan delivery
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	throttled atomic.Uint64
}

type delivery struct {
	eventType string
	body      []byte
}

// Option mutates dispatcher configuration.
type Option func(*Dispatcher)

// WithHTTPClient overrides the HTTP client used for deliveries.
func WithHTTPClient(client *http.Client) Option {
	return func(d *Dispatcher) {
		if client != nil {
			d.client = client
		}
	}
}

// WithRetryPolicy overrides the retry configuration.
func WithRetryPolicy(maxAttempts int, minBackoff, maxBackoff time.Duration) Option {
	return func(d *Dispatcher) {
		if maxAttempts > 0 {
			d.maxAttempts = maxAttempts
		}
		if minBackoff > 0 {
			d.minBackoff = minBackoff
		}
		if maxBackoff >= minBackoff && maxBackoff > 0 {
			d.maxBackoff = maxBackoff
		}
	}
}

// WithTopics restricts deliveries to the listed event types.
func WithTopics(topics ...string) Option {
	return func(d *Dispatcher) {
		if len(topics) == 0 {
			return
		}
		d.topics = make(map[string]struct{}, len(topics))
		for _, topic := range topics {
			d.topics[topic] = struct{}{}
		}
	}
}

// WithRateLimit caps deliveries of each event type per minute. Events over
// the cap are discarded and counted by Throttled.
func WithRateLimit(perMinute int) Option {
	return func(d *Dispatcher) {
		if perMinute > 0 {
			d.throttle = newTopicThrottle(perMinute)
		}
	}
}

// WithLogger sets the logger used for failed deliveries.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher constructs a dispatcher and spawns the worker goroutine.
func NewDispatcher(endpoint string, secret []byte, opts ...Option) (*Dispatcher, error) {
	endpoint = string(bytes.TrimSpace([]byte(endpoint)))
	if endpoint == "" {
		return nil, errors.New("webhook: endpoint required")
	}
	if len(secret) == 0 {
		return nil, errors.New("webhook: secret required")
	}
	ctx, cancel := context.WithCancel(context.Background())
	dispatcher := &Dispatcher{
		endpoint:    endpoint,
		secret:      append([]byte(nil), secret...),
		client:      &http.Client{Timeout: 15 * time.Second},
		maxAttempts: defaultMaxAttempts,
		minBackoff:  defaultMinBackoff,
		maxBackoff:  defaultMaxBackoff,
		logger:      slog.Default(),
		now:         time.Now,
		ctx:         ctx,
		cancel:      cancel,
		queue:       make(chan delivery, defaultQueueSize),
	}
	for _, opt := range opts {
		opt(dispatcher)
	}
	dispatcher.wg.Add(1)
	go dispatcher.worker()
	return dispatcher, nil
}

// Close stops the dispatcher and waits for inflight deliveries to complete.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.cancel()
	d.wg.Wait()
}

// Dropped returns the number of events discarded because the queue was full.
func (d *Dispatcher) Dropped() uint64 { return d.dropped.Load() }

// Throttled returns the number of events discarded by the rate limit.
func (d *Dispatcher) Throttled() uint64 { return d.throttled.Load() }

// Emit implements events.Emitter. Emission never blocks the caller: events
// are dropped when the queue is full.
func (d *Dispatcher) Emit(evt events.Event) {
	flat := events.Flatten(evt)
	if flat == nil || !d.wants(flat.Type) {
		return
	}
	if !d.throttle.allow(flat.Type, d.now()) {
		d.throttled.Add(1)
		return
	}
	body, err := d.encode(flat)
	if err != nil {
		d.logger.Warn("webhook encode failed", "type", flat.Type, "error", err)
		return
	}
	select {
	case d.queue <- delivery{eventType: flat.Type, body: body}:
	case <-d.ctx.Done():
	default:
		d.dropped.Add(1)
	}
}

// Enqueue schedules evt, waiting for queue space.
func (d *Dispatcher) Enqueue(evt *types.Event) error {
	if d == nil {
		return errors.New("webhook: dispatcher not initialised")
	}
	if evt == nil || !d.wants(evt.Type) {
		return nil
	}
	body, err := d.encode(evt)
	if err != nil {
		return err
	}
	select {
	case d.queue <- delivery{eventType: evt.Type, body: body}:
		return nil
	case <-d.ctx.Done():
		return ErrClosed
	}
}

func (d *Dispatcher) wants(eventType string) bool {
	if len(d.topics) == 0 {
		return true
	}
	_, ok := d.topics[eventType]
	return ok
}

func (d *Dispatcher) encode(evt *types.Event) ([]byte, error) {
	return json.Marshal(Payload{
		Type:       evt.Type,
		Attributes: evt.Attributes,
		EmittedAt:  time.Now().UTC(),
		DeliveryID: uuid.NewString(),
	})
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case job := <-d.queue:
			d.process(job)
		case <-d.ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) process(job delivery) {
	attempt := 0
	backoff := d.minBackoff
	for {
		attempt++
		ctx, cancel := context.WithTimeout(d.ctx, d.client.Timeout)
		err := d.send(ctx, job)
		cancel()
		if err == nil {
			return
		}
		if attempt >= d.maxAttempts {
			d.logger.Warn("webhook delivery abandoned", "type", job.eventType, "attempts", attempt, "error", err)
			return
		}
		select {
		case <-time.After(backoff):
		case <-d.ctx.Done():
			return
		}
		backoff = nextBackoff(backoff, d.maxBackoff)
	}
}

func (d *Dispatcher) send(ctx context.Context, job delivery) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(job.body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Vitrine-Event", job.eventType)
	req.Header.Set("X-Vitrine-Signature", Sign(d.secret, job.body))
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("webhook: delivery failed with status %d", resp.StatusCode)
}

// Sign returns the signature header value for body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func nextBackoff(current, limit time.Duration) time.Duration {
	next := current * 2
	if next > limit || next < current {
		return limit
	}
	return next
}
