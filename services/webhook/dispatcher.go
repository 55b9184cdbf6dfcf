// Package webhook pushes committed receipts to operator-configured HTTP
// endpoints. Deliveries are signed with HMAC-SHA256 and retried with
// exponential backoff.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"latchain/core/types"
	"latchain/observability/metrics"
)

const (
	HeaderSignature = "X-Lat-Signature"
	HeaderDelivery  = "X-Lat-Delivery"
	HeaderOperation = "X-Lat-Operation"

	maxAttempts          = 5
	defaultQueueCapacity = 1024
	defaultBackoff       = time.Second
	maxBackoff           = time.Minute
	responseDrainLimit   = 4 << 10
)

// ErrQueueFull is returned by IndexReceipt when deliveries had to be dropped.
var ErrQueueFull = errors.New("webhook: delivery queue full")

// Subscription is one endpoint receiving receipts.
type Subscription struct {
	Name   string
	URL    string
	Secret string
	// Operations limits deliveries to these receipt operations. Empty
	// matches every operation.
	Operations []string
	// RateLimit is the per-minute delivery cap.
	RateLimit int
}

func (s Subscription) matches(operation string) bool {
	if len(s.Operations) == 0 {
		return true
	}
	for _, op := range s.Operations {
		if op == operation {
			return true
		}
	}
	return false
}

type task struct {
	id      string
	receipt *types.Receipt
	sub     int
	attempt int
}

// Option customises a Dispatcher.
type Option func(*Dispatcher)

func WithHTTPClient(client *http.Client) Option {
	return func(d *Dispatcher) {
		if client != nil {
			d.client = client
		}
	}
}

func WithQueueCapacity(capacity int) Option {
	return func(d *Dispatcher) {
		if capacity > 0 {
			d.capacity = capacity
		}
	}
}

// WithBackoff sets the delay before the first retry. Later retries double it.
func WithBackoff(base time.Duration) Option {
	return func(d *Dispatcher) {
		if base > 0 {
			d.backoff = base
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func withClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// Dispatcher is a core.ReceiptSink that queues receipts for delivery. Run
// must be started for anything to be sent.
type Dispatcher struct {
	subs     []Subscription
	tasks    chan task
	capacity int
	client   *http.Client
	limiter  *RateLimiter
	backoff  time.Duration
	now      func() time.Time
	logger   *slog.Logger
	metrics  *metrics.WebhookMetrics
}

func New(subs []Subscription, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		subs:     append([]Subscription(nil), subs...),
		capacity: defaultQueueCapacity,
		client:   &http.Client{Timeout: 10 * time.Second},
		limiter:  NewRateLimiter(defaultRateWindow, defaultRateTTL),
		backoff:  defaultBackoff,
		now:      time.Now,
		logger:   slog.Default(),
		metrics:  metrics.Webhooks(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.tasks = make(chan task, d.capacity)
	return d
}

// IndexReceipt queues the receipt for every matching subscription without
// blocking the caller.
func (d *Dispatcher) IndexReceipt(_ context.Context, receipt *types.Receipt) error {
	if receipt == nil {
		return nil
	}
	dropped := 0
	for i, sub := range d.subs {
		if !sub.matches(receipt.Operation) {
			continue
		}
		if !d.enqueue(task{id: uuid.NewString(), receipt: receipt, sub: i}) {
			dropped++
		}
	}
	if dropped > 0 {
		return fmt.Errorf("%w: %d deliveries for %s dropped", ErrQueueFull, dropped, receipt.ID)
	}
	return nil
}

func (d *Dispatcher) enqueue(t task) bool {
	select {
	case d.tasks <- t:
		return true
	default:
		d.metrics.RecordDropped("overflow")
		return false
	}
}

// later re-queues t after delay.
func (d *Dispatcher) later(ctx context.Context, t task, delay time.Duration) {
	time.AfterFunc(delay, func() {
		if ctx.Err() != nil {
			return
		}
		if !d.enqueue(t) {
			d.logger.Warn("webhook retry dropped", "subscription", d.subs[t.sub].Name, "receipt", t.receipt.ID)
		}
	})
}

// Run delivers queued receipts until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-d.tasks:
			d.handle(ctx, t)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, t task) {
	sub := d.subs[t.sub]
	now := d.now()
	if !d.limiter.Allow(sub.Name, sub.RateLimit, now) {
		d.metrics.RecordDelivery(sub.Name, "throttled")
		d.later(ctx, t, d.limiter.ResetAt(sub.Name, now).Sub(now))
		return
	}
	err := d.deliver(ctx, sub, t)
	if err == nil {
		d.metrics.RecordDelivery(sub.Name, "success")
		return
	}
	t.attempt++
	if t.attempt >= maxAttempts || ctx.Err() != nil {
		d.metrics.RecordDelivery(sub.Name, "failed")
		d.logger.Warn("webhook delivery abandoned",
			"subscription", sub.Name,
			"receipt", t.receipt.ID,
			"attempts", t.attempt,
			"error", err)
		return
	}
	d.metrics.RecordDelivery(sub.Name, "retry")
	d.later(ctx, t, d.backoffFor(t.attempt))
}

func (d *Dispatcher) backoffFor(attempt int) time.Duration {
	delay := d.backoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

func (d *Dispatcher) deliver(ctx context.Context, sub Subscription, t task) error {
	payload, err := json.Marshal(t.receipt)
	if err != nil {
		return fmt.Errorf("webhook: encode receipt: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("webhook: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderDelivery, t.id)
	req.Header.Set(HeaderOperation, t.receipt.Operation)
	if sub.Secret != "" {
		req.Header.Set(HeaderSignature, Sign(sub.Secret, payload))
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, responseDrainLimit))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: %s responded %s", sub.Name, resp.Status)
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of payload keyed by secret.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
