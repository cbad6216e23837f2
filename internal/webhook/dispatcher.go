package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/clearroute/payment-core/internal/application"
	"github.com/clearroute/payment-core/internal/domain"
)

type clock func() time.Time

// DispatcherConfig tunes the delivery loop.
type DispatcherConfig struct {
	Workers         int
	PollInterval    time.Duration
	DeliveryTimeout time.Duration
	BatchSize       int
}

func (c *DispatcherConfig) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.DeliveryTimeout <= 0 {
		c.DeliveryTimeout = 10 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
}

// Dispatcher drains due webhook events: one scanner feeds a pool of
// delivery workers. Events are claimed with a version compare-and-set,
// so a scan overlapping an in-flight delivery cannot double-send.
type Dispatcher struct {
	webhooks application.WebhookRepository
	signer   *Signer
	client   *http.Client
	logger   *slog.Logger
	cfg      DispatcherConfig
	now      clock
}

func NewDispatcher(webhooks application.WebhookRepository, signer *Signer, logger *slog.Logger, cfg DispatcherConfig) *Dispatcher {
	cfg.applyDefaults()
	return &Dispatcher{
		webhooks: webhooks,
		signer:   signer,
		client:   &http.Client{Timeout: cfg.DeliveryTimeout},
		logger:   logger,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run blocks until ctx is cancelled, scanning for due events on every
// tick and handing them to the worker pool.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("webhook dispatcher started",
		"workers", d.cfg.Workers, "poll_interval", d.cfg.PollInterval)

	queue := make(chan *domain.WebhookEvent)
	var wg sync.WaitGroup
	for i := 0; i < d.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for event := range queue {
				d.deliver(ctx, event)
			}
		}()
	}

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			close(queue)
			wg.Wait()
			d.logger.Info("webhook dispatcher stopped")
			return
		case <-ticker.C:
			d.scan(ctx, queue)
		}
	}
}

// DrainOnce runs a single scan-and-deliver pass synchronously. Tests
// and the dispatcher's shutdown flush use it.
func (d *Dispatcher) DrainOnce(ctx context.Context) {
	events, err := d.webhooks.FindDue(ctx, d.now(), d.cfg.BatchSize)
	if err != nil {
		d.logger.Error("failed to scan due webhook events", "error", err)
		return
	}
	for _, event := range events {
		d.deliver(ctx, event)
	}
}

func (d *Dispatcher) scan(ctx context.Context, queue chan<- *domain.WebhookEvent) {
	events, err := d.webhooks.FindDue(ctx, d.now(), d.cfg.BatchSize)
	if err != nil {
		d.logger.Error("failed to scan due webhook events", "error", err)
		return
	}
	for _, event := range events {
		select {
		case queue <- event:
		case <-ctx.Done():
			return
		}
	}
}

// deliver attempts one delivery and records the outcome. The event row
// is updated first under compare-and-set; a conflict means another
// worker already owns this attempt.
func (d *Dispatcher) deliver(ctx context.Context, event *domain.WebhookEvent) {
	endpoint, err := d.webhooks.FindEndpoint(ctx, event.EndpointID)
	if err != nil {
		d.logger.Error("failed to load webhook endpoint",
			"event_id", event.ID, "endpoint_id", event.EndpointID, "error", err)
		return
	}

	now := d.now()
	attemptNumber := event.AttemptCount + 1
	status, deliverErr := d.post(ctx, endpoint, event, now)

	if deliverErr == nil {
		event.RecordSuccess(now)
	} else {
		event.RecordFailure(now)
	}

	if err := d.webhooks.UpdateEvent(ctx, event); err != nil {
		if errors.Is(err, application.ErrConflict) {
			// another worker already recorded this attempt
			return
		}
		d.logger.Error("failed to update webhook event",
			"event_id", event.ID, "error", err)
		return
	}

	attempt := &domain.DeliveryAttempt{
		ID:            domain.NewID("wa_", domain.OpaqueIDLength),
		EventID:       event.ID,
		AttemptNumber: attemptNumber,
		AttemptedAt:   now,
	}
	if status != 0 {
		attempt.HTTPStatus = &status
	}
	if deliverErr != nil {
		msg := deliverErr.Error()
		attempt.ErrorMessage = &msg
	}
	if err := d.webhooks.RecordAttempt(ctx, attempt); err != nil {
		d.logger.Error("failed to record delivery attempt",
			"event_id", event.ID, "error", err)
	}

	switch {
	case deliverErr == nil:
		d.logger.Info("webhook delivered",
			"event_id", event.ID, "endpoint_id", endpoint.ID, "attempt", attemptNumber)
	case event.Status == domain.DeliveryExhausted:
		// merchants must reconcile exhausted events out of band
		d.logger.Error("webhook delivery exhausted",
			"event_id", event.ID, "endpoint_id", endpoint.ID,
			"attempts", event.AttemptCount, "error", deliverErr)
	default:
		d.logger.Warn("webhook delivery failed",
			"event_id", event.ID, "endpoint_id", endpoint.ID,
			"attempt", attemptNumber, "next_attempt_at", event.NextAttemptAt,
			"error", deliverErr)
	}
}

// post sends the signed payload. Any response outside 2xx counts as a
// failed attempt.
func (d *Dispatcher) post(ctx context.Context, endpoint *domain.WebhookEndpoint, event *domain.WebhookEvent, now time.Time) (int, error) {
	reqCtx, cancel := context.WithTimeout(ctx, d.cfg.DeliveryTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint.URL, bytes.NewReader(event.Payload))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", d.signer.Sign(endpoint.Secret, event.Payload, now))
	req.Header.Set("X-Webhook-Event-Id", event.ID)
	req.Header.Set("X-Webhook-Event-Type", string(event.Type))

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("deliver webhook: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, fmt.Errorf("endpoint returned %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}
