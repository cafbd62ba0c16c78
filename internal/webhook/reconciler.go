package webhook

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/khanyab/applyflow/internal/idgen"
	"github.com/khanyab/applyflow/internal/logging"
	"github.com/khanyab/applyflow/internal/metrics"
	"github.com/khanyab/applyflow/internal/subscription"
	"github.com/khanyab/applyflow/internal/traces"
)

// applyTimeout bounds the time spent applying a single delivery.
const applyTimeout = 10 * time.Second

// Applier applies a normalized billing event to subscription state.
type Applier interface {
	Apply(ctx context.Context, ev subscription.Event) error
}

// Reconciler runs the webhook delivery pipeline.
type Reconciler struct {
	adapters    map[string]Adapter
	store       Store
	applier     Applier
	maxAttempts int
}

// NewReconciler creates a reconciler over the given provider adapters.
func NewReconciler(store Store, applier Applier, maxAttempts int, adapters ...Adapter) *Reconciler {
	byName := make(map[string]Adapter, len(adapters))
	for _, a := range adapters {
		byName[a.Provider()] = a
	}
	return &Reconciler{
		adapters:    byName,
		store:       store,
		applier:     applier,
		maxAttempts: maxAttempts,
	}
}

// HandleDelivery runs one inbound delivery through verify, parse, record,
// and apply. Returns nil for every outcome the provider should not retry:
// applied, duplicate, unsupported, stale, and invalid transitions all
// acknowledge the delivery. Only verification, parse, and storage failures
// surface as errors.
func (r *Reconciler) HandleDelivery(ctx context.Context, provider string, header http.Header, body []byte) error {
	adapter, ok := r.adapters[provider]
	if !ok {
		metrics.WebhookEventsTotal.WithLabelValues(provider, "unknown_provider").Inc()
		return ErrUnknownProvider
	}

	ctx, span := traces.StartSpan(ctx, "webhook.HandleDelivery", traces.Provider(provider))
	defer span.End()

	if err := adapter.Verify(header, body); err != nil {
		metrics.WebhookEventsTotal.WithLabelValues(provider, "signature_invalid").Inc()
		logging.L(ctx).Warn("webhook signature rejected", "provider", provider)
		return ErrSignatureInvalid
	}

	delivery, err := adapter.Parse(body)
	if errors.Is(err, ErrUnsupportedEvent) {
		// Not an event this platform reconciles; acknowledge and move on
		metrics.WebhookEventsTotal.WithLabelValues(provider, "unsupported").Inc()
		return nil
	}
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues(provider, "malformed").Inc()
		return ErrMalformedPayload
	}

	span.SetAttributes(traces.EventID(delivery.EventID), traces.UserID(delivery.Event.UserID))

	// Write-ahead: record the delivery before applying it, so a crash
	// between record and apply is recovered by the sweeper
	record := &Record{
		ID:              idgen.WithPrefix("evt_"),
		Provider:        provider,
		ExternalEventID: delivery.EventID,
		EventType:       string(delivery.Event.Type),
		UserID:          delivery.Event.UserID,
		Payload:         body,
		ReceivedAt:      time.Now(),
	}
	if err := r.store.Insert(ctx, record); err != nil {
		if errors.Is(err, ErrDuplicateEvent) {
			metrics.WebhookEventsTotal.WithLabelValues(provider, "duplicate").Inc()
			logging.L(ctx).Info("duplicate webhook delivery",
				"provider", provider, "event_id", delivery.EventID)
			return nil
		}
		metrics.WebhookEventsTotal.WithLabelValues(provider, "error").Inc()
		return err
	}

	return r.apply(ctx, record, delivery)
}

// apply runs the event through the state machine and stamps the record
// with the terminal outcome. Transient failures leave the record
// unprocessed for the sweeper and still acknowledge the delivery.
func (r *Reconciler) apply(ctx context.Context, record *Record, delivery Delivery) error {
	ctx, cancel := context.WithTimeout(ctx, applyTimeout)
	defer cancel()

	err := r.applier.Apply(ctx, delivery.Event)
	switch {
	case err == nil:
		metrics.WebhookEventsTotal.WithLabelValues(record.Provider, "applied").Inc()
		return r.store.MarkProcessed(ctx, record.ID, "applied")

	case errors.Is(err, subscription.ErrStaleEvent):
		// A newer event already won; the late arrival is superseded and
		// must never regress state
		metrics.WebhookEventsTotal.WithLabelValues(record.Provider, "stale").Inc()
		logging.L(ctx).Info("stale webhook event superseded",
			"provider", record.Provider, "event_id", record.ExternalEventID)
		return r.store.MarkProcessed(ctx, record.ID, "superseded")

	case errors.Is(err, subscription.ErrInvalidTransition):
		// Logged by the state machine; retrying cannot make it valid
		metrics.WebhookEventsTotal.WithLabelValues(record.Provider, "invalid_transition").Inc()
		return r.store.MarkProcessed(ctx, record.ID, "invalid_transition")

	case errors.Is(err, subscription.ErrNotFound):
		// Out of order: the payment landed before subscription.created.
		// Leave unprocessed so the sweeper retries once the subscription
		// exists
		metrics.WebhookEventsTotal.WithLabelValues(record.Provider, "deferred").Inc()
		logging.L(ctx).Info("webhook event deferred, subscription not found yet",
			"provider", record.Provider, "event_id", record.ExternalEventID,
			"user_id", record.UserID)
		return r.store.MarkFailed(ctx, record.ID, "subscription not found")

	default:
		metrics.WebhookEventsTotal.WithLabelValues(record.Provider, "error").Inc()
		logging.L(ctx).Error("webhook apply failed",
			"provider", record.Provider, "event_id", record.ExternalEventID,
			"error", err)
		return r.store.MarkFailed(ctx, record.ID, err.Error())
	}
}

// Sweep retries unprocessed deliveries, oldest first. Called periodically
// by the sweeper timer.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	records, err := r.store.ListUnprocessed(ctx, r.maxAttempts, 100)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, record := range records {
		adapter, ok := r.adapters[record.Provider]
		if !ok {
			// Provider secret was removed from config; park the record
			_ = r.store.MarkProcessed(ctx, record.ID, "provider_removed")
			continue
		}

		delivery, err := adapter.Parse(record.Payload)
		if err != nil {
			_ = r.store.MarkProcessed(ctx, record.ID, "unparseable")
			continue
		}

		if err := r.apply(ctx, record, delivery); err != nil {
			return applied, err
		}
		applied++
	}
	return applied, nil
}
