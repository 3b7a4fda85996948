package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"piivault/internal/audit/outbox"
	"piivault/internal/audit/outbox/metrics"
	"piivault/internal/platform/kafka/producer"
)

// Publisher sends one message and waits for the broker acknowledgement.
// *producer.Producer and *producer.NoopProducer satisfy it.
type Publisher interface {
	Produce(ctx context.Context, msg *producer.Message) error
}

const (
	defaultTopic        = "piivault.audit.events"
	defaultBatchSize    = 100
	defaultPollInterval = 100 * time.Millisecond
	defaultRetention    = 24 * time.Hour
	drainTimeout        = 10 * time.Second
)

// Worker polls the outbox and publishes audit events to Kafka.
type Worker struct {
	store        outbox.Store
	publisher    Publisher
	topic        string
	batchSize    int
	pollInterval time.Duration
	retention    time.Duration
	metrics      *metrics.Metrics
	logger       *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Option func(*Worker)

func WithTopic(topic string) Option {
	return func(w *Worker) {
		if topic != "" {
			w.topic = topic
		}
	}
}

func WithBatchSize(size int) Option {
	return func(w *Worker) {
		if size > 0 {
			w.batchSize = size
		}
	}
}

func WithPollInterval(interval time.Duration) Option {
	return func(w *Worker) {
		if interval > 0 {
			w.pollInterval = interval
		}
	}
}

// WithProcessedRetention sets how long published entries are kept before cleanup.
func WithProcessedRetention(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.retention = d
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Worker) {
		w.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

func New(store outbox.Store, publisher Publisher, opts ...Option) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		store:        store,
		publisher:    publisher,
		topic:        defaultTopic,
		batchSize:    defaultBatchSize,
		pollInterval: defaultPollInterval,
		retention:    defaultRetention,
		logger:       slog.Default(),
		ctx:          ctx,
		cancel:       cancel,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins the polling loop in a background goroutine.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.run()
}

func (w *Worker) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	cleanup := time.NewTicker(w.retention)
	defer cleanup.Stop()

	for {
		select {
		case <-w.ctx.Done():
			w.drain()
			return
		case <-ticker.C:
			w.Poll(w.ctx)
		case <-cleanup.C:
			w.cleanup(w.ctx)
		}
	}
}

// Poll fetches and publishes one batch. It returns the number of entries
// published.
func (w *Worker) Poll(ctx context.Context) int {
	start := time.Now()
	defer func() {
		w.metrics.ObservePollDuration(time.Since(start).Seconds())
	}()

	entries, err := w.store.FetchUnprocessed(ctx, w.batchSize)
	if err != nil {
		w.logger.ErrorContext(ctx, "failed to fetch outbox entries", "error", err)
		w.metrics.IncPublishFailures()
		return 0
	}
	if len(entries) == 0 {
		return 0
	}
	w.metrics.ObserveBatchSize(len(entries))

	published := 0
	for _, entry := range entries {
		if err := w.publishEntry(ctx, entry); err != nil {
			w.logger.ErrorContext(ctx, "failed to publish outbox entry",
				"id", entry.ID,
				"event_type", entry.EventType,
				"error", err,
			)
			w.metrics.IncPublishFailures()
			// retried on the next poll
			continue
		}
		if err := w.store.MarkProcessed(ctx, entry.ID, time.Now().UTC()); err != nil {
			// published but not marked: consumers deduplicate on the message key
			w.logger.ErrorContext(ctx, "failed to mark entry as processed",
				"id", entry.ID,
				"error", err,
			)
			continue
		}
		w.metrics.IncPublished()
		published++
	}

	if count, err := w.store.CountPending(ctx); err == nil {
		w.metrics.SetPendingDepth(count)
	}
	return published
}

func (w *Worker) publishEntry(ctx context.Context, entry *outbox.Entry) error {
	start := time.Now()
	msg := &producer.Message{
		Topic: w.topic,
		Key:   []byte(entry.ID.String()),
		Value: entry.Payload,
		Headers: map[string]string{
			"aggregate_type": entry.AggregateType,
			"aggregate_id":   entry.AggregateID,
			"event_type":     entry.EventType,
		},
	}
	if err := w.publisher.Produce(ctx, msg); err != nil {
		return err
	}
	w.metrics.ObservePublishDuration(time.Since(start).Seconds())
	return nil
}

func (w *Worker) cleanup(ctx context.Context) {
	deleted, err := w.store.DeleteProcessedBefore(ctx, time.Now().UTC().Add(-w.retention))
	if err != nil {
		w.logger.ErrorContext(ctx, "failed to clean up processed outbox entries", "error", err)
		return
	}
	if deleted > 0 {
		w.logger.InfoContext(ctx, "cleaned up processed outbox entries", "deleted", deleted)
	}
}

// drain publishes what is left during shutdown, bounded by drainTimeout.
func (w *Worker) drain() {
	w.logger.Info("draining outbox worker")
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	for ctx.Err() == nil {
		if w.Poll(ctx) == 0 {
			return
		}
	}
}

// Stop cancels the loop and waits for the drain to finish.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
