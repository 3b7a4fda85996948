// Package audit records append-only security events and answers the
// compliance queries built on them.
package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"piivault/internal/platform/metrics"
	"piivault/pkg/domain"
	dErrors "piivault/pkg/domain-errors"
	"piivault/pkg/platform/tx"
	"piivault/pkg/requestcontext"
)

//go:generate mockgen -source=trail.go -destination=mocks/mocks.go -package=mocks

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByUser(ctx context.Context, ref domain.ReferenceID) ([]Event, error)
	StatisticsSince(ctx context.Context, since time.Time) (Statistics, error)
	FailedLoginsSince(ctx context.Context, since time.Time) ([]FailedLogins, error)
	DeleteByUser(ctx context.Context, ref domain.ReferenceID) (int64, error)
	DeleteUserEventsBefore(ctx context.Context, ref domain.ReferenceID, cutoff time.Time) (int64, error)
	DeletePurgedUserEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

const (
	defaultAttempts = 3
	defaultBackoff  = 20 * time.Millisecond
)

// Trail is the audit trail service.
type Trail struct {
	store    Store
	logger   *slog.Logger
	metrics  *metrics.Metrics
	attempts int
	backoff  time.Duration
}

type Option func(*Trail)

func WithLogger(logger *slog.Logger) Option {
	return func(t *Trail) {
		t.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Trail) {
		t.metrics = m
	}
}

// WithRetry sets how often a write outside a transaction is attempted and the
// base delay between attempts.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(t *Trail) {
		if attempts > 0 {
			t.attempts = attempts
		}
		if backoff >= 0 {
			t.backoff = backoff
		}
	}
}

func NewTrail(store Store, opts ...Option) *Trail {
	t := &Trail{
		store:    store,
		logger:   slog.Default(),
		attempts: defaultAttempts,
		backoff:  defaultBackoff,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Record appends an event. ID, timestamp, request ID, and actor are filled
// from ctx when unset.
//
// Inside a transaction the write is attempted once and its failure rolls the
// transaction back. Outside one it is retried with backoff before the error
// surfaces.
func (t *Trail) Record(ctx context.Context, event Event) error {
	event = enrich(ctx, event)
	if err := event.Validate(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid audit event")
	}

	var err error
	if tx.Active(ctx) {
		err = t.store.Append(ctx, event)
	} else {
		err = t.appendWithRetry(ctx, event)
	}
	if err != nil {
		t.logger.ErrorContext(ctx, "failed to record audit event",
			"event_type", string(event.Type),
			"reference_id", event.UserReferenceID.String(),
			"error", err,
		)
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit event")
	}

	t.metrics.IncAuditEvent(string(event.Type))
	t.logger.InfoContext(ctx, string(event.Type),
		"log_type", "audit",
		"event_id", event.ID.String(),
		"reference_id", event.UserReferenceID.String(),
		"request_id", event.RequestID,
	)
	return nil
}

func (t *Trail) appendWithRetry(ctx context.Context, event Event) error {
	var errs []error
	for attempt := range t.attempts {
		if attempt > 0 {
			timer := time.NewTimer(t.backoff * time.Duration(1<<(attempt-1)))
			select {
			case <-ctx.Done():
				timer.Stop()
				return errors.Join(append(errs, ctx.Err())...)
			case <-timer.C:
			}
		}
		err := t.store.Append(ctx, event)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// RecordLogin records the outcome of a login reported by the identity gateway.
func (t *Trail) RecordLogin(ctx context.Context, ref domain.ReferenceID, success bool, reason string) error {
	event := Event{UserReferenceID: ref, Type: EventLoginSucceeded}
	if !success {
		event.Type = EventLoginFailed
		if reason != "" {
			event.Detail = map[string]string{"reason": reason}
		}
	}
	return t.Record(ctx, event)
}

// StatisticsSince counts events at or after since, by type.
func (t *Trail) StatisticsSince(ctx context.Context, since time.Time) (Statistics, error) {
	stats, err := t.store.StatisticsSince(ctx, since.UTC())
	if err != nil {
		return Statistics{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to compute audit statistics")
	}
	return stats, nil
}

// UsersWithFailedLogins lists users with at least one failed login at or after
// since, most failures first.
func (t *Trail) UsersWithFailedLogins(ctx context.Context, since time.Time) ([]FailedLogins, error) {
	out, err := t.store.FailedLoginsSince(ctx, since.UTC())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list failed logins")
	}
	return out, nil
}

// ListByUser returns a user's events oldest first, for data export.
func (t *Trail) ListByUser(ctx context.Context, ref domain.ReferenceID) ([]Event, error) {
	events, err := t.store.ListByUser(ctx, ref)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list audit events")
	}
	return events, nil
}

// DeleteByUser removes every event of a user. Erasure calls it when the audit
// trail is not retained.
func (t *Trail) DeleteByUser(ctx context.Context, ref domain.ReferenceID) (int64, error) {
	n, err := t.store.DeleteByUser(ctx, ref)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete audit events")
	}
	return n, nil
}

// PurgeUserEventsBefore removes a user's events older than cutoff, per the
// audit retention policy.
func (t *Trail) PurgeUserEventsBefore(ctx context.Context, ref domain.ReferenceID, cutoff time.Time) (int64, error) {
	n, err := t.store.DeleteUserEventsBefore(ctx, ref, cutoff)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to purge audit events")
	}
	return n, nil
}

// PurgeResidueBefore removes events older than cutoff that belong to users
// already purged. Retention keeps running after the purge itself, so a purged
// user's remaining events age out like everyone else's.
func (t *Trail) PurgeResidueBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := t.store.DeletePurgedUserEventsBefore(ctx, cutoff)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to purge audit residue")
	}
	return n, nil
}

func enrich(ctx context.Context, event Event) Event {
	if event.ID.IsNil() {
		event.ID = domain.NewEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	event.Timestamp = event.Timestamp.UTC().Truncate(time.Microsecond)
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.ActorID == "" {
		if caller, ok := requestcontext.CallerFrom(ctx); ok {
			event.ActorID = caller.Subject
		}
	}
	return event
}
