// Package tracer is a small tracing abstraction over OpenTelemetry used by
// the lifecycle manager. Components depend on the Tracer interface; tests use
// the no-op implementation.
package tracer

import (
	"context"
	"time"
)

// Span is an active trace span. End must be called exactly once.
type Span interface {
	// End completes the span. A non-nil err marks it failed.
	End(err error)
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute is a key-value pair attached to spans. Values must never carry PII.
type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

func Int(key string, value int) Attribute {
	return Attribute{Key: key, Value: value}
}

func Int64(key string, value int64) Attribute {
	return Attribute{Key: key, Value: value}
}

// Duration creates a duration attribute in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// Span names emitted by the lifecycle manager.
const (
	SpanErasure     = "gdpr.erasure"
	SpanExport      = "gdpr.export"
	SpanPurgeBatch  = "gdpr.purge"
	SpanPurgeUser   = "gdpr.purge.user"
	SpanExportFetch = "gdpr.export.fetch"
)

// Attribute keys.
const (
	AttrReferenceID   = "user.reference_id"
	AttrRetainAudit   = "gdpr.retain_audit"
	AttrRetention     = "gdpr.retention_days"
	AttrCandidates    = "gdpr.purge.candidates"
	AttrPurged        = "gdpr.purge.purged"
	AttrFailed        = "gdpr.purge.failed"
	AttrExportID      = "gdpr.export_id"
	AttrClaimTakeover = "gdpr.claim_takeover"
)

// Event names.
const (
	EventClaimed       = "deletion_claimed"
	EventClaimReverted = "deletion_claim_reverted"
	EventExportCached  = "export_cached"
)
