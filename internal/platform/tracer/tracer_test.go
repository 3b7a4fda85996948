package tracer_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"piivault/internal/platform/tracer"
)

func TestNoopTracer(t *testing.T) {
	tr := tracer.NewNoop()
	ctx := context.Background()

	newCtx, span := tr.Start(ctx, tracer.SpanErasure, tracer.String(tracer.AttrReferenceID, "user-1"))
	assert.Equal(t, ctx, newCtx)
	require.NotNil(t, span)

	span.SetAttributes(tracer.Bool(tracer.AttrRetainAudit, true))
	span.AddEvent(tracer.EventClaimed, tracer.Int(tracer.AttrPurged, 3))
	span.End(errors.New("boom"))
}

func TestOTelTracer(t *testing.T) {
	tr := tracer.NewOTel(tracer.WithOTelTracer(noop.NewTracerProvider().Tracer("test")))
	_, span := tr.Start(context.Background(), tracer.SpanPurgeBatch,
		tracer.Int(tracer.AttrRetention, 90),
		tracer.Int64(tracer.AttrCandidates, 12),
		tracer.Duration("elapsed", 1500*time.Millisecond),
		tracer.Attribute{Key: "ignored", Value: struct{}{}},
	)
	require.NotNil(t, span)
	span.AddEvent(tracer.EventExportCached)
	span.End(nil)
}

func TestDurationIsMilliseconds(t *testing.T) {
	a := tracer.Duration("d", 2*time.Second)
	assert.Equal(t, int64(2000), a.Value)
}
