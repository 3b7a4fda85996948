// Package requestcontext carries request-scoped values (request ID, client
// metadata, caller identity, clock) through context without importing transport.
package requestcontext

import (
	"context"
	"time"
)

type (
	requestIDKey struct{}
	clientKey    struct{}
	callerKey    struct{}
	nowKey       struct{}
)

type clientMetadata struct {
	ip        string
	userAgent string
}

// Caller identifies the authenticated principal behind a request.
type Caller struct {
	Subject    string
	Permission string
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// WithClientMetadata stores the client IP and User-Agent captured at the edge.
func WithClientMetadata(ctx context.Context, ip, userAgent string) context.Context {
	return context.WithValue(ctx, clientKey{}, clientMetadata{ip: ip, userAgent: userAgent})
}

func ClientIP(ctx context.Context) string {
	if v, ok := ctx.Value(clientKey{}).(clientMetadata); ok {
		return v.ip
	}
	return ""
}

func UserAgent(ctx context.Context) string {
	if v, ok := ctx.Value(clientKey{}).(clientMetadata); ok {
		return v.userAgent
	}
	return ""
}

func WithCaller(ctx context.Context, caller Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFrom returns the authenticated caller, if any.
func CallerFrom(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok
}

// WithNow pins the clock for a request. Tests use it to make time-dependent
// behavior deterministic.
func WithNow(ctx context.Context, now time.Time) context.Context {
	return context.WithValue(ctx, nowKey{}, now)
}

// Now returns the pinned request time, or the wall clock in UTC.
func Now(ctx context.Context) time.Time {
	if v, ok := ctx.Value(nowKey{}).(time.Time); ok {
		return v
	}
	return time.Now().UTC()
}
