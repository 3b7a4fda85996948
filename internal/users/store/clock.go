package store

import (
	"context"
	"time"

	"piivault/pkg/requestcontext"
)

// nowFrom truncates to microseconds so both backends return identical
// timestamps for the same write.
func nowFrom(ctx context.Context) time.Time {
	return requestcontext.Now(ctx).UTC().Truncate(time.Microsecond)
}
