package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store defines the outbox persistence operations.
// Implementations must be safe for concurrent use.
type Store interface {
	// Append adds a new entry. Call it inside the transaction of the audit write.
	Append(ctx context.Context, entry *Entry) error

	// FetchUnprocessed returns up to limit pending entries, oldest first.
	FetchUnprocessed(ctx context.Context, limit int) ([]*Entry, error)

	MarkProcessed(ctx context.Context, id uuid.UUID, processedAt time.Time) error

	CountPending(ctx context.Context) (int64, error)

	// DeleteProcessedBefore removes old processed entries for cleanup.
	DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)

	// DeleteByAggregate removes entries, published or not, for one aggregate.
	// Erasure uses it so a user's events do not outlive the audit rows.
	DeleteByAggregate(ctx context.Context, aggregateType, aggregateID string) (int64, error)
}
