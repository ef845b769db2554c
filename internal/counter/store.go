// Package counter provides the TTL-expiring counter/sum cache backing the
// fraud velocity rules.
//
// Every operation is fail-open: when the backing store is unreachable the
// second return value is false and the caller treats the read as "no signal"
// instead of blocking the transaction. No operation ever returns an error.
package counter

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Store is the counter/sum cache contract. Implementations must be safe for
// unbounded concurrent callers.
type Store interface {
	// Increment atomically adds 1 to an integer counter, refreshing its TTL,
	// and returns the new value. ok is false when the store was unreachable.
	Increment(ctx context.Context, key string, ttl time.Duration) (value int64, ok bool)

	// GetInt reads an integer counter. found is false for a missing key or
	// an unreachable store; the caller cannot and need not distinguish.
	GetInt(ctx context.Context, key string) (value int64, found bool)

	// AddAndGet atomically accumulates a decimal sum, refreshing its TTL,
	// and returns the new total.
	AddAndGet(ctx context.Context, key string, delta decimal.Decimal, ttl time.Duration) (value decimal.Decimal, ok bool)

	// GetDecimal reads a decimal accumulator.
	GetDecimal(ctx context.Context, key string) (value decimal.Decimal, found bool)
}
