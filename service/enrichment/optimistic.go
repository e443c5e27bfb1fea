package enrichment

import (
	"context"
	"errors"
	"time"

	"github.com/mikeydub/go-union/service/logger"
	"github.com/mikeydub/go-union/service/persist"
	"github.com/mikeydub/go-union/util/retry"
)

// ErrVersionConflict is returned by a repository when the saved version no longer matches the stored one
var ErrVersionConflict = errors.New("version conflict")

// ErrRecordNotFound is returned by a repository when a key has no record
var ErrRecordNotFound = errors.New("enrichment record not found")

// DefaultWriteRetry bounds the read-modify-write loop of every store write
var DefaultWriteRetry = retry.Retry{Base: 10 * time.Millisecond, Cap: 200 * time.Millisecond, Tries: 5}

// withOptimisticRetry reads a value, applies mutate and writes it back, starting over when the write
// loses a version race. mutate reports whether it changed anything; unchanged values are not written.
// When every attempt conflicts a persist.ErrConcurrentWrite is returned.
func withOptimisticRetry[T any](
	ctx context.Context,
	key string,
	read func(context.Context) (T, error),
	mutate func(T) (T, bool, error),
	write func(context.Context, T) (T, error),
	r retry.Retry,
) (T, error) {
	var zero T
	var lastErr error
	attempts := r.Tries
	if attempts < 1 {
		attempts = 1
	}

	for i := 0; i < attempts; i++ {
		current, err := read(ctx)
		if err != nil {
			return zero, err
		}

		updated, changed, err := mutate(current)
		if err != nil {
			return zero, err
		}
		if !changed {
			return current, nil
		}

		saved, err := write(ctx, updated)
		if err == nil {
			return saved, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return zero, err
		}

		lastErr = err
		logger.For(ctx).Debugf("version conflict writing %s (attempt %d/%d)", key, i+1, attempts)

		if i < attempts-1 {
			if err := r.Sleep(ctx, i); err != nil {
				return zero, err
			}
		}
	}

	return zero, persist.ErrConcurrentWrite{Key: key, Attempts: attempts, Err: lastErr}
}
