package throttle

import (
	"context"
	"time"

	"github.com/mikeydub/go-union/service/redis"
	"github.com/mikeydub/go-union/util"
)

// ErrThrottleLocked is returned when the throttle is already locked for a given key. We do not block
// with a lock, but return this error instead.
type ErrThrottleLocked struct {
	Key string
}

// Locker makes sure a task keyed by a string is not started twice within the expiry window across
// every instance of the service. Keys expire on their own so nothing stays locked indefinitely.
type Locker struct {
	memstore *redis.Cache
	expiry   time.Duration
}

func NewThrottleLocker(memstore *redis.Cache, expiry time.Duration) *Locker {
	return &Locker{
		memstore: memstore,
		expiry:   expiry,
	}
}

// Lock locks a key and returns ErrThrottleLocked if it is already locked
func (t *Locker) Lock(ctx context.Context, key string) error {
	set, err := t.memstore.SetNX(ctx, key, []byte{}, t.expiry)
	if err != nil {
		return err
	}
	if !set {
		return ErrThrottleLocked{Key: key}
	}
	return nil
}

// Unlock unlocks a key, despite it being locked
func (t *Locker) Unlock(ctx context.Context, key string) error {
	return t.memstore.Delete(ctx, key)
}

func (t *Locker) IsLocked(ctx context.Context, key string) (bool, error) {
	_, err := t.memstore.Get(ctx, key)
	if util.ErrorAs[redis.ErrKeyNotFound](err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (e ErrThrottleLocked) Error() string {
	return "throttle locked: " + e.Key
}
