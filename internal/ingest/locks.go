package ingest

import "context"

// Locker serializes writers for the same interaction across the dispatch
// worker and the callback ingestors. utils.RedisLocker satisfies this; tests
// use NoopLocker. The store's version check remains the backstop either way.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), ok bool, err error)
}

// NoopLocker always grants the lock. Fine for single-writer tests and for
// deployments that rely on the optimistic version check alone.
type NoopLocker struct{}

func (NoopLocker) Acquire(ctx context.Context, key string) (func(), bool, error) {
	return func() {}, true, nil
}

// LockKey is the per-interaction lock key, shared by every writer.
func LockKey(interactionID string) string {
	return "interaction:lock:" + interactionID
}
