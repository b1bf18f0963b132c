package pipeline

import (
	"context"
	"errors"
	"sync"
)

// ErrLockLost is the cause of a held-lock context cancelled because the lock
// could no longer be kept.
var ErrLockLost = errors.New("pipeline: entity lock lost")

// Locker serializes work on one legal entity.
//
// The returned context carries ctx's values but not its cancellation: work
// inside the lock finishes even when shutdown is requested. It is cancelled
// with cause ErrLockLost if the lock is lost while held, and on unlock. The
// unlock function is safe to call more than once.
type Locker interface {
	Lock(ctx context.Context, key string) (held context.Context, unlock func(), err error)
}

// LocalLocker is an in-process keyed mutex.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

// NewLocalLocker creates a LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*keyLock)}
}

// Lock blocks until key is free or ctx is done. An in-process lock is never
// lost.
func (l *LocalLocker) Lock(ctx context.Context, key string) (context.Context, func(), error) {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
		held, cancel := context.WithCancelCause(context.WithoutCancel(ctx))
		var once sync.Once
		return held, func() {
			once.Do(func() {
				cancel(nil)
				<-kl.ch
				l.release(key, kl)
			})
		}, nil
	case <-ctx.Done():
		l.release(key, kl)
		return nil, nil, ctx.Err()
	}
}

func (l *LocalLocker) release(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}
