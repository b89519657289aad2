package redisclient

import (
	"context"
	"sync"
	"time"
)

// localSubjectLocker serializes within one process. It is only correct when
// a single api-server instance serves all bookings.
type localSubjectLocker struct {
	ttl  time.Duration
	wait time.Duration

	mu    sync.Mutex
	locks map[string]*subjectLock
}

type subjectLock struct {
	ch   chan struct{}
	refs int
}

// NewLocalSubjectLocker mirrors NewRedisSubjectLocker: acquisition gives up
// with ErrLockNotAcquired after wait and fn runs with a deadline of ttl. A
// non-positive value disables the corresponding limit.
func NewLocalSubjectLocker(ttl, wait time.Duration) Locker {
	return &localSubjectLocker{
		ttl:   ttl,
		wait:  wait,
		locks: make(map[string]*subjectLock),
	}
}

func (l *localSubjectLocker) WithSubjectLocks(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	ordered := lockOrder(keys)
	var held []*subjectLock

	defer func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i].ch
		}
		l.unrefAll(ordered[:len(held)])
	}()

	acquireCtx, cancelAcquire := ctx, context.CancelFunc(func() {})
	if l.wait > 0 {
		acquireCtx, cancelAcquire = context.WithTimeout(ctx, l.wait)
	}
	defer cancelAcquire()

	for _, key := range ordered {
		sl := l.ref(key)
		select {
		case sl.ch <- struct{}{}:
			held = append(held, sl)
		case <-acquireCtx.Done():
			l.unref(key)
			if err := ctx.Err(); err != nil {
				return err
			}
			return ErrLockNotAcquired
		}
	}

	if l.ttl > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.ttl)
		defer cancel()
	}
	return fn(ctx)
}

func (l *localSubjectLocker) ref(key string) *subjectLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	sl, ok := l.locks[key]
	if !ok {
		sl = &subjectLock{ch: make(chan struct{}, 1)}
		l.locks[key] = sl
	}
	sl.refs++
	return sl
}

func (l *localSubjectLocker) unref(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	sl := l.locks[key]
	sl.refs--
	if sl.refs == 0 {
		delete(l.locks, key)
	}
}

func (l *localSubjectLocker) unrefAll(keys []string) {
	for _, key := range keys {
		l.unref(key)
	}
}
