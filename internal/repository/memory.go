package repository

import (
	"context"
	"sync"
	"time"

	"invoicesync/internal/domain"
)

type memoryLock struct {
	token     uint64
	expiresAt time.Time
}

// MemoryLocker is the in-process lock used without Redis and while Redis is down.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]memoryLock
	seq   uint64
	now   func() time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]memoryLock), now: time.Now}
}

func (l *MemoryLocker) Acquire(_ context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if held, ok := l.locks[key]; ok && now.Before(held.expiresAt) {
		return nil, domain.ErrLocked
	}

	l.seq++
	token := l.seq
	l.locks[key] = memoryLock{token: token, expiresAt: now.Add(ttl)}

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if held, ok := l.locks[key]; ok && held.token == token {
			delete(l.locks, key)
		}
		return nil
	}, nil
}
