package repository

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"invoicesync/internal/domain"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverLocker uses the primary locker and switches to the fallback while the
// primary errors. A contended lock is not an error and never triggers failover.
type FailoverLocker struct {
	primary   domain.Locker
	fallback  domain.Locker
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
	now       func() time.Time
}

func NewFailoverLocker(primary, fallback domain.Locker, logger *zerolog.Logger) *FailoverLocker {
	return &FailoverLocker{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

func (l *FailoverLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	if l.isDown.Load() && l.now().Sub(time.Unix(0, l.lastCheck.Load())) <= recoveryInterval {
		return l.fallback.Acquire(ctx, key, ttl)
	}

	release, err := l.primary.Acquire(ctx, key, ttl)
	if err == nil || errors.Is(err, domain.ErrLocked) {
		if l.isDown.CompareAndSwap(true, false) {
			l.logger.Info().Msg("primary locker recovered")
		}
		return release, err
	}

	if !l.isDown.Swap(true) {
		l.logger.Error().Err(err).Msg("primary locker failed, falling back to in-process lock")
	}
	l.lastCheck.Store(l.now().UnixNano())
	return l.fallback.Acquire(ctx, key, ttl)
}
