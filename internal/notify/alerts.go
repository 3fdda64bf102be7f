package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"invoicesync/internal/metrics"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Channel delivers one alert.
type Channel interface {
	Notify(ctx context.Context, subject, body string) error
}

// Coalescer fans alerts out to all channels, at most burst alerts at once and
// one per interval after that. Dropped alerts are counted and mentioned in the
// next alert that goes out.
type Coalescer struct {
	channels   []Channel
	limiter    *rate.Limiter
	logger     *zerolog.Logger
	now        func() time.Time
	mu         sync.Mutex
	suppressed int
}

func NewCoalescer(interval time.Duration, burst int, logger *zerolog.Logger, channels ...Channel) *Coalescer {
	if burst < 1 {
		burst = 1
	}
	return &Coalescer{
		channels: channels,
		limiter:  rate.NewLimiter(rate.Every(interval), burst),
		logger:   logger,
		now:      time.Now,
	}
}

// Alert never fails; delivery errors are logged.
func (c *Coalescer) Alert(ctx context.Context, subject, body string) {
	if len(c.channels) == 0 {
		return
	}

	c.mu.Lock()
	if !c.limiter.AllowN(c.now(), 1) {
		c.suppressed++
		c.mu.Unlock()
		metrics.IncAlertsSuppressed()
		c.logger.Debug().Str("subject", subject).Msg("alert suppressed")
		return
	}
	if c.suppressed > 0 {
		body += fmt.Sprintf("\n\n%d weitere Meldungen seit der letzten Benachrichtigung unterdrückt.", c.suppressed)
		c.suppressed = 0
	}
	c.mu.Unlock()

	for _, ch := range c.channels {
		if err := ch.Notify(ctx, subject, body); err != nil {
			c.logger.Warn().Err(err).Str("subject", subject).Msg("alert delivery failed")
		}
	}
}

// pending reports how many alerts are waiting to be summarized.
func (c *Coalescer) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.suppressed
}
