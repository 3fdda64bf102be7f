package pdfcache

import (
	"context"
	"errors"
	"time"

	"invoicesync/internal/lexware"
)

// Poller retries a Fetcher while the document is still being rendered.
type Poller struct {
	next     Fetcher
	attempts int
	delay    time.Duration
}

func NewPoller(next Fetcher, attempts int, delay time.Duration) *Poller {
	if attempts < 1 {
		attempts = 1
	}
	return &Poller{next: next, attempts: attempts, delay: delay}
}

func (p *Poller) InvoiceDocument(ctx context.Context, invoiceID string) ([]byte, error) {
	var err error
	for i := 0; i < p.attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.delay):
			}
		}

		var data []byte
		data, err = p.next.InvoiceDocument(ctx, invoiceID)
		if !errors.Is(err, lexware.ErrNotAvailable) {
			return data, err
		}
	}
	return nil, err
}
