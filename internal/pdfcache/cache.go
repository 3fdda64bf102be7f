package pdfcache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/rs/zerolog"
)

// Fetcher downloads the rendered PDF of an invoice.
type Fetcher interface {
	InvoiceDocument(ctx context.Context, invoiceID string) ([]byte, error)
}

var (
	ErrInvalidID = errors.New("invalid invoice id")

	validID = regexp.MustCompile(`^[A-Za-z0-9-]{1,64}$`)
)

// Cache stores invoice PDFs on disk, one file per invoice id. Documents are
// immutable once rendered, so a cached file is never refreshed.
type Cache struct {
	dir     string
	fetcher Fetcher
	logger  *zerolog.Logger
	mu      sync.Mutex
}

func New(dir string, fetcher Fetcher, logger *zerolog.Logger) *Cache {
	return &Cache{dir: dir, fetcher: fetcher, logger: logger}
}

// Path is where the document for invoiceID lives, whether or not it exists yet.
func (c *Cache) Path(invoiceID string) (string, error) {
	if !validID.MatchString(invoiceID) {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, invoiceID)
	}
	return filepath.Join(c.dir, "invoice_"+invoiceID+".pdf"), nil
}

func (c *Cache) GetOrFetch(ctx context.Context, invoiceID string) (string, error) {
	path, err := c.Path(invoiceID)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		return path, nil
	}

	data, err := c.fetcher.InvoiceDocument(ctx, invoiceID)
	if err != nil {
		return "", err
	}
	if err := c.write(path, data); err != nil {
		return "", err
	}
	c.logger.Info().Str("invoice_id", invoiceID).Int("bytes", len(data)).Msg("invoice pdf cached")
	return path, nil
}

func (c *Cache) write(path string, data []byte) error {
	if err := os.MkdirAll(c.dir, 0o750); err != nil {
		return fmt.Errorf("create pdf dir: %w", err)
	}
	tmp, err := os.CreateTemp(c.dir, ".invoice-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp pdf: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write pdf: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close pdf: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("store pdf: %w", err)
	}
	return nil
}
