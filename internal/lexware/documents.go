package lexware

import (
	"context"
	"net/http"

	"invoicesync/internal/config"
)

// Invoice is the subset of the invoice resource this service reads.
type Invoice struct {
	ID             string `json:"id"`
	VoucherNumber  string `json:"voucherNumber"`
	VoucherStatus  string `json:"voucherStatus"`
	DocumentFileID string `json:"documentFileId"`
	Files          struct {
		DocumentFileID string `json:"documentFileId"`
	} `json:"files"`
}

// FileID returns the rendered document id wherever the API put it.
func (i *Invoice) FileID() string {
	if i.DocumentFileID != "" {
		return i.DocumentFileID
	}
	return i.Files.DocumentFileID
}

func (c *Client) GetInvoice(ctx context.Context, s config.SyncSettings, invoiceID string) (*Invoice, error) {
	path, err := resourcePath("invoices", invoiceID)
	if err != nil {
		return nil, err
	}
	var inv Invoice
	if err := c.doJSON(ctx, s, request{method: http.MethodGet, endpoint: path}, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

// DownloadFile fetches a stored file as PDF.
func (c *Client) DownloadFile(ctx context.Context, s config.SyncSettings, fileID string) ([]byte, error) {
	path, err := resourcePath("files", fileID)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, s, request{method: http.MethodGet, endpoint: path, accept: "application/pdf"})
}

// InvoiceDocument returns the invoice PDF, or ErrNotAvailable while it is still being rendered.
func (c *Client) InvoiceDocument(ctx context.Context, s config.SyncSettings, invoiceID string) ([]byte, error) {
	inv, err := c.GetInvoice(ctx, s, invoiceID)
	if err != nil {
		return nil, err
	}
	fileID := inv.FileID()
	if fileID == "" {
		return nil, ErrNotAvailable
	}
	return c.DownloadFile(ctx, s, fileID)
}

// SettingsSource yields the current settings snapshot.
type SettingsSource interface {
	Snapshot(ctx context.Context) (config.SyncSettings, error)
}

// DocumentFetcher binds the client to a settings source so callers only pass an invoice id.
type DocumentFetcher struct {
	client   *Client
	settings SettingsSource
}

func (c *Client) DocumentFetcher(settings SettingsSource) *DocumentFetcher {
	return &DocumentFetcher{client: c, settings: settings}
}

func (f *DocumentFetcher) InvoiceDocument(ctx context.Context, invoiceID string) ([]byte, error) {
	s, err := f.settings.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return f.client.InvoiceDocument(ctx, s, invoiceID)
}
