package domain

import (
	"context"
	"errors"
	"time"

	"invoicesync/internal/config"
	"invoicesync/internal/lexware"
	"invoicesync/internal/models"
)

// ErrLocked is returned by a Locker when another worker holds the lock.
var ErrLocked = errors.New("lock is held by another worker")

// Storefront is the shop system that owns orders and their metadata.
type Storefront interface {
	GetOrder(ctx context.Context, orderID int64) (*models.Order, error)
	UpdateOrderMeta(ctx context.Context, orderID int64, updates map[string]string) error
	AddOrderNote(ctx context.Context, orderID int64, note string) error
	PaymentGateways(ctx context.Context) ([]models.PaymentGateway, error)
}

type AccountingClient interface {
	SyncContact(ctx context.Context, s config.SyncSettings, order *models.Order, contactID string) (string, error)
	CreateInvoice(ctx context.Context, s config.SyncSettings, order *models.Order, contactID string) (*lexware.VoucherResult, error)
	CreateCreditNote(ctx context.Context, s config.SyncSettings, order *models.Order, invoiceID string) (*lexware.VoucherResult, error)
}

// SettingsProvider yields the settings snapshot for one processing cycle.
type SettingsProvider interface {
	Snapshot(ctx context.Context) (config.SyncSettings, error)
}

// Locker serializes processing across the scheduler, manual triggers and instances.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}

type DeadLetterQueue interface {
	PushDeadLetter(ctx context.Context, task models.SyncTask) error
}

type Alerter interface {
	Alert(ctx context.Context, subject, body string)
}

type InvoiceEmailer interface {
	EmailInvoice(ctx context.Context, order *models.Order) error
}

// PDFStore resolves an invoice id to a local PDF path, fetching it when needed.
type PDFStore interface {
	GetOrFetch(ctx context.Context, invoiceID string) (string, error)
}

// TaskQueue is the write side of the sync queue used by the event mapper.
type TaskQueue interface {
	Enqueue(ctx context.Context, orderID int64, action models.SyncAction) (bool, error)
	FindPending(ctx context.Context, orderID int64, action models.SyncAction) (*models.SyncTask, error)
}

// TaskRunner runs queued tasks on request.
type TaskRunner interface {
	ProcessTask(ctx context.Context, taskID int64) (*models.SyncTask, error)
	Wake()
}
