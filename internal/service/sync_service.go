package service

import (
	"context"
	"errors"
	"fmt"

	"invoicesync/internal/config"
	"invoicesync/internal/domain"
	"invoicesync/internal/events"
	"invoicesync/internal/metrics"
	"invoicesync/internal/models"
	"invoicesync/internal/notify"

	"github.com/rs/zerolog"
)

// ErrDownloadDisabled means invoice downloads are switched off in the settings.
var ErrDownloadDisabled = errors.New("invoice download is disabled")

// SyncService turns order lifecycle events into queued sync tasks. The order
// linkage decides whether a task is needed at all.
type SyncService struct {
	queue    domain.TaskQueue
	store    domain.Storefront
	settings domain.SettingsProvider
	runner   domain.TaskRunner
	pdf      domain.PDFStore
	emailer  domain.InvoiceEmailer
	logger   *zerolog.Logger
}

func NewSyncService(
	queue domain.TaskQueue,
	store domain.Storefront,
	settings domain.SettingsProvider,
	runner domain.TaskRunner,
	pdf domain.PDFStore,
	emailer domain.InvoiceEmailer,
	logger *zerolog.Logger,
) *SyncService {
	return &SyncService{
		queue:    queue,
		store:    store,
		settings: settings,
		runner:   runner,
		pdf:      pdf,
		emailer:  emailer,
		logger:   logger,
	}
}

// Enqueue adds a task unless one is already pending for the order and action,
// and wakes the scheduler.
func (s *SyncService) Enqueue(ctx context.Context, orderID int64, action models.SyncAction) (bool, error) {
	return s.enqueue(ctx, orderID, action, true)
}

func (s *SyncService) enqueue(ctx context.Context, orderID int64, action models.SyncAction, wake bool) (bool, error) {
	inserted, err := s.queue.Enqueue(ctx, orderID, action)
	if err != nil {
		return false, err
	}
	if !inserted {
		s.logger.Debug().Int64("order_id", orderID).Str("action", string(action)).Msg("task already pending")
		return false, nil
	}

	metrics.IncEnqueued(string(action))
	s.logger.Info().Int64("order_id", orderID).Str("action", string(action)).Msg("task enqueued")
	if wake && s.runner != nil {
		s.runner.Wake()
	}
	return true, nil
}

// HandleStatusChanged enqueues invoice creation when the order reaches a trigger status.
func (s *SyncService) HandleStatusChanged(ctx context.Context, orderID int64, status string) (bool, error) {
	settings, err := s.settings.Snapshot(ctx)
	if err != nil {
		return false, err
	}
	if !settings.IsTrigger(status) {
		return false, nil
	}

	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return false, err
	}
	if link := order.Linkage(); link.HasInvoice() {
		s.logger.Info().Int64("order_id", orderID).Str("invoice_id", link.InvoiceID).Msg("invoice exists, nothing to enqueue")
		if err := s.store.AddOrderNote(ctx, orderID, fmt.Sprintf(models.NoteInvoiceExists, link.InvoiceID)); err != nil {
			s.logger.Warn().Err(err).Int64("order_id", orderID).Msg("order note failed")
		}
		return false, nil
	}
	return s.Enqueue(ctx, orderID, models.ActionCreateInvoice)
}

func (s *SyncService) HandleCancelled(ctx context.Context, orderID int64) (bool, error) {
	return s.voidIfInvoiced(ctx, orderID)
}

func (s *SyncService) HandleRefunded(ctx context.Context, orderID int64) (bool, error) {
	return s.voidIfInvoiced(ctx, orderID)
}

func (s *SyncService) voidIfInvoiced(ctx context.Context, orderID int64) (bool, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return false, err
	}
	if !order.Linkage().HasActiveInvoice() {
		return false, nil
	}
	return s.Enqueue(ctx, orderID, models.ActionVoidInvoice)
}

// HandleItemsChanged enqueues an invoice replacement for orders with an active invoice.
func (s *SyncService) HandleItemsChanged(ctx context.Context, orderID int64) (bool, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return false, err
	}
	if !order.Linkage().HasActiveInvoice() {
		return false, nil
	}
	return s.Enqueue(ctx, orderID, models.ActionUpdateInvoice)
}

// HandleOrderUpdated routes a storefront order webhook to the lifecycle handlers.
// Item edits are detected by comparing the stored fingerprint with the current items.
func (s *SyncService) HandleOrderUpdated(ctx context.Context, order *models.Order) ([]models.SyncAction, error) {
	settings, err := s.settings.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	var (
		enqueued []models.SyncAction
		errs     []error
	)
	record := func(action models.SyncAction, ok bool, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", action, err))
			return
		}
		if ok {
			enqueued = append(enqueued, action)
		}
	}

	link := order.Linkage()
	status := config.NormalizeStatus(order.Status)
	switch {
	case status == "cancelled":
		ok, err := s.HandleCancelled(ctx, order.ID)
		record(models.ActionVoidInvoice, ok, err)
	case status == "refunded":
		ok, err := s.HandleRefunded(ctx, order.ID)
		record(models.ActionVoidInvoice, ok, err)
	case settings.IsTrigger(status) && !link.HasInvoice():
		ok, err := s.HandleStatusChanged(ctx, order.ID, status)
		record(models.ActionCreateInvoice, ok, err)
	case link.HasActiveInvoice() && link.ItemsHash != "" && link.ItemsHash != order.ItemsFingerprint():
		ok, err := s.HandleItemsChanged(ctx, order.ID)
		record(models.ActionUpdateInvoice, ok, err)
	}
	return enqueued, errors.Join(errs...)
}

// ProcessOrderAction enqueues an action and runs it right away. The scheduler
// is not woken, so it does not compete for the task.
func (s *SyncService) ProcessOrderAction(ctx context.Context, orderID int64, action models.SyncAction) (*models.SyncTask, error) {
	if !action.Valid() {
		return nil, fmt.Errorf("unknown sync action %q", action)
	}
	if _, err := s.enqueue(ctx, orderID, action, false); err != nil {
		return nil, err
	}
	task, err := s.queue.FindPending(ctx, orderID, action)
	if err != nil {
		return nil, err
	}
	done, err := s.runner.ProcessTask(ctx, task.ID)
	if err != nil && done != nil && done.Status == models.TaskCompleted {
		// A scheduled cycle finished the task while we waited for the lock.
		return done, nil
	}
	return done, err
}

// BulkResult reports the outcome of a bulk invoice request per order.
type BulkResult struct {
	Enqueued []int64          `json:"enqueued"`
	Skipped  []int64          `json:"skipped"`
	Failed   map[int64]string `json:"failed,omitempty"`
}

// BulkCreateInvoices enqueues invoice creation for the given orders. Orders
// that already carry an invoice, or already have a task pending, are skipped.
func (s *SyncService) BulkCreateInvoices(ctx context.Context, orderIDs []int64) (*BulkResult, error) {
	res := &BulkResult{Enqueued: []int64{}, Skipped: []int64{}}
	for _, id := range orderIDs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		order, err := s.store.GetOrder(ctx, id)
		if err != nil {
			res.fail(id, err)
			continue
		}
		if order.Linkage().HasActiveInvoice() {
			res.Skipped = append(res.Skipped, id)
			continue
		}
		ok, err := s.Enqueue(ctx, id, models.ActionCreateInvoice)
		switch {
		case err != nil:
			res.fail(id, err)
		case ok:
			res.Enqueued = append(res.Enqueued, id)
		default:
			res.Skipped = append(res.Skipped, id)
		}
	}
	s.logger.Info().
		Int("enqueued", len(res.Enqueued)).
		Int("skipped", len(res.Skipped)).
		Int("failed", len(res.Failed)).
		Msg("bulk invoice request handled")
	return res, nil
}

func (r *BulkResult) fail(id int64, err error) {
	if r.Failed == nil {
		r.Failed = make(map[int64]string)
	}
	r.Failed[id] = err.Error()
}

// InvoicePDF returns the local path of the order's invoice document.
func (s *SyncService) InvoicePDF(ctx context.Context, orderID int64) (string, error) {
	settings, err := s.settings.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	if !settings.ShowInCustomerArea {
		return "", ErrDownloadDisabled
	}

	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return "", err
	}
	link := order.Linkage()
	if !link.HasActiveInvoice() {
		return "", models.ErrNoInvoice
	}
	return s.pdf.GetOrFetch(ctx, link.InvoiceID)
}

// EmailInvoice sends the order's invoice to the billing address.
func (s *SyncService) EmailInvoice(ctx context.Context, orderID int64) error {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if !order.Linkage().HasActiveInvoice() {
		return models.ErrNoInvoice
	}
	if s.emailer == nil {
		return notify.ErrMailDisabled
	}
	return s.emailer.EmailInvoice(ctx, order)
}

// RegisterHandlers subscribes the lifecycle handlers to the event bus.
func (s *SyncService) RegisterHandlers(bus *events.EventBus) {
	bus.Subscribe(events.EventStatusChanged, s.onEvent(func(ctx context.Context, p events.OrderEventPayload) (bool, error) {
		return s.HandleStatusChanged(ctx, p.OrderID, p.NewStatus)
	}))
	bus.Subscribe(events.EventCancelled, s.onEvent(func(ctx context.Context, p events.OrderEventPayload) (bool, error) {
		return s.HandleCancelled(ctx, p.OrderID)
	}))
	bus.Subscribe(events.EventRefunded, s.onEvent(func(ctx context.Context, p events.OrderEventPayload) (bool, error) {
		return s.HandleRefunded(ctx, p.OrderID)
	}))
	bus.Subscribe(events.EventItemsChanged, s.onEvent(func(ctx context.Context, p events.OrderEventPayload) (bool, error) {
		return s.HandleItemsChanged(ctx, p.OrderID)
	}))
}

func (s *SyncService) onEvent(handle func(context.Context, events.OrderEventPayload) (bool, error)) events.EventHandler {
	return func(ctx context.Context, e *events.Event) error {
		payload, err := e.OrderPayload()
		if err != nil {
			return err
		}
		if _, err := handle(ctx, payload); err != nil {
			return fmt.Errorf("%s for order %d: %w", e.Type, payload.OrderID, err)
		}
		return nil
	}
}
