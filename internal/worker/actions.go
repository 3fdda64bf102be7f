package worker

import (
	"context"
	"fmt"

	"invoicesync/internal/config"
	"invoicesync/internal/models"
)

type outcome struct {
	order      *models.Order
	externalID string
	created    bool
}

func (p *Processor) dispatch(ctx context.Context, s config.SyncSettings, task *models.SyncTask) (outcome, error) {
	order, err := p.store.GetOrder(ctx, task.OrderID)
	if err != nil {
		return outcome{}, err
	}

	switch task.Action {
	case models.ActionCreateInvoice:
		return p.createInvoice(ctx, s, order)
	case models.ActionVoidInvoice:
		return p.voidInvoice(ctx, s, order)
	case models.ActionUpdateInvoice:
		return p.updateInvoice(ctx, s, order)
	default:
		return outcome{}, fmt.Errorf("unknown action %q", task.Action)
	}
}

func (p *Processor) createInvoice(ctx context.Context, s config.SyncSettings, order *models.Order) (outcome, error) {
	link := order.Linkage()
	if link.HasActiveInvoice() {
		p.logger.Info().Int64("order_id", order.ID).Str("invoice_id", link.InvoiceID).Msg("invoice already exists")
		return outcome{order: order, externalID: link.InvoiceID}, nil
	}

	contactID := link.ContactID
	if s.AutoSyncContacts {
		id, err := p.client.SyncContact(ctx, s, order, contactID)
		if err != nil {
			return outcome{}, fmt.Errorf("sync contact: %w", err)
		}
		if id != contactID {
			if err := p.writeMeta(ctx, order, map[string]string{models.MetaContactID: id}); err != nil {
				return outcome{}, err
			}
		}
		contactID = id
	}

	res, err := p.client.CreateInvoice(ctx, s, order, contactID)
	if err != nil {
		return outcome{}, fmt.Errorf("create invoice: %w", err)
	}
	if err := p.writeMeta(ctx, order, models.InvoiceCreatedMeta(res.ID, res.VoucherNumber, order.ItemsFingerprint())); err != nil {
		return outcome{}, err
	}

	number := res.VoucherNumber
	if number == "" {
		number = "-"
	}
	p.note(ctx, order.ID, fmt.Sprintf(models.NoteInvoiceCreated, number, res.ID))
	return outcome{order: order, externalID: res.ID, created: true}, nil
}

func (p *Processor) voidInvoice(ctx context.Context, s config.SyncSettings, order *models.Order) (outcome, error) {
	link := order.Linkage()
	if link.InvoiceID == "" {
		return outcome{}, models.ErrNoInvoice
	}
	if link.Voided && link.CreditNoteID != "" {
		return outcome{order: order, externalID: link.CreditNoteID}, nil
	}

	res, err := p.client.CreateCreditNote(ctx, s, order, link.InvoiceID)
	if err != nil {
		return outcome{}, fmt.Errorf("create credit note: %w", err)
	}
	if err := p.writeMeta(ctx, order, models.InvoiceVoidedMeta(res.ID)); err != nil {
		return outcome{}, err
	}
	p.note(ctx, order.ID, fmt.Sprintf(models.NoteCreditNoteCreated, res.ID))
	return outcome{order: order, externalID: res.ID, created: true}, nil
}

// updateInvoice replaces the invoice: credit note and unlink in one metadata
// write, then create. A retry after that write finds the invoice unlinked and
// only repeats the create. A voided invoice belongs to a cancelled or refunded
// order and is never replaced.
func (p *Processor) updateInvoice(ctx context.Context, s config.SyncSettings, order *models.Order) (outcome, error) {
	link := order.Linkage()
	switch {
	case link.Voided:
		p.logger.Info().Int64("order_id", order.ID).Str("invoice_id", link.InvoiceID).
			Msg("invoice voided, update skipped")
		return outcome{order: order, externalID: link.CreditNoteID}, nil
	case link.InvoiceID != "":
		res, err := p.client.CreateCreditNote(ctx, s, order, link.InvoiceID)
		if err != nil {
			return outcome{}, fmt.Errorf("create credit note: %w", err)
		}
		if err := p.writeMeta(ctx, order, models.ReplacedInvoiceMeta(res.ID)); err != nil {
			return outcome{}, err
		}
		p.note(ctx, order.ID, fmt.Sprintf(models.NoteCreditNoteCreated, res.ID))
	case link.CreditNoteID != "":
	default:
		return outcome{}, models.ErrNoInvoice
	}
	return p.createInvoice(ctx, s, order)
}

// writeMeta persists linkage changes and mirrors them on the in-memory order.
func (p *Processor) writeMeta(ctx context.Context, order *models.Order, updates map[string]string) error {
	if err := p.store.UpdateOrderMeta(ctx, order.ID, updates); err != nil {
		return fmt.Errorf("update order meta: %w", err)
	}
	order.ApplyMeta(updates)
	return nil
}

func (p *Processor) note(ctx context.Context, orderID int64, text string) {
	if err := p.store.AddOrderNote(ctx, orderID, text); err != nil {
		p.logger.Warn().Err(err).Int64("order_id", orderID).Msg("order note failed")
	}
}
