package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"invoicesync/internal/domain"
	"invoicesync/internal/models"
	"invoicesync/internal/notify"

	"github.com/rs/zerolog"
)

// ErrNoRecipient means the order has no billing e-mail address.
var ErrNoRecipient = errors.New("order has no billing email")

const invoiceMailSubject = "Ihre Rechnung für Bestellung %s"

type MailSender interface {
	Send(ctx context.Context, msg notify.Message) error
}

// EmailService mails invoice documents to customers.
type EmailService struct {
	mailer MailSender
	pdf    domain.PDFStore
	store  domain.Storefront
	logger *zerolog.Logger
}

// NewEmailService builds the invoice mailer. A nil mailer disables sending.
func NewEmailService(mailer MailSender, pdf domain.PDFStore, store domain.Storefront, logger *zerolog.Logger) *EmailService {
	return &EmailService{mailer: mailer, pdf: pdf, store: store, logger: logger}
}

// EmailInvoice sends the invoice of an order to its billing address. The PDF
// is attached when it can be fetched; otherwise the mail goes out without it.
func (e *EmailService) EmailInvoice(ctx context.Context, order *models.Order) error {
	if e.mailer == nil {
		return notify.ErrMailDisabled
	}
	link := order.Linkage()
	if link.InvoiceID == "" {
		return models.ErrNoInvoice
	}
	to := strings.TrimSpace(order.Billing.Email)
	if to == "" {
		return ErrNoRecipient
	}

	msg := notify.Message{
		To:      to,
		Subject: fmt.Sprintf(invoiceMailSubject, order.Number),
		Body:    invoiceMailBody(order),
	}

	path, err := e.pdf.GetOrFetch(ctx, link.InvoiceID)
	if err != nil {
		e.logger.Warn().Err(err).Int64("order_id", order.ID).Msg("invoice pdf unavailable, sending without attachment")
	} else {
		name := link.InvoiceNumber
		if name == "" {
			name = order.Number
		}
		msg.Attachments = []notify.Attachment{{Path: path, Name: "Rechnung-" + name + ".pdf"}}
	}

	if err := e.mailer.Send(ctx, msg); err != nil {
		return err
	}
	e.logger.Info().Int64("order_id", order.ID).Str("to", to).Msg("invoice emailed")

	if err := e.store.AddOrderNote(ctx, order.ID, fmt.Sprintf(models.NoteInvoiceEmailed, to)); err != nil {
		e.logger.Warn().Err(err).Int64("order_id", order.ID).Msg("order note failed")
	}
	return nil
}

func invoiceMailBody(order *models.Order) string {
	greeting := "Guten Tag"
	if name := order.Billing.FullName(); name != "" {
		greeting += " " + name
	}
	var b strings.Builder
	b.WriteString(greeting + ",\n\n")
	fmt.Fprintf(&b, "anbei erhalten Sie die Rechnung zu Ihrer Bestellung %s.\n\n", order.Number)
	b.WriteString("Vielen Dank für Ihren Einkauf.\n")
	return b.String()
}
