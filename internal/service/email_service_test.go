package service

import (
	"context"
	"errors"
	"testing"

	"invoicesync/internal/models"
	"invoicesync/internal/notify"
	"invoicesync/internal/storefront"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMailer struct {
	sent []notify.Message
	err  error
}

func (m *fakeMailer) Send(_ context.Context, msg notify.Message) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func newEmailService(mailer MailSender, pdf *fakePDFStore) (*EmailService, *storefront.MemoryStore) {
	logger := zerolog.Nop()
	store := storefront.NewMemoryStore()
	return NewEmailService(mailer, pdf, store, &logger), store
}

func invoicedOrder() *models.Order {
	return newOrder(1201, "completed", map[string]string{
		models.MetaInvoiceID:     "inv-1201",
		models.MetaInvoiceNumber: "RE0042",
	})
}

func TestEmailService_SendsWithAttachment(t *testing.T) {
	mailer := &fakeMailer{}
	svc, store := newEmailService(mailer, &fakePDFStore{paths: map[string]string{"inv-1201": "/cache/invoice_inv-1201.pdf"}})
	order := invoicedOrder()
	store.Put(order)

	require.NoError(t, svc.EmailInvoice(context.Background(), order))

	require.Len(t, mailer.sent, 1)
	msg := mailer.sent[0]
	assert.Equal(t, "max@example.com", msg.To)
	assert.Equal(t, "Ihre Rechnung für Bestellung WC-1201", msg.Subject)
	assert.Contains(t, msg.Body, "Guten Tag Max Mustermann,")
	assert.Contains(t, msg.Body, "Bestellung WC-1201")
	assert.Equal(t, []notify.Attachment{{Path: "/cache/invoice_inv-1201.pdf", Name: "Rechnung-RE0042.pdf"}}, msg.Attachments)
	assert.Equal(t, []string{"Rechnung per E-Mail an max@example.com versendet"}, store.Notes(1201))
}

func TestEmailService_SendsWithoutPDF(t *testing.T) {
	mailer := &fakeMailer{}
	svc, store := newEmailService(mailer, &fakePDFStore{err: errors.New("api down")})
	order := invoicedOrder()
	store.Put(order)

	require.NoError(t, svc.EmailInvoice(context.Background(), order))
	require.Len(t, mailer.sent, 1)
	assert.Empty(t, mailer.sent[0].Attachments)
}

func TestEmailService_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("mail disabled", func(t *testing.T) {
		svc, _ := newEmailService(nil, &fakePDFStore{})
		assert.ErrorIs(t, svc.EmailInvoice(ctx, invoicedOrder()), notify.ErrMailDisabled)
	})

	t.Run("no invoice", func(t *testing.T) {
		svc, _ := newEmailService(&fakeMailer{}, &fakePDFStore{})
		assert.ErrorIs(t, svc.EmailInvoice(ctx, newOrder(1202, "completed", nil)), models.ErrNoInvoice)
	})

	t.Run("no recipient", func(t *testing.T) {
		svc, _ := newEmailService(&fakeMailer{}, &fakePDFStore{})
		order := invoicedOrder()
		order.Billing.Email = " "
		assert.ErrorIs(t, svc.EmailInvoice(ctx, order), ErrNoRecipient)
	})

	t.Run("send failure adds no note", func(t *testing.T) {
		svc, store := newEmailService(&fakeMailer{err: errors.New("relay refused")}, &fakePDFStore{})
		order := invoicedOrder()
		store.Put(order)
		assert.EqualError(t, svc.EmailInvoice(ctx, order), "relay refused")
		assert.Empty(t, store.Notes(order.ID))
	})
}
