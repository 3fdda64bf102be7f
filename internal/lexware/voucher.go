package lexware

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"invoicesync/internal/config"
	"invoicesync/internal/models"
)

const (
	creditNoteTitle        = "Gutschrift / Stornierung"
	creditNoteIntroduction = "Gutschrift zur Rechnung (Lexware ID: %s)"
)

type voucherAddress struct {
	ContactID   string `json:"contactId,omitempty"`
	Name        string `json:"name,omitempty"`
	Supplement  string `json:"supplement,omitempty"`
	Street      string `json:"street,omitempty"`
	Zip         string `json:"zip,omitempty"`
	City        string `json:"city,omitempty"`
	CountryCode string `json:"countryCode,omitempty"`
}

type totalPrice struct {
	Currency string `json:"currency"`
}

type taxConditions struct {
	TaxType string `json:"taxType"`
}

type shippingConditions struct {
	ShippingDate string `json:"shippingDate"`
	ShippingType string `json:"shippingType"`
}

type paymentConditions struct {
	PaymentTermLabel    string `json:"paymentTermLabel"`
	PaymentTermDuration int    `json:"paymentTermDuration"`
}

type voucherPayload struct {
	VoucherDate        string              `json:"voucherDate"`
	Address            voucherAddress      `json:"address"`
	LineItems          []lineItem          `json:"lineItems"`
	TotalPrice         totalPrice          `json:"totalPrice"`
	TaxConditions      taxConditions       `json:"taxConditions"`
	ShippingConditions *shippingConditions `json:"shippingConditions,omitempty"`
	PaymentConditions  *paymentConditions  `json:"paymentConditions,omitempty"`
	Title              string              `json:"title,omitempty"`
	Introduction       string              `json:"introduction,omitempty"`
	Remark             string              `json:"remark,omitempty"`
}

// VoucherResult identifies a created invoice or credit note.
type VoucherResult struct {
	ID            string `json:"id"`
	ResourceURI   string `json:"resourceUri"`
	VoucherNumber string `json:"voucherNumber"`
}

func buildVoucherAddress(order *models.Order, contactID string) voucherAddress {
	b := order.Billing
	name := strings.TrimSpace(b.Company)
	if name == "" {
		name = b.FullName()
	}
	return voucherAddress{
		ContactID:   contactID,
		Name:        name,
		Supplement:  b.Address2,
		Street:      b.Address1,
		Zip:         b.Postcode,
		City:        b.City,
		CountryCode: b.Country,
	}
}

func (c *Client) buildInvoice(s config.SyncSettings, order *models.Order, contactID string) voucherPayload {
	voucherDate := FormatVoucherDate(order.CreatedAt, c.loc)
	label, dueDays := s.Invoice.PaymentTermsFor(order.PaymentMethod)

	return voucherPayload{
		VoucherDate:   voucherDate,
		Address:       buildVoucherAddress(order, contactID),
		LineItems:     buildLineItems(order, s.ShippingAsLineItem, false),
		TotalPrice:    totalPrice{Currency: order.Currency},
		TaxConditions: taxConditions{TaxType: "net"},
		ShippingConditions: &shippingConditions{
			ShippingDate: voucherDate,
			ShippingType: "delivery",
		},
		PaymentConditions: &paymentConditions{
			PaymentTermLabel:    ReplacePlaceholders(label, order, c.loc),
			PaymentTermDuration: dueDays,
		},
		Title:        ReplacePlaceholders(s.Invoice.Title, order, c.loc),
		Introduction: ReplacePlaceholders(s.Invoice.Introduction, order, c.loc),
		Remark:       ReplacePlaceholders(s.Invoice.ClosingText, order, c.loc),
	}
}

func (c *Client) buildCreditNote(s config.SyncSettings, order *models.Order, invoiceID, contactID string) voucherPayload {
	return voucherPayload{
		VoucherDate:   FormatVoucherDate(c.now(), c.loc),
		Address:       buildVoucherAddress(order, contactID),
		LineItems:     buildLineItems(order, s.ShippingAsLineItem, true),
		TotalPrice:    totalPrice{Currency: order.Currency},
		TaxConditions: taxConditions{TaxType: "net"},
		Title:         creditNoteTitle,
		Introduction:  fmt.Sprintf(creditNoteIntroduction, invoiceID),
	}
}

// CreateInvoice posts the order as an invoice, finalized when configured.
func (c *Client) CreateInvoice(ctx context.Context, s config.SyncSettings, order *models.Order, contactID string) (*VoucherResult, error) {
	var query url.Values
	if s.FinalizeImmediately {
		query = url.Values{"finalize": {"true"}}
	}

	var res VoucherResult
	err := c.doJSON(ctx, s, request{
		method:   http.MethodPost,
		endpoint: "invoices",
		query:    query,
		body:     c.buildInvoice(s, order, contactID),
	}, &res)
	if err != nil {
		return nil, err
	}
	if res.ID == "" {
		return nil, fmt.Errorf("create invoice: response carries no id")
	}

	// The create response has no voucher number; a finalized invoice gets one at once.
	if res.VoucherNumber == "" && s.FinalizeImmediately {
		inv, err := c.GetInvoice(ctx, s, res.ID)
		if err != nil {
			c.logger.Warn().Err(err).Str("invoice_id", res.ID).Msg("voucher number lookup failed")
		} else {
			res.VoucherNumber = inv.VoucherNumber
		}
	}
	return &res, nil
}

// CreateCreditNote voids an invoice by issuing a finalized credit note over the same lines.
func (c *Client) CreateCreditNote(ctx context.Context, s config.SyncSettings, order *models.Order, invoiceID string) (*VoucherResult, error) {
	if invoiceID == "" {
		return nil, models.ErrNoInvoice
	}

	var res VoucherResult
	err := c.doJSON(ctx, s, request{
		method:   http.MethodPost,
		endpoint: "credit-notes",
		query:    url.Values{"finalize": {"true"}},
		body:     c.buildCreditNote(s, order, invoiceID, order.Linkage().ContactID),
	}, &res)
	if err != nil {
		return nil, err
	}
	if res.ID == "" {
		return nil, fmt.Errorf("create credit note: response carries no id")
	}
	return &res, nil
}
