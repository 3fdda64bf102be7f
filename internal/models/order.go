package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Order is the storefront view of an order as far as invoicing needs it.
type Order struct {
	ID                 int64             `json:"id"`
	Number             string            `json:"number"`
	Status             string            `json:"status"`
	Currency           string            `json:"currency"`
	CreatedAt          time.Time         `json:"created_at"`
	PaymentMethod      string            `json:"payment_method"`
	PaymentMethodTitle string            `json:"payment_method_title"`
	Billing            BillingAddress    `json:"billing"`
	Items              []LineItem        `json:"items"`
	ShippingTotal      decimal.Decimal   `json:"shipping_total"`
	ShippingTax        decimal.Decimal   `json:"shipping_tax"`
	Total              decimal.Decimal   `json:"total"`
	TotalTax           decimal.Decimal   `json:"total_tax"`
	Meta               map[string]string `json:"meta"`
}

type BillingAddress struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company"`
	Address1  string `json:"address_1"`
	Address2  string `json:"address_2"`
	Postcode  string `json:"postcode"`
	City      string `json:"city"`
	Country   string `json:"country"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	TaxNumber string `json:"tax_number"`
	VATID     string `json:"vat_id"`
}

// FullName joins first and last name, skipping empty parts.
func (b BillingAddress) FullName() string {
	return strings.TrimSpace(strings.Join([]string{b.FirstName, b.LastName}, " "))
}

// LineItem is one product line. Subtotal and SubtotalTax cover the whole line.
// TaxRate is the percentage actually applied to the line, nil when unknown.
type LineItem struct {
	ID          int64            `json:"id"`
	ProductID   int64            `json:"product_id"`
	Name        string           `json:"name"`
	Quantity    int              `json:"quantity"`
	Subtotal    decimal.Decimal  `json:"subtotal"`
	SubtotalTax decimal.Decimal  `json:"subtotal_tax"`
	TaxClass    string           `json:"tax_class"`
	TaxRate     *decimal.Decimal `json:"tax_rate,omitempty"`
}

// PaymentGateway is a payment method configured in the storefront.
type PaymentGateway struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Enabled bool   `json:"enabled"`
}

// Linkage reads the accounting identifiers stored on the order.
func (o *Order) Linkage() Linkage {
	return LinkageFromMeta(o.Meta)
}

// ApplyMeta merges metadata updates into the in-memory order.
func (o *Order) ApplyMeta(updates map[string]string) {
	if o.Meta == nil {
		o.Meta = make(map[string]string, len(updates))
	}
	for k, v := range updates {
		o.Meta[k] = v
	}
}

// ItemsFingerprint hashes the invoiced parts of the line items.
func (o *Order) ItemsFingerprint() string {
	h := sha256.New()
	for _, item := range o.Items {
		h.Write([]byte(item.Name))
		h.Write([]byte{0})
		h.Write([]byte(strconv.Itoa(item.Quantity)))
		h.Write([]byte{0})
		h.Write([]byte(item.Subtotal.StringFixed(2)))
		h.Write([]byte{'\n'})
	}
	h.Write([]byte(o.ShippingTotal.StringFixed(2)))
	return hex.EncodeToString(h.Sum(nil))
}
