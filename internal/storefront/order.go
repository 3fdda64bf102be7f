package storefront

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"invoicesync/internal/models"

	"github.com/shopspring/decimal"
)

// Billing identity fields kept in order metadata by the German market plugins.
const (
	metaBillingTaxNumber = "_billing_tax_number"
	metaBillingVATID     = "_billing_vat_id"
)

type wcOrder struct {
	ID                 int64        `json:"id"`
	Number             string       `json:"number"`
	Status             string       `json:"status"`
	Currency           string       `json:"currency"`
	DateCreated        string       `json:"date_created"`
	DateCreatedGMT     string       `json:"date_created_gmt"`
	PaymentMethod      string       `json:"payment_method"`
	PaymentMethodTitle string       `json:"payment_method_title"`
	Billing            wcBilling    `json:"billing"`
	LineItems          []wcLineItem `json:"line_items"`
	TaxLines           []wcTaxLine  `json:"tax_lines"`
	ShippingTotal      string       `json:"shipping_total"`
	ShippingTax        string       `json:"shipping_tax"`
	Total              string       `json:"total"`
	TotalTax           string       `json:"total_tax"`
	MetaData           []wcMetaData `json:"meta_data"`
}

type wcBilling struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company"`
	Address1  string `json:"address_1"`
	Address2  string `json:"address_2"`
	City      string `json:"city"`
	Postcode  string `json:"postcode"`
	Country   string `json:"country"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

type wcLineItem struct {
	ID          int64     `json:"id"`
	ProductID   int64     `json:"product_id"`
	Name        string    `json:"name"`
	Quantity    int       `json:"quantity"`
	TaxClass    string    `json:"tax_class"`
	Subtotal    string    `json:"subtotal"`
	SubtotalTax string    `json:"subtotal_tax"`
	Taxes       []wcTaxes `json:"taxes"`
}

// wcTaxes is the per-line share of one tax rate; ID refers to a tax line's rate_id.
type wcTaxes struct {
	ID       int64  `json:"id"`
	Total    string `json:"total"`
	Subtotal string `json:"subtotal"`
}

type wcTaxLine struct {
	RateID      int64   `json:"rate_id"`
	Label       string  `json:"label"`
	RatePercent float64 `json:"rate_percent"`
}

type wcMetaData struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// DecodeOrder parses an order document as delivered by the REST API and by order webhooks.
func DecodeOrder(data []byte) (*models.Order, error) {
	var raw wcOrder
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode order: %w", err)
	}
	if raw.ID == 0 {
		return nil, fmt.Errorf("decode order: missing id")
	}
	return raw.toModel(), nil
}

func (o wcOrder) toModel() *models.Order {
	meta := make(map[string]string, len(o.MetaData))
	for _, m := range o.MetaData {
		if v, ok := metaString(m.Value); ok {
			meta[m.Key] = v
		}
	}

	number := o.Number
	if number == "" {
		number = strconv.FormatInt(o.ID, 10)
	}

	rates := make(map[int64]decimal.Decimal, len(o.TaxLines))
	for _, tl := range o.TaxLines {
		rates[tl.RateID] = decimal.NewFromFloat(tl.RatePercent)
	}

	items := make([]models.LineItem, 0, len(o.LineItems))
	for _, li := range o.LineItems {
		items = append(items, models.LineItem{
			ID:          li.ID,
			ProductID:   li.ProductID,
			Name:        li.Name,
			Quantity:    li.Quantity,
			Subtotal:    parseAmount(li.Subtotal),
			SubtotalTax: parseAmount(li.SubtotalTax),
			TaxClass:    li.TaxClass,
			TaxRate:     appliedRate(li.Taxes, rates),
		})
	}

	return &models.Order{
		ID:                 o.ID,
		Number:             number,
		Status:             o.Status,
		Currency:           o.Currency,
		CreatedAt:          parseCreated(o.DateCreatedGMT, o.DateCreated),
		PaymentMethod:      o.PaymentMethod,
		PaymentMethodTitle: o.PaymentMethodTitle,
		Billing: models.BillingAddress{
			FirstName: o.Billing.FirstName,
			LastName:  o.Billing.LastName,
			Company:   o.Billing.Company,
			Address1:  o.Billing.Address1,
			Address2:  o.Billing.Address2,
			Postcode:  o.Billing.Postcode,
			City:      o.Billing.City,
			Country:   o.Billing.Country,
			Email:     o.Billing.Email,
			Phone:     o.Billing.Phone,
			TaxNumber: meta[metaBillingTaxNumber],
			VATID:     meta[metaBillingVATID],
		},
		Items:         items,
		ShippingTotal: parseAmount(o.ShippingTotal),
		ShippingTax:   parseAmount(o.ShippingTax),
		Total:         parseAmount(o.Total),
		TotalTax:      parseAmount(o.TotalTax),
		Meta:          meta,
	}
}

// appliedRate returns the percentage of the first known tax rate on the line.
// A 0% rate counts as applied.
func appliedRate(taxes []wcTaxes, rates map[int64]decimal.Decimal) *decimal.Decimal {
	for _, t := range taxes {
		if r, ok := rates[t.ID]; ok {
			return &r
		}
	}
	return nil
}

func parseAmount(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// parseCreated prefers the GMT timestamp; the local one is read as UTC when nothing else is there.
func parseCreated(gmt, local string) time.Time {
	for _, s := range []string{gmt, local} {
		if s == "" {
			continue
		}
		if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
			return t.UTC()
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func metaString(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(val), true
	default:
		return "", false
	}
}
