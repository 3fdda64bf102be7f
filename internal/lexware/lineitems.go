package lexware

import (
	"invoicesync/internal/models"

	"github.com/shopspring/decimal"
)

const (
	unitPiece        = "Stück"
	unitFlatRate     = "Pauschal"
	shippingItemName = "Versandkosten"
)

var (
	hundred        = decimal.NewFromInt(100)
	defaultTaxRate = decimal.NewFromFloat(models.DefaultTaxRate)
)

type lineItem struct {
	Type      string    `json:"type"`
	Name      string    `json:"name"`
	Quantity  int       `json:"quantity"`
	UnitName  string    `json:"unitName"`
	UnitPrice unitPrice `json:"unitPrice"`
}

type unitPrice struct {
	Currency          string  `json:"currency"`
	NetAmount         float64 `json:"netAmount"`
	TaxRatePercentage float64 `json:"taxRatePercentage"`
}

// buildLineItems maps order lines, plus shipping when requested. Credit notes pass negate.
func buildLineItems(order *models.Order, withShipping, negate bool) []lineItem {
	sign := 1
	if negate {
		sign = -1
	}
	signDec := decimal.NewFromInt(int64(sign))
	average, hasAverage := orderTaxRate(order)

	items := make([]lineItem, 0, len(order.Items)+1)
	for _, item := range order.Items {
		rate := resolveTaxRate(item.TaxRate, average, hasAverage)
		items = append(items, lineItem{
			Type:     "custom",
			Name:     item.Name,
			Quantity: item.Quantity * sign,
			UnitName: unitPiece,
			UnitPrice: unitPrice{
				Currency:          order.Currency,
				NetAmount:         unitNet(item).Mul(signDec).InexactFloat64(),
				TaxRatePercentage: rate.InexactFloat64(),
			},
		})
	}

	if withShipping && order.ShippingTotal.IsPositive() {
		var applied *decimal.Decimal
		if order.ShippingTax.IsPositive() {
			r := order.ShippingTax.Div(order.ShippingTotal).Mul(hundred).Round(2)
			applied = &r
		}
		items = append(items, lineItem{
			Type:     "custom",
			Name:     shippingItemName,
			Quantity: sign,
			UnitName: unitFlatRate,
			UnitPrice: unitPrice{
				Currency:          order.Currency,
				NetAmount:         order.ShippingTotal.Round(2).Mul(signDec).InexactFloat64(),
				TaxRatePercentage: resolveTaxRate(applied, average, hasAverage).InexactFloat64(),
			},
		})
	}
	return items
}

// resolveTaxRate prefers the applied rate, then the order average, then the default.
func resolveTaxRate(applied *decimal.Decimal, average decimal.Decimal, hasAverage bool) decimal.Decimal {
	if applied != nil {
		return *applied
	}
	if hasAverage {
		return average
	}
	return defaultTaxRate
}

// orderTaxRate is the effective rate across all product lines.
func orderTaxRate(order *models.Order) (decimal.Decimal, bool) {
	net, tax := decimal.Zero, decimal.Zero
	for _, item := range order.Items {
		net = net.Add(item.Subtotal)
		tax = tax.Add(item.SubtotalTax)
	}
	if !net.IsPositive() || !tax.IsPositive() {
		return decimal.Zero, false
	}
	return tax.Div(net).Mul(hundred).Round(2), true
}

func unitNet(item models.LineItem) decimal.Decimal {
	if item.Quantity == 0 {
		return item.Subtotal.Round(2)
	}
	return item.Subtotal.Div(decimal.NewFromInt(int64(item.Quantity))).Round(2)
}
