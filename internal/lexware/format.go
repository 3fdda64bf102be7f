package lexware

import (
	"strings"
	"time"

	"invoicesync/internal/models"

	"github.com/shopspring/decimal"
)

// voucherDateLayout is the only timestamp shape the API accepts for voucher dates.
const voucherDateLayout = "2006-01-02T15:04:05.000-07:00"

// FormatVoucherDate renders the calendar day of t in loc, at midnight.
func FormatVoucherDate(t time.Time, loc *time.Location) string {
	local := t.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return midnight.Format(voucherDateLayout)
}

// ReplacePlaceholders substitutes the supported [token]s in invoice texts.
func ReplacePlaceholders(text string, order *models.Order, loc *time.Location) string {
	if !strings.Contains(text, "[") {
		return text
	}

	orderDate := ""
	if !order.CreatedAt.IsZero() {
		orderDate = order.CreatedAt.In(loc).Format("02.01.2006")
	}

	r := strings.NewReplacer(
		"[order_number]", order.Number,
		"[order_date]", orderDate,
		"[customer_name]", order.Billing.FullName(),
		"[customer_company]", order.Billing.Company,
		"[total]", FormatAmount(order.Total, order.Currency),
		"[payment_method]", order.PaymentMethodTitle,
	)
	return r.Replace(text)
}

// FormatAmount prints an amount the German way, e.g. "1.234,50 EUR".
func FormatAmount(amount decimal.Decimal, currency string) string {
	fixed := amount.StringFixed(2)
	negative := strings.HasPrefix(fixed, "-")
	fixed = strings.TrimPrefix(fixed, "-")

	intPart, frac, _ := strings.Cut(fixed, ".")
	var grouped strings.Builder
	for i, ch := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			grouped.WriteByte('.')
		}
		grouped.WriteRune(ch)
	}

	out := grouped.String() + "," + frac
	if negative {
		out = "-" + out
	}
	if currency != "" {
		out += " " + currency
	}
	return out
}
