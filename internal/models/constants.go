package models

const (
	// DefaultTaxRate is the rate used when neither the line nor the order carries one.
	DefaultTaxRate = 19.0

	// DefaultMaxAttempts is how often a task is tried before it is left for the operator.
	DefaultMaxAttempts = 3

	// DefaultPaymentTerms is the label used when no payment method override exists.
	DefaultPaymentTerms = "Zahlbar innerhalb von 14 Tagen ohne Abzug."

	// DefaultPaymentDueDays goes with DefaultPaymentTerms.
	DefaultPaymentDueDays = 14

	// APILogLimit and ErrorLogLimit cap the rolling operator logs.
	APILogLimit   = 100
	ErrorLogLimit = 50

	// APILogResponseLimit truncates stored response bodies.
	APILogResponseLimit = 500

	// DefaultPageSize is used by list endpoints without an explicit limit.
	DefaultPageSize = 20
)

const (
	NoteInvoiceCreated    = "Lexware Rechnung erstellt: %s (ID: %s)"
	NoteInvoiceExists     = "Lexware Rechnung existiert bereits (ID: %s)"
	NoteCreditNoteCreated = "Lexware Gutschrift erstellt (ID: %s)"
	NoteInvoiceEmailed    = "Rechnung per E-Mail an %s versendet"
)
