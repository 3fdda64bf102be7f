package models

// Order metadata keys holding the accounting linkage.
const (
	MetaContactID     = "_lexware_contact_id"
	MetaInvoiceID     = "_lexware_invoice_id"
	MetaInvoiceNumber = "_lexware_invoice_number"
	MetaCreditNoteID  = "_lexware_credit_note_id"
	MetaInvoiceVoided = "_lexware_invoice_voided"
	MetaItemsHash     = "_lexware_items_hash"

	metaYes = "yes"
)

// Linkage is the set of accounting identifiers persisted on an order.
// Voided implies CreditNoteID is set.
type Linkage struct {
	ContactID     string `json:"contact_id,omitempty"`
	InvoiceID     string `json:"invoice_id,omitempty"`
	InvoiceNumber string `json:"invoice_number,omitempty"`
	CreditNoteID  string `json:"credit_note_id,omitempty"`
	Voided        bool   `json:"voided"`
	ItemsHash     string `json:"items_hash,omitempty"`
}

func LinkageFromMeta(meta map[string]string) Linkage {
	return Linkage{
		ContactID:     meta[MetaContactID],
		InvoiceID:     meta[MetaInvoiceID],
		InvoiceNumber: meta[MetaInvoiceNumber],
		CreditNoteID:  meta[MetaCreditNoteID],
		Voided:        meta[MetaInvoiceVoided] == metaYes,
		ItemsHash:     meta[MetaItemsHash],
	}
}

func (l Linkage) HasInvoice() bool {
	return l.InvoiceID != ""
}

// HasActiveInvoice reports an invoice that has not been voided.
func (l Linkage) HasActiveInvoice() bool {
	return l.InvoiceID != "" && !l.Voided
}

// InvoiceCreatedMeta returns the metadata written after an invoice was created.
func InvoiceCreatedMeta(invoiceID, number, itemsHash string) map[string]string {
	return map[string]string{
		MetaInvoiceID:     invoiceID,
		MetaInvoiceNumber: number,
		MetaInvoiceVoided: "",
		MetaItemsHash:     itemsHash,
	}
}

// InvoiceVoidedMeta returns the metadata written after a credit note was created.
func InvoiceVoidedMeta(creditNoteID string) map[string]string {
	return map[string]string{
		MetaCreditNoteID:  creditNoteID,
		MetaInvoiceVoided: metaYes,
	}
}

// ReplacedInvoiceMeta records the credit note of a replaced invoice and drops the
// invoice reference in the same write, so a new one can be created.
func ReplacedInvoiceMeta(creditNoteID string) map[string]string {
	return map[string]string{
		MetaCreditNoteID:  creditNoteID,
		MetaInvoiceID:     "",
		MetaInvoiceNumber: "",
		MetaInvoiceVoided: "",
		MetaItemsHash:     "",
	}
}
