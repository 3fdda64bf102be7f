package config

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Keys of the persisted runtime settings.
const (
	KeyAPIKey              = "api_key"
	KeyOrderStatuses       = "order_statuses"
	KeyRetryAttempts       = "retry_attempts"
	KeyInvoiceTitle        = "invoice_title"
	KeyInvoiceIntroduction = "invoice_introduction"
	KeyClosingText         = "closing_text"
	KeyPaymentTerms        = "payment_terms"
	KeyPaymentDueDays      = "payment_due_days"
	KeyFinalize            = "finalize_immediately"
	KeyAutoSyncContacts    = "auto_sync_contacts"
	KeyShippingLineItem    = "shipping_as_line_item"
	KeyEnableLogging       = "enable_logging"
	KeyEmailOnError        = "email_on_error"
	KeyAutoSendEmail       = "auto_send_email"
	KeyShowInCustomerArea  = "show_in_customer_area"
)

// SyncSettings is the immutable settings snapshot used for one processing cycle.
type SyncSettings struct {
	APIKey              string          `json:"-"`
	TriggerStatuses     []string        `json:"trigger_statuses"`
	MaxAttempts         int             `json:"max_attempts"`
	FinalizeImmediately bool            `json:"finalize_immediately"`
	AutoSyncContacts    bool            `json:"auto_sync_contacts"`
	ShippingAsLineItem  bool            `json:"shipping_as_line_item"`
	EnableLogging       bool            `json:"enable_logging"`
	NotifyOnError       bool            `json:"notify_on_error"`
	AutoSendEmail       bool            `json:"auto_send_email"`
	ShowInCustomerArea  bool            `json:"show_in_customer_area"`
	Invoice             InvoiceSettings `json:"invoice"`
}

// InvoiceSettings are the texts and payment terms printed on invoices.
type InvoiceSettings struct {
	Title          string                        `yaml:"title" json:"title"`
	Introduction   string                        `yaml:"introduction" json:"introduction"`
	ClosingText    string                        `yaml:"closing_text" json:"closing_text"`
	PaymentTerms   string                        `yaml:"payment_terms" json:"payment_terms"`
	PaymentDueDays int                           `yaml:"payment_due_days" json:"payment_due_days"`
	PaymentMethods map[string]PaymentMethodTerms `yaml:"payment_methods" json:"payment_methods,omitempty"`
}

// PaymentMethodTerms overrides the default terms for one payment gateway.
// Empty Terms or nil DueDays fall back to the defaults independently; 0 days means due immediately.
type PaymentMethodTerms struct {
	Terms   string `yaml:"terms" json:"terms,omitempty"`
	DueDays *int   `yaml:"due_days" json:"due_days,omitempty"`
}

// PaymentTermsFor resolves label and due days for a payment method.
func (s InvoiceSettings) PaymentTermsFor(method string) (string, int) {
	label, days := s.PaymentTerms, s.PaymentDueDays
	if override, ok := s.PaymentMethods[method]; ok {
		if override.Terms != "" {
			label = override.Terms
		}
		if override.DueDays != nil {
			days = *override.DueDays
		}
	}
	return label, days
}

// IsTrigger reports whether an order status starts invoice creation.
func (s SyncSettings) IsTrigger(status string) bool {
	status = NormalizeStatus(status)
	for _, st := range s.TriggerStatuses {
		if NormalizeStatus(st) == status {
			return true
		}
	}
	return false
}

// NormalizeStatus strips the storefront's internal "wc-" prefix.
func NormalizeStatus(status string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(status)), "wc-")
}

// Validate checks a settings snapshot before it is stored.
func (s SyncSettings) Validate() error {
	if s.MaxAttempts < 1 {
		return fmt.Errorf("%s must be at least 1", KeyRetryAttempts)
	}
	if s.APIKey != "" {
		if err := ValidateAPIKey(s.APIKey); err != nil {
			return err
		}
	}
	if s.Invoice.PaymentDueDays < 0 {
		return fmt.Errorf("%s must not be negative", KeyPaymentDueDays)
	}
	for method, terms := range s.Invoice.PaymentMethods {
		if terms.DueDays != nil && *terms.DueDays < 0 {
			return fmt.Errorf("%s_%s must not be negative", KeyPaymentDueDays, method)
		}
	}
	return nil
}

// ValidateAPIKey checks the shape of a Lexware API key, which is a UUID.
func ValidateAPIKey(key string) error {
	if _, err := uuid.Parse(strings.TrimSpace(key)); err != nil {
		return fmt.Errorf("invalid api key format: %w", err)
	}
	return nil
}

// Apply overlays persisted key/value settings and returns a new snapshot.
// Unknown keys are rejected so typos do not go unnoticed.
func (s SyncSettings) Apply(values map[string]string) (SyncSettings, error) {
	out := s
	out.TriggerStatuses = slices.Clone(s.TriggerStatuses)
	out.Invoice.PaymentMethods = clonePaymentMethods(s.Invoice.PaymentMethods)

	for _, key := range slices.Sorted(maps.Keys(values)) {
		raw := strings.TrimSpace(values[key])
		if err := out.set(key, raw); err != nil {
			return s, fmt.Errorf("setting %s: %w", key, err)
		}
	}
	return out, nil
}

func (s *SyncSettings) set(key, raw string) error {
	var err error
	switch key {
	case KeyAPIKey:
		s.APIKey = raw
	case KeyOrderStatuses:
		s.TriggerStatuses = splitList(raw)
	case KeyRetryAttempts:
		s.MaxAttempts, err = strconv.Atoi(raw)
	case KeyInvoiceTitle:
		s.Invoice.Title = raw
	case KeyInvoiceIntroduction:
		s.Invoice.Introduction = raw
	case KeyClosingText:
		s.Invoice.ClosingText = raw
	case KeyPaymentTerms:
		s.Invoice.PaymentTerms = raw
	case KeyPaymentDueDays:
		s.Invoice.PaymentDueDays, err = strconv.Atoi(raw)
	case KeyFinalize:
		s.FinalizeImmediately, err = parseFlag(raw)
	case KeyAutoSyncContacts:
		s.AutoSyncContacts, err = parseFlag(raw)
	case KeyShippingLineItem:
		s.ShippingAsLineItem, err = parseFlag(raw)
	case KeyEnableLogging:
		s.EnableLogging, err = parseFlag(raw)
	case KeyEmailOnError:
		s.NotifyOnError, err = parseFlag(raw)
	case KeyAutoSendEmail:
		s.AutoSendEmail, err = parseFlag(raw)
	case KeyShowInCustomerArea:
		s.ShowInCustomerArea, err = parseFlag(raw)
	default:
		return s.setPaymentMethod(key, raw)
	}
	return err
}

func (s *SyncSettings) setPaymentMethod(key, raw string) error {
	if s.Invoice.PaymentMethods == nil {
		s.Invoice.PaymentMethods = make(map[string]PaymentMethodTerms)
	}
	switch {
	case strings.HasPrefix(key, KeyPaymentDueDays+"_"):
		method := strings.TrimPrefix(key, KeyPaymentDueDays+"_")
		var days *int
		if raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				return err
			}
			days = &n
		}
		terms := s.Invoice.PaymentMethods[method]
		terms.DueDays = days
		s.Invoice.PaymentMethods[method] = terms
	case strings.HasPrefix(key, KeyPaymentTerms+"_"):
		method := strings.TrimPrefix(key, KeyPaymentTerms+"_")
		terms := s.Invoice.PaymentMethods[method]
		terms.Terms = raw
		s.Invoice.PaymentMethods[method] = terms
	default:
		return fmt.Errorf("unknown setting")
	}
	return nil
}

// Values renders the snapshot as persisted key/value pairs. The API key is masked.
func (s SyncSettings) Values() map[string]string {
	out := map[string]string{
		KeyAPIKey:              maskSecret(s.APIKey),
		KeyOrderStatuses:       strings.Join(s.TriggerStatuses, ","),
		KeyRetryAttempts:       strconv.Itoa(s.MaxAttempts),
		KeyInvoiceTitle:        s.Invoice.Title,
		KeyInvoiceIntroduction: s.Invoice.Introduction,
		KeyClosingText:         s.Invoice.ClosingText,
		KeyPaymentTerms:        s.Invoice.PaymentTerms,
		KeyPaymentDueDays:      strconv.Itoa(s.Invoice.PaymentDueDays),
		KeyFinalize:            formatFlag(s.FinalizeImmediately),
		KeyAutoSyncContacts:    formatFlag(s.AutoSyncContacts),
		KeyShippingLineItem:    formatFlag(s.ShippingAsLineItem),
		KeyEnableLogging:       formatFlag(s.EnableLogging),
		KeyEmailOnError:        formatFlag(s.NotifyOnError),
		KeyAutoSendEmail:       formatFlag(s.AutoSendEmail),
		KeyShowInCustomerArea:  formatFlag(s.ShowInCustomerArea),
	}
	for method, terms := range s.Invoice.PaymentMethods {
		if terms.Terms != "" {
			out[KeyPaymentTerms+"_"+method] = terms.Terms
		}
		if terms.DueDays != nil {
			out[KeyPaymentDueDays+"_"+method] = strconv.Itoa(*terms.DueDays)
		}
	}
	return out
}

func parseFlag(raw string) (bool, error) {
	switch strings.ToLower(raw) {
	case "yes", "true", "1", "on":
		return true, nil
	case "no", "false", "0", "off", "":
		return false, nil
	}
	return false, fmt.Errorf("invalid flag value %q", raw)
}

func formatFlag(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func maskSecret(secret string) string {
	if len(secret) <= 4 {
		return strings.Repeat("*", len(secret))
	}
	return strings.Repeat("*", len(secret)-4) + secret[len(secret)-4:]
}

func clonePaymentMethods(in map[string]PaymentMethodTerms) map[string]PaymentMethodTerms {
	if in == nil {
		return nil
	}
	return maps.Clone(in)
}
