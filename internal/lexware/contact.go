package lexware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"invoicesync/internal/config"
	"invoicesync/internal/models"
)

type contactPayload struct {
	Version        int              `json:"version"`
	Roles          contactRoles     `json:"roles"`
	Company        *companyPayload  `json:"company,omitempty"`
	Person         *personPayload   `json:"person,omitempty"`
	Addresses      contactAddresses `json:"addresses"`
	EmailAddresses *contactChannels `json:"emailAddresses,omitempty"`
	PhoneNumbers   *contactChannels `json:"phoneNumbers,omitempty"`
}

type contactRoles struct {
	Customer struct{} `json:"customer"`
}

type companyPayload struct {
	Name                 string          `json:"name"`
	TaxNumber            string          `json:"taxNumber,omitempty"`
	VATRegistrationID    string          `json:"vatRegistrationId,omitempty"`
	AllowTaxFreeInvoices bool            `json:"allowTaxFreeInvoices"`
	ContactPersons       []contactPerson `json:"contactPersons,omitempty"`
}

type contactPerson struct {
	FirstName    string `json:"firstName,omitempty"`
	LastName     string `json:"lastName"`
	EmailAddress string `json:"emailAddress,omitempty"`
	PhoneNumber  string `json:"phoneNumber,omitempty"`
}

type personPayload struct {
	Salutation string `json:"salutation"`
	FirstName  string `json:"firstName,omitempty"`
	LastName   string `json:"lastName"`
}

type contactAddresses struct {
	Billing []contactAddress `json:"billing"`
}

type contactAddress struct {
	Street      string `json:"street,omitempty"`
	Supplement  string `json:"supplement,omitempty"`
	Zip         string `json:"zip,omitempty"`
	City        string `json:"city,omitempty"`
	CountryCode string `json:"countryCode"`
}

type contactChannels struct {
	Business []string `json:"business"`
}

// resourceResponse is what the API answers to create and update calls.
type resourceResponse struct {
	ID          string `json:"id"`
	ResourceURI string `json:"resourceUri"`
	Version     int    `json:"version"`
}

// buildContact shapes the billing identity of an order into a contact record.
func buildContact(order *models.Order) contactPayload {
	b := order.Billing
	p := contactPayload{
		Addresses: contactAddresses{Billing: []contactAddress{billingAddress(b)}},
	}

	if company := strings.TrimSpace(b.Company); company != "" {
		p.Company = &companyPayload{
			Name:                 company,
			TaxNumber:            strings.TrimSpace(b.TaxNumber),
			VATRegistrationID:    strings.TrimSpace(b.VATID),
			AllowTaxFreeInvoices: strings.TrimSpace(b.VATID) != "",
			ContactPersons: []contactPerson{{
				FirstName:    b.FirstName,
				LastName:     b.LastName,
				EmailAddress: b.Email,
				PhoneNumber:  b.Phone,
			}},
		}
	} else {
		p.Person = &personPayload{FirstName: b.FirstName, LastName: b.LastName}
	}

	if b.Email != "" {
		p.EmailAddresses = &contactChannels{Business: []string{b.Email}}
	}
	if b.Phone != "" {
		p.PhoneNumbers = &contactChannels{Business: []string{b.Phone}}
	}
	return p
}

func billingAddress(b models.BillingAddress) contactAddress {
	return contactAddress{
		Street:      b.Address1,
		Supplement:  b.Address2,
		Zip:         b.Postcode,
		City:        b.City,
		CountryCode: b.Country,
	}
}

// SyncContact creates the order's contact, or updates it in place when the order
// is already linked to one. It returns the contact id to link.
func (c *Client) SyncContact(ctx context.Context, s config.SyncSettings, order *models.Order, contactID string) (string, error) {
	if contactID == "" {
		return c.createContact(ctx, s, order)
	}

	id, err := c.updateContact(ctx, s, order, contactID)
	if IsNotFound(err) {
		c.logger.Info().Str("contact_id", contactID).Int64("order_id", order.ID).Msg("linked contact is gone, creating a new one")
		return c.createContact(ctx, s, order)
	}
	return id, err
}

func (c *Client) createContact(ctx context.Context, s config.SyncSettings, order *models.Order) (string, error) {
	var res resourceResponse
	err := c.doJSON(ctx, s, request{method: http.MethodPost, endpoint: "contacts", body: buildContact(order)}, &res)
	if err != nil {
		return "", err
	}
	if res.ID == "" {
		return "", fmt.Errorf("create contact: response carries no id")
	}
	return res.ID, nil
}

// updateContact rewrites the identity and billing address on the stored contact.
// The contact is handled as a generic document so fields this package does not
// model survive the round trip.
func (c *Client) updateContact(ctx context.Context, s config.SyncSettings, order *models.Order, contactID string) (string, error) {
	path, err := resourcePath("contacts", contactID)
	if err != nil {
		return "", err
	}

	var current map[string]any
	if err := c.doJSON(ctx, s, request{method: http.MethodGet, endpoint: path}, &current); err != nil {
		return "", err
	}

	b := order.Billing
	if company, ok := current["company"].(map[string]any); ok && b.Company != "" {
		company["name"] = b.Company
	} else if person, ok := current["person"].(map[string]any); ok && b.Company == "" {
		person["firstName"] = b.FirstName
		person["lastName"] = b.LastName
	}

	addresses, _ := current["addresses"].(map[string]any)
	if addresses == nil {
		addresses = make(map[string]any)
	}
	addresses["billing"] = []contactAddress{billingAddress(b)}
	current["addresses"] = addresses

	var res resourceResponse
	if err := c.doJSON(ctx, s, request{method: http.MethodPut, endpoint: path, body: current}, &res); err != nil {
		return "", err
	}
	if res.ID == "" {
		res.ID = contactID
	}
	return res.ID, nil
}

func resourcePath(kind, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" || strings.ContainsAny(id, "/?#") {
		return "", fmt.Errorf("invalid %s id %q", kind, id)
	}
	return kind + "/" + id, nil
}
