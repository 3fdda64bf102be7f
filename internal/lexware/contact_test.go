package lexware

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildContact(t *testing.T) {
	t.Run("Person", func(t *testing.T) {
		p := buildContact(testOrder())
		require.NotNil(t, p.Person)
		assert.Nil(t, p.Company)
		assert.Equal(t, "Erika", p.Person.FirstName)
		assert.Equal(t, "Muster", p.Person.LastName)
		require.NotNil(t, p.EmailAddresses)
		assert.Equal(t, []string{"erika@example.com"}, p.EmailAddresses.Business)
		assert.Nil(t, p.PhoneNumbers, "empty phone is omitted")
		require.Len(t, p.Addresses.Billing, 1)
		assert.Equal(t, "DE", p.Addresses.Billing[0].CountryCode)
	})

	t.Run("CompanyWithVATID", func(t *testing.T) {
		order := testOrder()
		order.Billing.Company = "Muster GmbH"
		order.Billing.VATID = "DE123456789"
		order.Billing.Phone = "+49 30 1234"

		p := buildContact(order)
		assert.Nil(t, p.Person)
		require.NotNil(t, p.Company)
		assert.Equal(t, "Muster GmbH", p.Company.Name)
		assert.Equal(t, "DE123456789", p.Company.VATRegistrationID)
		assert.True(t, p.Company.AllowTaxFreeInvoices)
		require.Len(t, p.Company.ContactPersons, 1)
		assert.Equal(t, "Muster", p.Company.ContactPersons[0].LastName)
		require.NotNil(t, p.PhoneNumbers)
		assert.Equal(t, []string{"+49 30 1234"}, p.PhoneNumbers.Business)
	})

	t.Run("CompanyWithoutVATID", func(t *testing.T) {
		order := testOrder()
		order.Billing.Company = "Muster GmbH"
		p := buildContact(order)
		require.NotNil(t, p.Company)
		assert.False(t, p.Company.AllowTaxFreeInvoices)
		assert.Empty(t, p.Company.VATRegistrationID)
	})
}

func TestSyncContactCreate(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/contacts", func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		assert.Contains(t, body, "roles")
		assert.Contains(t, body["roles"].(map[string]any), "customer")
		assert.NotContains(t, body, "phoneNumbers")
		assert.NotContains(t, body, "company")
		writeJSON(w, http.StatusOK, map[string]any{"id": "c-new", "version": 0})
	})
	c := newTestClient(t, mux)

	id, err := c.SyncContact(context.Background(), testSettings(), testOrder(), "")
	require.NoError(t, err)
	assert.Equal(t, "c-new", id)
}

func TestSyncContactUpdateKeepsUnknownFields(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/contacts/c-1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"id":      "c-1",
			"version": 3,
			"roles":   map[string]any{"customer": map[string]any{"number": 10001}},
			"person":  map[string]any{"salutation": "Frau", "firstName": "Old", "lastName": "Name"},
			"addresses": map[string]any{
				"billing":  []any{map[string]any{"street": "Altweg 2", "countryCode": "DE"}},
				"shipping": []any{map[string]any{"street": "Lager 5", "countryCode": "DE"}},
			},
			"note": "Stammkundin",
		})
	})
	mux.HandleFunc("PUT /v1/contacts/c-1", func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		assert.Equal(t, float64(3), body["version"])
		assert.Equal(t, "Stammkundin", body["note"])

		person := body["person"].(map[string]any)
		assert.Equal(t, "Frau", person["salutation"])
		assert.Equal(t, "Erika", person["firstName"])
		assert.Equal(t, "Muster", person["lastName"])

		addresses := body["addresses"].(map[string]any)
		billing := addresses["billing"].([]any)
		require.Len(t, billing, 1)
		assert.Equal(t, "Hauptstr. 1", billing[0].(map[string]any)["street"])
		assert.Len(t, addresses["shipping"].([]any), 1)

		writeJSON(w, http.StatusOK, map[string]any{"id": "c-1", "version": 4})
	})
	c := newTestClient(t, mux)

	id, err := c.SyncContact(context.Background(), testSettings(), testOrder(), "c-1")
	require.NoError(t, err)
	assert.Equal(t, "c-1", id)
}

func TestSyncContactMissingIsRecreated(t *testing.T) {
	var created bool
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/contacts/gone", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "Not Found"})
	})
	mux.HandleFunc("POST /v1/contacts", func(w http.ResponseWriter, r *http.Request) {
		created = true
		writeJSON(w, http.StatusOK, map[string]any{"id": "c-2"})
	})
	c := newTestClient(t, mux)

	id, err := c.SyncContact(context.Background(), testSettings(), testOrder(), "gone")
	require.NoError(t, err)
	assert.Equal(t, "c-2", id)
	assert.True(t, created)
}

func TestSyncContactLookupFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/contacts/c-1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("POST /v1/contacts", func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("contact must not be duplicated on a server error")
	})
	c := newTestClient(t, mux)

	_, err := c.SyncContact(context.Background(), testSettings(), testOrder(), "c-1")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
}

func TestResourcePath(t *testing.T) {
	p, err := resourcePath("invoices", " abc ")
	require.NoError(t, err)
	assert.Equal(t, "invoices/abc", p)

	for _, id := range []string{"", "a/b", "a?b", "x#y"} {
		_, err := resourcePath("invoices", id)
		assert.Error(t, err, id)
	}
}
