package storefront

import (
	"context"
	"testing"

	"invoicesync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.GetOrder(ctx, 1)
	require.ErrorIs(t, err, models.ErrOrderNotFound)
	require.ErrorIs(t, store.UpdateOrderMeta(ctx, 1, map[string]string{"k": "v"}), models.ErrOrderNotFound)
	require.ErrorIs(t, store.AddOrderNote(ctx, 1, "x"), models.ErrOrderNotFound)

	store.Put(&models.Order{ID: 1, Number: "1", Items: []models.LineItem{{Name: "A", Quantity: 1}}})

	got, err := store.GetOrder(ctx, 1)
	require.NoError(t, err)
	got.Items[0].Name = "mutated"
	got.Meta["local"] = "only"

	again, err := store.GetOrder(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "A", again.Items[0].Name, "returned orders are copies")
	assert.NotContains(t, again.Meta, "local")

	require.NoError(t, store.UpdateOrderMeta(ctx, 1, models.InvoiceCreatedMeta("inv-1", "RE1", "h")))
	again, err = store.GetOrder(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "inv-1", again.Linkage().InvoiceID)

	require.NoError(t, store.AddOrderNote(ctx, 1, "first"))
	require.NoError(t, store.AddOrderNote(ctx, 1, "second"))
	assert.Equal(t, []string{"first", "second"}, store.Notes(1))

	store.SetPaymentGateways([]models.PaymentGateway{{ID: "paypal", Title: "PayPal", Enabled: true}})
	gws, err := store.PaymentGateways(ctx)
	require.NoError(t, err)
	assert.Len(t, gws, 1)
}
