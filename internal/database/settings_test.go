package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	values, err := db.GetSettings(ctx)
	require.NoError(t, err)
	assert.Empty(t, values)

	require.NoError(t, db.SaveSettings(ctx, map[string]string{
		"retry_attempts": "5",
		"invoice_title":  "Rechnung",
	}))
	require.NoError(t, db.SaveSettings(ctx, map[string]string{"retry_attempts": "7"}))

	values, err = db.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"retry_attempts": "7",
		"invoice_title":  "Rechnung",
	}, values)
}
