package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"invoicesync/internal/lexware"
	"invoicesync/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPILogRecorder(t *testing.T) {
	db := newTestDB(t)
	logger := zerolog.Nop()
	rec := NewAPILogRecorder(db, &logger)
	ctx := context.Background()

	rec.RecordCall(ctx, lexware.CallTrace{
		Method:       "POST",
		Endpoint:     "invoices",
		StatusCode:   201,
		RequestBody:  `{"title":"Rechnung"}`,
		ResponseBody: strings.Repeat("x", models.APILogResponseLimit+50),
		Duration:     1500 * time.Millisecond,
	})

	logs, err := db.RecentAPILogs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "POST", logs[0].Method)
	assert.Equal(t, "invoices", logs[0].Endpoint)
	assert.Equal(t, 201, logs[0].StatusCode)
	assert.Equal(t, int64(1500), logs[0].DurationMS)
	assert.Len(t, logs[0].ResponseBody, models.APILogResponseLimit)
}
