package service

import (
	"context"

	"invoicesync/internal/database"
	"invoicesync/internal/lexware"

	"github.com/rs/zerolog"
)

type APILogStore interface {
	AddAPILog(ctx context.Context, entry database.APILogEntry) error
}

// APILogRecorder writes accounting API call traces to the rolling API log.
type APILogRecorder struct {
	store  APILogStore
	logger *zerolog.Logger
}

func NewAPILogRecorder(store APILogStore, logger *zerolog.Logger) *APILogRecorder {
	return &APILogRecorder{store: store, logger: logger}
}

func (r *APILogRecorder) RecordCall(ctx context.Context, trace lexware.CallTrace) {
	err := r.store.AddAPILog(ctx, database.APILogEntry{
		Method:       trace.Method,
		Endpoint:     trace.Endpoint,
		StatusCode:   trace.StatusCode,
		RequestBody:  trace.RequestBody,
		ResponseBody: trace.ResponseBody,
		DurationMS:   trace.Duration.Milliseconds(),
	})
	if err != nil {
		r.logger.Warn().Err(err).Str("endpoint", trace.Endpoint).Msg("api log write failed")
	}
}
