package api

import (
	"errors"
	"net/http"

	"invoicesync/internal/database"
	"invoicesync/internal/domain"
	"invoicesync/internal/lexware"
	"invoicesync/internal/models"
	"invoicesync/internal/notify"
	"invoicesync/internal/pdfcache"
	"invoicesync/internal/service"
	"invoicesync/internal/storefront"
	"invoicesync/internal/worker"
)

// failure is the error body returned by every endpoint.
type failure struct {
	Error string           `json:"error"`
	Kind  string           `json:"kind,omitempty"`
	Task  *models.SyncTask `json:"task,omitempty"`
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var (
		apiErr       *lexware.APIError
		transportErr *lexware.TransportError
		storeErr     *storefront.StatusError
		taskErr      *worker.TaskError
	)
	switch {
	case errors.Is(err, models.ErrOrderNotFound),
		errors.Is(err, database.ErrTaskNotFound),
		errors.Is(err, database.ErrNoTask):
		return http.StatusNotFound
	case errors.Is(err, models.ErrNoInvoice),
		errors.Is(err, worker.ErrNotEligible),
		errors.Is(err, worker.ErrClaimLost),
		errors.Is(err, database.ErrDuplicateTask),
		errors.Is(err, domain.ErrLocked):
		return http.StatusConflict
	case errors.Is(err, service.ErrDownloadDisabled):
		return http.StatusForbidden
	case errors.Is(err, service.ErrInvalidSettings):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNoRecipient),
		errors.Is(err, pdfcache.ErrInvalidID):
		return http.StatusUnprocessableEntity
	case errors.Is(err, lexware.ErrMissingCredentials):
		return http.StatusPreconditionFailed
	case errors.Is(err, lexware.ErrNotAvailable),
		errors.Is(err, notify.ErrMailDisabled):
		return http.StatusServiceUnavailable
	case errors.As(err, &apiErr),
		errors.As(err, &transportErr),
		errors.As(err, &storeErr),
		errors.As(err, &taskErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// writeFailure renders err with its status and, when known, the task it concerns.
func writeFailure(w http.ResponseWriter, err error, task *models.SyncTask) {
	writeJSON(w, statusFor(err), failure{
		Error: err.Error(),
		Kind:  string(lexware.KindOf(err)),
		Task:  task,
	})
}
