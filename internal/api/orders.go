package api

import (
	"fmt"
	"net/http"

	"invoicesync/internal/models"
)

const maxBulkOrders = 100

type bulkRequest struct {
	OrderIDs []int64 `json:"order_ids"`
}

// handleOrderAction enqueues the action for the order and processes it immediately.
func (s *HTTPServer) handleOrderAction(action models.SyncAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		task, err := s.deps.Sync.ProcessOrderAction(r.Context(), id, action)
		if err != nil {
			s.logger.Warn().Err(err).Int64("order_id", id).Str("action", string(action)).Msg("manual order action failed")
			writeFailure(w, err, task)
			return
		}
		writeJSON(w, http.StatusOK, task)
	}
}

func (s *HTTPServer) handleBulkInvoice(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.OrderIDs) == 0 {
		writeError(w, http.StatusBadRequest, "order_ids is required")
		return
	}
	if len(req.OrderIDs) > maxBulkOrders {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("at most %d orders per request", maxBulkOrders))
		return
	}

	res, err := s.deps.Sync.BulkCreateInvoices(r.Context(), req.OrderIDs)
	if err != nil {
		writeFailure(w, err, nil)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

// handleInvoicePDF serves the cached invoice document of an order.
func (s *HTTPServer) handleInvoicePDF(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	path, err := s.deps.Sync.InvoicePDF(r.Context(), id)
	if err != nil {
		writeFailure(w, err, nil)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=\"Rechnung-%d.pdf\"", id))
	http.ServeFile(w, r, path)
}

func (s *HTTPServer) handleEmailInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.deps.Sync.EmailInvoice(r.Context(), id); err != nil {
		writeFailure(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}
