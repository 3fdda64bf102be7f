package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"invoicesync/internal/events"
	"invoicesync/internal/models"
	"invoicesync/internal/storefront"
)

const maxWebhookBody = 2 << 20

// handleEvent publishes an order lifecycle event posted by the storefront plugin.
func (s *HTTPServer) handleEvent(w http.ResponseWriter, r *http.Request) {
	kind := r.PathValue("kind")
	if !events.KnownType(kind) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown event %q", kind))
		return
	}

	var payload events.OrderEventPayload
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.OrderID <= 0 {
		writeError(w, http.StatusBadRequest, "order_id is required")
		return
	}

	if err := s.deps.Bus.PublishJSON(r.Context(), kind, payload); err != nil {
		s.logger.Warn().Err(err).Str("event", kind).Int64("order_id", payload.OrderID).Msg("event handler failed")
		writeFailure(w, err, nil)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// handleWebhook receives WooCommerce order webhooks. Deliveries are authenticated
// by their HMAC signature instead of an API key.
func (s *HTTPServer) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}
	if !storefront.VerifySignature(s.deps.WebhookSecret, body, r.Header.Get(storefront.HeaderSignature)) {
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	topic := r.Header.Get(storefront.HeaderTopic)
	if !strings.HasPrefix(topic, "order.") || !looksLikeOrder(body) {
		// Ping deliveries on webhook creation carry no order.
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}
	if topic == "order.deleted" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	order, err := storefront.DecodeOrder(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	actions, err := s.deps.Sync.HandleOrderUpdated(r.Context(), order)
	if err != nil {
		s.logger.Error().Err(err).Int64("order_id", order.ID).Str("topic", topic).Msg("webhook handling failed")
		writeFailure(w, err, nil)
		return
	}
	if actions == nil {
		actions = []models.SyncAction{}
	}
	s.logger.Debug().Int64("order_id", order.ID).Str("topic", topic).Int("actions", len(actions)).Msg("webhook handled")
	writeJSON(w, http.StatusOK, map[string]any{"order_id": order.ID, "enqueued": actions})
}

func looksLikeOrder(body []byte) bool {
	var head struct {
		ID int64 `json:"id"`
	}
	return json.Unmarshal(body, &head) == nil && head.ID > 0
}
