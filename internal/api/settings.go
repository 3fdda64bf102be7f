package api

import (
	"net/http"
	"strconv"

	"invoicesync/internal/database"
	"invoicesync/internal/models"
)

const defaultLogLimit = 50

// handleGetSettings returns the effective settings with the API key masked.
func (s *HTTPServer) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.deps.Settings.Snapshot(r.Context())
	if err != nil {
		writeFailure(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, settings.Values())
}

func (s *HTTPServer) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var updates map[string]string
	if err := decodeJSON(w, r, &updates); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	settings, err := s.deps.Settings.Update(r.Context(), updates)
	if err != nil {
		writeFailure(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, settings.Values())
}

func (s *HTTPServer) handlePaymentMethods(w http.ResponseWriter, r *http.Request) {
	methods, err := s.deps.Settings.PaymentMethods(r.Context())
	if err != nil {
		writeFailure(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payment_methods": methods})
}

// handleTestConnection checks the stored credentials against the profile endpoint.
func (s *HTTPServer) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	profile, err := s.deps.Settings.TestConnection(r.Context())
	if err != nil {
		s.logger.Warn().Err(err).Msg("lexware connection test failed")
		writeFailure(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"organization_id": profile.OrganizationID,
		"company_name":    profile.CompanyName,
	})
}

func logLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 || limit > models.APILogLimit {
		return defaultLogLimit
	}
	return limit
}

func (s *HTTPServer) handleAPILogs(w http.ResponseWriter, r *http.Request) {
	entries, err := s.deps.DB.RecentAPILogs(r.Context(), logLimit(r))
	if err != nil {
		writeFailure(w, err, nil)
		return
	}
	if entries == nil {
		entries = []database.APILogEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *HTTPServer) handleErrorLogs(w http.ResponseWriter, r *http.Request) {
	entries, err := s.deps.DB.RecentErrors(r.Context(), logLimit(r))
	if err != nil {
		writeFailure(w, err, nil)
		return
	}
	if entries == nil {
		entries = []database.ErrorLogEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *HTTPServer) handleClearLogs(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.DB.ClearLogs(r.Context()); err != nil {
		writeFailure(w, err, nil)
		return
	}
	s.logger.Info().Msg("activity logs cleared")
	w.WriteHeader(http.StatusNoContent)
}
