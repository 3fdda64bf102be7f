package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"invoicesync/internal/config"
	"invoicesync/internal/database"
	"invoicesync/internal/events"
	"invoicesync/internal/models"
	"invoicesync/internal/service"

	"github.com/rs/zerolog"
)

// QueueProcessor runs the queue on operator request.
type QueueProcessor interface {
	ProcessNext(ctx context.Context) (*models.SyncTask, error)
	Wake()
}

// DeadLetterLister reads tasks that ran out of attempts.
type DeadLetterLister interface {
	List(ctx context.Context, limit int) ([]models.SyncTask, error)
}

// ReadinessCheck is one dependency checked by /readyz.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Deps are the components served over HTTP. DeadLetters and Readiness are optional.
type Deps struct {
	DB            *database.DB
	Sync          *service.SyncService
	Settings      *service.SettingsService
	Processor     QueueProcessor
	Bus           *events.EventBus
	DeadLetters   DeadLetterLister
	Readiness     []ReadinessCheck
	WebhookSecret string
}

// HTTPServer exposes the operational API of the sync service.
type HTTPServer struct {
	cfg    *config.APIConfig
	deps   Deps
	server *http.Server
	auth   *HTTPAuth
	logger *zerolog.Logger
}

func NewHTTPServer(cfg *config.APIConfig, deps Deps, logger *zerolog.Logger) *HTTPServer {
	l := logger.With().Str("component", "http").Logger()
	srv := &HTTPServer{cfg: cfg, deps: deps, logger: &l}
	srv.auth = NewHTTPAuth(cfg)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", srv.handleHealthz)
	mux.HandleFunc("GET /readyz", srv.handleReadyz)

	mux.HandleFunc("GET /api/v1/tasks", srv.handleListTasks)
	mux.HandleFunc("DELETE /api/v1/tasks", srv.handlePurgeTasks)
	mux.HandleFunc("GET /api/v1/tasks/export.xlsx", srv.handleExportTasks)
	mux.HandleFunc("GET /api/v1/tasks/dead-letters", srv.handleDeadLetters)
	mux.HandleFunc("POST /api/v1/tasks/process", srv.handleProcessNext)
	mux.HandleFunc("POST /api/v1/tasks/{id}/retry", srv.handleRetryTask)

	mux.HandleFunc("POST /api/v1/orders/bulk-invoice", srv.handleBulkInvoice)
	mux.HandleFunc("POST /api/v1/orders/{id}/invoice", srv.handleOrderAction(models.ActionCreateInvoice))
	mux.HandleFunc("POST /api/v1/orders/{id}/void", srv.handleOrderAction(models.ActionVoidInvoice))
	mux.HandleFunc("GET /api/v1/orders/{id}/invoice.pdf", srv.handleInvoicePDF)
	mux.HandleFunc("POST /api/v1/orders/{id}/invoice/email", srv.handleEmailInvoice)

	mux.HandleFunc("POST /api/v1/events/{kind}", srv.handleEvent)
	mux.HandleFunc("POST /api/v1/webhooks/woocommerce", srv.handleWebhook)

	mux.HandleFunc("GET /api/v1/settings", srv.handleGetSettings)
	mux.HandleFunc("PUT /api/v1/settings", srv.handleUpdateSettings)
	mux.HandleFunc("GET /api/v1/settings/payment-methods", srv.handlePaymentMethods)
	mux.HandleFunc("POST /api/v1/settings/test-connection", srv.handleTestConnection)

	mux.HandleFunc("GET /api/v1/logs/api", srv.handleAPILogs)
	mux.HandleFunc("GET /api/v1/logs/errors", srv.handleErrorLogs)
	mux.HandleFunc("DELETE /api/v1/logs", srv.handleClearLogs)

	handler := requestLogger(srv.logger, corsMiddleware(srv.auth.Wrap(mux)))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	return srv
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("http api listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.DB.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz reports whether the database and the external dependencies answer.
func (s *HTTPServer) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := map[string]string{"database": "ok"}
	ready := true
	if err := s.deps.DB.Ping(ctx); err != nil {
		status["database"] = err.Error()
		ready = false
	}
	for _, c := range s.deps.Readiness {
		if err := c.Check(ctx); err != nil {
			s.logger.Warn().Err(err).Str("check", c.Name).Msg("readiness check failed")
			status[c.Name] = err.Error()
			ready = false
			continue
		}
		status[c.Name] = "ok"
	}

	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", r.PathValue("id"))
	}
	return id, nil
}

// pagination reads limit and page (1-based) from the query string.
func pagination(r *http.Request) (limit, page int) {
	q := r.URL.Query()
	limit, err := strconv.Atoi(q.Get("limit"))
	if err != nil || limit <= 0 {
		limit = models.DefaultPageSize
	}
	if limit > 200 {
		limit = 200
	}
	page, err = strconv.Atoi(q.Get("page"))
	if err != nil || page <= 0 {
		page = 1
	}
	return limit, page
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
