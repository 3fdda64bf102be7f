package storefront

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"invoicesync/internal/config"
	"invoicesync/internal/models"

	"github.com/rs/zerolog"
)

const apiPrefix = "/wp-json/wc/v3/"

// WooCommerce reads and annotates orders through the WooCommerce REST API.
type WooCommerce struct {
	baseURL    string
	authHeader string
	httpClient *http.Client
	logger     *zerolog.Logger
}

func NewWooCommerce(cfg config.StoreConfig, logger *zerolog.Logger) *WooCommerce {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	creds := make([]byte, 0, len(cfg.ConsumerKey)+len(cfg.ConsumerSecret)+1)
	creds = fmt.Appendf(creds, "%s:%s", cfg.ConsumerKey, cfg.ConsumerSecret)

	return &WooCommerce{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		authHeader: "Basic " + base64.StdEncoding.EncodeToString(creds),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// StatusError is a non-2xx answer from the storefront.
type StatusError struct {
	Status int
	Path   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("woocommerce %s returned status %d", e.Path, e.Status)
}

func (w *WooCommerce) do(ctx context.Context, method, path string, body, out any) error {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, w.baseURL+apiPrefix+path, payload)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", w.authHeader)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("woocommerce %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	w.logger.Debug().Str("method", method).Str("path", path).Int("status", resp.StatusCode).Msg("woocommerce call")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Status: resp.StatusCode, Path: path}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func orderPath(orderID int64) string {
	return "orders/" + strconv.FormatInt(orderID, 10)
}

// GetOrder fetches an order. Unknown ids yield models.ErrOrderNotFound.
func (w *WooCommerce) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	var raw wcOrder
	if err := w.do(ctx, http.MethodGet, orderPath(orderID), nil, &raw); err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Status == http.StatusNotFound {
			return nil, fmt.Errorf("order %d: %w", orderID, models.ErrOrderNotFound)
		}
		return nil, err
	}
	return raw.toModel(), nil
}

// UpdateOrderMeta writes metadata entries; an empty value clears the key.
func (w *WooCommerce) UpdateOrderMeta(ctx context.Context, orderID int64, updates map[string]string) error {
	if len(updates) == 0 {
		return nil
	}
	meta := make([]wcMetaData, 0, len(updates))
	for k, v := range updates {
		meta = append(meta, wcMetaData{Key: k, Value: v})
	}
	body := map[string]any{"meta_data": meta}
	return w.do(ctx, http.MethodPut, orderPath(orderID), body, nil)
}

// AddOrderNote appends a private note to the order history.
func (w *WooCommerce) AddOrderNote(ctx context.Context, orderID int64, note string) error {
	body := map[string]any{"note": note, "customer_note": false}
	return w.do(ctx, http.MethodPost, orderPath(orderID)+"/notes", body, nil)
}

func (w *WooCommerce) PaymentGateways(ctx context.Context) ([]models.PaymentGateway, error) {
	var raw []struct {
		ID      string `json:"id"`
		Title   string `json:"title"`
		Enabled bool   `json:"enabled"`
	}
	if err := w.do(ctx, http.MethodGet, "payment_gateways", nil, &raw); err != nil {
		return nil, err
	}
	out := make([]models.PaymentGateway, 0, len(raw))
	for _, g := range raw {
		out = append(out, models.PaymentGateway{ID: g.ID, Title: g.Title, Enabled: g.Enabled})
	}
	return out, nil
}

// HealthCheck verifies that the API is reachable and the credentials are valid.
func (w *WooCommerce) HealthCheck(ctx context.Context) error {
	return w.do(ctx, http.MethodGet, "orders?per_page=1", nil, nil)
}
