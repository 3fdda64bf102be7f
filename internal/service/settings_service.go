package service

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"invoicesync/internal/config"
	"invoicesync/internal/domain"
	"invoicesync/internal/lexware"

	"github.com/rs/zerolog"
)

// ErrInvalidSettings wraps values rejected by Update.
var ErrInvalidSettings = errors.New("invalid settings")

type SettingsStore interface {
	GetSettings(ctx context.Context) (map[string]string, error)
	SaveSettings(ctx context.Context, values map[string]string) error
}

// ConnectionTester checks the accounting API credentials.
type ConnectionTester interface {
	Profile(ctx context.Context, s config.SyncSettings) (*lexware.Profile, error)
}

// SettingsService serves runtime settings: file defaults overlaid with the
// values stored in the database.
type SettingsService struct {
	store    SettingsStore
	defaults config.SyncSettings
	tester   ConnectionTester
	gateways domain.Storefront
	logger   *zerolog.Logger
}

func NewSettingsService(store SettingsStore, defaults config.SyncSettings, tester ConnectionTester, gateways domain.Storefront, logger *zerolog.Logger) *SettingsService {
	return &SettingsService{
		store:    store,
		defaults: defaults,
		tester:   tester,
		gateways: gateways,
		logger:   logger,
	}
}

// Snapshot returns the settings in effect right now.
func (s *SettingsService) Snapshot(ctx context.Context) (config.SyncSettings, error) {
	values, err := s.store.GetSettings(ctx)
	if err != nil {
		return config.SyncSettings{}, fmt.Errorf("load settings: %w", err)
	}
	return s.defaults.Apply(values)
}

// Update validates and stores changed settings. A masked API key, as handed
// out by Snapshot().Values(), keeps the stored key.
func (s *SettingsService) Update(ctx context.Context, updates map[string]string) (config.SyncSettings, error) {
	stored, err := s.store.GetSettings(ctx)
	if err != nil {
		return config.SyncSettings{}, fmt.Errorf("load settings: %w", err)
	}

	updates = maps.Clone(updates)
	if key, ok := updates[config.KeyAPIKey]; ok && strings.Contains(key, "*") {
		delete(updates, config.KeyAPIKey)
	}
	if len(updates) == 0 {
		return s.defaults.Apply(stored)
	}

	merged := maps.Clone(stored)
	if merged == nil {
		merged = make(map[string]string, len(updates))
	}
	maps.Copy(merged, updates)

	next, err := s.defaults.Apply(merged)
	if err != nil {
		return config.SyncSettings{}, fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}
	if err := next.Validate(); err != nil {
		return config.SyncSettings{}, fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}
	if err := s.store.SaveSettings(ctx, updates); err != nil {
		return config.SyncSettings{}, fmt.Errorf("save settings: %w", err)
	}

	s.logger.Info().Strs("keys", slices.Sorted(maps.Keys(updates))).Msg("settings updated")
	return next, nil
}

// PaymentMethod is a storefront gateway with the terms printed for it.
type PaymentMethod struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Enabled      bool   `json:"enabled"`
	PaymentTerms string `json:"payment_terms"`
	DueDays      int    `json:"due_days"`
}

// PaymentMethods lists the storefront gateways with their effective terms.
func (s *SettingsService) PaymentMethods(ctx context.Context) ([]PaymentMethod, error) {
	settings, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	gateways, err := s.gateways.PaymentGateways(ctx)
	if err != nil {
		return nil, fmt.Errorf("load payment gateways: %w", err)
	}

	out := make([]PaymentMethod, 0, len(gateways))
	for _, g := range gateways {
		terms, days := settings.Invoice.PaymentTermsFor(g.ID)
		out = append(out, PaymentMethod{
			ID:           g.ID,
			Title:        g.Title,
			Enabled:      g.Enabled,
			PaymentTerms: terms,
			DueDays:      days,
		})
	}
	return out, nil
}

// TestConnection calls the profile endpoint with the current credentials.
func (s *SettingsService) TestConnection(ctx context.Context) (*lexware.Profile, error) {
	settings, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return s.tester.Profile(ctx, settings)
}
