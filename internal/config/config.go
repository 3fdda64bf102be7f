package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"time"
	_ "time/tzdata" // zone database for containers without one

	"invoicesync/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Lexware    LexwareConfig    `yaml:"lexware"`
	Store      StoreConfig      `yaml:"store"`
	Sync       SyncConfig       `yaml:"sync"`
	Invoice    InvoiceSettings  `yaml:"invoice"`
	PDF        PDFConfig        `yaml:"pdf"`
	Notify     NotifyConfig     `yaml:"notify"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

// LexwareConfig points the accounting client at the Lexware Office API.
type LexwareConfig struct {
	BaseURL  string        `yaml:"base_url"`
	APIKey   string        `yaml:"api_key"`
	Timezone string        `yaml:"timezone"`
	Timeout  time.Duration `yaml:"timeout"`
}

// StoreConfig holds the WooCommerce REST credentials.
type StoreConfig struct {
	URL            string        `yaml:"url"`
	ConsumerKey    string        `yaml:"consumer_key"`
	ConsumerSecret string        `yaml:"consumer_secret"`
	WebhookSecret  string        `yaml:"webhook_secret"`
	Timeout        time.Duration `yaml:"timeout"`
}

// SyncConfig carries the processor schedule and the defaults for runtime settings.
// Pointer booleans distinguish "not set" from an explicit false.
type SyncConfig struct {
	Interval            time.Duration `yaml:"interval"`
	LockTTL             time.Duration `yaml:"lock_ttl"`
	LockWait            time.Duration `yaml:"lock_wait"`
	MaxAttempts         int           `yaml:"max_attempts"`
	TriggerStatuses     []string      `yaml:"trigger_statuses"`
	FinalizeImmediately *bool         `yaml:"finalize_immediately"`
	AutoSyncContacts    *bool         `yaml:"auto_sync_contacts"`
	ShippingAsLineItem  *bool         `yaml:"shipping_as_line_item"`
	EnableLogging       *bool         `yaml:"enable_logging"`
	NotifyOnError       *bool         `yaml:"notify_on_error"`
	AutoSendEmail       *bool         `yaml:"auto_send_email"`
	ShowInCustomerArea  *bool         `yaml:"show_in_customer_area"`
}

type PDFConfig struct {
	CacheDir     string        `yaml:"cache_dir"`
	PollAttempts int           `yaml:"poll_attempts"`
	PollDelay    time.Duration `yaml:"poll_delay"`
}

type NotifyConfig struct {
	AdminEmail    string         `yaml:"admin_email"`
	AlertInterval time.Duration  `yaml:"alert_interval"`
	AlertBurst    int            `yaml:"alert_burst"`
	SMTP          SMTPConfig     `yaml:"smtp"`
	Telegram      TelegramConfig `yaml:"telegram"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; values from it feed the ${VAR} expansion below.
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if c.Store.URL == "" {
		return errors.New("store url is required")
	}
	if _, err := url.ParseRequestURI(c.Store.URL); err != nil {
		return fmt.Errorf("invalid store url: %w", err)
	}

	if c.Lexware.BaseURL != "" {
		if _, err := url.ParseRequestURI(c.Lexware.BaseURL); err != nil {
			return fmt.Errorf("invalid lexware base url: %w", err)
		}
	}
	if _, err := time.LoadLocation(c.Lexware.Timezone); err != nil {
		return fmt.Errorf("invalid lexware timezone %q: %w", c.Lexware.Timezone, err)
	}

	if c.Sync.MaxAttempts < 1 {
		return errors.New("sync.max_attempts must be at least 1")
	}

	if c.Lexware.APIKey != "" {
		if err := ValidateAPIKey(c.Lexware.APIKey); err != nil {
			return err
		}
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "invoicesync"
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}

	if c.Lexware.BaseURL == "" {
		c.Lexware.BaseURL = "https://api.lexoffice.io/v1/"
	}
	if c.Lexware.Timezone == "" {
		c.Lexware.Timezone = "Europe/Berlin"
	}
	if c.Lexware.Timeout == 0 {
		c.Lexware.Timeout = 30 * time.Second
	}
	if c.Store.Timeout == 0 {
		c.Store.Timeout = 30 * time.Second
	}

	if c.Sync.Interval == 0 {
		c.Sync.Interval = time.Minute
	}
	if c.Sync.LockTTL == 0 {
		c.Sync.LockTTL = 2 * time.Minute
	}
	if c.Sync.MaxAttempts == 0 {
		c.Sync.MaxAttempts = models.DefaultMaxAttempts
	}
	if len(c.Sync.TriggerStatuses) == 0 {
		c.Sync.TriggerStatuses = []string{"completed", "processing"}
	}

	if c.Invoice.Title == "" {
		c.Invoice.Title = "Rechnung"
	}
	if c.Invoice.Introduction == "" {
		c.Invoice.Introduction = "Vielen Dank für Ihre Bestellung [order_number] vom [order_date]."
	}
	if c.Invoice.ClosingText == "" {
		c.Invoice.ClosingText = "Vielen Dank für Ihr Vertrauen."
	}
	if c.Invoice.PaymentTerms == "" {
		c.Invoice.PaymentTerms = models.DefaultPaymentTerms
	}
	if c.Invoice.PaymentDueDays == 0 {
		c.Invoice.PaymentDueDays = models.DefaultPaymentDueDays
	}

	if c.PDF.CacheDir == "" {
		c.PDF.CacheDir = "data/invoices"
	}
	if c.PDF.PollAttempts == 0 {
		c.PDF.PollAttempts = 5
	}
	if c.PDF.PollDelay == 0 {
		c.PDF.PollDelay = 2 * time.Second
	}

	if c.Notify.AlertInterval == 0 {
		c.Notify.AlertInterval = 5 * time.Minute
	}
	if c.Notify.AlertBurst == 0 {
		c.Notify.AlertBurst = 3
	}
	if c.Notify.SMTP.Port == 0 {
		c.Notify.SMTP.Port = 587
	}
}

// DefaultSettings builds the runtime settings snapshot from the file configuration alone.
func (c *Config) DefaultSettings() SyncSettings {
	invoice := c.Invoice
	invoice.PaymentMethods = clonePaymentMethods(c.Invoice.PaymentMethods)

	return SyncSettings{
		APIKey:              c.Lexware.APIKey,
		TriggerStatuses:     append([]string(nil), c.Sync.TriggerStatuses...),
		MaxAttempts:         c.Sync.MaxAttempts,
		FinalizeImmediately: boolOr(c.Sync.FinalizeImmediately, true),
		AutoSyncContacts:    boolOr(c.Sync.AutoSyncContacts, true),
		ShippingAsLineItem:  boolOr(c.Sync.ShippingAsLineItem, true),
		EnableLogging:       boolOr(c.Sync.EnableLogging, true),
		NotifyOnError:       boolOr(c.Sync.NotifyOnError, true),
		AutoSendEmail:       boolOr(c.Sync.AutoSendEmail, false),
		ShowInCustomerArea:  boolOr(c.Sync.ShowInCustomerArea, true),
		Invoice:             invoice,
	}
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
