/*
Package config loads server configuration with viper.

SOURCES (later wins):
  1. Defaults set in setDefaults
  2. Optional TOML file passed to Load
  3. Environment variables prefixed POS_, dots replaced by underscores
     (POS_DATABASE_PATH, POS_BUSINESS_TAX_RATE, ...)

SECTIONS:
  [server]    port and HTTP timeouts
  [database]  SQLite path
  [log]       level, format, output
  [business]  the ledger.Params the engine runs with
  [sweeper]   background sweep on/off and interval
  [cors]      allowed origins

EXAMPLE:
  [business]
  payment_terms_days = 30
  system_price_share = "0.75"
  tax_enabled        = true
*/
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/warp/pos-ledger/ledger"
	"github.com/warp/pos-ledger/logger"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Log      logger.Config
	Business BusinessConfig
	Sweeper  SweeperConfig
	CORS     CORSConfig
}

type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds the SQLite path. ":memory:" keeps nothing on disk.
type DatabaseConfig struct {
	Path string
}

// BusinessConfig mirrors ledger.Params. Decimal values are kept as strings so
// the file and the environment can carry them without float rounding.
type BusinessConfig struct {
	PaymentTermsDays   int
	ItemCollectDays    int
	InvoiceDueDays     int
	LowStockThreshold  int64
	SystemPriceShare   string
	TaxRate            string
	TaxEnabled         bool
	AlertCooldown      time.Duration
	MaxConflictRetries int
	IssueReceipts      bool
}

type SweeperConfig struct {
	Enabled  bool
	Interval time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

// Load reads configuration. An empty path skips the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("POS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{
			Port:            v.GetInt("server.port"),
			ReadTimeout:     v.GetDuration("server.read_timeout"),
			WriteTimeout:    v.GetDuration("server.write_timeout"),
			IdleTimeout:     v.GetDuration("server.idle_timeout"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		Database: DatabaseConfig{
			Path: v.GetString("database.path"),
		},
		Log: logger.Config{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Business: BusinessConfig{
			PaymentTermsDays:   v.GetInt("business.payment_terms_days"),
			ItemCollectDays:    v.GetInt("business.item_collect_days"),
			InvoiceDueDays:     v.GetInt("business.invoice_due_days"),
			LowStockThreshold:  v.GetInt64("business.low_stock_threshold"),
			SystemPriceShare:   v.GetString("business.system_price_share"),
			TaxRate:            v.GetString("business.tax_rate"),
			TaxEnabled:         v.GetBool("business.tax_enabled"),
			AlertCooldown:      v.GetDuration("business.alert_cooldown"),
			MaxConflictRetries: v.GetInt("business.max_conflict_retries"),
			IssueReceipts:      v.GetBool("business.issue_receipts"),
		},
		Sweeper: SweeperConfig{
			Enabled:  v.GetBool("sweeper.enabled"),
			Interval: v.GetDuration("sweeper.interval"),
		},
		CORS: CORSConfig{
			AllowedOrigins: v.GetStringSlice("cors.allowed_origins"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := ledger.DefaultParams()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("database.path", "pos.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")

	v.SetDefault("business.payment_terms_days", d.PaymentTermsDays)
	v.SetDefault("business.item_collect_days", d.ItemCollectDays)
	v.SetDefault("business.invoice_due_days", d.InvoiceDueDays)
	v.SetDefault("business.low_stock_threshold", d.LowStockThreshold)
	v.SetDefault("business.system_price_share", d.SystemPriceShare.Decimal.String())
	v.SetDefault("business.tax_rate", d.TaxRate.String())
	v.SetDefault("business.tax_enabled", d.TaxInvoices)
	v.SetDefault("business.alert_cooldown", d.AlertCooldown)
	v.SetDefault("business.max_conflict_retries", d.MaxConflictRetries)
	v.SetDefault("business.issue_receipts", d.IssueReceipts)

	v.SetDefault("sweeper.enabled", true)
	v.SetDefault("sweeper.interval", time.Hour)

	v.SetDefault("cors.allowed_origins", []string{"http://localhost:3000"})
}

// Validate checks values that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if _, err := c.Business.shares(); err != nil {
		errs = append(errs, err)
	}
	if c.Sweeper.Enabled && c.Sweeper.Interval <= 0 {
		errs = append(errs, fmt.Errorf("sweeper.interval must be positive: %s", c.Sweeper.Interval))
	}
	return errors.Join(errs...)
}

type shares struct {
	systemPrice decimal.Decimal
	tax         decimal.Decimal
}

func (b BusinessConfig) shares() (shares, error) {
	var (
		s   shares
		err error
	)
	if s.systemPrice, err = decimal.NewFromString(b.SystemPriceShare); err != nil {
		return s, fmt.Errorf("business.system_price_share %q: %w", b.SystemPriceShare, err)
	}
	if s.systemPrice.IsNegative() || s.systemPrice.GreaterThan(decimal.NewFromInt(1)) {
		return s, fmt.Errorf("business.system_price_share must be within [0, 1]: %s", s.systemPrice)
	}
	if s.tax, err = decimal.NewFromString(b.TaxRate); err != nil {
		return s, fmt.Errorf("business.tax_rate %q: %w", b.TaxRate, err)
	}
	if s.tax.IsNegative() {
		return s, fmt.Errorf("business.tax_rate must not be negative: %s", s.tax)
	}
	return s, nil
}

// ToParams converts the business section to ledger.Params. Call it on a
// validated Config.
func (b BusinessConfig) ToParams() ledger.Params {
	s, _ := b.shares()
	return ledger.Params{
		PaymentTermsDays:   b.PaymentTermsDays,
		ItemCollectDays:    b.ItemCollectDays,
		InvoiceDueDays:     b.InvoiceDueDays,
		LowStockThreshold:  b.LowStockThreshold,
		SystemPriceShare:   decimal.NewNullDecimal(s.systemPrice),
		TaxRate:            s.tax,
		TaxInvoices:        b.TaxEnabled,
		AlertCooldown:      b.AlertCooldown,
		MaxConflictRetries: b.MaxConflictRetries,
		IssueReceipts:      b.IssueReceipts,
	}
}
