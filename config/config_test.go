package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/pos-ledger/config"
	"github.com/warp/pos-ledger/ledger"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pos.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "pos.db", cfg.Database.Path)
	assert.True(t, cfg.Sweeper.Enabled)
	assert.Equal(t, time.Hour, cfg.Sweeper.Interval)

	// THEN: Business defaults round-trip to the engine defaults
	p := cfg.Business.ToParams()
	d := ledger.DefaultParams()
	assert.Equal(t, d.PaymentTermsDays, p.PaymentTermsDays)
	require.True(t, p.SystemPriceShare.Valid)
	assert.True(t, d.SystemPriceShare.Decimal.Equal(p.SystemPriceShare.Decimal))
	assert.True(t, d.TaxRate.Equal(p.TaxRate))
	assert.Equal(t, d.AlertCooldown, p.AlertCooldown)
	assert.Equal(t, d.IssueReceipts, p.IssueReceipts)
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	// GIVEN: A file that sets business values and an env override
	path := writeConfig(t, `
[database]
path = "/tmp/shop.db"

[business]
payment_terms_days = 14
system_price_share = "0.8"
tax_enabled = true
alert_cooldown = "12h"
`)
	t.Setenv("POS_BUSINESS_PAYMENT_TERMS_DAYS", "21")

	// WHEN
	cfg, err := config.Load(path)
	require.NoError(t, err)

	// THEN: The environment wins over the file, the file over defaults
	assert.Equal(t, "/tmp/shop.db", cfg.Database.Path)
	p := cfg.Business.ToParams()
	assert.Equal(t, 21, p.PaymentTermsDays)
	require.True(t, p.SystemPriceShare.Valid)
	assert.True(t, decimal.RequireFromString("0.8").Equal(p.SystemPriceShare.Decimal))
	assert.True(t, p.TaxInvoices)
	assert.Equal(t, 12*time.Hour, p.AlertCooldown)
}

func TestLoad_RejectsBadValues(t *testing.T) {
	path := writeConfig(t, `
[server]
port = 0

[business]
system_price_share = "1.5"
`)
	_, err := config.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
	assert.Contains(t, err.Error(), "system_price_share")
}

func TestLoad_ZeroPriceShareIsKept(t *testing.T) {
	// GIVEN: A file that gives resellers the whole sale price
	path := writeConfig(t, `
[business]
system_price_share = "0"
`)

	// WHEN
	cfg, err := config.Load(path)
	require.NoError(t, err)

	// THEN: The engine sees a share of 0, not the default
	p := cfg.Business.ToParams()
	require.True(t, p.SystemPriceShare.Valid)
	assert.True(t, p.SystemPriceShare.Decimal.IsZero())
	assert.True(t, decimal.NewFromInt(1).Equal(p.CommissionShare()))
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}
