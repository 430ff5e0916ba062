package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "GBP", cfg.Store.Currency)
	assert.Equal(t, 2, cfg.Bitcoin.RequiredConfirmations)
	assert.Equal(t, 10, cfg.Monero.RequiredConfirmations)
	assert.Equal(t, 24*time.Hour, cfg.Monero.PaymentWindow)
	assert.Equal(t, 5*time.Minute, cfg.Rates.CacheTTL)
	assert.Equal(t, "8080", cfg.HTTP.Port)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("BITCOIN_REQUIRED_CONFIRMATIONS", "6")
	t.Setenv("PAYPAL_CLIENT_ID", "client-id")
	t.Setenv("RATES_VALIDITY", "30m")
	t.Setenv("ENVIRONMENT", "production")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 6, cfg.Bitcoin.RequiredConfirmations)
	assert.Equal(t, "client-id", cfg.Paypal.ClientID)
	assert.Equal(t, 30*time.Minute, cfg.Rates.Validity)
	assert.True(t, cfg.Environment.IsProduction())
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("MONERO_PAYMENT_WINDOW", "a day")

	_, err := Load()
	assert.Error(t, err)
}
