package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "test")
	t.Setenv("ROUND_DURATION", "")
	t.Setenv("HOUSE_FEE_PERCENT", "")

	cfg, err := load()
	require.NoError(t, err)

	assert.Equal(t, time.Hour, cfg.RoundDuration)
	assert.Equal(t, 5*time.Second, cfg.SettlementRetryDelay)
	assert.Equal(t, 15*time.Minute, cfg.PaymentTimeout)
	assert.True(t, cfg.HouseFeePercent.Equal(decimal.NewFromInt(5)))
	assert.True(t, cfg.PaymentTolerance.Equal(decimal.RequireFromString("100000000000000")), "0.0001 coin in smallest units")
	assert.Equal(t, 5, cfg.SplitSearchDepth)
	assert.Equal(t, 256, cfg.ReceiptBuffer)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ENVIRONMENT", "test")
	t.Setenv("ROUND_DURATION", "90s")
	t.Setenv("HOUSE_FEE_PERCENT", "2.5")
	t.Setenv("SPLIT_SEARCH_DEPTH", "3")
	t.Setenv("PAYMENT_TOLERANCE", "0.01")

	cfg, err := load()
	require.NoError(t, err)

	assert.True(t, cfg.PaymentTolerance.Equal(decimal.RequireFromString("10000000000000000")))

	assert.Equal(t, 90*time.Second, cfg.RoundDuration)
	assert.True(t, cfg.HouseFeePercent.Equal(decimal.RequireFromString("2.5")))
	assert.Equal(t, 3, cfg.SplitSearchDepth)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"unparseable duration", "ROUND_DURATION", "soon"},
		{"zero duration", "ROUND_DURATION", "0s"},
		{"fee above 100", "HOUSE_FEE_PERCENT", "101"},
		{"negative fee", "HOUSE_FEE_PERCENT", "-1"},
		{"depth zero", "SPLIT_SEARCH_DEPTH", "0"},
		{"non numeric buffer", "RECEIPT_BUFFER", "lots"},
		{"negative tolerance", "PAYMENT_TOLERANCE", "-0.0001"},
		{"tolerance in exponent form", "PAYMENT_TOLERANCE", "1e-4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ENVIRONMENT", "test")
			t.Setenv(tt.key, tt.value)

			_, err := load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_RequiresDatabaseOutsideTest(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("COIN_ID", "coin")

	_, err := load()
	assert.ErrorContains(t, err, "DATABASE_URL")
}

func TestSetTestConfig(t *testing.T) {
	t.Cleanup(ResetConfig)

	cfg := NewTestConfig()
	cfg.CoinID = "override"
	SetTestConfig(cfg)

	assert.Equal(t, "override", Get().CoinID)
}
