package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, MaxHoldCeiling, cfg.Sales.MaxHold)
	assert.Equal(t, "0.16", cfg.Sales.TaxRate.String())
	assert.Equal(t, "mxn", cfg.Sales.Currency)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Contains(t, cfg.Database.DSN, "dbname=ticketflow")
}

func TestLoadClampsHoldCeiling(t *testing.T) {
	t.Setenv("MAX_HOLD_MINUTES", "45")
	assert.Equal(t, MaxHoldCeiling, Load().Sales.MaxHold)

	t.Setenv("MAX_HOLD_MINUTES", "5")
	assert.Equal(t, 5*time.Minute, Load().Sales.MaxHold)

	t.Setenv("MAX_HOLD_MINUTES", "0")
	assert.Equal(t, MaxHoldCeiling, Load().Sales.MaxHold)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TAX_RATE", "0.08")
	t.Setenv("CURRENCY", "USD")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")

	cfg := Load()
	assert.Equal(t, "0.08", cfg.Sales.TaxRate.String())
	assert.Equal(t, "usd", cfg.Sales.Currency)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoadIgnoresNegativeTaxRate(t *testing.T) {
	t.Setenv("TAX_RATE", "-1")
	assert.Equal(t, "0.16", Load().Sales.TaxRate.String())
}
