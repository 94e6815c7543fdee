package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"mf-portfolio-go/internal/config"
	"mf-portfolio-go/internal/fund"
	"mf-portfolio-go/internal/navcache"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig(t *testing.T, baseURL string) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		Database: config.Database{DSN: filepath.Join(dir, "portfolio.db")},
		Ledger:   config.Ledger{Backend: "sqlite", Path: filepath.Join(dir, "portfolio.json")},
		Cache:    config.Cache{Backend: "sqlite", Dir: filepath.Join(dir, "cache"), TTL: time.Hour},
		MFAPI:    config.MFAPI{BaseURL: baseURL, Timeout: time.Second},
		Gains:    config.Gains{EquityLongTermDays: 365, DebtLongTermDays: 1095, EquityLTCGExemption: 100000},
		Refresh:  config.Refresh{Concurrency: 2},
	}
}

func TestNew_Backends(t *testing.T) {
	tests := []struct {
		name      string
		ledger    string
		cache     string
		wantDB    bool
		wantCache any
	}{
		{"SqliteEverything", "sqlite", "sqlite", true, &navcache.SQLCache{}},
		{"JSONLedgerFileCache", "json", "file", false, &navcache.FileCache{}},
		{"JSONLedgerMemoryCache", "json", "memory", false, &navcache.MemoryCache{}},
		{"Defaults", "", "", true, &navcache.FileCache{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			cfg := testConfig(t, "http://127.0.0.1:0")
			cfg.Ledger.Backend = tt.ledger
			cfg.Cache.Backend = tt.cache

			// Act
			a, err := New(context.Background(), cfg, zap.NewNop())

			// Assert
			require.NoError(t, err)
			assert.Equal(t, tt.wantDB, a.DB != nil)
			assert.IsType(t, tt.wantCache, a.Cache)
			assert.NotNil(t, a.Service)
			assert.Equal(t, 0, a.Ledger.Len())
		})
	}
}

func TestNew_UnknownBackends(t *testing.T) {
	cfg := testConfig(t, "")
	cfg.Cache.Backend = "redis"
	_, err := New(context.Background(), cfg, zap.NewNop())
	assert.ErrorContains(t, err, `unknown cache backend "redis"`)

	cfg = testConfig(t, "")
	cfg.Ledger.Backend = "csv"
	_, err = New(context.Background(), cfg, zap.NewNop())
	assert.ErrorContains(t, err, `unknown ledger backend "csv"`)

	cfg = testConfig(t, "")
	cfg.Ledger.Backend, cfg.Ledger.Path = "json", ""
	_, err = New(context.Background(), cfg, zap.NewNop())
	assert.ErrorContains(t, err, "ledger.path is required")
}

func TestNew_ServiceUsesSourceAndPersists(t *testing.T) {
	// Arrange
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/mf/120503", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"meta":{"scheme_code":120503,"scheme_name":"Axis ELSS"},
			"data":[{"date":"02-01-2024","nav":"80.00000"},{"date":"01-01-2024","nav":"79.50000"}],
			"status":"SUCCESS"}`))
	}))
	defer server.Close()
	cfg := testConfig(t, server.URL)

	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)

	// Act
	tx, err := a.Service.AddTransaction(context.Background(), fund.Input{
		Date: "2024-01-01", SchemeCode: "120503", Side: "BUY", Units: decimal.NewFromInt(10),
	})
	require.NoError(t, err)

	// Assert: NAV and name came from the source, and the row survives a reopen.
	assert.Equal(t, "Axis ELSS", tx.SchemeName)
	assert.True(t, decimal.RequireFromString("79.5").Equal(tx.Price))

	reopened, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, 1, reopened.Ledger.Len())
	assert.Equal(t, tx.ID, reopened.Service.Transactions("")[0].ID)
}

func TestOptions(t *testing.T) {
	cfg := testConfig(t, "")

	opts := Options(cfg)

	assert.Equal(t, 365, opts.Policy.EquityLongTermDays)
	assert.Equal(t, 1095, opts.Policy.DebtLongTermDays)
	assert.True(t, decimal.NewFromInt(100000).Equal(opts.LTCGExemption))
	assert.Equal(t, 2, opts.Concurrency)
}
