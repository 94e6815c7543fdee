// Package app builds the portfolio service and its collaborators from
// configuration. Both binaries start through New.
package app

import (
	"context"
	"fmt"
	"strings"

	"mf-portfolio-go/internal/config"
	"mf-portfolio-go/internal/database"
	"mf-portfolio-go/internal/gains"
	"mf-portfolio-go/internal/ledger"
	"mf-portfolio-go/internal/mfapi"
	"mf-portfolio-go/internal/navcache"
	"mf-portfolio-go/internal/portfolio"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App holds the wired components.
type App struct {
	Config  *config.Config
	DB      *gorm.DB
	Cache   navcache.Cache
	Source  *mfapi.Client
	Ledger  *ledger.Ledger
	Service *portfolio.Service
}

// New opens the database when a component needs it, builds the NAV cache
// and client, loads the ledger and returns the service on top of them.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	a := &App{Config: cfg}

	if needsDB(cfg) {
		db, err := database.NewDatabase(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		a.DB = db
		log.Info("Database connection successful and schema migrated.", zap.String("dsn", cfg.Database.DSN))
	}

	cache, err := newCache(cfg, a.DB, log)
	if err != nil {
		return nil, err
	}
	a.Cache = cache
	a.Source = mfapi.NewClient(&cfg.MFAPI, cache, cfg.Cache.TTL, log)

	store, err := newStore(cfg, a.DB, log)
	if err != nil {
		return nil, err
	}
	a.Ledger, err = ledger.Open(ctx, store, log)
	if err != nil {
		return nil, err
	}

	a.Service = portfolio.NewService(a.Ledger, a.Source, Options(cfg), log)
	return a, nil
}

// Options maps the gains and refresh settings onto service options.
func Options(cfg *config.Config) portfolio.Options {
	return portfolio.Options{
		Policy: gains.Policy{
			EquityLongTermDays: cfg.Gains.EquityLongTermDays,
			DebtLongTermDays:   cfg.Gains.DebtLongTermDays,
		},
		LTCGExemption: decimal.NewFromFloat(cfg.Gains.EquityLTCGExemption),
		Concurrency:   cfg.Refresh.Concurrency,
	}
}

func needsDB(cfg *config.Config) bool {
	return backend(cfg.Ledger.Backend, "sqlite") == "sqlite" || backend(cfg.Cache.Backend, "file") == "sqlite"
}

func backend(name, def string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return def
	}
	return name
}

func newCache(cfg *config.Config, db *gorm.DB, log *zap.Logger) (navcache.Cache, error) {
	switch b := backend(cfg.Cache.Backend, "file"); b {
	case "file":
		c, err := navcache.NewFileCache(cfg.Cache.Dir, log)
		if err != nil {
			return nil, fmt.Errorf("failed to open NAV cache: %w", err)
		}
		return c, nil
	case "memory":
		return navcache.NewMemoryCache(), nil
	case "sqlite":
		return navcache.NewSQLCache(db, log), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", b)
	}
}

func newStore(cfg *config.Config, db *gorm.DB, log *zap.Logger) (ledger.Store, error) {
	switch b := backend(cfg.Ledger.Backend, "sqlite"); b {
	case "sqlite":
		return ledger.NewGormStore(db, log), nil
	case "json":
		if cfg.Ledger.Path == "" {
			return nil, fmt.Errorf("ledger.path is required for the json backend")
		}
		return ledger.NewJSONStore(cfg.Ledger.Path, log), nil
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", b)
	}
}
