package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Logger   Logger   `mapstructure:"logger"`
	Database Database `mapstructure:"database"`
	Ledger   Ledger   `mapstructure:"ledger"`
	Cache    Cache    `mapstructure:"cache"`
	MFAPI    MFAPI    `mapstructure:"mfapi"`
	Gains    Gains    `mapstructure:"gains"`
	Refresh  Refresh  `mapstructure:"refresh"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Database holds the configuration for the sqlite database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Ledger selects where transactions are persisted.
type Ledger struct {
	Backend string `mapstructure:"backend"` // "sqlite" or "json"
	Path    string `mapstructure:"path"`    // JSON document, used by the json backend
}

// Cache holds the NAV cache settings.
type Cache struct {
	Backend string        `mapstructure:"backend"` // "file", "memory" or "sqlite"
	Dir     string        `mapstructure:"dir"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// MFAPI holds the configuration for the NAV source.
type MFAPI struct {
	BaseURL        string        `mapstructure:"base_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// Gains holds the capital-gains classification settings.
type Gains struct {
	EquityLongTermDays  int     `mapstructure:"equity_long_term_days"`
	DebtLongTermDays    int     `mapstructure:"debt_long_term_days"`
	EquityLTCGExemption float64 `mapstructure:"equity_ltcg_exemption"`
}

// Refresh holds the NAV refresher settings.
type Refresh struct {
	Schedule    string `mapstructure:"schedule"`
	Concurrency int    `mapstructure:"concurrency"`
}

// LoadConfig reads configuration from file or environment variables.
// A .env file in the working directory, if present, is loaded into the
// environment first.
func LoadConfig(path string) (config Config, err error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config") // name of config file (without extension)
	v.SetConfigType("yml")

	// Allow environment variables to override config file
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err = v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return
		}
		err = nil
	}

	err = v.Unmarshal(&config)
	return
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")

	v.SetDefault("database.dsn", "data/portfolio.db")

	v.SetDefault("ledger.backend", "sqlite")
	v.SetDefault("ledger.path", "data/portfolio.json")

	v.SetDefault("cache.backend", "file")
	v.SetDefault("cache.dir", "data/cache")
	v.SetDefault("cache.ttl", 24*time.Hour)

	v.SetDefault("mfapi.base_url", "https://api.mfapi.in")
	v.SetDefault("mfapi.timeout", 10*time.Second)
	v.SetDefault("mfapi.rate_limit", 100.0/60.0) // requests per second
	v.SetDefault("mfapi.rate_limit_burst", 5)
	v.SetDefault("mfapi.user_agent", "mf-portfolio-go/1.0")

	v.SetDefault("gains.equity_long_term_days", 365)
	v.SetDefault("gains.debt_long_term_days", 1095)
	v.SetDefault("gains.equity_ltcg_exemption", 100000)

	v.SetDefault("refresh.schedule", "0 21 * * 1-5")
	v.SetDefault("refresh.concurrency", 4)
}
