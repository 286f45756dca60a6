package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/currency"
	"github.com/Veraticus/spice-ledger/internal/pattern"
	"github.com/Veraticus/spice-ledger/internal/service"
)

// Config is the resolved application configuration.
type Config struct {
	DatabasePath string
	Logging      LoggingConfig
	Currency     CurrencyConfig
	AMQP         AMQPConfig
	Import       ImportConfig
}

// LoggingConfig selects the slog level and handler format.
type LoggingConfig struct {
	Level  string
	Format string
}

// CurrencyConfig is a static rate table relative to Base.
type CurrencyConfig struct {
	Rates    map[string]decimal.Decimal
	Base     string
	CacheTTL time.Duration
}

// AMQPConfig enables the AMQP event sink when URL is set.
type AMQPConfig struct {
	URL        string
	Exchange   string
	RoutingKey string
}

// ImportConfig holds the rules that file imported statement entries.
type ImportConfig struct {
	Rules []pattern.Rule
}

// Enabled reports whether events should be published to a broker.
func (c AMQPConfig) Enabled() bool {
	return c.URL != ""
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", DefaultDatabasePath())
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("currency.cache_ttl", time.Hour)
	v.SetDefault("notify.amqp.exchange", "ledger")
	v.SetDefault("notify.amqp.routing_key", "ledger.events")
}

// Load reads the configuration from v.
func Load(v *viper.Viper) (*Config, error) {
	rates, err := LoadRates(v)
	if err != nil {
		return nil, err
	}

	var rules []pattern.Rule
	if err := v.UnmarshalKey("import.rules", &rules); err != nil {
		return nil, fmt.Errorf("%w: import.rules: %w", common.ErrInvalidConfig, err)
	}

	cfg := &Config{
		DatabasePath: ExpandPath(v.GetString("database.path")),
		Logging: LoggingConfig{
			Level:  v.GetString("logging.level"),
			Format: v.GetString("logging.format"),
		},
		Currency: CurrencyConfig{
			Base:     currency.Normalize(v.GetString("currency.base")),
			Rates:    rates,
			CacheTTL: v.GetDuration("currency.cache_ttl"),
		},
		AMQP: AMQPConfig{
			URL:        v.GetString("notify.amqp.url"),
			Exchange:   v.GetString("notify.amqp.exchange"),
			RoutingKey: v.GetString("notify.amqp.routing_key"),
		},
		Import: ImportConfig{Rules: rules},
	}

	if cfg.DatabasePath == "" {
		return nil, fmt.Errorf("%w: database.path", common.ErrMissingConfig)
	}
	if len(cfg.Currency.Rates) > 0 && cfg.Currency.Base == "" {
		return nil, fmt.Errorf("%w: currency.rates requires currency.base", common.ErrMissingConfig)
	}
	if _, err := pattern.NewMatcher(cfg.Import.Rules); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadRates parses currency.rates. Viper lowercases map keys, so codes are
// normalized back to upper case.
func LoadRates(v *viper.Viper) (map[string]decimal.Decimal, error) {
	raw := v.GetStringMapString("currency.rates")
	rates := make(map[string]decimal.Decimal, len(raw))
	for code, value := range raw {
		rate, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("%w: rate for %s: %w", common.ErrInvalidConfig, code, err)
		}
		rates[currency.Normalize(code)] = rate
	}
	return rates, nil
}

// RateSource builds a cached rate source, or nil when no base currency is
// configured. Transfers between currencies then need explicit amounts.
func (c CurrencyConfig) RateSource() (service.RateSource, error) {
	if c.Base == "" {
		return nil, nil
	}
	static, err := currency.NewStaticSource(c.Base, c.Rates)
	if err != nil {
		return nil, err
	}
	return currency.NewCachedSource(static, c.CacheTTL), nil
}
