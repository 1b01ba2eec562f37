// Package config loads service settings from the environment (.env via godotenv)
// and economy tuning from an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"player-economy/models"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// ConsistencyMode selects how the engine guards its read-then-write cycle.
type ConsistencyMode string

const (
	// ConsistencySerialized serializes writes per player and compare-and-swaps on version.
	ConsistencySerialized ConsistencyMode = "serialized"
	// ConsistencyLegacy keeps the unguarded read-then-write (racing writes can lose updates).
	ConsistencyLegacy ConsistencyMode = "legacy"
)

// Economy holds the tunable rules of the player economy.
type Economy struct {
	MaxEnergy                 int
	DefaultEnergyRefillRateMs int64
	CostPerEnergy             decimal.Decimal
	AssetCosts                map[models.AssetType]decimal.Decimal
	BoostDuration             time.Duration
	ReferralMultiplierStep    decimal.Decimal
	MaxReferralMultiplier     decimal.Decimal
	CurrencyPrecision         int32
	Consistency               ConsistencyMode
}

// DefaultEconomy returns the stock tuning.
func DefaultEconomy() Economy {
	return Economy{
		MaxEnergy:                 100,
		DefaultEnergyRefillRateMs: 60000,
		CostPerEnergy:             decimal.NewFromInt(1),
		AssetCosts: map[models.AssetType]decimal.Decimal{
			models.AssetShowAvailableMoves: decimal.NewFromInt(30),
			models.AssetAIAssistant:        decimal.NewFromInt(50),
		},
		BoostDuration:          60 * time.Second,
		ReferralMultiplierStep: decimal.RequireFromString("0.1"),
		MaxReferralMultiplier:  decimal.RequireFromString("2.0"),
		CurrencyPrecision:      2,
		Consistency:            ConsistencySerialized,
	}
}

func (e Economy) Validate() error {
	var errs []error
	if e.MaxEnergy <= 0 {
		errs = append(errs, errors.New("max_energy must be positive"))
	}
	if e.DefaultEnergyRefillRateMs <= 0 {
		errs = append(errs, errors.New("default_energy_refill_rate_ms must be positive"))
	}
	if e.CostPerEnergy.IsNegative() {
		errs = append(errs, errors.New("cost_per_energy must not be negative"))
	}
	for _, t := range models.AssetTypes {
		cost, ok := e.AssetCosts[t]
		if !ok {
			errs = append(errs, fmt.Errorf("asset_costs.%s missing", t))
		} else if cost.IsNegative() {
			errs = append(errs, fmt.Errorf("asset_costs.%s must not be negative", t))
		}
	}
	if e.BoostDuration <= 0 {
		errs = append(errs, errors.New("boost_duration must be positive"))
	}
	if e.ReferralMultiplierStep.IsNegative() {
		errs = append(errs, errors.New("referral_multiplier_step must not be negative"))
	}
	if e.MaxReferralMultiplier.LessThan(decimal.NewFromInt(1)) {
		errs = append(errs, errors.New("max_referral_multiplier must be >= 1"))
	}
	if e.CurrencyPrecision < 0 {
		errs = append(errs, errors.New("currency_precision must not be negative"))
	}
	switch e.Consistency {
	case ConsistencySerialized, ConsistencyLegacy:
	default:
		errs = append(errs, fmt.Errorf("unknown consistency mode %q", e.Consistency))
	}
	return errors.Join(errs...)
}

// economyFile is the YAML shape; decimals are strings to keep them exact.
type economyFile struct {
	MaxEnergy                 *int              `yaml:"max_energy"`
	DefaultEnergyRefillRateMs *int64            `yaml:"default_energy_refill_rate_ms"`
	CostPerEnergy             *string           `yaml:"cost_per_energy"`
	AssetCosts                map[string]string `yaml:"asset_costs"`
	BoostDuration             *time.Duration    `yaml:"boost_duration"`
	ReferralMultiplierStep    *string           `yaml:"referral_multiplier_step"`
	MaxReferralMultiplier     *string           `yaml:"max_referral_multiplier"`
	CurrencyPrecision         *int32            `yaml:"currency_precision"`
	Consistency               *string           `yaml:"consistency"`
}

// LoadEconomyFile overlays the YAML file at path on base.
func LoadEconomyFile(path string, base Economy) (Economy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read economy config %s: %w", path, err)
	}
	var f economyFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return base, fmt.Errorf("parse economy config %s: %w", path, err)
	}

	out := base
	out.AssetCosts = make(map[models.AssetType]decimal.Decimal, len(base.AssetCosts))
	for k, v := range base.AssetCosts {
		out.AssetCosts[k] = v
	}

	if f.MaxEnergy != nil {
		out.MaxEnergy = *f.MaxEnergy
	}
	if f.DefaultEnergyRefillRateMs != nil {
		out.DefaultEnergyRefillRateMs = *f.DefaultEnergyRefillRateMs
	}
	if f.BoostDuration != nil {
		out.BoostDuration = *f.BoostDuration
	}
	if f.CurrencyPrecision != nil {
		out.CurrencyPrecision = *f.CurrencyPrecision
	}
	if f.Consistency != nil {
		out.Consistency = ConsistencyMode(*f.Consistency)
	}
	decimals := []struct {
		key string
		src *string
		dst *decimal.Decimal
	}{
		{"cost_per_energy", f.CostPerEnergy, &out.CostPerEnergy},
		{"referral_multiplier_step", f.ReferralMultiplierStep, &out.ReferralMultiplierStep},
		{"max_referral_multiplier", f.MaxReferralMultiplier, &out.MaxReferralMultiplier},
	}
	for _, d := range decimals {
		if d.src == nil {
			continue
		}
		v, err := decimal.NewFromString(*d.src)
		if err != nil {
			return base, fmt.Errorf("parse economy config %s: %s: %w", path, d.key, err)
		}
		*d.dst = v
	}
	for asset, cost := range f.AssetCosts {
		t := models.AssetType(asset)
		if !t.Valid() {
			return base, fmt.Errorf("parse economy config %s: unknown asset %q", path, asset)
		}
		d, err := decimal.NewFromString(cost)
		if err != nil {
			return base, fmt.Errorf("parse economy config %s: asset %s: %w", path, asset, err)
		}
		out.AssetCosts[t] = d
	}
	return out, nil
}

// Config is the full service configuration.
type Config struct {
	Port           string
	DatabaseURL    string
	StoreDriver    string // postgres | memory
	AllowedOrigins []string

	LevelsObjectKey      string
	LevelRefreshInterval time.Duration

	RedemptionFeedURL      string
	RedemptionPollInterval time.Duration
	ServiceToken           string

	Economy Economy
}

// Load reads .env (if present), the environment and ECONOMY_CONFIG.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	cfg := Config{
		Port:                   getEnv("PORT", "5200"),
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		StoreDriver:            strings.ToLower(getEnv("STORE_DRIVER", "postgres")),
		AllowedOrigins:         splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
		LevelsObjectKey:        os.Getenv("LEVELS_OBJECT_KEY"),
		LevelRefreshInterval:   getEnvDuration("LEVEL_REFRESH_INTERVAL", 5*time.Minute),
		RedemptionFeedURL:      os.Getenv("REDEMPTION_FEED_URL"),
		RedemptionPollInterval: getEnvDuration("REDEMPTION_POLL_INTERVAL", 10*time.Second),
		ServiceToken:           os.Getenv("GAME_SERVICE_TOKEN"),
		Economy:                DefaultEconomy(),
	}

	if path := os.Getenv("ECONOMY_CONFIG"); path != "" {
		econ, err := LoadEconomyFile(path, cfg.Economy)
		if err != nil {
			return cfg, err
		}
		cfg.Economy = econ
	}
	if mode := os.Getenv("ECONOMY_CONSISTENCY"); mode != "" {
		cfg.Economy.Consistency = ConsistencyMode(strings.ToLower(mode))
	}
	if val := getEnvInt("ENERGY_REFILL_RATE_MS"); val > 0 {
		cfg.Economy.DefaultEnergyRefillRateMs = int64(val)
	}

	switch cfg.StoreDriver {
	case "postgres":
		if cfg.DatabaseURL == "" {
			return cfg, errors.New("DATABASE_URL environment variable not set")
		}
	case "memory":
	default:
		return cfg, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
	if cfg.RedemptionFeedURL != "" && cfg.ServiceToken == "" {
		return cfg, errors.New("GAME_SERVICE_TOKEN environment variable is required for the redemption feed")
	}
	if err := cfg.Economy.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid economy config: %w", err)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return 0
	}
	return v
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("⚠️  invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
