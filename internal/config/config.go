package config

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	JWTSecret string `mapstructure:"JWT_SECRET"`

	// Scoring weights for the overall confidence average. Injected rather
	// than hard-coded so tests can assert exact outputs for known weights.
	WeightCoding        float64 `mapstructure:"WEIGHT_CODING"`
	WeightEligibility   float64 `mapstructure:"WEIGHT_ELIGIBILITY"`
	WeightNecessity     float64 `mapstructure:"WEIGHT_NECESSITY"`
	WeightDocumentation float64 `mapstructure:"WEIGHT_DOCUMENTATION"`

	// Drift defaults applied to customers created without explicit tuning.
	DriftThreshold     float64 `mapstructure:"DRIFT_THRESHOLD"`
	DriftMinVolume     int     `mapstructure:"DRIFT_MIN_VOLUME"`
	BaselineWindowDays int     `mapstructure:"BASELINE_WINDOW_DAYS"`
	CurrentWindowDays  int     `mapstructure:"CURRENT_WINDOW_DAYS"`

	// Bounded wait for the customer row lock during drift detection.
	DriftLockTimeout time.Duration `mapstructure:"DRIFT_LOCK_TIMEOUT"`

	// Per-call bound on external action handler invocations.
	ActionTimeout time.Duration `mapstructure:"ACTION_TIMEOUT"`

	// 5-field cron expression for the weekly report sweep.
	ReportCronSpec string `mapstructure:"REPORT_CRON_SPEC"`

	// Directory report artifacts are written to.
	ReportArtifactDir string `mapstructure:"REPORT_ARTIFACT_DIR"`

	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("WEIGHT_CODING", 0.35)
	v.SetDefault("WEIGHT_ELIGIBILITY", 0.25)
	v.SetDefault("WEIGHT_NECESSITY", 0.20)
	v.SetDefault("WEIGHT_DOCUMENTATION", 0.20)
	v.SetDefault("DRIFT_THRESHOLD", 0.20)
	v.SetDefault("DRIFT_MIN_VOLUME", 30)
	v.SetDefault("BASELINE_WINDOW_DAYS", 90)
	v.SetDefault("CURRENT_WINDOW_DAYS", 7)
	v.SetDefault("DRIFT_LOCK_TIMEOUT", "5s")
	v.SetDefault("ACTION_TIMEOUT", "30s")
	v.SetDefault("REPORT_CRON_SPEC", "0 6 * * 1")
	v.SetDefault("REPORT_ARTIFACT_DIR", "./artifacts")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("JWT_SECRET")
	v.BindEnv("WEIGHT_CODING")
	v.BindEnv("WEIGHT_ELIGIBILITY")
	v.BindEnv("WEIGHT_NECESSITY")
	v.BindEnv("WEIGHT_DOCUMENTATION")
	v.BindEnv("DRIFT_THRESHOLD")
	v.BindEnv("DRIFT_MIN_VOLUME")
	v.BindEnv("BASELINE_WINDOW_DAYS")
	v.BindEnv("CURRENT_WINDOW_DAYS")
	v.BindEnv("DRIFT_LOCK_TIMEOUT")
	v.BindEnv("ACTION_TIMEOUT")
	v.BindEnv("REPORT_CRON_SPEC")
	v.BindEnv("REPORT_ARTIFACT_DIR")
	v.BindEnv("CORS_ORIGINS")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. The scoring
// weights must sum to 1.0: renormalizing silently would make persisted
// overall_confidence values irreproducible across deployments.
func (c *Config) Validate() error {
	sum := c.WeightCoding + c.WeightEligibility + c.WeightNecessity + c.WeightDocumentation
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("scoring weights must sum to 1.0, got %g", sum)
	}
	for name, w := range map[string]float64{
		"WEIGHT_CODING":        c.WeightCoding,
		"WEIGHT_ELIGIBILITY":   c.WeightEligibility,
		"WEIGHT_NECESSITY":     c.WeightNecessity,
		"WEIGHT_DOCUMENTATION": c.WeightDocumentation,
	} {
		if w < 0 {
			return fmt.Errorf("%s must not be negative, got %g", name, w)
		}
	}

	if c.DriftThreshold <= 0 {
		return fmt.Errorf("DRIFT_THRESHOLD must be positive, got %g", c.DriftThreshold)
	}
	if c.DriftMinVolume < 1 {
		return fmt.Errorf("DRIFT_MIN_VOLUME must be at least 1, got %d", c.DriftMinVolume)
	}
	if c.CurrentWindowDays < 1 || c.BaselineWindowDays < 1 {
		return fmt.Errorf("drift windows must be at least 1 day")
	}
	if c.BaselineWindowDays <= c.CurrentWindowDays {
		return fmt.Errorf("BASELINE_WINDOW_DAYS (%d) must exceed CURRENT_WINDOW_DAYS (%d)",
			c.BaselineWindowDays, c.CurrentWindowDays)
	}

	if c.IsProduction() && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required in production")
	}
	if c.DriftLockTimeout <= 0 {
		return fmt.Errorf("DRIFT_LOCK_TIMEOUT must be positive")
	}
	if c.ActionTimeout <= 0 {
		return fmt.Errorf("ACTION_TIMEOUT must be positive")
	}

	return nil
}
