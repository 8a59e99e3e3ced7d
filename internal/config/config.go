package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port       string   `mapstructure:"PORT"`
	Env        string   `mapstructure:"ENV"`
	DatabaseURL string  `mapstructure:"DATABASE_URL"`
	DBMaxConns int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns int32    `mapstructure:"DB_MIN_CONNS"`
	RedisURL   string   `mapstructure:"REDIS_URL"`

	AuthIssuer   string `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL  string `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience string `mapstructure:"AUTH_AUDIENCE"`

	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	// Session lifetime; expired sessions require a fresh wizard run.
	SessionTTL time.Duration `mapstructure:"SESSION_TTL"`

	// Manufacturer catalog source: a YAML file path, or empty to read the
	// catalog from Postgres.
	ManufacturerCatalog string `mapstructure:"MANUFACTURER_CATALOG"`

	// Collaborator service endpoints.
	ExtractionURL string `mapstructure:"EXTRACTION_URL"`
	EpisodesURL   string `mapstructure:"EPISODES_URL"`
	MappingURL    string `mapstructure:"MAPPING_URL"`
	RenderURL     string `mapstructure:"RENDER_URL"`
	ESignURL      string `mapstructure:"ESIGN_URL"`
	DispatchURL   string `mapstructure:"DISPATCH_URL"`
	ServiceToken  string `mapstructure:"SERVICE_TOKEN"`
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
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("SESSION_TTL", "2h")
	v.SetDefault("MANUFACTURER_CATALOG", "manufacturers.yaml")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("REDIS_URL")
	v.BindEnv("AUTH_ISSUER")
	v.BindEnv("AUTH_JWKS_URL")
	v.BindEnv("AUTH_AUDIENCE")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("SESSION_TTL")
	v.BindEnv("MANUFACTURER_CATALOG")
	v.BindEnv("EXTRACTION_URL")
	v.BindEnv("EPISODES_URL")
	v.BindEnv("MAPPING_URL")
	v.BindEnv("RENDER_URL")
	v.BindEnv("ESIGN_URL")
	v.BindEnv("DISPATCH_URL")
	v.BindEnv("SERVICE_TOKEN")

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

	if cfg.IsDev() {
		log.Println("WARNING: ============================================================")
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: DevAuthMiddleware is active; all requests get admin access.")
		log.Println("WARNING: Do NOT use this configuration in production.")
		log.Println("WARNING: Set ENV=production and configure AUTH_ISSUER for production.")
		log.Println("WARNING: ============================================================")
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

// Validate checks that the configuration is safe to run. Production mode
// requires real authentication and every collaborator endpoint; development
// tolerates missing services for partial local setups.
func (c *Config) Validate() error {
	if c.IsProduction() {
		if c.AuthIssuer == "" && c.AuthJWKSURL == "" {
			return fmt.Errorf("AUTH_ISSUER or AUTH_JWKS_URL must be set in production; " +
				"refusing to start without authentication configuration")
		}
		for name, url := range map[string]string{
			"EXTRACTION_URL": c.ExtractionURL,
			"EPISODES_URL":   c.EpisodesURL,
			"MAPPING_URL":    c.MappingURL,
			"RENDER_URL":     c.RenderURL,
			"ESIGN_URL":      c.ESignURL,
			"DISPATCH_URL":   c.DispatchURL,
		} {
			if url == "" {
				return fmt.Errorf("%s is required in production", name)
			}
		}
	}

	if c.SessionTTL < time.Minute {
		return fmt.Errorf("SESSION_TTL must be at least one minute, got %s", c.SessionTTL)
	}

	if c.ManufacturerCatalog == "" && c.DatabaseURL == "" {
		return fmt.Errorf("either MANUFACTURER_CATALOG or DATABASE_URL must be set " +
			"so the manufacturer catalog has a source")
	}

	return nil
}
