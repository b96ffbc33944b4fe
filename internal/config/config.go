// Package config resolves process configuration from the environment, with
// .env.local and .env files as fallback.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var (
	ErrMissingDBHost = errors.New("database host is not configured")
	ErrMissingDBUser = errors.New("database user is not configured")
)

// DBConfig describes a PostgreSQL connection.
type DBConfig struct {
	Host     string
	Port     int
	Name     string
	Username string
	Password string
	SSLMode  string
}

// Configured reports whether a host was provided at all.
func (c DBConfig) Configured() bool { return c.Host != "" }

// Validate checks the fields required to open a connection.
func (c DBConfig) Validate() error {
	if c.Host == "" {
		return ErrMissingDBHost
	}
	if c.Username == "" {
		return ErrMissingDBUser
	}
	return nil
}

// DSN renders the connection as a postgres:// URL.
func (c DBConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.Username, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   "/" + c.Name,
	}
	q := url.Values{}
	q.Set("sslmode", c.SSLMode)
	q.Set("connect_timeout", "10")
	u.RawQuery = q.Encode()
	return u.String()
}

type ServerConfig struct {
	Port        string
	CORSOrigins []string
}

type StoreConfig struct {
	Dir       string
	RemoteURL string
	S3URI     string
	CacheTTL  time.Duration
	FreshTTL  time.Duration
}

type PipelineConfig struct {
	MegaPlanilhaPath string
	DengueDir        string
	EpiWeekLimit     int
	SchemaVersion    string
}

type CacheConfig struct {
	RedisURL    string
	ResponseTTL time.Duration
}

type GISConfig struct {
	DB         DBConfig
	BancoTable string
	POIsTable  string
	Optional   bool
}

type Config struct {
	Server    ServerConfig
	GIS       GISConfig
	Warehouse DBConfig
	Store     StoreConfig
	Pipeline  PipelineConfig
	Cache     CacheConfig

	OpenWeatherKey string
	GroqKey        string
	GroqModel      string

	SentryDSN         string
	SentryEnvironment string

	// AdminAPIKey, when set, is registered as an admin key at startup.
	AdminAPIKey string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8000")
	v.SetDefault("CORS_ALLOW_ORIGINS", "*")

	v.SetDefault("GIS_DB_PORT", 5432)
	v.SetDefault("GIS_DB_SSL_MODE", "prefer")
	v.SetDefault("GIS_BANCO_TABLE", "banco_techdengue")
	v.SetDefault("GIS_POIS_TABLE", "planilha_campo")
	v.SetDefault("GIS_OPTIONAL", true)

	v.SetDefault("WAREHOUSE_DB_PORT", 5432)
	v.SetDefault("WAREHOUSE_DB_SSL_MODE", "prefer")

	v.SetDefault("DATASETS_DIR", "./data/gold")
	v.SetDefault("CACHE_TTL_SECONDS", 300)
	v.SetDefault("DATASET_FRESH_TTL_SECONDS", 86400)

	v.SetDefault("MEGAPLANILHA_PATH", "./data/base/mega_planilha.xlsx")
	v.SetDefault("DENGUE_DIR", "./data/base/dengue")
	v.SetDefault("EPI_WEEK_LIMIT", 0)
	v.SetDefault("SCHEMA_VERSION", "2.0.0")

	v.SetDefault("RESPONSE_CACHE_TTL_SECONDS", 3600)
	v.SetDefault("GROQ_MODEL", "llama-3.1-70b-versatile")
	v.SetDefault("SENTRY_ENVIRONMENT", "development")
}

func dbFrom(v *viper.Viper, prefix string) DBConfig {
	return DBConfig{
		Host:     strings.TrimSpace(v.GetString(prefix + "_HOST")),
		Port:     v.GetInt(prefix + "_PORT"),
		Name:     v.GetString(prefix + "_NAME"),
		Username: v.GetString(prefix + "_USERNAME"),
		Password: v.GetString(prefix + "_PASSWORD"),
		SSLMode:  v.GetString(prefix + "_SSL_MODE"),
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Load reads .env.local and .env (variables already set in the process win)
// and resolves the typed configuration.
func Load() (*Config, error) {
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env")
	return FromViper(viper.New())
}

// FromViper resolves configuration from v with environment binding enabled.
func FromViper(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{
			Port:        v.GetString("PORT"),
			CORSOrigins: splitList(v.GetString("CORS_ALLOW_ORIGINS")),
		},
		GIS: GISConfig{
			DB:         dbFrom(v, "GIS_DB"),
			BancoTable: v.GetString("GIS_BANCO_TABLE"),
			POIsTable:  v.GetString("GIS_POIS_TABLE"),
			Optional:   v.GetBool("GIS_OPTIONAL"),
		},
		Warehouse: dbFrom(v, "WAREHOUSE_DB"),
		Store: StoreConfig{
			Dir:       v.GetString("DATASETS_DIR"),
			RemoteURL: strings.TrimSpace(v.GetString("DATASETS_REMOTE_URL")),
			S3URI:     strings.TrimSpace(v.GetString("DATASETS_S3_URI")),
			CacheTTL:  time.Duration(v.GetInt("CACHE_TTL_SECONDS")) * time.Second,
			FreshTTL:  time.Duration(v.GetInt("DATASET_FRESH_TTL_SECONDS")) * time.Second,
		},
		Pipeline: PipelineConfig{
			MegaPlanilhaPath: v.GetString("MEGAPLANILHA_PATH"),
			DengueDir:        v.GetString("DENGUE_DIR"),
			EpiWeekLimit:     v.GetInt("EPI_WEEK_LIMIT"),
			SchemaVersion:    v.GetString("SCHEMA_VERSION"),
		},
		Cache: CacheConfig{
			RedisURL:    strings.TrimSpace(v.GetString("REDIS_URL")),
			ResponseTTL: time.Duration(v.GetInt("RESPONSE_CACHE_TTL_SECONDS")) * time.Second,
		},
		OpenWeatherKey:    strings.TrimSpace(v.GetString("OPENWEATHER_API_KEY")),
		GroqKey:           strings.TrimSpace(v.GetString("GROQ_API_KEY")),
		GroqModel:         v.GetString("GROQ_MODEL"),
		SentryDSN:         strings.TrimSpace(v.GetString("SENTRY_DSN")),
		SentryEnvironment: v.GetString("SENTRY_ENVIRONMENT"),
		AdminAPIKey:       strings.TrimSpace(v.GetString("TECHDENGUE_ADMIN_API_KEY")),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks configuration that must be correct at startup. The GIS
// database is only mandatory when the GIS endpoints may not fail soft.
func (c *Config) Validate() error {
	if !c.GIS.Optional {
		if err := c.GIS.DB.Validate(); err != nil {
			return fmt.Errorf("GIS_DB: %w", err)
		}
	}
	if c.Pipeline.EpiWeekLimit < 0 || c.Pipeline.EpiWeekLimit > 53 {
		return fmt.Errorf("EPI_WEEK_LIMIT must be within [0, 53], got %d", c.Pipeline.EpiWeekLimit)
	}
	if c.Store.CacheTTL < 0 || c.Cache.ResponseTTL < 0 {
		return errors.New("TTL values must not be negative")
	}
	return nil
}

// RequireWarehouse returns an error unless the warehouse DB is fully configured.
func (c *Config) RequireWarehouse() error {
	if err := c.Warehouse.Validate(); err != nil {
		return fmt.Errorf("WAREHOUSE_DB: %w", err)
	}
	return nil
}

// RequireGIS returns an error unless the GIS DB is fully configured.
func (c *Config) RequireGIS() error {
	if err := c.GIS.DB.Validate(); err != nil {
		return fmt.Errorf("GIS_DB: %w", err)
	}
	return nil
}
