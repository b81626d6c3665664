// Package config resolves askdb settings from ASKDB_-prefixed environment
// variables layered over per-profile defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LookupFunc matches os.LookupEnv so tests can feed settings from a map.
type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Database      DatabaseConfig
	ObjectStore   ObjectStoreConfig
	Ingest        IngestConfig
	Maintenance   MaintenanceConfig
	UI            UIConfig
	AI            AIConfig
	Query         QueryConfig
	Observability ObservabilityConfig
	Auth          AuthConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	Path            string
	BusyTimeout     time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

type ObjectStoreConfig struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
	// LocalDir is where artifacts land when no endpoint is configured.
	LocalDir string
}

// Enabled reports whether an object store endpoint is configured. Without one
// artifacts stay on the local filesystem.
func (c ObjectStoreConfig) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != ""
}

type IngestConfig struct {
	EligibilityURL string
	TotalSalesURL  string
	AdSalesURL     string
	HTTPTimeout    time.Duration
	BatchSize      int
}

type MaintenanceConfig struct {
	CheckpointInterval time.Duration
	RetentionInterval  time.Duration
	KeepArtifacts      int
	SafetyAge          time.Duration
	BackupDir          string
}

type UIConfig struct {
	Enabled          bool
	SchemaSampleRows int
}

type AIConfig struct {
	Provider    string
	BaseURL     string
	OllamaHost  string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

type QueryConfig struct {
	RowLimit    int
	Timeout     time.Duration
	AllowWrites bool
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

type AuthConfig struct {
	Required   bool
	StaticKeys string
}

// Default source URLs for the product dataset, published as CSV exports.
const (
	DefaultEligibilitySource = "https://docs.google.com/spreadsheets/d/1Loc32KsHwEGhLAahSfMA6t1aZdEvxJIPADxpdzZEZTw/export?format=csv&gid=95626969"
	DefaultTotalSalesSource  = "https://docs.google.com/spreadsheets/d/1ftXt9Z6uEXUMlIHSZK0CR2kLlNZyj8TUi4lQmMF6qWo/export?format=csv&gid=1942712772"
	DefaultAdSalesSource     = "https://docs.google.com/spreadsheets/d/1ZATJteA4sU7DXN-fqJxG8Td_Nwif5QB2fTQvGK8LegY/export?format=csv&gid=1720576947"
)

// LoadFromEnv reads configuration from process environment variables. A .env
// file in the working directory is merged in first when present; real
// environment variables always win.
func LoadFromEnv(serviceName string) (Config, error) {
	_ = godotenv.Load()
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, errors.New("lookup function is required")
	}

	profile, err := resolveProfile(lookup)
	if err != nil {
		return Config{}, err
	}
	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	env := reader{lookup: lookup}
	env.str("ASKDB_SERVICE_NAME", &cfg.Service.Name)

	env.str("ASKDB_HTTP_ADDR", &cfg.HTTP.Address)
	env.dur("ASKDB_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout)
	env.dur("ASKDB_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout)
	env.dur("ASKDB_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout)

	env.str("ASKDB_DB_PATH", &cfg.Database.Path)
	env.dur("ASKDB_DB_BUSY_TIMEOUT", &cfg.Database.BusyTimeout)
	env.num("ASKDB_DB_MAX_OPEN_CONNS", &cfg.Database.MaxOpenConns)
	env.num("ASKDB_DB_MAX_IDLE_CONNS", &cfg.Database.MaxIdleConns)
	env.dur("ASKDB_DB_CONN_MAX_IDLE_TIME", &cfg.Database.ConnMaxIdleTime)
	env.dur("ASKDB_DB_CONN_MAX_LIFETIME", &cfg.Database.ConnMaxLifetime)

	env.str("ASKDB_OBJECT_STORE_ENDPOINT", &cfg.ObjectStore.Endpoint)
	env.str("ASKDB_OBJECT_STORE_REGION", &cfg.ObjectStore.Region)
	env.str("ASKDB_OBJECT_STORE_BUCKET", &cfg.ObjectStore.Bucket)
	env.str("ASKDB_OBJECT_STORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID)
	env.str("ASKDB_OBJECT_STORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey)
	env.boolean("ASKDB_OBJECT_STORE_USE_SSL", &cfg.ObjectStore.UseSSL)
	env.str("ASKDB_OBJECT_STORE_PREFIX", &cfg.ObjectStore.Prefix)
	env.boolean("ASKDB_OBJECT_STORE_AUTO_CREATE_BUCKET", &cfg.ObjectStore.AutoCreateBucket)
	env.str("ASKDB_OBJECT_STORE_LOCAL_DIR", &cfg.ObjectStore.LocalDir)

	env.str("ASKDB_INGEST_ELIGIBILITY_URL", &cfg.Ingest.EligibilityURL)
	env.str("ASKDB_INGEST_TOTAL_SALES_URL", &cfg.Ingest.TotalSalesURL)
	env.str("ASKDB_INGEST_AD_SALES_URL", &cfg.Ingest.AdSalesURL)
	env.dur("ASKDB_INGEST_HTTP_TIMEOUT", &cfg.Ingest.HTTPTimeout)
	env.num("ASKDB_INGEST_BATCH_SIZE", &cfg.Ingest.BatchSize)

	env.dur("ASKDB_MAINTENANCE_CHECKPOINT_INTERVAL", &cfg.Maintenance.CheckpointInterval)
	env.dur("ASKDB_MAINTENANCE_RETENTION_INTERVAL", &cfg.Maintenance.RetentionInterval)
	env.num("ASKDB_MAINTENANCE_KEEP_ARTIFACTS", &cfg.Maintenance.KeepArtifacts)
	env.dur("ASKDB_MAINTENANCE_SAFETY_AGE", &cfg.Maintenance.SafetyAge)
	env.str("ASKDB_MAINTENANCE_BACKUP_DIR", &cfg.Maintenance.BackupDir)

	env.boolean("ASKDB_UI_ENABLED", &cfg.UI.Enabled)
	env.num("ASKDB_UI_SCHEMA_SAMPLE_ROWS", &cfg.UI.SchemaSampleRows)

	env.str("ASKDB_AI_PROVIDER", &cfg.AI.Provider)
	env.str("ASKDB_AI_BASE_URL", &cfg.AI.BaseURL)
	env.str("ASKDB_AI_OLLAMA_HOST", &cfg.AI.OllamaHost)
	env.str("ASKDB_AI_API_KEY", &cfg.AI.APIKey)
	env.str("ASKDB_AI_MODEL", &cfg.AI.Model)
	env.float("ASKDB_AI_TEMPERATURE", &cfg.AI.Temperature)
	env.dur("ASKDB_AI_TIMEOUT", &cfg.AI.Timeout)

	env.num("ASKDB_QUERY_ROW_LIMIT", &cfg.Query.RowLimit)
	env.dur("ASKDB_QUERY_TIMEOUT", &cfg.Query.Timeout)
	env.boolean("ASKDB_QUERY_ALLOW_WRITES", &cfg.Query.AllowWrites)

	env.boolean("ASKDB_LOG_JSON", &cfg.Observability.LogJSON)
	env.level("ASKDB_LOG_LEVEL", &cfg.Observability.LogLevel)

	env.boolean("ASKDB_AUTH_REQUIRED", &cfg.Auth.Required)
	env.str("ASKDB_AUTH_API_KEYS", &cfg.Auth.StaticKeys)

	if err := errors.Join(env.errs...); err != nil {
		return Config{}, err
	}

	// The gemini provider honors the key name its console documents.
	if cfg.AI.Provider == "gemini" && cfg.AI.APIKey == "" {
		if raw, ok := lookup("GOOGLE_API_KEY"); ok {
			cfg.AI.APIKey = strings.TrimSpace(raw)
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func resolveProfile(lookup LookupFunc) (Profile, error) {
	raw, ok := lookup("ASKDB_PROFILE")
	if !ok {
		return ProfileDev, nil
	}
	profile := Profile(strings.ToLower(strings.TrimSpace(raw)))
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return profile, nil
	}
	return "", fmt.Errorf("invalid ASKDB_PROFILE: %q", profile)
}

func (c Config) validate() error {
	switch {
	case c.Service.Name == "":
		return errors.New("service name is required")
	case c.HTTP.Address == "":
		return errors.New("http address is required")
	case c.Database.Path == "":
		return errors.New("database path is required")
	case c.Query.RowLimit <= 0:
		return errors.New("invalid ASKDB_QUERY_ROW_LIMIT: must be > 0")
	case c.Ingest.BatchSize <= 0:
		return errors.New("invalid ASKDB_INGEST_BATCH_SIZE: must be > 0")
	case c.UI.SchemaSampleRows < 0 || c.UI.SchemaSampleRows > 20:
		return errors.New("invalid ASKDB_UI_SCHEMA_SAMPLE_ROWS: must be between 0 and 20")
	case c.AI.Temperature < 0 || c.AI.Temperature > 2:
		return errors.New("invalid ASKDB_AI_TEMPERATURE: must be between 0 and 2")
	}
	return nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "askdb-api"},
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Path:            "product_data.db",
			BusyTimeout:     5 * time.Second,
			MaxOpenConns:    8,
			MaxIdleConns:    8,
			ConnMaxIdleTime: 5 * time.Minute,
			ConnMaxLifetime: 30 * time.Minute,
		},
		ObjectStore: ObjectStoreConfig{
			Region:           "us-east-1",
			Bucket:           "askdb",
			AccessKeyID:      "minio",
			SecretAccessKey:  "miniostorage",
			AutoCreateBucket: true,
			LocalDir:         "artifacts",
		},
		Ingest: IngestConfig{
			EligibilityURL: DefaultEligibilitySource,
			TotalSalesURL:  DefaultTotalSalesSource,
			AdSalesURL:     DefaultAdSalesSource,
			HTTPTimeout:    60 * time.Second,
			BatchSize:      500,
		},
		Maintenance: MaintenanceConfig{
			CheckpointInterval: 5 * time.Minute,
			RetentionInterval:  time.Hour,
			KeepArtifacts:      5,
			SafetyAge:          time.Hour,
			BackupDir:          "backups",
		},
		UI: UIConfig{Enabled: true, SchemaSampleRows: 5},
		AI: AIConfig{
			Provider:    "gemini",
			BaseURL:     "https://api.openai.com",
			OllamaHost:  "http://localhost:11434",
			Temperature: 0.1,
			Timeout:     30 * time.Second,
		},
		Query:         QueryConfig{RowLimit: 1000, Timeout: 15 * time.Second},
		Observability: ObservabilityConfig{LogLevel: slog.LevelDebug, LogJSON: true},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.Observability.LogLevel = slog.LevelWarn
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Auth.Required = true
		cfg.ObjectStore.UseSSL = true
		cfg.ObjectStore.AutoCreateBucket = false
	}
	return cfg
}

// reader applies environment overrides, collecting parse failures so Load
// can report them together.
type reader struct {
	lookup LookupFunc
	errs   []error
}

func (r *reader) get(key string) (string, bool) {
	raw, ok := r.lookup(key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(raw), true
}

func (r *reader) fail(key string, err error) {
	r.errs = append(r.errs, fmt.Errorf("invalid %s: %w", key, err))
}

func (r *reader) str(key string, dst *string) {
	if raw, ok := r.get(key); ok {
		*dst = raw
	}
}

func (r *reader) dur(key string, dst *time.Duration) {
	raw, ok := r.get(key)
	if !ok {
		return
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		r.fail(key, err)
		return
	}
	*dst = value
}

func (r *reader) num(key string, dst *int) {
	raw, ok := r.get(key)
	if !ok {
		return
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		r.fail(key, err)
		return
	}
	*dst = value
}

func (r *reader) float(key string, dst *float64) {
	raw, ok := r.get(key)
	if !ok {
		return
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		r.fail(key, err)
		return
	}
	*dst = value
}

func (r *reader) boolean(key string, dst *bool) {
	raw, ok := r.get(key)
	if !ok {
		return
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		r.fail(key, err)
		return
	}
	*dst = value
}

func (r *reader) level(key string, dst *slog.Level) {
	raw, ok := r.get(key)
	if !ok {
		return
	}
	switch strings.ToLower(raw) {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		r.fail(key, fmt.Errorf("unknown level %q", raw))
	}
}
