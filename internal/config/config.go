package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config represents the main configuration for the API server.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Site     SiteConfig     `toml:"site"`
	Database DatabaseConfig `toml:"database"`
	Cache    CacheConfig    `toml:"cache"`
	Media    MediaConfig    `toml:"media"`
	Remote   RemoteConfig   `toml:"remote"`
	OAuth    OAuthConfig    `toml:"oauth"`
	Log      LogConfig      `toml:"log"`
	NATS     NATSConfig     `toml:"nats"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
	// BaseURL is the public origin, e.g. https://blog.example.org.
	BaseURL string `toml:"base_url"`
}

// SiteConfig describes the blog as presented in the instance documents.
type SiteConfig struct {
	Domain       string `toml:"domain"`
	Title        string `toml:"title"`
	Description  string `toml:"description"`
	ContactEmail string `toml:"contact_email"`
	Language     string `toml:"language"`
	Thumbnail    string `toml:"thumbnail"`
}

// DatabaseConfig uses a tagged union pattern: Type selects the relevant fields.
type DatabaseConfig struct {
	Type string `toml:"type"` // "mysql", "sqlite" or "memory"

	// mysql; DSN, when set, replaces the individual fields
	DSN      string `toml:"dsn,omitempty"`
	User     string `toml:"user,omitempty"`
	Password string `toml:"password,omitempty"`
	Host     string `toml:"host,omitempty"`
	Name     string `toml:"name,omitempty"`

	// sqlite
	Path string `toml:"path,omitempty"`
}

type CacheConfig struct {
	Type          string `toml:"type"` // "memory", "database" or "redis"
	RedisAddr     string `toml:"redis_addr,omitempty"`
	RedisPassword string `toml:"redis_password,omitempty"`
	RedisDB       int    `toml:"redis_db,omitempty"`
}

type MediaConfig struct {
	Type    string `toml:"type"` // "memory", "filesystem" or "s3"
	BaseURL string `toml:"base_url"`

	// filesystem
	Root string `toml:"root,omitempty"`

	// s3
	S3Bucket    string `toml:"s3_bucket,omitempty"`
	S3Prefix    string `toml:"s3_prefix,omitempty"`
	S3Region    string `toml:"s3_region,omitempty"`
	S3Endpoint  string `toml:"s3_endpoint,omitempty"`
	S3AccessKey string `toml:"s3_access_key,omitempty"`
	S3SecretKey string `toml:"s3_secret_key,omitempty"`
}

type RemoteConfig struct {
	// AllowHosts, when non-empty, restricts outbound fetches to these hosts.
	AllowHosts      []string `toml:"allow_hosts"`
	MetadataTimeout Duration `toml:"metadata_timeout"`
	ContextTimeout  Duration `toml:"context_timeout"`
	UserAgent       string   `toml:"user_agent"`
}

type OAuthConfig struct {
	SessionSecret string   `toml:"session_secret"`
	TokenLifetime Duration `toml:"token_lifetime"`
	CodeLifetime  Duration `toml:"code_lifetime"`
	SweepInterval Duration `toml:"sweep_interval"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "console" or "json"
}

type NATSConfig struct {
	// URL enables the NATS refresh queue when set.
	URL     string `toml:"url"`
	Subject string `toml:"subject"`
}

// Duration is a time.Duration decoded from a TOML string such as "5s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns a Config usable for a single-node sqlite deployment.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:    ":8080",
			BaseURL: "http://localhost:8080",
		},
		Site: SiteConfig{
			Domain:   "localhost",
			Title:    "My Blog",
			Language: "en",
		},
		Database: DatabaseConfig{Type: "sqlite", Path: "wpmastodon.db"},
		Cache:    CacheConfig{Type: "database"},
		Media:    MediaConfig{Type: "filesystem", Root: "uploads", BaseURL: "http://localhost:8080/uploads"},
		Remote: RemoteConfig{
			MetadataTimeout: Duration{5 * time.Second},
			ContextTimeout:  Duration{20 * time.Second},
			UserAgent:       "wpmastodon",
		},
		OAuth: OAuthConfig{
			TokenLifetime: Duration{2 * 365 * 24 * time.Hour},
			CodeLifetime:  Duration{24 * time.Hour},
			SweepInterval: Duration{time.Hour},
		},
		Log:  LogConfig{Level: "info", Format: "console"},
		NATS: NATSConfig{Subject: "wpmastodon.refresh"},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader on top of the defaults.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	cfg := Default()
	if _, err := toml.NewDecoder(r).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// Load reads the .env file if present, then the config file at path (a
// missing file yields the defaults), then applies environment overrides.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := Default()
	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		m := &Manager{}
		if cfg, err = m.Read(f); err != nil {
			return nil, fmt.Errorf("reading config from %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	ApplyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides file values with environment variables.
func ApplyEnv(cfg *Config) {
	cfg.Server.Addr = getEnv("WPM_ADDR", cfg.Server.Addr)
	cfg.Server.BaseURL = getEnv("WPM_BASE_URL", cfg.Server.BaseURL)

	if v := os.Getenv("WPM_DB_DSN"); v != "" {
		cfg.Database.Type = "mysql"
		cfg.Database.DSN = v
	}
	if v := os.Getenv("MYSQL_HOST"); v != "" {
		cfg.Database.Type = "mysql"
		cfg.Database.Host = v
	}
	cfg.Database.User = getEnv("MYSQL_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("MYSQL_PASSWORD", cfg.Database.Password)
	cfg.Database.Name = getEnv("MYSQL_DATABASE", cfg.Database.Name)

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.Type = "redis"
		cfg.Cache.RedisAddr = v
	}
	cfg.Cache.RedisPassword = getEnv("REDIS_PASSWORD", cfg.Cache.RedisPassword)
	cfg.Cache.RedisDB = getEnvAsInt("REDIS_DB", cfg.Cache.RedisDB)

	cfg.Media.S3AccessKey = getEnv("AWS_ACCESS_KEY_ID", cfg.Media.S3AccessKey)
	cfg.Media.S3SecretKey = getEnv("AWS_SECRET_ACCESS_KEY", cfg.Media.S3SecretKey)
	cfg.Media.S3Region = getEnv("AWS_REGION", cfg.Media.S3Region)

	cfg.OAuth.SessionSecret = getEnv("WPM_SESSION_SECRET", cfg.OAuth.SessionSecret)
	cfg.NATS.URL = getEnv("NATS_URL", cfg.NATS.URL)
	cfg.Log.Level = getEnv("WPM_LOG_LEVEL", cfg.Log.Level)
}

// Validate checks the fields every command depends on.
func (c *Config) Validate() error {
	switch c.Database.Type {
	case "mysql":
		if c.Database.DSN == "" && (c.Database.Host == "" || c.Database.Name == "") {
			return fmt.Errorf("mysql database requires host and name")
		}
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("sqlite database requires path")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown database type: %s", c.Database.Type)
	}
	if c.Site.Domain == "" {
		return fmt.Errorf("site.domain is required")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
