package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Identity backends.
const (
	BackendMemory   = "memory"
	BackendFirebase = "firebase"
	BackendOIDC     = "oidc"
)

// Config represents the complete application configuration
type Config struct {
	Listen   ListenConfig   `yaml:"listen"`
	Identity IdentityConfig `yaml:"identity"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Limits   LimitsConfig   `yaml:"limits"`
	TLS      TLSConfig      `yaml:"tls"`
	Log      LogConfig      `yaml:"log"`
}

// ListenConfig defines where the daemon listens for requests
type ListenConfig struct {
	HTTP   string `yaml:"http"`   // HTTP API address (e.g., "127.0.0.1:9000")
	Socket string `yaml:"socket"` // Unix control socket path
}

// IdentityConfig selects and configures the identity provider
type IdentityConfig struct {
	Backend        string         `yaml:"backend"`         // memory, firebase, oidc
	CredentialFile string         `yaml:"credential_file"` // persisted session for remote backends
	Memory         MemoryConfig   `yaml:"memory"`
	Firebase       FirebaseConfig `yaml:"firebase"`
	OIDC           OIDCConfig     `yaml:"oidc"`
}

// MemoryConfig configures the in-process backend used for development
type MemoryConfig struct {
	Latency time.Duration `yaml:"latency"` // artificial delay per call
	Users   []MemoryUser  `yaml:"users"`   // accounts seeded at startup
}

// MemoryUser is a seeded development account
type MemoryUser struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

// FirebaseConfig defines Identity Toolkit settings
type FirebaseConfig struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"` // override for emulators
	Timeout time.Duration `yaml:"timeout"`
}

// OIDCConfig defines OIDC/OAuth2 settings for the password-grant backend
type OIDCConfig struct {
	Issuer         string        `yaml:"issuer"`          // issuer URL used for discovery
	ClientID       string        `yaml:"client_id"`       // OIDC client ID
	ClientSecret   string        `yaml:"client_secret"`   // empty for public clients
	Scopes         []string      `yaml:"scopes"`          // OIDC scopes
	UsernameClaims []string      `yaml:"username_claims"` // first present claim becomes the username
	Timeout        time.Duration `yaml:"timeout"`
}

// CatalogConfig points at an optional catalog override file
type CatalogConfig struct {
	File string `yaml:"file"` // empty uses the embedded catalog
}

// LimitsConfig defines per-client request rate limits for the HTTP API
type LimitsConfig struct {
	Rate      float64 `yaml:"rate"`       // requests per second
	Burst     int     `yaml:"burst"`      // burst size
	AuthRate  float64 `yaml:"auth_rate"`  // requests per second on auth endpoints
	AuthBurst int     `yaml:"auth_burst"` // burst size on auth endpoints
}

// TLSConfig defines TLS settings for the HTTP server
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// LogConfig defines logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment variable overrides
	cfg.applyEnvOverrides()

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Listen: ListenConfig{
			HTTP:   "127.0.0.1:9000",
			Socket: "/run/simplifyhealth/control.sock",
		},
		Identity: IdentityConfig{
			Backend:        BackendMemory,
			CredentialFile: "/var/lib/simplifyhealth/credential.json",
			Firebase: FirebaseConfig{
				Timeout: 10 * time.Second,
			},
			OIDC: OIDCConfig{
				Scopes:         []string{"openid", "profile", "email"},
				UsernameClaims: []string{"email", "preferred_username", "sub"},
				Timeout:        10 * time.Second,
			},
		},
		Limits: LimitsConfig{
			Rate:      10,
			Burst:     20,
			AuthRate:  1,
			AuthBurst: 5,
		},
		TLS: TLSConfig{
			Enabled: false,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// applyEnvOverrides applies environment variable overrides
func (c *Config) applyEnvOverrides() {
	// Identity overrides
	if v := os.Getenv("SIMPLIFYHEALTH_IDENTITY_BACKEND"); v != "" {
		c.Identity.Backend = v
	}
	if v := os.Getenv("SIMPLIFYHEALTH_CREDENTIAL_FILE"); v != "" {
		c.Identity.CredentialFile = v
	}
	if v := os.Getenv("SIMPLIFYHEALTH_FIREBASE_API_KEY"); v != "" {
		c.Identity.Firebase.APIKey = v
	}
	if v := os.Getenv("SIMPLIFYHEALTH_FIREBASE_BASE_URL"); v != "" {
		c.Identity.Firebase.BaseURL = v
	}
	if v := os.Getenv("SIMPLIFYHEALTH_OIDC_ISSUER"); v != "" {
		c.Identity.OIDC.Issuer = v
	}
	if v := os.Getenv("SIMPLIFYHEALTH_OIDC_CLIENT_ID"); v != "" {
		c.Identity.OIDC.ClientID = v
	}
	if v := os.Getenv("SIMPLIFYHEALTH_OIDC_CLIENT_SECRET"); v != "" {
		c.Identity.OIDC.ClientSecret = v
	}

	// Catalog override
	if v := os.Getenv("SIMPLIFYHEALTH_CATALOG_FILE"); v != "" {
		c.Catalog.File = v
	}

	// Log overrides
	if v := os.Getenv("SIMPLIFYHEALTH_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("SIMPLIFYHEALTH_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}

	// Listen overrides
	if v := os.Getenv("SIMPLIFYHEALTH_LISTEN_HTTP"); v != "" {
		c.Listen.HTTP = v
	}
	if v := os.Getenv("SIMPLIFYHEALTH_LISTEN_SOCKET"); v != "" {
		c.Listen.Socket = v
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if err := c.Identity.validate(); err != nil {
		return err
	}

	// Validate limits
	if c.Limits.Rate <= 0 || c.Limits.AuthRate <= 0 {
		return fmt.Errorf("limits.rate and limits.auth_rate must be positive")
	}
	if c.Limits.Burst <= 0 || c.Limits.AuthBurst <= 0 {
		return fmt.Errorf("limits.burst and limits.auth_burst must be positive")
	}

	// Validate TLS config
	if c.TLS.Enabled {
		if c.TLS.CertFile == "" || c.TLS.KeyFile == "" {
			return fmt.Errorf("tls.cert_file and tls.key_file are required when TLS is enabled")
		}

		// Check if files exist
		if _, err := os.Stat(c.TLS.CertFile); err != nil {
			return fmt.Errorf("tls.cert_file not found: %w", err)
		}
		if _, err := os.Stat(c.TLS.KeyFile); err != nil {
			return fmt.Errorf("tls.key_file not found: %w", err)
		}
	}

	// Validate log config
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("log.format must be one of: json, text")
	}

	// Validate listen config
	if c.Listen.HTTP == "" {
		return fmt.Errorf("listen.http is required")
	}
	if c.Listen.Socket == "" {
		return fmt.Errorf("listen.socket is required")
	}

	return nil
}

func (c *IdentityConfig) validate() error {
	switch c.Backend {
	case BackendMemory:
		if c.Memory.Latency < 0 {
			return fmt.Errorf("identity.memory.latency must not be negative")
		}
		for i, u := range c.Memory.Users {
			if u.Email == "" || u.Password == "" {
				return fmt.Errorf("identity.memory.users[%d] needs email and password", i)
			}
		}
		return nil

	case BackendFirebase:
		if c.CredentialFile == "" {
			return fmt.Errorf("identity.credential_file is required for the firebase backend")
		}
		if c.Firebase.APIKey == "" {
			return fmt.Errorf("identity.firebase.api_key is required")
		}
		if c.Firebase.BaseURL != "" && !isHTTPURL(c.Firebase.BaseURL) {
			return fmt.Errorf("identity.firebase.base_url must be a valid HTTP(S) URL")
		}
		if c.Firebase.Timeout <= 0 {
			return fmt.Errorf("identity.firebase.timeout must be positive")
		}
		return nil

	case BackendOIDC:
		if c.CredentialFile == "" {
			return fmt.Errorf("identity.credential_file is required for the oidc backend")
		}
		return c.OIDC.validate()

	default:
		return fmt.Errorf("identity.backend must be one of: memory, firebase, oidc")
	}
}

func (c *OIDCConfig) validate() error {
	if c.Issuer == "" {
		return fmt.Errorf("identity.oidc.issuer is required")
	}
	if !isHTTPURL(c.Issuer) {
		return fmt.Errorf("identity.oidc.issuer must be a valid HTTP(S) URL")
	}

	if c.ClientID == "" {
		return fmt.Errorf("identity.oidc.client_id is required")
	}

	if len(c.Scopes) == 0 {
		return fmt.Errorf("identity.oidc.scopes must contain at least 'openid'")
	}
	hasOpenID := false
	for _, scope := range c.Scopes {
		if scope == "openid" {
			hasOpenID = true
			break
		}
	}
	if !hasOpenID {
		return fmt.Errorf("identity.oidc.scopes must include 'openid'")
	}

	if len(c.UsernameClaims) == 0 {
		return fmt.Errorf("identity.oidc.username_claims must not be empty")
	}
	for _, claim := range c.UsernameClaims {
		if strings.TrimSpace(claim) == "" {
			return fmt.Errorf("identity.oidc.username_claims must not contain empty names")
		}
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("identity.oidc.timeout must be positive")
	}

	return nil
}

func isHTTPURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// SetupLogging configures the global slog logger based on the LogConfig.
func SetupLogging(cfg *LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}

const redacted = "[REDACTED]"

// Redact returns a deep-enough copy of the config with secrets redacted for safe logging
func (c *Config) Redact() *Config {
	out := *c
	// Deep copy slices to avoid sharing underlying arrays with the original
	if c.Identity.OIDC.Scopes != nil {
		out.Identity.OIDC.Scopes = append([]string(nil), c.Identity.OIDC.Scopes...)
	}
	if c.Identity.OIDC.UsernameClaims != nil {
		out.Identity.OIDC.UsernameClaims = append([]string(nil), c.Identity.OIDC.UsernameClaims...)
	}
	if c.Identity.Memory.Users != nil {
		out.Identity.Memory.Users = make([]MemoryUser, len(c.Identity.Memory.Users))
		for i, u := range c.Identity.Memory.Users {
			out.Identity.Memory.Users[i] = MemoryUser{Email: u.Email, Password: redacted}
		}
	}
	if out.Identity.OIDC.ClientSecret != "" {
		out.Identity.OIDC.ClientSecret = redacted
	}
	if out.Identity.Firebase.APIKey != "" {
		out.Identity.Firebase.APIKey = redacted
	}
	return &out
}
