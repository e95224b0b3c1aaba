// Package config handles loading and validation of service configuration.
// Development reads env vars (optionally seeded from a .env file) or a JSON
// config file; production loads backend credentials from Secret Manager.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/joho/godotenv"
)

// Config holds all service configuration.
type Config struct {
	Port        string `json:"port"`
	Environment string `json:"environment"` // "development" or "production"
	LogLevel    string `json:"log_level"`   // "debug", "info", "warn", "error"

	// CachePath is where the order cache file lives. Empty means the
	// cache is memory-only (useful for tests, pointless in production).
	CachePath string `json:"cache_path"`

	// GCPProject is required in production for Secret Manager access.
	GCPProject string `json:"gcp_project,omitempty"`

	Backend BackendConfig `json:"backend"`
}

// BackendConfig points at the order backend. In production this block is
// loaded from Secret Manager as JSON; in development from env vars or the
// config file.
type BackendConfig struct {
	APIBaseURL string `json:"api_base_url"`

	// APIKey is the static anonymous bearer key. It is public - it
	// identifies the storefront, not a user; there is no per-user auth
	// anywhere in this system.
	APIKey string `json:"api_key"`

	// PaystackPublicKey overrides the key fetched from the backend at
	// startup. Normally empty.
	PaystackPublicKey string `json:"paystack_public_key,omitempty"`

	// MinAPIVersion is the oldest backend version this client expects.
	MinAPIVersion string `json:"min_api_version,omitempty"`

	// BrowserTLS enables the Chrome-fingerprint transport for deployments
	// where the backend sits behind a fingerprint-sensitive CDN.
	BrowserTLS bool `json:"browser_tls,omitempty"`
}

// Load reads configuration. Priority: CONFIG_FILE (if set) → env vars, with
// the backend block coming from Secret Manager in production. A .env file
// in the working directory seeds the environment when present.
func Load(ctx context.Context) (*Config, error) {
	// Best effort; absence of a .env file is the normal case outside dev.
	godotenv.Load()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		return loadFromFile(path)
	}

	cfg := &Config{
		Port:        envOrDefault("PORT", "8080"),
		Environment: envOrDefault("ENVIRONMENT", "development"),
		LogLevel:    envOrDefault("LOG_LEVEL", "info"),
		CachePath:   os.Getenv("CACHE_PATH"),
		GCPProject:  os.Getenv("GCP_PROJECT"),
	}

	var err error
	if cfg.Environment == "production" {
		if cfg.GCPProject == "" {
			return nil, fmt.Errorf("GCP_PROJECT required in production environment")
		}
		err = cfg.loadBackendFromSecretManager(ctx)
	} else {
		cfg.loadBackendFromEnv()
	}
	if err != nil {
		return nil, fmt.Errorf("loading backend config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile reads the whole configuration from a JSON file. Used for
// local development to avoid juggling env vars.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	cfg := &Config{
		Port:        "8080",
		Environment: "development",
		LogLevel:    "info",
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadBackendFromEnv() {
	c.Backend = BackendConfig{
		APIBaseURL:        os.Getenv("API_BASE_URL"),
		APIKey:            os.Getenv("API_KEY"),
		PaystackPublicKey: os.Getenv("PAYSTACK_PUBLIC_KEY"),
		MinAPIVersion:     os.Getenv("MIN_API_VERSION"),
		BrowserTLS:        os.Getenv("BROWSER_TLS") == "true",
	}
}

// loadBackendFromSecretManager fetches the backend block as a JSON secret.
// Secret name defaults to "storefront-backend", overridable for staging.
func (c *Config) loadBackendFromSecretManager(ctx context.Context) error {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("creating secret manager client: %w", err)
	}
	defer client.Close()

	secretName := envOrDefault("BACKEND_SECRET_NAME", "storefront-backend")
	name := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", c.GCPProject, secretName)

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: name,
	})
	if err != nil {
		return fmt.Errorf("accessing secret %s: %w", secretName, err)
	}
	if err := json.Unmarshal(result.Payload.Data, &c.Backend); err != nil {
		return fmt.Errorf("parsing secret %s: %w", secretName, err)
	}
	return nil
}

func (c *Config) validate() error {
	if c.Backend.APIBaseURL == "" {
		return fmt.Errorf("backend API base URL is required (API_BASE_URL)")
	}
	if u, err := url.Parse(c.Backend.APIBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("backend API base URL %q is not a valid absolute URL", c.Backend.APIBaseURL)
	}
	if c.Backend.APIKey == "" {
		return fmt.Errorf("backend API key is required (API_KEY)")
	}
	switch c.Environment {
	case "development", "production":
	default:
		return fmt.Errorf("unknown environment %q", c.Environment)
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
