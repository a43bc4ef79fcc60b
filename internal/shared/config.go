package shared

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Environment variables that override values from config.toml.
const (
	EnvAPIBaseURL      = "TOP2000_API_BASE_URL"
	EnvSpotifyClientID = "TOP2000_SPOTIFY_CLIENT_ID"
	EnvStoragePath     = "TOP2000_STORAGE_PATH"
)

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	API         APIConfig         `toml:"api"`
	Credentials CredentialsConfig `toml:"credentials"`
	Storage     StorageConfig     `toml:"storage"`
	Server      ServerConfig      `toml:"server"`
	Refresh     RefreshConfig     `toml:"refresh"`
	Log         LogConfig         `toml:"log"`
}

// APIConfig points at the Top2000 REST API.
type APIConfig struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Timeout returns the configured request timeout, defaulting to 15 seconds.
func (c APIConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
}

// SpotifyConfig contains the Spotify public client settings used for the PKCE flow.
//
// No client secret: the authorization-code exchange is done as a public client.
type SpotifyConfig struct {
	ClientID    string `toml:"client_id"`
	RedirectURI string `toml:"redirect_uri"`
	DeviceName  string `toml:"device_name"`
}

// Configured reports whether a real client id has been set.
func (s SpotifyConfig) Configured() bool {
	return s.ClientID != "" && s.ClientID != "your_spotify_client_id"
}

// StorageConfig selects the credential persistence backend.
type StorageConfig struct {
	Backend string `toml:"backend"` // sqlite or memory
	Path    string `toml:"path"`
}

// ServerConfig contains settings for the local OAuth callback server.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RefreshConfig controls the proactive refresh schedule.
type RefreshConfig struct {
	LeadSeconds int `toml:"lead_seconds"`
}

// Lead returns the lead time before expiry, defaulting to 60 seconds.
func (r RefreshConfig) Lead() time.Duration {
	if r.LeadSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(r.LeadSeconds) * time.Second
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// SaveConfig writes config as TOML to path, replacing any existing file.
func SaveConfig(path string, config *Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadEnv loads variables from the given .env files into the process environment.
//
// Missing files are not an error; variables already set in the environment win.
func LoadEnv(files ...string) error {
	existing := []string{}
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// ApplyEnv overrides config values with any TOP2000_* environment variables.
func (c *Config) ApplyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvAPIBaseURL)); v != "" {
		c.API.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvSpotifyClientID)); v != "" {
		c.Credentials.Spotify.ClientID = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvStoragePath)); v != "" {
		c.Storage.Path = v
	}
	c.API.BaseURL = strings.TrimRight(c.API.BaseURL, "/")
}
