// internal/config/config.go
package conf

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bartek5186/sfa-offline/internal/vault"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix – zmienne środowiskowe nadpisujące plik (SFA_REMOTE_BASE_URL itd.)
const EnvPrefix = "SFA"

// Główny config aplikacji
type Config struct {
	AutoStart            bool   `json:"auto_start" envconfig:"SFA_AUTO_START"`
	ProbeIntervalSeconds int    `json:"probe_interval_seconds" envconfig:"SFA_PROBE_INTERVAL_SECONDS"`
	LogLevel             string `json:"log_level" envconfig:"SFA_LOG_LEVEL"`

	Remote   RemoteConfig `json:"remote"`
	Store    StoreConfig  `json:"store"`
	Sync     SyncConfig   `json:"sync"`
	Outbox   OutboxConfig `json:"outbox"`
	Password vault.Params `json:"password"`
	API      APIConfig    `json:"api"`
}

// ERP (Sankhya przez backend SFA)
type RemoteConfig struct {
	BaseURL        string            `json:"base_url" envconfig:"SFA_REMOTE_BASE_URL"`
	Token          string            `json:"token,omitempty" envconfig:"SFA_REMOTE_TOKEN"`
	TimeoutSeconds int               `json:"timeout_seconds" envconfig:"SFA_REMOTE_TIMEOUT_SECONDS"`
	UserAgent      string            `json:"user_agent,omitempty" envconfig:"SFA_REMOTE_USER_AGENT"`
	LoginPath      string            `json:"login_path" envconfig:"SFA_REMOTE_LOGIN_PATH"`
	HealthPath     string            `json:"health_path" envconfig:"SFA_REMOTE_HEALTH_PATH"`
	Paths          map[string]string `json:"paths,omitempty" ignored:"true"` // kolekcja -> ścieżka GET
}

type StoreConfig struct {
	Driver string `json:"driver" envconfig:"SFA_STORE_DRIVER"` // sqlite | sqlite3 | mysql | postgres
	DSN    string `json:"dsn,omitempty" envconfig:"SFA_STORE_DSN"`
	Debug  bool   `json:"debug,omitempty" envconfig:"SFA_STORE_DEBUG"`
}

type SyncConfig struct {
	Schedule       string `json:"schedule,omitempty" envconfig:"SFA_SYNC_SCHEDULE"` // cron, puste = tylko po reconnect
	TimeoutSeconds int    `json:"timeout_seconds" envconfig:"SFA_SYNC_TIMEOUT_SECONDS"`
	OnReconnect    bool   `json:"on_reconnect" envconfig:"SFA_SYNC_ON_RECONNECT"`
}

type OutboxConfig struct {
	MaxAttempts int `json:"max_attempts" envconfig:"SFA_OUTBOX_MAX_ATTEMPTS"`
	Parallelism int `json:"parallelism" envconfig:"SFA_OUTBOX_PARALLELISM"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" envconfig:"SFA_API_ENABLED"`
	Listen  string `json:"listen" envconfig:"SFA_API_LISTEN"`
}

func Default() *Config {
	return &Config{
		AutoStart:            false,
		ProbeIntervalSeconds: 30,
		LogLevel:             "info",
		Remote: RemoteConfig{
			BaseURL:        "https://sfa.example.com",
			TimeoutSeconds: 15,
			LoginPath:      "/api/auth/login",
			HealthPath:     "/api/health",
		},
		Store:    StoreConfig{Driver: "sqlite"},
		Sync:     SyncConfig{TimeoutSeconds: 120, OnReconnect: true},
		Outbox:   OutboxConfig{MaxAttempts: 3, Parallelism: 4},
		Password: vault.DefaultParams(),
		API:      APIConfig{Enabled: true, Listen: "127.0.0.1:8787"},
	}
}

// Load = LoadOrCreate + nadpisania z env. Zmiany z env nie są zapisywane do pliku.
func Load(path string) (*Config, bool, error) {
	cfg, created, err := LoadOrCreate(path)
	if err != nil {
		return nil, false, err
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, false, fmt.Errorf("błąd zmiennych środowiskowych: %w", err)
	}
	cfg.normalize()
	return cfg, created, nil
}

func LoadOrCreate(path string) (*Config, bool, error) {
	// upewnij się, że katalog istnieje
	_ = os.MkdirAll(filepath.Dir(path), 0o755)

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			if err := Save(path, cfg); err != nil {
				return nil, false, fmt.Errorf("błąd zapisu domyślnego configa: %w", err)
			}
			return cfg, true, nil
		}
		return nil, false, fmt.Errorf("błąd otwierania configa: %w", err)
	}
	defer f.Close()

	// brakujące pola z pliku biorą wartości domyślne
	cfg := Default()
	if err := json.NewDecoder(f).Decode(cfg); err != nil {
		return nil, false, fmt.Errorf("błąd parsowania configa: %w", err)
	}
	cfg.normalize()
	return cfg, false, nil
}

func Save(path string, cfg *Config) error {
	_ = os.MkdirAll(filepath.Dir(path), 0o755)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(cfg)
}

func (c *Config) normalize() {
	d := Default()
	if c.ProbeIntervalSeconds <= 0 {
		c.ProbeIntervalSeconds = d.ProbeIntervalSeconds
	}
	if c.Remote.TimeoutSeconds <= 0 {
		c.Remote.TimeoutSeconds = d.Remote.TimeoutSeconds
	}
	if c.Remote.LoginPath == "" {
		c.Remote.LoginPath = d.Remote.LoginPath
	}
	if c.Remote.HealthPath == "" {
		c.Remote.HealthPath = d.Remote.HealthPath
	}
	c.Remote.BaseURL = strings.TrimRight(strings.TrimSpace(c.Remote.BaseURL), "/")
	if c.Store.Driver == "" {
		c.Store.Driver = d.Store.Driver
	}
	if c.Sync.TimeoutSeconds <= 0 {
		c.Sync.TimeoutSeconds = d.Sync.TimeoutSeconds
	}
	if c.Outbox.MaxAttempts <= 0 {
		c.Outbox.MaxAttempts = d.Outbox.MaxAttempts
	}
	if c.Outbox.Parallelism <= 0 {
		c.Outbox.Parallelism = d.Outbox.Parallelism
	}
	if c.API.Listen == "" {
		c.API.Listen = d.API.Listen
	}
}

func (c *Config) ProbeInterval() time.Duration {
	return time.Duration(c.ProbeIntervalSeconds) * time.Second
}

func (c *Config) RemoteTimeout() time.Duration {
	return time.Duration(c.Remote.TimeoutSeconds) * time.Second
}

func (c *Config) SyncTimeout() time.Duration {
	return time.Duration(c.Sync.TimeoutSeconds) * time.Second
}
