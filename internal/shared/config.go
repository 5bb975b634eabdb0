package shared

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Logging       LoggingConfig       `toml:"logging"`
	Database      DatabaseConfig      `toml:"database"`
	Server        ServerConfig        `toml:"server"`
	Device        DeviceConfig        `toml:"device"`
	Push          PushConfig          `toml:"push"`
	Notifications NotificationsConfig `toml:"notifications"`
	Health        HealthConfig        `toml:"health"`
}

// LoggingConfig controls log verbosity and destination.
type LoggingConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"` // used by the dashboard; empty means stderr
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains local push gateway settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Addr returns host:port for [net/http.Server].
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DeviceConfig holds the classifier rules. Everything here is data so it can change without a release.
type DeviceConfig struct {
	Model                string            `toml:"model"` // overrides the probed model identifier
	HardwareAcceleration bool              `toml:"hardware_acceleration"`
	Thresholds           TierThresholds    `toml:"thresholds"`
	Denylist             []string          `toml:"denylist"`  // model prefixes forced to low_end
	Allowlist            map[string]string `toml:"allowlist"` // model prefix -> tier name
	Screen               ScreenConfig      `toml:"screen"`
}

// TierThresholds are the minimum (memory, cores) pairs per tier. Anything below Mid is low_end.
type TierThresholds struct {
	Premium ThresholdConfig `toml:"premium"`
	High    ThresholdConfig `toml:"high"`
	Mid     ThresholdConfig `toml:"mid"`
}

// ThresholdConfig is one tier's minimum memory and core count.
type ThresholdConfig struct {
	MemoryMB int `toml:"memory_mb"`
	Cores    int `toml:"cores"`
}

// ScreenConfig describes the display. Zero values fall back to classifier defaults.
type ScreenConfig struct {
	Density        float64 `toml:"density"`
	WidthPx        int     `toml:"width_px"`
	HeightPx       int     `toml:"height_px"`
	DiagonalInches float64 `toml:"diagonal_inches"`
}

// PushConfig contains token lifecycle and transport settings.
type PushConfig struct {
	SyncInterval   Duration `toml:"sync_interval"`
	ResyncInterval Duration `toml:"resync_interval"`
	BackendURL     string   `toml:"backend_url"`
	BearerToken    string   `toml:"bearer_token"`
	NATSURL        string   `toml:"nats_url"`
	SubjectPrefix  string   `toml:"subject_prefix"`
	AppVersion     string   `toml:"app_version"`
	AppPackage     string   `toml:"app_package"`
	Platform       string   `toml:"platform"`
	DeviceType     string   `toml:"device_type"`

	OAuth OAuthConfig `toml:"oauth"`
}

// OAuthConfig describes the identity provider that issues backend bearer tokens.
type OAuthConfig struct {
	ClientID     string   `toml:"client_id"`
	ClientSecret string   `toml:"client_secret"`
	AuthURL      string   `toml:"auth_url"`
	TokenURL     string   `toml:"token_url"`
	Scopes       []string `toml:"scopes"`
}

// Configured reports whether enough is set to run an authorization code flow.
func (o OAuthConfig) Configured() bool {
	return o.ClientID != "" && o.AuthURL != "" && o.TokenURL != ""
}

// NotificationsConfig contains dispatch pipeline policy.
type NotificationsConfig struct {
	Enabled                  bool           `toml:"enabled"` // platform permission
	BatchDelay               Duration       `toml:"batch_delay"`
	MaxBatchWait             Duration       `toml:"max_batch_wait"` // cap from the first event; defaults to 4x batch_delay
	RateLimit                int            `toml:"rate_limit"`
	RateWindow               Duration       `toml:"rate_window"`
	TypeLimits               map[string]int `toml:"type_limits"`
	HistorySize              int            `toml:"history_size"`
	DedupeSize               int            `toml:"dedupe_size"`
	QuietHoursEnabled        bool           `toml:"quiet_hours_enabled"`
	QuietHoursStart          int            `toml:"quiet_hours_start"`
	QuietHoursEnd            int            `toml:"quiet_hours_end"`
	UrgentBypassesQuietHours bool           `toml:"urgent_bypasses_quiet_hours"`
	PruneInterval            Duration       `toml:"prune_interval"`
}

// HealthConfig contains runtime health monitor thresholds.
type HealthConfig struct {
	WindowSize            int      `toml:"window_size"`
	MinSamples            int      `toml:"min_samples"`
	QueueSize             int      `toml:"queue_size"`
	DropFactor            float64  `toml:"drop_factor"`
	WarningDropRate       float64  `toml:"warning_drop_rate"`
	CriticalDropRate      float64  `toml:"critical_drop_rate"`
	MemoryWarningPercent  float64  `toml:"memory_warning_percent"`
	MemoryCriticalPercent float64  `toml:"memory_critical_percent"`
	RecoveryMargin        float64  `toml:"recovery_margin"`
	RecoveryEvaluations   int      `toml:"recovery_evaluations"`
	SampleInterval        Duration `toml:"sample_interval"`
	ThermalWarmCelsius    float64  `toml:"thermal_warm_celsius"`
	ThermalHotCelsius     float64  `toml:"thermal_hot_celsius"`
	ThermalCritCelsius    float64  `toml:"thermal_critical_celsius"`
}

// Duration wraps [time.Duration] so TOML values like "3s" decode and encode as strings.
type Duration struct {
	time.Duration
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: bad duration %q", ErrInvalidConfig, text)
	}
	d.Duration = v
	return nil
}

// MarshalText implements [encoding.TextMarshaler].
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// LoadConfig reads a TOML configuration file and overlays it on [DefaultConfig].
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadConfigOrDefault loads path when it exists and falls back to [DefaultConfig] otherwise.
func LoadConfigOrDefault(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	if _, err := os.Stat(path); err != nil {
		return DefaultConfig(), nil
	}
	return LoadConfig(path)
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
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

// SaveConfig writes config to path as TOML, replacing any existing file.
func SaveConfig(path string, config *Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks value ranges that the components rely on.
func (c *Config) Validate() error {
	t := c.Device.Thresholds
	if t.Premium.MemoryMB < t.High.MemoryMB || t.High.MemoryMB < t.Mid.MemoryMB ||
		t.Premium.Cores < t.High.Cores || t.High.Cores < t.Mid.Cores {
		return fmt.Errorf("%w: device thresholds must be non-decreasing from mid to premium", ErrInvalidConfig)
	}
	if t.Mid.MemoryMB <= 0 || t.Mid.Cores <= 0 {
		return fmt.Errorf("%w: mid thresholds must be positive", ErrInvalidConfig)
	}

	n := c.Notifications
	if n.RateLimit <= 0 {
		return fmt.Errorf("%w: notifications.rate_limit must be positive", ErrInvalidConfig)
	}
	for typ, limit := range n.TypeLimits {
		if limit <= 0 {
			return fmt.Errorf("%w: notifications.type_limits.%s must be positive", ErrInvalidConfig, typ)
		}
	}
	if n.RateWindow.Duration <= 0 || n.BatchDelay.Duration <= 0 {
		return fmt.Errorf("%w: notifications durations must be positive", ErrInvalidConfig)
	}
	if n.MaxBatchWait.Duration != 0 && n.MaxBatchWait.Duration < n.BatchDelay.Duration {
		return fmt.Errorf("%w: notifications.max_batch_wait must not be shorter than batch_delay", ErrInvalidConfig)
	}
	if n.QuietHoursStart < 0 || n.QuietHoursStart > 23 || n.QuietHoursEnd < 0 || n.QuietHoursEnd > 23 {
		return fmt.Errorf("%w: quiet hours must be within 0-23", ErrInvalidConfig)
	}
	if n.HistorySize <= 0 {
		return fmt.Errorf("%w: notifications.history_size must be positive", ErrInvalidConfig)
	}

	h := c.Health
	if h.WindowSize <= 0 || h.MinSamples <= 0 || h.MinSamples > h.WindowSize {
		return fmt.Errorf("%w: health.min_samples must be within 1..window_size", ErrInvalidConfig)
	}
	if h.WarningDropRate <= 0 || h.CriticalDropRate < h.WarningDropRate || h.CriticalDropRate > 1 {
		return fmt.Errorf("%w: health drop-rate thresholds must satisfy 0 < warning <= critical <= 1", ErrInvalidConfig)
	}
	if h.MemoryWarningPercent <= 0 || h.MemoryCriticalPercent < h.MemoryWarningPercent {
		return fmt.Errorf("%w: health memory thresholds must satisfy 0 < warning <= critical", ErrInvalidConfig)
	}
	if h.DropFactor < 1 {
		return fmt.Errorf("%w: health.drop_factor must be at least 1", ErrInvalidConfig)
	}

	if c.Push.SyncInterval.Duration <= 0 {
		return fmt.Errorf("%w: push.sync_interval must be positive", ErrInvalidConfig)
	}
	return nil
}
