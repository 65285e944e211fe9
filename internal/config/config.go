package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Dr-Fate/RegularityTracker/internal/fix"
	"github.com/Dr-Fate/RegularityTracker/internal/session"
	"github.com/Dr-Fate/RegularityTracker/internal/split"
)

// Target speeds selectable on the device
const (
	MinTargetSpeedKmh = 30
	MaxTargetSpeedKmh = 120
)

// EnvPrefix prefixes every environment override, e.g. REGULARITY_PACE_TARGET_SPEED_KMH
const EnvPrefix = "REGULARITY"

// Config represents the application configuration
type Config struct {
	Tracking TrackingConfig `json:"tracking" mapstructure:"tracking"`
	Pace     PaceConfig     `json:"pace" mapstructure:"pace"`
	Storage  StorageConfig  `json:"storage" mapstructure:"storage"`
	Server   ServerConfig   `json:"server" mapstructure:"server"`
}

// TrackingConfig holds the fix filter, stabilization and split detection settings
type TrackingConfig struct {
	MaxAccuracyM        float64 `json:"max_accuracy_m" mapstructure:"max_accuracy_m"`
	MaxSpeedKmh         float64 `json:"max_speed_kmh" mapstructure:"max_speed_kmh"`
	MaxDistanceM        float64 `json:"max_distance_m" mapstructure:"max_distance_m"`
	MinStableSpeedKmh   float64 `json:"min_stable_speed_kmh" mapstructure:"min_stable_speed_kmh"`
	RequiredGoodFixes   int     `json:"required_good_fixes" mapstructure:"required_good_fixes"`
	LatencyCorrectionMs int64   `json:"latency_correction_ms" mapstructure:"latency_correction_ms"`
	MultiKmPolicy       string  `json:"multi_km_policy" mapstructure:"multi_km_policy"`
	ResumeRestabilizes  bool    `json:"resume_restabilizes" mapstructure:"resume_restabilizes"`
	RestartAfterReset   bool    `json:"restart_after_reset" mapstructure:"restart_after_reset"`
	RebaseAfterRejects  int     `json:"rebase_after_rejects" mapstructure:"rebase_after_rejects"`
	TickIntervalMs      int64   `json:"tick_interval_ms" mapstructure:"tick_interval_ms"`
}

// PaceConfig holds the target speed and the advisory settings
type PaceConfig struct {
	TargetSpeedKmh      int   `json:"target_speed_kmh" mapstructure:"target_speed_kmh"`
	GuidanceThresholdMs int64 `json:"guidance_threshold_ms" mapstructure:"guidance_threshold_ms"`
	GuidanceDisplayMs   int64 `json:"guidance_display_ms" mapstructure:"guidance_display_ms"`
}

// StorageConfig holds where runs and exports are written
type StorageConfig struct {
	DBPath    string `json:"db_path" mapstructure:"db_path"`
	ExportDir string `json:"export_dir" mapstructure:"export_dir"`
	History   bool   `json:"history" mapstructure:"history"`
}

// ServerConfig holds the HTTP ingestion server and Redis fan-out settings
type ServerConfig struct {
	ListenAddr       string `json:"listen_addr" mapstructure:"listen_addr"`
	RedisAddr        string `json:"redis_addr" mapstructure:"redis_addr"`
	RedisPassword    string `json:"redis_password" mapstructure:"redis_password"`
	Channel          string `json:"channel" mapstructure:"channel"`
	FixesPerMinute   int    `json:"fixes_per_minute" mapstructure:"fixes_per_minute"`
	MinFixIntervalMs int64  `json:"min_fix_interval_ms" mapstructure:"min_fix_interval_ms"`
}

var (
	// ErrNoConfig is returned when the config file doesn't exist
	ErrNoConfig = errors.New("config file not found")
	// ErrTargetSpeedRange is returned for a target speed outside 30-120 km/h
	ErrTargetSpeedRange = fmt.Errorf("target speed must be between %d and %d km/h", MinTargetSpeedKmh, MaxTargetSpeedKmh)
)

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	sc := session.DefaultConfig()
	return Config{
		Tracking: TrackingConfig{
			MaxAccuracyM:        sc.Filter.MaxAccuracyM,
			MaxSpeedKmh:         sc.Filter.MaxSpeedKmh,
			MaxDistanceM:        sc.Filter.MaxDistanceM,
			MinStableSpeedKmh:   sc.MinStableSpeedKmh,
			RequiredGoodFixes:   sc.RequiredGoodFixes,
			LatencyCorrectionMs: sc.LatencyCorrectionMs,
			MultiKmPolicy:       string(sc.MultiKmPolicy),
			ResumeRestabilizes:  sc.ResumeRestabilizes,
			RestartAfterReset:   sc.RestartAfterReset,
			RebaseAfterRejects:  sc.RebaseAfterRejects,
			TickIntervalMs:      sc.TickInterval.Milliseconds(),
		},
		Pace: PaceConfig{
			TargetSpeedKmh:      sc.TargetSpeedKmh,
			GuidanceThresholdMs: sc.GuidanceThresholdMs,
			GuidanceDisplayMs:   sc.GuidanceDisplay.Milliseconds(),
		},
		Storage: StorageConfig{
			History: true,
		},
		Server: ServerConfig{
			ListenAddr:     ":8080",
			Channel:        "live",
			FixesPerMinute: 600,
		},
	}
}

// Load reads the configuration from ~/.regularity/config.json
func Load() (*Config, error) {
	path, err := getConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile reads the configuration from path. Keys missing from the file
// keep their default values.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ErrNoConfig
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return &cfg, nil
}

// Save writes the configuration to ~/.regularity/config.json
func Save(cfg *Config) error {
	path, err := getConfigPath()
	if err != nil {
		return err
	}
	return SaveFile(path, cfg)
}

// SaveFile writes the configuration to path, creating its directory
func SaveFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// CreateExample creates an example config file if none exists
func CreateExample() error {
	path, err := getConfigPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	example := DefaultConfig()
	return SaveFile(path, &example)
}

// ApplyEnv overrides values from REGULARITY_<SECTION>_<KEY> environment
// variables, e.g. REGULARITY_SERVER_REDIS_ADDR
func (c *Config) ApplyEnv() error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	var current map[string]any
	if err := json.Unmarshal(data, &current); err != nil {
		return fmt.Errorf("decoding config: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.MergeConfigMap(current); err != nil {
		return fmt.Errorf("loading config values: %w", err)
	}

	var out Config
	if err := v.Unmarshal(&out); err != nil {
		return fmt.Errorf("applying environment: %w", err)
	}
	*c = out
	return nil
}

// Validate checks the config for values the tracker cannot run with
func (c *Config) Validate() error {
	t := c.Tracking
	if t.MaxAccuracyM <= 0 || t.MaxSpeedKmh <= 0 || t.MaxDistanceM <= 0 {
		return errors.New("tracking.max_accuracy_m, tracking.max_speed_kmh and tracking.max_distance_m must be positive")
	}
	if t.RequiredGoodFixes < 1 {
		return fmt.Errorf("tracking.required_good_fixes must be at least 1, got %d", t.RequiredGoodFixes)
	}
	if t.LatencyCorrectionMs < 0 {
		return fmt.Errorf("tracking.latency_correction_ms must not be negative, got %d", t.LatencyCorrectionMs)
	}
	if _, err := split.ParsePolicy(t.MultiKmPolicy); err != nil {
		return fmt.Errorf("tracking.multi_km_policy: %w", err)
	}
	if t.TickIntervalMs <= 0 {
		return fmt.Errorf("tracking.tick_interval_ms must be positive, got %d", t.TickIntervalMs)
	}

	if err := ValidateTargetSpeed(c.Pace.TargetSpeedKmh); err != nil {
		return fmt.Errorf("pace.target_speed_kmh: %w", err)
	}
	if c.Pace.GuidanceThresholdMs < 0 || c.Pace.GuidanceDisplayMs < 0 {
		return errors.New("pace.guidance_threshold_ms and pace.guidance_display_ms must not be negative")
	}

	if c.Server.FixesPerMinute < 0 || c.Server.MinFixIntervalMs < 0 {
		return errors.New("server.fixes_per_minute and server.min_fix_interval_ms must not be negative")
	}
	return nil
}

// ValidateTargetSpeed checks kmh against the selectable range
func ValidateTargetSpeed(kmh int) error {
	if kmh < MinTargetSpeedKmh || kmh > MaxTargetSpeedKmh {
		return ErrTargetSpeedRange
	}
	return nil
}

// StepTargetSpeed moves current by delta, clamped to the selectable range
func StepTargetSpeed(current, delta int) int {
	next := current + delta
	if next < MinTargetSpeedKmh {
		return MinTargetSpeedKmh
	}
	if next > MaxTargetSpeedKmh {
		return MaxTargetSpeedKmh
	}
	return next
}

// ToSessionConfig converts the file settings to a session configuration
func (c *Config) ToSessionConfig() session.Config {
	t := c.Tracking
	return session.Config{
		Filter: fix.Filter{
			MaxAccuracyM: t.MaxAccuracyM,
			MaxSpeedKmh:  t.MaxSpeedKmh,
			MaxDistanceM: t.MaxDistanceM,
		},
		MinStableSpeedKmh:   t.MinStableSpeedKmh,
		RequiredGoodFixes:   t.RequiredGoodFixes,
		LatencyCorrectionMs: t.LatencyCorrectionMs,
		MultiKmPolicy:       split.MultiKmPolicy(t.MultiKmPolicy),
		TargetSpeedKmh:      c.Pace.TargetSpeedKmh,
		GuidanceThresholdMs: c.Pace.GuidanceThresholdMs,
		GuidanceDisplay:     time.Duration(c.Pace.GuidanceDisplayMs) * time.Millisecond,
		TickInterval:        time.Duration(t.TickIntervalMs) * time.Millisecond,
		ResumeRestabilizes:  t.ResumeRestabilizes,
		RestartAfterReset:   t.RestartAfterReset,
		RebaseAfterRejects:  t.RebaseAfterRejects,
	}
}

// getConfigPath returns the path to the config file
func getConfigPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// GetConfigDir returns the path to the config directory
func GetConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".regularity"), nil
}
