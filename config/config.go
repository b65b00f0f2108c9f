package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/viper"
)

const (
	// AppDirectoryName is the per-user application data directory name.
	AppDirectoryName = "chatstore"
	// DataDirEnv overrides the resolved data directory.
	DataDirEnv = "CHATSTORE_DATA_DIR"
	// EnvPrefix prefixes every environment override, e.g. CHATSTORE_LOG_LEVEL.
	EnvPrefix = "CHATSTORE"
	// DefaultLogLevel is used when neither the file nor the environment sets one.
	DefaultLogLevel = "info"
	// DefaultMetricsAddr is where /metrics is served.
	DefaultMetricsAddr = "127.0.0.1:9464"
	// MetricsDisabled as the metrics address turns the endpoint off.
	MetricsDisabled = "off"
	// DefaultWALCheckpointInterval matches the store's own default.
	DefaultWALCheckpointInterval = "5m"
	// configFileName is the persisted configuration file.
	configFileName = "config.json"
)

// Keys understood by the environment overlay.
const (
	KeyLogLevel              = "log_level"
	KeyMetricsAddr           = "metrics_addr"
	KeyWALCheckpointInterval = "wal_checkpoint_interval"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DeviceConfig contains persistent local-device settings.
type DeviceConfig struct {
	DeviceID              string `json:"device_id"`
	DeviceName            string `json:"device_name"`
	IdentityKeyPath       string `json:"identity_key_path"`
	KeyFingerprint        string `json:"key_fingerprint"`
	LogLevel              string `json:"log_level"`
	MetricsAddr           string `json:"metrics_addr"`
	WALCheckpointInterval string `json:"wal_checkpoint_interval"`
}

// MetricsEnabled reports whether /metrics should be served.
func (c *DeviceConfig) MetricsEnabled() bool {
	return c.MetricsAddr != "" && c.MetricsAddr != MetricsDisabled
}

// CheckpointInterval parses WALCheckpointInterval.
func (c *DeviceConfig) CheckpointInterval() (time.Duration, error) {
	interval, err := time.ParseDuration(c.WALCheckpointInterval)
	if err != nil {
		return 0, fmt.Errorf("parse wal checkpoint interval %q: %w", c.WALCheckpointInterval, err)
	}
	if interval <= 0 {
		return 0, fmt.Errorf("wal checkpoint interval must be positive, got %s", interval)
	}
	return interval, nil
}

// ResolveDataDir returns the OS-aware app data directory.
//
// If CHATSTORE_DATA_DIR is set, its value is used as an explicit override.
func ResolveDataDir() (string, error) {
	if override := os.Getenv(DataDirEnv); override != "" {
		return override, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}

	switch runtime.GOOS {
	case "windows":
		base := os.Getenv("APPDATA")
		if base == "" {
			base = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(base, AppDirectoryName), nil
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", AppDirectoryName), nil
	default:
		base := os.Getenv("XDG_CONFIG_HOME")
		if base == "" {
			base = filepath.Join(home, ".config")
		}
		return filepath.Join(base, AppDirectoryName), nil
	}
}

// ConfigPath returns the full path to config.json for a data directory.
func ConfigPath(dataDir string) string {
	return filepath.Join(dataDir, configFileName)
}

// EnsureDataDirectories creates the app data directory layout if needed.
func EnsureDataDirectories(dataDir string) error {
	dirs := []string{
		dataDir,
		filepath.Join(dataDir, "keys"),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}

	return nil
}

// Load reads and unmarshals config.json from disk.
func Load(path string) (*DeviceConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg DeviceConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

// Save marshals and writes config.json to disk.
func Save(path string, cfg *DeviceConfig) error {
	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	raw = append(raw, '\n')
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// LoadOrCreate ensures directories and config exist, then returns both. Environment
// overrides are applied to the returned value but never written back to disk.
func LoadOrCreate() (*DeviceConfig, string, error) {
	dataDir, err := ResolveDataDir()
	if err != nil {
		return nil, "", err
	}
	if err := EnsureDataDirectories(dataDir); err != nil {
		return nil, "", err
	}

	cfgPath := ConfigPath(dataDir)
	cfg, err := Load(cfgPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, "", err
		}

		cfg = defaultConfig(dataDir)
		if err := Save(cfgPath, cfg); err != nil {
			return nil, "", err
		}
	} else if normalizeDefaults(cfg, dataDir) {
		if err := Save(cfgPath, cfg); err != nil {
			return nil, "", err
		}
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, "", err
	}
	return cfg, cfgPath, nil
}

// ApplyEnv overlays CHATSTORE_* environment variables onto cfg.
func ApplyEnv(cfg *DeviceConfig) error {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	v.SetDefault(KeyLogLevel, cfg.LogLevel)
	v.SetDefault(KeyMetricsAddr, cfg.MetricsAddr)
	v.SetDefault(KeyWALCheckpointInterval, cfg.WALCheckpointInterval)

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(v.GetString(KeyLogLevel)))
	cfg.MetricsAddr = strings.TrimSpace(v.GetString(KeyMetricsAddr))
	cfg.WALCheckpointInterval = strings.TrimSpace(v.GetString(KeyWALCheckpointInterval))

	if _, err := cfg.CheckpointInterval(); err != nil {
		return err
	}
	return nil
}

func defaultConfig(dataDir string) *DeviceConfig {
	cfg := &DeviceConfig{}
	normalizeDefaults(cfg, dataDir)
	return cfg
}

func normalizeDefaults(cfg *DeviceConfig, dataDir string) bool {
	updated := false

	if cfg.DeviceID == "" {
		cfg.DeviceID = uuid.NewString()
		updated = true
	}

	if cfg.DeviceName == "" {
		deviceName := "Chatstore Device"
		if host, err := os.Hostname(); err == nil && host != "" {
			deviceName = host
		}
		cfg.DeviceName = deviceName
		updated = true
	}

	if cfg.IdentityKeyPath == "" {
		cfg.IdentityKeyPath = filepath.Join(dataDir, "keys", "identity.pem")
		updated = true
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
		updated = true
	}

	if cfg.MetricsAddr == "" {
		cfg.MetricsAddr = DefaultMetricsAddr
		updated = true
	}

	if cfg.WALCheckpointInterval == "" {
		cfg.WALCheckpointInterval = DefaultWALCheckpointInterval
		updated = true
	}

	return updated
}
