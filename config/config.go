// Package config loads pulsewatch's environment variables and its
// human-edited JSON configuration directory (services.json,
// thresholds.json, config.json).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"pulsewatch/model"
)

type Config struct {
	Port             string
	ConfigDir        string
	LogPath          string
	HistoryRetention time.Duration
	AudioEnabled     bool
	AllowedOrigins   []string

	DatabaseURL string

	ArchiveBucket    string
	ArchiveEndpoint  string
	ArchiveAccessKey string
	ArchiveSecretKey string
}

func Load() *Config {
	retention, err := time.ParseDuration(envOr("PULSEWATCH_HISTORY_RETENTION", "168h"))
	if err != nil {
		retention = 7 * 24 * time.Hour
	}

	var origins []string
	if v := os.Getenv("PULSEWATCH_ALLOWED_ORIGINS"); v != "" {
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
	}

	return &Config{
		Port:             envOr("PULSEWATCH_PORT", "8080"),
		ConfigDir:        envOr("PULSEWATCH_CONFIG_DIR", "./config"),
		LogPath:          envOr("PULSEWATCH_LOG_PATH", "./logs"),
		HistoryRetention: retention,
		AudioEnabled:     envOr("PULSEWATCH_AUDIO_ENABLED", "true") == "true",
		AllowedOrigins:   origins,
		DatabaseURL:      os.Getenv("PULSEWATCH_DATABASE_URL"),
		ArchiveBucket:    os.Getenv("PULSEWATCH_ARCHIVE_BUCKET"),
		ArchiveEndpoint:  os.Getenv("PULSEWATCH_ARCHIVE_ENDPOINT"),
		ArchiveAccessKey: os.Getenv("PULSEWATCH_ARCHIVE_ACCESS_KEY"),
		ArchiveSecretKey: os.Getenv("PULSEWATCH_ARCHIVE_SECRET_KEY"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// servicesFile is the on-disk shape of services.json.
type servicesFile struct {
	Services []model.Service `json:"services"`
}

func (c *Config) ServicesPath() string     { return filepath.Join(c.ConfigDir, "services.json") }
func (c *Config) ThresholdsPath() string   { return filepath.Join(c.ConfigDir, "thresholds.json") }
func (c *Config) SystemConfigPath() string { return filepath.Join(c.ConfigDir, "config.json") }

// LoadServices reads services.json. A missing file is a fatal
// startup condition: the operator must provide a config directory,
// even one holding an empty services array.
func (c *Config) LoadServices() ([]model.Service, error) {
	data, err := os.ReadFile(c.ServicesPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config: services.json not found in %s", c.ConfigDir)
		}
		return nil, fmt.Errorf("config: read services.json: %w", err)
	}
	var f servicesFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("config: parse services.json: %w", err)
	}
	return f.Services, nil
}

// SaveServices persists the services array, used by
// POST /api/config/services.
func (c *Config) SaveServices(services []model.Service) error {
	return writeJSONFile(c.ServicesPath(), servicesFile{Services: services})
}

// thresholdsFile mirrors the documented services.json sibling shape:
// a default block plus per-tier overrides.
type thresholdsFile struct {
	Default struct {
		Healthy struct {
			Max int `json:"max"`
		} `json:"healthy"`
		Warning struct {
			Max            int `json:"max"`
			SustainedCount int `json:"sustainedCount,omitempty"`
		} `json:"warning"`
		Critical struct {
			ConsecutiveFailures int `json:"consecutiveFailures,omitempty"`
		} `json:"critical"`
	} `json:"default"`
	Tiers map[model.Tier]model.TierOverride `json:"tiers,omitempty"`
}

// LoadThresholds reads thresholds.json. A missing file is a fatal
// startup condition, same as services.json.
func (c *Config) LoadThresholds() (model.Thresholds, error) {
	data, err := os.ReadFile(c.ThresholdsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return model.Thresholds{}, fmt.Errorf("config: thresholds.json not found in %s", c.ConfigDir)
		}
		return model.Thresholds{}, fmt.Errorf("config: read thresholds.json: %w", err)
	}
	var f thresholdsFile
	if err := json.Unmarshal(data, &f); err != nil {
		return model.Thresholds{}, fmt.Errorf("config: parse thresholds.json: %w", err)
	}
	t := model.Thresholds{
		HealthyMax:           f.Default.Healthy.Max,
		WarningMax:           f.Default.Warning.Max,
		SustainedCount:       f.Default.Warning.SustainedCount,
		DefaultFlatlineCount: f.Default.Critical.ConsecutiveFailures,
		Tiers:                f.Tiers,
	}
	if t.HealthyMax == 0 && t.WarningMax == 0 {
		return model.DefaultThresholds(), nil
	}
	return t, nil
}

// SaveThresholds persists healthy/warning/degraded to thresholds.json,
// keeping whatever tier overrides were already on disk.
func (c *Config) SaveThresholds(healthy, warning, degraded int, tiers map[model.Tier]model.TierOverride) error {
	var f thresholdsFile
	f.Default.Healthy.Max = healthy
	f.Default.Warning.Max = warning
	f.Default.Critical.ConsecutiveFailures = degraded
	f.Tiers = tiers
	return writeJSONFile(c.ThresholdsPath(), f)
}

// systemConfigFile mirrors config.json's documented shape.
type systemConfigFile struct {
	Server struct {
		Port          string `json:"port"`
		WebsocketPort string `json:"websocketPort,omitempty"`
	} `json:"server"`
	Monitoring struct {
		LogPath          string `json:"logPath"`
		HistoryRetention string `json:"historyRetention"`
	} `json:"monitoring"`
	Alerts struct {
		Audio bool `json:"audio"`
	} `json:"alerts"`
}

// LoadSystemConfig reads config.json and overlays it onto whatever
// environment-derived defaults are already set. A missing file is a
// fatal startup condition, same as services.json and thresholds.json.
func (c *Config) LoadSystemConfig() error {
	data, err := os.ReadFile(c.SystemConfigPath())
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("config: config.json not found in %s", c.ConfigDir)
		}
		return fmt.Errorf("config: read config.json: %w", err)
	}
	var f systemConfigFile
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("config: parse config.json: %w", err)
	}
	if f.Server.Port != "" {
		c.Port = f.Server.Port
	}
	if f.Monitoring.LogPath != "" {
		c.LogPath = f.Monitoring.LogPath
	}
	if f.Monitoring.HistoryRetention != "" {
		if d, err := time.ParseDuration(f.Monitoring.HistoryRetention); err == nil {
			c.HistoryRetention = d
		} else if days, err := strconv.Atoi(f.Monitoring.HistoryRetention); err == nil {
			c.HistoryRetention = time.Duration(days) * 24 * time.Hour
		}
	}
	c.AudioEnabled = f.Alerts.Audio
	return nil
}

// AsSystemConfig renders the current effective configuration back
// into config.json's shape, for GET /api/config.
func (c *Config) AsSystemConfig() systemConfigFile {
	var f systemConfigFile
	f.Server.Port = c.Port
	f.Monitoring.LogPath = c.LogPath
	f.Monitoring.HistoryRetention = c.HistoryRetention.String()
	f.Alerts.Audio = c.AudioEnabled
	return f
}

// ThresholdsStore holds the live, hot-reloadable thresholds consumed
// by the Pulse Evaluator through a thresholdsFn closure. Reads and
// writes are concurrent: the Read API's POST /api/config/thresholds
// handler writes while every in-flight probe reads.
type ThresholdsStore struct {
	mu sync.RWMutex
	t  model.Thresholds
}

func NewThresholdsStore(t model.Thresholds) *ThresholdsStore {
	return &ThresholdsStore{t: t}
}

func (s *ThresholdsStore) Get() model.Thresholds {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.t
}

func (s *ThresholdsStore) Set(t model.Thresholds) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.t = t
}

// Fn adapts the store to the func() model.Thresholds signature the
// engine and state machine expect.
func (s *ThresholdsStore) Fn() func() model.Thresholds {
	return s.Get
}

func writeJSONFile(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create config directory: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("config: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		tmp.Close()
		os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("config: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("config: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("config: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("config: rename temp file: %w", err)
	}
	tmp = nil
	return nil
}
