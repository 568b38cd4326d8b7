package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

type Config struct {
	Queue    QueueConfig
	Browser  BrowserConfig
	Platform PlatformConfig
	Timing   TimingConfig
	Storage  StorageConfig
	Server   ServerConfig
	Metrics  MetricsConfig
	Log      LogConfig
}

type QueueConfig struct {
	File    string
	LogFile string
}

type BrowserConfig struct {
	ProfileDir string
	Headless   bool
	Bin        string
}

type PlatformConfig struct {
	BaseURL string
	Account string
}

type TimingConfig struct {
	NavigateTimeout time.Duration
	SurfaceTimeout  time.Duration
	SettleTimeout   time.Duration
	PollInterval    time.Duration
	KeystrokeDelay  time.Duration
}

type StorageConfig struct {
	DataDir string
}

type ServerConfig struct {
	Port     int
	APIToken string
}

type MetricsConfig struct {
	// Textfile, when set, receives the run metrics after every publish.
	Textfile string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Platform: PlatformConfig{
			BaseURL: "https://x.com",
		},
		Timing: TimingConfig{
			NavigateTimeout: 30 * time.Second,
			SurfaceTimeout:  10 * time.Second,
			SettleTimeout:   7 * time.Second,
			PollInterval:    250 * time.Millisecond,
			KeystrokeDelay:  30 * time.Millisecond,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Server: ServerConfig{
			Port: 4100,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend and
// environment variables.
//
// On macOS the backend is UserDefaults (domain: com.roostr.xposter).
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/xposter/config.json.
//
// Environment variables (XPOSTER_*) override backend values on all platforms.
// Paths left empty are placed under storage.data_dir.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)
	cfg.fillPaths()

	return cfg, nil
}

func (cfg *Config) fillPaths() {
	if cfg.Queue.File == "" {
		cfg.Queue.File = filepath.Join(cfg.Storage.DataDir, "content-queue.json")
	}
	if cfg.Queue.LogFile == "" {
		cfg.Queue.LogFile = filepath.Join(cfg.Storage.DataDir, "posted-log.json")
	}
	if cfg.Browser.ProfileDir == "" {
		cfg.Browser.ProfileDir = filepath.Join(cfg.Storage.DataDir, "browser-profile")
	}
}

// Validate checks what a publish run needs.
func (cfg Config) Validate() error {
	var errs []error
	if strings.TrimPrefix(cfg.Platform.Account, "@") == "" {
		errs = append(errs, errors.New("platform.account is required (the handle the browser profile is logged in as)"))
	}
	if !strings.HasPrefix(cfg.Platform.BaseURL, "http://") && !strings.HasPrefix(cfg.Platform.BaseURL, "https://") {
		errs = append(errs, fmt.Errorf("platform.base_url %q is not an http(s) URL", cfg.Platform.BaseURL))
	}
	for _, d := range []struct {
		key string
		val time.Duration
	}{
		{"timing.navigate_timeout", cfg.Timing.NavigateTimeout},
		{"timing.surface_timeout", cfg.Timing.SurfaceTimeout},
		{"timing.settle_timeout", cfg.Timing.SettleTimeout},
		{"timing.poll_interval", cfg.Timing.PollInterval},
		{"timing.keystroke_delay", cfg.Timing.KeystrokeDelay},
	} {
		if d.val <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", d.key, d.val))
		}
	}
	if cfg.Timing.PollInterval > cfg.Timing.SurfaceTimeout {
		errs = append(errs, errors.New("timing.poll_interval must not exceed timing.surface_timeout"))
	}
	return errors.Join(errs...)
}
