package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "queue.file", typ: kString, env: "XPOSTER_QUEUE_FILE",
		apply:   func(cfg *Config, v any) { cfg.Queue.File = v.(string) },
		extract: func(cfg Config) any { return cfg.Queue.File },
	},
	{
		key: "queue.log_file", typ: kString, env: "XPOSTER_QUEUE_LOG_FILE",
		apply:   func(cfg *Config, v any) { cfg.Queue.LogFile = v.(string) },
		extract: func(cfg Config) any { return cfg.Queue.LogFile },
	},
	{
		key: "browser.profile_dir", typ: kString, env: "XPOSTER_BROWSER_PROFILE_DIR",
		apply:   func(cfg *Config, v any) { cfg.Browser.ProfileDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Browser.ProfileDir },
	},
	{
		key: "browser.headless", typ: kBool, env: "XPOSTER_BROWSER_HEADLESS",
		apply:   func(cfg *Config, v any) { cfg.Browser.Headless = v.(bool) },
		extract: func(cfg Config) any { return cfg.Browser.Headless },
	},
	{
		key: "browser.bin", typ: kString, env: "XPOSTER_BROWSER_BIN",
		apply:   func(cfg *Config, v any) { cfg.Browser.Bin = v.(string) },
		extract: func(cfg Config) any { return cfg.Browser.Bin },
	},
	{
		key: "platform.base_url", typ: kString, env: "XPOSTER_PLATFORM_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Platform.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Platform.BaseURL },
	},
	{
		key: "platform.account", typ: kString, env: "XPOSTER_PLATFORM_ACCOUNT",
		apply:   func(cfg *Config, v any) { cfg.Platform.Account = v.(string) },
		extract: func(cfg Config) any { return cfg.Platform.Account },
	},
	{
		key: "timing.navigate_timeout", typ: kDuration, env: "XPOSTER_TIMING_NAVIGATE_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Timing.NavigateTimeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Timing.NavigateTimeout },
	},
	{
		key: "timing.surface_timeout", typ: kDuration, env: "XPOSTER_TIMING_SURFACE_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Timing.SurfaceTimeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Timing.SurfaceTimeout },
	},
	{
		key: "timing.settle_timeout", typ: kDuration, env: "XPOSTER_TIMING_SETTLE_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Timing.SettleTimeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Timing.SettleTimeout },
	},
	{
		key: "timing.poll_interval", typ: kDuration, env: "XPOSTER_TIMING_POLL_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Timing.PollInterval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Timing.PollInterval },
	},
	{
		key: "timing.keystroke_delay", typ: kDuration, env: "XPOSTER_TIMING_KEYSTROKE_DELAY",
		apply:   func(cfg *Config, v any) { cfg.Timing.KeystrokeDelay = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Timing.KeystrokeDelay },
	},
	{
		key: "storage.data_dir", typ: kString, env: "XPOSTER_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "server.port", typ: kInt, env: "XPOSTER_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.api_token", typ: kString, env: "XPOSTER_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "metrics.textfile", typ: kString, env: "XPOSTER_METRICS_TEXTFILE",
		apply:   func(cfg *Config, v any) { cfg.Metrics.Textfile = v.(string) },
		extract: func(cfg Config) any { return cfg.Metrics.Textfile },
	},
	{
		key: "log.level", typ: kString, env: "XPOSTER_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

// parse converts a raw string for the key's type.
func (s keySpec) parse(raw string) (any, error) {
	switch s.typ {
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kDuration:
		return time.ParseDuration(raw)
	default:
		return raw, nil
	}
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		if s.typ == kInt {
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
			continue
		}

		raw, ok, err := b.GetString(s.key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if !ok || (raw == "" && s.typ != kString) {
			continue
		}
		v, err := s.parse(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse config key %s=%q: %v. Using default value.\n", s.key, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		v, err := s.parse(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}
