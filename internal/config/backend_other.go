//go:build !darwin

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "xposter-data"
		}
	}
	return filepath.Join(dir, "xposter")
}

// fileBackend stores config as a JSON document grouped by section, so the
// key "timing.poll_interval" lives at {"timing": {"poll_interval": ...}}.
// Keys are gjson paths; keys it does not know are left untouched on save.
type fileBackend struct {
	path string
	raw  []byte
}

func newPlatformBackend() ConfigBackend {
	b := &fileBackend{path: configFilePath(), raw: []byte("{}")}
	b.load()
	return b
}

func configFilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "xposter", "config.json")
}

func (b *fileBackend) load() {
	data, err := readJSONObject(b.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "[WARN] could not read config file %s: %v. Using default values.\n", b.path, err)
		}
		return
	}
	b.raw = data
}

func (b *fileBackend) save() error {
	return writeJSONObject(b.path, b.raw, 0o600)
}

func (b *fileBackend) GetString(key string) (string, bool, error) {
	v := gjson.GetBytes(b.raw, key)
	if !v.Exists() {
		return "", false, nil
	}
	return v.String(), true, nil
}

func (b *fileBackend) GetInt(key string) (int, bool, error) {
	v := gjson.GetBytes(b.raw, key)
	switch v.Type {
	case gjson.Null:
		if !v.Exists() {
			return 0, false, nil
		}
		return 0, true, fmt.Errorf("invalid type for %s", key)
	case gjson.Number:
		if v.Num < math.MinInt || v.Num > math.MaxInt || v.Num != math.Trunc(v.Num) {
			return 0, true, fmt.Errorf("value %v for %s is not a valid integer or is out of range", v.Num, key)
		}
		return int(v.Num), true, nil
	case gjson.String:
		i, err := strconv.Atoi(v.Str)
		if err != nil {
			return 0, true, fmt.Errorf("invalid integer for %s: %w", key, err)
		}
		return i, true, nil
	default:
		return 0, true, fmt.Errorf("invalid type for %s", key)
	}
}

func (b *fileBackend) SetString(key, val string) error {
	return b.set(key, val)
}

func (b *fileBackend) SetInt(key string, val int) error {
	return b.set(key, val)
}

func (b *fileBackend) Delete(key string) error {
	out, err := sjson.DeleteBytes(b.raw, key)
	if err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	b.raw = out
	return b.save()
}

func (b *fileBackend) set(key string, val any) error {
	out, err := sjson.SetBytes(b.raw, key, val)
	if err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}
	b.raw = out
	return b.save()
}
