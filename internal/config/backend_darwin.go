//go:build darwin

package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

const defaultsDomain = "com.roostr.xposter"

func defaultDataDir() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, "Library", "Application Support", "xposter")
	}
	return "xposter-data"
}

// darwinBackend shells out to defaults(1). run is swapped in tests.
type darwinBackend struct {
	domain string
	run    func(args ...string) ([]byte, error)
}

func newPlatformBackend() ConfigBackend {
	return &darwinBackend{domain: defaultsDomain, run: runDefaults}
}

func runDefaults(args ...string) ([]byte, error) {
	return exec.Command("defaults", args...).CombinedOutput()
}

func (b *darwinBackend) read(key string) (string, bool, error) {
	out, err := b.run("read", b.domain, key)
	s := strings.TrimSpace(string(out))
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return "", false, nil
		}
		return "", false, fmt.Errorf("reading default %s: %w, output: %s", key, err, s)
	}
	return s, true, nil
}

func (b *darwinBackend) write(args ...string) error {
	if out, err := b.run(args...); err != nil {
		return fmt.Errorf("defaults %s: %w, output: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (b *darwinBackend) GetString(key string) (string, bool, error) {
	return b.read(key)
}

func (b *darwinBackend) GetInt(key string) (int, bool, error) {
	s, ok, err := b.read(key)
	if !ok || err != nil {
		return 0, ok, err
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, true, fmt.Errorf("invalid integer for %s: %w", key, err)
	}
	return i, true, nil
}

func (b *darwinBackend) SetString(key, val string) error {
	return b.write("write", b.domain, key, "-string", val)
}

func (b *darwinBackend) SetInt(key string, val int) error {
	return b.write("write", b.domain, key, "-int", strconv.Itoa(val))
}

func (b *darwinBackend) Delete(key string) error {
	return b.write("delete", b.domain, key)
}
