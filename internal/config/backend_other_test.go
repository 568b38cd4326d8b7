//go:build !darwin

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileBackendRoundTrip(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	if err := SetKey("platform.account", "roostr"); err != nil {
		t.Fatalf("SetKey: %v", err)
	}
	if err := SetKey("server.port", "4200"); err != nil {
		t.Fatalf("SetKey: %v", err)
	}
	if _, err := os.Stat(filepath.Join(os.Getenv("XDG_CONFIG_HOME"), "xposter", "config.json")); err != nil {
		t.Fatalf("config file not written: %v", err)
	}

	t.Setenv("XPOSTER_PLATFORM_ACCOUNT", "")
	t.Setenv("XPOSTER_SERVER_PORT", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Platform.Account != "roostr" || cfg.Server.Port != 4200 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestKeychainFile(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	kc := NewKeychain()

	if _, err := kc.Get("xposter", "api_token"); err == nil {
		t.Fatal("expected error before anything is stored")
	}
	if err := kc.Set("xposter", "api_token", "abc"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, err := kc.Get("xposter", "api_token"); err != nil || v != "abc" {
		t.Errorf("Get = %q, %v", v, err)
	}
	info, err := os.Stat(secretsFilePath())
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("secrets mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestFileBackendNestedSections(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	path := filepath.Join(dir, "xposter", "config.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		t.Fatal(err)
	}
	doc := `{"timing": {"surface_timeout": "15s"}, "server": {"port": 4300}, "dashboard": {"theme": "dark"}}`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	b := newPlatformBackend()
	if v, ok, err := b.GetString("timing.surface_timeout"); err != nil || !ok || v != "15s" {
		t.Errorf("GetString = %q,%v,%v", v, ok, err)
	}
	if v, ok, err := b.GetInt("server.port"); err != nil || !ok || v != 4300 {
		t.Errorf("GetInt = %d,%v,%v", v, ok, err)
	}
	if _, ok, _ := b.GetString("platform.account"); ok {
		t.Error("missing key reported as set")
	}

	if err := UnsetKey("server.port"); err != nil {
		t.Fatalf("UnsetKey: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "4300") || !strings.Contains(string(data), `"theme"`) {
		t.Errorf("config after unset = %s", data)
	}
}

func TestKeychainFileDottedNames(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	kc := NewKeychain()

	if err := kc.Set("com.roostr.xposter", "api_token", "one"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := kc.Set("xposter", "api_token", "two"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, err := kc.Get("com.roostr.xposter", "api_token"); err != nil || v != "one" {
		t.Errorf("Get dotted = %q, %v", v, err)
	}
	if v, err := kc.Get("xposter", "api_token"); err != nil || v != "two" {
		t.Errorf("Get = %q, %v", v, err)
	}
	if _, err := kc.Get("xposter", "other"); err == nil {
		t.Error("expected error for missing account")
	}
}

func TestKeychainFileRejectsCorruptStore(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	if err := os.MkdirAll(filepath.Dir(secretsFilePath()), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(secretsFilePath(), []byte("[1,2]"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := NewKeychain().Set("xposter", "api_token", "x"); err == nil {
		t.Error("Set over a non-object secrets file should fail")
	}
}

func TestJSONPath(t *testing.T) {
	if got := jsonPath("com.roostr", "a*b"); got != `com\.roostr.a\*b` {
		t.Errorf("jsonPath = %q", got)
	}
}
