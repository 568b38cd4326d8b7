//go:build darwin

package config

import (
	"errors"
	"strings"
	"testing"
)

func TestDarwinBackendCommands(t *testing.T) {
	var calls []string
	b := &darwinBackend{domain: "com.example.test", run: func(args ...string) ([]byte, error) {
		calls = append(calls, strings.Join(args, " "))
		if args[0] == "read" && args[2] == "server.port" {
			return []byte("4300\n"), nil
		}
		return nil, nil
	}}

	if v, ok, err := b.GetInt("server.port"); err != nil || !ok || v != 4300 {
		t.Errorf("GetInt = %d,%v,%v", v, ok, err)
	}
	if err := b.SetString("platform.account", "roostr"); err != nil {
		t.Fatal(err)
	}
	if err := b.Delete("platform.account"); err != nil {
		t.Fatal(err)
	}

	want := []string{
		"read com.example.test server.port",
		"write com.example.test platform.account -string roostr",
		"delete com.example.test platform.account",
	}
	if strings.Join(calls, "|") != strings.Join(want, "|") {
		t.Errorf("calls = %q", calls)
	}
}

func TestDarwinBackendWriteError(t *testing.T) {
	b := &darwinBackend{domain: "d", run: func(args ...string) ([]byte, error) {
		return []byte("denied"), errors.New("exit status 2")
	}}
	if err := b.SetInt("server.port", 1); err == nil || !strings.Contains(err.Error(), "denied") {
		t.Errorf("err = %v", err)
	}
}
