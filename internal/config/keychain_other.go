//go:build !darwin

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// platformKeychain keeps secrets in secrets.json (mode 0600) next to the
// data directory, as {"<service>": {"<account>": "<secret>"}}.
type platformKeychain struct{}

func secretsFilePath() string {
	return filepath.Join(defaultDataDir(), "secrets.json")
}

func (platformKeychain) Get(service, account string) (string, error) {
	doc, err := readJSONObject(secretsFilePath())
	if err != nil {
		return "", fmt.Errorf("keychain not available: %w", err)
	}
	v := gjson.GetBytes(doc, jsonPath(service, account))
	if !v.Exists() {
		return "", fmt.Errorf("no secret stored for %s/%s", service, account)
	}
	return strings.TrimSpace(v.String()), nil
}

func (platformKeychain) Set(service, account, value string) error {
	p := secretsFilePath()
	doc, err := readJSONObject(p)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		doc = []byte("{}")
	case err != nil:
		return fmt.Errorf("reading secrets: %w", err)
	}
	if doc, err = sjson.SetBytes(doc, jsonPath(service, account), value); err != nil {
		return fmt.Errorf("storing secret: %w", err)
	}
	return writeJSONObject(p, doc, 0o600)
}
