//go:build !darwin

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
)

// readJSONObject returns the raw document at path. It must be a JSON
// object; a missing file is reported as fs.ErrNotExist.
func readJSONObject(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(data) || !gjson.ParseBytes(data).IsObject() {
		return nil, fmt.Errorf("%s is not a JSON object", path)
	}
	return data, nil
}

func writeJSONObject(path string, doc []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	return os.WriteFile(path, pretty.Pretty(doc), perm)
}

var pathEscaper = strings.NewReplacer(
	`\`, `\\`, `.`, `\.`, `*`, `\*`, `?`, `\?`,
	`|`, `\|`, `#`, `\#`, `@`, `\@`, `!`, `\!`,
)

// jsonPath joins literal names into a gjson/sjson path.
func jsonPath(names ...string) string {
	for i, n := range names {
		names[i] = pathEscaper.Replace(n)
	}
	return strings.Join(names, ".")
}
