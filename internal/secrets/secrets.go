// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads service credentials. Two sources are supported: a
// directory of plain-text files (filename is the key, trimmed contents the
// value) and a dotenv file whose variables are mapped onto the same keys.
//
// Recognized keys: anthropic-api-key, crossref-mailto, zotero-api-key,
// zotero-user-id.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// Keys used by the literature manager.
const (
	AnthropicAPIKey = "anthropic-api-key"
	CrossrefMailto  = "crossref-mailto"
	ZoteroAPIKey    = "zotero-api-key"
	ZoteroUserID    = "zotero-user-id"
)

// Load reads all files in dir and returns a map of filename to trimmed contents.
// A missing directory is not an error; Load returns an empty map.
// Unreadable files produce a warning on stderr but do not abort.
func Load(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		name := entry.Name()

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not read secret %s: %v\n", name, err)
			continue
		}

		if value := strings.TrimSpace(string(data)); value != "" {
			secrets[name] = value
		}
	}

	return secrets, nil
}

// LoadDotenv parses a dotenv file and returns its variables under secret
// key names: ANTHROPIC_API_KEY becomes anthropic-api-key. The file is not
// applied to the process environment. A missing file yields an empty map.
func LoadDotenv(path string) (map[string]string, error) {
	vars, err := godotenv.Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	secrets := make(map[string]string, len(vars))
	for k, v := range vars {
		if v = strings.TrimSpace(v); v != "" {
			secrets[KeyForEnv(k)] = v
		}
	}
	return secrets, nil
}

// KeyForEnv converts an environment variable name to a secret key.
func KeyForEnv(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "-")
}

// Merge combines sources left to right; later sources do not override
// keys already present.
func Merge(sources ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, src := range sources {
		for k, v := range src {
			if _, ok := out[k]; !ok {
				out[k] = v
			}
		}
	}
	return out
}
