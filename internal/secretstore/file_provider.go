package secretstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"sigs.k8s.io/yaml"
)

// fileProvider serves secrets from a YAML document; "a/b" walks nested keys.
type fileProvider struct {
	path string
	data map[string]interface{}
}

func newFileProvider(path string, baseDir string) (*fileProvider, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("file provider path is required")
	}
	if baseDir != "" && !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	path = filepath.Clean(path)
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read secrets file %q: %w", path, err)
	}
	data := make(map[string]interface{})
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse secrets file %q: %w", path, err)
	}
	return &fileProvider{path: path, data: data}, nil
}

func (p *fileProvider) Resolve(_ context.Context, id string) (string, error) {
	id = strings.Trim(strings.TrimSpace(id), "/")
	if id == "" {
		return "", fmt.Errorf("secret id is required")
	}
	var current interface{} = p.data
	for _, part := range strings.Split(id, "/") {
		if part == "" {
			continue
		}
		node, ok := current.(map[string]interface{})
		if !ok {
			return "", fmt.Errorf("secret %q does not resolve to a value in %s", id, p.path)
		}
		current, ok = node[part]
		if !ok {
			return "", fmt.Errorf("secret %q not found in %s", id, p.path)
		}
	}
	switch typed := current.(type) {
	case string:
		return typed, nil
	case nil:
		return "", fmt.Errorf("secret %q resolves to empty value in %s", id, p.path)
	default:
		return "", fmt.Errorf("secret %q resolved to non-string value in %s", id, p.path)
	}
}
