package avatar

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// LocalStore writes images under Dir and serves them from BaseURL.
type LocalStore struct {
	Dir     string
	BaseURL string
}

func (s LocalStore) Put(_ context.Context, key, _ string, data []byte) (string, error) {
	rel := filepath.FromSlash(strings.TrimPrefix(key, "avatars/"))
	full := filepath.Join(s.Dir, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create avatar dir: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("write avatar: %w", err)
	}
	return strings.TrimSuffix(s.BaseURL, "/") + "/" + path.Clean(filepath.ToSlash(rel)), nil
}
