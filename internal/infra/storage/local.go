package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Local writes media under Dir and serves it from PublicPrefix (e.g. "/uploads").
type Local struct {
	Dir          string
	PublicPrefix string
}

func NewLocal(dir, publicPrefix string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("local storage: %w", err)
	}
	return &Local{Dir: dir, PublicPrefix: strings.TrimRight(publicPrefix, "/")}, nil
}

func (l *Local) Store(ctx context.Context, folder, name, contentType string, data []byte) (string, error) {
	if strings.Contains(folder, "..") || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("local storage: invalid object path %s/%s", folder, name)
	}
	dir := filepath.Join(l.Dir, folder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("local storage: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("local storage: %w", err)
	}
	return path.Join(l.PublicPrefix, folder, name), nil
}
