package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileConfig configures the file backend.
type FileConfig struct {
	// Path to the JSON secrets file.
	Path string
	// CreateIfMissing writes an empty file when none exists.
	CreateIfMissing bool
}

// FileProvider keeps secrets in a flat JSON file on disk. It exists for
// local development where no real secret store is running; the file is
// written with 0600 permissions but is otherwise unprotected.
type FileProvider struct {
	path string

	mu   sync.RWMutex
	data map[string]string
}

// NewFileProvider loads the secrets file at cfg.Path.
func NewFileProvider(cfg *FileConfig) (*FileProvider, error) {
	if cfg == nil || cfg.Path == "" {
		return nil, fmt.Errorf("file path required")
	}

	p := &FileProvider{path: cfg.Path, data: make(map[string]string)}

	err := p.load()
	switch {
	case err == nil:
	case os.IsNotExist(err) && cfg.CreateIfMissing:
		if err := p.persist(); err != nil {
			return nil, fmt.Errorf("create secrets file: %w", err)
		}
	case os.IsNotExist(err):
		// Missing file means no secrets yet; the first Set creates it.
	default:
		return nil, fmt.Errorf("load secrets file: %w", err)
	}

	return p, nil
}

func (p *FileProvider) Name() string { return "file" }

func (p *FileProvider) Get(ctx context.Context, key string) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if val, ok := p.data[key]; ok {
		return val, nil
	}
	return "", fmt.Errorf("secret not found: %s", key)
}

func (p *FileProvider) Set(ctx context.Context, key, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.data[key] = value
	return p.persist()
}

func (p *FileProvider) Delete(ctx context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.data, key)
	return p.persist()
}

// Reload re-reads the file, picking up edits made outside this process.
func (p *FileProvider) Reload() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.load()
}

func (p *FileProvider) load() error {
	raw, err := os.ReadFile(p.path)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, &p.data)
}

func (p *FileProvider) persist() error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0700); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	raw, err := json.MarshalIndent(p.data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal secrets: %w", err)
	}
	return os.WriteFile(p.path, raw, 0600)
}
