package secrets

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

// ==================== EnvProvider Tests ====================

func TestEnvProvider_Name(t *testing.T) {
	p := NewEnvProvider("")
	if p.Name() != "env" {
		t.Fatalf("expected 'env', got %s", p.Name())
	}
}

func TestEnvProvider_Get_WithPrefix(t *testing.T) {
	os.Setenv("LECTERN_TEST_SECRET", "secret_value")
	defer os.Unsetenv("LECTERN_TEST_SECRET")

	p := NewEnvProvider("LECTERN_")
	val, err := p.Get(context.Background(), "test_secret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "secret_value" {
		t.Fatalf("expected 'secret_value', got %s", val)
	}
}

func TestEnvProvider_Get_WithoutPrefix(t *testing.T) {
	os.Setenv("TEST_SECRET_NO_PREFIX", "direct_value")
	defer os.Unsetenv("TEST_SECRET_NO_PREFIX")

	p := NewEnvProvider("LECTERN_")
	val, err := p.Get(context.Background(), "test_secret_no_prefix")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "direct_value" {
		t.Fatalf("expected 'direct_value', got %s", val)
	}
}

func TestEnvProvider_Get_NotFound(t *testing.T) {
	p := NewEnvProvider("LECTERN_")
	_, err := p.Get(context.Background(), "nonexistent_secret_xyz")
	if err == nil {
		t.Fatal("expected error for missing secret")
	}
}

func TestEnvProvider_SetAndDelete(t *testing.T) {
	p := NewEnvProvider("LECTERN_")

	if err := p.Set(context.Background(), "set_test", "new_value"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer os.Unsetenv("LECTERN_SET_TEST")

	val, err := p.Get(context.Background(), "set_test")
	if err != nil || val != "new_value" {
		t.Fatalf("expected 'new_value', got %s (err: %v)", val, err)
	}

	if err := p.Delete(context.Background(), "set_test"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := p.Get(context.Background(), "set_test"); err == nil {
		t.Fatal("expected error after delete")
	}
}

// ==================== FileProvider Tests ====================

func TestFileProvider_RequiresPath(t *testing.T) {
	if _, err := NewFileProvider(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
	if _, err := NewFileProvider(&FileConfig{}); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestFileProvider_CreateIfMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.json")

	p, err := NewFileProvider(&FileConfig{Path: path, CreateIfMissing: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected secrets file to exist: %v", err)
	}
	if p.Name() != "file" {
		t.Fatalf("expected 'file', got %s", p.Name())
	}
}

func TestFileProvider_SetGetDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.json")
	p, err := NewFileProvider(&FileConfig{Path: path, CreateIfMissing: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := context.Background()

	if err := p.Set(ctx, string(SecretLLMAPIKey), "sk-test"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	val, err := p.Get(ctx, string(SecretLLMAPIKey))
	if err != nil || val != "sk-test" {
		t.Fatalf("expected 'sk-test', got %s (err: %v)", val, err)
	}

	// Secrets survive a reload from disk.
	reloaded, err := NewFileProvider(&FileConfig{Path: path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	val, err = reloaded.Get(ctx, string(SecretLLMAPIKey))
	if err != nil || val != "sk-test" {
		t.Fatalf("expected persisted 'sk-test', got %s (err: %v)", val, err)
	}

	if err := p.Delete(ctx, string(SecretLLMAPIKey)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := p.Get(ctx, string(SecretLLMAPIKey)); err == nil {
		t.Fatal("expected error after delete")
	}
}

func TestFileProvider_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.json")
	p, err := NewFileProvider(&FileConfig{Path: path, CreateIfMissing: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Another process edits the file behind our back.
	writer, err := NewFileProvider(&FileConfig{Path: path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()
	if err := writer.Set(ctx, string(SecretVectorAPIKey), "qd-key"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := p.Get(ctx, string(SecretVectorAPIKey)); err == nil {
		t.Fatal("expected miss before reload")
	}
	if err := p.Reload(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	val, err := p.Get(ctx, string(SecretVectorAPIKey))
	if err != nil || val != "qd-key" {
		t.Fatalf("expected 'qd-key' after reload, got %s (err: %v)", val, err)
	}
}

func TestFileProvider_RestrictivePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.json")
	p, err := NewFileProvider(&FileConfig{Path: path, CreateIfMissing: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.Set(context.Background(), "k", "v"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Fatalf("expected mode 0600, got %v", info.Mode().Perm())
	}
}

// ==================== Manager Tests ====================

func TestNewManager_Defaults(t *testing.T) {
	m, err := NewManager(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.primary.Name() != "env" {
		t.Fatalf("expected env primary, got %s", m.primary.Name())
	}
}

func TestNewManager_UnknownProvider(t *testing.T) {
	_, err := NewManager(&Config{Provider: "vault"})
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestNewManager_FileRequiresConfig(t *testing.T) {
	_, err := NewManager(&Config{Provider: "file"})
	if err == nil {
		t.Fatal("expected error for missing file config")
	}
}

func TestManager_EnvFallback(t *testing.T) {
	// Primary is a file provider without the key; env fallback serves it.
	path := filepath.Join(t.TempDir(), "secrets.json")
	m, err := NewManager(&Config{
		Provider:   "file",
		FileConfig: &FileConfig{Path: path, CreateIfMissing: true},
		EnvPrefix:  "LECTERN_",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	os.Setenv("LECTERN_VECTOR_API_KEY", "qdrant-key")
	defer os.Unsetenv("LECTERN_VECTOR_API_KEY")

	val, err := m.Get(context.Background(), string(SecretVectorAPIKey))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "qdrant-key" {
		t.Fatalf("expected 'qdrant-key', got %s", val)
	}
}

func TestManager_GetOrDefault(t *testing.T) {
	m, err := NewManager(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m.DisableCache()

	val := m.GetOrDefault(context.Background(), "definitely_missing_xyz", "fallback")
	if val != "fallback" {
		t.Fatalf("expected 'fallback', got %s", val)
	}
}

func TestManager_Cache(t *testing.T) {
	m, err := NewManager(&Config{EnvPrefix: "LECTERN_"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	os.Setenv("LECTERN_CACHED_KEY", "first")
	val, _ := m.Get(context.Background(), "cached_key")
	if val != "first" {
		t.Fatalf("expected 'first', got %s", val)
	}

	// The cached value survives the env var changing underneath.
	os.Setenv("LECTERN_CACHED_KEY", "second")
	defer os.Unsetenv("LECTERN_CACHED_KEY")
	val, _ = m.Get(context.Background(), "cached_key")
	if val != "first" {
		t.Fatalf("expected cached 'first', got %s", val)
	}

	m.ClearCache()
	val, _ = m.Get(context.Background(), "cached_key")
	if val != "second" {
		t.Fatalf("expected 'second' after cache clear, got %s", val)
	}
}
