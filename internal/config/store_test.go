package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/IagoDantas/upload-ai-web/internal/domain"
)

// TestDefaultSettings verifies baseline defaults are present.
func TestDefaultSettings(t *testing.T) {
	cfg := DefaultSettings()
	if cfg.APIBaseURL != "http://localhost:3333" {
		t.Fatalf("api base url = %q, want http://localhost:3333", cfg.APIBaseURL)
	}
	if cfg.FFmpegPath != "ffmpeg" {
		t.Fatalf("ffmpeg path = %q, want ffmpeg", cfg.FFmpegPath)
	}
	if cfg.WorkDir == "" {
		t.Fatal("expected non-empty work dir")
	}
	if cfg.RequestTimeoutSeconds != DefaultRequestTimeoutSeconds {
		t.Fatalf("timeout = %d, want %d", cfg.RequestTimeoutSeconds, DefaultRequestTimeoutSeconds)
	}
}

// TestJSONStoreLoadMissingReturnsDefaults checks first-run behavior.
func TestJSONStoreLoadMissingReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "settings.json")
	store := NewJSONStore(path)

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != DefaultSettings() {
		t.Fatalf("settings = %+v, want defaults", got)
	}
}

// TestJSONStoreSaveAndLoadRoundTrip checks persisted settings fidelity.
func TestJSONStoreSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "settings.json")
	store := NewJSONStore(path)
	want := domain.Settings{
		APIBaseURL:            "https://api.example.com/v1",
		FFmpegPath:            "/opt/ffmpeg/bin/ffmpeg",
		WorkDir:               "/tmp/upload-ai",
		LogLevel:              "debug",
		RequestTimeoutSeconds: 60,
	}

	if err := store.Save(want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != want {
		t.Fatalf("settings = %+v, want %+v", got, want)
	}
}

// TestJSONStoreLoadFillsMissingFields checks partial files keep defaults.
func TestJSONStoreLoadFillsMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte(`{"apiBaseUrl":"http://backend:8080"}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := NewJSONStore(path).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.APIBaseURL != "http://backend:8080" {
		t.Fatalf("api base url = %q", got.APIBaseURL)
	}
	if got.FFmpegPath != "ffmpeg" || got.RequestTimeoutSeconds != DefaultRequestTimeoutSeconds {
		t.Fatalf("expected defaults for missing fields, got %+v", got)
	}
}

// TestJSONStoreLoadInvalidJSON checks parse error handling.
func TestJSONStoreLoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "settings.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("{not-json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	store := NewJSONStore(path)
	if _, err := store.Load(); err == nil {
		t.Fatal("expected json parse error")
	}
}
