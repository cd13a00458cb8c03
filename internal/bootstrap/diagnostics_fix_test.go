package bootstrap

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/IagoDantas/upload-ai-web/internal/config"
	"github.com/IagoDantas/upload-ai-web/internal/diagnostics"
	"github.com/IagoDantas/upload-ai-web/internal/domain"
)

// TestInstallOrFixWorkDirCreatesDirectory ensures work dir fix creates missing directories.
func TestInstallOrFixWorkDirCreatesDirectory(t *testing.T) {
	workDir := filepath.Join(t.TempDir(), "nested", "work")

	fixed, changed, err := installOrFixWorkDir(domain.Settings{WorkDir: workDir})
	if err != nil {
		t.Fatalf("fix work dir: %v", err)
	}
	if changed {
		t.Fatal("expected settings to remain unchanged")
	}
	if fixed.WorkDir != workDir {
		t.Fatalf("WorkDir = %s, want %s", fixed.WorkDir, workDir)
	}
	if _, err := os.Stat(workDir); err != nil {
		t.Fatalf("stat work dir: %v", err)
	}
}

// TestInstallOrFixWorkDirFillsEmptyPath ensures empty paths fall back to the default.
func TestInstallOrFixWorkDirFillsEmptyPath(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("USERPROFILE", os.Getenv("HOME"))

	fixed, changed, err := installOrFixWorkDir(domain.Settings{})
	if err != nil {
		t.Fatalf("fix work dir: %v", err)
	}
	if !changed {
		t.Fatal("expected settings to change")
	}
	if fixed.WorkDir != config.DefaultSettings().WorkDir {
		t.Fatalf("WorkDir = %s, want default", fixed.WorkDir)
	}
}

// TestInstallOrFixAPIBaseURL ensures only unusable addresses are reset.
func TestInstallOrFixAPIBaseURL(t *testing.T) {
	kept, changed := installOrFixAPIBaseURL(domain.Settings{APIBaseURL: "https://upload.example.com"})
	if changed || kept.APIBaseURL != "https://upload.example.com" {
		t.Fatalf("expected valid url to be kept, got %+v changed=%v", kept, changed)
	}

	fixed, changed := installOrFixAPIBaseURL(domain.Settings{APIBaseURL: "localhost:3333"})
	if !changed || fixed.APIBaseURL != config.DefaultAPIBaseURL {
		t.Fatalf("expected default url, got %+v changed=%v", fixed, changed)
	}
}

// TestInstallOrFixDiagnosticResetsBackendURL ensures fixes are persisted and applied.
func TestInstallOrFixDiagnosticResetsBackendURL(t *testing.T) {
	app := newTestApp(t, "http://127.0.0.1:1", &fakeTranscoder{})
	store := &fakeStore{settings: domain.Settings{APIBaseURL: "ftp://files", WorkDir: t.TempDir()}}
	app.Store = store

	if _, err := app.InstallOrFixDiagnostic(diagnostics.IDAPIBaseURL); err != nil {
		t.Fatalf("fix: %v", err)
	}
	if len(store.saved) != 1 || store.saved[0].APIBaseURL != config.DefaultAPIBaseURL {
		t.Fatalf("unexpected saved settings: %+v", store.saved)
	}
	if got := app.client.BaseURL(); got != config.DefaultAPIBaseURL {
		t.Fatalf("client base url = %q, want %q", got, config.DefaultAPIBaseURL)
	}
}

// TestInstallOrFixDiagnosticReportsInstallerError ensures ffmpeg install failures surface.
func TestInstallOrFixDiagnosticReportsInstallerError(t *testing.T) {
	original := installFFmpeg
	t.Cleanup(func() { installFFmpeg = original })
	installFFmpeg = func() error { return errors.New("no supported package manager found") }

	app := newTestApp(t, "http://127.0.0.1:1", &fakeTranscoder{})
	_, err := app.InstallOrFixDiagnostic(diagnostics.IDMP3Encoder)
	if err == nil || !strings.Contains(err.Error(), "package manager") {
		t.Fatalf("error = %v, want installer error", err)
	}
}

// TestInstallOrFixDiagnosticRejectsUnknownID ensures unsupported items are refused.
func TestInstallOrFixDiagnosticRejectsUnknownID(t *testing.T) {
	app := newTestApp(t, "http://127.0.0.1:1", &fakeTranscoder{})
	if _, err := app.InstallOrFixDiagnostic("model_path"); err == nil {
		t.Fatal("expected error for unsupported id")
	}
	if _, err := app.InstallOrFixDiagnostic("  "); err == nil {
		t.Fatal("expected error for empty id")
	}
}

// TestFFmpegInstallOptionsCoverPlatforms validates recipes exist per OS.
func TestFFmpegInstallOptionsCoverPlatforms(t *testing.T) {
	for _, goos := range []string{"windows", "darwin", "linux"} {
		options := ffmpegInstallOptions(goos)
		if len(options) == 0 {
			t.Fatalf("no install options for %s", goos)
		}
		for _, option := range options {
			if len(option.commands) == 0 || option.commands[len(option.commands)-1][0] != option.manager {
				t.Fatalf("%s: malformed option %+v", goos, option)
			}
		}
	}
	if !requiresElevation("apt-get") || requiresElevation("brew") {
		t.Fatal("unexpected elevation policy")
	}
}

// TestEnsureLocalBinOnPATHPrependsOnce validates PATH preparation.
func TestEnsureLocalBinOnPATHPrependsOnce(t *testing.T) {
	home := t.TempDir()
	t.Setenv("PATH", "/usr/bin")

	if err := ensureLocalBinOnPATH(home); err != nil {
		t.Fatalf("ensure path: %v", err)
	}
	if err := ensureLocalBinOnPATH(home); err != nil {
		t.Fatalf("ensure path again: %v", err)
	}

	want := localBinDir(home) + string(os.PathListSeparator) + "/usr/bin"
	if got := os.Getenv("PATH"); got != want {
		t.Fatalf("PATH = %q, want %q", got, want)
	}
}
