package config

import (
	"os"
	"path/filepath"

	"github.com/IagoDantas/upload-ai-web/internal/domain"
)

const (
	// DefaultAPIBaseURL is the local backend the web client talked to.
	DefaultAPIBaseURL = "http://localhost:3333"
	// DefaultRequestTimeoutSeconds bounds a single backend request.
	DefaultRequestTimeoutSeconds = 300

	appDirName = ".upload-ai"
)

// AppDir returns the per-user directory for settings and scratch data.
func AppDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, appDirName)
}

// SettingsPath returns the default location of the settings file.
func SettingsPath() string {
	return filepath.Join(AppDir(), "settings.json")
}

// DefaultSettings returns baseline local configuration for first launch.
func DefaultSettings() domain.Settings {
	return domain.Settings{
		APIBaseURL:            DefaultAPIBaseURL,
		FFmpegPath:            "ffmpeg",
		WorkDir:               filepath.Join(AppDir(), "work"),
		LogLevel:              "info",
		RequestTimeoutSeconds: DefaultRequestTimeoutSeconds,
	}
}

// Normalize fills empty fields with defaults.
func Normalize(cfg domain.Settings) domain.Settings {
	defaults := DefaultSettings()
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaults.APIBaseURL
	}
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = defaults.FFmpegPath
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = defaults.WorkDir
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaults.LogLevel
	}
	if cfg.RequestTimeoutSeconds <= 0 {
		cfg.RequestTimeoutSeconds = defaults.RequestTimeoutSeconds
	}
	return cfg
}
