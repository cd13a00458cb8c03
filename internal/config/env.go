package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/IagoDantas/upload-ai-web/internal/domain"
)

// Environment variables that override persisted settings.
const (
	EnvAPIBaseURL     = "UPLOAD_AI_API_URL"
	EnvFFmpegPath     = "UPLOAD_AI_FFMPEG"
	EnvWorkDir        = "UPLOAD_AI_WORK_DIR"
	EnvLogLevel       = "UPLOAD_AI_LOG_LEVEL"
	EnvRequestTimeout = "UPLOAD_AI_REQUEST_TIMEOUT"
)

// LoadEnv loads .env files into the process environment. Variables that
// are already set win, and missing files are skipped.
func LoadEnv(paths ...string) error {
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// ApplyEnv overlays environment overrides on cfg using lookup, which
// defaults to os.LookupEnv.
func ApplyEnv(cfg domain.Settings, lookup func(string) (string, bool)) (domain.Settings, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	get := func(key string) (string, bool) {
		value, ok := lookup(key)
		value = strings.TrimSpace(value)
		return value, ok && value != ""
	}

	if value, ok := get(EnvAPIBaseURL); ok {
		cfg.APIBaseURL = value
	}
	if value, ok := get(EnvFFmpegPath); ok {
		cfg.FFmpegPath = value
	}
	if value, ok := get(EnvWorkDir); ok {
		cfg.WorkDir = value
	}
	if value, ok := get(EnvLogLevel); ok {
		cfg.LogLevel = value
	}
	if value, ok := get(EnvRequestTimeout); ok {
		seconds, err := strconv.Atoi(value)
		if err != nil || seconds <= 0 {
			return cfg, fmt.Errorf("%s must be a positive integer, got %q", EnvRequestTimeout, value)
		}
		cfg.RequestTimeoutSeconds = seconds
	}

	return cfg, nil
}
