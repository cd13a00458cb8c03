package diagnostics

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/IagoDantas/upload-ai-web/internal/backend"
	"github.com/IagoDantas/upload-ai-web/internal/domain"
)

// Diagnostic item identifiers.
const (
	IDFFmpeg     = "tool_ffmpeg"
	IDMP3Encoder = "ffmpeg_libmp3lame"
	IDAPIBaseURL = "api_base_url"
	IDWorkDir    = "work_dir"
)

const encoderCheckTimeout = 10 * time.Second

// Checker validates the media engine binary, backend address and the
// scratch directory.
type Checker struct {
	lookPath     func(string) (string, error)
	listEncoders func(string) (string, error)
	mkdirAll     func(string, os.FileMode) error
	createTemp   func(string, string) (*os.File, error)
	remove       func(string) error
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker() *Checker {
	return &Checker{
		lookPath:     exec.LookPath,
		listEncoders: listFFmpegEncoders,
		mkdirAll:     os.MkdirAll,
		createTemp:   os.CreateTemp,
		remove:       os.Remove,
	}
}

// Run executes all startup checks and returns a combined report.
func (c *Checker) Run(settings domain.Settings) domain.DiagnosticReport {
	ffmpeg, ffmpegPath := c.checkFFmpeg(settings.FFmpegPath)
	items := []domain.DiagnosticItem{
		ffmpeg,
		c.checkMP3Encoder(ffmpegPath),
		c.checkAPIBaseURL(settings.APIBaseURL),
		c.checkWorkDir(settings.WorkDir),
	}

	hasFailures := false
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			hasFailures = true
			break
		}
	}

	return domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

// checkFFmpeg verifies the configured ffmpeg executable resolves.
func (c *Checker) checkFFmpeg(configured string) (domain.DiagnosticItem, string) {
	name := strings.TrimSpace(configured)
	if name == "" {
		name = "ffmpeg"
	}

	path, err := c.lookPath(name)
	if err != nil {
		return domain.DiagnosticItem{
			ID:      IDFFmpeg,
			Name:    "ffmpeg",
			Status:  domain.DiagnosticStatusFail,
			Message: fmt.Sprintf("Tool not found: %s", name),
			Hint:    "Install ffmpeg or point the ffmpeg path setting at the binary before converting videos.",
			Fixable: true,
		}, ""
	}

	return domain.DiagnosticItem{
		ID:      IDFFmpeg,
		Name:    "ffmpeg",
		Status:  domain.DiagnosticStatusPass,
		Message: fmt.Sprintf("Found at %s", path),
	}, path
}

// checkMP3Encoder verifies the ffmpeg build can produce MP3 audio.
func (c *Checker) checkMP3Encoder(ffmpegPath string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   IDMP3Encoder,
		Name: "MP3 encoder",
	}

	if ffmpegPath == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Skipped: ffmpeg is not available."
		item.Hint = "Fix the ffmpeg check first."
		return item
	}

	output, err := c.listEncoders(ffmpegPath)
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot list encoders: %v", err)
		item.Hint = "Run ffmpeg -encoders manually to check the installation."
		return item
	}
	if !strings.Contains(output, "libmp3lame") {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "ffmpeg build has no libmp3lame encoder."
		item.Hint = "Install an ffmpeg build compiled with --enable-libmp3lame."
		item.Fixable = true
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = "libmp3lame encoder available."
	return item
}

// checkAPIBaseURL validates the backend address.
func (c *Checker) checkAPIBaseURL(raw string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   IDAPIBaseURL,
		Name: "Backend URL",
	}

	base, err := backend.ParseBaseURL(raw)
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = err.Error()
		item.Hint = "Use an absolute http(s) URL such as http://localhost:3333."
		item.Fixable = true
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Requests go to %s", base.String())
	return item
}

// checkWorkDir validates scratch directory existence and write access.
func (c *Checker) checkWorkDir(workDir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   IDWorkDir,
		Name: "Work directory",
	}

	if strings.TrimSpace(workDir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Work directory is empty."
		item.Hint = "Set a directory where the media engine can keep scratch files."
		item.Fixable = true
		return item
	}

	if err := c.mkdirAll(workDir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create work directory: %s", workDir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		item.Fixable = true
		return item
	}

	tmpFile, err := c.createTemp(workDir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Work directory is not writable: %s", workDir)
		item.Hint = "Choose a writable directory for conversion scratch files."
		item.Fixable = true
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", workDir)
	return item
}

func listFFmpegEncoders(ffmpegPath string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), encoderCheckTimeout)
	defer cancel()

	output, err := exec.CommandContext(ctx, ffmpegPath, "-hide_banner", "-encoders").Output()
	if err != nil {
		return "", err
	}
	return string(output), nil
}

// NewCheckerForTests creates checker with injectable dependencies.
func NewCheckerForTests(
	lookPath func(string) (string, error),
	listEncoders func(string) (string, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
) *Checker {
	return &Checker{
		lookPath:     lookPath,
		listEncoders: listEncoders,
		mkdirAll:     mkdirAll,
		createTemp:   createTemp,
		remove:       remove,
	}
}
