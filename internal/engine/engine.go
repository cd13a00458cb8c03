package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/IagoDantas/upload-ai-web/internal/domain"
)

// ErrInvalidName is returned for file names that would escape the
// engine's scratch directory.
var ErrInvalidName = errors.New("invalid engine file name")

// CommandLog captures one ffmpeg invocation result.
type CommandLog struct {
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	ExitCode int      `json:"exitCode"`
	Stdout   string   `json:"stdout"`
	Stderr   string   `json:"stderr"`
}

// InitError reports that the engine runtime could not be loaded.
type InitError struct {
	Message string
	Err     error
}

// Error formats init failures for logs and UI.
func (e *InitError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return "engine init: " + e.Message
	}
	return fmt.Sprintf("engine init: %s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *InitError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Engine runs ffmpeg against a private scratch directory that acts as its
// virtual filesystem. Files are addressed by flat names only.
type Engine struct {
	ffmpegPath string
	version    string
	root       string
	runner     commandRunner
}

// Version returns the first line of `ffmpeg -version`.
func (e *Engine) Version() string {
	return e.version
}

// Root returns the scratch directory backing the virtual filesystem.
func (e *Engine) Root() string {
	return e.root
}

// WriteFile stores data under name in the virtual filesystem.
func (e *Engine) WriteFile(name string, data []byte) error {
	path, err := e.resolve(name)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// ReadFile returns the content stored under name.
func (e *Engine) ReadFile(name string) ([]byte, error) {
	path, err := e.resolve(name)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// DeleteFile removes name; missing files are not an error.
func (e *Engine) DeleteFile(name string) error {
	path, err := e.resolve(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Exec runs ffmpeg with args inside the virtual filesystem. onProgress, if
// set, receives completion ratios for this call only.
func (e *Engine) Exec(ctx context.Context, args []string, onProgress domain.ProgressFunc) (CommandLog, error) {
	tracker := newProgressTracker(onProgress)
	result, err := e.runner.Run(ctx, e.root, e.ffmpegPath, args, tracker.observe)
	log := CommandLog{
		Command:  e.ffmpegPath,
		Args:     append([]string(nil), args...),
		ExitCode: result.ExitCode,
		Stdout:   result.Stdout,
		Stderr:   result.Stderr,
	}
	if err != nil {
		return log, err
	}

	tracker.finish()
	return log, nil
}

// close removes the scratch directory.
func (e *Engine) close() error {
	if e == nil || e.root == "" {
		return nil
	}
	return os.RemoveAll(e.root)
}

func (e *Engine) resolve(name string) (string, error) {
	clean := strings.TrimSpace(name)
	if clean == "" || clean == "." || clean == ".." || strings.ContainsAny(clean, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(e.root, clean), nil
}

// Options configures how the engine runtime is located and where its
// scratch space lives.
type Options struct {
	FFmpegPath string
	WorkDir    string
}

// Loader performs the expensive load-and-initialize work.
type Loader func(ctx context.Context) (*Engine, error)

// NewLoader returns the production loader backed by the ffmpeg binary.
func NewLoader(opts Options) Loader {
	l := &loader{
		opts:      opts,
		runner:    &execRunner{},
		lookPath:  exec.LookPath,
		mkdirAll:  os.MkdirAll,
		mkdirTemp: os.MkdirTemp,
	}
	return l.load
}

type loader struct {
	opts      Options
	runner    commandRunner
	lookPath  func(string) (string, error)
	mkdirAll  func(string, os.FileMode) error
	mkdirTemp func(dir, pattern string) (string, error)
}

func (l *loader) load(ctx context.Context) (*Engine, error) {
	name := strings.TrimSpace(l.opts.FFmpegPath)
	if name == "" {
		name = "ffmpeg"
	}

	path, err := l.lookPath(name)
	if err != nil {
		return nil, &InitError{Message: fmt.Sprintf("ffmpeg executable not found: %s", name), Err: err}
	}

	versionResult, err := l.runner.Run(ctx, "", path, []string{"-version"}, nil)
	if err != nil {
		return nil, &InitError{Message: "ffmpeg cannot be started", Err: err}
	}

	encoders, err := l.runner.Run(ctx, "", path, []string{"-hide_banner", "-encoders"}, nil)
	if err != nil {
		return nil, &InitError{Message: "cannot list ffmpeg encoders", Err: err}
	}
	if !strings.Contains(encoders.Stdout, "libmp3lame") {
		return nil, &InitError{Message: "ffmpeg build has no libmp3lame encoder"}
	}

	workDir := strings.TrimSpace(l.opts.WorkDir)
	if workDir == "" {
		workDir = os.TempDir()
	}
	if err := l.mkdirAll(workDir, 0o755); err != nil {
		return nil, &InitError{Message: fmt.Sprintf("cannot create work directory: %s", workDir), Err: err}
	}
	root, err := l.mkdirTemp(workDir, "engine-*")
	if err != nil {
		return nil, &InitError{Message: "cannot create engine scratch directory", Err: err}
	}

	return &Engine{
		ffmpegPath: path,
		version:    firstLine(versionResult.Stdout),
		root:       root,
		runner:     l.runner,
	}, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
