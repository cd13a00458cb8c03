package transcode

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/IagoDantas/upload-ai-web/internal/domain"
	"github.com/IagoDantas/upload-ai-web/internal/engine"
)

// fakeEngine keeps the virtual filesystem in a map.
type fakeEngine struct {
	files   map[string][]byte
	deleted []string
	exec    func(ctx context.Context, args []string, onProgress domain.ProgressFunc) (engine.CommandLog, error)
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{files: map[string][]byte{}}
}

func (f *fakeEngine) WriteFile(name string, data []byte) error {
	f.files[name] = append([]byte(nil), data...)
	return nil
}

func (f *fakeEngine) Exec(ctx context.Context, args []string, onProgress domain.ProgressFunc) (engine.CommandLog, error) {
	if f.exec == nil {
		return engine.CommandLog{Command: "ffmpeg", Args: args}, nil
	}
	return f.exec(ctx, args, onProgress)
}

func (f *fakeEngine) ReadFile(name string) ([]byte, error) {
	data, ok := f.files[name]
	if !ok {
		return nil, errors.New("file does not exist")
	}
	return data, nil
}

func (f *fakeEngine) DeleteFile(name string) error {
	f.deleted = append(f.deleted, name)
	delete(f.files, name)
	return nil
}

func acquirerFor(e MediaEngine) Acquirer {
	return func(context.Context) (MediaEngine, error) { return e, nil }
}

func sampleVideo() domain.VideoAsset {
	return domain.VideoAsset{Name: "clip.mp4", MIMEType: domain.AcceptedVideoMIME, Data: []byte("mp4-with-aac")}
}

// TestTranscodeProducesMP3Artifact checks the happy path and file staging.
func TestTranscodeProducesMP3Artifact(t *testing.T) {
	eng := newFakeEngine()
	var stagedInput string
	var gotArgs []string
	eng.exec = func(ctx context.Context, args []string, onProgress domain.ProgressFunc) (engine.CommandLog, error) {
		stagedInput = string(eng.files[inputName])
		gotArgs = args
		onProgress(0.5)
		onProgress(1)
		eng.files[outputName] = []byte("ID3-mp3-bytes")
		return engine.CommandLog{Command: "ffmpeg", Args: args}, nil
	}

	var logs []engine.CommandLog
	tr := NewTranscoder(acquirerFor(eng), func(l engine.CommandLog) { logs = append(logs, l) })

	var ticks []float64
	artifact, err := tr.Transcode(context.Background(), sampleVideo(), func(r float64) { ticks = append(ticks, r) })
	if err != nil {
		t.Fatalf("Transcode() error = %v", err)
	}

	if artifact.MIMEType != "audio/mpeg" {
		t.Fatalf("mime = %q, want audio/mpeg", artifact.MIMEType)
	}
	if artifact.BitrateKbps != 20 {
		t.Fatalf("bitrate = %d, want 20", artifact.BitrateKbps)
	}
	if artifact.Name != "audio.mp3" {
		t.Fatalf("name = %q, want audio.mp3", artifact.Name)
	}
	if string(artifact.Data) != "ID3-mp3-bytes" {
		t.Fatalf("data = %q", artifact.Data)
	}
	if stagedInput != "mp4-with-aac" {
		t.Fatalf("staged input = %q", stagedInput)
	}
	if argValue(gotArgs, "-map") != "0:a" || argValue(gotArgs, "-b:a") != "20k" || argValue(gotArgs, "-acodec") != "libmp3lame" {
		t.Fatalf("unexpected args: %v", gotArgs)
	}
	if len(ticks) != 2 || ticks[1] != 1 {
		t.Fatalf("ticks = %v", ticks)
	}
	if len(logs) != 1 {
		t.Fatalf("logs = %d, want 1", len(logs))
	}
	if len(eng.files) != 0 {
		t.Fatalf("scratch files left behind: %v", eng.files)
	}
}

// TestTranscodeCommandFailure checks ffmpeg error mapping and cleanup.
func TestTranscodeCommandFailure(t *testing.T) {
	eng := newFakeEngine()
	eng.exec = func(ctx context.Context, args []string, onProgress domain.ProgressFunc) (engine.CommandLog, error) {
		return engine.CommandLog{
			Command:  "ffmpeg",
			Args:     args,
			ExitCode: 1,
			Stderr:   "input.mp4: Invalid data found when processing input",
		}, errors.New("exit status 1")
	}

	tr := NewTranscoder(acquirerFor(eng), nil)
	_, err := tr.Transcode(context.Background(), sampleVideo(), nil)
	if err == nil {
		t.Fatal("expected error")
	}

	var tErr *Error
	if !errors.As(err, &tErr) {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if tErr.CommandLog.ExitCode != 1 {
		t.Fatalf("exit code = %d, want 1", tErr.CommandLog.ExitCode)
	}
	if !strings.Contains(tErr.Error(), "exit=1") {
		t.Fatalf("error text = %q", tErr.Error())
	}
	if IsEngineInit(err) {
		t.Fatal("command failure should not be reported as engine init")
	}
	if len(eng.deleted) != 2 {
		t.Fatalf("deleted = %v, want input and output", eng.deleted)
	}
}

// TestTranscodeEngineInitFailure checks the init error stays visible.
func TestTranscodeEngineInitFailure(t *testing.T) {
	initErr := &engine.InitError{Message: "ffmpeg executable not found: ffmpeg"}
	tr := NewTranscoder(func(context.Context) (MediaEngine, error) { return nil, initErr }, nil)

	_, err := tr.Transcode(context.Background(), sampleVideo(), nil)
	var tErr *Error
	if !errors.As(err, &tErr) {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if !IsEngineInit(err) {
		t.Fatalf("expected engine init error in chain, got %v", err)
	}
}

// TestTranscodeMissingOutput checks the read-back guard.
func TestTranscodeMissingOutput(t *testing.T) {
	eng := newFakeEngine()
	tr := NewTranscoder(acquirerFor(eng), nil)

	_, err := tr.Transcode(context.Background(), sampleVideo(), nil)
	var tErr *Error
	if !errors.As(err, &tErr) {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if tErr.Message != "ffmpeg completed but output file is missing" {
		t.Fatalf("message = %q", tErr.Message)
	}
}

// TestTranscodeRejectsEmptyVideo checks input validation.
func TestTranscodeRejectsEmptyVideo(t *testing.T) {
	called := false
	tr := NewTranscoder(func(context.Context) (MediaEngine, error) {
		called = true
		return newFakeEngine(), nil
	}, nil)

	if _, err := tr.Transcode(context.Background(), domain.VideoAsset{Name: "empty.mp4"}, nil); err == nil {
		t.Fatal("expected error")
	}
	if called {
		t.Fatal("engine should not be acquired for empty input")
	}
}

// TestBuildFFmpegArgs verifies deterministic ffmpeg command arguments.
func TestBuildFFmpegArgs(t *testing.T) {
	args := buildFFmpegArgs("input.mp4", "output.mp3")
	want := []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", "input.mp4",
		"-map", "0:a",
		"-b:a", "20k",
		"-acodec", "libmp3lame",
		"output.mp3",
	}

	if len(args) != len(want) {
		t.Fatalf("args len = %d, want %d", len(args), len(want))
	}
	for i := range want {
		if args[i] != want[i] {
			t.Fatalf("args[%d] = %q, want %q", i, args[i], want[i])
		}
	}
}

// argValue returns value for key-style CLI args.
func argValue(args []string, key string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == key {
			return args[i+1]
		}
	}
	return ""
}
