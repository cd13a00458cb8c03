package transcode

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/IagoDantas/upload-ai-web/internal/domain"
	"github.com/IagoDantas/upload-ai-web/internal/engine"
	"github.com/IagoDantas/upload-ai-web/internal/logging"
)

const (
	inputName  = "input.mp4"
	outputName = "output.mp3"
	audioCodec = "libmp3lame"
)

// Error is a transcode failure with optional command context.
type Error struct {
	Message    string            `json:"message"`
	CommandLog engine.CommandLog `json:"commandLog"`
	Err        error             `json:"-"`
}

// Error formats transcode failures for logs and UI.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.CommandLog.Command == "" {
		if e.Err != nil {
			return fmt.Sprintf("transcode: %s: %v", e.Message, e.Err)
		}
		return "transcode: " + e.Message
	}

	return fmt.Sprintf(
		"transcode: %s (cmd=%s exit=%d)",
		e.Message,
		e.CommandLog.Command,
		e.CommandLog.ExitCode,
	)
}

// Unwrap exposes underlying error for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// MediaEngine is the subset of the engine the transcoder drives.
type MediaEngine interface {
	WriteFile(name string, data []byte) error
	Exec(ctx context.Context, args []string, onProgress domain.ProgressFunc) (engine.CommandLog, error)
	ReadFile(name string) ([]byte, error)
	DeleteFile(name string) error
}

// Acquirer yields the shared engine instance.
type Acquirer func(ctx context.Context) (MediaEngine, error)

// HandleAcquirer adapts an engine handle to an Acquirer.
func HandleAcquirer(h *engine.Handle) Acquirer {
	return func(ctx context.Context) (MediaEngine, error) {
		e, err := h.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		return e, nil
	}
}

// Transcoder strips the audio track of a video into a small MP3.
type Transcoder struct {
	acquire Acquirer
	onLog   func(engine.CommandLog)
}

// NewTranscoder builds a transcoder over the shared engine. onLog, if set,
// receives every ffmpeg command log.
func NewTranscoder(acquire Acquirer, onLog func(engine.CommandLog)) *Transcoder {
	return &Transcoder{acquire: acquire, onLog: onLog}
}

// Transcode converts video into an AudioArtifact. onProgress observes the
// ffmpeg run of this call only.
func (t *Transcoder) Transcode(ctx context.Context, video domain.VideoAsset, onProgress domain.ProgressFunc) (domain.AudioArtifact, error) {
	log := logging.NewLogger(ctx).WithField("video", video.Name)
	if len(video.Data) == 0 {
		return domain.AudioArtifact{}, &Error{Message: "input video is empty"}
	}

	eng, err := t.acquire(ctx)
	if err != nil {
		return domain.AudioArtifact{}, &Error{Message: "media engine unavailable", Err: err}
	}

	log.Infof("convert started size=%d", video.Size())
	defer func() {
		// Fixed names are shared by every run; clear them for the next one.
		for _, name := range []string{inputName, outputName} {
			if err := eng.DeleteFile(name); err != nil {
				log.Warnf("remove %s: %v", name, err)
			}
		}
	}()

	if err := eng.WriteFile(inputName, video.Data); err != nil {
		return domain.AudioArtifact{}, &Error{Message: "cannot stage input video", Err: err}
	}

	args := buildFFmpegArgs(inputName, outputName)
	cmdLog, runErr := eng.Exec(ctx, args, onProgress)
	emitLog(t.onLog, cmdLog)
	if runErr != nil {
		return domain.AudioArtifact{}, &Error{
			Message:    "ffmpeg audio extraction failed",
			CommandLog: cmdLog,
			Err:        runErr,
		}
	}

	data, err := eng.ReadFile(outputName)
	if err != nil {
		return domain.AudioArtifact{}, &Error{
			Message:    "ffmpeg completed but output file is missing",
			CommandLog: cmdLog,
			Err:        err,
		}
	}
	if len(data) == 0 {
		return domain.AudioArtifact{}, &Error{
			Message:    "ffmpeg produced an empty audio file",
			CommandLog: cmdLog,
		}
	}

	log.Infof("convert finished audio_size=%d", len(data))
	return domain.AudioArtifact{
		Name:        domain.AudioFileName,
		MIMEType:    domain.AudioMIME,
		BitrateKbps: domain.AudioBitrateKbps,
		Data:        data,
	}, nil
}

// IsEngineInit reports whether err originates from loading the engine.
func IsEngineInit(err error) bool {
	var initErr *engine.InitError
	return errors.As(err, &initErr)
}

// emitLog forwards command logs when callback is configured.
func emitLog(cb func(engine.CommandLog), log engine.CommandLog) {
	if cb != nil {
		cb(log)
	}
}

// buildFFmpegArgs selects the audio stream only and re-encodes it to MP3
// at the fixed bitrate.
func buildFFmpegArgs(inputPath, outPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-map", "0:a",
		"-b:a", strconv.Itoa(domain.AudioBitrateKbps) + "k",
		"-acodec", audioCodec,
		outPath,
	}
}
