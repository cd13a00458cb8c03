package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"github.com/IagoDantas/upload-ai-web/internal/backend"
	"github.com/IagoDantas/upload-ai-web/internal/config"
	"github.com/IagoDantas/upload-ai-web/internal/diagnostics"
	"github.com/IagoDantas/upload-ai-web/internal/domain"
	"github.com/IagoDantas/upload-ai-web/internal/engine"
	"github.com/IagoDantas/upload-ai-web/internal/ingest"
	"github.com/IagoDantas/upload-ai-web/internal/logging"
	"github.com/IagoDantas/upload-ai-web/internal/media"
	"github.com/IagoDantas/upload-ai-web/internal/preview"
	"github.com/IagoDantas/upload-ai-web/internal/transcode"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

// Push event names consumed by the frontend.
const (
	EventIngest          = "ingest:event"
	EventCompletionChunk = "completion:chunk"
)

var videoDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "MP4 video",
		Pattern:     "*.mp4",
	},
}

// VideoSelection is returned when a video is chosen for the form.
type VideoSelection struct {
	Snapshot   domain.Snapshot `json:"snapshot"`
	PreviewURL string          `json:"previewUrl"`
}

// App wires configuration, the ingestion pipeline, and UI runtime callbacks.
type App struct {
	Settings    domain.Settings
	Store       config.Store
	Machine     *ingest.Machine
	Diagnostics domain.DiagnosticReport
	assets      fs.FS
	checker     *diagnostics.Checker
	client      *backend.Client
	completer   *backend.Completer
	engine      *engine.Handle
	previews    *preview.Registry
	events      *ingest.EventBus
	loadVideo   func(string) (domain.VideoAsset, error)
	lookupEnv   func(string) (string, bool)

	mu         sync.Mutex
	runtimeCtx context.Context
	rootCtx    context.Context
	cancelRoot context.CancelFunc
	previewURL string
}

// New builds the application with persisted settings and startup diagnostics.
func New() (*App, error) {
	return NewWithAssets(nil)
}

// NewWithAssets builds the application and optionally configures embedded frontend assets.
func NewWithAssets(assets fs.FS) (*App, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve user home: %w", err)
	}
	if err := config.LoadEnv(".env", filepath.Join(config.AppDir(), ".env")); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}
	if err := ensureLocalBinOnPATH(homeDir); err != nil {
		return nil, fmt.Errorf("prepare local tool path: %w", err)
	}

	store := config.NewJSONStore(config.SettingsPath())
	settings, err := loadEffectiveSettings(store, nil)
	if err != nil {
		return nil, err
	}
	logging.Configure(settings.LogLevel, os.Stderr)

	client, err := newBackendClient(settings)
	if err != nil {
		return nil, err
	}

	checker := diagnostics.NewChecker()
	app := &App{
		Settings:    settings,
		Store:       store,
		Diagnostics: checker.Run(settings),
		assets:      assets,
		checker:     checker,
		client:      client,
	}

	app.engine = engine.NewHandle(app.loadEngine)
	app.wire(transcode.NewTranscoder(transcode.HandleAcquirer(app.engine), app.publishCommandLog))
	return app, nil
}

// wire builds the state machine and its backend collaborators around
// transcoder.
func (a *App) wire(transcoder ingest.Transcoder) {
	if a.events == nil {
		a.events = ingest.NewEventBus(1000)
	}
	if a.previews == nil {
		a.previews = preview.NewRegistry()
	}
	if a.loadVideo == nil {
		a.loadVideo = media.LoadVideo
	}
	if a.rootCtx == nil {
		a.rootCtx, a.cancelRoot = context.WithCancel(context.Background())
	}

	a.completer = backend.NewCompleter(a.client)
	a.Machine = ingest.NewMachine(ingest.Config{
		Transcoder: transcoder,
		Uploader:   backend.NewUploader(a.client),
		Requester:  backend.NewTranscriptionRequester(a.client),
		Events:     a.events,
		Notify:     a.emitIngestEvent,
		Classify:   classifyFailure,
		OnVideoReady: func(id domain.VideoID) {
			logging.NewLogger(a.rootCtx).Infof("video ready for completion video_id=%s", id)
		},
	})
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
		assetOptions.Handler = a.previews.Routes(nil)
	} else {
		assetOptions.Handler = a.previews.Routes(http.FileServer(http.Dir("./frontend")))
	}

	return wails.Run(&options.App{
		Title:       "upload.ai",
		Width:       1180,
		Height:      780,
		AssetServer: assetOptions,
		OnStartup:   a.Startup,
		OnShutdown:  a.Shutdown,
		Bind:        []interface{}{a},
	})
}

// Startup stores Wails runtime context for push events.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runtimeCtx = ctx
}

// Shutdown discards in-flight work and releases the engine and previews.
func (a *App) Shutdown(ctx context.Context) {
	a.mu.Lock()
	a.runtimeCtx = nil
	cancel := a.cancelRoot
	a.previewURL = ""
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if a.Machine != nil {
		a.Machine.Close()
	}
	if a.previews != nil {
		a.previews.ReleaseAll()
	}
	if a.engine != nil {
		if err := a.engine.Close(); err != nil {
			logging.NewLogger(ctx).Warnf("release media engine: %v", err)
		}
	}
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Diagnostics
}

// GetSettings loads and returns the effective settings.
func (a *App) GetSettings() (domain.Settings, error) {
	settings, err := loadEffectiveSettings(a.Store, a.lookupEnv)
	if err != nil {
		return domain.Settings{}, err
	}

	a.mu.Lock()
	a.Settings = settings
	a.mu.Unlock()

	return settings, nil
}

// SaveSettings normalizes and persists settings, then applies them and
// refreshes diagnostics.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized := normalizeSettings(settings)
	if err := a.Store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}

	a.applySettings(normalized)
	a.refreshDiagnosticsFromSettings(normalized)
	return normalized, nil
}

// RefreshDiagnostics reloads settings and reruns dependency checks.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	settings, err := loadEffectiveSettings(a.Store, a.lookupEnv)
	if err != nil {
		return domain.DiagnosticReport{}, err
	}

	return a.refreshDiagnosticsFromSettings(settings), nil
}

// PickVideo opens a native file dialog and selects the chosen MP4. A
// cancelled dialog leaves the form unchanged.
func (a *App) PickVideo() (VideoSelection, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return VideoSelection{}, err
	}

	path, err := wailsruntime.OpenFileDialog(ctx, wailsruntime.OpenDialogOptions{
		Title:   "Select video",
		Filters: videoDialogFilter,
	})
	if err != nil {
		return VideoSelection{}, err
	}

	path = strings.TrimSpace(path)
	if path == "" {
		return a.currentSelection(), nil
	}
	return a.SelectVideoPath(path)
}

// SelectVideoPath loads the video at path into the form and publishes a
// preview for it. The previous preview is released.
func (a *App) SelectVideoPath(path string) (VideoSelection, error) {
	asset, err := a.loadVideo(path)
	if err != nil {
		return VideoSelection{}, fmt.Errorf("load video: %w", err)
	}
	if err := a.Machine.SelectVideo(asset); err != nil {
		return VideoSelection{}, err
	}

	url := a.previews.Publish(asset)
	a.mu.Lock()
	previous := a.previewURL
	a.previewURL = url
	a.mu.Unlock()
	if previous != "" {
		a.previews.Release(previous)
	}

	logging.NewLogger(a.rootCtx).Infof("video selected name=%s size=%d mime=%s", asset.Name, asset.Size(), asset.MIMEType)
	return VideoSelection{Snapshot: a.Machine.Snapshot(), PreviewURL: url}, nil
}

// SetPrompt stores the transcription prompt hint.
func (a *App) SetPrompt(prompt string) (domain.Snapshot, error) {
	if err := a.Machine.SetPrompt(prompt); err != nil {
		return a.Machine.Snapshot(), err
	}
	return a.Machine.Snapshot(), nil
}

// SubmitVideo records prompt and starts the ingestion pipeline. Submitting
// without a video or during a run changes nothing, prompt included.
func (a *App) SubmitVideo(prompt string) (domain.Snapshot, error) {
	snap, err := a.Machine.SubmitWith(a.rootContext(), prompt)
	if errors.Is(err, ingest.ErrNoVideoSelected) || errors.Is(err, ingest.ErrRunInProgress) {
		logging.NewLogger(a.rootCtx).Debugf("submit ignored: %v", err)
		return snap, nil
	}
	return snap, err
}

// DismissFailure returns a failed form to waiting.
func (a *App) DismissFailure() (domain.Snapshot, error) {
	if err := a.Machine.Dismiss(); err != nil {
		return a.Machine.Snapshot(), err
	}
	return a.Machine.Snapshot(), nil
}

// CurrentStatus returns the observable state of the form.
func (a *App) CurrentStatus() domain.Snapshot {
	return a.Machine.Snapshot()
}

// IngestEvents returns all events with sequence greater than sinceSeq.
func (a *App) IngestEvents(sinceSeq int64) []ingest.Event {
	return a.events.Since(sinceSeq)
}

// Complete streams an AI completion for the last uploaded video. Chunks
// are pushed to the UI as they arrive; the full text is returned.
func (a *App) Complete(prompt string, temperature float64) (string, error) {
	videoID := a.Machine.LastVideoID()
	if videoID == "" {
		return "", fmt.Errorf("upload a video before requesting a completion")
	}

	req := backend.CompletionRequest{
		Prompt:      prompt,
		VideoID:     videoID,
		Temperature: temperature,
	}
	return a.completer.Complete(a.rootContext(), req, func(chunk string) {
		a.emit(EventCompletionChunk, chunk)
	})
}

// loadEngine loads the media engine with the settings current at the
// time of the first conversion.
func (a *App) loadEngine(ctx context.Context) (*engine.Engine, error) {
	a.mu.Lock()
	settings := a.Settings
	a.mu.Unlock()

	logging.NewLogger(ctx).Infof("loading media engine ffmpeg=%s", settings.FFmpegPath)
	return engine.NewLoader(engine.Options{
		FFmpegPath: settings.FFmpegPath,
		WorkDir:    settings.WorkDir,
	})(ctx)
}

// applySettings points live components at new settings. The engine keeps
// its original binary once loaded.
func (a *App) applySettings(settings domain.Settings) {
	a.mu.Lock()
	a.Settings = settings
	a.mu.Unlock()

	logging.Configure(settings.LogLevel, os.Stderr)
	if err := a.client.SetBaseURL(settings.APIBaseURL); err != nil {
		logging.NewLogger(a.rootCtx).Warnf("keeping backend %s: %v", a.client.BaseURL(), err)
	}
}

// publishCommandLog records an ffmpeg command of the active run.
func (a *App) publishCommandLog(log engine.CommandLog) {
	message := "Command completed"
	if log.ExitCode != 0 {
		message = "Failed command"
	}

	published := a.events.Publish(ingest.Event{
		RunID:    a.Machine.Snapshot().RunID,
		Type:     ingest.EventTypeLog,
		Message:  message,
		Command:  log.Command,
		Args:     log.Args,
		ExitCode: log.ExitCode,
		Stderr:   log.Stderr,
	})
	a.emitIngestEvent(published)
}

// emitIngestEvent pushes a stored event to the UI.
func (a *App) emitIngestEvent(event ingest.Event) {
	a.emit(EventIngest, event)
}

func (a *App) emit(name string, payload any) {
	a.mu.Lock()
	ctx := a.runtimeCtx
	a.mu.Unlock()
	if ctx != nil {
		wailsruntime.EventsEmit(ctx, name, payload)
	}
}

func (a *App) currentSelection() VideoSelection {
	a.mu.Lock()
	url := a.previewURL
	a.mu.Unlock()
	return VideoSelection{Snapshot: a.Machine.Snapshot(), PreviewURL: url}
}

// runtimeContext returns current Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, fmt.Errorf("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}

// rootContext returns the context cancelled on shutdown.
func (a *App) rootContext() context.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rootCtx
}

// classifyFailure attributes a pipeline error to the collaborator that
// produced it.
func classifyFailure(step domain.IngestionStatus, err error) domain.FailureKind {
	var (
		transcodeErr     *transcode.Error
		uploadErr        *backend.UploadError
		transcriptionErr *backend.TranscriptionRequestError
	)
	switch {
	case transcode.IsEngineInit(err):
		return domain.FailureEngineInit
	case errors.As(err, &transcodeErr):
		return domain.FailureTranscode
	case errors.As(err, &uploadErr):
		return domain.FailureUpload
	case errors.As(err, &transcriptionErr):
		return domain.FailureTranscriptionRequest
	}

	switch step {
	case domain.StatusConverting:
		return domain.FailureTranscode
	case domain.StatusUploading:
		return domain.FailureUpload
	case domain.StatusGenerating:
		return domain.FailureTranscriptionRequest
	default:
		return domain.FailureUnknown
	}
}

// loadEffectiveSettings reads persisted settings and overlays the environment.
func loadEffectiveSettings(store config.Store, lookup func(string) (string, bool)) (domain.Settings, error) {
	settings, err := store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	settings, err = config.ApplyEnv(settings, lookup)
	if err != nil {
		return domain.Settings{}, fmt.Errorf("apply environment: %w", err)
	}
	return normalizeSettings(settings), nil
}

// newBackendClient builds the REST client. An unusable base URL falls
// back to the default so diagnostics can report it.
func newBackendClient(settings domain.Settings) (*backend.Client, error) {
	timeout := time.Duration(settings.RequestTimeoutSeconds) * time.Second
	client, err := backend.NewClient(settings.APIBaseURL, backend.WithTimeout(timeout))
	if err == nil {
		return client, nil
	}

	logging.NewLogger(context.Background()).Warnf("invalid backend URL %q: %v", settings.APIBaseURL, err)
	client, err = backend.NewClient(config.DefaultAPIBaseURL, backend.WithTimeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("create backend client: %w", err)
	}
	return client, nil
}

// normalizeSettings trims user inputs and fills defaults for empty fields.
func normalizeSettings(settings domain.Settings) domain.Settings {
	settings.APIBaseURL = strings.TrimSpace(settings.APIBaseURL)
	settings.FFmpegPath = strings.TrimSpace(settings.FFmpegPath)
	settings.WorkDir = strings.TrimSpace(settings.WorkDir)
	settings.LogLevel = strings.ToLower(strings.TrimSpace(settings.LogLevel))
	return config.Normalize(settings)
}
