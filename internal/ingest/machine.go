package ingest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"mime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/IagoDantas/upload-ai-web/internal/domain"
	"github.com/IagoDantas/upload-ai-web/internal/logging"
)

var (
	// ErrNoVideoSelected is returned when submitting without a video.
	ErrNoVideoSelected = errors.New("no video selected")
	// ErrRunInProgress is returned when submitting while a run is active.
	ErrRunInProgress = errors.New("ingestion already running")
	// ErrInputLocked is returned when inputs change outside the waiting state.
	ErrInputLocked = errors.New("inputs are locked until the form is waiting")
	// ErrUnsupportedMedia is returned for videos that are not MP4.
	ErrUnsupportedMedia = errors.New("unsupported media type")
	// ErrNotFailed is returned when dismissing without a failed run.
	ErrNotFailed = errors.New("no failed run to dismiss")
)

const (
	// SuccessResetDelay is how long success stays visible before waiting.
	SuccessResetDelay = 2 * time.Second
	// FailureResetDelay is how long a failure stays visible before waiting.
	FailureResetDelay = 5 * time.Second
)

// Transcoder converts a video into its compressed audio track.
type Transcoder interface {
	Transcode(ctx context.Context, video domain.VideoAsset, onProgress domain.ProgressFunc) (domain.AudioArtifact, error)
}

// Uploader persists an audio artifact and returns its video id.
type Uploader interface {
	Upload(ctx context.Context, artifact domain.AudioArtifact) (domain.VideoID, error)
}

// TranscriptionRequester triggers transcription of an uploaded video.
type TranscriptionRequester interface {
	RequestTranscription(ctx context.Context, id domain.VideoID, prompt string) error
}

// Config wires the machine's collaborators.
type Config struct {
	Transcoder Transcoder
	Uploader   Uploader
	Requester  TranscriptionRequester
	Events     *EventBus

	// Notify receives every event after it is stored.
	Notify func(Event)
	// OnVideoReady receives the video id of each successful run.
	OnVideoReady func(domain.VideoID)
	// Classify maps a step error to a failure kind. Defaults to the step.
	Classify func(step domain.IngestionStatus, err error) domain.FailureKind

	SuccessResetDelay time.Duration
	// FailureResetDelay of zero uses the default; negative disables the
	// timed reset so only Dismiss leaves the failed state.
	FailureResetDelay time.Duration
}

// timer is the subset of *time.Timer the machine uses.
type timer interface {
	Stop() bool
}

// Machine is the ingestion state machine. It gates the form inputs and
// runs transcode, upload and transcription strictly in sequence.
type Machine struct {
	transcoder   Transcoder
	uploader     Uploader
	requester    TranscriptionRequester
	events       *EventBus
	notify       func(Event)
	onVideoReady func(domain.VideoID)
	classify     func(domain.IngestionStatus, error) domain.FailureKind
	successDelay time.Duration
	failureDelay time.Duration
	afterFunc    func(time.Duration, func()) timer
	newRunID     func() string

	mu          sync.Mutex
	status      domain.IngestionStatus
	runID       string
	video       *domain.VideoAsset
	prompt      string
	videoID     domain.VideoID
	failure     *domain.Failure
	resetTimer  timer
	lastPercent int
	running     sync.WaitGroup
}

// NewMachine creates a machine in the waiting state.
func NewMachine(cfg Config) *Machine {
	m := &Machine{
		transcoder:   cfg.Transcoder,
		uploader:     cfg.Uploader,
		requester:    cfg.Requester,
		events:       cfg.Events,
		notify:       cfg.Notify,
		onVideoReady: cfg.OnVideoReady,
		classify:     cfg.Classify,
		successDelay: cfg.SuccessResetDelay,
		failureDelay: cfg.FailureResetDelay,
		afterFunc: func(d time.Duration, fn func()) timer {
			return time.AfterFunc(d, fn)
		},
		newRunID: uuid.NewString,
		status:   domain.StatusWaiting,
	}
	if m.events == nil {
		m.events = NewEventBus(0)
	}
	if m.classify == nil {
		m.classify = classifyByStep
	}
	if m.successDelay <= 0 {
		m.successDelay = SuccessResetDelay
	}
	if m.failureDelay == 0 {
		m.failureDelay = FailureResetDelay
	}
	return m
}

// Status returns the current status.
func (m *Machine) Status() domain.IngestionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Snapshot returns the observable state of the form.
func (m *Machine) Snapshot() domain.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Events returns the bus the machine publishes to.
func (m *Machine) Events() *EventBus {
	return m.events
}

// SelectVideo replaces the selected video. Only MP4 input is accepted.
func (m *Machine) SelectVideo(asset domain.VideoAsset) error {
	if !acceptsVideo(asset.MIMEType) {
		return fmt.Errorf("%w: %q", ErrUnsupportedMedia, asset.MIMEType)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != domain.StatusWaiting {
		return ErrInputLocked
	}

	selected := asset
	m.video = &selected
	return nil
}

// SetPrompt stores the optional transcription prompt hint.
func (m *Machine) SetPrompt(prompt string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != domain.StatusWaiting {
		return ErrInputLocked
	}
	m.prompt = prompt
	return nil
}

// Submit starts a pipeline run on a background goroutine. Without a
// selected video, or while a run is active, it changes nothing.
func (m *Machine) Submit(ctx context.Context) (domain.Snapshot, error) {
	return m.submit(ctx, nil)
}

// SubmitWith records prompt and starts a run in one step, so a prompt edit
// cannot land between the two. A rejected submit leaves the prompt as is.
func (m *Machine) SubmitWith(ctx context.Context, prompt string) (domain.Snapshot, error) {
	return m.submit(ctx, &prompt)
}

func (m *Machine) submit(ctx context.Context, prompt *string) (domain.Snapshot, error) {
	m.mu.Lock()
	if m.status != domain.StatusWaiting {
		snap := m.snapshotLocked()
		m.mu.Unlock()
		return snap, ErrRunInProgress
	}
	if m.video == nil {
		snap := m.snapshotLocked()
		m.mu.Unlock()
		return snap, ErrNoVideoSelected
	}

	if prompt != nil {
		m.prompt = *prompt
	}
	m.stopResetTimerLocked()
	runID := m.newRunID()
	m.runID = runID
	m.failure = nil
	m.lastPercent = -1
	m.status = domain.StatusConverting
	video := *m.video
	runPrompt := m.prompt
	snap := m.snapshotLocked()
	m.running.Add(1)
	m.mu.Unlock()

	m.publishStatus(snap, "Convert started")

	go m.run(logging.WithRunID(ctx, runID), runID, video, runPrompt)
	return snap, nil
}

// Dismiss returns a failed form to waiting.
func (m *Machine) Dismiss() error {
	m.mu.Lock()
	if m.status != domain.StatusFailed {
		m.mu.Unlock()
		return ErrNotFailed
	}
	m.stopResetTimerLocked()
	m.status = domain.StatusWaiting
	m.failure = nil
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.publishStatus(snap, "Failure dismissed")
	return nil
}

// LastVideoID returns the id of the most recent successful upload.
func (m *Machine) LastVideoID() domain.VideoID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.videoID
}

// Wait blocks until the active run, if any, has finished its steps.
func (m *Machine) Wait() {
	m.running.Wait()
}

// Close stops a pending reset timer.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopResetTimerLocked()
}

// run executes the pipeline steps in order for one run.
func (m *Machine) run(ctx context.Context, runID string, video domain.VideoAsset, prompt string) {
	defer m.running.Done()
	log := logging.NewLogger(ctx)

	artifact, err := m.transcoder.Transcode(ctx, video, m.progressObserver(runID))
	if err != nil {
		m.fail(ctx, runID, err)
		return
	}
	if !m.advance(ctx, runID, domain.StatusUploading, "", "Uploading audio") {
		return
	}

	id, err := m.uploader.Upload(ctx, artifact)
	// The artifact is owned by the upload call only.
	artifact = domain.AudioArtifact{}
	if err != nil {
		m.fail(ctx, runID, err)
		return
	}
	log.Infof("upload finished video_id=%s", id)
	if !m.advance(ctx, runID, domain.StatusGenerating, id, "Generating transcription") {
		return
	}

	request := domain.TranscriptionRequest{VideoID: id, Prompt: prompt}
	if err := m.requester.RequestTranscription(ctx, request.VideoID, request.Prompt); err != nil {
		m.fail(ctx, runID, err)
		return
	}

	m.succeed(ctx, runID, id)
}

// advance applies a forward transition if runID is still current.
func (m *Machine) advance(ctx context.Context, runID string, to domain.IngestionStatus, id domain.VideoID, message string) bool {
	m.mu.Lock()
	if m.runID != runID {
		m.mu.Unlock()
		return false
	}
	if err := m.transitionLocked(to); err != nil {
		m.mu.Unlock()
		logging.NewLogger(ctx).Errorf("%v", err)
		return false
	}
	if id != "" {
		m.videoID = id
	}
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.publishStatus(snap, message)
	return true
}

func (m *Machine) succeed(ctx context.Context, runID string, id domain.VideoID) {
	m.mu.Lock()
	if m.runID != runID {
		m.mu.Unlock()
		return
	}
	if err := m.transitionLocked(domain.StatusSuccess); err != nil {
		m.mu.Unlock()
		logging.NewLogger(ctx).Errorf("%v", err)
		return
	}
	m.scheduleResetLocked(runID, m.successDelay)
	snap := m.snapshotLocked()
	m.mu.Unlock()

	logging.NewLogger(ctx).Infof("run finished video_id=%s", id)
	m.publishStatus(snap, "Transcription requested")
	m.publish(Event{
		RunID:   runID,
		Type:    EventTypeResult,
		Status:  domain.StatusSuccess,
		Message: "Video ready",
		VideoID: id,
	})
	if m.onVideoReady != nil {
		m.onVideoReady(id)
	}
}

func (m *Machine) fail(ctx context.Context, runID string, cause error) {
	m.mu.Lock()
	if m.runID != runID {
		m.mu.Unlock()
		return
	}
	step := m.status
	failure := &domain.Failure{
		Step:    step,
		Kind:    m.classify(step, cause),
		Message: cause.Error(),
	}
	if err := m.transitionLocked(domain.StatusFailed); err != nil {
		m.mu.Unlock()
		logging.NewLogger(ctx).Errorf("%v", err)
		return
	}
	m.failure = failure
	if m.failureDelay > 0 {
		m.scheduleResetLocked(runID, m.failureDelay)
	}
	snap := m.snapshotLocked()
	m.mu.Unlock()

	logging.NewLogger(ctx).Errorf("run failed step=%s kind=%s: %v", failure.Step, failure.Kind, cause)
	m.publishStatus(snap, "Run failed")
	m.publish(Event{
		RunID:   runID,
		Type:    EventTypeError,
		Status:  domain.StatusFailed,
		Message: failure.Message,
		Failure: failure,
	})
}

// progressObserver republishes transcode progress when the whole percent
// value grows.
func (m *Machine) progressObserver(runID string) domain.ProgressFunc {
	return func(ratio float64) {
		percent := int(math.Round(ratio * 100))

		m.mu.Lock()
		if m.runID != runID || m.status != domain.StatusConverting || percent <= m.lastPercent {
			m.mu.Unlock()
			return
		}
		m.lastPercent = percent
		m.mu.Unlock()

		m.publish(Event{
			RunID:   runID,
			Type:    EventTypeProgress,
			Status:  domain.StatusConverting,
			Percent: percent,
			Message: fmt.Sprintf("Convert progress: %d%%", percent),
		})
	}
}

// scheduleResetLocked arms the timer that returns runID's terminal state
// to waiting.
func (m *Machine) scheduleResetLocked(runID string, delay time.Duration) {
	m.stopResetTimerLocked()
	m.resetTimer = m.afterFunc(delay, func() {
		m.resetIfCurrent(runID)
	})
}

func (m *Machine) resetIfCurrent(runID string) {
	m.mu.Lock()
	if m.runID != runID || (m.status != domain.StatusSuccess && m.status != domain.StatusFailed) {
		m.mu.Unlock()
		return
	}
	m.status = domain.StatusWaiting
	m.failure = nil
	m.resetTimer = nil
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.publishStatus(snap, "Ready for the next video")
}

func (m *Machine) stopResetTimerLocked() {
	if m.resetTimer != nil {
		m.resetTimer.Stop()
		m.resetTimer = nil
	}
}

// transitionLocked validates and applies one state machine edge.
func (m *Machine) transitionLocked(to domain.IngestionStatus) error {
	if !isValidTransition(m.status, to) {
		return fmt.Errorf("invalid transition: %s -> %s", m.status, to)
	}
	m.status = to
	return nil
}

func (m *Machine) snapshotLocked() domain.Snapshot {
	snap := domain.Snapshot{
		RunID:         m.runID,
		Status:        m.status,
		Label:         m.status.Label(),
		InputsEnabled: m.status == domain.StatusWaiting,
		Prompt:        m.prompt,
		VideoID:       m.videoID,
	}
	if m.video != nil {
		snap.VideoName = m.video.Name
	}
	if m.failure != nil {
		failure := *m.failure
		snap.Failure = &failure
	}
	return snap
}

func (m *Machine) publishStatus(snap domain.Snapshot, message string) {
	m.publish(Event{
		RunID:   snap.RunID,
		Type:    EventTypeStatus,
		Status:  snap.Status,
		Label:   snap.Label,
		Message: message,
		VideoID: snap.VideoID,
		Failure: snap.Failure,
	})
}

func (m *Machine) publish(event Event) {
	published := m.events.Publish(event)
	if m.notify != nil {
		m.notify(published)
	}
}

// isValidTransition enforces the allowed state machine edges.
func isValidTransition(from, to domain.IngestionStatus) bool {
	switch from {
	case domain.StatusWaiting:
		return to == domain.StatusConverting
	case domain.StatusConverting:
		return to == domain.StatusUploading || to == domain.StatusFailed
	case domain.StatusUploading:
		return to == domain.StatusGenerating || to == domain.StatusFailed
	case domain.StatusGenerating:
		return to == domain.StatusSuccess || to == domain.StatusFailed
	case domain.StatusSuccess, domain.StatusFailed:
		return to == domain.StatusWaiting
	default:
		return false
	}
}

// classifyByStep attributes a failure to the collaborator of its step.
func classifyByStep(step domain.IngestionStatus, _ error) domain.FailureKind {
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

// acceptsVideo reports whether mimeType is an MP4 container, ignoring
// parameters such as codecs.
func acceptsVideo(mimeType string) bool {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return false
	}
	return mediaType == domain.AcceptedVideoMIME
}
