package domain

// IngestionStatus is the single authoritative state of the ingestion form.
type IngestionStatus string

const (
	StatusWaiting    IngestionStatus = "waiting"
	StatusConverting IngestionStatus = "converting"
	StatusUploading  IngestionStatus = "uploading"
	StatusGenerating IngestionStatus = "generating"
	StatusSuccess    IngestionStatus = "success"
	StatusFailed     IngestionStatus = "failed"
)

var statusLabels = map[IngestionStatus]string{
	StatusWaiting:    "Upload video",
	StatusConverting: "Converting video...",
	StatusUploading:  "Uploading video...",
	StatusGenerating: "Generating transcription...",
	StatusSuccess:    "Video uploaded successfully",
	StatusFailed:     "Upload failed",
}

// Label returns the submit button text for the status.
func (s IngestionStatus) Label() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return string(s)
}

// InFlight reports whether a pipeline step is executing.
func (s IngestionStatus) InFlight() bool {
	switch s {
	case StatusConverting, StatusUploading, StatusGenerating:
		return true
	default:
		return false
	}
}

// FailureKind classifies which collaborator produced a failure.
type FailureKind string

const (
	FailureEngineInit           FailureKind = "engine_init"
	FailureTranscode            FailureKind = "transcode"
	FailureUpload               FailureKind = "upload"
	FailureTranscriptionRequest FailureKind = "transcription_request"
	FailureUnknown              FailureKind = "unknown"
)

// Failure describes why a run stopped before success.
type Failure struct {
	Step    IngestionStatus `json:"step"`
	Kind    FailureKind     `json:"kind"`
	Message string          `json:"message"`
}

// Snapshot is the observable state of the ingestion form.
type Snapshot struct {
	RunID         string          `json:"runId,omitempty"`
	Status        IngestionStatus `json:"status"`
	Label         string          `json:"label"`
	InputsEnabled bool            `json:"inputsEnabled"`
	VideoName     string          `json:"videoName,omitempty"`
	Prompt        string          `json:"prompt,omitempty"`
	VideoID       VideoID         `json:"videoId,omitempty"`
	Failure       *Failure        `json:"failure,omitempty"`
}

// Settings contains user-selectable runtime configuration.
type Settings struct {
	APIBaseURL            string `json:"apiBaseUrl"`
	FFmpegPath            string `json:"ffmpegPath"`
	WorkDir               string `json:"workDir"`
	LogLevel              string `json:"logLevel"`
	RequestTimeoutSeconds int    `json:"requestTimeoutSeconds"`
}
