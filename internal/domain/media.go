package domain

const (
	// AcceptedVideoMIME is the only container the form accepts.
	AcceptedVideoMIME = "video/mp4"
	// AudioMIME is the type of every produced artifact.
	AudioMIME = "audio/mpeg"
	// AudioFileName is the upload filename of the artifact.
	AudioFileName = "audio.mp3"
	// AudioBitrateKbps is the fixed artifact bitrate.
	AudioBitrateKbps = 20
)

// ProgressFunc observes fractional completion in [0,1].
type ProgressFunc func(ratio float64)

// VideoAsset is the user-selected input video.
type VideoAsset struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Size returns the content length in bytes.
func (v VideoAsset) Size() int {
	return len(v.Data)
}

// AudioArtifact is the compressed audio produced from a VideoAsset.
type AudioArtifact struct {
	Name        string
	MIMEType    string
	BitrateKbps int
	Data        []byte
}

// VideoID is the opaque identifier assigned by the backend on upload.
type VideoID string

// TranscriptionRequest asks the backend to transcribe an uploaded video.
type TranscriptionRequest struct {
	VideoID VideoID `json:"-"`
	Prompt  string  `json:"prompt"`
}
