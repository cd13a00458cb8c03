package backend

import (
	"fmt"

	"github.com/IagoDantas/upload-ai-web/internal/domain"
)

// UploadError reports a failed POST /videos call.
type UploadError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *UploadError) Error() string {
	return formatCallError("upload video", e.StatusCode, e.Message, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// TranscriptionRequestError reports a failed POST /videos/{id}/transcription call.
type TranscriptionRequestError struct {
	VideoID    domain.VideoID
	StatusCode int
	Message    string
	Err        error
}

func (e *TranscriptionRequestError) Error() string {
	return formatCallError(fmt.Sprintf("request transcription for %s", e.VideoID), e.StatusCode, e.Message, e.Err)
}

func (e *TranscriptionRequestError) Unwrap() error {
	return e.Err
}

// CompletionError reports a failed POST /ai/complete call.
type CompletionError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *CompletionError) Error() string {
	return formatCallError("complete prompt", e.StatusCode, e.Message, e.Err)
}

func (e *CompletionError) Unwrap() error {
	return e.Err
}

func formatCallError(op string, status int, message string, err error) string {
	out := op
	if status != 0 {
		out += fmt.Sprintf(" (status %d)", status)
	}
	if message != "" {
		out += ": " + message
	}
	if err != nil {
		out += ": " + err.Error()
	}
	return out
}
