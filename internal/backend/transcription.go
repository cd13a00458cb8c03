package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/IagoDantas/upload-ai-web/internal/domain"
	"github.com/IagoDantas/upload-ai-web/internal/logging"
)

// TranscriptionRequester triggers backend transcription of uploaded videos.
type TranscriptionRequester struct {
	client *Client
}

// NewTranscriptionRequester builds a requester over client.
func NewTranscriptionRequester(client *Client) *TranscriptionRequester {
	return &TranscriptionRequester{client: client}
}

// RequestTranscription asks the backend to transcribe id, passing prompt
// (possibly empty) as a hint.
func (r *TranscriptionRequester) RequestTranscription(ctx context.Context, id domain.VideoID, prompt string) error {
	if strings.TrimSpace(string(id)) == "" {
		return &TranscriptionRequestError{Message: "video id is required"}
	}

	payload, err := json.Marshal(domain.TranscriptionRequest{VideoID: id, Prompt: prompt})
	if err != nil {
		return &TranscriptionRequestError{VideoID: id, Message: "encode body", Err: err}
	}

	target := r.client.endpoint("videos", url.PathEscape(string(id)), "transcription")
	req, err := r.client.newRequest(ctx, http.MethodPost, target, bytes.NewReader(payload), "application/json")
	if err != nil {
		return &TranscriptionRequestError{VideoID: id, Message: "build request", Err: err}
	}

	logging.NewLogger(ctx).Infof("transcription requested video_id=%s", id)
	resp, err := r.client.do(req)
	if err != nil {
		return &TranscriptionRequestError{VideoID: id, Message: "transport failure", Err: err}
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return &TranscriptionRequestError{VideoID: id, StatusCode: resp.StatusCode, Message: readErrorBody(resp.Body)}
	}
	return nil
}
