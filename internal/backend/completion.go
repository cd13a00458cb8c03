package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/IagoDantas/upload-ai-web/internal/domain"
	"github.com/IagoDantas/upload-ai-web/internal/logging"
)

// CompletionRequest is the body of POST /ai/complete.
type CompletionRequest struct {
	Prompt      string         `json:"prompt"`
	VideoID     domain.VideoID `json:"videoId"`
	Temperature float64        `json:"temperature"`
}

// Validate checks the request before it is sent.
func (r CompletionRequest) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return errors.New("prompt is required")
	}
	if strings.TrimSpace(string(r.VideoID)) == "" {
		return errors.New("video id is required")
	}
	if r.Temperature < 0 || r.Temperature > 1 {
		return errors.New("temperature must be between 0 and 1")
	}
	return nil
}

// Completer streams AI completions that use a video's transcription as
// context.
type Completer struct {
	client *Client
}

// NewCompleter builds a completer over client.
func NewCompleter(client *Client) *Completer {
	return &Completer{client: client}
}

// Complete posts req and delivers the streamed text to onChunk as it
// arrives. Chunks never split a UTF-8 sequence. The full text is returned.
func (c *Completer) Complete(ctx context.Context, req CompletionRequest, onChunk func(string)) (string, error) {
	if err := req.Validate(); err != nil {
		return "", &CompletionError{Message: err.Error()}
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return "", &CompletionError{Message: "encode body", Err: err}
	}

	httpReq, err := c.client.newRequest(ctx, http.MethodPost, c.client.endpoint("ai", "complete"), bytes.NewReader(payload), "application/json")
	if err != nil {
		return "", &CompletionError{Message: "build request", Err: err}
	}

	logging.NewLogger(ctx).Infof("completion requested video_id=%s temperature=%.1f", req.VideoID, req.Temperature)
	resp, err := c.client.do(httpReq)
	if err != nil {
		return "", &CompletionError{Message: "transport failure", Err: err}
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return "", &CompletionError{StatusCode: resp.StatusCode, Message: readErrorBody(resp.Body)}
	}

	var full strings.Builder
	emit := func(b []byte) {
		if len(b) == 0 {
			return
		}
		chunk := string(b)
		full.WriteString(chunk)
		if onChunk != nil {
			onChunk(chunk)
		}
	}

	buf := make([]byte, 4096)
	var pending []byte
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			cut := completePrefix(pending)
			emit(pending[:cut])
			pending = append(pending[:0], pending[cut:]...)
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return full.String(), &CompletionError{StatusCode: resp.StatusCode, Message: "read stream", Err: readErr}
		}
	}
	emit(pending)

	return full.String(), nil
}

// completePrefix returns the length of the longest prefix of b that does
// not end inside a UTF-8 sequence.
func completePrefix(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if utf8.FullRune(b[i:]) {
				return len(b)
			}
			return i
		}
	}
	return len(b)
}
