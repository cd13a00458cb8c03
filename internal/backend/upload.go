package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/IagoDantas/upload-ai-web/internal/domain"
	"github.com/IagoDantas/upload-ai-web/internal/logging"
)

// uploadField is the multipart field the backend reads the audio from.
const uploadField = "file"

// Uploader persists audio artifacts to the backend.
type Uploader struct {
	client *Client
}

// NewUploader builds an uploader over client.
func NewUploader(client *Client) *Uploader {
	return &Uploader{client: client}
}

// Upload sends artifact as a single multipart request and returns the
// server-assigned video id.
func (u *Uploader) Upload(ctx context.Context, artifact domain.AudioArtifact) (domain.VideoID, error) {
	body, contentType, err := encodeArtifact(artifact)
	if err != nil {
		return "", &UploadError{Message: "encode multipart body", Err: err}
	}

	req, err := u.client.newRequest(ctx, http.MethodPost, u.client.endpoint("videos"), body, contentType)
	if err != nil {
		return "", &UploadError{Message: "build request", Err: err}
	}

	logging.NewLogger(ctx).Infof("upload started bytes=%d", len(artifact.Data))
	resp, err := u.client.do(req)
	if err != nil {
		return "", &UploadError{Message: "transport failure", Err: err}
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return "", &UploadError{StatusCode: resp.StatusCode, Message: readErrorBody(resp.Body)}
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &UploadError{StatusCode: resp.StatusCode, Message: "read response", Err: err}
	}

	id := gjson.GetBytes(payload, "video.id")
	if !id.Exists() || strings.TrimSpace(id.String()) == "" {
		return "", &UploadError{StatusCode: resp.StatusCode, Message: "response has no video.id"}
	}

	return domain.VideoID(id.String()), nil
}

func encodeArtifact(artifact domain.AudioArtifact) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	name := artifact.Name
	if name == "" {
		name = domain.AudioFileName
	}
	mimeType := artifact.MIMEType
	if mimeType == "" {
		mimeType = domain.AudioMIME
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, uploadField, name))
	header.Set("Content-Type", mimeType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(artifact.Data); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}

	return &buf, writer.FormDataContentType(), nil
}
