package media

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/wailsapp/mimetype"

	"github.com/IagoDantas/upload-ai-web/internal/domain"
)

// MaxVideoBytes bounds what LoadVideo reads into memory.
const MaxVideoBytes int64 = 2 << 30

// ErrEmptyFile is returned for zero-length videos.
var ErrEmptyFile = errors.New("video file is empty")

var extensionTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
	".avi":  "video/x-msvideo",
}

// isoBMFFTypes are the sniffed types of ftyp-boxed containers. Their brand
// says nothing about whether the upload endpoint accepts the file, so an
// MP4 file name decides the declared type.
var isoBMFFTypes = []string{
	"video/mp4",
	"video/x-m4v",
	"video/3gpp",
	"video/3gpp2",
	"video/quicktime",
	"audio/mp4",
	"audio/x-m4a",
}

// LoadVideo reads the file at path into a VideoAsset. The declared MIME
// type is sniffed from the content and falls back to the extension when
// the content is not recognized.
func LoadVideo(path string) (domain.VideoAsset, error) {
	info, err := os.Stat(path)
	if err != nil {
		return domain.VideoAsset{}, fmt.Errorf("stat video: %w", err)
	}
	if info.IsDir() {
		return domain.VideoAsset{}, fmt.Errorf("video path is a directory: %s", path)
	}
	if info.Size() == 0 {
		return domain.VideoAsset{}, ErrEmptyFile
	}
	if info.Size() > MaxVideoBytes {
		return domain.VideoAsset{}, fmt.Errorf("video file too large: %d bytes", info.Size())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return domain.VideoAsset{}, fmt.Errorf("read video: %w", err)
	}

	name := filepath.Base(path)
	return domain.VideoAsset{
		Name:     name,
		MIMEType: DetectType(name, data),
		Data:     data,
	}, nil
}

// DetectType returns the MIME type of a media file. Content sniffing wins
// except for ISO-BMFF content behind an .mp4 or .m4v name, which is
// declared video/mp4 whatever its brand.
func DetectType(name string, data []byte) string {
	byExt, extKnown := extensionTypes[strings.ToLower(filepath.Ext(name))]
	detected := mimetype.Detect(data)
	if detected != nil && !detected.Is("application/octet-stream") {
		if extKnown && byExt == "video/mp4" && isISOBMFF(detected) {
			return byExt
		}
		return detected.String()
	}
	if extKnown {
		return byExt
	}
	return "application/octet-stream"
}

func isISOBMFF(detected *mimetype.MIME) bool {
	for _, t := range isoBMFFTypes {
		if detected.Is(t) {
			return true
		}
	}
	return false
}
