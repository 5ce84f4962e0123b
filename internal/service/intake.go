package service

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/thoas/go-funk"
)

// SupportedExtensions lists the file extensions accepted without a video content type.
var SupportedExtensions = []string{".mp4", ".avi", ".mov", ".mkv", ".wmv", ".flv", ".webm", ".m4v"}

// Upload is a media file received from a client.
type Upload struct {
	Filename    string
	ContentType string
	Content     io.Reader
}

// ValidateUpload accepts a file with a supported extension or a video/* content type.
func ValidateUpload(u Upload) error {
	if u.Content == nil {
		return NewErrValidation("no file provided")
	}

	name := strings.TrimSpace(filepath.Base(u.Filename))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return NewErrValidation("no file selected")
	}

	if isVideoContentType(u.ContentType) || funk.ContainsString(SupportedExtensions, extension(name)) {
		return nil
	}

	return NewErrValidation("invalid file type %q: expected a video file (%s)", name, strings.Join(SupportedExtensions, ", "))
}

func isVideoContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mediaType, "video/")
}

func extension(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}

// stagedExtension is the extension the staged copy is saved with.
func stagedExtension(u Upload) string {
	if ext := extension(u.Filename); funk.ContainsString(SupportedExtensions, ext) {
		return ext
	}
	if mediaType, _, err := mime.ParseMediaType(u.ContentType); err == nil {
		if exts, err := mime.ExtensionsByType(mediaType); err == nil && len(exts) > 0 {
			return exts[0]
		}
	}
	return ".mp4"
}

var errTooLarge = errors.New("file too large")

// stage copies r to path through a temporary file in the same directory. At most
// maxSize bytes are accepted; maxSize <= 0 means no limit.
func stage(path string, r io.Reader, maxSize int64) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("creating upload directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("creating upload file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	src := r
	if maxSize > 0 {
		src = io.LimitReader(r, maxSize+1)
	}

	written, err := io.Copy(tmp, src)
	if err != nil {
		return 0, fmt.Errorf("writing upload: %w", err)
	}
	if maxSize > 0 && written > maxSize {
		return 0, errTooLarge
	}
	if err := tmp.Sync(); err != nil {
		return 0, fmt.Errorf("writing upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("writing upload: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, fmt.Errorf("saving upload: %w", err)
	}

	return written, nil
}
