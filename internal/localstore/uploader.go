package localstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var (
	ErrDirRequired       = errors.New("local storage dir is required")
	ErrInvalidObjectName = errors.New("invalid object name")
)

// Uploader writes outputs below Dir and reports them under BaseURL.
type Uploader struct {
	Dir     string
	BaseURL string
}

func NewUploader(dir string, baseURL string) *Uploader {
	return &Uploader{Dir: dir, BaseURL: strings.TrimRight(baseURL, "/")}
}

func (u *Uploader) Upload(ctx context.Context, objectName string, data []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if u.Dir == "" {
		return "", ErrDirRequired
	}

	clean, err := sanitizeObjectName(objectName)
	if err != nil {
		return "", err
	}

	fullPath := filepath.Join(u.Dir, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", err
	}
	// Write then rename so readers never see a partial file.
	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".upload-*")
	if err != nil {
		return "", err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}

	if u.BaseURL == "" {
		return "", nil
	}
	return fmt.Sprintf("%s/%s", u.BaseURL, escapePath(clean)), nil
}

// Handler serves stored objects, for deployments where BaseURL points back
// at the worker.
func (u *Uploader) Handler() http.Handler {
	return http.FileServer(http.Dir(u.Dir))
}

func sanitizeObjectName(objectName string) (string, error) {
	for _, part := range strings.Split(objectName, "/") {
		if part == ".." {
			return "", ErrInvalidObjectName
		}
	}
	clean := strings.TrimPrefix(path.Clean("/"+objectName), "/")
	if clean == "" || clean == "." {
		return "", ErrInvalidObjectName
	}
	return clean, nil
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
