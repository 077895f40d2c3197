// Package netfetch downloads source images over http(s) with size, redirect
// and content-type guards.
package netfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	ErrTooLarge         = errors.New("content exceeds maximum size")
	ErrDownloadFailed   = errors.New("download failed")
	ErrInvalidURL       = errors.New("url must use http or https")
	ErrTooManyRedirects = errors.New("too many redirects")
	ErrNotImage         = errors.New("content is not an image")
)

const userAgent = "image-transform/1.0 (+https://example.invalid)"

type Options struct {
	MaxBytes     int64
	MaxRedirects int
}

// Fetcher bundles a client, guards and a per-request timeout.
type Fetcher struct {
	Client  *http.Client
	Options Options
	Timeout time.Duration
}

func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}
	data, _, err := Download(ctx, f.Client, rawURL, f.Options)
	return data, err
}

// Download fetches rawURL. The body is capped both by Content-Length and by
// a hard read limit; redirects must stay on http(s).
func Download(ctx context.Context, client *http.Client, rawURL string, opts Options) ([]byte, string, error) {
	if client == nil {
		client = http.DefaultClient
	}
	if !isAllowedScheme(rawURL) {
		return nil, "", ErrInvalidURL
	}

	clientCopy := *client
	redirectLimit := opts.MaxRedirects
	if redirectLimit <= 0 {
		redirectLimit = 3
	}
	clientCopy.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= redirectLimit {
			return ErrTooManyRedirects
		}
		if !isAllowedScheme(req.URL.String()) {
			return ErrInvalidURL
		}
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "image/*")

	resp, err := clientCopy.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, "", fmt.Errorf("%w: status %d", ErrDownloadFailed, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !acceptableType(contentType) {
		return nil, "", fmt.Errorf("%w: %s", ErrNotImage, contentType)
	}

	if opts.MaxBytes > 0 && resp.ContentLength > opts.MaxBytes {
		return nil, "", ErrTooLarge
	}

	var limit io.Reader = resp.Body
	if opts.MaxBytes > 0 {
		limit = io.LimitReader(resp.Body, opts.MaxBytes+1)
	}

	data, err := io.ReadAll(limit)
	if err != nil {
		return nil, "", err
	}
	if opts.MaxBytes > 0 && int64(len(data)) > opts.MaxBytes {
		return nil, "", ErrTooLarge
	}

	return data, contentType, nil
}

// acceptableType lets image/* and unlabelled binary through; the decoder
// has the final say.
func acceptableType(contentType string) bool {
	if contentType == "" {
		return true
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mt, "image/") || mt == "application/octet-stream"
}

func isAllowedScheme(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	switch parsed.Scheme {
	case "http", "https":
		return parsed.Host != ""
	default:
		return false
	}
}
