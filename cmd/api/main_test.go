package main

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"image-transform/internal/api"
	"image-transform/internal/codec"
	"image-transform/internal/geometry"
	"image-transform/internal/jobdb"
	"image-transform/internal/netfetch"
	"image-transform/internal/transform"
)

func sourceServer(t *testing.T) *httptest.Server {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 100, 50))
	for y := 0; y < 50; y++ {
		for x := 0; x < 100; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 30, G: 120, B: 200, A: 255})
		}
	}
	data, err := codec.EncodeBytes(img, codec.PNG, 0)
	if err != nil {
		t.Fatalf("encode fixture: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/image.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(data)
	})
	mux.HandleFunc("/page.html", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html></html>"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testHandler(t *testing.T, limits transform.Limits) http.Handler {
	t.Helper()
	swagger, err := loadOpenAPISpec("../../openapi.yaml")
	if err != nil {
		t.Fatalf("load openapi: %v", err)
	}
	tr, err := transform.New(slog.New(slog.NewTextHandler(io.Discard, nil)), limits)
	if err != nil {
		t.Fatalf("transformer: %v", err)
	}
	srv := &server{
		fetcher:     &netfetch.Fetcher{Options: netfetch.Options{MaxBytes: 1 << 20}},
		transformer: tr,
	}
	return newRouter(swagger, srv, nil)
}

func get(h http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestGetTransform(t *testing.T) {
	src := sourceServer(t)
	h := testHandler(t, transform.Limits{})

	rec := get(h, "/transform?url="+url.QueryEscape(src.URL+"/image.png")+"&w=40")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Fatalf("content type %q", ct)
	}
	if rec.Header().Get("X-Image-Width") != "40" || rec.Header().Get("X-Image-Height") != "20" {
		t.Fatalf("size headers %s x %s", rec.Header().Get("X-Image-Width"), rec.Header().Get("X-Image-Height"))
	}
	d, err := codec.Decode(rec.Body.Bytes(), 0)
	if err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if d.Image.Bounds().Dx() != 40 {
		t.Fatalf("decoded width %d", d.Image.Bounds().Dx())
	}

	rec = get(h, "/transform?url="+url.QueryEscape(src.URL+"/image.png")+"&w=20&h=20&t=crop&output=webp")
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/webp" {
		t.Fatalf("webp crop: %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}
}

func TestGetTransformErrors(t *testing.T) {
	src := sourceServer(t)
	source := url.QueryEscape(src.URL + "/image.png")

	tests := []struct {
		name   string
		limits transform.Limits
		target string
		status int
	}{
		{"missing url", transform.Limits{}, "/transform?w=10", http.StatusBadRequest},
		{"non-numeric width", transform.Limits{}, "/transform?url=" + source + "&w=abc", http.StatusBadRequest},
		{"trim with smart crop", transform.Limits{}, "/transform?url=" + source + "&w=10&h=10&a=entropy&trim=5", http.StatusBadRequest},
		{"pixel budget", transform.Limits{MaxPixels: 100}, "/transform?url=" + source + "&w=40", http.StatusRequestEntityTooLarge},
		{"source missing", transform.Limits{}, "/transform?url=" + url.QueryEscape(src.URL+"/nope.png"), http.StatusBadGateway},
		{"source not an image", transform.Limits{}, "/transform?url=" + url.QueryEscape(src.URL+"/page.html"), http.StatusUnsupportedMediaType},
		{"bad scheme", transform.Limits{}, "/transform?url=" + url.QueryEscape("ftp://example.com/a.png"), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(testHandler(t, tt.limits), tt.target)
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestPostJobsTransformValidation(t *testing.T) {
	h := testHandler(t, transform.Limits{})
	tests := []struct {
		name string
		body string
	}{
		{"missing imageUrl", `{}`},
		{"bad scheme", `{"imageUrl":"ftp://example.com/a.png"}`},
		{"bad params", `{"imageUrl":"https://example.com/a.png","params":"w=10&h=10&a=attention&trim"}`},
		{"bad query", `{"imageUrl":"https://example.com/a.png","params":"w=%zz"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/jobs/transform", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			h.ServeHTTP(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestHealthRoutes(t *testing.T) {
	h := testHandler(t, transform.Limits{})
	if rec := get(h, "/healthz"); rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}
	if rec := get(h, "/readyz"); rec.Code != http.StatusOK {
		t.Fatalf("readyz: %d", rec.Code)
	}
}

func TestJobResponse(t *testing.T) {
	id := "5b2b7f38-8d7a-4c83-9a4f-0d3f5a3c1e11"
	job := jobdb.Job{
		ID:        id,
		Status:    jobdb.StatusDone,
		Result:    json.RawMessage(`{"imageUrl":"https://cdn.example/transforms/x.jpg","width":40,"height":20,"format":"jpg","bytes":123}`),
		CreatedAt: "2024-01-01T00:00:00Z",
		UpdatedAt: "2024-01-01T00:00:01Z",
	}
	resp := jobResponse(job)
	if resp.Id.String() != id || resp.Status != jobdb.StatusDone {
		t.Fatalf("unexpected id/status %v %s", resp.Id, resp.Status)
	}
	if resp.ImageUrl == nil || *resp.ImageUrl != "https://cdn.example/transforms/x.jpg" {
		t.Fatalf("image url %v", resp.ImageUrl)
	}
	if *resp.Width != 40 || *resp.Height != 20 || *resp.Format != "jpg" {
		t.Fatalf("unexpected dims %d x %d %s", *resp.Width, *resp.Height, *resp.Format)
	}
	if resp.Error != nil {
		t.Fatalf("unexpected error %v", *resp.Error)
	}

	failed := jobResponse(jobdb.Job{ID: "not-a-uuid", Status: jobdb.StatusFailed, Error: sql.NullString{String: "boom", Valid: true}})
	if failed.Id.String() != "00000000-0000-0000-0000-000000000000" {
		t.Fatalf("expected nil uuid, got %v", failed.Id)
	}
	if failed.Error == nil || *failed.Error != "boom" || failed.ImageUrl != nil {
		t.Fatalf("unexpected failed response %+v", failed)
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(failed); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if strings.Contains(buf.String(), "imageUrl") {
		t.Fatalf("empty fields should be omitted: %s", buf.String())
	}
}

func TestTransformStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("size: %w", geometry.ErrImageTooLarge), http.StatusRequestEntityTooLarge},
		{codec.ErrInputTooManyPixels, http.StatusRequestEntityTooLarge},
		{geometry.ErrTrimWithSmartCrop, http.StatusBadRequest},
		{codec.ErrUnsupportedFormat, http.StatusUnsupportedMediaType},
		{fmt.Errorf("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := transformStatus(tt.err); got != tt.status {
			t.Errorf("transformStatus(%v) = %d, want %d", tt.err, got, tt.status)
		}
	}
}

func TestTransformValues(t *testing.T) {
	w, fit, trim := 40, "crop", ""
	v := transformValues(api.GetTransformParams{Url: "http://x", W: &w, T: &fit, Trim: &trim})
	if v.Get("w") != "40" || v.Get("t") != "crop" || !v.Has("trim") {
		t.Fatalf("unexpected values %v", v)
	}
	if v.Has("url") || v.Has("h") {
		t.Fatalf("unexpected keys in %v", v)
	}
}
