package main

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"image-transform/internal/api"
	"image-transform/internal/codec"
	"image-transform/internal/geometry"
	"image-transform/internal/jobdb"
	"image-transform/internal/netfetch"
	"image-transform/internal/params"
	"image-transform/internal/queue"
	"image-transform/internal/transform"

	"github.com/google/uuid"
	openapi_types "github.com/oapi-codegen/runtime/types"
)

type server struct {
	db          *sql.DB
	publisher   *queue.Publisher
	fetcher     *netfetch.Fetcher
	transformer *transform.Transformer
}

func (s *server) GetTransform(w http.ResponseWriter, r *http.Request, p api.GetTransformParams) {
	opts, err := params.Parse(transformValues(p))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	data, err := s.fetcher.Fetch(r.Context(), p.Url)
	if err != nil {
		status := fetchStatus(err)
		slog.Warn("source fetch failed", "url", p.Url, "status", status, "err", err)
		writeError(w, status, err.Error())
		return
	}

	res, err := s.transformer.Transform(r.Context(), data, opts)
	if err != nil {
		status := transformStatus(err)
		if status == http.StatusInternalServerError {
			slog.Error("transform failed", "url", p.Url, "err", err)
		}
		writeError(w, status, err.Error())
		return
	}

	w.Header().Set("Content-Type", res.ContentType())
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Data)))
	w.Header().Set("X-Image-Width", strconv.Itoa(res.Width))
	w.Header().Set("X-Image-Height", strconv.Itoa(res.Height))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Data)
}

// transformValues turns bound query parameters back into the raw form the
// params package reads.
func transformValues(p api.GetTransformParams) url.Values {
	v := url.Values{}
	setInt := func(key string, n *int) {
		if n != nil {
			v.Set(key, strconv.Itoa(*n))
		}
	}
	setString := func(key string, s *string) {
		if s != nil {
			v.Set(key, *s)
		}
	}
	setInt("w", p.W)
	setInt("h", p.H)
	setString("t", p.T)
	setString("a", p.A)
	setString("or", p.Or)
	setString("trim", p.Trim)
	setString("bg", p.Bg)
	setString("filt", p.Filt)
	setString("output", p.Output)
	setInt("q", p.Q)
	return v
}

func fetchStatus(err error) int {
	switch {
	case errors.Is(err, netfetch.ErrInvalidURL):
		return http.StatusBadRequest
	case errors.Is(err, netfetch.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, netfetch.ErrNotImage):
		return http.StatusUnsupportedMediaType
	default:
		return http.StatusBadGateway
	}
}

func transformStatus(err error) int {
	switch {
	case errors.Is(err, geometry.ErrImageTooLarge), errors.Is(err, codec.ErrInputTooManyPixels):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, geometry.ErrTrimWithSmartCrop):
		return http.StatusBadRequest
	case errors.Is(err, codec.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *server) PostJobsTransform(w http.ResponseWriter, r *http.Request) {
	var req api.TransformJobRequest
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if msg := validateJobRequest(req); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	payload, err := json.Marshal(req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encode payload")
		return
	}

	idemKey := r.Header.Get("Idempotency-Key")
	if idemKey != "" {
		job, outbox, reused, err := jobdb.InsertJobWithOutboxAndIdempotency(s.db, payload, idemKey, hashBody(body))
		if err != nil {
			if errors.Is(err, jobdb.ErrIdempotencyKeyConflict) {
				writeError(w, http.StatusConflict, "idempotency key reused with different payload")
				return
			}
			slog.Error("create job failed", "err", err)
			writeError(w, http.StatusInternalServerError, "failed to create job")
			return
		}
		status := http.StatusOK
		if !reused {
			// Only new jobs get published; a retry returns the stored job.
			s.publishJob(r.Context(), outbox)
			status = http.StatusCreated
		}
		writeJSON(w, jobResponse(job), status)
		return
	}

	job, outbox, err := jobdb.InsertJobWithOutbox(s.db, payload)
	if err != nil {
		slog.Error("create job failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to create job")
		return
	}
	s.publishJob(r.Context(), outbox)
	writeJSON(w, jobResponse(job), http.StatusCreated)
}

// validateJobRequest rejects what the worker could never process, so the
// failure surfaces at submit time.
func validateJobRequest(req api.TransformJobRequest) string {
	if req.ImageUrl == "" {
		return "imageUrl is required"
	}
	u, err := url.Parse(req.ImageUrl)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "imageUrl must be an http or https url"
	}
	values, err := url.ParseQuery(req.Params)
	if err != nil {
		return "params must be a query string"
	}
	if _, err := params.Parse(values); err != nil {
		return err.Error()
	}
	return ""
}

// publishJob sends the notification straight away. On failure the outbox row
// stays pending and the publisher retries it.
func (s *server) publishJob(ctx context.Context, outbox jobdb.OutboxMessage) {
	if err := s.publisher.Publish(ctx, outbox); err != nil {
		slog.Error("publish failed for job", "job_id", outbox.JobID, "err", err)
	}
}

func (s *server) GetJobsId(w http.ResponseWriter, r *http.Request, id openapi_types.UUID) {
	job, ok, err := jobdb.GetJob(s.db, id.String())
	if err != nil {
		slog.Error("fetch job failed", "job_id", id.String(), "err", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch job")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, jobResponse(job), http.StatusOK)
}

func jobResponse(job jobdb.Job) api.JobResponse {
	resp := api.JobResponse{
		Id:        mustParseUUID(job.ID),
		Status:    job.Status,
		Error:     extractError(job.Error),
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}
	if result, ok := extractResult(job.Result); ok {
		if result.ImageUrl != "" {
			resp.ImageUrl = &result.ImageUrl
		}
		resp.Width = &result.Width
		resp.Height = &result.Height
		resp.Format = &result.Format
	}
	return resp
}

func extractResult(raw json.RawMessage) (api.TransformResult, bool) {
	if len(raw) == 0 {
		return api.TransformResult{}, false
	}
	var result api.TransformResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return api.TransformResult{}, false
	}
	return result, true
}

func extractError(errText sql.NullString) *string {
	if !errText.Valid || errText.String == "" {
		return nil
	}
	return &errText.String
}

func writeJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, api.ErrorResponse{Message: message}, status)
}

func mustParseUUID(id string) uuid.UUID {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil
	}
	return parsed
}

func hashBody(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
