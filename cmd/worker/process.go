package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"image-transform/internal/api"
	"image-transform/internal/jobdb"
	"image-transform/internal/netfetch"
	"image-transform/internal/params"
	"image-transform/internal/transform"
	"image-transform/internal/uploader"
)

type processor struct {
	fetcher     *netfetch.Fetcher
	transformer *transform.Transformer
	uploader    uploader.Uploader
}

// process fetches, transforms and stores the image for one job and returns
// the result JSON kept on the job row.
func (p *processor) process(ctx context.Context, jobID string, payload json.RawMessage) (json.RawMessage, error) {
	var req api.TransformJobRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	values, err := url.ParseQuery(req.Params)
	if err != nil {
		return nil, fmt.Errorf("parse params: %w", err)
	}
	opts, err := params.Parse(values)
	if err != nil {
		return nil, err
	}

	data, err := p.fetcher.Fetch(ctx, req.ImageUrl)
	if err != nil {
		return nil, fmt.Errorf("fetch source: %w", err)
	}
	res, err := p.transformer.Transform(ctx, data, opts)
	if err != nil {
		return nil, err
	}

	objectURL, err := p.uploader.Upload(ctx, uploader.ObjectName(jobID, string(res.Format)), res.Data, res.ContentType())
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}

	return json.Marshal(api.TransformResult{
		ImageUrl: objectURL,
		Width:    res.Width,
		Height:   res.Height,
		Format:   string(res.Format),
		Bytes:    len(res.Data),
	})
}

// pushEnvelope is the body Pub/Sub POSTs to a push endpoint.
type pushEnvelope struct {
	Message struct {
		Data       []byte            `json:"data"`
		Attributes map[string]string `json:"attributes"`
		MessageID  string            `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// pushHandler wakes the claim loop. Jobs are claimed from the database, so
// the message only says that work exists; undecodable messages are acked so
// they are not redelivered forever.
func pushHandler(wake chan<- struct{}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var env pushEnvelope
		if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
			http.Error(w, "invalid push envelope", http.StatusBadRequest)
			return
		}
		var note jobdb.Notification
		if err := json.Unmarshal(env.Message.Data, &note); err != nil || note.JobID == "" {
			slog.Warn("ignoring push message", "message_id", env.Message.MessageID, "err", err)
		} else {
			slog.Debug("job notification", "job_id", note.JobID, "message_id", env.Message.MessageID)
		}

		select {
		case wake <- struct{}{}:
		default:
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
