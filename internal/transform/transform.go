// Package transform runs the manipulation pipeline: decode, trim, resize,
// rotate, crop, filter, background and encode.
package transform

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"

	"image-transform/internal/codec"
	"image-transform/internal/geometry"
	"image-transform/internal/params"
	"image-transform/internal/raster"
)

type Limits struct {
	// MaxPixels bounds the resolved output size.
	MaxPixels int
	// MaxInputPixels bounds the decoded source size.
	MaxInputPixels int
}

type Result struct {
	Data       []byte               `json:"-"`
	Format     codec.Format         `json:"format"`
	Width      int                  `json:"width"`
	Height     int                  `json:"height"`
	Plan       geometry.ResizePlan  `json:"-"`
	TrimWindow *geometry.TrimWindow `json:"trim_window,omitempty"`
}

func (r *Result) ContentType() string {
	return r.Format.ContentType()
}

type Transformer struct {
	pipeline *Pipeline
	limits   Limits
	logger   *slog.Logger
}

func New(logger *slog.Logger, limits Limits) (*Transformer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p, err := NewPipeline(logger, DefaultSteps(limits.MaxPixels)...)
	if err != nil {
		return nil, err
	}
	return &Transformer{pipeline: p, limits: limits, logger: logger}, nil
}

func (t *Transformer) Transform(ctx context.Context, data []byte, opts params.Options) (*Result, error) {
	d, err := codec.Decode(data, t.limits.MaxInputPixels)
	if err != nil {
		return nil, err
	}
	st, err := t.pipeline.Run(ctx, raster.FromImage(d.Image), d.Orientation, opts)
	if err != nil {
		return nil, err
	}
	out, err := codec.EncodeBytes(st.Image.ToImage(), st.Format, opts.Quality)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", st.Format, err)
	}
	t.logger.Debug("image transformed",
		"source_format", d.Format,
		"format", st.Format,
		"width", st.Image.Width(),
		"height", st.Image.Height(),
		"bytes", len(out),
	)
	return &Result{
		Data:       out,
		Format:     st.Format,
		Width:      st.Image.Width(),
		Height:     st.Image.Height(),
		Plan:       st.Plan,
		TrimWindow: st.Plan.Trim,
	}, nil
}

// PlanFor resolves the resize plan from the image header alone. Trim windows
// need pixel data and are not computed.
func PlanFor(data []byte, opts params.Options) (geometry.ResizePlan, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return geometry.ResizePlan{}, fmt.Errorf("%w: %v", codec.ErrUnsupportedFormat, err)
	}
	return geometry.Plan(opts.Request(cfg.Width, cfg.Height, codec.Orientation(data))), nil
}
