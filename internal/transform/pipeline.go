package transform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"image-transform/internal/codec"
	"image-transform/internal/geometry"
	"image-transform/internal/params"
	"image-transform/internal/raster"
)

var ErrInvalidStep = errors.New("invalid pipeline step")

// State is threaded through every step of a single run.
type State struct {
	Image   *raster.Image
	Options params.Options
	// Orientation is the EXIF orientation still to be applied, 0 once the
	// image is upright.
	Orientation   int
	Premultiplied bool
	Plan          geometry.ResizePlan
	// Trim is the detected content box in input coordinates.
	Trim   *geometry.TrimWindow
	Format codec.Format
}

type Step interface {
	Name() string
	Execute(ctx context.Context, s *State) error
}

type Pipeline struct {
	steps  []Step
	logger *slog.Logger
}

// NewPipeline validates the step list once at setup.
func NewPipeline(logger *slog.Logger, steps ...Step) (*Pipeline, error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("%w: no steps", ErrInvalidStep)
	}
	seen := make(map[string]bool, len(steps))
	for i, s := range steps {
		if s == nil {
			return nil, fmt.Errorf("%w: step %d is nil", ErrInvalidStep, i)
		}
		if seen[s.Name()] {
			return nil, fmt.Errorf("%w: duplicate step %q", ErrInvalidStep, s.Name())
		}
		seen[s.Name()] = true
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{steps: steps, logger: logger}, nil
}

// DefaultSteps is the standard manipulation order.
func DefaultSteps(maxPixels int) []Step {
	return []Step{
		TrimStep{},
		SizeStep{MaxPixels: maxPixels},
		OrientationStep{},
		CropStep{},
		FilterStep{},
		BackgroundStep{},
		FinalizeStep{},
	}
}

func (p *Pipeline) Run(ctx context.Context, img *raster.Image, orientation int, opts params.Options) (*State, error) {
	s := &State{Image: img, Options: opts, Orientation: orientation}
	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := step.Execute(ctx, s); err != nil {
			return nil, fmt.Errorf("%s: %w", step.Name(), err)
		}
		p.logger.Debug("pipeline step done",
			"step", step.Name(),
			"width", s.Image.Width(),
			"height", s.Image.Height(),
			"bands", s.Image.Bands(),
			"premultiplied", s.Premultiplied,
		)
	}
	return s, nil
}
