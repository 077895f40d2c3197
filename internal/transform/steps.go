package transform

import (
	"context"

	"image-transform/internal/codec"
	"image-transform/internal/compositor"
	"image-transform/internal/geometry"
	"image-transform/internal/params"
	"image-transform/internal/raster"
)

// TrimStep finds the content box when trimming was requested. The image is
// brought upright first so the box and the planner share one frame.
type TrimStep struct{}

func (TrimStep) Name() string { return "trim" }

func (TrimStep) Execute(_ context.Context, s *State) error {
	if !s.Options.Trim {
		return nil
	}
	if s.Orientation > 1 {
		s.Image = s.Image.AutoRotate(s.Orientation)
	}
	s.Orientation = 0

	threshold := float64(s.Options.TrimThreshold)
	if s.Image.Is16Bit() {
		threshold *= 256
	}
	left, top, w, h := s.Image.FindTrim(threshold, nil)
	if w == 0 || h == 0 || (w == s.Image.Width() && h == s.Image.Height()) {
		return nil
	}
	s.Trim = &geometry.TrimWindow{Left: left, Top: top, Width: w, Height: h}
	return nil
}

// SizeStep plans and performs the resample, then cuts out the trimmed region.
type SizeStep struct {
	MaxPixels int
}

func (SizeStep) Name() string { return "size" }

func (st SizeStep) Execute(_ context.Context, s *State) error {
	o := s.Options
	img := s.Image
	req := o.Request(img.Width(), img.Height(), s.Orientation)
	plan := geometry.Plan(req)
	if s.Trim != nil {
		refined, err := geometry.RefineForTrim(plan, req, *s.Trim)
		if err != nil {
			return err
		}
		plan = refined
	}
	if err := geometry.CheckPixelBudget(plan, st.MaxPixels); err != nil {
		return err
	}
	s.Plan = plan

	switch {
	case plan.Identity && s.Trim == nil:
		if s.Orientation > 1 {
			img = img.AutoRotate(s.Orientation)
		}
	default:
		img = img.Thumbnail(plan.ResampleWidth, raster.ThumbnailOptions{
			Height:      plan.ResampleHeight,
			Size:        thumbnailSize(plan),
			Crop:        interesting(plan.SmartCrop),
			Orientation: s.Orientation,
		})
	}
	s.Orientation = 0

	if plan.Trim != nil {
		win := fitWindow(*plan.Trim, plan, img.Width(), img.Height())
		out, err := img.ExtractArea(win.Left, win.Top, win.Width, win.Height)
		if err != nil {
			return err
		}
		img = out
	}
	s.Image = img
	return nil
}

func thumbnailSize(p geometry.ResizePlan) raster.Size {
	switch {
	case p.Force():
		return raster.SizeForce
	case !p.EnlargementAllowed:
		return raster.SizeDown
	default:
		return raster.SizeBoth
	}
}

func interesting(i geometry.Interest) raster.Interesting {
	switch i {
	case geometry.InterestEntropy:
		return raster.InterestingEntropy
	case geometry.InterestAttention:
		return raster.InterestingAttention
	default:
		return raster.InterestingNone
	}
}

// fitWindow rescales a planned trim window when the resampler produced a
// frame of a different size, for example when enlargement was refused.
func fitWindow(win geometry.TrimWindow, p geometry.ResizePlan, width, height int) geometry.TrimWindow {
	pw, ph := p.ResampleWidth, p.ResampleHeight
	if pw != width || ph != height {
		sx := float64(width) / float64(pw)
		sy := float64(height) / float64(ph)
		win = geometry.TrimWindow{
			Left:   int(float64(win.Left)*sx + 0.5),
			Top:    int(float64(win.Top)*sy + 0.5),
			Width:  max(int(float64(win.Width)*sx+0.5), 1),
			Height: max(int(float64(win.Height)*sy+0.5), 1),
		}
	}
	return win.Clamp(width, height)
}

// OrientationStep applies the user-requested rotation.
type OrientationStep struct{}

func (OrientationStep) Name() string { return "orientation" }

func (OrientationStep) Execute(_ context.Context, s *State) error {
	if angle := geometry.ParseUserAngle(s.Options.Orientation); angle != 0 {
		s.Image = s.Image.Rot(angle)
	}
	return nil
}

// CropStep cuts covering fits down to the requested box and pads letterbox
// fits out to it.
type CropStep struct{}

func (CropStep) Name() string { return "crop" }

func (CropStep) Execute(_ context.Context, s *State) error {
	o := s.Options
	img := s.Image
	if o.Width <= 0 || o.Height <= 0 || s.Plan.HasSmartCrop() {
		return nil
	}
	switch {
	case o.Fit.Covers():
		w, h := min(o.Width, img.Width()), min(o.Height, img.Height())
		if w == img.Width() && h == img.Height() {
			return nil
		}
		x, y := o.Anchor.Offset(img.Width(), img.Height(), w, h)
		out, err := img.ExtractArea(x, y, w, h)
		if err != nil {
			return err
		}
		s.Image = out
	case o.Fit == geometry.FitLetterbox:
		if img.Width() == o.Width && img.Height() == o.Height {
			return nil
		}
		if !img.HasAlpha() {
			img = img.BandJoinConst(img.MaxAlpha())
		}
		x, y := geometry.AnchorCenter.Offset(o.Width, o.Height, img.Width(), img.Height())
		// The padding stays transparent; BackgroundStep fills it.
		s.Image = img.Embed(x, y, o.Width, o.Height, []float64{0})
	}
	return nil
}

var sepia = [][]float64{
	{0.3588, 0.7044, 0.1368},
	{0.2990, 0.5870, 0.1140},
	{0.2392, 0.4696, 0.0912},
}

type FilterStep struct{}

func (FilterStep) Name() string { return "filter" }

func (FilterStep) Execute(_ context.Context, s *State) error {
	img := s.Image
	switch s.Options.Filter {
	case params.FilterGreyscale:
		s.Image = img.Colourspace(raster.BW)
	case params.FilterSepia:
		if img.Bands() < 3 {
			img = img.Colourspace(raster.SRGB)
		}
		if img.HasAlpha() {
			colour := img.ExtractBand(0, img.Bands()-1)
			alpha := img.ExtractBand(img.Bands()-1, 1)
			s.Image = colour.Recomb(sepia).BandJoin(alpha)
		} else {
			s.Image = img.Recomb(sepia)
		}
	}
	return nil
}

type BackgroundStep struct{}

func (BackgroundStep) Name() string { return "background" }

func (BackgroundStep) Execute(_ context.Context, s *State) error {
	s.Image, s.Premultiplied = compositor.Apply(s.Image, compositor.Options{
		Background:    s.Options.Background,
		HasAlpha:      s.Image.HasAlpha(),
		Premultiplied: s.Premultiplied,
	})
	return nil
}

// FinalizeStep undoes premultiplication, picks the output format and casts
// samples back to their native integer range.
type FinalizeStep struct{}

func (FinalizeStep) Name() string { return "finalize" }

func (FinalizeStep) Execute(_ context.Context, s *State) error {
	img := s.Image
	if s.Premultiplied {
		img = img.Unpremultiply(img.MaxAlpha())
		s.Premultiplied = false
	}
	s.Format = codec.SelectFormat(s.Options.Output, img.HasAlpha())
	if img.HasAlpha() && !s.Format.SupportsAlpha() {
		img = img.Flatten([]float64{img.MaxAlpha()}, img.MaxAlpha())
	}
	format := raster.UChar
	if img.Is16Bit() {
		format = raster.UShort
	}
	s.Image = img.Cast(format)
	return nil
}
