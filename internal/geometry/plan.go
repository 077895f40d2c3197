// Package geometry resolves a loosely specified resize request into exact
// resampler dimensions, scale factors and crop windows.
//
// Everything here is pure arithmetic over value types; a single request never
// shares state with another and callers may plan concurrently.
package geometry

import "math"

// Request is the input to Plan. Width and Height of 0 mean "unspecified".
type Request struct {
	InputWidth  int
	InputHeight int
	Width       int
	Height      int
	Fit         Fit
	Anchor      Anchor
	Rotation    Rotation
}

// ResizePlan is the resolved geometry for a single request.
type ResizePlan struct {
	// Width and Height are the output dimensions in oriented space. When only
	// one side was requested the other is the auto-computed value.
	Width  int `json:"width"`
	Height int `json:"height"`

	// ResampleWidth and ResampleHeight are passed to the resampler.
	ResampleWidth  int `json:"resample_width"`
	ResampleHeight int `json:"resample_height"`

	XFactor float64 `json:"x_factor"`
	YFactor float64 `json:"y_factor"`

	// SmartCrop is InterestNone unless the resampler must scale and crop by
	// content itself.
	SmartCrop Interest `json:"smart_crop,omitempty"`

	EnlargementAllowed bool `json:"enlargement_allowed"`
	Fit                Fit  `json:"fit"`

	// Identity is true when neither side was requested.
	Identity bool `json:"identity,omitempty"`

	// Trim is the trimmed region in resampled output space, set by RefineForTrim.
	Trim *TrimWindow `json:"trim,omitempty"`
}

// HasSmartCrop reports whether the resampler performs a content-aware crop.
func (p ResizePlan) HasSmartCrop() bool {
	return p.SmartCrop != InterestNone
}

// Force reports whether the resampler must stretch to the exact dimensions.
func (p ResizePlan) Force() bool {
	return p.Fit == FitAbsolute && !p.HasSmartCrop()
}

func roundDim(v float64) int {
	n := int(math.Round(v))
	if n < 1 {
		return 1
	}
	return n
}

// Plan resolves the resample geometry for req.
func Plan(req Request) ResizePlan {
	inW, inH := float64(req.InputWidth), float64(req.InputHeight)
	if req.Rotation.SwapAxes() {
		inW, inH = inH, inW
	}

	p := ResizePlan{
		XFactor:            1,
		YFactor:            1,
		EnlargementAllowed: req.Fit.AllowsEnlargement(),
		Fit:                req.Fit,
	}
	width, height := req.Width, req.Height
	targetW, targetH := width, height

	switch {
	case width > 0 && height > 0 && req.Anchor.Smart():
		p.SmartCrop = req.Anchor.Interest()
	case width > 0 && height > 0:
		xf := inW / float64(width)
		yf := inH / float64(height)
		switch req.Fit {
		case FitSquare, FitSquareDown, FitCrop:
			if xf < yf {
				targetH = roundDim(inH / xf)
				yf = xf
			} else {
				targetW = roundDim(inW / yf)
				xf = yf
			}
		case FitLetterbox, FitFit, FitUp:
			if xf > yf {
				targetH = roundDim(inH / xf)
				yf = xf
			} else {
				targetW = roundDim(inW / yf)
				xf = yf
			}
		case FitAbsolute:
			if req.Rotation.UserSwap() {
				xf, yf = yf, xf
			}
		}
		p.XFactor, p.YFactor = xf, yf
	case width > 0:
		p.XFactor = inW / float64(width)
		if req.Fit == FitAbsolute {
			targetH = int(inH)
		} else {
			p.YFactor = p.XFactor
			targetH = roundDim(inH / p.YFactor)
		}
		height = targetH
	case height > 0:
		p.YFactor = inH / float64(height)
		if req.Fit == FitAbsolute {
			targetW = int(inW)
		} else {
			p.XFactor = p.YFactor
			targetW = roundDim(inW / p.XFactor)
		}
		width = targetW
	default:
		p.Identity = true
		targetW, targetH = int(inW), int(inH)
		width, height = targetW, targetH
	}

	p.Width, p.Height = width, height
	if req.Rotation.UserSwap() {
		targetW, targetH = targetH, targetW
	}
	p.ResampleWidth, p.ResampleHeight = targetW, targetH
	return p
}
