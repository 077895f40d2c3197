package geometry

import (
	"errors"
	"math"
)

var (
	ErrTrimWithSmartCrop = errors.New("trim cannot be combined with a smart crop")
	ErrTrimOutOfBounds   = errors.New("trim window exceeds image bounds")
)

// TrimWindow is a rectangle in pixel coordinates.
type TrimWindow struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Within reports whether the window is non-empty and fits in a width x height frame.
func (t TrimWindow) Within(width, height int) bool {
	return t.Width > 0 && t.Height > 0 && t.Left >= 0 && t.Top >= 0 &&
		t.Left+t.Width <= width && t.Top+t.Height <= height
}

// Clamp shrinks the window so it fits in a width x height frame.
func (t TrimWindow) Clamp(width, height int) TrimWindow {
	t.Left = min(max(t.Left, 0), max(width-1, 0))
	t.Top = min(max(t.Top, 0), max(height-1, 0))
	t.Width = max(min(t.Width, width-t.Left), 1)
	t.Height = max(min(t.Height, height-t.Top), 1)
	return t
}

// RefineForTrim re-solves a provisional plan against the region a trim step
// keeps. The trim window is given in input pixel coordinates, the same frame
// as req.InputWidth/InputHeight. The returned plan asks the resampler for a
// frame large enough that cropping plan.Trim out of it yields the trimmed
// content at the requested size.
//
// Callers must not combine trimming with a smart crop.
func RefineForTrim(p ResizePlan, req Request, trim TrimWindow) (ResizePlan, error) {
	if p.HasSmartCrop() || req.Anchor.Smart() && req.Width > 0 && req.Height > 0 {
		return p, ErrTrimWithSmartCrop
	}
	if !trim.Within(req.InputWidth, req.InputHeight) {
		return p, ErrTrimOutOfBounds
	}

	swap := req.Rotation.SwapAxes()
	inW, inH := float64(req.InputWidth), float64(req.InputHeight)
	left, top := float64(trim.Left), float64(trim.Top)
	trimW, trimH := float64(trim.Width), float64(trim.Height)
	if swap {
		inW, inH = inH, inW
		left, top = top, left
		trimW, trimH = trimH, trimW
	}

	width, height := req.Width, req.Height
	bothFixed := width > 0 && height > 0
	factorsSwapped := bothFixed && req.Fit == FitAbsolute && req.Rotation.UserSwap()

	// Provisional plan in planning space.
	targetW, targetH := p.ResampleWidth, p.ResampleHeight
	if req.Rotation.UserSwap() {
		targetW, targetH = targetH, targetW
	}
	xf, yf := p.XFactor, p.YFactor
	if factorsSwapped {
		xf, yf = yf, xf
	}

	// Factors the planner would have chosen had the trimmed region been the input.
	xt, yt := 1.0, 1.0
	switch {
	case bothFixed:
		xt, yt = trimW/float64(width), trimH/float64(height)
		switch req.Fit {
		case FitSquare, FitSquareDown, FitCrop:
			c := math.Min(xt, yt)
			xt, yt = c, c
		case FitLetterbox, FitFit, FitUp:
			c := math.Max(xt, yt)
			xt, yt = c, c
		}
	case width > 0:
		xt = trimW / float64(width)
		if req.Fit != FitAbsolute {
			yt = xt
		}
	case height > 0:
		yt = trimH / float64(height)
		if req.Fit != FitAbsolute {
			xt = yt
		}
	}

	resizeTrimW := roundDim(inW / xt)
	resizeTrimH := roundDim(inH / yt)
	rx := float64(resizeTrimW) / float64(targetW)
	ry := float64(resizeTrimH) / float64(targetH)
	xf /= rx
	yf /= ry

	outW := roundDim(trimW / xf)
	outH := roundDim(trimH / yf)
	win := TrimWindow{
		Left:   int(math.Round(left / xf)),
		Top:    int(math.Round(top / yf)),
		Width:  outW,
		Height: outH,
	}

	q := p
	switch {
	case bothFixed:
	case req.Fit == FitAbsolute && (width > 0 || height > 0):
	case width > 0:
		q.Height = outH
	case height > 0:
		q.Width = outW
	default:
		q.Width, q.Height = outW, outH
	}

	resampleW := roundDim(float64(targetW) * rx)
	resampleH := roundDim(float64(targetH) * ry)
	if req.Rotation.UserSwap() {
		resampleW, resampleH = resampleH, resampleW
	}
	q.ResampleWidth, q.ResampleHeight = resampleW, resampleH

	if factorsSwapped {
		xf, yf = yf, xf
	}
	q.XFactor, q.YFactor = xf, yf

	if swap {
		win.Left, win.Top = win.Top, win.Left
		win.Width, win.Height = win.Height, win.Width
	}
	q.Trim = &win
	return q, nil
}
