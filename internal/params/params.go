// Package params turns raw request query values into validated transform
// options. Malformed values degrade to their defaults; only combinations that
// cannot be honoured are rejected.
package params

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"

	"image-transform/internal/compositor"
	"image-transform/internal/geometry"
)

var ErrTrimWithSmartCrop = geometry.ErrTrimWithSmartCrop

const (
	DefaultTrimThreshold = 10
	MaxDimension         = 10000
)

type Filter string

const (
	FilterNone      Filter = ""
	FilterGreyscale Filter = "greyscale"
	FilterSepia     Filter = "sepia"
)

type Options struct {
	Width       int
	Height      int
	Fit         geometry.Fit
	Anchor      geometry.Anchor
	Orientation string
	// Trim is true when border trimming was requested; TrimThreshold is the
	// colour distance that counts as border.
	Trim          bool
	TrimThreshold int
	Background    *compositor.Color
	Filter        Filter
	Output        string
	Quality       int
}

// Parse reads w, h, t, a, or, trim, bg, filt, output and q.
func Parse(v url.Values) (Options, error) {
	o := Options{
		Width:       dimension(v.Get("w")),
		Height:      dimension(v.Get("h")),
		Fit:         geometry.ResolveFit(v.Get("t")),
		Anchor:      geometry.ResolveAnchor(v.Get("a")),
		Orientation: v.Get("or"),
		Output:      strings.ToLower(v.Get("output")),
		Quality:     quality(v.Get("q")),
	}
	if v.Has("trim") {
		o.Trim = true
		o.TrimThreshold = DefaultTrimThreshold
		if n, err := strconv.Atoi(v.Get("trim")); err == nil && n > 0 && n < 255 {
			o.TrimThreshold = n
		}
	}
	if c, ok := ParseColor(v.Get("bg")); ok {
		o.Background = &c
	}
	switch f := Filter(v.Get("filt")); f {
	case FilterGreyscale, FilterSepia:
		o.Filter = f
	}

	if o.Trim && o.SmartCrop() {
		return Options{}, ErrTrimWithSmartCrop
	}
	return o, nil
}

// SmartCrop reports whether the resampler will crop by content.
func (o Options) SmartCrop() bool {
	return o.Anchor.Smart() && o.Width > 0 && o.Height > 0
}

// Request builds the planner input for an image of the given size.
func (o Options) Request(inputWidth, inputHeight, exifOrientation int) geometry.Request {
	return geometry.Request{
		InputWidth:  inputWidth,
		InputHeight: inputHeight,
		Width:       o.Width,
		Height:      o.Height,
		Fit:         o.Fit,
		Anchor:      o.Anchor,
		Rotation:    geometry.ResolveOrientation(exifOrientation, o.Orientation),
	}
}

func dimension(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0
	}
	return min(n, MaxDimension)
}

func quality(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 100 {
		return 0
	}
	return n
}

// ParseColor accepts hex colours with or without a leading '#': RGB, ARGB,
// RRGGBB and AARRGGBB. Anything else is reported as not ok.
func ParseColor(s string) (compositor.Color, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	alpha := "ff"
	hasAlpha := len(s) == 4 || len(s) == 8
	switch len(s) {
	case 3:
		s = expand(s)
	case 4:
		alpha, s = expand(s[:1]), expand(s[1:])
	case 6:
	case 8:
		alpha, s = s[:2], s[2:]
	default:
		return compositor.Color{}, false
	}
	a, err := strconv.ParseUint(alpha, 16, 8)
	if err != nil {
		return compositor.Color{}, false
	}
	c, err := colorful.Hex("#" + strings.ToLower(s))
	if err != nil {
		return compositor.Color{}, false
	}
	r, g, b := c.RGB255()
	return compositor.Color{R: r, G: g, B: b, A: uint8(a), HasAlpha: hasAlpha}, true
}

func expand(s string) string {
	var b strings.Builder
	for _, r := range s {
		b.WriteRune(r)
		b.WriteRune(r)
	}
	return b.String()
}
