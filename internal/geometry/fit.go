package geometry

import "strings"

// Fit is the policy used to reconcile the requested box with the image aspect ratio.
type Fit int

const (
	FitFit Fit = iota
	FitUp
	FitSquare
	FitSquareDown
	FitAbsolute
	FitLetterbox
	FitCrop
)

var fitNames = map[string]Fit{
	"fit":        FitFit,
	"fitup":      FitUp,
	"square":     FitSquare,
	"squaredown": FitSquareDown,
	"absolute":   FitAbsolute,
	"letterbox":  FitLetterbox,
}

// ResolveFit maps a raw fit token to a Fit. Unknown tokens resolve to FitFit,
// anything starting with "crop" resolves to FitCrop.
func ResolveFit(token string) Fit {
	if f, ok := fitNames[token]; ok {
		return f
	}
	if strings.HasPrefix(token, "crop") {
		return FitCrop
	}
	return FitFit
}

func (f Fit) String() string {
	switch f {
	case FitUp:
		return "fitup"
	case FitSquare:
		return "square"
	case FitSquareDown:
		return "squaredown"
	case FitAbsolute:
		return "absolute"
	case FitLetterbox:
		return "letterbox"
	case FitCrop:
		return "crop"
	default:
		return "fit"
	}
}

func (f Fit) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// AllowsEnlargement reports whether the resampler may upscale for this fit.
func (f Fit) AllowsEnlargement() bool {
	return f != FitFit && f != FitSquareDown
}

// Covers reports whether the fit fills the box and relies on a later crop.
func (f Fit) Covers() bool {
	return f == FitSquare || f == FitSquareDown || f == FitCrop
}

// Anchor is the crop position. AnchorEntropy and AnchorAttention are smart anchors.
type Anchor int

const (
	AnchorCenter Anchor = iota
	AnchorTop
	AnchorTopRight
	AnchorRight
	AnchorBottomRight
	AnchorBottom
	AnchorBottomLeft
	AnchorLeft
	AnchorTopLeft
	AnchorEntropy
	AnchorAttention
)

var anchorNames = map[string]Anchor{
	"center":       AnchorCenter,
	"centre":       AnchorCenter,
	"c":            AnchorCenter,
	"top":          AnchorTop,
	"t":            AnchorTop,
	"top-right":    AnchorTopRight,
	"tr":           AnchorTopRight,
	"right":        AnchorRight,
	"r":            AnchorRight,
	"bottom-right": AnchorBottomRight,
	"br":           AnchorBottomRight,
	"bottom":       AnchorBottom,
	"b":            AnchorBottom,
	"bottom-left":  AnchorBottomLeft,
	"bl":           AnchorBottomLeft,
	"left":         AnchorLeft,
	"l":            AnchorLeft,
	"top-left":     AnchorTopLeft,
	"tl":           AnchorTopLeft,
	"entropy":      AnchorEntropy,
	"attention":    AnchorAttention,
}

// ResolveAnchor maps a raw anchor token to an Anchor, defaulting to AnchorCenter.
func ResolveAnchor(token string) Anchor {
	if a, ok := anchorNames[token]; ok {
		return a
	}
	return AnchorCenter
}

// Smart reports whether the anchor picks the crop region by content.
func (a Anchor) Smart() bool {
	return a == AnchorEntropy || a == AnchorAttention
}

// Interest is the content-aware crop strategy handed to the resampler.
type Interest int

const (
	InterestNone Interest = iota
	InterestEntropy
	InterestAttention
)

// Interest returns the smart crop strategy for a, InterestNone for
// positional anchors.
func (a Anchor) Interest() Interest {
	switch a {
	case AnchorEntropy:
		return InterestEntropy
	case AnchorAttention:
		return InterestAttention
	default:
		return InterestNone
	}
}

func (i Interest) String() string {
	switch i {
	case InterestEntropy:
		return "entropy"
	case InterestAttention:
		return "attention"
	default:
		return "none"
	}
}

func (i Interest) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

func (a Anchor) String() string {
	switch a {
	case AnchorTop:
		return "top"
	case AnchorTopRight:
		return "top-right"
	case AnchorRight:
		return "right"
	case AnchorBottomRight:
		return "bottom-right"
	case AnchorBottom:
		return "bottom"
	case AnchorBottomLeft:
		return "bottom-left"
	case AnchorLeft:
		return "left"
	case AnchorTopLeft:
		return "top-left"
	case AnchorEntropy:
		return "entropy"
	case AnchorAttention:
		return "attention"
	default:
		return "center"
	}
}

func (a Anchor) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// Offset returns the top-left corner of a w x h window placed inside a
// frameW x frameH frame at the anchor. Smart anchors fall back to the centre.
func (a Anchor) Offset(frameW, frameH, w, h int) (int, int) {
	dx, dy := frameW-w, frameH-h
	if dx < 0 {
		dx = 0
	}
	if dy < 0 {
		dy = 0
	}
	x, y := dx/2, dy/2
	switch a {
	case AnchorTop:
		y = 0
	case AnchorTopRight:
		x, y = dx, 0
	case AnchorRight:
		x = dx
	case AnchorBottomRight:
		x, y = dx, dy
	case AnchorBottom:
		y = dy
	case AnchorBottomLeft:
		x, y = 0, dy
	case AnchorLeft:
		x = 0
	case AnchorTopLeft:
		x, y = 0, 0
	}
	return x, y
}
