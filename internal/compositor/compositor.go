// Package compositor places an image with alpha onto a background colour.
package compositor

import (
	"image-transform/internal/raster"
)

// Color is an 8-bit RGBA background colour. HasAlpha records whether the
// colour was written with an alpha component; A is 255 when it was not.
type Color struct {
	R, G, B, A uint8
	HasAlpha   bool
}

func (c Color) Transparent() bool { return c.HasAlpha && c.A == 0 }

type Options struct {
	// Background is nil when no background was requested.
	Background    *Color
	HasAlpha      bool
	Premultiplied bool
}

// Apply replaces the transparency of img with opts.Background. It returns the
// resulting image and whether that image is premultiplied.
//
// Greyscale images and backgrounds without an alpha component are flattened,
// which drops the alpha band. Backgrounds with alpha, even a full one, are
// composited underneath img in premultiplied space and the alpha band is kept.
func Apply(img *raster.Image, opts Options) (*raster.Image, bool) {
	bg := opts.Background
	if bg == nil || !opts.HasAlpha || bg.Transparent() {
		return img, opts.Premultiplied
	}

	multiplier := 1.0
	if img.Is16Bit() {
		multiplier = 256
	}
	r := multiplier * float64(bg.R)
	g := multiplier * float64(bg.G)
	b := multiplier * float64(bg.B)

	if img.Bands() < 3 || !bg.HasAlpha {
		color := []float64{r, g, b}
		if img.Bands() < 3 {
			color = []float64{multiplier * raster.Luma(float64(bg.R), float64(bg.G), float64(bg.B))}
		}
		if opts.Premultiplied {
			format := raster.UChar
			if img.Is16Bit() {
				format = raster.UShort
			}
			img = img.Unpremultiply(img.MaxAlpha()).Cast(format)
		}
		return img.Flatten(color, img.MaxAlpha()), false
	}

	backdrop := raster.NewFromImage(img, r).
		BandJoinConst(g, b, multiplier*float64(bg.A)).
		Premultiply(img.MaxAlpha())
	if !opts.Premultiplied {
		img = img.Premultiply(img.MaxAlpha())
	}
	return Over(img, backdrop), true
}

// Over composites premultiplied src over premultiplied dst. Both must share
// size and band count with alpha in the last band.
func Over(src, dst *raster.Image) *raster.Image {
	maxAlpha := src.MaxAlpha()
	norm := []float64{1 / maxAlpha}

	srcColour := src.ExtractBand(0, src.Bands()-1)
	srcAlpha := src.ExtractBand(src.Bands()-1, 1).Linear(norm, []float64{0})
	dstColour := dst.ExtractBand(0, dst.Bands()-1)
	dstAlpha := dst.ExtractBand(dst.Bands()-1, 1).Linear(norm, []float64{0})

	inverse := srcAlpha.Linear([]float64{-1}, []float64{1})
	outAlpha := srcAlpha.Add(dstAlpha.Multiply(inverse))
	outColour := srcColour.Add(dstColour.Multiply(inverse))

	return outColour.BandJoin(outAlpha.Linear([]float64{maxAlpha}, []float64{0}))
}
