// Package raster is a small band-interleaved image library. Samples are held
// as float64 regardless of the nominal band format so that arithmetic chains
// (premultiply, composite, recomb) never lose precision between steps; Cast
// clamps and rounds back to an integer format.
package raster

import (
	"fmt"
	"image"
	"image/color"
	"math"
)

type Format int

const (
	UChar Format = iota
	UShort
	Float
)

func (f Format) String() string {
	switch f {
	case UChar:
		return "uchar"
	case UShort:
		return "ushort"
	default:
		return "float"
	}
}

// Interpretation describes how the bands should be read.
type Interpretation int

const (
	SRGB Interpretation = iota
	RGB16
	BW
	Grey16
	Multiband
)

func (i Interpretation) String() string {
	switch i {
	case SRGB:
		return "srgb"
	case RGB16:
		return "rgb16"
	case BW:
		return "b-w"
	case Grey16:
		return "grey16"
	default:
		return "multiband"
	}
}

type Image struct {
	width  int
	height int
	bands  int
	format Format
	interp Interpretation
	pix    []float64
}

// New allocates a zeroed image.
func New(width, height, bands int, format Format, interp Interpretation) *Image {
	if width <= 0 || height <= 0 || bands <= 0 {
		panic(fmt.Sprintf("raster: invalid image shape %dx%dx%d", width, height, bands))
	}
	return &Image{
		width:  width,
		height: height,
		bands:  bands,
		format: format,
		interp: interp,
		pix:    make([]float64, width*height*bands),
	}
}

func (m *Image) Width() int                     { return m.width }
func (m *Image) Height() int                    { return m.height }
func (m *Image) Bands() int                     { return m.bands }
func (m *Image) Format() Format                 { return m.format }
func (m *Image) Interpretation() Interpretation { return m.interp }

func (m *Image) offset(x, y, band int) int {
	return (y*m.width+x)*m.bands + band
}

func (m *Image) At(x, y, band int) float64 {
	return m.pix[m.offset(x, y, band)]
}

func (m *Image) Set(x, y, band int, v float64) {
	m.pix[m.offset(x, y, band)] = v
}

// Pixel returns a copy of all bands at (x, y).
func (m *Image) Pixel(x, y int) []float64 {
	o := m.offset(x, y, 0)
	out := make([]float64, m.bands)
	copy(out, m.pix[o:o+m.bands])
	return out
}

func (m *Image) Clone() *Image {
	c := *m
	c.pix = make([]float64, len(m.pix))
	copy(c.pix, m.pix)
	return &c
}

// like returns an empty image with the same size as m.
func (m *Image) like(bands int, format Format) *Image {
	return New(m.width, m.height, bands, format, m.interp)
}

// HasAlpha reports whether the last band is an alpha channel.
func (m *Image) HasAlpha() bool {
	return m.bands == 2 || m.bands >= 4
}

// Is16Bit reports whether samples use the 16-bit range.
func (m *Image) Is16Bit() bool {
	return m.interp == RGB16 || m.interp == Grey16
}

// MaxAlpha is the value of a fully opaque alpha sample.
func (m *Image) MaxAlpha() float64 {
	if m.Is16Bit() {
		return 65535
	}
	return 255
}

// Equal reports whether both images have the same shape, format and samples.
func (m *Image) Equal(o *Image) bool {
	if m.width != o.width || m.height != o.height || m.bands != o.bands ||
		m.format != o.format || m.interp != o.interp {
		return false
	}
	for i, v := range m.pix {
		if o.pix[i] != v {
			return false
		}
	}
	return true
}

// FromImage converts a decoded image. Greyscale sources become one band,
// opaque colour sources three bands and everything else four bands.
// 16-bit sources keep their full sample range.
func FromImage(src image.Image) *Image {
	b := src.Bounds()
	is16 := false
	grey := false
	switch src.(type) {
	case *image.Gray:
		grey = true
	case *image.Gray16:
		grey, is16 = true, true
	case *image.RGBA64, *image.NRGBA64:
		is16 = true
	}
	opaque := grey
	if o, ok := src.(interface{ Opaque() bool }); ok && o.Opaque() {
		opaque = true
	}

	bands := 4
	interp := SRGB
	switch {
	case grey:
		bands, interp = 1, BW
	case opaque:
		bands = 3
	}
	format := UChar
	if is16 {
		format = UShort
		if interp == BW {
			interp = Grey16
		} else {
			interp = RGB16
		}
	}

	m := New(b.Dx(), b.Dy(), bands, format, interp)
	var shift uint
	if !is16 {
		shift = 8
	}
	for y := 0; y < m.height; y++ {
		for x := 0; x < m.width; x++ {
			c := nrgba64At(src, b.Min.X+x, b.Min.Y+y)
			o := m.offset(x, y, 0)
			switch bands {
			case 1:
				g := color.Gray16Model.Convert(c).(color.Gray16)
				m.pix[o] = float64(g.Y >> shift)
			case 3:
				m.pix[o] = float64(c.R >> shift)
				m.pix[o+1] = float64(c.G >> shift)
				m.pix[o+2] = float64(c.B >> shift)
			default:
				m.pix[o] = float64(c.R >> shift)
				m.pix[o+1] = float64(c.G >> shift)
				m.pix[o+2] = float64(c.B >> shift)
				m.pix[o+3] = float64(c.A >> shift)
			}
		}
	}
	return m
}

// nrgba64At reads non-premultiplied sources directly so that 8-bit samples
// survive the round trip through the 16-bit colour model exactly.
func nrgba64At(src image.Image, x, y int) color.NRGBA64 {
	switch s := src.(type) {
	case *image.NRGBA:
		c := s.NRGBAAt(x, y)
		return color.NRGBA64{R: uint16(c.R) * 0x101, G: uint16(c.G) * 0x101, B: uint16(c.B) * 0x101, A: uint16(c.A) * 0x101}
	case *image.NRGBA64:
		return s.NRGBA64At(x, y)
	default:
		return color.NRGBA64Model.Convert(src.At(x, y)).(color.NRGBA64)
	}
}

func clamp(v, hi float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > hi {
		return hi
	}
	return v
}

// ToImage converts back to a standard library image. Samples are treated as
// unpremultiplied; bands beyond the fourth are dropped.
func (m *Image) ToImage() image.Image {
	r := image.Rect(0, 0, m.width, m.height)
	hi := m.MaxAlpha()
	sample := func(x, y, band int) float64 {
		return math.Round(clamp(m.At(x, y, band), hi))
	}

	if m.bands == 1 {
		if m.Is16Bit() {
			out := image.NewGray16(r)
			for y := 0; y < m.height; y++ {
				for x := 0; x < m.width; x++ {
					out.SetGray16(x, y, color.Gray16{Y: uint16(sample(x, y, 0))})
				}
			}
			return out
		}
		out := image.NewGray(r)
		for y := 0; y < m.height; y++ {
			for x := 0; x < m.width; x++ {
				out.SetGray(x, y, color.Gray{Y: uint8(sample(x, y, 0))})
			}
		}
		return out
	}

	rgba := func(x, y int) (float64, float64, float64, float64) {
		switch m.bands {
		case 2:
			g := sample(x, y, 0)
			return g, g, g, sample(x, y, 1)
		case 3:
			return sample(x, y, 0), sample(x, y, 1), sample(x, y, 2), hi
		default:
			return sample(x, y, 0), sample(x, y, 1), sample(x, y, 2), sample(x, y, 3)
		}
	}

	if m.Is16Bit() {
		out := image.NewNRGBA64(r)
		for y := 0; y < m.height; y++ {
			for x := 0; x < m.width; x++ {
				cr, cg, cb, ca := rgba(x, y)
				out.SetNRGBA64(x, y, color.NRGBA64{R: uint16(cr), G: uint16(cg), B: uint16(cb), A: uint16(ca)})
			}
		}
		return out
	}
	out := image.NewNRGBA(r)
	for y := 0; y < m.height; y++ {
		for x := 0; x < m.width; x++ {
			cr, cg, cb, ca := rgba(x, y)
			out.SetNRGBA(x, y, color.NRGBA{R: uint8(cr), G: uint8(cg), B: uint8(cb), A: uint8(ca)})
		}
	}
	return out
}
