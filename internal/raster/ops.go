package raster

import (
	"fmt"
	"math"
)

// Operations below return new images and never modify their receiver.
// Shape mismatches are caller bugs and panic.

func (m *Image) sameSize(o *Image, op string) {
	if m.width != o.width || m.height != o.height {
		panic(fmt.Sprintf("raster: %s: size mismatch %dx%d vs %dx%d", op, m.width, m.height, o.width, o.height))
	}
}

// perBand expands a one-element or per-band constant vector.
func perBand(values []float64, bands int, op string) []float64 {
	switch len(values) {
	case bands:
		return values
	case 1:
		out := make([]float64, bands)
		for i := range out {
			out[i] = values[0]
		}
		return out
	default:
		panic(fmt.Sprintf("raster: %s: %d constants for %d bands", op, len(values), bands))
	}
}

// NewFromImage returns a constant image with the size of ref and one band
// per value.
func NewFromImage(ref *Image, values ...float64) *Image {
	out := ref.like(len(values), ref.format)
	for i := 0; i < len(out.pix); i += out.bands {
		copy(out.pix[i:], values)
	}
	return out
}

// ExtractBand returns n bands starting at band.
func (m *Image) ExtractBand(band, n int) *Image {
	if band < 0 || n <= 0 || band+n > m.bands {
		panic(fmt.Sprintf("raster: extract_band %d+%d from %d bands", band, n, m.bands))
	}
	out := m.like(n, m.format)
	for p := 0; p < m.width*m.height; p++ {
		copy(out.pix[p*n:(p+1)*n], m.pix[p*m.bands+band:p*m.bands+band+n])
	}
	return out
}

// BandJoin appends the bands of others to m.
func (m *Image) BandJoin(others ...*Image) *Image {
	bands := m.bands
	format := m.format
	for _, o := range others {
		m.sameSize(o, "bandjoin")
		bands += o.bands
		if o.format > format {
			format = o.format
		}
	}
	out := m.like(bands, format)
	for p := 0; p < m.width*m.height; p++ {
		dst := out.pix[p*bands:]
		n := copy(dst, m.pix[p*m.bands:(p+1)*m.bands])
		for _, o := range others {
			n += copy(dst[n:], o.pix[p*o.bands:(p+1)*o.bands])
		}
	}
	return out
}

// BandJoinConst appends constant bands to m.
func (m *Image) BandJoinConst(values ...float64) *Image {
	if len(values) == 0 {
		return m.Clone()
	}
	return m.BandJoin(NewFromImage(m, values...))
}

// Linear computes in*a + b per band.
func (m *Image) Linear(a, b []float64) *Image {
	a = perBand(a, m.bands, "linear")
	b = perBand(b, m.bands, "linear")
	out := m.like(m.bands, Float)
	for i, v := range m.pix {
		k := i % m.bands
		out.pix[i] = v*a[k] + b[k]
	}
	return out
}

// binary applies fn band-wise. A one-band operand is broadcast across the
// bands of the other.
func (m *Image) binary(o *Image, op string, fn func(a, b float64) float64) *Image {
	m.sameSize(o, op)
	bands := max(m.bands, o.bands)
	if (m.bands != bands && m.bands != 1) || (o.bands != bands && o.bands != 1) {
		panic(fmt.Sprintf("raster: %s: band mismatch %d vs %d", op, m.bands, o.bands))
	}
	out := m.like(bands, Float)
	for p := 0; p < m.width*m.height; p++ {
		for k := 0; k < bands; k++ {
			a := m.pix[p*m.bands+min(k, m.bands-1)]
			b := o.pix[p*o.bands+min(k, o.bands-1)]
			out.pix[p*bands+k] = fn(a, b)
		}
	}
	return out
}

func (m *Image) Multiply(o *Image) *Image {
	return m.binary(o, "multiply", func(a, b float64) float64 { return a * b })
}

func (m *Image) Add(o *Image) *Image {
	return m.binary(o, "add", func(a, b float64) float64 { return a + b })
}

func (m *Image) requireAlpha(op string) {
	if !m.HasAlpha() {
		panic(fmt.Sprintf("raster: %s: image has no alpha band (%d bands)", op, m.bands))
	}
}

// Premultiply scales the colour bands by alpha/maxAlpha. Alpha is kept as is.
func (m *Image) Premultiply(maxAlpha float64) *Image {
	m.requireAlpha("premultiply")
	out := m.like(m.bands, Float)
	last := m.bands - 1
	for p := 0; p < len(m.pix); p += m.bands {
		a := m.pix[p+last]
		f := a / maxAlpha
		for k := 0; k < last; k++ {
			out.pix[p+k] = m.pix[p+k] * f
		}
		out.pix[p+last] = a
	}
	return out
}

// Unpremultiply reverses Premultiply. Fully transparent pixels become zero.
func (m *Image) Unpremultiply(maxAlpha float64) *Image {
	m.requireAlpha("unpremultiply")
	out := m.like(m.bands, Float)
	last := m.bands - 1
	for p := 0; p < len(m.pix); p += m.bands {
		a := m.pix[p+last]
		var f float64
		if a != 0 {
			f = maxAlpha / a
		}
		for k := 0; k < last; k++ {
			out.pix[p+k] = m.pix[p+k] * f
		}
		out.pix[p+last] = a
	}
	return out
}

// Flatten removes the alpha band, blending against a constant background.
func (m *Image) Flatten(background []float64, maxAlpha float64) *Image {
	m.requireAlpha("flatten")
	last := m.bands - 1
	bg := perBand(background, last, "flatten")
	out := m.like(last, Float)
	for p := 0; p < m.width*m.height; p++ {
		src := m.pix[p*m.bands : (p+1)*m.bands]
		a := clamp(src[last], maxAlpha) / maxAlpha
		for k := 0; k < last; k++ {
			out.pix[p*last+k] = src[k]*a + bg[k]*(1-a)
		}
	}
	if m.format == Float {
		return out
	}
	return out.Cast(m.format)
}

// Cast converts to format, rounding and clamping for integer formats.
func (m *Image) Cast(format Format) *Image {
	out := m.like(m.bands, format)
	var hi float64
	switch format {
	case UChar:
		hi = 255
	case UShort:
		hi = 65535
	default:
		copy(out.pix, m.pix)
		return out
	}
	for i, v := range m.pix {
		out.pix[i] = math.Round(clamp(v, hi))
	}
	return out
}

// Recomb multiplies every pixel by matrix. Each row yields one output band
// and must have one column per input band.
func (m *Image) Recomb(matrix [][]float64) *Image {
	if len(matrix) == 0 {
		panic("raster: recomb: empty matrix")
	}
	for _, row := range matrix {
		if len(row) != m.bands {
			panic(fmt.Sprintf("raster: recomb: %d columns for %d bands", len(row), m.bands))
		}
	}
	bands := len(matrix)
	out := m.like(bands, Float)
	for p := 0; p < m.width*m.height; p++ {
		src := m.pix[p*m.bands : (p+1)*m.bands]
		for k, row := range matrix {
			var sum float64
			for j, c := range row {
				sum += c * src[j]
			}
			out.pix[p*bands+k] = sum
		}
	}
	return out
}

// luma weights for converting sRGB-like bands to grey.
const (
	lumaR = 0.2126
	lumaG = 0.7152
	lumaB = 0.0722
)

// Luma reduces an RGB triple to a grey level.
func Luma(r, g, b float64) float64 {
	return lumaR*r + lumaG*g + lumaB*b
}

// Colourspace converts between colour and greyscale interpretations. The
// sample range follows the source: a 16-bit colour image converted to BW
// becomes Grey16. Alpha is carried across.
func (m *Image) Colourspace(target Interpretation) *Image {
	is16 := m.Is16Bit()
	grey := m.interp == BW || m.interp == Grey16
	switch target {
	case BW, Grey16:
		if is16 {
			target = Grey16
		} else {
			target = BW
		}
		if grey {
			out := m.Clone()
			out.interp = target
			return out
		}
		if m.bands < 3 {
			panic(fmt.Sprintf("raster: colourspace: cannot reduce %d bands to grey", m.bands))
		}
		bands := 1
		if m.HasAlpha() {
			bands = 2
		}
		out := New(m.width, m.height, bands, m.format, target)
		for p := 0; p < m.width*m.height; p++ {
			src := m.pix[p*m.bands:]
			v := Luma(src[0], src[1], src[2])
			if m.format != Float {
				v = math.Round(v)
			}
			out.pix[p*bands] = v
			if bands == 2 {
				out.pix[p*bands+1] = src[m.bands-1]
			}
		}
		return out
	case SRGB, RGB16:
		if is16 {
			target = RGB16
		} else {
			target = SRGB
		}
		if !grey {
			out := m.Clone()
			out.interp = target
			return out
		}
		bands := 3
		if m.HasAlpha() {
			bands = 4
		}
		out := New(m.width, m.height, bands, m.format, target)
		for p := 0; p < m.width*m.height; p++ {
			g := m.pix[p*m.bands]
			out.pix[p*bands] = g
			out.pix[p*bands+1] = g
			out.pix[p*bands+2] = g
			if bands == 4 {
				out.pix[p*bands+3] = m.pix[p*m.bands+m.bands-1]
			}
		}
		return out
	default:
		out := m.Clone()
		out.interp = target
		return out
	}
}
