package raster

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
)

// Size limits the direction a thumbnail may scale in.
type Size int

const (
	SizeBoth Size = iota
	SizeDown
	SizeUp
	SizeForce
)

func (s Size) String() string {
	switch s {
	case SizeDown:
		return "down"
	case SizeUp:
		return "up"
	case SizeForce:
		return "force"
	default:
		return "both"
	}
}

// Interesting selects the smart crop strategy.
type Interesting int

const (
	InterestingNone Interesting = iota
	InterestingEntropy
	InterestingAttention
)

type ThumbnailOptions struct {
	// Height of the bounding box; 0 means the same as the width.
	Height int
	Size   Size
	Crop   Interesting
	// Orientation is the EXIF orientation of the source. It is applied
	// before scaling unless NoRotate is set.
	Orientation int
	NoRotate    bool
}

// smartCropStep is the strip width removed per iteration by the smart crop.
const smartCropStep = 8

// Thumbnail scales m to fit inside a width x opts.Height box, or to cover it
// and crop by content when opts.Crop is set. SizeForce stretches to the box.
func (m *Image) Thumbnail(width int, opts ThumbnailOptions) *Image {
	if width <= 0 {
		panic(fmt.Sprintf("raster: thumbnail: invalid width %d", width))
	}
	height := opts.Height
	if height <= 0 {
		height = width
	}
	src := m
	if !opts.NoRotate && opts.Orientation > 1 {
		src = m.AutoRotate(opts.Orientation)
	}

	hscale := float64(width) / float64(src.width)
	vscale := float64(height) / float64(src.height)
	switch {
	case opts.Size == SizeForce && opts.Crop == InterestingNone:
	case opts.Crop != InterestingNone:
		s := math.Max(hscale, vscale)
		hscale, vscale = s, s
	default:
		s := math.Min(hscale, vscale)
		hscale, vscale = s, s
	}
	switch opts.Size {
	case SizeDown:
		hscale, vscale = math.Min(hscale, 1), math.Min(vscale, 1)
	case SizeUp:
		hscale, vscale = math.Max(hscale, 1), math.Max(vscale, 1)
	}

	outW := max(int(math.Round(float64(src.width)*hscale)), 1)
	outH := max(int(math.Round(float64(src.height)*vscale)), 1)
	out := src.resample(outW, outH)

	if opts.Crop == InterestingNone {
		return out
	}
	cw, ch := min(width, outW), min(height, outH)
	left, top := out.smartCrop(cw, ch, opts.Crop)
	cropped, err := out.ExtractArea(left, top, cw, ch)
	if err != nil {
		panic(err)
	}
	return cropped
}

// resample scales to exactly width x height with a Catmull-Rom kernel.
func (m *Image) resample(width, height int) *Image {
	if width == m.width && height == m.height {
		return m.Clone()
	}
	if m.bands > 4 {
		panic(fmt.Sprintf("raster: resample: unsupported band count %d", m.bands))
	}
	scale := 65535 / m.MaxAlpha()
	sample := func(v float64) uint16 {
		return uint16(math.Round(clamp(v*scale, 65535)))
	}

	src := image.NewNRGBA64(image.Rect(0, 0, m.width, m.height))
	for y := 0; y < m.height; y++ {
		for x := 0; x < m.width; x++ {
			p := m.pix[m.offset(x, y, 0):]
			var c color.NRGBA64
			switch m.bands {
			case 1:
				g := sample(p[0])
				c = color.NRGBA64{R: g, G: g, B: g, A: 0xffff}
			case 2:
				g := sample(p[0])
				c = color.NRGBA64{R: g, G: g, B: g, A: sample(p[1])}
			case 3:
				c = color.NRGBA64{R: sample(p[0]), G: sample(p[1]), B: sample(p[2]), A: 0xffff}
			default:
				c = color.NRGBA64{R: sample(p[0]), G: sample(p[1]), B: sample(p[2]), A: sample(p[3])}
			}
			src.SetNRGBA64(x, y, c)
		}
	}

	dst := image.NewNRGBA64(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	format := m.format
	out := New(width, height, m.bands, format, m.interp)
	back := func(v uint16) float64 {
		f := float64(v) / scale
		if format != Float {
			f = math.Round(f)
		}
		return f
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := dst.NRGBA64At(x, y)
			p := out.pix[out.offset(x, y, 0):]
			switch m.bands {
			case 1:
				p[0] = back(c.R)
			case 2:
				p[0], p[1] = back(c.R), back(c.A)
			case 3:
				p[0], p[1], p[2] = back(c.R), back(c.G), back(c.B)
			default:
				p[0], p[1], p[2], p[3] = back(c.R), back(c.G), back(c.B), back(c.A)
			}
		}
	}
	return out
}

// smartCrop picks the top-left corner of a width x height window by
// repeatedly discarding the less interesting edge strip along each axis.
func (m *Image) smartCrop(width, height int, mode Interesting) (int, int) {
	score := m.entropy
	if mode == InterestingAttention {
		score = m.attention
	}

	left, right := 0, m.width
	for right-left > width {
		step := min(smartCropStep, right-left-width)
		if score(left, 0, step, m.height) < score(right-step, 0, step, m.height) {
			left += step
		} else {
			right -= step
		}
	}
	top, bottom := 0, m.height
	for bottom-top > height {
		step := min(smartCropStep, bottom-top-height)
		if score(left, top, width, step) < score(left, bottom-step, width, step) {
			top += step
		} else {
			bottom -= step
		}
	}
	return left, top
}

// grey returns the luma of a pixel on a 0..255 scale.
func (m *Image) grey(x, y int) float64 {
	p := m.pix[m.offset(x, y, 0):]
	v := p[0]
	if m.bands >= 3 {
		v = Luma(p[0], p[1], p[2])
	}
	return v * 255 / m.MaxAlpha()
}

// entropy is the Shannon entropy of the luma histogram of a region.
func (m *Image) entropy(x0, y0, w, h int) float64 {
	var hist [256]int
	for y := y0; y < y0+h; y++ {
		for x := x0; x < x0+w; x++ {
			hist[int(clamp(m.grey(x, y), 255))]++
		}
	}
	total := float64(w * h)
	var e float64
	for _, n := range hist {
		if n == 0 {
			continue
		}
		p := float64(n) / total
		e -= p * math.Log2(p)
	}
	return e
}

// attention scores a region by edge strength and colour saturation.
func (m *Image) attention(x0, y0, w, h int) float64 {
	var sum float64
	norm := 255 / m.MaxAlpha()
	for y := y0; y < y0+h; y++ {
		for x := x0; x < x0+w; x++ {
			g := m.grey(x, y)
			if x+1 < m.width {
				sum += math.Abs(m.grey(x+1, y) - g)
			}
			if y+1 < m.height {
				sum += math.Abs(m.grey(x, y+1) - g)
			}
			if m.bands >= 3 {
				p := m.pix[m.offset(x, y, 0):]
				hi := math.Max(p[0], math.Max(p[1], p[2]))
				lo := math.Min(p[0], math.Min(p[1], p[2]))
				sum += (hi - lo) * norm
			}
		}
	}
	return sum / float64(w*h)
}
