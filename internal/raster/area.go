package raster

import (
	"errors"
	"fmt"
	"math"
)

var ErrAreaOutOfBounds = errors.New("area exceeds image bounds")

// ExtractArea returns the width x height region whose top-left corner is at
// (left, top).
func (m *Image) ExtractArea(left, top, width, height int) (*Image, error) {
	if width <= 0 || height <= 0 || left < 0 || top < 0 ||
		left+width > m.width || top+height > m.height {
		return nil, fmt.Errorf("%w: %dx%d+%d+%d in %dx%d", ErrAreaOutOfBounds, width, height, left, top, m.width, m.height)
	}
	out := New(width, height, m.bands, m.format, m.interp)
	rowLen := width * m.bands
	for y := 0; y < height; y++ {
		src := m.offset(left, top+y, 0)
		copy(out.pix[y*rowLen:(y+1)*rowLen], m.pix[src:src+rowLen])
	}
	return out, nil
}

// Embed places m at (x, y) inside a width x height canvas filled with
// background. Parts of m falling outside the canvas are clipped.
func (m *Image) Embed(x, y, width, height int, background []float64) *Image {
	bg := perBand(background, m.bands, "embed")
	out := New(width, height, m.bands, m.format, m.interp)
	for i := 0; i < len(out.pix); i += m.bands {
		copy(out.pix[i:], bg)
	}
	for sy := 0; sy < m.height; sy++ {
		dy := sy + y
		if dy < 0 || dy >= height {
			continue
		}
		for sx := 0; sx < m.width; sx++ {
			dx := sx + x
			if dx < 0 || dx >= width {
				continue
			}
			copy(out.pix[out.offset(dx, dy, 0):], m.pix[m.offset(sx, sy, 0):m.offset(sx, sy, 0)+m.bands])
		}
	}
	return out
}

// remap builds a new image of the given size where each destination pixel
// copies the source pixel returned by src.
func (m *Image) remap(width, height int, src func(x, y int) (int, int)) *Image {
	out := New(width, height, m.bands, m.format, m.interp)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			sx, sy := src(x, y)
			o := m.offset(sx, sy, 0)
			copy(out.pix[out.offset(x, y, 0):], m.pix[o:o+m.bands])
		}
	}
	return out
}

// Rot rotates clockwise by 0, 90, 180 or 270 degrees.
func (m *Image) Rot(angle int) *Image {
	w, h := m.width, m.height
	switch angle {
	case 0:
		return m.Clone()
	case 90:
		return m.remap(h, w, func(x, y int) (int, int) { return y, h - 1 - x })
	case 180:
		return m.remap(w, h, func(x, y int) (int, int) { return w - 1 - x, h - 1 - y })
	case 270:
		return m.remap(h, w, func(x, y int) (int, int) { return w - 1 - y, x })
	default:
		panic(fmt.Sprintf("raster: rot: unsupported angle %d", angle))
	}
}

func (m *Image) FlipHorizontal() *Image {
	return m.remap(m.width, m.height, func(x, y int) (int, int) { return m.width - 1 - x, y })
}

func (m *Image) FlipVertical() *Image {
	return m.remap(m.width, m.height, func(x, y int) (int, int) { return x, m.height - 1 - y })
}

// AutoRotate applies the transform that brings an image stored with the
// given EXIF orientation (1-8) upright. Unknown values leave it unchanged.
func (m *Image) AutoRotate(orientation int) *Image {
	switch orientation {
	case 2:
		return m.FlipHorizontal()
	case 3:
		return m.Rot(180)
	case 4:
		return m.FlipVertical()
	case 5:
		return m.FlipHorizontal().Rot(270)
	case 6:
		return m.Rot(90)
	case 7:
		return m.FlipVertical().Rot(270)
	case 8:
		return m.Rot(270)
	default:
		return m.Clone()
	}
}

// FindTrim returns the bounding box of pixels that differ from background by
// more than threshold in any colour band. A nil background uses the top-left
// pixel. Alpha is flattened against white first. When every pixel matches
// the background the returned width and height are zero.
func (m *Image) FindTrim(threshold float64, background []float64) (left, top, width, height int) {
	img := m
	if m.HasAlpha() {
		img = m.Flatten([]float64{m.MaxAlpha()}, m.MaxAlpha())
	}
	if background == nil {
		background = img.Pixel(0, 0)
	}
	bg := perBand(background, img.bands, "find_trim")

	minX, minY, maxX, maxY := img.width, img.height, -1, -1
	for y := 0; y < img.height; y++ {
		for x := 0; x < img.width; x++ {
			o := img.offset(x, y, 0)
			for k := 0; k < img.bands; k++ {
				if math.Abs(img.pix[o+k]-bg[k]) > threshold {
					minX, maxX = min(minX, x), max(maxX, x)
					minY, maxY = min(minY, y), max(maxY, y)
					break
				}
			}
		}
	}
	if maxX < 0 {
		return 0, 0, 0, 0
	}
	return minX, minY, maxX - minX + 1, maxY - minY + 1
}
