package codec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/webp"
)

var (
	ErrUnsupportedFormat  = errors.New("unsupported image format")
	ErrInputTooManyPixels = errors.New("input image exceeds maximum pixel count")
)

const DefaultQuality = 85

type Format string

const (
	JPEG Format = "jpg"
	PNG  Format = "png"
	GIF  Format = "gif"
	WEBP Format = "webp"
	TIFF Format = "tiff"
)

var formatAliases = map[string]Format{
	"jpg":  JPEG,
	"jpeg": JPEG,
	"png":  PNG,
	"gif":  GIF,
	"webp": WEBP,
	"tif":  TIFF,
	"tiff": TIFF,
}

// ParseFormat resolves an output format token or a decoder format name.
func ParseFormat(s string) (Format, bool) {
	f, ok := formatAliases[s]
	return f, ok
}

func (f Format) ContentType() string {
	switch f {
	case PNG:
		return "image/png"
	case GIF:
		return "image/gif"
	case WEBP:
		return "image/webp"
	case TIFF:
		return "image/tiff"
	default:
		return "image/jpeg"
	}
}

// SupportsAlpha reports whether the format can store transparency.
func (f Format) SupportsAlpha() bool {
	return f != JPEG
}

// SelectFormat picks the output format: the requested one when valid,
// otherwise png for images with alpha and jpg for everything else.
func SelectFormat(requested string, hasAlpha bool) Format {
	if f, ok := ParseFormat(requested); ok {
		return f
	}
	if hasAlpha {
		return PNG
	}
	return JPEG
}

type Decoded struct {
	Image image.Image
	// Format is the source format name reported by the decoder.
	Format string
	// Orientation is the EXIF orientation tag, 0 when absent.
	Orientation int
}

// Decode reads the image header first and refuses inputs larger than
// maxPixels before decoding pixel data. maxPixels <= 0 disables the check.
func Decode(data []byte, maxPixels int) (Decoded, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Decoded{}, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	if maxPixels > 0 && cfg.Width*cfg.Height > maxPixels {
		return Decoded{}, fmt.Errorf("%w: %dx%d", ErrInputTooManyPixels, cfg.Width, cfg.Height)
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return Decoded{}, err
	}
	return Decoded{Image: img, Format: format, Orientation: Orientation(data)}, nil
}

// Orientation returns the EXIF orientation tag of data, or 0 when the image
// carries no readable EXIF block.
func Orientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 0
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 0
	}
	o, err := tag.Int(0)
	if err != nil || o < 1 || o > 8 {
		return 0
	}
	return o
}

func Encode(w io.Writer, img image.Image, f Format, quality int) error {
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	switch f {
	case JPEG:
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
	case PNG:
		return imaging.Encode(w, img, imaging.PNG)
	case GIF:
		return imaging.Encode(w, img, imaging.GIF)
	case TIFF:
		return imaging.Encode(w, img, imaging.TIFF)
	case WEBP:
		return webp.Encode(w, img, &webp.Options{Quality: float32(quality)})
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
	}
}

func EncodeBytes(img image.Image, f Format, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, img, f, quality); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
