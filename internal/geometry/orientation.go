package geometry

// Rotation holds the EXIF-derived and user-forced rotation angles in degrees.
// The two are never summed for planning; they only decide axis swaps.
type Rotation struct {
	ExifAngle int
	UserAngle int
}

// ExifAngle converts an EXIF orientation tag (1-8) to a clockwise angle.
// Mirrored orientations contribute no rotation.
func ExifAngle(tag int) int {
	switch tag {
	case 6:
		return 90
	case 3:
		return 180
	case 8:
		return 270
	default:
		return 0
	}
}

// ParseUserAngle accepts "0", "90", "180" and "270"; anything else is 0.
func ParseUserAngle(override string) int {
	switch override {
	case "90":
		return 90
	case "180":
		return 180
	case "270":
		return 270
	default:
		return 0
	}
}

// ResolveOrientation builds the rotation state from an EXIF tag (0 when absent)
// and an optional user override.
func ResolveOrientation(exifTag int, override string) Rotation {
	return Rotation{ExifAngle: ExifAngle(exifTag), UserAngle: ParseUserAngle(override)}
}

func quarterTurn(angle int) bool {
	return angle == 90 || angle == 270
}

// SwapAxes reports whether input width and height trade places for planning.
func (r Rotation) SwapAxes() bool {
	return quarterTurn(r.ExifAngle) || quarterTurn(r.UserAngle)
}

// UserSwap reports whether the user override alone swaps axes. Only this swap
// is re-applied to resampler dimensions; the resampler absorbs EXIF rotation.
func (r Rotation) UserSwap() bool {
	return quarterTurn(r.UserAngle)
}
