package geometry

import (
	"errors"
	"fmt"
)

var ErrImageTooLarge = errors.New("image exceeds maximum pixel count")

// Area is the pixel count of the resampled frame, or of the padded box when
// letterboxing makes that larger.
func (p ResizePlan) Area() int {
	area := p.ResampleWidth * p.ResampleHeight
	if p.Fit == FitLetterbox && !p.Identity {
		area = max(area, p.Width*p.Height)
	}
	return area
}

// CheckPixelBudget rejects plans whose resolved area exceeds maxPixels.
// A non-positive maxPixels disables the check.
func CheckPixelBudget(p ResizePlan, maxPixels int) error {
	if maxPixels <= 0 {
		return nil
	}
	if area := p.Area(); area > maxPixels {
		return fmt.Errorf("%w: %dx%d > %d", ErrImageTooLarge, p.ResampleWidth, p.ResampleHeight, maxPixels)
	}
	return nil
}
