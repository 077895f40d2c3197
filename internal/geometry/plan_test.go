package geometry

import (
	"errors"
	"math"
	"testing"
)

func TestPlan(t *testing.T) {
	tests := []struct {
		name             string
		req              Request
		resampleW        int
		resampleH        int
		width, height    int
		xFactor, yFactor float64
		enlarge          bool
	}{
		{
			name:      "fit box",
			req:       Request{InputWidth: 1000, InputHeight: 500, Width: 200, Height: 200, Fit: FitFit},
			resampleW: 200, resampleH: 100, width: 200, height: 200,
			xFactor: 5, yFactor: 5,
		},
		{
			name:      "crop box",
			req:       Request{InputWidth: 1000, InputHeight: 500, Width: 200, Height: 200, Fit: FitCrop},
			resampleW: 400, resampleH: 200, width: 200, height: 200,
			xFactor: 2.5, yFactor: 2.5, enlarge: true,
		},
		{
			name:      "squaredown box",
			req:       Request{InputWidth: 1000, InputHeight: 500, Width: 200, Height: 200, Fit: FitSquareDown},
			resampleW: 400, resampleH: 200, width: 200, height: 200,
			xFactor: 2.5, yFactor: 2.5,
		},
		{
			name:      "letterbox portrait",
			req:       Request{InputWidth: 500, InputHeight: 1000, Width: 200, Height: 200, Fit: FitLetterbox},
			resampleW: 100, resampleH: 200, width: 200, height: 200,
			xFactor: 5, yFactor: 5, enlarge: true,
		},
		{
			name:      "absolute keeps independent factors",
			req:       Request{InputWidth: 1000, InputHeight: 500, Width: 250, Height: 100, Fit: FitAbsolute},
			resampleW: 250, resampleH: 100, width: 250, height: 100,
			xFactor: 4, yFactor: 5, enlarge: true,
		},
		{
			name:      "absolute with user rotation swaps factors",
			req:       Request{InputWidth: 1000, InputHeight: 500, Width: 250, Height: 100, Fit: FitAbsolute, Rotation: Rotation{UserAngle: 90}},
			resampleW: 100, resampleH: 250, width: 250, height: 100,
			xFactor: 10, yFactor: 2, enlarge: true,
		},
		{
			name:      "width only",
			req:       Request{InputWidth: 1000, InputHeight: 500, Width: 400},
			resampleW: 400, resampleH: 200, width: 400, height: 200,
			xFactor: 2.5, yFactor: 2.5,
		},
		{
			name:      "width only absolute",
			req:       Request{InputWidth: 1000, InputHeight: 500, Width: 400, Fit: FitAbsolute},
			resampleW: 400, resampleH: 500, width: 400, height: 500,
			xFactor: 2.5, yFactor: 1, enlarge: true,
		},
		{
			name:      "height only",
			req:       Request{InputWidth: 1000, InputHeight: 500, Height: 100},
			resampleW: 200, resampleH: 100, width: 200, height: 100,
			xFactor: 5, yFactor: 5,
		},
		{
			name:      "height only absolute",
			req:       Request{InputWidth: 1000, InputHeight: 500, Height: 100, Fit: FitAbsolute},
			resampleW: 1000, resampleH: 100, width: 1000, height: 100,
			xFactor: 1, yFactor: 5, enlarge: true,
		},
		{
			name:      "identity",
			req:       Request{InputWidth: 1000, InputHeight: 500},
			resampleW: 1000, resampleH: 500, width: 1000, height: 500,
			xFactor: 1, yFactor: 1,
		},
		{
			name:      "exif rotation swaps input only",
			req:       Request{InputWidth: 1000, InputHeight: 500, Width: 250, Rotation: Rotation{ExifAngle: 90}},
			resampleW: 250, resampleH: 500, width: 250, height: 500,
			xFactor: 2, yFactor: 2,
		},
		{
			name:      "user rotation swaps resample dims back",
			req:       Request{InputWidth: 1000, InputHeight: 500, Width: 250, Rotation: Rotation{UserAngle: 270}},
			resampleW: 500, resampleH: 250, width: 250, height: 500,
			xFactor: 2, yFactor: 2,
		},
		{
			name:      "rounding half away from zero",
			req:       Request{InputWidth: 4, InputHeight: 5, Width: 2},
			resampleW: 2, resampleH: 3, width: 2, height: 3,
			xFactor: 2, yFactor: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Plan(tt.req)
			if p.ResampleWidth != tt.resampleW || p.ResampleHeight != tt.resampleH {
				t.Fatalf("resample = %dx%d, want %dx%d", p.ResampleWidth, p.ResampleHeight, tt.resampleW, tt.resampleH)
			}
			if p.Width != tt.width || p.Height != tt.height {
				t.Fatalf("resolved = %dx%d, want %dx%d", p.Width, p.Height, tt.width, tt.height)
			}
			if !approx(p.XFactor, tt.xFactor) || !approx(p.YFactor, tt.yFactor) {
				t.Fatalf("factors = %v/%v, want %v/%v", p.XFactor, p.YFactor, tt.xFactor, tt.yFactor)
			}
			if p.EnlargementAllowed != tt.enlarge {
				t.Fatalf("EnlargementAllowed = %v, want %v", p.EnlargementAllowed, tt.enlarge)
			}
			if p.HasSmartCrop() {
				t.Fatalf("unexpected smart crop %v", p.SmartCrop)
			}
		})
	}
}

func TestPlanSmartCrop(t *testing.T) {
	p := Plan(Request{InputWidth: 1000, InputHeight: 500, Width: 200, Height: 150, Fit: FitCrop, Anchor: AnchorAttention})
	if !p.HasSmartCrop() || p.SmartCrop != InterestAttention {
		t.Fatalf("expected attention smart crop, got %v", p.SmartCrop)
	}
	if p.ResampleWidth != 200 || p.ResampleHeight != 150 {
		t.Fatalf("smart crop must keep requested dims, got %dx%d", p.ResampleWidth, p.ResampleHeight)
	}
	if p.XFactor != 1 || p.YFactor != 1 {
		t.Fatalf("smart crop factors = %v/%v, want 1/1", p.XFactor, p.YFactor)
	}

	// Smart anchors need both sides fixed.
	p = Plan(Request{InputWidth: 1000, InputHeight: 500, Width: 200, Anchor: AnchorEntropy})
	if p.HasSmartCrop() {
		t.Fatalf("smart crop should not apply with only a width")
	}
	if p.ResampleHeight != 100 {
		t.Fatalf("expected auto height 100, got %d", p.ResampleHeight)
	}
}

func TestPlanFitUsesLargerFactor(t *testing.T) {
	for _, in := range [][2]int{{1000, 500}, {640, 480}, {333, 777}, {1920, 1080}, {17, 3}} {
		for _, box := range [][2]int{{200, 200}, {100, 300}, {640, 10}, {1, 1}} {
			p := Plan(Request{InputWidth: in[0], InputHeight: in[1], Width: box[0], Height: box[1], Fit: FitFit})
			want := math.Max(float64(in[0])/float64(box[0]), float64(in[1])/float64(box[1]))
			if p.XFactor != p.YFactor || !approx(p.XFactor, want) {
				t.Fatalf("%v in %v: factors %v/%v, want %v", in, box, p.XFactor, p.YFactor, want)
			}
			if p.ResampleWidth > box[0] || p.ResampleHeight > box[1] {
				t.Fatalf("%v in %v: frame %dx%d exceeds box", in, box, p.ResampleWidth, p.ResampleHeight)
			}
			if p.ResampleWidth != box[0] && p.ResampleHeight != box[1] {
				t.Fatalf("%v in %v: frame %dx%d does not touch the box", in, box, p.ResampleWidth, p.ResampleHeight)
			}
		}
	}
}

func TestPlanCoverUsesSmallerFactor(t *testing.T) {
	for _, fit := range []Fit{FitSquare, FitSquareDown, FitCrop} {
		for _, in := range [][2]int{{1000, 500}, {640, 480}, {333, 777}, {1920, 1080}} {
			for _, box := range [][2]int{{200, 200}, {100, 300}, {640, 10}} {
				p := Plan(Request{InputWidth: in[0], InputHeight: in[1], Width: box[0], Height: box[1], Fit: fit})
				want := math.Min(float64(in[0])/float64(box[0]), float64(in[1])/float64(box[1]))
				if p.XFactor != p.YFactor || !approx(p.XFactor, want) {
					t.Fatalf("%v %v in %v: factors %v/%v, want %v", fit, in, box, p.XFactor, p.YFactor, want)
				}
				if p.ResampleWidth < box[0] || p.ResampleHeight < box[1] {
					t.Fatalf("%v %v in %v: frame %dx%d smaller than box", fit, in, box, p.ResampleWidth, p.ResampleHeight)
				}
			}
		}
	}
}

func TestPlanUserRotationMirrorsUnrotatedPlan(t *testing.T) {
	fits := []Fit{FitFit, FitUp, FitSquare, FitCrop, FitLetterbox, FitAbsolute}
	boxes := [][2]int{{200, 100}, {300, 0}, {0, 120}, {64, 64}}
	for _, fit := range fits {
		for _, box := range boxes {
			rotated := Plan(Request{InputWidth: 1000, InputHeight: 600, Width: box[0], Height: box[1], Fit: fit, Rotation: Rotation{UserAngle: 90}})
			plain := Plan(Request{InputWidth: 600, InputHeight: 1000, Width: box[0], Height: box[1], Fit: fit})
			if rotated.ResampleWidth != plain.ResampleHeight || rotated.ResampleHeight != plain.ResampleWidth {
				t.Fatalf("%v %v: rotated %dx%d, unrotated %dx%d", fit, box,
					rotated.ResampleWidth, rotated.ResampleHeight, plain.ResampleWidth, plain.ResampleHeight)
			}
		}
	}

	// Absolute requests with a fixed box come out transposed.
	rotated := Plan(Request{InputWidth: 800, InputHeight: 800, Width: 200, Height: 100, Fit: FitAbsolute, Rotation: Rotation{UserAngle: 90}})
	plain := Plan(Request{InputWidth: 800, InputHeight: 800, Width: 200, Height: 100, Fit: FitAbsolute})
	if rotated.ResampleWidth != plain.ResampleHeight || rotated.ResampleHeight != plain.ResampleWidth {
		t.Fatalf("expected transposed target, got %dx%d vs %dx%d",
			rotated.ResampleWidth, rotated.ResampleHeight, plain.ResampleWidth, plain.ResampleHeight)
	}
}

func TestCheckPixelBudget(t *testing.T) {
	tests := []struct {
		name     string
		req      Request
		max      int
		tooLarge bool
	}{
		{"disabled", Request{InputWidth: 1000, InputHeight: 500, Width: 10000, Height: 10000, Fit: FitUp}, 0, false},
		{"input size at limit", Request{InputWidth: 1000, InputHeight: 500}, 500000, false},
		{"input size over limit", Request{InputWidth: 1000, InputHeight: 500}, 499999, true},
		{"derived height", Request{InputWidth: 1000, InputHeight: 500, Width: 2000}, 2000000, false},
		{"derived height over", Request{InputWidth: 1000, InputHeight: 500, Width: 2000}, 1999999, true},
		{"derived width", Request{InputWidth: 1000, InputHeight: 500, Height: 100}, 20000, false},
		{"derived width over", Request{InputWidth: 1000, InputHeight: 500, Height: 100}, 19999, true},
		{"fit inside box", Request{InputWidth: 1000, InputHeight: 500, Width: 300, Height: 300}, 45000, false},
		{"fit inside box over", Request{InputWidth: 1000, InputHeight: 500, Width: 300, Height: 300}, 44999, true},
		{"letterbox counts the box", Request{InputWidth: 1000, InputHeight: 500, Width: 300, Height: 300, Fit: FitLetterbox}, 89999, true},
		{"cover frame", Request{InputWidth: 10000, InputHeight: 100, Width: 1000, Height: 1000, Fit: FitCrop}, 100000000, false},
		{"cover frame over", Request{InputWidth: 10000, InputHeight: 100, Width: 1000, Height: 1000, Fit: FitCrop}, 10000000, true},
		{"exif quarter turn", Request{InputWidth: 4000, InputHeight: 1000, Width: 1000, Rotation: Rotation{ExifAngle: 90}}, 4000000, false},
		{"exif quarter turn over", Request{InputWidth: 4000, InputHeight: 1000, Width: 1000, Rotation: Rotation{ExifAngle: 90}}, 1000000, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckPixelBudget(Plan(tt.req), tt.max)
			if tt.tooLarge && !errors.Is(err, ErrImageTooLarge) {
				t.Fatalf("expected ErrImageTooLarge, got %v", err)
			}
			if !tt.tooLarge && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}
