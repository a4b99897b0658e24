package forensics

import (
	"image"
	"image/color"
	"math"
)

// plane is a tightly packed 8-bit grayscale buffer with origin at (0,0).
type plane struct {
	w, h int
	pix  []uint8
}

func newPlane(img *image.Gray) plane {
	if img == nil {
		return plane{}
	}
	b := img.Bounds()
	p := plane{w: b.Dx(), h: b.Dy()}
	if p.w <= 0 || p.h <= 0 {
		return plane{}
	}
	p.pix = make([]uint8, p.w*p.h)
	for y := 0; y < p.h; y++ {
		row := img.PixOffset(b.Min.X, b.Min.Y+y)
		copy(p.pix[y*p.w:(y+1)*p.w], img.Pix[row:row+p.w])
	}
	return p
}

// toPlane converts any decoded image to luma.
func toPlane(img image.Image) plane {
	if g, ok := img.(*image.Gray); ok {
		return newPlane(g)
	}
	b := img.Bounds()
	p := plane{w: b.Dx(), h: b.Dy()}
	p.pix = make([]uint8, p.w*p.h)
	for y := 0; y < p.h; y++ {
		for x := 0; x < p.w; x++ {
			p.pix[y*p.w+x] = color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray).Y
		}
	}
	return p
}

func (p plane) empty() bool { return p.w == 0 || p.h == 0 }

func (p plane) at(x, y int) uint8 { return p.pix[y*p.w+x] }

type border func(i, n int) int

// reflect101 mirrors around the edge pixel without repeating it (gfedcb|abcdefgh|gfedcba).
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		} else {
			i = 2*n - 2 - i
		}
	}
	return i
}

// replicate repeats the edge pixel (aaaaaa|abcdefgh|hhhhhhh).
func replicate(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// gaussianKernel returns a normalized 1-D kernel. A non-positive sigma is
// derived from the size, and the small odd sizes use the binomial tables.
func gaussianKernel(size int, sigma float64) []float64 {
	if sigma <= 0 {
		switch size {
		case 1:
			return []float64{1}
		case 3:
			return []float64{0.25, 0.5, 0.25}
		case 5:
			return []float64{0.0625, 0.25, 0.375, 0.25, 0.0625}
		case 7:
			return []float64{0.03125, 0.109375, 0.21875, 0.28125, 0.21875, 0.109375, 0.03125}
		}
		sigma = 0.3*(float64(size-1)*0.5-1) + 0.8
	}
	k := make([]float64, size)
	c := float64(size-1) / 2
	var sum float64
	for i := range k {
		d := float64(i) - c
		k[i] = math.Exp(-d * d / (2 * sigma * sigma))
		sum += k[i]
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

// blur applies the separable kernel along both axes and rounds back to 8 bits.
func blur(p plane, kernel []float64, edge border) plane {
	if p.empty() {
		return p
	}
	r := len(kernel) / 2
	tmp := make([]float64, len(p.pix))
	for y := 0; y < p.h; y++ {
		for x := 0; x < p.w; x++ {
			var acc float64
			for k, kv := range kernel {
				acc += kv * float64(p.at(edge(x+k-r, p.w), y))
			}
			tmp[y*p.w+x] = acc
		}
	}
	out := plane{w: p.w, h: p.h, pix: make([]uint8, len(p.pix))}
	for y := 0; y < p.h; y++ {
		for x := 0; x < p.w; x++ {
			var acc float64
			for k, kv := range kernel {
				acc += kv * tmp[edge(y+k-r, p.h)*p.w+x]
			}
			out.pix[y*p.w+x] = clampByte(acc)
		}
	}
	return out
}

func clampByte(v float64) uint8 {
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// meanAbsDiff is the mean absolute pixel difference of two equally sized planes.
func meanAbsDiff(a, b plane) float64 {
	if a.empty() || len(a.pix) != len(b.pix) {
		return 0
	}
	var sum int64
	for i, v := range a.pix {
		d := int64(v) - int64(b.pix[i])
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return float64(sum) / float64(len(a.pix))
}

// meanStd returns the mean and population standard deviation.
func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(values)))
}
