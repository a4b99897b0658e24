package document

import (
	"fmt"
	"image"
	"math"

	xdraw "golang.org/x/image/draw"
)

const (
	maxDimension      = 32768
	maxDecodePixels   = int64(64 * 1024 * 1024)
	defaultWorkPixels = int64(12 * 1000 * 1000)
)

// Limits bounds decoded images. Images over MaxPixels are rejected; images
// over WorkPixels are scaled down to fit.
type Limits struct {
	MaxDimension int
	MaxPixels    int64
	WorkPixels   int64
}

func DefaultLimits() Limits {
	return Limits{
		MaxDimension: maxDimension,
		MaxPixels:    maxDecodePixels,
		WorkPixels:   defaultWorkPixels,
	}
}

func (l Limits) validate(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: image bounds invalid (%d x %d)", ErrUnreadableFormat, width, height)
	}
	if l.MaxDimension > 0 && (width > l.MaxDimension || height > l.MaxDimension) {
		return fmt.Errorf("%w: dimension exceeds limit (%d x %d)", ErrTooLarge, width, height)
	}
	pixels := int64(width) * int64(height)
	if l.MaxPixels > 0 && pixels > l.MaxPixels {
		return fmt.Errorf("%w: pixel count %d exceeds limit %d", ErrTooLarge, pixels, l.MaxPixels)
	}
	return nil
}

func (l Limits) downscale(img image.Image) (image.Image, bool) {
	b := img.Bounds()
	pixels := int64(b.Dx()) * int64(b.Dy())
	if l.WorkPixels <= 0 || pixels <= l.WorkPixels {
		return img, false
	}
	scale := math.Sqrt(float64(l.WorkPixels) / float64(pixels))
	w := max(1, int(float64(b.Dx())*scale))
	h := max(1, int(float64(b.Dy())*scale))
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst, true
}
