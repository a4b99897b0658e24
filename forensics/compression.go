package forensics

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
)

const elaQuality = 90

// CompressionScore performs error level analysis: the image is re-encoded as
// JPEG at quality 90 in memory, decoded, and the mean absolute difference is
// scaled to [0,1].
func CompressionScore(img *image.Gray) (float64, error) {
	p := newPlane(img)
	if p.empty() {
		return 0, nil
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: elaQuality}); err != nil {
		return 0, fmt.Errorf("jpeg re-encode: %w", err)
	}
	decoded, err := jpeg.Decode(&buf)
	if err != nil {
		return 0, fmt.Errorf("jpeg decode: %w", err)
	}
	recompressed := toPlane(decoded)
	if recompressed.w != p.w || recompressed.h != p.h {
		return 0, fmt.Errorf("recompressed size %dx%d differs from %dx%d", recompressed.w, recompressed.h, p.w, p.h)
	}
	return meanAbsDiff(p, recompressed) / 255, nil
}
