package forensics

import "image"

// NoiseScore is the mean absolute difference between the image and its 5x5
// Gaussian blur, scaled to [0,1].
func NoiseScore(img *image.Gray) float64 {
	p := newPlane(img)
	if p.empty() {
		return 0
	}
	blurred := blur(p, gaussianKernel(5, 0), reflect101)
	return meanAbsDiff(p, blurred) / 255
}
