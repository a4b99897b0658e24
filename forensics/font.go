package forensics

import (
	"image"
	"math"
)

const (
	thresholdBlock = 11
	thresholdC     = 2
)

// FontScore binarizes the image with an adaptive Gaussian threshold, finds
// the outermost connected regions and returns the coefficient of variation
// of their bounding-box heights, capped at 1. No regions scores 0.
func FontScore(img *image.Gray) float64 {
	p := newPlane(img)
	if p.empty() {
		return 0
	}
	heights := externalHeights(adaptiveThreshold(p, thresholdBlock, thresholdC), p.w, p.h)
	if len(heights) == 0 {
		return 0
	}
	mean, std := meanStd(heights)
	if mean == 0 {
		return 0
	}
	return math.Min(std/mean, 1)
}

// adaptiveThreshold marks a pixel as foreground when it is brighter than its
// Gaussian-weighted neighbourhood mean minus c.
func adaptiveThreshold(p plane, block int, c int) []bool {
	mean := blur(p, gaussianKernel(block, 0), replicate)
	out := make([]bool, len(p.pix))
	for i, v := range p.pix {
		out[i] = int(v)-int(mean.pix[i]) > -c
	}
	return out
}

// externalHeights labels 8-connected foreground components and returns the
// bounding-box height of each one that is not enclosed by another component.
// Background is 4-connected; the area outside the image counts as background.
func externalHeights(fg []bool, w, h int) []float64 {
	n := w * h
	if n == 0 || len(fg) != n {
		return nil
	}

	outer := make([]bool, n)
	var stack []int
	push := func(i int) {
		if !fg[i] && !outer[i] {
			outer[i] = true
			stack = append(stack, i)
		}
	}
	for x := 0; x < w; x++ {
		push(x)
		push((h-1)*w + x)
	}
	for y := 0; y < h; y++ {
		push(y * w)
		push(y*w + w - 1)
	}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := i%w, i/w
		if x > 0 {
			push(i - 1)
		}
		if x < w-1 {
			push(i + 1)
		}
		if y > 0 {
			push(i - w)
		}
		if y < h-1 {
			push(i + w)
		}
	}

	seen := make([]bool, n)
	var heights []float64
	for start := 0; start < n; start++ {
		if !fg[start] || seen[start] {
			continue
		}
		seen[start] = true
		stack = append(stack[:0], start)
		minY, maxY := start/w, start/w
		external := false
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := i%w, i/w
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}
			if x == 0 || y == 0 || x == w-1 || y == h-1 {
				external = true
			}
			for oy := -1; oy <= 1; oy++ {
				for ox := -1; ox <= 1; ox++ {
					if ox == 0 && oy == 0 {
						continue
					}
					nx, ny := x+ox, y+oy
					if nx < 0 || ny < 0 || nx >= w || ny >= h {
						continue
					}
					j := ny*w + nx
					if fg[j] {
						if !seen[j] {
							seen[j] = true
							stack = append(stack, j)
						}
					} else if (ox == 0 || oy == 0) && outer[j] {
						external = true
					}
				}
			}
		}
		if external {
			heights = append(heights, float64(maxY-minY+1))
		}
	}
	return heights
}
