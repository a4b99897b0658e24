package forensics

import (
	"image"
	"math"
)

const (
	cannyLow       = 50
	cannyHigh      = 150
	houghThreshold = 100
	houghAngles    = 180
)

// AlignmentScore detects straight lines with a Canny edge map and a standard
// Hough transform and returns the population standard deviation of the line
// angles divided by pi, capped at 1. Angles lie in [0, pi), so the score
// never exceeds 0.5. An image without lines scores 0.
func AlignmentScore(img *image.Gray) float64 {
	p := newPlane(img)
	if p.empty() {
		return 0
	}
	thetas := houghLines(canny(p, cannyLow, cannyHigh), p.w, p.h, houghThreshold)
	if len(thetas) == 0 {
		return 0
	}
	_, std := meanStd(thetas)
	return math.Min(std/math.Pi, 1)
}

// tan(22.5deg) in Q15.
var tg22 = int64(math.Round(0.4142135623730950488 * (1 << 15)))

// canny returns the edge map of p using a 3x3 Sobel gradient with L1
// magnitude, non-maximum suppression and 8-connected hysteresis.
func canny(p plane, low, high int) []bool {
	n := p.w * p.h
	dx := make([]int, n)
	dy := make([]int, n)
	mag := make([]int, n)
	px := func(x, y int) int {
		return int(p.at(replicate(x, p.w), replicate(y, p.h)))
	}
	for y := 0; y < p.h; y++ {
		for x := 0; x < p.w; x++ {
			gx := px(x+1, y-1) + 2*px(x+1, y) + px(x+1, y+1) -
				px(x-1, y-1) - 2*px(x-1, y) - px(x-1, y+1)
			gy := px(x-1, y+1) + 2*px(x, y+1) + px(x+1, y+1) -
				px(x-1, y-1) - 2*px(x, y-1) - px(x+1, y-1)
			i := y*p.w + x
			dx[i], dy[i] = gx, gy
			mag[i] = abs(gx) + abs(gy)
		}
	}
	magAt := func(x, y int) int {
		if x < 0 || y < 0 || x >= p.w || y >= p.h {
			return 0
		}
		return mag[y*p.w+x]
	}

	const (
		none uint8 = iota
		weak
		strong
	)
	state := make([]uint8, n)
	var stack []int
	for y := 0; y < p.h; y++ {
		for x := 0; x < p.w; x++ {
			i := y*p.w + x
			m := mag[i]
			if m <= low {
				continue
			}
			ax := int64(abs(dx[i]))
			ay := int64(abs(dy[i])) << 15
			tg22x := ax * tg22
			var peak bool
			switch {
			case ay < tg22x:
				peak = m > magAt(x-1, y) && m >= magAt(x+1, y)
			case ay > tg22x+(ax<<16):
				peak = m > magAt(x, y-1) && m >= magAt(x, y+1)
			default:
				s := 1
				if (dx[i] < 0) != (dy[i] < 0) {
					s = -1
				}
				peak = m > magAt(x-s, y-1) && m > magAt(x+s, y+1)
			}
			if !peak {
				continue
			}
			if m > high {
				state[i] = strong
				stack = append(stack, i)
			} else {
				state[i] = weak
			}
		}
	}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := i%p.w, i/p.w
		for oy := -1; oy <= 1; oy++ {
			for ox := -1; ox <= 1; ox++ {
				nx, ny := x+ox, y+oy
				if nx < 0 || ny < 0 || nx >= p.w || ny >= p.h {
					continue
				}
				j := ny*p.w + nx
				if state[j] == weak {
					state[j] = strong
					stack = append(stack, j)
				}
			}
		}
	}
	edges := make([]bool, n)
	for i, s := range state {
		edges[i] = s == strong
	}
	return edges
}

// houghLines votes every edge pixel into a (theta, rho) accumulator with a
// resolution of one pixel and one degree and returns the angle of every
// local maximum with more than threshold votes.
func houghLines(edges []bool, w, h, threshold int) []float64 {
	numrho := int(math.RoundToEven(float64((w+h)*2 + 1)))
	stride := numrho + 2
	accum := make([]int, (houghAngles+2)*stride)
	cosTab := make([]float64, houghAngles)
	sinTab := make([]float64, houghAngles)
	for n := 0; n < houghAngles; n++ {
		ang := float64(n) * math.Pi / houghAngles
		cosTab[n] = math.Cos(ang)
		sinTab[n] = math.Sin(ang)
	}
	offset := (numrho - 1) / 2
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !edges[y*w+x] {
				continue
			}
			for n := 0; n < houghAngles; n++ {
				r := int(math.RoundToEven(float64(x)*cosTab[n]+float64(y)*sinTab[n])) + offset
				accum[(n+1)*stride+r+1]++
			}
		}
	}
	var thetas []float64
	for n := 0; n < houghAngles; n++ {
		for r := 0; r < numrho; r++ {
			base := (n+1)*stride + r + 1
			v := accum[base]
			if v > threshold &&
				v > accum[base-1] && v >= accum[base+1] &&
				v > accum[base-stride] && v >= accum[base+stride] {
				thetas = append(thetas, float64(n)*math.Pi/houghAngles)
			}
		}
	}
	return thetas
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
