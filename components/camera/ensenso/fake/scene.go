package fake

import (
	"go.viam.com/ensenso/rimage"
)

const checkerSize = 32

// scene is a checkerboard plane parallel to the image plane.
type scene struct {
	width, height         int
	projector, frontLight bool
	disparity             float64
}

// intensity is the brightness of the plane at rectified left image coordinates.
func (s scene) intensity(x, y float64) uint8 {
	if x < 0 || y < 0 || x >= float64(s.width) || y >= float64(s.height) {
		return 0
	}
	xi, yi := int(x), int(y)
	value := 60
	if (xi/checkerSize+yi/checkerSize)%2 == 0 {
		value = 160
	}
	if s.projector && speckle(xi, yi) {
		value += 60
	}
	if s.frontLight {
		value += 35
	}
	if value > 255 {
		value = 255
	}
	return uint8(value)
}

// speckle is a fixed pseudo random dot pattern.
func speckle(x, y int) bool {
	h := uint32(x)*73856093 ^ uint32(y)*19349663
	h ^= h >> 13
	h *= 0x5bd1e995
	return h%7 == 0
}

// render draws the view shifted left by disparity. A non-nil distort maps each pixel to the
// rectified coordinates it sees through the lens.
func (s scene) render(disparity float64, distort func(u, v float64) (float64, float64)) []uint8 {
	pixels := make([]uint8, s.width*s.height)
	for v := 0; v < s.height; v++ {
		for u := 0; u < s.width; u++ {
			x, y := float64(u), float64(v)
			if distort != nil {
				x, y = distort(x, y)
			}
			pixels[v*s.width+u] = s.intensity(x+disparity, y)
		}
	}
	return pixels
}

func mono8Buffer(width, height int, pixels []uint8) rimage.PixelBuffer {
	return rimage.PixelBuffer{
		Width:    width,
		Height:   height,
		Encoding: rimage.SourceEncodingMono8,
		Data:     pixels,
	}
}

// bgr8Buffer tints the gray image so the color channels are distinguishable.
func bgr8Buffer(width, height int, pixels []uint8) rimage.PixelBuffer {
	data := make([]byte, 0, len(pixels)*3)
	for _, p := range pixels {
		data = append(data, p/2, p, p)
	}
	return rimage.PixelBuffer{
		Width:    width,
		Height:   height,
		Encoding: rimage.SourceEncodingBGR8,
		Data:     data,
	}
}
