package threshold

import (
	"image"
	"image/color"

	"studyguide.parallel/pkg/common"
)

// Luminance returns 0.3R + 0.59G + 0.11B truncated to 8 bits.
// Integer weights keep the result exact, so a gray of 128 stays 128.
func Luminance(r, g, b uint8) uint8 {
	return uint8((30*uint32(r) + 59*uint32(g) + 11*uint32(b)) / 100)
}

// Binary maps a gray value to 0 or 255.
func Binary(gray uint8) uint8 {
	if gray < common.THRESHOLD_VALUE {
		return 0
	}
	return 255
}

func Classify(gray uint8) color.RGBA {
	if gray < common.THRESHOLD_VALUE {
		return common.Black
	}
	return common.White
}

func Pixel(c color.RGBA) color.RGBA {
	return Classify(Luminance(c.R, c.G, c.B))
}

// ApplyRows thresholds rows [start, end) in place. Rows are relative to
// img.Bounds().Min.Y and clamped to the image.
func ApplyRows(img *image.RGBA, start, end int) {
	bounds := img.Bounds()
	height := bounds.Dy()
	width := bounds.Dx()
	start = max(start, 0)
	end = min(end, height)

	for y := start; y < end; y++ {
		// Direct Pix access, same layout as RGBAAt
		row := img.Pix[y*img.Stride : y*img.Stride+width*4]
		for x := 0; x < width; x++ {
			p := row[x*4 : x*4+4 : x*4+4]
			v := Binary(Luminance(p[0], p[1], p[2]))
			p[0], p[1], p[2], p[3] = v, v, v, 255
		}
	}
}

// Apply thresholds the whole image in place.
func Apply(img *image.RGBA) {
	ApplyRows(img, 0, img.Bounds().Dy())
}

// ToGray computes the luminance plane of img.
func ToGray(img *image.RGBA) *image.Gray {
	bounds := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := 0; y < bounds.Dy(); y++ {
		for x := 0; x < bounds.Dx(); x++ {
			i := y*img.Stride + x*4
			gray.Pix[y*gray.Stride+x] = Luminance(img.Pix[i], img.Pix[i+1], img.Pix[i+2])
		}
	}
	return gray
}

// IsBinary reports whether every pixel of img is pure black or pure white.
func IsBinary(img image.Image) bool {
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			if r != g || g != b {
				return false
			}
			if r != 0 && r != 0xffff {
				return false
			}
		}
	}
	return true
}
