package threshold

import (
	"image"
	"image/color"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyguide.parallel/pkg/common"
)

func uniform(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestLuminance(t *testing.T) {
	tests := []struct {
		r, g, b uint8
		want    uint8
	}{
		{0, 0, 0, 0},
		{255, 255, 255, 255},
		{128, 128, 128, 128},
		{127, 127, 127, 127},
		{255, 0, 0, 76},
		{0, 255, 0, 150},
		{0, 0, 255, 28},
		{10, 20, 30, 18},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Luminance(tt.r, tt.g, tt.b), "Luminance(%d, %d, %d)", tt.r, tt.g, tt.b)
	}
}

func TestClassifyBoundary(t *testing.T) {
	assert.Equal(t, common.Black, Classify(127))
	assert.Equal(t, common.White, Classify(128))
	assert.Equal(t, common.Black, Classify(0))
	assert.Equal(t, common.White, Classify(255))

	assert.Equal(t, uint8(0), Binary(127))
	assert.Equal(t, uint8(255), Binary(128))
}

func TestApplyUniformGray200IsWhite(t *testing.T) {
	img := uniform(640, 480, color.RGBA{200, 200, 200, 255})
	Apply(img)

	for y := 0; y < 480; y++ {
		for x := 0; x < 640; x++ {
			require.Equal(t, common.White, img.RGBAAt(x, y))
		}
	}
}

func TestApplyUniformGray50IsBlack(t *testing.T) {
	img := uniform(640, 480, color.RGBA{50, 50, 50, 255})
	Apply(img)

	for y := 0; y < 480; y++ {
		for x := 0; x < 640; x++ {
			require.Equal(t, common.Black, img.RGBAAt(x, y))
		}
	}
}

func TestApplySinglePixelAtBoundary(t *testing.T) {
	img := uniform(1, 1, color.RGBA{128, 128, 128, 255})
	Apply(img)
	assert.Equal(t, common.White, img.RGBAAt(0, 0))
}

func TestApplyRowsTouchesOnlyRange(t *testing.T) {
	gray := color.RGBA{90, 90, 90, 255}
	img := uniform(8, 10, gray)
	ApplyRows(img, 3, 6)

	for y := 0; y < 10; y++ {
		want := gray
		if y >= 3 && y < 6 {
			want = common.Black
		}
		for x := 0; x < 8; x++ {
			assert.Equal(t, want, img.RGBAAt(x, y), "pixel (%d, %d)", x, y)
		}
	}
}

func TestApplyRowsClampsRange(t *testing.T) {
	img := uniform(4, 4, color.RGBA{250, 250, 250, 255})
	ApplyRows(img, -5, 100)
	assert.True(t, IsBinary(img))
}

func TestApplyAlwaysBinary(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	img := image.NewRGBA(image.Rect(0, 0, 97, 61))
	rng.Read(img.Pix)

	require.False(t, IsBinary(img))
	Apply(img)
	assert.True(t, IsBinary(img))
}

func TestApplyIsDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	a := image.NewRGBA(image.Rect(0, 0, 33, 17))
	rng.Read(a.Pix)
	b := image.NewRGBA(a.Rect)
	copy(b.Pix, a.Pix)

	Apply(a)
	Apply(b)
	assert.Equal(t, a.Pix, b.Pix)
}

func TestToGrayMatchesApply(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	img := image.NewRGBA(image.Rect(0, 0, 20, 12))
	rng.Read(img.Pix)

	gray := ToGray(img)
	Apply(img)
	for y := 0; y < 12; y++ {
		for x := 0; x < 20; x++ {
			assert.Equal(t, img.RGBAAt(x, y).R, Binary(gray.GrayAt(x, y).Y))
		}
	}
}
