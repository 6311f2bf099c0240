package display

import (
	"context"
	"image"
	"image/color"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyguide.parallel/pkg/imageio"
)

type recordingPresenter struct {
	titles []string
	frames int
}

func (r *recordingPresenter) Present(title string, frame *image.RGBA) error {
	r.titles = append(r.titles, title)
	r.frames++
	return nil
}

func TestShowBlitsAtOrigin(t *testing.T) {
	rec := &recordingPresenter{}
	opts := DefaultOptions()
	opts.Presenter = rec
	w, err := NewWindow(opts)
	require.NoError(t, err)
	defer w.Close()

	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	require.NoError(t, w.Show(img))

	frame := w.Frame()
	assert.Equal(t, image.Rect(0, 0, 640, 480), frame.Bounds())
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, frame.RGBAAt(9, 9))
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, frame.RGBAAt(10, 10))
	assert.Equal(t, []string{"Thresholded Image"}, rec.titles)
}

func TestShowCropsLargeImage(t *testing.T) {
	opts := DefaultOptions()
	opts.Width, opts.Height = 4, 4
	w, err := NewWindow(opts)
	require.NoError(t, err)

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	img.SetRGBA(3, 3, color.RGBA{255, 255, 255, 255})
	img.SetRGBA(7, 7, color.RGBA{255, 255, 255, 255})
	require.NoError(t, w.Show(img))

	frame := w.Frame()
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, frame.RGBAAt(3, 3))
}

func TestShowFitScales(t *testing.T) {
	opts := DefaultOptions()
	opts.Width, opts.Height = 8, 8
	opts.Fit = true
	w, err := NewWindow(opts)
	require.NoError(t, err)

	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	require.NoError(t, w.Show(img))
	assert.InDelta(t, 255, int(w.Frame().RGBAAt(7, 7).R), 2)
}

func TestShowAfterClose(t *testing.T) {
	w, err := NewWindow(DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, w.Close())

	err = w.Show(image.NewRGBA(image.Rect(0, 0, 1, 1)))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNewWindowInvalidSize(t *testing.T) {
	opts := DefaultOptions()
	opts.Width = 0
	_, err := NewWindow(opts)
	assert.Error(t, err)
}

func TestHoldHonoursContext(t *testing.T) {
	w, err := NewWindow(DefaultOptions())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err = w.Hold(ctx, 10*time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)

	assert.NoError(t, w.Hold(context.Background(), 0))
	assert.NoError(t, w.Hold(context.Background(), 10*time.Millisecond))
}

func TestPNGPresenter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "window.png")
	opts := DefaultOptions()
	opts.Presenter = PNGPresenter{Path: path}
	w, err := NewWindow(opts)
	require.NoError(t, err)

	require.NoError(t, w.Show(image.NewRGBA(image.Rect(0, 0, 2, 2))))

	frame, err := imageio.Load(path)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 640, 480), frame.Bounds())
}

func TestFitRect(t *testing.T) {
	assert.Equal(t, image.Rect(0, 0, 640, 320), fitRect(image.Rect(0, 0, 200, 100), image.Rect(0, 0, 640, 480)))
	assert.Equal(t, image.Rect(0, 0, 240, 480), fitRect(image.Rect(0, 0, 100, 200), image.Rect(0, 0, 640, 480)))
	assert.Equal(t, image.Rectangle{}, fitRect(image.Rectangle{}, image.Rect(0, 0, 640, 480)))
}

func TestShowForPresentsOnce(t *testing.T) {
	rec := &recordingPresenter{}
	opts := DefaultOptions()
	opts.Presenter = rec

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, ShowFor(ctx, image.NewRGBA(image.Rect(0, 0, 4, 4)), opts, time.Hour))
	assert.Equal(t, 1, rec.frames)
	assert.Equal(t, []string{"Thresholded Image"}, rec.titles)
}
