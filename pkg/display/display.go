// Package display stands in for an on-screen window. A Window owns a fixed
// size canvas; Show blits an image onto it and hands the frame to a
// Presenter, Hold keeps it up for a fixed delay.
package display

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	"golang.org/x/image/draw"

	"studyguide.parallel/pkg/common"
	"studyguide.parallel/pkg/imageio"
)

var ErrClosed = errors.New("window closed")

// Presenter receives every rendered frame.
type Presenter interface {
	Present(title string, frame *image.RGBA) error
}

// LogPresenter only reports the frame.
type LogPresenter struct{}

func (LogPresenter) Present(title string, frame *image.RGBA) error {
	log.Printf("Window %q: presenting %dx%d frame", title, frame.Bounds().Dx(), frame.Bounds().Dy())
	return nil
}

// PNGPresenter writes each frame to Path.
type PNGPresenter struct {
	Path string
}

func (p PNGPresenter) Present(title string, frame *image.RGBA) error {
	if err := imageio.SavePNG(p.Path, frame); err != nil {
		return fmt.Errorf("present %q: %w", title, err)
	}
	log.Printf("Window %q: frame written to %s", title, p.Path)
	return nil
}

type Options struct {
	Title  string
	Width  int
	Height int
	// Fit scales the image into the canvas instead of blitting it 1:1.
	Fit       bool
	Presenter Presenter
}

func DefaultOptions() Options {
	return Options{
		Title:     common.WINDOW_TITLE,
		Width:     common.WINDOW_WIDTH,
		Height:    common.WINDOW_HEIGHT,
		Presenter: LogPresenter{},
	}
}

type Window struct {
	opts   Options
	canvas *image.RGBA
	mu     sync.Mutex
	closed bool
}

func NewWindow(opts Options) (*Window, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("window creation failed: invalid size %dx%d", opts.Width, opts.Height)
	}
	if opts.Presenter == nil {
		opts.Presenter = LogPresenter{}
	}
	return &Window{
		opts:   opts,
		canvas: image.NewRGBA(image.Rect(0, 0, opts.Width, opts.Height)),
	}, nil
}

// Show renders img onto the canvas and presents it.
func (w *Window) Show(img image.Image) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}

	draw.Draw(w.canvas, w.canvas.Bounds(), image.Black, image.Point{}, draw.Src)
	if w.opts.Fit {
		draw.CatmullRom.Scale(w.canvas, fitRect(img.Bounds(), w.canvas.Bounds()), img, img.Bounds(), draw.Src, nil)
	} else {
		draw.Draw(w.canvas, w.canvas.Bounds(), img, img.Bounds().Min, draw.Src)
	}

	return w.opts.Presenter.Present(w.opts.Title, w.canvas)
}

// Frame returns a copy of the current canvas.
func (w *Window) Frame() *image.RGBA {
	w.mu.Lock()
	defer w.mu.Unlock()
	frame := image.NewRGBA(w.canvas.Bounds())
	copy(frame.Pix, w.canvas.Pix)
	return frame
}

// Hold blocks for d or until ctx is done.
func (w *Window) Hold(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	log.Printf("Window %q: holding for %s", w.opts.Title, d)

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Window) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

// fitRect keeps the aspect ratio of src inside dst, anchored at the origin.
func fitRect(src, dst image.Rectangle) image.Rectangle {
	sw, sh := src.Dx(), src.Dy()
	dw, dh := dst.Dx(), dst.Dy()
	if sw == 0 || sh == 0 {
		return image.Rectangle{}
	}
	if sw*dh > sh*dw {
		return image.Rect(0, 0, dw, max(1, sh*dw/sw))
	}
	return image.Rect(0, 0, max(1, sw*dh/sh), dh)
}

// ShowFor opens a window, shows img for hold and closes it again.
func ShowFor(ctx context.Context, img image.Image, opts Options, hold time.Duration) error {
	win, err := NewWindow(opts)
	if err != nil {
		return err
	}
	defer win.Close()

	if err := win.Show(img); err != nil {
		return err
	}
	if err := win.Hold(ctx, hold); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
