package main

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyguide.parallel/pkg/imageio"
)

func TestExecuteArgCount(t *testing.T) {
	for _, args := range [][]string{{}, {"a.png", "b.png"}} {
		var out bytes.Buffer
		assert.Equal(t, 1, execute(context.Background(), args, &out, &out))
		assert.Contains(t, out.String(), "accepts 1 arg(s)")
		assert.Contains(t, out.String(), "Usage:")
	}
}

func TestExecuteReportsGrid(t *testing.T) {
	in := filepath.Join(t.TempDir(), "in.png")
	src := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 40; x++ {
			src.SetRGBA(x, y, color.RGBA{200, 200, 200, 255})
		}
	}
	require.NoError(t, imageio.SavePNG(in, src))

	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), []string{"--workers", "2", in}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "Grid Size: (3, 2)\n")
	assert.Contains(t, stdout.String(), "Execution Time: ")
}
