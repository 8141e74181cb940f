package snapshot_test

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/v0xg/pixellens/internal/snapshot"
	"github.com/v0xg/pixellens/internal/step"
)

func screenshot(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 200, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 200; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestRecordKeepsFailuresAndWritesJourney(t *testing.T) {
	dir := t.TempDir()
	r := snapshot.New(snapshot.Options{Dir: dir, MaxWidth: 40, Journey: true})

	path, err := r.Record("Checkout Flow", step.Result{Name: "load", Success: true}, screenshot(t, color.White))
	require.NoError(t, err)
	assert.Empty(t, path, "passing steps are not saved")

	path, err = r.Record("Checkout Flow", step.Result{Name: "Add to cart!"}, screenshot(t, color.Black))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "checkout-flow", "02-add-to-cart.png"), path)
	assert.FileExists(t, path)

	journey, err := r.Flush("Checkout Flow")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "checkout-flow", "journey.gif"), journey)

	f, err := os.Open(journey)
	require.NoError(t, err)
	defer f.Close()
	g, err := gif.DecodeAll(f)
	require.NoError(t, err)
	require.Len(t, g.Image, 2)
	assert.Equal(t, 40, g.Image[0].Bounds().Dx())
	assert.Equal(t, 20, g.Image[0].Bounds().Dy())

	again, err := r.Flush("Checkout Flow")
	require.NoError(t, err)
	assert.Empty(t, again, "frames are forgotten after flush")
}

func TestRecordAllWithoutJourney(t *testing.T) {
	dir := t.TempDir()
	r := snapshot.New(snapshot.Options{Dir: dir, All: true})

	path, err := r.Record("blog", step.Result{Name: "load", Success: true}, []byte("not decoded"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "blog", "01-load.png"), path)

	journey, err := r.Flush("blog")
	require.NoError(t, err)
	assert.Empty(t, journey)
}

func TestRecordRejectsBadImageForJourney(t *testing.T) {
	r := snapshot.New(snapshot.Options{Dir: t.TempDir(), Journey: true})
	_, err := r.Record("c", step.Result{Name: "s"}, []byte("garbage"))
	assert.Error(t, err)
}
