// Package snapshot stores post-step screenshots and stitches each case's
// steps into an animated journey GIF.
package snapshot

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"image/png"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/nfnt/resize"

	"github.com/v0xg/pixellens/internal/step"
)

// Options configures a Recorder
type Options struct {
	Dir      string
	MaxWidth uint // journey frame width; screenshots are kept at full size
	All      bool // save a screenshot for every step, not only unsuccessful ones
	Journey  bool // write journey.gif per case
	Delay    int  // journey frame delay in 100ths of a second
}

// Recorder writes screenshots under Dir/<case>/. It is safe for concurrent
// use by parallel cases.
type Recorder struct {
	opts   Options
	mu     sync.Mutex
	steps  map[string]int
	frames map[string][]frame
}

type frame struct {
	img     image.Image
	success bool
}

func New(opts Options) *Recorder {
	if opts.MaxWidth == 0 {
		opts.MaxWidth = 800
	}
	if opts.Delay == 0 {
		opts.Delay = 150
	}
	return &Recorder{opts: opts, steps: make(map[string]int), frames: make(map[string][]frame)}
}

// Record keeps the step's screenshot. It returns the saved file path, or ""
// when the step passed and only failures are kept.
func (r *Recorder) Record(caseName string, res step.Result, data []byte) (string, error) {
	r.mu.Lock()
	r.steps[caseName]++
	n := r.steps[caseName]
	r.mu.Unlock()

	if r.opts.Journey {
		img, err := png.Decode(bytes.NewReader(data))
		if err != nil {
			return "", fmt.Errorf("decode screenshot: %w", err)
		}
		small := resize.Resize(r.opts.MaxWidth, 0, img, resize.Lanczos3)
		r.mu.Lock()
		r.frames[caseName] = append(r.frames[caseName], frame{img: small, success: res.Success})
		r.mu.Unlock()
	}

	if res.Success && !r.opts.All {
		return "", nil
	}

	dir := filepath.Join(r.opts.Dir, slug(caseName))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("%02d-%s.png", n, slug(res.Name)))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// Flush writes the case's journey GIF and forgets its frames.
func (r *Recorder) Flush(caseName string) (string, error) {
	r.mu.Lock()
	frames := r.frames[caseName]
	delete(r.frames, caseName)
	delete(r.steps, caseName)
	r.mu.Unlock()

	if !r.opts.Journey || len(frames) == 0 {
		return "", nil
	}

	dir := filepath.Join(r.opts.Dir, slug(caseName))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, "journey.gif")
	if err := writeGIF(path, frames, r.opts.Delay); err != nil {
		return "", err
	}
	return path, nil
}

var (
	passColor = color.RGBA{R: 0x2e, G: 0xa0, B: 0x43, A: 0xff}
	failColor = color.RGBA{R: 0xff, G: 0x59, B: 0x00, A: 0xff}
)

const barHeight = 6

func writeGIF(path string, frames []frame, delay int) error {
	g := &gif.GIF{
		Image:     make([]*image.Paletted, len(frames)),
		Delay:     make([]int, len(frames)),
		LoopCount: 0,
	}

	palette := generatePalette(frames[0].img)
	for i, f := range frames {
		b := f.img.Bounds()
		p := image.NewPaletted(b, palette)
		draw.FloydSteinberg.Draw(p, b, f.img, b.Min)

		// Status bar along the top edge.
		bar := passColor
		if !f.success {
			bar = failColor
		}
		draw.Draw(p, image.Rect(b.Min.X, b.Min.Y, b.Max.X, b.Min.Y+barHeight), &image.Uniform{C: bar}, image.Point{}, draw.Src)

		g.Image[i] = p
		g.Delay[i] = delay
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := gif.EncodeAll(f, g); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// generatePalette picks the most frequent colours of a sampled image. The
// two status colours are always present.
func generatePalette(img image.Image) color.Palette {
	bounds := img.Bounds()
	counts := make(map[color.RGBA]int)

	const stride = 4
	for y := bounds.Min.Y; y < bounds.Max.Y; y += stride {
		for x := bounds.Min.X; x < bounds.Max.X; x += stride {
			r, g, b, _ := img.At(x, y).RGBA()
			// Quantize to 5 bits per channel so near-identical shades share a slot.
			c := color.RGBA{R: uint8(r>>8) &^ 7, G: uint8(g>>8) &^ 7, B: uint8(b>>8) &^ 7, A: 0xff}
			counts[c]++
		}
	}

	colors := make([]color.RGBA, 0, len(counts))
	for c := range counts {
		colors = append(colors, c)
	}
	sort.Slice(colors, func(i, j int) bool {
		if counts[colors[i]] != counts[colors[j]] {
			return counts[colors[i]] > counts[colors[j]]
		}
		return rgbKey(colors[i]) < rgbKey(colors[j])
	})

	palette := color.Palette{passColor, failColor}
	for _, c := range colors {
		if len(palette) == 256 {
			break
		}
		palette = append(palette, c)
	}
	for len(palette) < 256 {
		gray := uint8(len(palette))
		palette = append(palette, color.RGBA{R: gray, G: gray, B: gray, A: 0xff})
	}
	return palette
}

func rgbKey(c color.RGBA) uint32 {
	return uint32(c.R)<<16 | uint32(c.G)<<8 | uint32(c.B)
}

var unsafeChars = regexp.MustCompile(`[^a-z0-9]+`)

func slug(s string) string {
	s = strings.Trim(unsafeChars.ReplaceAllString(strings.ToLower(s), "-"), "-")
	if s == "" {
		return "unnamed"
	}
	if len(s) > 60 {
		s = strings.TrimRight(s[:60], "-")
	}
	return s
}
