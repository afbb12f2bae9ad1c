package main

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
)

// frameSource yields the images to present. Still reports whether the
// source has stopped animating, which lets the engine drain after the frame.
type frameSource interface {
	Frame(n int) image.Image
	Still(n int) bool
}

// barColors are classic color bars, left to right.
var barColors = []color.RGBA{
	{R: 0xc0, G: 0xc0, B: 0xc0, A: 0xff},
	{R: 0xc0, G: 0xc0, B: 0x00, A: 0xff},
	{R: 0x00, G: 0xc0, B: 0xc0, A: 0xff},
	{R: 0x00, G: 0xc0, B: 0x00, A: 0xff},
	{R: 0xc0, G: 0x00, B: 0xc0, A: 0xff},
	{R: 0xc0, G: 0x00, B: 0x00, A: 0xff},
	{R: 0x00, G: 0x00, B: 0xc0, A: 0xff},
}

// testPattern renders animated color bars with a scrolling white band, so
// dropped or repeated frames are visible on screen.
type testPattern struct {
	img *image.RGBA
}

func newTestPattern(w, h int) *testPattern {
	return &testPattern{img: image.NewRGBA(image.Rect(0, 0, w, h))}
}

func (p *testPattern) Frame(n int) image.Image {
	b := p.img.Bounds()
	w, h := b.Dx(), b.Dy()
	barW := (w + len(barColors) - 1) / len(barColors)
	bandY := (n * 4) % h
	bandH := h / 20

	for y := 0; y < h; y++ {
		inBand := y >= bandY && y < bandY+bandH
		for x := 0; x < w; x++ {
			c := barColors[x/barW]
			if inBand {
				c = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
			}
			p.img.SetRGBA(x, y, c)
		}
	}
	return p.img
}

func (p *testPattern) Still(int) bool { return false }

// imageSequence plays the images of a directory in name order. A single
// image is a still.
type imageSequence struct {
	paths  []string
	frames []image.Image
}

func newImageSequence(dir string) (*imageSequence, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	seq := &imageSequence{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff":
			seq.paths = append(seq.paths, filepath.Join(dir, e.Name()))
		}
	}
	if len(seq.paths) == 0 {
		return nil, fmt.Errorf("no images in %s", dir)
	}
	sort.Strings(seq.paths)
	seq.frames = make([]image.Image, len(seq.paths))
	return seq, nil
}

func (s *imageSequence) Frame(n int) image.Image {
	i := n % len(s.paths)
	if s.frames[i] == nil {
		img, err := imaging.Open(s.paths[i], imaging.AutoOrientation(true))
		if err != nil {
			img = imaging.New(16, 16, color.Black)
		}
		s.frames[i] = img
	}
	return s.frames[i]
}

// Still reports true once a single-image sequence has been shown.
func (s *imageSequence) Still(n int) bool {
	return len(s.paths) == 1 && n > 0
}
