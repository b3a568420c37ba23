package main

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/gogpu/pix2pix"
)

// sequenceCamera plays back a directory of still images, one per render,
// looping at the end.
type sequenceCamera struct {
	frames  []image.Image
	next    int
	enabled bool
	lens    pix2pix.Lens
}

var frameExts = []string{".png", ".jpg", ".jpeg", ".webp"}

func loadSequence(dir string) (*sequenceCamera, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if slices.Contains(frameExts, strings.ToLower(filepath.Ext(e.Name()))) {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no png, jpeg or webp frames in %s", dir)
	}
	slices.Sort(names)

	cam := &sequenceCamera{enabled: true}
	for _, name := range names {
		img, err := decodeFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		cam.frames = append(cam.frames, img)
	}
	return cam, nil
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the -input directory
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

// Size reports the first frame's size; the pipeline captures at this size.
func (c *sequenceCamera) Size() (width, height int) {
	b := c.frames[0].Bounds()
	return b.Dx(), b.Dy()
}

func (c *sequenceCamera) Render(dst *pix2pix.Texture) error {
	img := c.frames[c.next]
	c.next = (c.next + 1) % len(c.frames)
	draw.BiLinear.Scale(dst.RGBA(), dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return nil
}

func (c *sequenceCamera) Enabled() bool          { return c.enabled }
func (c *sequenceCamera) SetEnabled(v bool)      { c.enabled = v }
func (c *sequenceCamera) Lens() pix2pix.Lens     { return c.lens }
func (c *sequenceCamera) SetLens(l pix2pix.Lens) { c.lens = l }
