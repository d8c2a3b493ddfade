// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package software

import (
	"fmt"
	"image"
	"image/color"

	"github.com/mrjoshuak/go-openexr/half"

	"github.com/gogpu/clouds/gpucore"
)

// plane adapts one texture layer to draw.Image. Values outside [0,1]
// are clamped on read.
type plane struct {
	px   []half.Half
	w, h int
	q    bool
}

func newPlane(t *texture, layer int) *plane {
	return &plane{px: t.layer(layer), w: int(t.desc.Width), h: int(t.desc.Height), q: quantized(t.desc.Format)}
}

func (p *plane) ColorModel() color.Model { return color.NRGBA64Model }

func (p *plane) Bounds() image.Rectangle { return image.Rect(0, 0, p.w, p.h) }

func (p *plane) At(x, y int) color.Color {
	if !(image.Point{x, y}.In(p.Bounds())) {
		return color.NRGBA64{}
	}
	c := load(p.px, (y*p.w+x)*4)
	return color.NRGBA64{R: to16(c[0]), G: to16(c[1]), B: to16(c[2]), A: to16(c[3])}
}

func (p *plane) Set(x, y int, c color.Color) {
	if !(image.Point{x, y}.In(p.Bounds())) {
		return
	}
	n := color.NRGBA64Model.Convert(c).(color.NRGBA64)
	store(p.px, (y*p.w+x)*4, [4]float32{
		float32(n.R) / 0xffff,
		float32(n.G) / 0xffff,
		float32(n.B) / 0xffff,
		float32(n.A) / 0xffff,
	}, p.q)
}

func to16(v float32) uint16 {
	return uint16(clamp01(v)*0xffff + 0.5)
}

// Image copies one layer into an 8-bit image, for previews and tests.
func (d *Device) Image(id gpucore.TextureID, layer int) (*image.NRGBA, error) {
	t, ok := d.texture(id)
	if !ok {
		return nil, fmt.Errorf("software: image %d: %w", id, gpucore.ErrTextureNotFound)
	}
	if t.desc.Dimension == gpucore.TextureDimension3D || layer < 0 || layer >= t.desc.Layers() {
		return nil, fmt.Errorf("software: image %d: layer %d not viewable", id, layer)
	}
	src := newPlane(t, layer)
	img := image.NewNRGBA(src.Bounds())
	for y := 0; y < src.h; y++ {
		for x := 0; x < src.w; x++ {
			c := load(src.px, (y*src.w+x)*4)
			i := img.PixOffset(x, y)
			for k := 0; k < 4; k++ {
				img.Pix[i+k] = uint8(clamp01(c[k])*255 + 0.5)
			}
		}
	}
	return img, nil
}
