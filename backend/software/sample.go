// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package software

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/mrjoshuak/go-openexr/half"
)

func wrapCoord(i, n int) int {
	i %= n
	if i < 0 {
		i += n
	}
	return i
}

func clampCoord(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

func lerp4(a, b [4]float32, t float32) [4]float32 {
	return [4]float32{
		a[0] + (b[0]-a[0])*t,
		a[1] + (b[1]-a[1])*t,
		a[2] + (b[2]-a[2])*t,
		a[3] + (b[3]-a[3])*t,
	}
}

// sample2D bilinearly filters one w x h RGBA plane. Texel centers sit at
// half-integer coordinates.
func sample2D(px []half.Half, w, h int, u, v float32, wrap bool) [4]float32 {
	fx := u*float32(w) - 0.5
	fy := v*float32(h) - 0.5
	x0 := int(math.Floor(float64(fx)))
	y0 := int(math.Floor(float64(fy)))
	tx := fx - float32(x0)
	ty := fy - float32(y0)

	addr := clampCoord
	if wrap {
		addr = wrapCoord
	}
	xa, xb := addr(x0, w), addr(x0+1, w)
	ya, yb := addr(y0, h), addr(y0+1, h)

	top := lerp4(load(px, (ya*w+xa)*4), load(px, (ya*w+xb)*4), tx)
	bot := lerp4(load(px, (yb*w+xa)*4), load(px, (yb*w+xb)*4), tx)
	return lerp4(top, bot, ty)
}

// sample3D trilinearly filters a volume with wrap addressing.
func sample3D(t *texture, u, v, w float32) [4]float32 {
	sw, sh, sd := int(t.desc.Width), int(t.desc.Height), t.desc.Slices()
	plane := sw * sh * 4

	fz := w*float32(sd) - 0.5
	z0 := int(math.Floor(float64(fz)))
	tz := fz - float32(z0)
	za, zb := wrapCoord(z0, sd), wrapCoord(z0+1, sd)

	a := sample2D(t.data[za*plane:(za+1)*plane], sw, sh, u, v, true)
	b := sample2D(t.data[zb*plane:(zb+1)*plane], sw, sh, u, v, true)
	return lerp4(a, b, tz)
}

// cubeFace selects the cube layer hit by dir and the normalized texel
// coordinates on it, t growing downward. Layers follow the +X, -X, +Y,
// -Y, +Z, -Z order.
func cubeFace(dir mgl32.Vec3) (face int, s, t float32) {
	x, y, z := dir[0], dir[1], dir[2]
	ax, ay, az := abs32(x), abs32(y), abs32(z)

	var sc, tc, ma float32
	switch {
	case ax >= ay && ax >= az:
		ma = ax
		if x > 0 {
			face, sc, tc = 0, -z, -y
		} else {
			face, sc, tc = 1, z, -y
		}
	case ay >= az:
		ma = ay
		if y > 0 {
			face, sc, tc = 2, x, z
		} else {
			face, sc, tc = 3, x, -z
		}
	default:
		ma = az
		if z > 0 {
			face, sc, tc = 4, x, -y
		} else {
			face, sc, tc = 5, -x, -y
		}
	}
	if ma == 0 {
		return 4, 0.5, 0.5
	}
	return face, (sc/ma + 1) / 2, (tc/ma + 1) / 2
}

func sampleCube(t *texture, dir mgl32.Vec3) [4]float32 {
	face, s, tc := cubeFace(dir)
	return sample2D(t.layer(face), int(t.desc.Width), int(t.desc.Height), s, tc, false)
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
