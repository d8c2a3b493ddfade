package main

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/clouds"
	"github.com/gogpu/clouds/backend/software"
	"github.com/gogpu/clouds/gpucore"
)

// hash3 returns a pseudo-random value in [0, 1) for a lattice point.
func hash3(x, y, z, period int) float32 {
	x, y, z = wrap(x, period), wrap(y, period), wrap(z, period)
	h := uint32(x*374761393 + y*668265263 + z*2147483647)
	h = (h ^ (h >> 13)) * 1274126177
	h ^= h >> 16
	return float32(h&0xffffff) / float32(1<<24)
}

func wrap(v, n int) int { return ((v % n) + n) % n }

func smooth(t float32) float32 { return t * t * (3 - 2*t) }

func lerp(a, b, t float32) float32 { return a + (b-a)*t }

// valueNoise is tileable 3D value noise with the given lattice period.
func valueNoise(x, y, z float32, period int) float32 {
	xi, yi, zi := int(math.Floor(float64(x))), int(math.Floor(float64(y))), int(math.Floor(float64(z)))
	fx, fy, fz := smooth(x-float32(xi)), smooth(y-float32(yi)), smooth(z-float32(zi))
	c := func(dx, dy, dz int) float32 { return hash3(xi+dx, yi+dy, zi+dz, period) }
	x00 := lerp(c(0, 0, 0), c(1, 0, 0), fx)
	x10 := lerp(c(0, 1, 0), c(1, 1, 0), fx)
	x01 := lerp(c(0, 0, 1), c(1, 0, 1), fx)
	x11 := lerp(c(0, 1, 1), c(1, 1, 1), fx)
	return lerp(lerp(x00, x10, fy), lerp(x01, x11, fy), fz)
}

// fbm sums octaves of value noise into [0, 1].
func fbm(x, y, z float32, period, octaves int) float32 {
	var sum, norm float32
	amp := float32(1)
	for o := 0; o < octaves; o++ {
		sum += amp * valueNoise(x, y, z, period)
		norm += amp
		x, y, z, period = x*2, y*2, z*2, period*2
		amp *= 0.5
	}
	return sum / norm
}

func volume(size, period, octaves int) []float32 {
	out := make([]float32, 0, size*size*size*4)
	scale := float32(period) / float32(size)
	for z := 0; z < size; z++ {
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				v := fbm(float32(x)*scale, float32(y)*scale, float32(z)*scale, period, octaves)
				out = append(out, v, v, v, 1)
			}
		}
	}
	return out
}

func plane(size, period int, fn func(x, y float32) [4]float32) []float32 {
	out := make([]float32, 0, size*size*4)
	scale := float32(period) / float32(size)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			c := fn(float32(x)*scale, float32(y)*scale)
			out = append(out, c[:]...)
		}
	}
	return out
}

// noiseInputs uploads procedural noise textures.
func noiseInputs(dev *software.Device) (gpucore.NoiseInputs, error) {
	var in gpucore.NoiseInputs
	upload := func(label string, dim gpucore.TextureDimension, size int, data []float32) (gpucore.TextureID, error) {
		desc := gpucore.TextureDesc{
			Label: label, Width: uint32(size), Height: uint32(size), Depth: uint32(size),
			Dimension: dim, Format: gpucore.TextureFormatRGBA8Unorm,
			Usage: gpucore.TextureUsageTextureBinding,
		}
		id, err := dev.CreateTexture(&desc)
		if err != nil {
			return id, err
		}
		return id, dev.WriteTexture(id, 0, data)
	}

	var err error
	if in.Base, err = upload("base", gpucore.TextureDimension3D, 32, volume(32, 4, 4)); err != nil {
		return in, err
	}
	if in.Detail, err = upload("detail", gpucore.TextureDimension3D, 16, volume(16, 4, 2)); err != nil {
		return in, err
	}
	curl := plane(64, 8, func(x, y float32) [4]float32 {
		return [4]float32{valueNoise(x, y, 0, 8), valueNoise(x, y, 7, 8), 0, 1}
	})
	if in.Curl, err = upload("curl", gpucore.TextureDimension2D, 64, curl); err != nil {
		return in, err
	}
	weather := plane(64, 4, func(x, y float32) [4]float32 {
		v := min(max(fbm(x, y, 0, 4, 3)*1.6-0.4, 0), 1)
		return [4]float32{v, 0, 0, 1}
	})
	in.Weather, err = upload("weather", gpucore.TextureDimension2D, 64, weather)
	return in, err
}

// sky fills the camera color with a vertical gradient for cam.
func sky(cam *clouds.Camera, w, h int, dst []float32) {
	inv := cam.InvViewProjection()
	horizon := mgl32.Vec3{0.75, 0.82, 0.9}
	zenith := mgl32.Vec3{0.2, 0.4, 0.8}
	ground := mgl32.Vec3{0.25, 0.22, 0.2}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			ndc := mgl32.Vec4{(float32(x)+0.5)/float32(w)*2 - 1, 1 - (float32(y)+0.5)/float32(h)*2, 1, 1}
			p := inv.Mul4x1(ndc)
			dir := p.Vec3().Mul(1 / p.W()).Normalize()
			var c mgl32.Vec3
			if dir.Y() < 0 {
				c = ground
			} else {
				t := float32(math.Sqrt(float64(dir.Y())))
				c = horizon.Add(zenith.Sub(horizon).Mul(t))
			}
			i := (y*w + x) * 4
			dst[i], dst[i+1], dst[i+2], dst[i+3] = c[0], c[1], c[2], 1
		}
	}
}
