// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package software

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/sync/errgroup"

	"github.com/gogpu/clouds/gpucore"
)

// ErrNoKernelFunc is returned by CreateKernel for an entry point with no
// registered KernelFunc.
var ErrNoKernelFunc = errors.New("software: no kernel function for entry point")

// KernelFunc computes one output texel. It runs concurrently for
// different texels and must not retain inv.
type KernelFunc func(inv *Invocation) [4]float32

var (
	kernelsMu sync.RWMutex
	kernelFns = make(map[string]KernelFunc)
)

// RegisterKernel binds a Go implementation to a WGSL entry point name.
// Registering a name twice replaces the previous function.
func RegisterKernel(entryPoint string, fn KernelFunc) {
	if fn == nil {
		panic("software: RegisterKernel with nil function")
	}
	kernelsMu.Lock()
	defer kernelsMu.Unlock()
	kernelFns[entryPoint] = fn
}

// UnregisterKernel removes a registration. Used in tests.
func UnregisterKernel(entryPoint string) {
	kernelsMu.Lock()
	defer kernelsMu.Unlock()
	delete(kernelFns, entryPoint)
}

// Kernels returns the registered entry point names, sorted.
func Kernels() []string {
	kernelsMu.RLock()
	defer kernelsMu.RUnlock()
	names := make([]string, 0, len(kernelFns))
	for n := range kernelFns {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func lookupKernel(entryPoint string) (KernelFunc, bool) {
	kernelsMu.RLock()
	defer kernelsMu.RUnlock()
	fn, ok := kernelFns[entryPoint]
	return fn, ok
}

// Invocation is the per-texel input of a KernelFunc.
type Invocation struct {
	X, Y   int
	Params *gpucore.CloudParams

	Base, Detail, Curl, Weather Sampler
}

// UV returns the texel center in [0,1]^2, v growing downward.
func (inv *Invocation) UV() (float32, float32) {
	return (float32(inv.X) + 0.5) / float32(inv.Params.Width),
		(float32(inv.Y) + 0.5) / float32(inv.Params.Height)
}

// Ray returns the world-space view ray through the texel center.
func (inv *Invocation) Ray() (origin, dir mgl32.Vec3) {
	u, v := inv.UV()
	c2w := mgl32.Mat4(inv.Params.CameraToWorld)
	proj := mgl32.Mat4(inv.Params.InverseProjection)

	view := proj.Mul4x1(mgl32.Vec4{u*2 - 1, 1 - v*2, 0, 1})
	d := c2w.Mul4x1(mgl32.Vec4{view[0], view[1], view[2], 0}).Vec3()
	if d.Len() > 0 {
		d = d.Normalize()
	}
	return c2w.Col(3).Vec3(), d
}

// Sampler reads an input texture with wrap addressing and linear filtering.
// The zero Sampler returns transparent black.
type Sampler struct {
	tex *texture
}

// Valid reports whether the sampler is bound to a texture.
func (s Sampler) Valid() bool { return s.tex != nil }

// Sample filters at normalized coordinates. w is ignored for 2D textures.
func (s Sampler) Sample(u, v, w float32) [4]float32 {
	if s.tex == nil {
		return [4]float32{}
	}
	if s.tex.desc.Dimension == gpucore.TextureDimension3D {
		return sample3D(s.tex, u, v, w)
	}
	return sample2D(s.tex.layer(0), int(s.tex.desc.Width), int(s.tex.desc.Height), u, v, true)
}

type kernelJob struct {
	k      *kernel
	out    *texture
	layer  int
	params gpucore.CloudParams
	groups [3]uint32
	inputs [4]Sampler
}

// runKernel evaluates the kernel over the dispatch grid, one workgroup row per
// task. Threads outside the output extent are skipped.
func (d *Device) runKernel(ctx context.Context, job *kernelJob) error {
	w, h := int(job.out.desc.Width), int(job.out.desc.Height)
	wg := job.k.wg
	dst := job.out.layer(job.layer)
	q := quantized(job.out.desc.Format)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)
	for gy := 0; gy < int(job.groups[1]); gy++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			inv := Invocation{Params: &job.params}
			inv.Base, inv.Detail, inv.Curl, inv.Weather = job.inputs[0], job.inputs[1], job.inputs[2], job.inputs[3]
			for ly := 0; ly < int(wg[1]); ly++ {
				y := gy*int(wg[1]) + ly
				if y >= h {
					break
				}
				for gx := 0; gx < int(job.groups[0]); gx++ {
					for lx := 0; lx < int(wg[0]); lx++ {
						x := gx*int(wg[0]) + lx
						if x >= w {
							break
						}
						inv.X, inv.Y = x, y
						store(dst, (y*w+x)*4, job.k.fn(&inv), q)
					}
				}
			}
			return nil
		})
	}
	err := g.Wait()
	d.log().Debug("software: dispatch", slog.String("kernel", job.k.desc.EntryPoint),
		slog.Int("layer", job.layer), slog.Any("groups", job.groups))
	return err
}
