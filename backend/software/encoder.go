// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package software

import (
	"context"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/mrjoshuak/go-openexr/half"
	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	"github.com/gogpu/clouds/gpucore"
)

type command struct {
	name string
	run  func(ctx context.Context) error
}

// encoder records closures and runs them in order on Submit.
type encoder struct {
	dev    *Device
	label  string
	cmds   []command
	closed bool
}

func (e *encoder) Barrier(barriers []gpucore.Barrier) {
	if e.closed || len(barriers) == 0 {
		return
	}
	bs := append([]gpucore.Barrier(nil), barriers...)
	e.cmds = append(e.cmds, command{name: "barrier", run: func(context.Context) error {
		return e.dev.transition(bs)
	}})
}

func (e *encoder) Dispatch(cmd *gpucore.DispatchCommand) error {
	if e.closed {
		return gpucore.ErrEncoderClosed
	}
	k, ok := e.dev.kernel(cmd.Kernel)
	if !ok {
		return gpucore.ErrKernelNotFound
	}
	out, ok := e.dev.texture(cmd.Output)
	if !ok {
		return fmt.Errorf("software: dispatch output: %w", gpucore.ErrTextureNotFound)
	}
	if cmd.Layer < 0 || cmd.Layer >= out.desc.Layers() {
		return fmt.Errorf("software: dispatch layer %d out of range", cmd.Layer)
	}
	if !out.desc.Format.StorageCapable() {
		return fmt.Errorf("software: dispatch output format %s is not storage capable", out.desc.Format)
	}

	job := &kernelJob{k: k, out: out, layer: cmd.Layer, params: cmd.Params, groups: cmd.Groups}
	ids := cmd.Inputs.IDs()
	for i, id := range ids {
		if id == gpucore.InvalidID {
			continue
		}
		t, ok := e.dev.texture(id)
		if !ok {
			return fmt.Errorf("software: dispatch input %s: %w", cmd.Inputs.Names()[i], gpucore.ErrTextureNotFound)
		}
		job.inputs[i] = Sampler{tex: t}
	}

	e.cmds = append(e.cmds, command{name: "dispatch", run: func(ctx context.Context) error {
		if err := e.dev.expect(cmd.Output, cmd.Layer, gpucore.StateStorage); err != nil {
			return err
		}
		for _, id := range ids {
			if id == gpucore.InvalidID {
				continue
			}
			if err := e.dev.expect(id, gpucore.AllLayers, gpucore.StateSampled); err != nil {
				return err
			}
		}
		return e.dev.runKernel(ctx, job)
	}})
	return nil
}

func (e *encoder) Composite(cmd *gpucore.CompositeCommand) error {
	if e.closed {
		return gpucore.ErrEncoderClosed
	}
	var texs [4]*texture
	for i, id := range []gpucore.TextureID{cmd.Current, cmd.History, cmd.Background, cmd.Target} {
		t, ok := e.dev.texture(id)
		if !ok {
			return fmt.Errorf("software: composite: %w", gpucore.ErrTextureNotFound)
		}
		texs[i] = t
	}
	cur, hist := texs[0], texs[1]
	if cur.desc.Dimension != hist.desc.Dimension || cur.desc.Width != hist.desc.Width || cur.desc.Height != hist.desc.Height {
		return fmt.Errorf("software: composite: current and history differ")
	}
	c := *cmd

	e.cmds = append(e.cmds, command{name: "composite", run: func(ctx context.Context) error {
		for _, id := range []gpucore.TextureID{c.Current, c.History, c.Background} {
			if err := e.dev.expect(id, gpucore.AllLayers, gpucore.StateSampled); err != nil {
				return err
			}
		}
		if err := e.dev.expect(c.Target, 0, gpucore.StateRenderTarget); err != nil {
			return err
		}
		return e.dev.composite(ctx, &c, texs)
	}})
	return nil
}

func (e *encoder) Blit(src, dst gpucore.TextureID) error {
	if e.closed {
		return gpucore.ErrEncoderClosed
	}
	s, ok := e.dev.texture(src)
	if !ok {
		return fmt.Errorf("software: blit source: %w", gpucore.ErrTextureNotFound)
	}
	d, ok := e.dev.texture(dst)
	if !ok {
		return fmt.Errorf("software: blit target: %w", gpucore.ErrTextureNotFound)
	}
	e.cmds = append(e.cmds, command{name: "blit", run: func(context.Context) error {
		if err := e.dev.expect(src, 0, gpucore.StateSampled); err != nil {
			return err
		}
		if err := e.dev.expect(dst, 0, gpucore.StateRenderTarget); err != nil {
			return err
		}
		sp, dp := newPlane(s, 0), newPlane(d, 0)
		draw.ApproxBiLinear.Scale(dp, dp.Bounds(), sp, sp.Bounds(), draw.Src, nil)
		return nil
	}})
	return nil
}

func (e *encoder) Submit() error {
	if e.closed {
		return gpucore.ErrEncoderClosed
	}
	e.closed = true
	ctx := context.Background()
	for i, c := range e.cmds {
		if err := c.run(ctx); err != nil {
			e.dev.log().Warn("software: submit failed", "label", e.label, "command", i, "kind", c.name, "err", err)
			return fmt.Errorf("software: %s: %s #%d: %w", e.label, c.name, i, err)
		}
	}
	e.cmds = nil
	return nil
}

func (e *encoder) Discard() {
	e.closed = true
	e.cmds = nil
}

// transition applies barriers, rejecting a Before state that does not
// match the tracked one. Undefined discards contents and matches anything.
func (d *Device) transition(barriers []gpucore.Barrier) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, b := range barriers {
		t, ok := d.textures[b.Texture]
		if !ok {
			return fmt.Errorf("barrier: %w", gpucore.ErrTextureNotFound)
		}
		lo, hi := b.Layer, b.Layer+1
		if b.Layer == gpucore.AllLayers {
			lo, hi = 0, len(t.states)
		}
		if lo < 0 || hi > len(t.states) {
			return fmt.Errorf("barrier: layer %d out of range", b.Layer)
		}
		for l := lo; l < hi; l++ {
			if b.Before != gpucore.StateUndefined && t.states[l] != b.Before {
				return fmt.Errorf("%w: texture %d layer %d is %s, barrier expects %s",
					gpucore.ErrInvalidState, b.Texture, l, t.states[l], b.Before)
			}
			t.states[l] = b.After
		}
	}
	return nil
}

func (d *Device) expect(id gpucore.TextureID, layer int, want gpucore.ResourceState) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.textures[id]
	if !ok {
		return gpucore.ErrTextureNotFound
	}
	lo, hi := layer, layer+1
	if layer == gpucore.AllLayers {
		lo, hi = 0, len(t.states)
	}
	for l := lo; l < hi; l++ {
		if t.states[l] != want {
			return fmt.Errorf("%w: texture %d layer %d is %s, want %s",
				gpucore.ErrInvalidState, id, l, t.states[l], want)
		}
	}
	return nil
}

// composite blends history toward current per target row, then mixes
// the result over the background by its alpha.
func (d *Device) composite(ctx context.Context, cmd *gpucore.CompositeCommand, texs [4]*texture) error {
	cur, hist, bg, dst := texs[0], texs[1], texs[2], texs[3]
	w, h := int(dst.desc.Width), int(dst.desc.Height)
	out := dst.layer(0)
	q := quantized(dst.desc.Format)
	if cmd.Clear {
		clear(out)
	}

	cube := cur.desc.Dimension == gpucore.TextureDimensionCube
	invVP := mgl32.Mat4(cmd.Params.InvViewProj)
	factor := cmd.Params.Factor
	bgPlane := bg.layer(0)
	bw, bh := int(bg.desc.Width), int(bg.desc.Height)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)
	for y := 0; y < h; y++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			curRow := make([]half.Half, w*4)
			histRow := make([]half.Half, w*4)
			mixed := make([]half.Half, w*4)
			v := (float32(y) + 0.5) / float32(h)
			for x := 0; x < w; x++ {
				u := (float32(x) + 0.5) / float32(w)
				var a, b [4]float32
				if cube {
					p := invVP.Mul4x1(mgl32.Vec4{u*2 - 1, 1 - v*2, 1, 1})
					dir := p.Vec3()
					if p[3] != 0 {
						dir = dir.Mul(1 / p[3])
					}
					a, b = sampleCube(cur, dir), sampleCube(hist, dir)
				} else {
					a = sample2D(cur.layer(0), int(cur.desc.Width), int(cur.desc.Height), u, v, false)
					b = sample2D(hist.layer(0), int(hist.desc.Width), int(hist.desc.Height), u, v, false)
				}
				store(curRow, x*4, a, false)
				store(histRow, x*4, b, false)
			}
			half.LerpBatch(mixed, histRow, curRow, factor)

			for x := 0; x < w; x++ {
				u := (float32(x) + 0.5) / float32(w)
				c := load(mixed, x*4)
				back := sample2D(bgPlane, bw, bh, u, v, false)
				alpha := clamp01(c[3])
				px := [4]float32{
					back[0] + (c[0]-back[0])*alpha,
					back[1] + (c[1]-back[1])*alpha,
					back[2] + (c[2]-back[2])*alpha,
					back[3],
				}
				store(out, (y*w+x)*4, px, q)
			}
			return nil
		})
	}
	return g.Wait()
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
