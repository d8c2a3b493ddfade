//go:build !nogpu

package wgpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/clouds/gpucore"
)

type stateKey struct {
	tex   gpucore.TextureID
	layer int
}

// encoder records straight into a HAL command encoder. Subresource states
// are tracked locally and committed to the device when Submit succeeds.
type encoder struct {
	dev   *Device
	label string
	enc   hal.CommandEncoder

	pending map[stateKey]gpucore.ResourceState
	err     error

	bindGroups []hal.BindGroup
	buffers    []hal.Buffer

	dispatches int
	draws      int
	closed     bool
}

func (e *encoder) state(id gpucore.TextureID, t *texture, layer int) gpucore.ResourceState {
	if s, ok := e.pending[stateKey{id, layer}]; ok {
		return s
	}
	e.dev.mu.RLock()
	defer e.dev.mu.RUnlock()
	return t.states[layer]
}

func (e *encoder) expect(id gpucore.TextureID, t *texture, layer int, want gpucore.ResourceState) error {
	if got := e.state(id, t, layer); got != want {
		return fmt.Errorf("%w: texture %d layer %d is %s, want %s", gpucore.ErrInvalidState, id, layer, got, want)
	}
	return nil
}

func layerRange(t *texture, layer int) (first, count int) {
	if layer == gpucore.AllLayers {
		return 0, t.desc.Layers()
	}
	return layer, 1
}

// Barrier implements gpucore.Encoder. A mismatched Before state is
// reported by Submit. HAL barriers cover whole textures.
func (e *encoder) Barrier(barriers []gpucore.Barrier) {
	if e.closed || e.err != nil {
		return
	}
	hb := make([]hal.TextureBarrier, 0, len(barriers))
	for _, b := range barriers {
		t, ok := e.dev.texture(b.Texture)
		if !ok {
			e.err = fmt.Errorf("barrier: %w: %d", gpucore.ErrTextureNotFound, b.Texture)
			return
		}
		first, count := layerRange(t, b.Layer)
		if first < 0 || first+count > t.desc.Layers() {
			e.err = fmt.Errorf("barrier: texture %d: layer %d out of range", b.Texture, b.Layer)
			return
		}
		for l := first; l < first+count; l++ {
			if b.Before != gpucore.StateUndefined {
				if err := e.expect(b.Texture, t, l, b.Before); err != nil {
					e.err = fmt.Errorf("barrier: %w", err)
					return
				}
			}
			e.pending[stateKey{b.Texture, l}] = b.After
		}
		hb = append(hb, hal.TextureBarrier{
			Texture: t.tex,
			Usage: hal.TextureUsageTransition{
				OldUsage: stateUsage(b.Before),
				NewUsage: stateUsage(b.After),
			},
		})
	}
	e.enc.TransitionTextures(hb)
}

func (e *encoder) uniform(label string, data []byte) (hal.Buffer, error) {
	buf, err := e.dev.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  uint64(len(data)),
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, err
	}
	e.buffers = append(e.buffers, buf)
	e.dev.queue.WriteBuffer(buf, 0, data)
	return buf, nil
}

func (e *encoder) bindGroup(label string, layout hal.BindGroupLayout, entries []gputypes.BindGroupEntry) (hal.BindGroup, error) {
	bg, err := e.dev.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   label,
		Layout:  layout,
		Entries: entries,
	})
	if err != nil {
		return nil, err
	}
	e.bindGroups = append(e.bindGroups, bg)
	return bg, nil
}

func viewEntry(binding uint32, v hal.TextureView) gputypes.BindGroupEntry {
	return gputypes.BindGroupEntry{
		Binding:  binding,
		Resource: gputypes.TextureViewBinding{TextureView: v.NativeHandle()},
	}
}

func samplerEntry(binding uint32, s hal.Sampler) gputypes.BindGroupEntry {
	return gputypes.BindGroupEntry{
		Binding:  binding,
		Resource: gputypes.SamplerBinding{Sampler: s.NativeHandle()},
	}
}

func bufferEntry(binding uint32, b hal.Buffer, size int) gputypes.BindGroupEntry {
	return gputypes.BindGroupEntry{
		Binding:  binding,
		Resource: gputypes.BufferBinding{Buffer: b.NativeHandle(), Offset: 0, Size: uint64(size)},
	}
}

// Dispatch implements gpucore.Encoder.
func (e *encoder) Dispatch(cmd *gpucore.DispatchCommand) error {
	if e.closed {
		return gpucore.ErrEncoderClosed
	}
	k, ok := e.dev.kernel(cmd.Kernel)
	if !ok {
		return fmt.Errorf("%w: %d", gpucore.ErrKernelNotFound, cmd.Kernel)
	}
	out, ok := e.dev.texture(cmd.Output)
	if !ok {
		return fmt.Errorf("output: %w: %d", gpucore.ErrTextureNotFound, cmd.Output)
	}
	if cmd.Layer < 0 || cmd.Layer >= len(out.layers) {
		return fmt.Errorf("output: texture %d: layer %d out of range", cmd.Output, cmd.Layer)
	}
	if out.desc.Usage&gpucore.TextureUsageStorageBinding == 0 {
		return fmt.Errorf("output: texture %d is not a storage texture", cmd.Output)
	}
	if err := e.expect(cmd.Output, out, cmd.Layer, gpucore.StateStorage); err != nil {
		return err
	}

	var views [4]hal.TextureView
	names := cmd.Inputs.Names()
	for i, id := range cmd.Inputs.IDs() {
		t, ok := e.dev.texture(id)
		if !ok {
			return fmt.Errorf("%s: %w: %d", names[i], gpucore.ErrTextureNotFound, id)
		}
		for l := 0; l < t.desc.Layers(); l++ {
			if err := e.expect(id, t, l, gpucore.StateSampled); err != nil {
				return fmt.Errorf("%s: %w", names[i], err)
			}
		}
		views[i] = t.sampled
	}

	params := cmd.Params.Bytes()
	ub, err := e.uniform("clouds_params", params)
	if err != nil {
		return fmt.Errorf("wgpu: dispatch: create uniform: %w", err)
	}
	bg, err := e.bindGroup("clouds_dispatch_bg", k.layout, []gputypes.BindGroupEntry{
		bufferEntry(0, ub, len(params)),
		viewEntry(1, views[0]),
		viewEntry(2, views[1]),
		viewEntry(3, views[2]),
		viewEntry(4, views[3]),
		samplerEntry(5, e.dev.noise),
		viewEntry(6, out.layers[cmd.Layer]),
	})
	if err != nil {
		return fmt.Errorf("wgpu: dispatch: create bind group: %w", err)
	}

	pass := e.enc.BeginComputePass(&hal.ComputePassDescriptor{Label: k.desc.Label})
	pass.SetPipeline(k.pipeline)
	pass.SetBindGroup(0, bg, nil)
	pass.Dispatch(cmd.Groups[0], cmd.Groups[1], cmd.Groups[2])
	pass.End()
	e.dispatches++

	if cmd.Async {
		e.dev.log().Debug("wgpu: async compute requested, using the graphics queue", "encoder", e.label)
	}
	return nil
}

// Composite implements gpucore.Encoder.
func (e *encoder) Composite(cmd *gpucore.CompositeCommand) error {
	if e.closed {
		return gpucore.ErrEncoderClosed
	}
	var src [3]*texture
	for i, id := range [3]gpucore.TextureID{cmd.Current, cmd.History, cmd.Background} {
		t, ok := e.dev.texture(id)
		if !ok {
			return fmt.Errorf("composite: %w: %d", gpucore.ErrTextureNotFound, id)
		}
		for l := 0; l < t.desc.Layers(); l++ {
			if err := e.expect(id, t, l, gpucore.StateSampled); err != nil {
				return fmt.Errorf("composite: %w", err)
			}
		}
		src[i] = t
	}
	if src[0].desc.Dimension != src[1].desc.Dimension {
		return fmt.Errorf("composite: current is %s, history is %s", src[0].desc.Dimension, src[1].desc.Dimension)
	}
	target, ok := e.dev.texture(cmd.Target)
	if !ok {
		return fmt.Errorf("composite: target: %w: %d", gpucore.ErrTextureNotFound, cmd.Target)
	}
	if target.desc.Dimension != gpucore.TextureDimension2D {
		return fmt.Errorf("composite: target %d is %s, want 2D", cmd.Target, target.desc.Dimension)
	}
	if err := e.expect(cmd.Target, target, 0, gpucore.StateRenderTarget); err != nil {
		return fmt.Errorf("composite: %w", err)
	}

	kind := rasterComposite2D
	if src[0].desc.Dimension == gpucore.TextureDimensionCube {
		kind = rasterCompositeCube
	}
	format, _ := convertFormat(target.desc.Format)
	p, err := e.dev.raster.get(kind, format)
	if err != nil {
		return err
	}

	params := cmd.Params.Bytes()
	ub, err := e.uniform("clouds_composite_params", params)
	if err != nil {
		return fmt.Errorf("wgpu: composite: create uniform: %w", err)
	}
	bg, err := e.bindGroup("clouds_composite_bg", p.layout, []gputypes.BindGroupEntry{
		bufferEntry(0, ub, len(params)),
		viewEntry(1, src[0].sampled),
		viewEntry(2, src[1].sampled),
		viewEntry(3, src[2].sampled),
		samplerEntry(4, e.dev.clamp),
	})
	if err != nil {
		return fmt.Errorf("wgpu: composite: create bind group: %w", err)
	}

	load := gputypes.LoadOpLoad
	if cmd.Clear {
		load = gputypes.LoadOpClear
	}
	e.draw("clouds_composite", target.layers[0], load, p.pipeline, bg)
	return nil
}

// Blit implements gpucore.Encoder.
func (e *encoder) Blit(src, dst gpucore.TextureID) error {
	if e.closed {
		return gpucore.ErrEncoderClosed
	}
	s, ok := e.dev.texture(src)
	if !ok {
		return fmt.Errorf("blit: src: %w: %d", gpucore.ErrTextureNotFound, src)
	}
	if s.desc.Dimension != gpucore.TextureDimension2D {
		return fmt.Errorf("blit: src %d is %s, want 2D", src, s.desc.Dimension)
	}
	if err := e.expect(src, s, 0, gpucore.StateSampled); err != nil {
		return fmt.Errorf("blit: %w", err)
	}
	d, ok := e.dev.texture(dst)
	if !ok {
		return fmt.Errorf("blit: dst: %w: %d", gpucore.ErrTextureNotFound, dst)
	}
	if d.desc.Dimension != gpucore.TextureDimension2D {
		return fmt.Errorf("blit: dst %d is %s, want 2D", dst, d.desc.Dimension)
	}
	if err := e.expect(dst, d, 0, gpucore.StateRenderTarget); err != nil {
		return fmt.Errorf("blit: %w", err)
	}

	format, _ := convertFormat(d.desc.Format)
	p, err := e.dev.raster.get(rasterBlit, format)
	if err != nil {
		return err
	}
	bg, err := e.bindGroup("clouds_blit_bg", p.layout, []gputypes.BindGroupEntry{
		viewEntry(0, s.sampled),
		samplerEntry(1, e.dev.clamp),
	})
	if err != nil {
		return fmt.Errorf("wgpu: blit: create bind group: %w", err)
	}
	e.draw("clouds_blit", d.layers[0], gputypes.LoadOpLoad, p.pipeline, bg)
	return nil
}

// draw records a full-screen triangle into view.
func (e *encoder) draw(label string, view hal.TextureView, load gputypes.LoadOp, pipeline hal.RenderPipeline, bg hal.BindGroup) {
	rp := e.enc.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: label,
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       view,
			LoadOp:     load,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: gputypes.Color{R: 0, G: 0, B: 0, A: 0},
		}},
	})
	rp.SetPipeline(pipeline)
	rp.SetBindGroup(0, bg, nil)
	rp.Draw(3, 1, 0, 0)
	rp.End()
	e.draws++
}

// Submit implements gpucore.Encoder.
func (e *encoder) Submit() error {
	if e.closed {
		return gpucore.ErrEncoderClosed
	}
	e.closed = true
	defer e.cleanup()

	if e.err != nil {
		e.enc.DiscardEncoding()
		e.dev.log().Warn("wgpu: submit rejected", "encoder", e.label, "err", e.err)
		return fmt.Errorf("wgpu: %s: %w", e.label, e.err)
	}

	cmdBuf, err := e.enc.EndEncoding()
	if err != nil {
		return fmt.Errorf("wgpu: %s: end encoding: %w", e.label, err)
	}
	defer e.dev.device.FreeCommandBuffer(cmdBuf)

	fence, err := e.dev.device.CreateFence()
	if err != nil {
		return fmt.Errorf("wgpu: %s: create fence: %w", e.label, err)
	}
	defer e.dev.device.DestroyFence(fence)

	if err := e.dev.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("wgpu: %s: submit: %w", e.label, err)
	}
	ok, err := e.dev.device.Wait(fence, 1, fenceTimeout)
	if err != nil {
		return fmt.Errorf("wgpu: %s: wait: %w", e.label, err)
	}
	if !ok {
		return fmt.Errorf("wgpu: %s: %w after %v", e.label, errTimeout, fenceTimeout)
	}

	e.commit()
	e.dev.log().Debug("wgpu: submitted",
		"encoder", e.label, "dispatches", e.dispatches, "draws", e.draws)
	return nil
}

var errTimeout = errors.New("GPU timeout")

// commit publishes the tracked states of textures that still exist.
func (e *encoder) commit() {
	e.dev.mu.Lock()
	defer e.dev.mu.Unlock()
	for k, s := range e.pending {
		if t, ok := e.dev.textures[k.tex]; ok {
			t.states[k.layer] = s
		}
	}
}

// Discard implements gpucore.Encoder.
func (e *encoder) Discard() {
	if e.closed {
		return
	}
	e.closed = true
	e.enc.DiscardEncoding()
	e.cleanup()
}

func (e *encoder) cleanup() {
	for _, bg := range e.bindGroups {
		e.dev.device.DestroyBindGroup(bg)
	}
	for _, b := range e.buffers {
		e.dev.device.DestroyBuffer(b)
	}
	e.bindGroups, e.buffers = nil, nil
}
