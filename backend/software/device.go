// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package software provides a CPU implementation of gpucore.Device.
//
// Textures are stored as RGBA half floats regardless of their declared
// format (8-bit formats are quantized on write). Compute kernels are Go
// functions registered by entry point name; their workgroup size is read
// from the WGSL declaration so dispatch grids match the GPU backend.
// Recorded commands run on Submit, with barrier state validated per
// subresource, so the device doubles as a checker for frame graphs.
package software

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/mrjoshuak/go-openexr/half"

	"github.com/gogpu/clouds/backend"
	"github.com/gogpu/clouds/gpucore"
	"github.com/gogpu/clouds/internal/logging"
	"github.com/gogpu/clouds/internal/wgsl"
)

func init() {
	backend.Register(backend.BackendSoftware, func() (gpucore.Device, error) {
		return New(), nil
	})
}

type texture struct {
	desc   gpucore.TextureDesc
	data   []half.Half
	states []gpucore.ResourceState
}

func (t *texture) layerLen() int {
	return int(t.desc.Width) * int(t.desc.Height) * t.desc.Slices() * 4
}

func (t *texture) layer(l int) []half.Half {
	n := t.layerLen()
	return t.data[l*n : (l+1)*n]
}

type kernel struct {
	desc gpucore.KernelDesc
	fn   KernelFunc
	wg   gpucore.WorkgroupSize
}

// Device is a CPU gpucore.Device. It is safe for concurrent use.
type Device struct {
	mu       sync.RWMutex
	textures map[gpucore.TextureID]*texture
	kernels  map[gpucore.KernelID]*kernel
	nextID   atomic.Uint64
	workers  int
	logger   atomic.Pointer[slog.Logger]

	destroyed bool
}

// Option configures a Device.
type Option func(*Device)

// WithWorkers bounds the goroutines used per dispatch. Defaults to GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(d *Device) {
		if n > 0 {
			d.workers = n
		}
	}
}

// New creates an empty CPU device.
func New(opts ...Option) *Device {
	d := &Device{
		textures: make(map[gpucore.TextureID]*texture),
		kernels:  make(map[gpucore.KernelID]*kernel),
		workers:  runtime.GOMAXPROCS(0),
	}
	d.logger.Store(logging.Nop())
	for _, o := range opts {
		o(d)
	}
	return d
}

// SetLogger sets the device logger. Nil restores silence.
func (d *Device) SetLogger(l *slog.Logger) {
	d.logger.Store(logging.OrNop(l))
}

func (d *Device) log() *slog.Logger { return d.logger.Load() }

// Name implements gpucore.Device.
func (d *Device) Name() string { return backend.BackendSoftware }

// CreateTexture implements gpucore.Device.
func (d *Device) CreateTexture(desc *gpucore.TextureDesc) (gpucore.TextureID, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return gpucore.InvalidID, fmt.Errorf("software: texture %q: zero size %dx%d", desc.Label, desc.Width, desc.Height)
	}
	if desc.Format.BytesPerTexel() == 0 {
		return gpucore.InvalidID, fmt.Errorf("software: texture %q: unsupported format %s", desc.Label, desc.Format)
	}
	t := &texture{
		desc:   *desc,
		data:   make([]half.Half, desc.TexelCount()*4),
		states: make([]gpucore.ResourceState, desc.Layers()),
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return gpucore.InvalidID, gpucore.ErrDeviceDestroyed
	}
	id := gpucore.TextureID(d.nextID.Add(1))
	d.textures[id] = t
	return id, nil
}

// DestroyTexture implements gpucore.Device.
func (d *Device) DestroyTexture(id gpucore.TextureID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.textures, id)
}

// TextureValid implements gpucore.Device.
func (d *Device) TextureValid(id gpucore.TextureID) bool {
	_, ok := d.texture(id)
	return ok
}

// TextureDesc implements gpucore.Device.
func (d *Device) TextureDesc(id gpucore.TextureID) (gpucore.TextureDesc, bool) {
	t, ok := d.texture(id)
	if !ok {
		return gpucore.TextureDesc{}, false
	}
	return t.desc, true
}

func (d *Device) texture(id gpucore.TextureID) (*texture, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.textures[id]
	return t, ok
}

// WriteTexture implements gpucore.Device.
func (d *Device) WriteTexture(id gpucore.TextureID, layer int, rgba []float32) error {
	t, ok := d.texture(id)
	if !ok {
		return fmt.Errorf("software: write %d: %w", id, gpucore.ErrTextureNotFound)
	}
	dst := t.data
	if layer != gpucore.AllLayers {
		if layer < 0 || layer >= t.desc.Layers() {
			return fmt.Errorf("software: write %d: layer %d out of range", id, layer)
		}
		dst = t.layer(layer)
	}
	if len(rgba) != len(dst) {
		return fmt.Errorf("software: write %d: got %d values, want %d", id, len(rgba), len(dst))
	}
	if quantized(t.desc.Format) {
		q := make([]float32, len(rgba))
		for i, v := range rgba {
			q[i] = quantize8(v)
		}
		rgba = q
	}
	half.ConvertBatch32(dst, rgba)
	return nil
}

// ReadFloat returns one layer (or the whole texture with AllLayers) as
// RGBA float32 values.
func (d *Device) ReadFloat(id gpucore.TextureID, layer int) ([]float32, error) {
	t, ok := d.texture(id)
	if !ok {
		return nil, fmt.Errorf("software: read %d: %w", id, gpucore.ErrTextureNotFound)
	}
	src := t.data
	if layer != gpucore.AllLayers {
		if layer < 0 || layer >= t.desc.Layers() {
			return nil, fmt.Errorf("software: read %d: layer %d out of range", id, layer)
		}
		src = t.layer(layer)
	}
	out := make([]float32, len(src))
	half.ConvertBatchToFloat32(out, src)
	return out, nil
}

// Texel returns one RGBA texel of a 2D or cube layer.
func (d *Device) Texel(id gpucore.TextureID, layer, x, y int) ([4]float32, error) {
	t, ok := d.texture(id)
	if !ok {
		return [4]float32{}, gpucore.ErrTextureNotFound
	}
	w, h := int(t.desc.Width), int(t.desc.Height)
	if layer < 0 || layer >= t.desc.Layers() || x < 0 || y < 0 || x >= w || y >= h {
		return [4]float32{}, fmt.Errorf("software: texel (%d,%d) layer %d out of range", x, y, layer)
	}
	return load(t.layer(layer), (y*w+x)*4), nil
}

// State returns the tracked state of one layer, for tests.
func (d *Device) State(id gpucore.TextureID, layer int) gpucore.ResourceState {
	t, ok := d.texture(id)
	if !ok || layer < 0 || layer >= len(t.states) {
		return gpucore.StateUndefined
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return t.states[layer]
}

// CreateKernel implements gpucore.Device. The entry point must have a
// registered KernelFunc and be a @compute function of desc.Source.
func (d *Device) CreateKernel(desc *gpucore.KernelDesc) (gpucore.KernelID, error) {
	fn, ok := lookupKernel(desc.EntryPoint)
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("software: kernel %q: %w", desc.EntryPoint, ErrNoKernelFunc)
	}
	wg, err := wgsl.WorkgroupSize(desc.Source, desc.EntryPoint)
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("software: kernel %q: %w", desc.EntryPoint, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return gpucore.InvalidID, gpucore.ErrDeviceDestroyed
	}
	id := gpucore.KernelID(d.nextID.Add(1))
	d.kernels[id] = &kernel{desc: *desc, fn: fn, wg: wg}
	d.log().Debug("software: kernel created", "entry", desc.EntryPoint, "workgroup", wg)
	return id, nil
}

// DestroyKernel implements gpucore.Device.
func (d *Device) DestroyKernel(id gpucore.KernelID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.kernels, id)
}

// KernelValid implements gpucore.Device.
func (d *Device) KernelValid(id gpucore.KernelID) bool {
	_, ok := d.kernel(id)
	return ok
}

// KernelWorkgroupSize implements gpucore.Device.
func (d *Device) KernelWorkgroupSize(id gpucore.KernelID) (gpucore.WorkgroupSize, error) {
	k, ok := d.kernel(id)
	if !ok {
		return gpucore.WorkgroupSize{}, gpucore.ErrKernelNotFound
	}
	return k.wg, nil
}

func (d *Device) kernel(id gpucore.KernelID) (*kernel, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	k, ok := d.kernels[id]
	return k, ok
}

// BeginEncoding implements gpucore.Device.
func (d *Device) BeginEncoding(label string) (gpucore.Encoder, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.destroyed {
		return nil, gpucore.ErrDeviceDestroyed
	}
	return &encoder{dev: d, label: label}, nil
}

// Destroy implements gpucore.Device.
func (d *Device) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	clear(d.textures)
	clear(d.kernels)
	d.destroyed = true
}

func quantized(f gpucore.TextureFormat) bool {
	switch f {
	case gpucore.TextureFormatRGBA8Unorm, gpucore.TextureFormatBGRA8Unorm, gpucore.TextureFormatR8Unorm:
		return true
	}
	return false
}

func quantize8(v float32) float32 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 1
	}
	return float32(int(v*255+0.5)) / 255
}

func load(px []half.Half, i int) [4]float32 {
	return [4]float32{px[i].Float32(), px[i+1].Float32(), px[i+2].Float32(), px[i+3].Float32()}
}

func store(px []half.Half, i int, c [4]float32, q bool) {
	for k := 0; k < 4; k++ {
		v := c[k]
		if q {
			v = quantize8(v)
		}
		px[i+k] = half.FromFloat32(v)
	}
}
