//go:build !nogpu

// Package wgpu implements gpucore.Device on a gogpu/wgpu HAL device.
//
// Kernels are compiled from WGSL to SPIR-V with naga. Cube textures get a
// cube view for sampling plus one single-layer 2D array view per face, so
// a kernel writes a face through texture_storage_2d_array. The composite
// and blit passes are full-screen triangles with pipelines cached per
// target format.
//
// Submit waits on a fence, so recorded work is complete when it returns.
package wgpu

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	_ "github.com/gogpu/wgpu/hal/vulkan" // register the Vulkan HAL backend

	"github.com/gogpu/clouds/backend"
	"github.com/gogpu/clouds/gpucore"
	"github.com/gogpu/clouds/internal/logging"
)

func init() {
	backend.Register(backend.BackendWGPU, func() (gpucore.Device, error) {
		d, err := New()
		if err != nil {
			return nil, err
		}
		return d, nil
	})
}

// fenceTimeout bounds the wait for submitted work.
const fenceTimeout = 5 * time.Second

var (
	// ErrNoAdapter is returned by New when no GPU adapter is found.
	ErrNoAdapter = errors.New("wgpu: no GPU adapter")

	// ErrNoHAL is returned by NewFromProvider when the provider does not
	// expose HAL objects.
	ErrNoHAL = errors.New("wgpu: provider does not expose HAL device")
)

type texture struct {
	desc gpucore.TextureDesc
	tex  hal.Texture

	// sampled covers the whole texture: 2D, 3D or cube.
	sampled hal.TextureView
	// layers holds one single-layer 2D array view per layer, used for
	// storage writes and as color attachments.
	layers []hal.TextureView

	states   []gpucore.ResourceState
	imported bool
}

// Device is a gpucore.Device backed by a HAL device. It is safe for
// concurrent use.
type Device struct {
	mu sync.RWMutex

	device   hal.Device
	queue    hal.Queue
	instance hal.Instance
	owned    bool

	textures map[gpucore.TextureID]*texture
	kernels  map[gpucore.KernelID]*kernel
	nextID   atomic.Uint64

	raster *rasterPipelines
	noise  hal.Sampler
	clamp  hal.Sampler

	logger    atomic.Pointer[slog.Logger]
	destroyed bool
}

// New opens a standalone Vulkan device, preferring a discrete or
// integrated GPU.
func New() (*Device, error) {
	b, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("%w: vulkan backend not available", backend.ErrBackendNotAvailable)
	}
	instance, err := b.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create instance: %w", err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, ErrNoAdapter
	}
	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}

	open, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("wgpu: open device: %w", err)
	}
	d, err := newDevice(open.Device, open.Queue)
	if err != nil {
		open.Device.Destroy()
		instance.Destroy()
		return nil, err
	}
	d.instance = instance
	d.owned = true
	d.log().Info("wgpu: device opened", "adapter", selected.Info.Name)
	return d, nil
}

// NewFromHAL wraps an existing HAL device and queue. The caller keeps
// ownership of both.
func NewFromHAL(device hal.Device, queue hal.Queue) (*Device, error) {
	if device == nil || queue == nil {
		return nil, fmt.Errorf("wgpu: device and queue are required")
	}
	return newDevice(device, queue)
}

// NewFromProvider shares the device of a host application. The provider
// must also expose HalDevice() and HalQueue().
func NewFromProvider(provider gpucontext.DeviceProvider) (*Device, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNoHAL
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrNoHAL)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrNoHAL)
	}
	return newDevice(device, queue)
}

func newDevice(device hal.Device, queue hal.Queue) (*Device, error) {
	d := &Device{
		device:   device,
		queue:    queue,
		textures: make(map[gpucore.TextureID]*texture),
		kernels:  make(map[gpucore.KernelID]*kernel),
	}
	d.logger.Store(logging.Nop())

	var err error
	d.noise, err = device.CreateSampler(&hal.SamplerDescriptor{
		Label:        "clouds_noise_sampler",
		AddressModeU: gputypes.AddressModeRepeat,
		AddressModeV: gputypes.AddressModeRepeat,
		AddressModeW: gputypes.AddressModeRepeat,
		MagFilter:    gputypes.FilterModeLinear,
		MinFilter:    gputypes.FilterModeLinear,
		MipmapFilter: gputypes.FilterModeLinear,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create noise sampler: %w", err)
	}
	d.clamp, err = device.CreateSampler(&hal.SamplerDescriptor{
		Label:        "clouds_clamp_sampler",
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeLinear,
		MinFilter:    gputypes.FilterModeLinear,
		MipmapFilter: gputypes.FilterModeLinear,
	})
	if err != nil {
		device.DestroySampler(d.noise)
		return nil, fmt.Errorf("wgpu: create clamp sampler: %w", err)
	}
	d.raster = newRasterPipelines(device)
	return d, nil
}

// SetLogger sets the device logger. Nil restores silence.
func (d *Device) SetLogger(l *slog.Logger) {
	d.logger.Store(logging.OrNop(l))
}

func (d *Device) log() *slog.Logger { return d.logger.Load() }

// Name implements gpucore.Device.
func (d *Device) Name() string { return backend.BackendWGPU }

// HAL returns the underlying device and queue.
func (d *Device) HAL() (hal.Device, hal.Queue) { return d.device, d.queue }

// CreateTexture implements gpucore.Device. Every texture is also a copy
// destination so WriteTexture works on it.
func (d *Device) CreateTexture(desc *gpucore.TextureDesc) (gpucore.TextureID, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return gpucore.InvalidID, fmt.Errorf("wgpu: texture %q: zero size %dx%d", desc.Label, desc.Width, desc.Height)
	}
	format, ok := convertFormat(desc.Format)
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("wgpu: texture %q: unsupported format %s", desc.Label, desc.Format)
	}
	depth := uint32(desc.Layers())
	dim := gputypes.TextureDimension2D
	if desc.Dimension == gpucore.TextureDimension3D {
		depth = uint32(desc.Slices())
		dim = gputypes.TextureDimension3D
	}

	tex, err := d.device.CreateTexture(&hal.TextureDescriptor{
		Label:         desc.Label,
		Size:          hal.Extent3D{Width: desc.Width, Height: desc.Height, DepthOrArrayLayers: depth},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     dim,
		Format:        format,
		Usage:         convertUsage(desc.Usage) | gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("wgpu: texture %q: %w", desc.Label, err)
	}
	t, err := d.wrap(tex, desc, false)
	if err != nil {
		d.device.DestroyTexture(tex)
		return gpucore.InvalidID, err
	}
	return d.insert(t)
}

// ImportTexture registers a texture owned by the host, typically the
// camera color target. DestroyTexture releases only the views created
// here.
func (d *Device) ImportTexture(tex hal.Texture, desc *gpucore.TextureDesc) (gpucore.TextureID, error) {
	if tex == nil {
		return gpucore.InvalidID, fmt.Errorf("wgpu: import %q: nil texture", desc.Label)
	}
	if _, ok := convertFormat(desc.Format); !ok {
		return gpucore.InvalidID, fmt.Errorf("wgpu: import %q: unsupported format %s", desc.Label, desc.Format)
	}
	t, err := d.wrap(tex, desc, true)
	if err != nil {
		return gpucore.InvalidID, err
	}
	return d.insert(t)
}

// HALTexture returns the HAL texture behind id.
func (d *Device) HALTexture(id gpucore.TextureID) (hal.Texture, bool) {
	t, ok := d.texture(id)
	if !ok {
		return nil, false
	}
	return t.tex, true
}

func (d *Device) insert(t *texture) (gpucore.TextureID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		d.release(t)
		return gpucore.InvalidID, gpucore.ErrDeviceDestroyed
	}
	id := gpucore.TextureID(d.nextID.Add(1))
	d.textures[id] = t
	return id, nil
}

// wrap creates the views of tex.
func (d *Device) wrap(tex hal.Texture, desc *gpucore.TextureDesc, imported bool) (*texture, error) {
	format, _ := convertFormat(desc.Format)
	t := &texture{
		desc:     *desc,
		tex:      tex,
		states:   make([]gpucore.ResourceState, desc.Layers()),
		imported: imported,
	}

	viewDim := gputypes.TextureViewDimension2D
	switch desc.Dimension {
	case gpucore.TextureDimension3D:
		viewDim = gputypes.TextureViewDimension3D
	case gpucore.TextureDimensionCube:
		viewDim = gputypes.TextureViewDimensionCube
	}
	var err error
	t.sampled, err = d.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:           desc.Label + "_sampled",
		Format:          format,
		Dimension:       viewDim,
		Aspect:          gputypes.TextureAspectAll,
		MipLevelCount:   1,
		ArrayLayerCount: uint32(desc.Layers()),
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: texture %q: sampled view: %w", desc.Label, err)
	}

	if desc.Dimension != gpucore.TextureDimension3D {
		for l := 0; l < desc.Layers(); l++ {
			v, err := d.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
				Label:           fmt.Sprintf("%s_layer%d", desc.Label, l),
				Format:          format,
				Dimension:       gputypes.TextureViewDimension2DArray,
				Aspect:          gputypes.TextureAspectAll,
				MipLevelCount:   1,
				BaseArrayLayer:  uint32(l),
				ArrayLayerCount: 1,
			})
			if err != nil {
				d.release(t)
				return nil, fmt.Errorf("wgpu: texture %q: layer %d view: %w", desc.Label, l, err)
			}
			t.layers = append(t.layers, v)
		}
	}
	return t, nil
}

// release destroys the views of t and, unless imported, the texture.
func (d *Device) release(t *texture) {
	for _, v := range t.layers {
		d.device.DestroyTextureView(v)
	}
	if t.sampled != nil {
		d.device.DestroyTextureView(t.sampled)
	}
	if !t.imported {
		d.device.DestroyTexture(t.tex)
	}
}

// DestroyTexture implements gpucore.Device.
func (d *Device) DestroyTexture(id gpucore.TextureID) {
	d.mu.Lock()
	t, ok := d.textures[id]
	delete(d.textures, id)
	d.mu.Unlock()
	if ok {
		d.release(t)
	}
}

func (d *Device) texture(id gpucore.TextureID) (*texture, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.textures[id]
	return t, ok
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

// WriteTexture implements gpucore.Device.
func (d *Device) WriteTexture(id gpucore.TextureID, layer int, rgba []float32) error {
	t, ok := d.texture(id)
	if !ok {
		return fmt.Errorf("%w: %d", gpucore.ErrTextureNotFound, id)
	}
	first, count := layer, 1
	if layer == gpucore.AllLayers {
		first, count = 0, t.desc.Layers()
	} else if layer < 0 || layer >= t.desc.Layers() {
		return fmt.Errorf("wgpu: texture %d: layer %d out of range", id, layer)
	}

	w, h, slices := t.desc.Width, t.desc.Height, uint32(t.desc.Slices())
	perLayer := int(w) * int(h) * int(slices) * 4
	if len(rgba) != perLayer*count {
		return fmt.Errorf("wgpu: texture %d: got %d values, want %d", id, len(rgba), perLayer*count)
	}

	data := encodeTexels(t.desc.Format, rgba)
	bpp := uint32(t.desc.Format.BytesPerTexel())
	depth := uint32(count)
	if t.desc.Dimension == gpucore.TextureDimension3D {
		depth = slices
	}
	d.queue.WriteTexture(
		&hal.ImageCopyTexture{
			Texture:  t.tex,
			MipLevel: 0,
			Origin:   hal.Origin3D{Z: uint32(first)},
		},
		data,
		&hal.ImageDataLayout{
			Offset:       0,
			BytesPerRow:  w * bpp,
			RowsPerImage: h,
		},
		&hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: depth},
	)
	return nil
}

// BeginEncoding implements gpucore.Device.
func (d *Device) BeginEncoding(label string) (gpucore.Encoder, error) {
	d.mu.RLock()
	destroyed := d.destroyed
	d.mu.RUnlock()
	if destroyed {
		return nil, gpucore.ErrDeviceDestroyed
	}
	enc, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create command encoder: %w", err)
	}
	if err := enc.BeginEncoding(label); err != nil {
		return nil, fmt.Errorf("wgpu: begin encoding: %w", err)
	}
	return &encoder{dev: d, label: label, enc: enc, pending: make(map[stateKey]gpucore.ResourceState)}, nil
}

// Destroy implements gpucore.Device. A device from New also destroys the
// HAL device and instance.
func (d *Device) Destroy() {
	d.mu.Lock()
	if d.destroyed {
		d.mu.Unlock()
		return
	}
	d.destroyed = true
	textures, kernels := d.textures, d.kernels
	d.textures = make(map[gpucore.TextureID]*texture)
	d.kernels = make(map[gpucore.KernelID]*kernel)
	d.mu.Unlock()

	for _, t := range textures {
		d.release(t)
	}
	for _, k := range kernels {
		k.destroy(d.device)
	}
	d.raster.destroy()
	d.device.DestroySampler(d.noise)
	d.device.DestroySampler(d.clamp)

	if d.owned {
		d.device.Destroy()
		if d.instance != nil {
			d.instance.Destroy()
		}
	}
}
