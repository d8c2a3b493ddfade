//go:build !nogpu

package wgpu

import (
	"errors"
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/clouds/gpucore"
)

// newNoopDevice wraps a noop HAL device.
func newNoopDevice(t *testing.T) *Device {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	open, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	d, err := NewFromHAL(open.Device, open.Queue)
	if err != nil {
		t.Fatalf("NewFromHAL: %v", err)
	}
	t.Cleanup(func() {
		d.Destroy()
		open.Device.Destroy()
		instance.Destroy()
	})
	return d
}

func mustTexture(t *testing.T, d *Device, desc gpucore.TextureDesc) gpucore.TextureID {
	t.Helper()
	id, err := d.CreateTexture(&desc)
	if err != nil {
		t.Fatalf("CreateTexture(%q): %v", desc.Label, err)
	}
	return id
}

var (
	cubeDesc = gpucore.TextureDesc{
		Label: "clouds", Width: 8, Height: 8, Dimension: gpucore.TextureDimensionCube,
		Format: gpucore.TextureFormatRGBA16Float,
		Usage:  gpucore.TextureUsageStorageBinding | gpucore.TextureUsageTextureBinding,
	}
	colorDesc = gpucore.TextureDesc{
		Label: "color", Width: 16, Height: 8, Dimension: gpucore.TextureDimension2D,
		Format: gpucore.TextureFormatBGRA8Unorm,
		Usage:  gpucore.TextureUsageRenderAttachment | gpucore.TextureUsageTextureBinding,
	}
)

func TestCreateTextureViews(t *testing.T) {
	d := newNoopDevice(t)
	tests := []struct {
		name   string
		desc   gpucore.TextureDesc
		layers int
	}{
		{"cube", cubeDesc, 6},
		{"2d", colorDesc, 1},
		{"3d", gpucore.TextureDesc{Label: "noise", Width: 4, Height: 4, Depth: 4,
			Dimension: gpucore.TextureDimension3D, Format: gpucore.TextureFormatRGBA8Unorm}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := mustTexture(t, d, tt.desc)
			tex, _ := d.texture(id)
			if tex.sampled == nil {
				t.Error("no sampled view")
			}
			if len(tex.layers) != tt.layers {
				t.Errorf("layer views = %d, want %d", len(tex.layers), tt.layers)
			}
			got, ok := d.TextureDesc(id)
			if !ok || got != tt.desc {
				t.Errorf("TextureDesc = %+v, %v", got, ok)
			}
			d.DestroyTexture(id)
			if d.TextureValid(id) {
				t.Error("texture valid after DestroyTexture")
			}
		})
	}
}

func TestCreateTextureErrors(t *testing.T) {
	d := newNoopDevice(t)
	if _, err := d.CreateTexture(&gpucore.TextureDesc{Label: "empty", Format: gpucore.TextureFormatRGBA8Unorm}); err == nil {
		t.Error("zero-size texture accepted")
	}
	if _, err := d.CreateTexture(&gpucore.TextureDesc{Label: "odd", Width: 1, Height: 1}); err == nil {
		t.Error("unknown format accepted")
	}
}

func TestWriteTexture(t *testing.T) {
	d := newNoopDevice(t)
	id := mustTexture(t, d, cubeDesc)
	face := make([]float32, 8*8*4)

	if err := d.WriteTexture(id, 2, face); err != nil {
		t.Errorf("single layer: %v", err)
	}
	if err := d.WriteTexture(id, gpucore.AllLayers, make([]float32, len(face)*6)); err != nil {
		t.Errorf("all layers: %v", err)
	}
	if err := d.WriteTexture(id, 6, face); err == nil {
		t.Error("layer 6 accepted")
	}
	if err := d.WriteTexture(id, 0, face[:4]); err == nil {
		t.Error("short data accepted")
	}
	if err := d.WriteTexture(999, 0, face); !errors.Is(err, gpucore.ErrTextureNotFound) {
		t.Errorf("unknown texture: %v", err)
	}
}

func TestEncodeTexels(t *testing.T) {
	px := []float32{1, 0.5, 0, 2}
	tests := []struct {
		format gpucore.TextureFormat
		want   []byte
	}{
		{gpucore.TextureFormatRGBA8Unorm, []byte{255, 128, 0, 255}},
		{gpucore.TextureFormatBGRA8Unorm, []byte{0, 128, 255, 255}},
		{gpucore.TextureFormatR8Unorm, []byte{255}},
		// 1.0, 0.5, 0.0, 2.0 as little-endian binary16
		{gpucore.TextureFormatRGBA16Float, []byte{0x00, 0x3C, 0x00, 0x38, 0x00, 0x00, 0x00, 0x40}},
	}
	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			got := encodeTexels(tt.format, px)
			if string(got) != string(tt.want) {
				t.Errorf("encodeTexels = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStateUsage(t *testing.T) {
	tests := []struct {
		state gpucore.ResourceState
		want  gputypes.TextureUsage
	}{
		{gpucore.StateUndefined, 0},
		{gpucore.StateSampled, gputypes.TextureUsageTextureBinding},
		{gpucore.StateStorage, gputypes.TextureUsageStorageBinding},
		{gpucore.StateRenderTarget, gputypes.TextureUsageRenderAttachment},
	}
	for _, tt := range tests {
		if got := stateUsage(tt.state); got != tt.want {
			t.Errorf("stateUsage(%s) = %v, want %v", tt.state, got, tt.want)
		}
	}
}

func TestCreateKernelRejectsRenderFormat(t *testing.T) {
	d := newNoopDevice(t)
	_, err := d.CreateKernel(&gpucore.KernelDesc{
		Label:        "clouds",
		Source:       "@compute @workgroup_size(8, 8) fn main() {}",
		EntryPoint:   "main",
		OutputFormat: gpucore.TextureFormatBGRA8Unorm,
	})
	if err == nil {
		t.Fatal("BGRA8 output accepted")
	}
	if _, err := d.KernelWorkgroupSize(42); !errors.Is(err, gpucore.ErrKernelNotFound) {
		t.Errorf("KernelWorkgroupSize(42) = %v", err)
	}
}

func TestCompositeAndBlit(t *testing.T) {
	d := newNoopDevice(t)
	history := mustTexture(t, d, cubeDesc)
	current := mustTexture(t, d, cubeDesc)
	color := mustTexture(t, d, colorDesc)
	scratch := mustTexture(t, d, colorDesc)

	enc, err := d.BeginEncoding("frame")
	if err != nil {
		t.Fatal(err)
	}
	cmd := &gpucore.CompositeCommand{
		Current: current, History: history, Background: color, Target: scratch,
		Params: gpucore.CompositeParams{Factor: 0.5, Cube: 1},
	}
	if err := enc.Composite(cmd); !errors.Is(err, gpucore.ErrInvalidState) {
		t.Fatalf("composite before barriers = %v, want ErrInvalidState", err)
	}

	enc.Barrier([]gpucore.Barrier{
		{Texture: history, Layer: gpucore.AllLayers, After: gpucore.StateSampled},
		{Texture: current, Layer: gpucore.AllLayers, After: gpucore.StateSampled},
		{Texture: color, Layer: 0, After: gpucore.StateSampled},
		{Texture: scratch, Layer: 0, After: gpucore.StateRenderTarget},
	})
	if err := enc.Composite(cmd); err != nil {
		t.Fatalf("composite: %v", err)
	}
	enc.Barrier([]gpucore.Barrier{
		{Texture: scratch, Layer: 0, Before: gpucore.StateRenderTarget, After: gpucore.StateSampled},
		{Texture: color, Layer: 0, Before: gpucore.StateSampled, After: gpucore.StateRenderTarget},
	})
	if err := enc.Blit(scratch, color); err != nil {
		t.Fatalf("blit: %v", err)
	}
	if err := enc.Submit(); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := enc.Submit(); !errors.Is(err, gpucore.ErrEncoderClosed) {
		t.Errorf("second Submit = %v", err)
	}

	// composite cube + blit for one format
	if n := d.raster.size(); n != 2 {
		t.Errorf("cached pipelines = %d, want 2", n)
	}

	// states were committed
	tex, _ := d.texture(color)
	if tex.states[0] != gpucore.StateRenderTarget {
		t.Errorf("color state = %s after submit", tex.states[0])
	}
}

func TestSubmitReportsBarrierMismatch(t *testing.T) {
	d := newNoopDevice(t)
	id := mustTexture(t, d, cubeDesc)

	enc, err := d.BeginEncoding("bad")
	if err != nil {
		t.Fatal(err)
	}
	enc.Barrier([]gpucore.Barrier{{Texture: id, Layer: 3, Before: gpucore.StateStorage, After: gpucore.StateSampled}})
	if err := enc.Submit(); !errors.Is(err, gpucore.ErrInvalidState) {
		t.Fatalf("Submit = %v, want ErrInvalidState", err)
	}
	tex, _ := d.texture(id)
	if tex.states[3] != gpucore.StateUndefined {
		t.Errorf("failed submit changed state to %s", tex.states[3])
	}
}

func TestDiscardKeepsStates(t *testing.T) {
	d := newNoopDevice(t)
	id := mustTexture(t, d, colorDesc)
	enc, err := d.BeginEncoding("discarded")
	if err != nil {
		t.Fatal(err)
	}
	enc.Barrier([]gpucore.Barrier{{Texture: id, Layer: 0, After: gpucore.StateSampled}})
	enc.Discard()
	tex, _ := d.texture(id)
	if tex.states[0] != gpucore.StateUndefined {
		t.Errorf("discarded barrier applied: %s", tex.states[0])
	}
}

func TestImportTexture(t *testing.T) {
	d := newNoopDevice(t)
	device, _ := d.HAL()
	host, err := device.CreateTexture(&hal.TextureDescriptor{
		Label:         "swap",
		Size:          hal.Extent3D{Width: 16, Height: 8, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatBGRA8Unorm,
		Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer device.DestroyTexture(host)

	desc := colorDesc
	id, err := d.ImportTexture(host, &desc)
	if err != nil {
		t.Fatalf("ImportTexture: %v", err)
	}
	if got, ok := d.HALTexture(id); !ok || got != host {
		t.Error("HALTexture does not return the imported texture")
	}
	d.DestroyTexture(id)
	if d.TextureValid(id) {
		t.Error("imported texture still valid")
	}
}

type plainProvider struct{}

func (plainProvider) Device() gpucontext.Device             { return nil }
func (plainProvider) Queue() gpucontext.Queue               { return nil }
func (plainProvider) Adapter() gpucontext.Adapter           { return nil }
func (plainProvider) SurfaceFormat() gputypes.TextureFormat { return gputypes.TextureFormatBGRA8Unorm }

func TestNewFromProviderWithoutHAL(t *testing.T) {
	if _, err := NewFromProvider(plainProvider{}); !errors.Is(err, ErrNoHAL) {
		t.Errorf("NewFromProvider = %v, want ErrNoHAL", err)
	}
}

func TestBeginEncodingAfterDestroy(t *testing.T) {
	d := newNoopDevice(t)
	d.Destroy()
	if _, err := d.BeginEncoding("late"); !errors.Is(err, gpucore.ErrDeviceDestroyed) {
		t.Errorf("BeginEncoding = %v", err)
	}
}
