package gpucore

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestTextureDescLayers(t *testing.T) {
	tests := []struct {
		name   string
		desc   TextureDesc
		layers int
		texels int
	}{
		{"2D", TextureDesc{Width: 4, Height: 2, Dimension: TextureDimension2D}, 1, 8},
		{"cube", TextureDesc{Width: 4, Height: 4, Dimension: TextureDimensionCube}, 6, 96},
		{"3D", TextureDesc{Width: 2, Height: 2, Depth: 3, Dimension: TextureDimension3D}, 1, 12},
		{"3D zero depth", TextureDesc{Width: 2, Height: 2, Dimension: TextureDimension3D}, 1, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.desc.Layers(); got != tt.layers {
				t.Errorf("Layers() = %d, want %d", got, tt.layers)
			}
			if got := tt.desc.TexelCount(); got != tt.texels {
				t.Errorf("TexelCount() = %d, want %d", got, tt.texels)
			}
		})
	}
}

func TestTextureFormat(t *testing.T) {
	tests := []struct {
		format  TextureFormat
		name    string
		bpt     int
		storage bool
	}{
		{TextureFormatRGBA8Unorm, "RGBA8Unorm", 4, true},
		{TextureFormatBGRA8Unorm, "BGRA8Unorm", 4, false},
		{TextureFormatR8Unorm, "R8Unorm", 1, false},
		{TextureFormatRGBA16Float, "RGBA16Float", 8, true},
		{TextureFormatRGBA32Float, "RGBA32Float", 16, true},
		{TextureFormat(99), "Unknown", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.format.String(); got != tt.name {
				t.Errorf("String() = %q, want %q", got, tt.name)
			}
			if got := tt.format.BytesPerTexel(); got != tt.bpt {
				t.Errorf("BytesPerTexel() = %d, want %d", got, tt.bpt)
			}
			if got := tt.format.StorageCapable(); got != tt.storage {
				t.Errorf("StorageCapable() = %v, want %v", got, tt.storage)
			}
		})
	}
}

func TestCloudParamsLayout(t *testing.T) {
	p := CloudParams{
		Width:                 1024,
		Height:                512,
		Face:                  3,
		Frame:                 77,
		DensityThreshold:      0.25,
		HighFreqNoiseStrength: 0.0002,
		CoverageMultiplier:    1.5,
	}
	p.CameraToWorld[15] = 1
	p.InverseProjection[0] = 2

	b := p.Bytes()
	if len(b) != CloudParamsSize {
		t.Fatalf("len = %d, want %d", len(b), CloudParamsSize)
	}

	f32 := func(off int) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(b[off:])) }
	u32 := func(off int) uint32 { return binary.LittleEndian.Uint32(b[off:]) }

	if f32(60) != 1 {
		t.Errorf("camera_to_world[3][3] = %v, want 1", f32(60))
	}
	if f32(64) != 2 {
		t.Errorf("inverse_projection[0][0] = %v, want 2", f32(64))
	}
	if u32(128) != 1024 || u32(132) != 512 || u32(136) != 3 || u32(140) != 77 {
		t.Errorf("dims = %d %d %d %d", u32(128), u32(132), u32(136), u32(140))
	}
	if f32(144) != 0.25 || f32(148) != 0.0002 || f32(152) != 1.5 {
		t.Errorf("tuning = %v %v %v", f32(144), f32(148), f32(152))
	}
}

func TestCompositeParamsLayout(t *testing.T) {
	p := CompositeParams{Factor: 0.5, Cube: 1}
	b := p.Bytes()
	if len(b) != CompositeParamsSize {
		t.Fatalf("len = %d, want %d", len(b), CompositeParamsSize)
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(b[64:])); got != 0.5 {
		t.Errorf("factor = %v, want 0.5", got)
	}
	if got := binary.LittleEndian.Uint32(b[68:]); got != 1 {
		t.Errorf("cube = %d, want 1", got)
	}
}

func TestResourceStateString(t *testing.T) {
	tests := []struct {
		s    ResourceState
		want string
	}{
		{StateUndefined, "Undefined"},
		{StateSampled, "Sampled"},
		{StateStorage, "Storage"},
		{StateRenderTarget, "RenderTarget"},
		{ResourceState(42), "Unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}
