package gpucore

// Resource IDs
//
// These opaque IDs represent GPU resources. Each device implementation
// maintains a mapping between IDs and actual backend resources.
// IDs are uint64 to accommodate various backend handle sizes.

// TextureID is an opaque handle to a GPU texture.
type TextureID uint64

// KernelID is an opaque handle to a compiled compute kernel
// (shader module + pipeline + bind group layout).
type KernelID uint64

// InvalidID is the zero value, representing an invalid/null resource.
const InvalidID = 0

// AllLayers selects every array layer of a texture in a barrier or write.
const AllLayers = -1

// CubeFaces is the number of array layers of a cube texture.
const CubeFaces = 6

// TextureFormat specifies the format of texture data.
type TextureFormat uint32

// Texture formats.
const (
	// TextureFormatRGBA8Unorm is 8-bit RGBA, normalized unsigned integer.
	TextureFormatRGBA8Unorm TextureFormat = iota + 1

	// TextureFormatBGRA8Unorm is 8-bit BGRA, normalized unsigned integer.
	// Typical swapchain and camera color format.
	TextureFormatBGRA8Unorm

	// TextureFormatR8Unorm is 8-bit red channel only, normalized unsigned integer.
	TextureFormatR8Unorm

	// TextureFormatRGBA16Float is 16-bit RGBA, half precision floating point.
	// Default format of the cloud buffers.
	TextureFormatRGBA16Float

	// TextureFormatRGBA32Float is 32-bit RGBA, floating point.
	TextureFormatRGBA32Float
)

// String returns the format name.
func (f TextureFormat) String() string {
	switch f {
	case TextureFormatRGBA8Unorm:
		return "RGBA8Unorm"
	case TextureFormatBGRA8Unorm:
		return "BGRA8Unorm"
	case TextureFormatR8Unorm:
		return "R8Unorm"
	case TextureFormatRGBA16Float:
		return "RGBA16Float"
	case TextureFormatRGBA32Float:
		return "RGBA32Float"
	default:
		return "Unknown"
	}
}

// BytesPerTexel returns the size of one texel in bytes, or 0 for unknown formats.
func (f TextureFormat) BytesPerTexel() int {
	switch f {
	case TextureFormatR8Unorm:
		return 1
	case TextureFormatRGBA8Unorm, TextureFormatBGRA8Unorm:
		return 4
	case TextureFormatRGBA16Float:
		return 8
	case TextureFormatRGBA32Float:
		return 16
	default:
		return 0
	}
}

// StorageCapable reports whether the format can be bound as a write-only
// storage texture in a compute kernel.
func (f TextureFormat) StorageCapable() bool {
	switch f {
	case TextureFormatRGBA8Unorm, TextureFormatRGBA16Float, TextureFormatRGBA32Float:
		return true
	default:
		return false
	}
}

// TextureDimension specifies the shape of a texture.
type TextureDimension uint32

// Texture dimensions.
const (
	// TextureDimension2D is a single 2D image.
	TextureDimension2D TextureDimension = iota + 1

	// TextureDimension3D is a volume. Depth holds the slice count.
	TextureDimension3D

	// TextureDimensionCube is a 2D array of six square faces
	// ordered +X, -X, +Y, -Y, +Z, -Z.
	TextureDimensionCube
)

// String returns the dimension name.
func (d TextureDimension) String() string {
	switch d {
	case TextureDimension2D:
		return "2D"
	case TextureDimension3D:
		return "3D"
	case TextureDimensionCube:
		return "Cube"
	default:
		return "Unknown"
	}
}

// TextureUsage is a bitmask specifying how a texture will be used.
type TextureUsage uint32

// Texture usage flags.
const (
	// TextureUsageCopySrc indicates the texture can be used as a copy source.
	TextureUsageCopySrc TextureUsage = 1 << 0

	// TextureUsageCopyDst indicates the texture can be used as a copy destination.
	TextureUsageCopyDst TextureUsage = 1 << 1

	// TextureUsageTextureBinding indicates the texture can be bound as a sampled texture.
	TextureUsageTextureBinding TextureUsage = 1 << 2

	// TextureUsageStorageBinding indicates the texture can be bound as a storage texture.
	TextureUsageStorageBinding TextureUsage = 1 << 3

	// TextureUsageRenderAttachment indicates the texture can be used as a render target.
	TextureUsageRenderAttachment TextureUsage = 1 << 4
)

// TextureDesc describes a texture to create.
type TextureDesc struct {
	// Label is an optional debug label.
	Label string

	// Width and Height are the texel dimensions of one layer.
	Width  uint32
	Height uint32

	// Depth is the slice count of a 3D texture. Ignored otherwise.
	Depth uint32

	Dimension TextureDimension
	Format    TextureFormat
	Usage     TextureUsage
}

// Layers returns the number of independently addressable layers:
// 6 for a cube, 1 otherwise.
func (d *TextureDesc) Layers() int {
	if d.Dimension == TextureDimensionCube {
		return CubeFaces
	}
	return 1
}

// Slices returns the depth of a 3D texture, or 1.
func (d *TextureDesc) Slices() int {
	if d.Dimension == TextureDimension3D && d.Depth > 0 {
		return int(d.Depth)
	}
	return 1
}

// TexelCount returns the number of texels in the whole texture.
func (d *TextureDesc) TexelCount() int {
	return int(d.Width) * int(d.Height) * d.Layers() * d.Slices()
}

// ResourceState is the usage a texture subresource is in on the GPU timeline.
// Barriers move subresources between states.
type ResourceState uint32

// Resource states.
const (
	// StateUndefined means the contents may be discarded.
	StateUndefined ResourceState = iota

	// StateSampled is read-only access from a shader.
	StateSampled

	// StateStorage is write access from a compute kernel.
	StateStorage

	// StateRenderTarget is color attachment write access.
	StateRenderTarget
)

// String returns the state name.
func (s ResourceState) String() string {
	switch s {
	case StateUndefined:
		return "Undefined"
	case StateSampled:
		return "Sampled"
	case StateStorage:
		return "Storage"
	case StateRenderTarget:
		return "RenderTarget"
	default:
		return "Unknown"
	}
}

// Barrier transitions one texture subresource between states.
type Barrier struct {
	Texture TextureID

	// Layer is the array layer, or AllLayers.
	Layer int

	Before ResourceState
	After  ResourceState

	// CrossQueue marks an ownership transfer between the async compute
	// queue and the graphics queue.
	CrossQueue bool
}

// WorkgroupSize is the declared thread-group size of a compute kernel.
type WorkgroupSize [3]uint32

// KernelDesc describes a compute kernel.
type KernelDesc struct {
	// Label is an optional debug label.
	Label string

	// Source is the WGSL source code.
	Source string

	// EntryPoint is the name of the @compute function.
	EntryPoint string

	// OutputFormat is the storage format the kernel writes.
	OutputFormat TextureFormat

	// OutputCube makes the kernel write into one layer of a cube texture.
	OutputCube bool
}
