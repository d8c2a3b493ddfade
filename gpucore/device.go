package gpucore

import "errors"

// Errors shared by Device implementations.
var (
	// ErrTextureNotFound is returned when a TextureID is unknown or destroyed.
	ErrTextureNotFound = errors.New("gpucore: texture not found")

	// ErrKernelNotFound is returned when a KernelID is unknown or destroyed.
	ErrKernelNotFound = errors.New("gpucore: kernel not found")

	// ErrInvalidState is returned when a command uses a subresource that
	// was not transitioned to the state the command needs.
	ErrInvalidState = errors.New("gpucore: subresource in wrong state")

	// ErrEncoderClosed is returned when recording into a submitted or
	// discarded encoder.
	ErrEncoderClosed = errors.New("gpucore: encoder closed")

	// ErrDeviceDestroyed is returned after Destroy.
	ErrDeviceDestroyed = errors.New("gpucore: device destroyed")
)

// Device abstracts over different GPU backend implementations.
//
// The compositor only talks to a Device, so the same scheduling and
// frame-graph code drives the wgpu HAL and the CPU reference backend.
// Implementations must be safe for concurrent use.
//
// Resource lifecycle:
//   - Resources are created via Create* methods
//   - Resources must be explicitly destroyed via Destroy* methods
//   - IDs become invalid after destruction and are never reused
type Device interface {
	// Name identifies the backend in logs.
	Name() string

	// === Texture Management ===

	// CreateTexture creates a texture. Returns an error if allocation fails.
	CreateTexture(desc *TextureDesc) (TextureID, error)

	// DestroyTexture releases a texture. Unknown IDs are ignored.
	DestroyTexture(id TextureID)

	// TextureValid reports whether id refers to a live texture.
	TextureValid(id TextureID) bool

	// TextureDesc returns the descriptor the texture was created with.
	TextureDesc(id TextureID) (TextureDesc, bool)

	// WriteTexture uploads RGBA float32 texels into one layer (or the whole
	// texture with AllLayers), converting to the texture format.
	// The slice holds Width*Height*Slices*4 values per layer.
	WriteTexture(id TextureID, layer int, rgba []float32) error

	// === Kernels ===

	// CreateKernel compiles a compute kernel.
	CreateKernel(desc *KernelDesc) (KernelID, error)

	// DestroyKernel releases a kernel. Unknown IDs are ignored.
	DestroyKernel(id KernelID)

	// KernelValid reports whether id refers to a live kernel.
	KernelValid(id KernelID) bool

	// KernelWorkgroupSize returns the thread-group size the kernel declares.
	KernelWorkgroupSize(id KernelID) (WorkgroupSize, error)

	// === Command Recording ===

	// BeginEncoding starts recording a command list. Recorded work does
	// not run until Submit.
	BeginEncoding(label string) (Encoder, error)

	// Destroy releases every resource owned by the device.
	Destroy()
}

// Encoder records GPU commands. An Encoder is used by one goroutine and
// is finished by exactly one call to Submit or Discard.
type Encoder interface {
	// Barrier transitions subresources before the next command.
	Barrier(barriers []Barrier)

	// Dispatch records a compute dispatch.
	Dispatch(cmd *DispatchCommand) error

	// Composite records the cross-fade raster pass.
	Composite(cmd *CompositeCommand) error

	// Blit records a full-target copy with filtering from src onto dst.
	Blit(src, dst TextureID) error

	// Submit closes the encoder and executes the recorded work.
	// It returns once the work is complete.
	Submit() error

	// Discard drops the recorded work.
	Discard()
}

// NoiseInputs are the read-only textures the cloud kernel samples.
type NoiseInputs struct {
	Base    TextureID // 3D base shape noise
	Detail  TextureID // 3D detail erosion noise
	Curl    TextureID // 2D curl distortion
	Weather TextureID // 2D coverage map
}

// IDs returns the inputs in binding order.
func (n NoiseInputs) IDs() [4]TextureID {
	return [4]TextureID{n.Base, n.Detail, n.Curl, n.Weather}
}

// Names returns the input names in binding order.
func (NoiseInputs) Names() [4]string {
	return [4]string{"base", "detail", "curl", "weather"}
}

// DispatchCommand is one compute workload.
type DispatchCommand struct {
	Kernel KernelID

	// Output is the storage target and Layer the face written for cube
	// targets (0 for 2D).
	Output TextureID
	Layer  int

	Inputs NoiseInputs
	Params CloudParams

	// Groups is the dispatch grid in workgroups.
	Groups [3]uint32

	// Async requests the async compute queue.
	Async bool
}

// CompositeCommand cross-fades history to current over a background.
//
//	rgb = mix(background.rgb, lerp(history, current, Factor).rgb, alpha)
type CompositeCommand struct {
	Current    TextureID
	History    TextureID
	Background TextureID
	Target     TextureID

	Params CompositeParams

	// Clear clears the target before drawing.
	Clear bool
}
