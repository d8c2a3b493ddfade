package clouds

import (
	"fmt"
	"time"

	"github.com/gogpu/clouds/gpucore"
)

// Mode selects what one cycle renders.
type Mode int

const (
	// ModeCubemap renders a six-face cube, one face per frame.
	ModeCubemap Mode = iota

	// ModeScreen renders a single screen-sized target in one frame.
	ModeScreen
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeCubemap:
		return "cubemap"
	case ModeScreen:
		return "screen"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// LayerMask is a set of render layers, one bit per layer.
type LayerMask uint32

// DefaultCloudLayer is the layer clouds render on by default.
const DefaultCloudLayer LayerMask = 1

// AllLayers matches every layer.
const AllLayers LayerMask = ^LayerMask(0)

// Includes reports whether m shares any layer with other.
func (m LayerMask) Includes(other LayerMask) bool { return m&other != 0 }

// Tuning are the scalar parameters passed to the cloud kernel.
type Tuning struct {
	// DensityThreshold cuts density below this value. Range [0, 1].
	DensityThreshold float32

	// HighFreqNoiseStrength scales detail erosion. Range [0, 0.05].
	HighFreqNoiseStrength float32

	// CoverageMultiplier scales the weather map coverage. Range [0, 2].
	CoverageMultiplier float32
}

// Config holds the compositor parameters.
type Config struct {
	// UpdateInterval is the time between the starts of two cycles.
	UpdateInterval time.Duration

	// BlendDuration is the cross-fade length, clamped to UpdateInterval.
	BlendDuration time.Duration

	// Width and Height size each buffer slot (per face in ModeCubemap).
	Width  uint32
	Height uint32

	// Format must be storage capable.
	Format gpucore.TextureFormat

	Mode Mode

	// CloudLayer must intersect a camera's culling mask for the camera
	// to receive clouds.
	CloudLayer LayerMask

	Tuning Tuning

	// ClearComposite clears the composite target before drawing. Every
	// pixel is overwritten either way.
	ClearComposite bool

	// AsyncCompute runs the cloud kernel on the async compute queue where
	// the backend has one.
	AsyncCompute bool
}

// DefaultConfig returns an 8 second interval with a 2 second blend over a
// 1024x1024 RGBA16Float cubemap.
func DefaultConfig() Config {
	return Config{
		UpdateInterval: 8 * time.Second,
		BlendDuration:  2 * time.Second,
		Width:          1024,
		Height:         1024,
		Format:         gpucore.TextureFormatRGBA16Float,
		Mode:           ModeCubemap,
		CloudLayer:     DefaultCloudLayer,
		Tuning: Tuning{
			DensityThreshold:      0,
			HighFreqNoiseStrength: 0.0002,
			CoverageMultiplier:    1,
		},
	}
}

// Validate checks ranges. A BlendDuration longer than UpdateInterval is
// valid and gets clamped.
func (c *Config) Validate() error {
	switch {
	case c.UpdateInterval <= 0:
		return fmt.Errorf("%w: update interval %v must be > 0", ErrInvalidConfig, c.UpdateInterval)
	case c.BlendDuration < 0:
		return fmt.Errorf("%w: blend duration %v must be >= 0", ErrInvalidConfig, c.BlendDuration)
	case c.Width == 0 || c.Height == 0:
		return fmt.Errorf("%w: size %dx%d", ErrInvalidConfig, c.Width, c.Height)
	case c.Mode == ModeCubemap && c.Width != c.Height:
		return fmt.Errorf("%w: cube faces must be square, got %dx%d", ErrInvalidConfig, c.Width, c.Height)
	case !c.Format.StorageCapable():
		return fmt.Errorf("%w: format %s is not storage capable", ErrInvalidConfig, c.Format)
	case c.Mode != ModeCubemap && c.Mode != ModeScreen:
		return fmt.Errorf("%w: %s", ErrInvalidConfig, c.Mode)
	case c.CloudLayer == 0:
		return fmt.Errorf("%w: empty cloud layer", ErrInvalidConfig)
	}
	t := c.Tuning
	if !inRange(t.DensityThreshold, 0, 1) {
		return fmt.Errorf("%w: density threshold %v outside [0, 1]", ErrInvalidConfig, t.DensityThreshold)
	}
	if !inRange(t.HighFreqNoiseStrength, 0, 0.05) {
		return fmt.Errorf("%w: high frequency noise strength %v outside [0, 0.05]", ErrInvalidConfig, t.HighFreqNoiseStrength)
	}
	if !inRange(t.CoverageMultiplier, 0, 2) {
		return fmt.Errorf("%w: coverage multiplier %v outside [0, 2]", ErrInvalidConfig, t.CoverageMultiplier)
	}
	return nil
}

func inRange(v, lo, hi float32) bool { return v >= lo && v <= hi }

// EffectiveBlendDuration returns min(BlendDuration, UpdateInterval).
func (c *Config) EffectiveBlendDuration() time.Duration {
	return min(max(c.BlendDuration, 0), c.UpdateInterval)
}

// UnitCount returns the number of frames one cycle spends rendering.
func (c *Config) UnitCount() int {
	if c.Mode == ModeCubemap {
		return gpucore.CubeFaces
	}
	return 1
}

// bufferDesc describes one double-buffer slot.
func (c *Config) bufferDesc() gpucore.TextureDesc {
	dim := gpucore.TextureDimension2D
	if c.Mode == ModeCubemap {
		dim = gpucore.TextureDimensionCube
	}
	return gpucore.TextureDesc{
		Label:     "clouds",
		Width:     c.Width,
		Height:    c.Height,
		Depth:     1,
		Dimension: dim,
		Format:    c.Format,
		Usage:     gpucore.TextureUsageStorageBinding | gpucore.TextureUsageTextureBinding,
	}
}
