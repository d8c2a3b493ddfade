package clouds

import (
	"math"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/clouds/backend/software"
	"github.com/gogpu/clouds/gpucore"
)

type cpuScene struct {
	dev    *software.Device
	inputs gpucore.NoiseInputs
	target gpucore.TextureID
	camera Camera
}

func constant(n int, c [4]float32) []float32 {
	out := make([]float32, 0, n*4)
	for i := 0; i < n; i++ {
		out = append(out, c[:]...)
	}
	return out
}

func newCPUScene(t *testing.T) *cpuScene {
	t.Helper()
	dev := software.New()
	t.Cleanup(dev.Destroy)

	upload := func(name string, desc gpucore.TextureDesc, c [4]float32) gpucore.TextureID {
		desc.Label = name
		id, err := dev.CreateTexture(&desc)
		if err != nil {
			t.Fatal(err)
		}
		if err := dev.WriteTexture(id, gpucore.AllLayers, constant(desc.TexelCount(), c)); err != nil {
			t.Fatal(err)
		}
		return id
	}
	vol := gpucore.TextureDesc{Width: 4, Height: 4, Depth: 4, Dimension: gpucore.TextureDimension3D, Format: gpucore.TextureFormatRGBA8Unorm}
	flat := gpucore.TextureDesc{Width: 4, Height: 4, Dimension: gpucore.TextureDimension2D, Format: gpucore.TextureFormatRGBA8Unorm}
	color := gpucore.TextureDesc{Width: 8, Height: 8, Dimension: gpucore.TextureDimension2D, Format: gpucore.TextureFormatRGBA8Unorm}

	cam := DefaultCamera()
	cam.Rotation = mgl32.QuatRotate(math.Pi/2, mgl32.Vec3{1, 0, 0}) // look up

	return &cpuScene{
		dev: dev,
		inputs: gpucore.NoiseInputs{
			Base:    upload("base", vol, [4]float32{1, 1, 1, 1}),
			Detail:  upload("detail", vol, [4]float32{0, 0, 0, 1}),
			Curl:    upload("curl", flat, [4]float32{0.5, 0.5, 0, 1}),
			Weather: upload("weather", flat, [4]float32{1, 0, 0, 1}),
		},
		target: upload("color", color, [4]float32{0, 0, 1, 1}),
		camera: cam,
	}
}

func (s *cpuScene) frame() *FrameContext {
	return &FrameContext{Camera: s.camera, Target: s.target}
}

func TestSoftwareCubemapCycle(t *testing.T) {
	s := newCPUScene(t)
	cfg := DefaultConfig()
	cfg.Width, cfg.Height = 8, 8
	c := New(s.dev, s.inputs, WithConfig(cfg))
	if err := c.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer c.Shutdown()

	var swapped bool
	for i := 0; i < 8; i++ {
		dt := time.Second
		if i == 0 {
			dt = 0
		}
		r := c.Tick(dt, s.frame())
		if r.Skipped || r.Err != nil {
			t.Fatalf("frame %d: reason %q err %v", r.Frame, r.Reason, r.Err)
		}
		if i < 6 {
			// nothing displayed yet: the background shows through
			px, _ := s.dev.Texel(s.target, 0, 4, 4)
			if px != ([4]float32{0, 0, 1, 1}) {
				t.Fatalf("frame %d: target = %v before the first swap", r.Frame, px)
			}
		}
		swapped = swapped || r.Swapped
	}
	if !swapped {
		t.Fatal("no swap after a full cycle")
	}

	display := c.DisplayTexture()
	up, err := s.dev.Texel(display, 2, 4, 4)
	if err != nil {
		t.Fatal(err)
	}
	if up[3] < 0.5 {
		t.Errorf("+Y face coverage = %v, want clouds overhead", up[3])
	}
	down, _ := s.dev.Texel(display, 3, 4, 4)
	if down[3] != 0 {
		t.Errorf("-Y face coverage = %v, want none below the horizon", down[3])
	}

	px, _ := s.dev.Texel(s.target, 0, 4, 4)
	if px[2] > 0.9 && px[0] < 0.1 {
		t.Errorf("target = %v, clouds not composited", px)
	}
	if px[3] != 1 {
		t.Errorf("target alpha = %v, want background alpha kept", px[3])
	}
}

func TestSoftwareScreenMode(t *testing.T) {
	s := newCPUScene(t)
	cfg := DefaultConfig()
	cfg.Mode = ModeScreen
	cfg.Width, cfg.Height = 8, 8
	cfg.BlendDuration = time.Second
	cfg.ClearComposite = true
	c := New(s.dev, s.inputs, WithConfig(cfg))
	if err := c.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer c.Shutdown()

	var last FrameReport
	for i := 0; i < 4; i++ {
		last = c.Tick(500*time.Millisecond, s.frame())
		if last.Skipped {
			t.Fatalf("frame %d: reason %q err %v", last.Frame, last.Reason, last.Err)
		}
	}
	if c.Stats().CyclesCompleted != 1 {
		t.Fatalf("stats = %+v", c.Stats())
	}
	center, _ := s.dev.Texel(c.DisplayTexture(), 0, 4, 4)
	if center[3] < 0.5 {
		t.Errorf("screen center coverage = %v, want clouds", center[3])
	}
}

func TestSoftwareRejectsUnknownEntryPoint(t *testing.T) {
	s := newCPUScene(t)
	c := New(s.dev, s.inputs, WithKernelEntryPoint("Missing"))
	if err := c.Initialize(); err == nil {
		t.Fatal("Initialize succeeded without a kernel")
	}
}
