package clouds

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/gogpu/clouds/gpucore"
	"github.com/gogpu/clouds/internal/gputest"
)

type fakeScene struct {
	dev    *gputest.Device
	inputs gpucore.NoiseInputs
	target gpucore.TextureID
}

func newFakeScene(t *testing.T) *fakeScene {
	t.Helper()
	dev := gputest.New()
	mk := func(dim gpucore.TextureDimension, w, h, d uint32, f gpucore.TextureFormat) gpucore.TextureID {
		id, err := dev.CreateTexture(&gpucore.TextureDesc{Width: w, Height: h, Depth: d, Dimension: dim, Format: f})
		if err != nil {
			t.Fatal(err)
		}
		return id
	}
	return &fakeScene{
		dev: dev,
		inputs: gpucore.NoiseInputs{
			Base:    mk(gpucore.TextureDimension3D, 8, 8, 8, gpucore.TextureFormatRGBA8Unorm),
			Detail:  mk(gpucore.TextureDimension3D, 4, 4, 4, gpucore.TextureFormatRGBA8Unorm),
			Curl:    mk(gpucore.TextureDimension2D, 8, 8, 1, gpucore.TextureFormatRGBA8Unorm),
			Weather: mk(gpucore.TextureDimension2D, 8, 8, 1, gpucore.TextureFormatRGBA8Unorm),
		},
		target: mk(gpucore.TextureDimension2D, 16, 8, 1, gpucore.TextureFormatBGRA8Unorm),
	}
}

func (s *fakeScene) frame() *FrameContext {
	return &FrameContext{Camera: DefaultCamera(), Target: s.target}
}

func smallConfig(mode Mode) Config {
	cfg := DefaultConfig()
	cfg.Width, cfg.Height = 16, 16
	cfg.Mode = mode
	return cfg
}

func newFakeCompositor(t *testing.T, s *fakeScene, cfg Config, opts ...Option) *Compositor {
	t.Helper()
	c := New(s.dev, s.inputs, append([]Option{WithConfig(cfg)}, opts...)...)
	if err := c.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(c.Shutdown)
	return c
}

func TestInitializeErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s *fakeScene, cfg *Config) []Option
		want    error
		inError []string
	}{
		{
			name: "zero interval",
			mutate: func(_ *fakeScene, cfg *Config) []Option {
				cfg.UpdateInterval = 0
				return nil
			},
			want: ErrInvalidConfig,
		},
		{
			name: "tuning out of range",
			mutate: func(_ *fakeScene, cfg *Config) []Option {
				cfg.Tuning.HighFreqNoiseStrength = 0.5
				return nil
			},
			want: ErrInvalidConfig,
		},
		{
			name: "missing kernel",
			mutate: func(*fakeScene, *Config) []Option {
				return []Option{WithKernel("", "")}
			},
			want: ErrMissingKernel,
		},
		{
			name: "missing inputs named",
			mutate: func(s *fakeScene, _ *Config) []Option {
				s.dev.Invalidate(s.inputs.Curl)
				s.dev.Invalidate(s.inputs.Weather)
				return nil
			},
			want:    ErrMissingInput,
			inError: []string{"curl", "weather"},
		},
		{
			name: "slot allocation",
			mutate: func(s *fakeScene, _ *Config) []Option {
				s.dev.FailCreateTexture = 2
				return nil
			},
			want: ErrResourceInvalid,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newFakeScene(t)
			cfg := smallConfig(ModeCubemap)
			extra := tt.mutate(s, &cfg)
			opts := append([]Option{WithConfig(cfg)}, extra...)
			live := s.dev.LiveTextures()

			c := New(s.dev, s.inputs, opts...)
			err := c.Initialize()
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			for _, name := range tt.inError {
				if !strings.Contains(err.Error(), name) {
					t.Errorf("error %q does not name %q", err, name)
				}
			}
			if got := s.dev.LiveTextures(); got != live {
				t.Errorf("live textures = %d, want %d", got, live)
			}
			if c.State() != StateDisabled {
				t.Errorf("state = %s, want Disabled", c.State())
			}
			r := c.Tick(time.Second, s.frame())
			if !r.Skipped || !errors.Is(r.Err, ErrDisabled) {
				t.Errorf("tick after failure = %+v", r)
			}
		})
	}
}

func TestTickBeforeInitialize(t *testing.T) {
	s := newFakeScene(t)
	c := New(s.dev, s.inputs)
	r := c.Tick(time.Second, s.frame())
	if !r.Skipped || r.Reason != SkipNotInitialized || !errors.Is(r.Err, ErrNotInitialized) {
		t.Errorf("report = %+v", r)
	}
	if c.BlendFactor() != 1 {
		t.Errorf("BlendFactor = %v, want 1", c.BlendFactor())
	}
}

func TestCubemapCycle(t *testing.T) {
	s := newFakeScene(t)
	c := newFakeCompositor(t, s, smallConfig(ModeCubemap))
	first := c.DisplayTexture()

	// t=0..5s render faces 0..5
	for unit := 0; unit < 6; unit++ {
		dt := time.Second
		if unit == 0 {
			dt = 0
		}
		r := c.Tick(dt, s.frame())
		if r.Skipped || r.Err != nil {
			t.Fatalf("unit %d: %+v", unit, r)
		}
		if r.Action != ActionRender || r.Unit != unit {
			t.Fatalf("frame %d: action %s unit %d", r.Frame, r.Action, r.Unit)
		}
		want := []string{passCompute, passComposite, passBlit}
		if strings.Join(r.Passes, ",") != strings.Join(want, ",") {
			t.Errorf("passes = %v, want %v", r.Passes, want)
		}
		if r.Factor != 1 {
			t.Errorf("factor while rendering = %v, want 1", r.Factor)
		}
	}
	if c.State() != StateBlending {
		t.Fatalf("state after 6 units = %s, want Blending", c.State())
	}

	dispatches := s.dev.Ops("dispatch")
	if len(dispatches) != 6 {
		t.Fatalf("dispatches = %d, want 6", len(dispatches))
	}
	for i, op := range dispatches {
		if op.Dispatch.Layer != i || op.Dispatch.Params.Face != uint32(i) {
			t.Errorf("dispatch %d wrote layer %d", i, op.Dispatch.Layer)
		}
		if op.Dispatch.Output == first {
			t.Errorf("dispatch %d wrote the displayed slot", i)
		}
		if op.Dispatch.Groups != [3]uint32{2, 2, 1} {
			t.Errorf("groups = %v", op.Dispatch.Groups)
		}
	}

	// t=6s: halfway through the blend
	r := c.Tick(time.Second, s.frame())
	if r.Action != ActionBlend || r.Factor < 0.49 || r.Factor > 0.51 {
		t.Fatalf("blend frame: %+v", r)
	}
	comps := s.dev.Ops("composite")
	last := comps[len(comps)-1].Compose
	if last.History != first || last.Current == first {
		t.Errorf("blend composite current=%d history=%d, displayed %d", last.Current, last.History, first)
	}
	if last.Params.Factor != r.Factor || last.Params.Cube != 1 {
		t.Errorf("composite params = %+v", last.Params)
	}
	if c.DisplayTexture() != first {
		t.Error("display swapped before the blend finished")
	}

	// t=7s: blend done, swap
	r = c.Tick(time.Second, s.frame())
	if !r.Swapped || r.Factor != 1 || r.State != StateIdle {
		t.Fatalf("swap frame: %+v", r)
	}
	if c.DisplayTexture() == first {
		t.Error("display not swapped")
	}

	// t=8s: next cycle, start to start
	r = c.Tick(time.Second, s.frame())
	if r.Action != ActionRender || r.Unit != 0 {
		t.Fatalf("t=8s: %+v", r)
	}
	if got := s.dev.Ops("dispatch"); got[len(got)-1].Dispatch.Output != first {
		t.Error("second cycle did not write the previously displayed slot")
	}
	st := c.Stats()
	if st.CyclesCompleted != 1 || st.UnitsRendered != 7 || st.FramesSkipped != 0 {
		t.Errorf("stats = %+v", st)
	}
}

func TestScreenModeOneUnit(t *testing.T) {
	s := newFakeScene(t)
	c := newFakeCompositor(t, s, smallConfig(ModeScreen))

	r := c.Tick(0, s.frame())
	if r.Unit != 0 || c.State() != StateBlending {
		t.Fatalf("report = %+v, state %s", r, c.State())
	}
	op := s.dev.Ops("dispatch")[0].Dispatch
	if op.Layer != 0 {
		t.Errorf("layer = %d", op.Layer)
	}
	comp := s.dev.Ops("composite")[0].Compose
	if comp.Params.Cube != 0 {
		t.Error("screen mode composited as cube")
	}
}

func TestIneligibleFrame(t *testing.T) {
	tests := []struct {
		name   string
		frame  func(s *fakeScene) *FrameContext
		reason SkipReason
	}{
		{
			name: "backbuffer",
			frame: func(s *fakeScene) *FrameContext {
				f := s.frame()
				f.Backbuffer = true
				return f
			},
			reason: SkipBackbuffer,
		},
		{
			name: "layer mismatch",
			frame: func(s *fakeScene) *FrameContext {
				f := s.frame()
				f.Camera.CullingMask = 1 << 5
				return f
			},
			reason: SkipLayer,
		},
		{
			name:   "nil frame",
			frame:  func(*fakeScene) *FrameContext { return nil },
			reason: SkipLayer,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newFakeScene(t)
			c := newFakeCompositor(t, s, smallConfig(ModeCubemap))
			c.Tick(0, s.frame())
			c.Tick(time.Second, s.frame())
			before := c.Stats()
			submits := s.dev.Submits

			for i := 0; i < 20; i++ {
				r := c.Tick(time.Second, tt.frame(s))
				if !r.Skipped || r.Reason != tt.reason || r.Err != nil || len(r.Passes) != 0 {
					t.Fatalf("report = %+v", r)
				}
			}
			if s.dev.Submits != submits {
				t.Errorf("ineligible frames submitted work")
			}
			after := c.Stats()
			if after.Progress != before.Progress || after.State != before.State {
				t.Errorf("scheduler moved: %+v -> %+v", before, after)
			}

			// the clock did not advance either: the cycle continues with unit 2
			r := c.Tick(time.Second, s.frame())
			if r.Unit != 2 {
				t.Errorf("unit after ineligible frames = %d, want 2", r.Unit)
			}
		})
	}
}

func TestInvalidatedSlotDiscardsCycle(t *testing.T) {
	s := newFakeScene(t)
	c := newFakeCompositor(t, s, smallConfig(ModeCubemap))
	for i := 0; i < 3; i++ {
		c.Tick(time.Second, s.frame())
	}
	if p := c.Stats().Progress; p != 3 {
		t.Fatalf("progress = %d, want 3", p)
	}
	display := c.DisplayTexture()
	s.dev.Invalidate(c.buffers.NextWriteSlot())

	r := c.Tick(time.Second, s.frame())
	if !r.Skipped || r.Reason != SkipResource || !errors.Is(r.Err, ErrResourceInvalid) {
		t.Fatalf("report = %+v", r)
	}
	if r.State != StateIdle || r.Swapped {
		t.Errorf("state = %s swapped = %v", r.State, r.Swapped)
	}
	if c.DisplayTexture() != display {
		t.Error("display slot changed")
	}
	if st := c.Stats(); st.CyclesAborted != 1 || st.CyclesCompleted != 0 {
		t.Errorf("stats = %+v", st)
	}

	// repaired slot, fresh cycle from unit 0 on the next frame
	r = c.Tick(time.Second, s.frame())
	if r.Skipped || r.Unit != 0 || r.Action != ActionRender {
		t.Fatalf("restart: %+v", r)
	}
}

func TestMissingInputMidRun(t *testing.T) {
	s := newFakeScene(t)
	c := newFakeCompositor(t, s, smallConfig(ModeCubemap))
	c.Tick(0, s.frame())

	s.dev.Invalidate(s.inputs.Detail)
	r := c.Tick(time.Second, s.frame())
	if !errors.Is(r.Err, ErrMissingInput) || r.Reason != SkipMissingInput {
		t.Fatalf("report = %+v", r)
	}
	if !strings.Contains(r.Err.Error(), "detail") {
		t.Errorf("error %q does not name the input", r.Err)
	}
	if c.State() != StateIdle {
		t.Errorf("state = %s, want Idle", c.State())
	}
}

func TestDispatchFailureRetriesUnit(t *testing.T) {
	s := newFakeScene(t)
	c := newFakeCompositor(t, s, smallConfig(ModeCubemap))
	c.Tick(0, s.frame())
	c.Tick(time.Second, s.frame())

	s.dev.FailDispatch = true
	for i := 0; i < 3; i++ {
		r := c.Tick(time.Second, s.frame())
		if !errors.Is(r.Err, ErrDispatch) || !errors.Is(r.Err, gputest.ErrInjected) {
			t.Fatalf("report = %+v", r)
		}
		if r.Unit != -1 {
			t.Errorf("failed unit reported as %d", r.Unit)
		}
	}
	if p := c.Stats().Progress; p != 2 {
		t.Fatalf("progress = %d, want 2", p)
	}

	s.dev.FailDispatch = false
	if r := c.Tick(time.Second, s.frame()); r.Unit != 2 || r.Err != nil {
		t.Errorf("retry: %+v", r)
	}
}

func TestConfigurableOpenQuestions(t *testing.T) {
	tests := []struct {
		name         string
		clear, async bool
	}{
		{"defaults", false, false},
		{"clear", true, false},
		{"async", false, true},
		{"both", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newFakeScene(t)
			cfg := smallConfig(ModeCubemap)
			cfg.ClearComposite, cfg.AsyncCompute = tt.clear, tt.async
			c := newFakeCompositor(t, s, cfg)
			c.Tick(0, s.frame())

			if got := s.dev.Ops("composite")[0].Compose.Clear; got != tt.clear {
				t.Errorf("clear = %v, want %v", got, tt.clear)
			}
			if got := s.dev.Ops("dispatch")[0].Dispatch.Async; got != tt.async {
				t.Errorf("async = %v, want %v", got, tt.async)
			}
		})
	}
}

func TestShutdownReleasesEverything(t *testing.T) {
	s := newFakeScene(t)
	live := s.dev.LiveTextures()
	c := New(s.dev, s.inputs, WithConfig(smallConfig(ModeCubemap)))
	if err := c.Initialize(); err != nil {
		t.Fatal(err)
	}
	c.Tick(0, s.frame())
	c.Shutdown()

	if got := s.dev.LiveTextures(); got != live {
		t.Errorf("live textures = %d, want %d", got, live)
	}
	if r := c.Tick(time.Second, s.frame()); !errors.Is(r.Err, ErrDisabled) {
		t.Errorf("tick after shutdown = %+v", r)
	}
	if c.DisplayTexture() != gpucore.InvalidID {
		t.Error("display texture after shutdown")
	}

	if err := c.Initialize(); err != nil {
		t.Fatalf("re-Initialize: %v", err)
	}
	defer c.Shutdown()
	if r := c.Tick(0, s.frame()); r.Skipped {
		t.Errorf("tick after re-Initialize = %+v", r)
	}
}

func TestResize(t *testing.T) {
	s := newFakeScene(t)
	c := newFakeCompositor(t, s, smallConfig(ModeCubemap))
	c.Tick(0, s.frame())

	if err := c.Resize(32, 32); err != nil {
		t.Fatal(err)
	}
	if c.State() != StateIdle {
		t.Errorf("state after resize = %s", c.State())
	}
	if err := c.Resize(32, 16); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("non-square cube resize err = %v", err)
	}

	r := c.Tick(time.Second, s.frame())
	if r.Unit != 0 {
		t.Fatalf("report = %+v", r)
	}
	ops := s.dev.Ops("dispatch")
	if g := ops[len(ops)-1].Dispatch.Groups; g != [3]uint32{4, 4, 1} {
		t.Errorf("groups after resize = %v", g)
	}
}

// finishCycle runs one screen-mode cycle to Idle with the default 8s/2s timing.
func finishCycle(t *testing.T, c *Compositor, s *fakeScene) {
	t.Helper()
	if r := c.Tick(0, s.frame()); r.Action != ActionRender {
		t.Fatalf("first tick = %+v", r)
	}
	if r := c.Tick(2*time.Second, s.frame()); !r.Swapped {
		t.Fatalf("cycle did not swap: %+v", r)
	}
	if r := c.Tick(16*time.Millisecond, s.frame()); r.Action != ActionIdle || r.State != StateIdle {
		t.Fatalf("expected idle, got %+v", r)
	}
}

func TestResizeWhileIdleRestartsCycle(t *testing.T) {
	s := newFakeScene(t)
	c := newFakeCompositor(t, s, smallConfig(ModeScreen))
	finishCycle(t, c, s)

	if err := c.Resize(32, 32); err != nil {
		t.Fatal(err)
	}
	r := c.Tick(16*time.Millisecond, s.frame())
	if r.Skipped || r.Action != ActionRender || r.Unit != 0 {
		t.Fatalf("tick after resize = %+v, want unit 0", r)
	}
	if st := c.Stats(); st.CyclesAborted != 0 || st.CyclesCompleted != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestInvalidatedDisplaySlotWhileIdle(t *testing.T) {
	s := newFakeScene(t)
	c := newFakeCompositor(t, s, smallConfig(ModeScreen))
	finishCycle(t, c, s)

	s.dev.Invalidate(c.DisplayTexture())
	r := c.Tick(16*time.Millisecond, s.frame())
	if !r.Skipped || r.Reason != SkipResource {
		t.Fatalf("report = %+v", r)
	}
	if !c.buffers.Valid() {
		t.Fatal("slot not repaired")
	}

	r = c.Tick(16*time.Millisecond, s.frame())
	if r.Skipped || r.Action != ActionRender || r.Unit != 0 {
		t.Fatalf("tick after repair = %+v, want unit 0", r)
	}
	if st := c.Stats(); st.CyclesAborted != 0 {
		t.Errorf("aborted = %d, want 0", st.CyclesAborted)
	}
}

func TestMissingInputDuringBlend(t *testing.T) {
	s := newFakeScene(t)
	c := newFakeCompositor(t, s, smallConfig(ModeScreen))
	c.Tick(0, s.frame())
	if c.State() != StateBlending {
		t.Fatalf("state = %s, want Blending", c.State())
	}

	s.dev.Invalidate(s.inputs.Curl)
	r := c.Tick(time.Second, s.frame())
	if r.Skipped || r.Action != ActionBlend || r.Factor != 0.5 {
		t.Fatalf("blend tick = %+v", r)
	}
	r = c.Tick(time.Second, s.frame())
	if !r.Swapped {
		t.Fatalf("blend did not finish: %+v", r)
	}
	if st := c.Stats(); st.CyclesCompleted != 1 || st.CyclesAborted != 0 {
		t.Errorf("stats = %+v", st)
	}

	// no new cycle can start without the input
	r = c.Tick(time.Second, s.frame())
	if !r.Skipped || r.Reason != SkipMissingInput {
		t.Errorf("idle tick = %+v", r)
	}
}

func TestSkipWarnsOncePerCause(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	s := newFakeScene(t)
	c := newFakeCompositor(t, s, smallConfig(ModeCubemap), WithLogger(l))
	c.Tick(0, s.frame())

	s.dev.FailDispatch = true
	for i := 0; i < 5; i++ {
		c.Tick(time.Second, s.frame())
	}
	if n := strings.Count(buf.String(), "frame skipped"); n != 1 {
		t.Errorf("warnings = %d, want 1\n%s", n, buf.String())
	}

	s.dev.FailDispatch = false
	c.Tick(time.Second, s.frame())
	s.dev.FailDispatch = true
	c.Tick(time.Second, s.frame())
	if n := strings.Count(buf.String(), "frame skipped"); n != 2 {
		t.Errorf("warnings after recovery = %d, want 2", n)
	}
}
