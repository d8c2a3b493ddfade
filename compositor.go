package clouds

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gogpu/clouds/gpucore"
	"github.com/gogpu/clouds/internal/dispatch"
	"github.com/gogpu/clouds/internal/doublebuf"
	"github.com/gogpu/clouds/internal/framegraph"
	"github.com/gogpu/clouds/internal/logging"
	"github.com/gogpu/clouds/internal/schedule"
)

// Compositor amortizes cloud rendering across frames. Each cycle fills
// the hidden buffer slot one unit per frame, cross-fades to it and swaps
// the slots. Every eligible frame composites the visible result over the
// camera color.
//
// Compositor is safe for concurrent use; Tick calls are serialized.
type Compositor struct {
	mu sync.Mutex

	dev    gpucore.Device
	inputs gpucore.NoiseInputs
	opts   options
	cfg    Config
	log    *slog.Logger

	kernel  gpucore.KernelID
	buffers *doublebuf.Manager
	sched   *schedule.Scheduler
	tracker *framegraph.Tracker
	pool    *framegraph.Pool

	initialized bool
	disabled    bool

	kernelFrame uint32
	stats       Stats
	lastWarn    SkipReason
}

// New creates a compositor drawing with dev and sampling inputs.
// Nothing is allocated until Initialize.
func New(dev gpucore.Device, inputs gpucore.NoiseInputs, opts ...Option) *Compositor {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Compositor{
		dev:    dev,
		inputs: inputs,
		opts:   o,
		cfg:    o.config,
		log:    logging.Nop(),
	}
}

// Initialize validates the configuration, compiles the kernel and
// allocates the buffer slots. On error everything is released, the
// compositor stays disabled until the next successful Initialize, and
// the error wraps ErrInvalidConfig, ErrMissingKernel, ErrMissingInput or
// ErrResourceInvalid.
func (c *Compositor) Initialize() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.release()
	c.log = c.opts.logger
	if c.log == nil {
		c.log = Logger()
	}
	if c.dev != nil {
		propagateLogger(c.dev, c.log)
	}

	if err := c.initialize(); err != nil {
		c.release()
		c.disabled = true
		c.log.Warn("clouds: disabled", "err", err)
		return err
	}
	c.initialized, c.disabled = true, false
	c.lastWarn = SkipNone
	c.log.Info("clouds: initialized",
		"device", c.dev.Name(),
		"mode", c.cfg.Mode,
		"size", fmt.Sprintf("%dx%d", c.cfg.Width, c.cfg.Height),
		"format", c.cfg.Format,
		"interval", c.cfg.UpdateInterval,
		"blend", c.cfg.EffectiveBlendDuration())
	return nil
}

func (c *Compositor) initialize() error {
	if c.dev == nil {
		return fmt.Errorf("%w: nil device", ErrInvalidConfig)
	}
	if err := c.cfg.Validate(); err != nil {
		return err
	}
	if err := c.checkInputs(); err != nil {
		return err
	}
	if err := c.createKernel(); err != nil {
		return err
	}

	c.buffers = doublebuf.New(c.dev)
	if err := c.buffers.Initialize(c.cfg.bufferDesc()); err != nil {
		return fmt.Errorf("%w: %w", ErrResourceInvalid, err)
	}
	sched, err := schedule.New(schedule.Config{
		Interval:      c.cfg.UpdateInterval,
		BlendDuration: c.cfg.BlendDuration,
		Units:         c.cfg.UnitCount(),
		Logger:        c.log,
	}, c.buffers)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	c.sched = sched
	c.tracker = framegraph.NewTracker()
	c.pool = framegraph.NewPool(c.dev)
	return nil
}

// checkInputs reports every missing noise input by name.
func (c *Compositor) checkInputs() error {
	var errs []error
	ids, names := c.inputs.IDs(), c.inputs.Names()
	for i, id := range ids {
		if !c.dev.TextureValid(id) {
			errs = append(errs, fmt.Errorf("%w: %s", ErrMissingInput, names[i]))
		}
	}
	return errors.Join(errs...)
}

func (c *Compositor) createKernel() error {
	if c.opts.source == "" || c.opts.entryPoint == "" {
		return fmt.Errorf("%w: no source or entry point", ErrMissingKernel)
	}
	id, err := c.dev.CreateKernel(&gpucore.KernelDesc{
		Label:        "clouds",
		Source:       c.opts.source,
		EntryPoint:   c.opts.entryPoint,
		OutputFormat: c.cfg.Format,
		OutputCube:   c.cfg.Mode == ModeCubemap,
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrMissingKernel, c.opts.entryPoint, err)
	}
	c.kernel = id
	return nil
}

// release frees everything the compositor created. Host textures are
// never touched.
func (c *Compositor) release() {
	if c.buffers != nil {
		for i := 0; i < 2; i++ {
			c.forget(c.buffers.Slot(i))
		}
		c.buffers.Release()
		c.buffers = nil
	}
	if c.kernel != gpucore.InvalidID {
		c.dev.DestroyKernel(c.kernel)
		c.kernel = gpucore.InvalidID
	}
	if c.pool != nil {
		c.pool.Destroy()
		c.pool = nil
	}
	c.sched = nil
	c.initialized = false
}

func (c *Compositor) forget(id gpucore.TextureID) {
	if c.tracker != nil && id != gpucore.InvalidID {
		c.tracker.Forget(id)
	}
}

// Shutdown releases all resources and disables the compositor.
// Initialize may be called again afterwards.
func (c *Compositor) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sched != nil {
		c.sched.Disable()
	}
	c.release()
	c.disabled = true
	c.log.Info("clouds: shut down", "frames", c.stats.Frames)
}

// Resize reallocates both slots. The cycle in progress is discarded and
// the next frame starts a new one, whatever the scheduler state; the
// display is empty until it completes.
func (c *Compositor) Resize(width, height uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return ErrNotInitialized
	}
	cfg := c.cfg
	cfg.Width, cfg.Height = width, height
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.sched.Invalidate(fmt.Errorf("resize to %dx%d", width, height))
	for i := 0; i < 2; i++ {
		c.forget(c.buffers.Slot(i))
	}
	if err := c.buffers.Resize(width, height); err != nil {
		c.release()
		c.disabled = true
		return fmt.Errorf("%w: %w", ErrResourceInvalid, err)
	}
	c.cfg = cfg
	c.log.Info("clouds: resized", "size", fmt.Sprintf("%dx%d", width, height))
	return nil
}

// Tick advances the compositor by dt and records this frame's cloud
// passes for frame. It never fails; the outcome is in the report.
func (c *Compositor) Tick(dt time.Duration, frame *FrameContext) FrameReport {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.Frames++
	r := FrameReport{Frame: c.stats.Frames, Unit: -1, Factor: 1}

	switch {
	case c.disabled:
		return c.skip(&r, SkipDisabled, ErrDisabled)
	case !c.initialized:
		return c.skip(&r, SkipNotInitialized, ErrNotInitialized)
	}

	r.Eligibility = Eligibility(frame, c.cfg.CloudLayer)
	if !r.Eligibility.Eligible() {
		reason := SkipLayer
		if r.Eligibility.FinalBackbuffer {
			reason = SkipBackbuffer
		}
		r.Skipped, r.Reason = true, reason
		r.State = c.sched.State()
		r.Factor = c.sched.Factor()
		c.stats.FramesSkipped++
		c.stats.LastSkip = reason
		c.log.Debug("clouds: frame ineligible", "frame", r.Frame, "reason", reason)
		return r
	}

	if reason, err := c.checkResources(frame); err != nil {
		return c.skip(&r, reason, err)
	}

	step := c.sched.Tick(dt)
	r.Action, r.Swapped = step.Action, step.Swapped

	g, err := c.buildGraph(frame, step, &r)
	if err == nil {
		err = g.Execute("clouds")
	}
	if err != nil {
		// the unit was not recorded; the scheduler retries it next frame
		return c.skip(&r, SkipDispatch, fmt.Errorf("%w: %w", ErrDispatch, err))
	}

	if step.Action == ActionRender {
		if err := c.sched.UnitDone(step.Unit); err != nil {
			c.log.Warn("clouds: unit not accepted", "unit", step.Unit, "err", err)
		} else {
			r.Unit = step.Unit
			c.stats.UnitsRendered++
		}
	}
	for _, p := range g.Plan() {
		if !p.Culled {
			r.Passes = append(r.Passes, p.Name)
		}
	}
	c.kernelFrame++
	c.lastWarn = SkipNone
	r.State = c.sched.State()

	if c.log.Enabled(context.Background(), slog.LevelDebug) {
		c.log.Debug("clouds: frame",
			"frame", r.Frame,
			"action", r.Action,
			"unit", r.Unit,
			"factor", r.Factor,
			"swapped", r.Swapped,
			"state", r.State)
	}
	return r
}

// checkResources discards the cycle in progress when anything it needs
// stopped being valid, and repairs what the compositor owns.
func (c *Compositor) checkResources(frame *FrameContext) (SkipReason, error) {
	// blending reads only the slots, so a lost input stops unit work alone
	if err := c.checkInputs(); err != nil && c.sched.State() != StateBlending {
		c.sched.Abort(err)
		return SkipMissingInput, err
	}
	if !c.dev.TextureValid(frame.Target) {
		return SkipResource, fmt.Errorf("%w: camera target %d", ErrResourceInvalid, frame.Target)
	}

	if !c.dev.KernelValid(c.kernel) {
		err := fmt.Errorf("%w: kernel %d", ErrResourceInvalid, c.kernel)
		c.sched.Abort(err)
		if kerr := c.createKernel(); kerr != nil {
			return SkipResource, fmt.Errorf("%w: %w", err, kerr)
		}
		return SkipResource, err
	}

	if !c.buffers.Valid() {
		err := fmt.Errorf("%w: buffer slot", ErrResourceInvalid)
		c.sched.Invalidate(err)
		old := [2]gpucore.TextureID{c.buffers.Slot(0), c.buffers.Slot(1)}
		if _, rerr := c.buffers.Repair(); rerr != nil {
			err = fmt.Errorf("%w: %w", err, rerr)
		}
		for i, id := range old {
			if id != c.buffers.Slot(i) {
				c.forget(id)
			}
		}
		return SkipResource, err
	}
	return SkipNone, nil
}

// buildGraph declares this frame's passes: the unit's compute pass when
// rendering, then the composite and the blit back into the camera color.
func (c *Compositor) buildGraph(frame *FrameContext, step schedule.Step, r *FrameReport) (*framegraph.Graph, error) {
	g := framegraph.New(c.dev, c.tracker, c.pool)
	g.SetLogger(c.log)

	if step.Action == ActionRender {
		p := &computePass{
			output: g.ImportTexture("clouds.write", c.buffers.Slot(step.Slot)),
			layer:  0,
			req:    c.unitRequest(frame, step.Unit),
		}
		if c.cfg.Mode == ModeCubemap {
			p.layer = step.Unit
		}
		for i, id := range c.inputs.IDs() {
			p.inputs[i] = g.ImportTexture(c.inputs.Names()[i], id)
		}
		g.AddPass(p)
	}

	read := c.buffers.CurrentReadSlot()
	current, history := read, read
	if step.Action == ActionBlend && !step.Swapped {
		current = c.buffers.NextWriteSlot()
		r.Factor = step.Factor
	}

	targetDesc, ok := c.dev.TextureDesc(frame.Target)
	if !ok {
		return nil, fmt.Errorf("%w: camera target", ErrResourceInvalid)
	}
	temp := targetDesc
	temp.Label = "clouds.composite"
	temp.Usage = gpucore.TextureUsageRenderAttachment | gpucore.TextureUsageTextureBinding

	params := gpucore.CompositeParams{
		InvViewProj: [16]float32(frame.Camera.InvViewProjection()),
		Factor:      r.Factor,
	}
	if c.cfg.Mode == ModeCubemap {
		params.Cube = 1
	}

	color := g.ImportTexture("camera.color", frame.Target)
	tmp := g.CreateTexture("clouds.composite", temp)
	g.AddPass(&compositePass{
		current:    g.ImportTexture("clouds.current", current),
		history:    g.ImportTexture("clouds.history", history),
		background: color,
		target:     tmp,
		params:     params,
		clear:      c.cfg.ClearComposite,
	})
	g.AddPass(&blitPass{src: tmp, dst: color})
	return g, nil
}

// unitRequest builds the dispatch for one unit. Cube units render one
// face from the camera position with a square 90 degree frustum.
func (c *Compositor) unitRequest(frame *FrameContext, unit int) dispatch.Request {
	cam := &frame.Camera
	req := dispatch.Request{
		Kernel: c.kernel,
		Face:   0,
		Width:  c.cfg.Width,
		Height: c.cfg.Height,
		Tuning: dispatch.Tuning{
			DensityThreshold:      c.cfg.Tuning.DensityThreshold,
			HighFreqNoiseStrength: c.cfg.Tuning.HighFreqNoiseStrength,
			CoverageMultiplier:    c.cfg.Tuning.CoverageMultiplier,
		},
		Frame: c.kernelFrame,
		Async: c.cfg.AsyncCompute,
	}
	if c.cfg.Mode == ModeCubemap {
		req.Face = unit
		req.CameraToWorld = FaceCameraToWorld(cam.Position, unit)
		req.InverseProjection = FaceProjection(cam.ClipPlanes()).Inv()
	} else {
		req.CameraToWorld = cam.CameraToWorld()
		req.InverseProjection = cam.Projection().Inv()
	}
	return req
}

// skip records a frame without cloud passes. Warnings are logged once
// per distinct cause.
func (c *Compositor) skip(r *FrameReport, reason SkipReason, err error) FrameReport {
	r.Skipped, r.Reason, r.Err = true, reason, err
	if c.sched != nil {
		r.State = c.sched.State()
	} else {
		r.State = StateDisabled
	}
	c.stats.FramesSkipped++
	c.stats.LastSkip = reason
	if reason != c.lastWarn {
		c.lastWarn = reason
		c.log.Warn("clouds: frame skipped", "frame", r.Frame, "reason", reason, "err", err)
	}
	return *r
}

// DisplayTexture returns the slot holding the last completed cycle, or
// InvalidID before Initialize.
func (c *Compositor) DisplayTexture() gpucore.TextureID {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.buffers == nil {
		return gpucore.InvalidID
	}
	return c.buffers.CurrentReadSlot()
}

// BlendFactor returns the cross-fade factor: below 1 only while blending.
func (c *Compositor) BlendFactor() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sched == nil {
		return 1
	}
	return c.sched.Factor()
}

// State returns the scheduler state.
func (c *Compositor) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sched == nil {
		return StateDisabled
	}
	return c.sched.State()
}

// Config returns the active configuration.
func (c *Compositor) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Stats returns a snapshot of the counters.
func (c *Compositor) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	if c.sched != nil {
		s.State = c.sched.State()
		s.Progress = c.sched.Progress()
		s.Units = c.sched.Units()
		s.CyclesCompleted = c.sched.CyclesCompleted()
		s.CyclesAborted = c.sched.CyclesAborted()
	} else {
		s.State = StateDisabled
	}
	return s
}
