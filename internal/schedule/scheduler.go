// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package schedule implements the temporal update scheduler that amortizes
// one cloud re-render across several frames and hides it behind a
// cross-fade.
//
// Each cycle renders unitCount units (cube faces, or one full frame) in
// order 0..unitCount-1, one unit per frame, then cross-fades for
// min(blendDuration, interval) before swapping the double buffer:
//
//	Idle ──interval──▶ Rendering(0..n-1) ──n units──▶ Blending ──factor=1──▶ Idle
//	                        │                              │
//	                        └────────── Abort ─────────────┘──▶ Idle (no swap)
package schedule

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gogpu/clouds/internal/blend"
	"github.com/gogpu/clouds/internal/logging"
)

// Scheduler errors.
var (
	// ErrInvalidConfig is returned by New for unusable timing parameters.
	ErrInvalidConfig = errors.New("schedule: invalid config")

	// ErrNotRendering is returned by UnitDone outside of a render cycle.
	ErrNotRendering = errors.New("schedule: no cycle in progress")

	// ErrUnitOrder is returned by UnitDone for a unit other than the next one.
	ErrUnitOrder = errors.New("schedule: unit out of order")
)

// State is the scheduler state.
type State int

const (
	// StateIdle waits for the update interval to elapse.
	StateIdle State = iota

	// StateRendering fills the write buffer one unit per frame.
	StateRendering

	// StateBlending cross-fades from history to the new buffer.
	StateBlending

	// StateDisabled never schedules work.
	StateDisabled
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateRendering:
		return "Rendering"
	case StateBlending:
		return "Blending"
	case StateDisabled:
		return "Disabled"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Buffers is the double buffer the scheduler drives.
type Buffers interface {
	// WriteIndex is the slot the next cycle fills.
	WriteIndex() int

	// CommitSwap makes the write slot current.
	CommitSwap()
}

// Config holds the timing parameters.
type Config struct {
	// Interval is the time between cycle starts. Must be > 0.
	Interval time.Duration

	// BlendDuration is the cross-fade length. Clamped to Interval.
	BlendDuration time.Duration

	// Units is the number of units per cycle. Must be >= 1.
	Units int

	// Logger receives lifecycle events. Nil disables logging.
	Logger *slog.Logger
}

// EffectiveBlend returns min(BlendDuration, Interval), never negative.
func (c Config) EffectiveBlend() time.Duration {
	d := c.BlendDuration
	if d > c.Interval {
		d = c.Interval
	}
	if d < 0 {
		d = 0
	}
	return d
}

// Cycle is an in-progress re-render.
type Cycle struct {
	// Seq numbers cycles from 1.
	Seq uint64

	// Slot is the write slot index selected when the cycle started.
	Slot int

	// Progress counts completed units, 0..Units.
	Progress int

	// Start is the scheduler clock at the start of the cycle.
	Start time.Duration
}

// Action tells the caller what to do this frame.
type Action int

const (
	// ActionIdle means no cloud work beyond compositing.
	ActionIdle Action = iota

	// ActionRender means record Step.Unit into Step.Slot.
	ActionRender

	// ActionBlend means composite with Step.Factor.
	ActionBlend
)

// String returns the action name.
func (a Action) String() string {
	switch a {
	case ActionIdle:
		return "idle"
	case ActionRender:
		return "render"
	case ActionBlend:
		return "blend"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// Step is the decision of one Tick.
type Step struct {
	Action Action

	// Unit and Slot are set for ActionRender.
	Unit int
	Slot int

	// Factor is the blend factor for ActionBlend.
	Factor float32

	// Started is set on the tick a new cycle begins.
	Started bool

	// Swapped is set on the tick the blend finishes and the buffers swap.
	Swapped bool
}

// Scheduler is a single-threaded state machine advanced once per frame.
// It is not safe for concurrent use.
type Scheduler struct {
	cfg     Config
	buffers Buffers
	log     *slog.Logger

	state State
	cycle Cycle
	fade  blend.Transition

	now        time.Duration
	sinceStart time.Duration
	everRan    bool
	retry      bool

	seq       uint64
	completed uint64
	aborted   uint64
}

// New creates a scheduler in StateIdle. The first Tick starts a cycle.
func New(cfg Config, buffers Buffers) (*Scheduler, error) {
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("%w: interval %v must be > 0", ErrInvalidConfig, cfg.Interval)
	}
	if cfg.Units < 1 {
		return nil, fmt.Errorf("%w: unit count %d must be >= 1", ErrInvalidConfig, cfg.Units)
	}
	if buffers == nil {
		return nil, fmt.Errorf("%w: nil buffers", ErrInvalidConfig)
	}
	return &Scheduler{cfg: cfg, buffers: buffers, log: logging.OrNop(cfg.Logger)}, nil
}

// Tick advances the clocks by dt and returns this frame's action.
func (s *Scheduler) Tick(dt time.Duration) Step {
	if dt < 0 {
		dt = 0
	}
	s.now += dt

	switch s.state {
	case StateIdle:
		if s.everRan {
			s.sinceStart += dt
		}
		if !s.due() {
			return Step{Action: ActionIdle}
		}
		s.start()
		return Step{Action: ActionRender, Unit: 0, Slot: s.cycle.Slot, Started: true}

	case StateRendering:
		s.sinceStart += dt
		return Step{Action: ActionRender, Unit: s.cycle.Progress, Slot: s.cycle.Slot}

	case StateBlending:
		s.sinceStart += dt
		f := s.fade.Advance(dt)
		if !s.fade.Done() {
			return Step{Action: ActionBlend, Factor: f}
		}
		s.finish()
		return Step{Action: ActionBlend, Factor: 1, Swapped: true}

	default:
		return Step{Action: ActionIdle}
	}
}

func (s *Scheduler) due() bool {
	return !s.everRan || s.retry || s.sinceStart >= s.cfg.Interval
}

func (s *Scheduler) start() {
	s.seq++
	s.everRan = true
	s.retry = false
	s.sinceStart = 0
	s.cycle = Cycle{Seq: s.seq, Slot: s.buffers.WriteIndex(), Start: s.now}
	s.state = StateRendering
	s.log.Debug("schedule: cycle started",
		"cycle", s.cycle.Seq, "slot", s.cycle.Slot, "units", s.cfg.Units)
}

// UnitDone records that the current unit was encoded. Units must arrive in
// order. The last unit moves the scheduler to StateBlending.
func (s *Scheduler) UnitDone(unit int) error {
	if s.state != StateRendering {
		return fmt.Errorf("%w: state %s", ErrNotRendering, s.state)
	}
	if unit != s.cycle.Progress {
		return fmt.Errorf("%w: got %d, want %d", ErrUnitOrder, unit, s.cycle.Progress)
	}
	s.cycle.Progress++
	if s.cycle.Progress < s.cfg.Units {
		return nil
	}
	d := s.cfg.EffectiveBlend()
	s.fade.Begin(d)
	s.state = StateBlending
	s.log.Debug("schedule: cycle rendered, blending",
		"cycle", s.cycle.Seq, "blend", d)
	return nil
}

func (s *Scheduler) finish() {
	s.buffers.CommitSwap()
	s.completed++
	s.state = StateIdle
	s.fade.Reset()
	s.log.Debug("schedule: cycle complete", "cycle", s.cycle.Seq, "elapsed", s.now-s.cycle.Start)
	s.cycle = Cycle{}
}

// Abort discards the cycle in progress without blending or swapping.
// The next Tick starts a fresh cycle. Returns false if nothing was running.
func (s *Scheduler) Abort(reason error) bool {
	if s.state != StateRendering && s.state != StateBlending {
		return false
	}
	s.log.Warn("schedule: cycle discarded",
		"cycle", s.cycle.Seq, "progress", s.cycle.Progress, "units", s.cfg.Units, "reason", reason)
	s.aborted++
	s.state = StateIdle
	s.fade.Reset()
	s.cycle = Cycle{}
	s.retry = true
	return true
}

// Invalidate marks the buffer contents stale. A running cycle is
// aborted; an idle scheduler starts a fresh cycle on the next Tick
// instead of waiting out the interval. It has no effect when disabled.
func (s *Scheduler) Invalidate(reason error) {
	switch s.state {
	case StateRendering, StateBlending:
		s.Abort(reason)
	case StateIdle:
		s.retry = true
		s.log.Debug("schedule: buffers invalidated while idle", "reason", reason)
	}
}

// Disable stops scheduling permanently, discarding any cycle in progress.
func (s *Scheduler) Disable() {
	if s.state == StateRendering || s.state == StateBlending {
		s.aborted++
	}
	s.state = StateDisabled
	s.fade.Reset()
	s.cycle = Cycle{}
}

// State returns the current state.
func (s *Scheduler) State() State { return s.state }

// Cycle returns the cycle in progress and whether there is one.
func (s *Scheduler) Cycle() (Cycle, bool) {
	if s.state != StateRendering && s.state != StateBlending {
		return Cycle{}, false
	}
	return s.cycle, true
}

// Progress returns completed units of the cycle in progress.
func (s *Scheduler) Progress() int { return s.cycle.Progress }

// Units returns the unit count per cycle.
func (s *Scheduler) Units() int { return s.cfg.Units }

// Factor returns the blend factor: the transition's factor while
// blending, 1 otherwise.
func (s *Scheduler) Factor() float32 {
	if s.state != StateBlending {
		return 1
	}
	return s.fade.Factor()
}

// Now returns the scheduler clock.
func (s *Scheduler) Now() time.Duration { return s.now }

// CyclesCompleted returns the number of swapped cycles.
func (s *Scheduler) CyclesCompleted() uint64 { return s.completed }

// CyclesAborted returns the number of discarded cycles.
func (s *Scheduler) CyclesAborted() uint64 { return s.aborted }
