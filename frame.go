package clouds

import (
	"github.com/gogpu/clouds/gpucore"
	"github.com/gogpu/clouds/internal/schedule"
)

// State is the scheduler state of a Compositor.
type State = schedule.State

// Scheduler states.
const (
	StateIdle      = schedule.StateIdle
	StateRendering = schedule.StateRendering
	StateBlending  = schedule.StateBlending
	StateDisabled  = schedule.StateDisabled
)

// Action is what a frame did with the clouds.
type Action = schedule.Action

// Frame actions.
const (
	ActionIdle   = schedule.ActionIdle
	ActionRender = schedule.ActionRender
	ActionBlend  = schedule.ActionBlend
)

// FrameContext describes the camera a frame renders for.
type FrameContext struct {
	Camera Camera

	// Target is the camera color texture. The composite reads it as the
	// background and the result is copied back into it.
	Target gpucore.TextureID

	// Backbuffer marks Target as the presentation surface.
	Backbuffer bool
}

// FrameEligibility is evaluated fresh for every frame.
type FrameEligibility struct {
	// FinalBackbuffer is set when the frame targets the presentation
	// surface, which clouds never write.
	FinalBackbuffer bool

	// LayerMatch is set when the camera renders the cloud layer.
	LayerMatch bool
}

// Eligible reports whether cloud passes may run.
func (e FrameEligibility) Eligible() bool {
	return !e.FinalBackbuffer && e.LayerMatch
}

// Eligibility evaluates frame against the cloud layer. A nil frame is
// never eligible.
func Eligibility(frame *FrameContext, cloudLayer LayerMask) FrameEligibility {
	if frame == nil {
		return FrameEligibility{}
	}
	return FrameEligibility{
		FinalBackbuffer: frame.Backbuffer,
		LayerMatch:      frame.Camera.CullingMask.Includes(cloudLayer),
	}
}

// SkipReason says why a frame emitted no cloud passes.
type SkipReason string

// Skip reasons.
const (
	SkipNone           SkipReason = ""
	SkipNotInitialized SkipReason = "not initialized"
	SkipDisabled       SkipReason = "disabled"
	SkipBackbuffer     SkipReason = "final backbuffer"
	SkipLayer          SkipReason = "layer mismatch"
	SkipMissingInput   SkipReason = "missing input"
	SkipResource       SkipReason = "resource invalid"
	SkipDispatch       SkipReason = "dispatch failed"
)

// FrameReport is the outcome of one Tick.
type FrameReport struct {
	// Frame counts Tick calls from 1.
	Frame uint64

	Eligibility FrameEligibility

	// Skipped is set when no cloud pass ran. Err carries the cause for
	// failures; ineligible frames have no error.
	Skipped bool
	Reason  SkipReason
	Err     error

	Action Action

	// Unit is the unit recorded this frame, or -1.
	Unit int

	// Swapped is set on the frame the blend finished and the slots swapped.
	Swapped bool

	// Factor is the blend factor the composite used.
	Factor float32

	// State is the scheduler state after the frame.
	State State

	// Passes lists the passes that ran, in order.
	Passes []string
}

// Stats are cumulative counters of a Compositor.
type Stats struct {
	Frames          uint64
	FramesSkipped   uint64
	UnitsRendered   uint64
	CyclesCompleted uint64
	CyclesAborted   uint64

	// LastSkip is the reason of the most recent skipped frame.
	LastSkip SkipReason

	State    State
	Progress int
	Units    int
}
