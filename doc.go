// Package clouds renders a volumetric cloud layer with temporal
// amortization.
//
// # Overview
//
// Ray-marching clouds through 3D noise is too expensive to repeat every
// frame. A Compositor keeps two buffer slots: one is displayed while the
// other is filled one unit per frame (one cube face, or the whole screen
// target). When the hidden slot is complete the compositor cross-fades to
// it over BlendDuration and swaps the slots. A new cycle starts every
// UpdateInterval, measured start to start.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/clouds"
//	    "github.com/gogpu/clouds/backend/software"
//	)
//
//	dev := software.New()
//	inputs := gpucore.NoiseInputs{Base: base, Detail: detail, Curl: curl, Weather: weather}
//
//	c := clouds.New(dev, inputs)
//	if err := c.Initialize(); err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Shutdown()
//
//	// once per frame
//	report := c.Tick(dt, &clouds.FrameContext{Camera: cam, Target: color})
//
// # Frames
//
// Each Tick evaluates the frame's eligibility first: clouds never draw into
// the presentation surface and only render for cameras whose culling mask
// includes the cloud layer. Ineligible frames leave the scheduler untouched.
//
// An eligible frame builds a small frame graph: the compute pass for the
// current unit (if a cycle is rendering), the composite of the visible
// slots over the camera color into a transient texture, and a blit back
// into the camera color. Barriers between the passes come from their
// declared reads and writes.
//
// # Failures
//
// Tick never returns an error. Frames that cannot run are reported in
// FrameReport with a SkipReason; losing a buffer slot, the kernel or a
// noise input discards the cycle in progress without swapping, so the
// displayed clouds stay as they were.
//
// # Backends
//
// Any gpucore.Device works. backend/software runs kernels as Go functions
// on the CPU; backend/wgpu drives a gogpu/wgpu HAL device.
package clouds
