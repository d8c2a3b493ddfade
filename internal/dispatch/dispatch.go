// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package dispatch translates one cloud render unit into a compute
// dispatch. It holds no state between calls.
package dispatch

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/clouds/gpucore"
)

var (
	// ErrDispatch wraps any failure to record the dispatch.
	ErrDispatch = errors.New("dispatch: failed")

	// ErrWorkgroup is returned for a kernel declaring a zero workgroup dimension.
	ErrWorkgroup = errors.New("dispatch: invalid workgroup size")

	// ErrEmptyTarget is returned for a zero-sized output.
	ErrEmptyTarget = errors.New("dispatch: empty output")
)

// Tuning are the scalar kernel parameters.
type Tuning struct {
	DensityThreshold      float32
	HighFreqNoiseStrength float32
	CoverageMultiplier    float32
}

// Request describes one unit of work.
type Request struct {
	Kernel gpucore.KernelID

	// Output is written at Face (cube layer, 0 for 2D) over Width x Height.
	Output gpucore.TextureID
	Face   int
	Width  uint32
	Height uint32

	CameraToWorld     mgl32.Mat4
	InverseProjection mgl32.Mat4

	Inputs gpucore.NoiseInputs
	Tuning Tuning
	Frame  uint32

	Async bool
}

// GridSize returns ceil(width/wg.x) x ceil(height/wg.y) x 1.
func GridSize(width, height uint32, wg gpucore.WorkgroupSize) ([3]uint32, error) {
	if wg[0] == 0 || wg[1] == 0 {
		return [3]uint32{}, fmt.Errorf("%w: %v", ErrWorkgroup, wg)
	}
	if width == 0 || height == 0 {
		return [3]uint32{}, fmt.Errorf("%w: %dx%d", ErrEmptyTarget, width, height)
	}
	return [3]uint32{
		(width + wg[0] - 1) / wg[0],
		(height + wg[1] - 1) / wg[1],
		1,
	}, nil
}

// Params packs the request into the kernel uniform.
func Params(req *Request) gpucore.CloudParams {
	return gpucore.CloudParams{
		CameraToWorld:         [16]float32(req.CameraToWorld),
		InverseProjection:     [16]float32(req.InverseProjection),
		Width:                 req.Width,
		Height:                req.Height,
		Face:                  uint32(req.Face),
		Frame:                 req.Frame,
		DensityThreshold:      req.Tuning.DensityThreshold,
		HighFreqNoiseStrength: req.Tuning.HighFreqNoiseStrength,
		CoverageMultiplier:    req.Tuning.CoverageMultiplier,
	}
}

// Dispatch queries the kernel's workgroup size and records the dispatch.
func Dispatch(enc gpucore.Encoder, dev gpucore.Device, req *Request) error {
	wg, err := dev.KernelWorkgroupSize(req.Kernel)
	if err != nil {
		return fmt.Errorf("%w: workgroup size: %w", ErrDispatch, err)
	}
	groups, err := GridSize(req.Width, req.Height, wg)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDispatch, err)
	}
	cmd := &gpucore.DispatchCommand{
		Kernel: req.Kernel,
		Output: req.Output,
		Layer:  req.Face,
		Inputs: req.Inputs,
		Params: Params(req),
		Groups: groups,
		Async:  req.Async,
	}
	if err := enc.Dispatch(cmd); err != nil {
		return fmt.Errorf("%w: face %d: %w", ErrDispatch, req.Face, err)
	}
	return nil
}
