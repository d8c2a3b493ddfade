// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package gputest provides a recording gpucore.Device for tests.
//
// The device keeps only metadata. Every recorded command is appended to
// Log on Submit, and failures can be injected per operation.
package gputest

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/clouds/gpucore"
)

// ErrInjected is returned by injected failures.
var ErrInjected = errors.New("gputest: injected failure")

// Op is one submitted command.
type Op struct {
	Kind     string // "barrier", "dispatch", "composite", "blit"
	Barriers []gpucore.Barrier
	Dispatch *gpucore.DispatchCommand
	Compose  *gpucore.CompositeCommand
	Src, Dst gpucore.TextureID
}

// Device is a fake gpucore.Device.
type Device struct {
	mu sync.Mutex

	nextID   uint64
	textures map[gpucore.TextureID]gpucore.TextureDesc
	kernels  map[gpucore.KernelID]gpucore.KernelDesc

	// Workgroup is reported for every kernel. Defaults to 8x8x1.
	Workgroup gpucore.WorkgroupSize

	// FailCreateTexture fails the Nth next CreateTexture (1-based) when > 0.
	FailCreateTexture int
	// FailDispatch makes Dispatch return ErrInjected.
	FailDispatch bool
	// FailSubmit makes Submit return ErrInjected.
	FailSubmit bool

	// Log holds submitted commands in order.
	Log []Op
	// Created and Destroyed count texture lifecycle calls.
	Created   int
	Destroyed int
	// Submits and Discards count encoder outcomes.
	Submits  int
	Discards int
}

// New creates an empty fake device.
func New() *Device {
	return &Device{
		textures:  make(map[gpucore.TextureID]gpucore.TextureDesc),
		kernels:   make(map[gpucore.KernelID]gpucore.KernelDesc),
		Workgroup: gpucore.WorkgroupSize{8, 8, 1},
	}
}

// Name implements gpucore.Device.
func (d *Device) Name() string { return "gputest" }

// CreateTexture implements gpucore.Device.
func (d *Device) CreateTexture(desc *gpucore.TextureDesc) (gpucore.TextureID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailCreateTexture > 0 {
		d.FailCreateTexture--
		if d.FailCreateTexture == 0 {
			return gpucore.InvalidID, ErrInjected
		}
	}
	d.nextID++
	id := gpucore.TextureID(d.nextID)
	d.textures[id] = *desc
	d.Created++
	return id, nil
}

// DestroyTexture implements gpucore.Device.
func (d *Device) DestroyTexture(id gpucore.TextureID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.textures[id]; ok {
		delete(d.textures, id)
		d.Destroyed++
	}
}

// Invalidate drops a texture as if the host destroyed it.
func (d *Device) Invalidate(id gpucore.TextureID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.textures, id)
}

// TextureValid implements gpucore.Device.
func (d *Device) TextureValid(id gpucore.TextureID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.textures[id]
	return ok
}

// TextureDesc implements gpucore.Device.
func (d *Device) TextureDesc(id gpucore.TextureID) (gpucore.TextureDesc, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	desc, ok := d.textures[id]
	return desc, ok
}

// LiveTextures returns the number of live textures.
func (d *Device) LiveTextures() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.textures)
}

// WriteTexture implements gpucore.Device.
func (d *Device) WriteTexture(id gpucore.TextureID, _ int, _ []float32) error {
	if !d.TextureValid(id) {
		return gpucore.ErrTextureNotFound
	}
	return nil
}

// CreateKernel implements gpucore.Device.
func (d *Device) CreateKernel(desc *gpucore.KernelDesc) (gpucore.KernelID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	id := gpucore.KernelID(d.nextID)
	d.kernels[id] = *desc
	return id, nil
}

// DestroyKernel implements gpucore.Device.
func (d *Device) DestroyKernel(id gpucore.KernelID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.kernels, id)
}

// KernelValid implements gpucore.Device.
func (d *Device) KernelValid(id gpucore.KernelID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.kernels[id]
	return ok
}

// KernelWorkgroupSize implements gpucore.Device.
func (d *Device) KernelWorkgroupSize(id gpucore.KernelID) (gpucore.WorkgroupSize, error) {
	if !d.KernelValid(id) {
		return gpucore.WorkgroupSize{}, gpucore.ErrKernelNotFound
	}
	return d.Workgroup, nil
}

// BeginEncoding implements gpucore.Device.
func (d *Device) BeginEncoding(string) (gpucore.Encoder, error) {
	return &encoder{dev: d}, nil
}

// Destroy implements gpucore.Device.
func (d *Device) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	clear(d.textures)
	clear(d.kernels)
}

// Ops returns submitted ops of one kind.
func (d *Device) Ops(kind string) []Op {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Op
	for _, op := range d.Log {
		if op.Kind == kind {
			out = append(out, op)
		}
	}
	return out
}

// Kinds returns the kinds of all submitted ops in order, skipping barriers.
func (d *Device) Kinds() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for _, op := range d.Log {
		if op.Kind != "barrier" {
			out = append(out, op.Kind)
		}
	}
	return out
}

// Reset clears the command log and counters.
func (d *Device) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Log = nil
	d.Submits, d.Discards = 0, 0
}

type encoder struct {
	dev    *Device
	ops    []Op
	closed bool
}

func (e *encoder) Barrier(b []gpucore.Barrier) {
	if len(b) == 0 {
		return
	}
	e.ops = append(e.ops, Op{Kind: "barrier", Barriers: append([]gpucore.Barrier(nil), b...)})
}

func (e *encoder) Dispatch(cmd *gpucore.DispatchCommand) error {
	if e.closed {
		return gpucore.ErrEncoderClosed
	}
	if e.dev.FailDispatch {
		return fmt.Errorf("dispatch: %w", ErrInjected)
	}
	if !e.dev.KernelValid(cmd.Kernel) {
		return gpucore.ErrKernelNotFound
	}
	if !e.dev.TextureValid(cmd.Output) {
		return gpucore.ErrTextureNotFound
	}
	c := *cmd
	e.ops = append(e.ops, Op{Kind: "dispatch", Dispatch: &c})
	return nil
}

func (e *encoder) Composite(cmd *gpucore.CompositeCommand) error {
	if e.closed {
		return gpucore.ErrEncoderClosed
	}
	for _, id := range []gpucore.TextureID{cmd.Current, cmd.History, cmd.Background, cmd.Target} {
		if !e.dev.TextureValid(id) {
			return gpucore.ErrTextureNotFound
		}
	}
	c := *cmd
	e.ops = append(e.ops, Op{Kind: "composite", Compose: &c})
	return nil
}

func (e *encoder) Blit(src, dst gpucore.TextureID) error {
	if e.closed {
		return gpucore.ErrEncoderClosed
	}
	if !e.dev.TextureValid(src) || !e.dev.TextureValid(dst) {
		return gpucore.ErrTextureNotFound
	}
	e.ops = append(e.ops, Op{Kind: "blit", Src: src, Dst: dst})
	return nil
}

func (e *encoder) Submit() error {
	if e.closed {
		return gpucore.ErrEncoderClosed
	}
	e.closed = true
	e.dev.mu.Lock()
	defer e.dev.mu.Unlock()
	if e.dev.FailSubmit {
		e.dev.Discards++
		return fmt.Errorf("submit: %w", ErrInjected)
	}
	e.dev.Log = append(e.dev.Log, e.ops...)
	e.dev.Submits++
	return nil
}

func (e *encoder) Discard() {
	if e.closed {
		return
	}
	e.closed = true
	e.dev.mu.Lock()
	e.dev.Discards++
	e.dev.mu.Unlock()
}
