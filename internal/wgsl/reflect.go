// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package wgsl compiles WGSL kernels with naga and reads the compute entry
// point declarations the dispatch adapter needs.
package wgsl

import (
	"errors"
	"fmt"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
	"github.com/gogpu/naga/spirv"
)

var (
	// ErrNoEntryPoint is returned when the named @compute function is missing.
	ErrNoEntryPoint = errors.New("wgsl: compute entry point not found")

	// ErrWorkgroupSize is returned for a workgroup size with a zero component.
	ErrWorkgroupSize = errors.New("wgsl: unsupported workgroup size")

	// ErrCompile wraps naga parse, lowering, validation and codegen failures.
	ErrCompile = errors.New("wgsl: compile failed")
)

// EntryPoint is a @compute function declaration.
type EntryPoint struct {
	Name          string
	WorkgroupSize [3]uint32
}

// lower parses source and lowers it to naga IR. Constant expressions in
// @workgroup_size are resolved here.
func lower(source string) (*ir.Module, error) {
	ast, err := naga.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}
	module, err := naga.LowerWithSource(ast, source)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}
	return module, nil
}

func computeEntryPoints(module *ir.Module) []EntryPoint {
	var out []EntryPoint
	for _, ep := range module.EntryPoints {
		if ep.Stage != ir.StageCompute {
			continue
		}
		out = append(out, EntryPoint{Name: ep.Name, WorkgroupSize: ep.Workgroup})
	}
	return out
}

func find(module *ir.Module, entryPoint string) ([3]uint32, error) {
	for _, ep := range computeEntryPoints(module) {
		if ep.Name != entryPoint {
			continue
		}
		size := ep.WorkgroupSize
		if size[0] == 0 || size[1] == 0 || size[2] == 0 {
			return size, fmt.Errorf("%w: %s has %v", ErrWorkgroupSize, entryPoint, size)
		}
		return size, nil
	}
	return [3]uint32{}, fmt.Errorf("%w: %q", ErrNoEntryPoint, entryPoint)
}

// EntryPoints lists every @compute function in source with its
// workgroup size as naga resolved it. Missing size components are 1.
func EntryPoints(source string) ([]EntryPoint, error) {
	module, err := lower(source)
	if err != nil {
		return nil, err
	}
	return computeEntryPoints(module), nil
}

// WorkgroupSize returns the workgroup size of entryPoint.
func WorkgroupSize(source, entryPoint string) ([3]uint32, error) {
	module, err := lower(source)
	if err != nil {
		return [3]uint32{}, err
	}
	return find(module, entryPoint)
}

// generate validates module and emits SPIR-V words.
func generate(module *ir.Module) ([]uint32, error) {
	verrs, err := naga.Validate(module)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}
	if len(verrs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrCompile, verrs[0])
	}
	spirvBytes, err := naga.GenerateSPIRV(module, spirv.Options{Version: spirv.Version1_3})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}

	// SPIR-V is little-endian 32-bit words
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return words, nil
}

// Compile validates source with naga and returns SPIR-V words.
func Compile(source string) ([]uint32, error) {
	module, err := lower(source)
	if err != nil {
		return nil, err
	}
	return generate(module)
}

// Reflect compiles source and returns the SPIR-V and the workgroup size
// of entryPoint, both from a single lowering.
func Reflect(source, entryPoint string) ([]uint32, [3]uint32, error) {
	module, err := lower(source)
	if err != nil {
		return nil, [3]uint32{}, err
	}
	size, err := find(module, entryPoint)
	if err != nil {
		return nil, size, err
	}
	words, err := generate(module)
	if err != nil {
		return nil, size, err
	}
	return words, size, nil
}
