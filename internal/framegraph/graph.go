// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package framegraph sequences one frame of GPU passes from their declared
// texture accesses.
//
// Passes never issue barriers themselves. Each pass declares which
// textures (or single array layers) it reads and writes during Setup;
// Compile validates the declarations, culls passes whose output nobody
// consumes, and plans the state transitions between passes. Execute then
// records everything into one encoder and submits it.
//
//	g := framegraph.New(dev, tracker, pool)
//	slot := g.ImportTexture("slot", id)
//	tmp := g.CreateTexture("temp", desc)
//	g.AddPass(computePass)   // writes slot
//	g.AddPass(compositePass) // reads slot, writes tmp
//	g.AddPass(blitPass)      // reads tmp, writes camera color
//	err := g.Execute("frame")
package framegraph

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gogpu/clouds/gpucore"
	"github.com/gogpu/clouds/internal/logging"
)

// Graph errors.
var (
	// ErrAliasedAccess is returned when a pass reads and writes the same
	// subresource.
	ErrAliasedAccess = errors.New("framegraph: pass reads and writes the same texture")

	// ErrAsyncRaster is returned when a raster pass requests async compute.
	ErrAsyncRaster = errors.New("framegraph: async compute requested by raster pass")

	// ErrReadBeforeWrite is returned when a transient texture is read
	// before any pass writes it.
	ErrReadBeforeWrite = errors.New("framegraph: transient read before write")

	// ErrInvalidResource is returned when an imported texture is not live.
	ErrInvalidResource = errors.New("framegraph: invalid resource")

	// ErrBadHandle is returned for handles not created by this graph.
	ErrBadHandle = errors.New("framegraph: unknown handle")

	// ErrBadLayer is returned for a layer outside the texture.
	ErrBadLayer = errors.New("framegraph: layer out of range")
)

// Kind tells which hardware path a pass uses.
type Kind int

const (
	// KindCompute passes dispatch compute kernels and write storage textures.
	KindCompute Kind = iota

	// KindRaster passes draw into render targets.
	KindRaster
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindCompute:
		return "compute"
	case KindRaster:
		return "raster"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Access is a bitmask of texture access flags.
type Access uint8

const (
	// AccessRead samples the texture.
	AccessRead Access = 1 << iota

	// AccessWrite writes the texture as storage (compute) or render target
	// (raster).
	AccessWrite
)

// Handle names a texture within one graph.
type Handle int

// Pass is one unit of GPU work. Compute and raster passes share this
// contract and the graph treats them uniformly.
type Pass interface {
	// Name identifies the pass in logs and errors.
	Name() string

	// Kind reports the hardware path.
	Kind() Kind

	// Setup declares the pass's texture accesses.
	Setup(b *Builder)

	// Execute records the pass's commands.
	Execute(ctx *Context) error
}

type resource struct {
	name      string
	id        gpucore.TextureID
	desc      gpucore.TextureDesc
	transient bool
}

type use struct {
	res    Handle
	layer  int
	access Access
}

type node struct {
	pass     Pass
	uses     []use
	async    bool
	cullable bool
	culled   bool
	barriers []plannedBarrier
	err      error
}

type plannedBarrier struct {
	res        Handle
	layer      int
	before     gpucore.ResourceState
	after      gpucore.ResourceState
	crossQueue bool
}

// Graph is one frame's pass graph. It is built, compiled and executed on a
// single goroutine and discarded afterwards.
type Graph struct {
	dev     gpucore.Device
	tracker *Tracker
	pool    *Pool
	log     *slog.Logger

	resources   []resource
	nodes       []*node
	compiled    bool
	compileErr  error
	finalStates map[Handle][]subState
}

// New creates an empty graph. tracker carries subresource states across
// frames and pool recycles transient textures; either may be nil.
func New(dev gpucore.Device, tracker *Tracker, pool *Pool) *Graph {
	if tracker == nil {
		tracker = NewTracker()
	}
	return &Graph{dev: dev, tracker: tracker, pool: pool, log: logging.Nop()}
}

// SetLogger sets the logger for culling and execution diagnostics.
func (g *Graph) SetLogger(l *slog.Logger) {
	if l != nil {
		g.log = l
	}
}

// ImportTexture registers a texture owned outside the graph. Writes to it
// are visible after the frame, so passes writing it are never culled.
// Importing the same texture twice returns the first handle.
func (g *Graph) ImportTexture(name string, id gpucore.TextureID) Handle {
	for i, r := range g.resources {
		if !r.transient && r.id == id && id != gpucore.InvalidID {
			return Handle(i)
		}
	}
	desc, _ := g.dev.TextureDesc(id)
	g.resources = append(g.resources, resource{name: name, id: id, desc: desc})
	return Handle(len(g.resources) - 1)
}

// CreateTexture declares a transient texture that lives for this frame.
// It is allocated only if a surviving pass uses it.
func (g *Graph) CreateTexture(name string, desc gpucore.TextureDesc) Handle {
	g.resources = append(g.resources, resource{name: name, desc: desc, transient: true})
	return Handle(len(g.resources) - 1)
}

// AddPass appends a pass and runs its Setup.
func (g *Graph) AddPass(p Pass) {
	n := &node{pass: p, cullable: true}
	g.nodes = append(g.nodes, n)
	p.Setup(&Builder{g: g, n: n})
	g.compiled = false
}

// Builder collects one pass's declarations.
type Builder struct {
	g *Graph
	n *node
}

// UseTexture declares access to every layer of h.
func (b *Builder) UseTexture(h Handle, access Access) {
	b.UseTextureLayer(h, gpucore.AllLayers, access)
}

// UseTextureLayer declares access to one array layer of h.
func (b *Builder) UseTextureLayer(h Handle, layer int, access Access) {
	if int(h) < 0 || int(h) >= len(b.g.resources) {
		b.n.err = fmt.Errorf("%w: %d in pass %q", ErrBadHandle, h, b.n.pass.Name())
		return
	}
	b.n.uses = append(b.n.uses, use{res: h, layer: layer, access: access})
}

// EnableAsyncCompute moves a compute pass to the async compute queue.
func (b *Builder) EnableAsyncCompute(enable bool) { b.n.async = enable }

// AllowCulling lets the graph drop the pass when its output is unused.
// Passes are cullable by default.
func (b *Builder) AllowCulling(allow bool) { b.n.cullable = allow }

// Context is passed to Pass.Execute.
type Context struct {
	Encoder gpucore.Encoder
	Device  gpucore.Device

	g *Graph
}

// Texture resolves a handle to the texture allocated for this frame.
func (c *Context) Texture(h Handle) gpucore.TextureID {
	if int(h) < 0 || int(h) >= len(c.g.resources) {
		return gpucore.InvalidID
	}
	return c.g.resources[h].id
}

// PassError reports which pass failed during Execute.
type PassError struct {
	Pass string
	Kind Kind
	Err  error
}

func (e *PassError) Error() string {
	return fmt.Sprintf("framegraph: %s pass %q: %v", e.Kind, e.Pass, e.Err)
}

func (e *PassError) Unwrap() error { return e.Err }

// PassInfo describes a compiled pass.
type PassInfo struct {
	Name     string
	Kind     Kind
	Async    bool
	Culled   bool
	Barriers []gpucore.Barrier
}

// Plan returns the compiled passes in execution order, including culled
// ones. Transient textures not yet allocated appear as InvalidID.
func (g *Graph) Plan() []PassInfo {
	out := make([]PassInfo, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, PassInfo{
			Name:     n.pass.Name(),
			Kind:     n.pass.Kind(),
			Async:    n.async,
			Culled:   n.culled,
			Barriers: g.resolveBarriers(n.barriers),
		})
	}
	return out
}

func (g *Graph) resolveBarriers(planned []plannedBarrier) []gpucore.Barrier {
	if len(planned) == 0 {
		return nil
	}
	out := make([]gpucore.Barrier, len(planned))
	for i, p := range planned {
		out[i] = gpucore.Barrier{
			Texture:    g.resources[p.res].id,
			Layer:      p.layer,
			Before:     p.before,
			After:      p.after,
			CrossQueue: p.crossQueue,
		}
	}
	return out
}
