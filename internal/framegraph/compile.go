// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package framegraph

import (
	"fmt"

	"github.com/gogpu/clouds/gpucore"
)

type queue uint8

const (
	queueGraphics queue = iota
	queueAsync
)

// subState is the planning-time state of one subresource.
type subState struct {
	state gpucore.ResourceState
	queue queue
}

// Compile validates declarations, culls unused passes and plans barriers.
// It is called by Execute if needed; calling it directly lets callers
// inspect Plan or fail early.
func (g *Graph) Compile() error {
	if g.compiled {
		return g.compileErr
	}
	g.compiled = true
	g.compileErr = g.compile()
	return g.compileErr
}

func (g *Graph) compile() error {
	for _, n := range g.nodes {
		n.culled = false
		n.barriers = nil
		if err := g.validate(n); err != nil {
			return err
		}
	}
	for i := range g.resources {
		r := &g.resources[i]
		if r.transient {
			continue
		}
		if !g.dev.TextureValid(r.id) {
			return fmt.Errorf("%w: %q (texture %d)", ErrInvalidResource, r.name, r.id)
		}
	}
	g.cull()
	if err := g.checkTransientOrder(); err != nil {
		return err
	}
	g.planBarriers()
	return nil
}

func (g *Graph) validate(n *node) error {
	if n.err != nil {
		return n.err
	}
	if n.async && n.pass.Kind() != KindCompute {
		return fmt.Errorf("%w: %q", ErrAsyncRaster, n.pass.Name())
	}
	for i, u := range n.uses {
		layers := g.resources[u.res].desc.Layers()
		if u.layer != gpucore.AllLayers && (u.layer < 0 || u.layer >= layers) {
			return fmt.Errorf("%w: %q layer %d of %d", ErrBadLayer, g.resources[u.res].name, u.layer, layers)
		}
		if u.access&AccessRead != 0 && u.access&AccessWrite != 0 {
			return fmt.Errorf("%w: pass %q, texture %q", ErrAliasedAccess, n.pass.Name(), g.resources[u.res].name)
		}
		for _, o := range n.uses[i+1:] {
			if o.res != u.res || !overlaps(u.layer, o.layer) {
				continue
			}
			if (u.access|o.access)&AccessRead != 0 && (u.access|o.access)&AccessWrite != 0 {
				return fmt.Errorf("%w: pass %q, texture %q", ErrAliasedAccess, n.pass.Name(), g.resources[u.res].name)
			}
		}
	}
	return nil
}

func overlaps(a, b int) bool {
	return a == gpucore.AllLayers || b == gpucore.AllLayers || a == b
}

// cull walks passes backward and keeps a pass if culling is disabled, it
// writes an imported texture, or a kept later pass reads what it writes.
func (g *Graph) cull() {
	needed := make([]bool, len(g.resources))
	for i := len(g.nodes) - 1; i >= 0; i-- {
		n := g.nodes[i]
		keep := !n.cullable
		for _, u := range n.uses {
			if u.access&AccessWrite == 0 {
				continue
			}
			if !g.resources[u.res].transient || needed[u.res] {
				keep = true
			}
		}
		if !keep {
			n.culled = true
			g.log.Debug("framegraph: pass culled", "pass", n.pass.Name())
			continue
		}
		for _, u := range n.uses {
			if u.access&AccessRead != 0 {
				needed[u.res] = true
			}
		}
	}
}

func (g *Graph) checkTransientOrder() error {
	written := make([]bool, len(g.resources))
	for _, n := range g.live() {
		for _, u := range n.uses {
			if u.access&AccessRead != 0 && g.resources[u.res].transient && !written[u.res] {
				return fmt.Errorf("%w: %q in pass %q", ErrReadBeforeWrite, g.resources[u.res].name, n.pass.Name())
			}
		}
		for _, u := range n.uses {
			if u.access&AccessWrite != 0 {
				written[u.res] = true
			}
		}
	}
	return nil
}

func (g *Graph) live() []*node {
	out := make([]*node, 0, len(g.nodes))
	for _, n := range g.nodes {
		if !n.culled {
			out = append(out, n)
		}
	}
	return out
}

// planBarriers simulates subresource states through the live passes.
// Imported textures start from the tracker, transients from Undefined.
func (g *Graph) planBarriers() {
	states := make(map[Handle][]subState, len(g.resources))
	stateOf := func(h Handle) []subState {
		if s, ok := states[h]; ok {
			return s
		}
		r := &g.resources[h]
		s := make([]subState, r.desc.Layers())
		if !r.transient {
			for l := range s {
				s[l].state = g.tracker.State(r.id, l)
			}
		}
		states[h] = s
		return s
	}

	for _, n := range g.live() {
		q := queueGraphics
		if n.async {
			q = queueAsync
		}
		for _, u := range n.uses {
			want := required(n.pass.Kind(), u.access)
			subs := stateOf(u.res)
			lo, hi := 0, len(subs)
			if u.layer != gpucore.AllLayers {
				lo, hi = u.layer, u.layer+1
			}

			var pending []plannedBarrier
			for l := lo; l < hi; l++ {
				cur := subs[l]
				cross := cur.queue != q
				hazard := cur.state != want || cross || (want == gpucore.StateStorage && cur.state == gpucore.StateStorage)
				if hazard {
					pending = append(pending, plannedBarrier{
						res: u.res, layer: l, before: cur.state, after: want, crossQueue: cross,
					})
				}
				subs[l] = subState{state: want, queue: q}
			}
			n.barriers = append(n.barriers, merge(pending, u.layer == gpucore.AllLayers, len(subs))...)
		}
	}

	g.finalStates = states
}

// merge collapses per-layer barriers covering a whole texture into one
// AllLayers barrier when they agree.
func merge(b []plannedBarrier, whole bool, layers int) []plannedBarrier {
	if !whole || len(b) == 0 || len(b) != layers {
		return b
	}
	first := b[0]
	for _, o := range b[1:] {
		if o.before != first.before || o.after != first.after || o.crossQueue != first.crossQueue {
			return b
		}
	}
	first.layer = gpucore.AllLayers
	return []plannedBarrier{first}
}

func required(k Kind, a Access) gpucore.ResourceState {
	if a&AccessWrite == 0 {
		return gpucore.StateSampled
	}
	if k == KindCompute {
		return gpucore.StateStorage
	}
	return gpucore.StateRenderTarget
}
