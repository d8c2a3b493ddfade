// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package framegraph

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gogpu/clouds/gpucore"
)

// Execute compiles the graph if needed, allocates transients, records
// every live pass with its barriers and submits. On any error the
// encoder is discarded and no state is committed to the tracker.
func (g *Graph) Execute(label string) error {
	if err := g.Compile(); err != nil {
		return err
	}

	acquired, err := g.allocateTransients()
	defer g.releaseTransients(acquired)
	if err != nil {
		return err
	}

	enc, err := g.dev.BeginEncoding(label)
	if err != nil {
		return fmt.Errorf("framegraph: begin encoding: %w", err)
	}

	ctx := &Context{Encoder: enc, Device: g.dev, g: g}
	for _, n := range g.live() {
		enc.Barrier(g.resolveBarriers(n.barriers))
		if err := n.pass.Execute(ctx); err != nil {
			enc.Discard()
			return &PassError{Pass: n.pass.Name(), Kind: n.pass.Kind(), Err: err}
		}
	}

	if err := enc.Submit(); err != nil {
		return fmt.Errorf("framegraph: submit: %w", err)
	}
	g.commit()
	return nil
}

func (g *Graph) allocateTransients() ([]gpucore.TextureID, error) {
	used := make([]bool, len(g.resources))
	for _, n := range g.live() {
		for _, u := range n.uses {
			used[u.res] = true
		}
	}

	var acquired []gpucore.TextureID
	for i := range g.resources {
		r := &g.resources[i]
		if !r.transient || !used[i] {
			continue
		}
		id, err := g.acquire(&r.desc)
		if err != nil {
			return acquired, fmt.Errorf("framegraph: transient %q: %w", r.name, err)
		}
		r.id = id
		acquired = append(acquired, id)
	}
	return acquired, nil
}

func (g *Graph) acquire(desc *gpucore.TextureDesc) (gpucore.TextureID, error) {
	if g.pool != nil {
		return g.pool.Acquire(desc)
	}
	return g.dev.CreateTexture(desc)
}

func (g *Graph) releaseTransients(ids []gpucore.TextureID) {
	for _, id := range ids {
		if g.pool != nil {
			g.pool.Release(id)
		} else {
			g.dev.DestroyTexture(id)
		}
	}
	for i := range g.resources {
		if g.resources[i].transient {
			g.resources[i].id = gpucore.InvalidID
		}
	}
}

// commit stores the final state of imported textures for the next frame.
func (g *Graph) commit() {
	for h, subs := range g.finalStates {
		r := &g.resources[h]
		if r.transient {
			continue
		}
		for l, s := range subs {
			g.tracker.Set(r.id, l, s.state)
		}
	}
	if g.log.Enabled(context.Background(), slog.LevelDebug) {
		g.log.Debug("framegraph: executed", "passes", len(g.live()), "resources", len(g.resources))
	}
}
