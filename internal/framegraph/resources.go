// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package framegraph

import "github.com/gogpu/clouds/gpucore"

// Tracker remembers the state of every subresource of long-lived textures
// between frames. Unknown subresources are StateUndefined.
type Tracker struct {
	states map[gpucore.TextureID][]gpucore.ResourceState
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{states: make(map[gpucore.TextureID][]gpucore.ResourceState)}
}

// State returns the recorded state of one layer.
func (t *Tracker) State(id gpucore.TextureID, layer int) gpucore.ResourceState {
	s := t.states[id]
	if layer < 0 || layer >= len(s) {
		return gpucore.StateUndefined
	}
	return s[layer]
}

// Set records the state of one layer.
func (t *Tracker) Set(id gpucore.TextureID, layer int, state gpucore.ResourceState) {
	s := t.states[id]
	for len(s) <= layer {
		s = append(s, gpucore.StateUndefined)
	}
	s[layer] = state
	t.states[id] = s
}

// Forget drops a texture, e.g. after it was destroyed.
func (t *Tracker) Forget(id gpucore.TextureID) {
	delete(t.states, id)
}

// Len returns the number of tracked textures.
func (t *Tracker) Len() int { return len(t.states) }

// Pool recycles transient textures across frames by descriptor.
type Pool struct {
	dev  gpucore.Device
	free map[gpucore.TextureDesc][]gpucore.TextureID
	desc map[gpucore.TextureID]gpucore.TextureDesc
}

// NewPool creates an empty pool on dev.
func NewPool(dev gpucore.Device) *Pool {
	return &Pool{
		dev:  dev,
		free: make(map[gpucore.TextureDesc][]gpucore.TextureID),
		desc: make(map[gpucore.TextureID]gpucore.TextureDesc),
	}
}

func poolKey(d *gpucore.TextureDesc) gpucore.TextureDesc {
	k := *d
	k.Label = ""
	return k
}

// Acquire returns a free texture matching desc or creates one.
func (p *Pool) Acquire(desc *gpucore.TextureDesc) (gpucore.TextureID, error) {
	key := poolKey(desc)
	list := p.free[key]
	for len(list) > 0 {
		id := list[len(list)-1]
		list = list[:len(list)-1]
		p.free[key] = list
		if p.dev.TextureValid(id) {
			return id, nil
		}
		delete(p.desc, id)
	}
	id, err := p.dev.CreateTexture(desc)
	if err != nil {
		return gpucore.InvalidID, err
	}
	p.desc[id] = key
	return id, nil
}

// Release returns a texture to the pool.
func (p *Pool) Release(id gpucore.TextureID) {
	key, ok := p.desc[id]
	if !ok {
		return
	}
	p.free[key] = append(p.free[key], id)
}

// Size returns the number of textures owned by the pool.
func (p *Pool) Size() int { return len(p.desc) }

// Destroy releases every texture the pool created.
func (p *Pool) Destroy() {
	for id := range p.desc {
		p.dev.DestroyTexture(id)
	}
	clear(p.desc)
	clear(p.free)
}
