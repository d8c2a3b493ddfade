// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package doublebuf owns the two persistent cloud render targets.
//
// One slot is current (sampled for display), the other is written by the
// next render cycle. CommitSwap exchanges the roles without touching
// texture contents. Passes only ever receive TextureIDs, never ownership.
package doublebuf

import (
	"errors"
	"fmt"

	"github.com/gogpu/clouds/gpucore"
)

var (
	// ErrAllocation is returned when the device cannot create a slot.
	ErrAllocation = errors.New("doublebuf: allocation failed")

	// ErrNotInitialized is returned by operations that need live slots.
	ErrNotInitialized = errors.New("doublebuf: not initialized")
)

// Manager owns two identically configured textures.
// It is not safe for concurrent use.
type Manager struct {
	dev     gpucore.Device
	desc    gpucore.TextureDesc
	slots   [2]gpucore.TextureID
	current int
	alive   bool
}

// New creates an empty manager bound to dev.
func New(dev gpucore.Device) *Manager {
	return &Manager{dev: dev}
}

// Initialize allocates both slots with desc. Any existing slots are
// released first. On failure nothing stays allocated.
func (m *Manager) Initialize(desc gpucore.TextureDesc) error {
	m.Release()
	m.desc = desc
	for i := range m.slots {
		d := desc
		d.Label = fmt.Sprintf("%s[%d]", desc.Label, i)
		id, err := m.dev.CreateTexture(&d)
		if err != nil {
			m.Release()
			return fmt.Errorf("%w: slot %d: %w", ErrAllocation, i, err)
		}
		m.slots[i] = id
	}
	m.current = 0
	m.alive = true
	return nil
}

// CurrentReadSlot returns the slot treated as up to date.
func (m *Manager) CurrentReadSlot() gpucore.TextureID {
	if !m.alive {
		return gpucore.InvalidID
	}
	return m.slots[m.current]
}

// NextWriteSlot returns the slot the next cycle fills.
func (m *Manager) NextWriteSlot() gpucore.TextureID {
	if !m.alive {
		return gpucore.InvalidID
	}
	return m.slots[1-m.current]
}

// Slot returns the texture of slot i (0 or 1).
func (m *Manager) Slot(i int) gpucore.TextureID {
	if !m.alive || i < 0 || i > 1 {
		return gpucore.InvalidID
	}
	return m.slots[i]
}

// CurrentIndex returns the index of the current slot.
func (m *Manager) CurrentIndex() int { return m.current }

// WriteIndex returns the index of the write slot.
func (m *Manager) WriteIndex() int { return 1 - m.current }

// CommitSwap makes the write slot current.
func (m *Manager) CommitSwap() {
	m.current = 1 - m.current
}

// Desc returns the descriptor the slots were created with.
func (m *Manager) Desc() gpucore.TextureDesc { return m.desc }

// Initialized reports whether slots were allocated and not released.
func (m *Manager) Initialized() bool { return m.alive }

// Valid reports whether both slots are live on the device.
func (m *Manager) Valid() bool {
	if !m.alive {
		return false
	}
	return m.dev.TextureValid(m.slots[0]) && m.dev.TextureValid(m.slots[1])
}

// Repair recreates only the slots the device no longer knows, so a valid
// current slot keeps being displayed. It reports whether anything was
// recreated.
func (m *Manager) Repair() (bool, error) {
	if !m.alive {
		return false, ErrNotInitialized
	}
	repaired := false
	for i, id := range m.slots {
		if m.dev.TextureValid(id) {
			continue
		}
		d := m.desc
		d.Label = fmt.Sprintf("%s[%d]", m.desc.Label, i)
		nid, err := m.dev.CreateTexture(&d)
		if err != nil {
			return repaired, fmt.Errorf("%w: slot %d: %w", ErrAllocation, i, err)
		}
		m.slots[i] = nid
		repaired = true
	}
	return repaired, nil
}

// Resize reallocates both slots at a new resolution. Contents are lost.
func (m *Manager) Resize(width, height uint32) error {
	d := m.desc
	d.Width, d.Height = width, height
	return m.Initialize(d)
}

// Release destroys both slots. Safe to call multiple times.
func (m *Manager) Release() {
	for i, id := range m.slots {
		if id != gpucore.InvalidID {
			m.dev.DestroyTexture(id)
			m.slots[i] = gpucore.InvalidID
		}
	}
	m.alive = false
}
