// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package doublebuf

import (
	"errors"
	"testing"

	"github.com/gogpu/clouds/gpucore"
	"github.com/gogpu/clouds/internal/gputest"
)

func cubeDesc() gpucore.TextureDesc {
	return gpucore.TextureDesc{
		Label:     "clouds",
		Width:     64,
		Height:    64,
		Dimension: gpucore.TextureDimensionCube,
		Format:    gpucore.TextureFormatRGBA16Float,
		Usage:     gpucore.TextureUsageStorageBinding | gpucore.TextureUsageTextureBinding,
	}
}

func TestInitializeIdenticalSlots(t *testing.T) {
	dev := gputest.New()
	m := New(dev)
	if err := m.Initialize(cubeDesc()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	a, _ := dev.TextureDesc(m.Slot(0))
	b, _ := dev.TextureDesc(m.Slot(1))
	if a.Width != b.Width || a.Height != b.Height || a.Format != b.Format || a.Dimension != b.Dimension {
		t.Errorf("slots differ: %+v vs %+v", a, b)
	}
	if m.CurrentReadSlot() == m.NextWriteSlot() {
		t.Error("current and write slot are the same texture")
	}
	if !m.Valid() {
		t.Error("Valid() = false after Initialize")
	}
}

func TestInitializeFailureReleases(t *testing.T) {
	dev := gputest.New()
	dev.FailCreateTexture = 2 // second slot fails
	m := New(dev)
	err := m.Initialize(cubeDesc())
	if !errors.Is(err, ErrAllocation) {
		t.Fatalf("err = %v, want ErrAllocation", err)
	}
	if !errors.Is(err, gputest.ErrInjected) {
		t.Errorf("err = %v, should wrap device error", err)
	}
	if dev.LiveTextures() != 0 {
		t.Errorf("%d textures leaked", dev.LiveTextures())
	}
	if m.Initialized() || m.CurrentReadSlot() != gpucore.InvalidID {
		t.Error("failed manager reports slots")
	}
}

func TestCommitSwapRoundTrip(t *testing.T) {
	dev := gputest.New()
	m := New(dev)
	if err := m.Initialize(cubeDesc()); err != nil {
		t.Fatal(err)
	}
	read, write := m.CurrentReadSlot(), m.NextWriteSlot()

	m.CommitSwap()
	if m.CurrentReadSlot() != write || m.NextWriteSlot() != read {
		t.Fatal("swap did not exchange roles")
	}
	if m.CurrentIndex() != 1 || m.WriteIndex() != 0 {
		t.Errorf("indices = %d/%d, want 1/0", m.CurrentIndex(), m.WriteIndex())
	}

	m.CommitSwap()
	if m.CurrentReadSlot() != read || m.NextWriteSlot() != write {
		t.Error("double swap is not a round trip")
	}
	if dev.Created != 2 {
		t.Errorf("swap allocated textures: created=%d", dev.Created)
	}
}

func TestReleaseIdempotent(t *testing.T) {
	dev := gputest.New()
	m := New(dev)
	if err := m.Initialize(cubeDesc()); err != nil {
		t.Fatal(err)
	}
	m.Release()
	m.Release()
	if dev.Destroyed != 2 {
		t.Errorf("destroyed = %d, want 2", dev.Destroyed)
	}
	if m.Valid() {
		t.Error("Valid() after Release")
	}
	if _, err := m.Repair(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Repair after Release: %v", err)
	}
}

func TestRepairKeepsCurrent(t *testing.T) {
	dev := gputest.New()
	m := New(dev)
	if err := m.Initialize(cubeDesc()); err != nil {
		t.Fatal(err)
	}
	current := m.CurrentReadSlot()
	dev.Invalidate(m.NextWriteSlot())
	if m.Valid() {
		t.Fatal("Valid() with a lost slot")
	}

	repaired, err := m.Repair()
	if err != nil || !repaired {
		t.Fatalf("Repair = %v, %v", repaired, err)
	}
	if m.CurrentReadSlot() != current {
		t.Error("Repair replaced the valid current slot")
	}
	if !m.Valid() {
		t.Error("still invalid after Repair")
	}

	repaired, err = m.Repair()
	if err != nil || repaired {
		t.Errorf("second Repair = %v, %v; want false, nil", repaired, err)
	}
}

func TestResize(t *testing.T) {
	dev := gputest.New()
	m := New(dev)
	if err := m.Initialize(cubeDesc()); err != nil {
		t.Fatal(err)
	}
	m.CommitSwap()
	if err := m.Resize(128, 128); err != nil {
		t.Fatal(err)
	}
	d, ok := dev.TextureDesc(m.CurrentReadSlot())
	if !ok || d.Width != 128 || d.Height != 128 {
		t.Errorf("resized desc = %+v", d)
	}
	if m.CurrentIndex() != 0 {
		t.Error("resize should restart at slot 0")
	}
	if dev.LiveTextures() != 2 {
		t.Errorf("live textures = %d, want 2", dev.LiveTextures())
	}
}
