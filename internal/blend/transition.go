// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package blend implements the cross-fade transition between the history
// cloud buffer and a freshly rendered one.
//
// The factor is driven by accumulated frame time rather than frame count,
// so a transition takes the same wall time at any refresh rate:
//
//	factor = clamp(elapsed / duration, 0, 1)
//
// Consumers interpolate output = lerp(history, current, factor).
package blend

import "time"

// Transition is one cross-fade. The zero value is an inactive transition
// whose factor is 1.
type Transition struct {
	duration time.Duration
	elapsed  time.Duration
	factor   float32
	active   bool
}

// New returns an inactive transition.
func New() *Transition {
	return &Transition{}
}

// Begin starts a new transition of the given duration. The factor resets
// to 0. A duration <= 0 completes immediately.
func (t *Transition) Begin(duration time.Duration) {
	t.duration = duration
	t.elapsed = 0
	t.factor = 0
	t.active = true
	if duration <= 0 {
		t.factor = 1
	}
}

// Advance accumulates dt and returns the new factor. Negative dt is
// treated as zero so the factor never goes backward. Once the factor
// reaches 1 it stays there until the next Begin.
func (t *Transition) Advance(dt time.Duration) float32 {
	if !t.active {
		return t.Factor()
	}
	if dt > 0 {
		t.elapsed += dt
	}
	if t.factor >= 1 {
		return 1
	}
	if t.elapsed >= t.duration {
		t.factor = 1
		return 1
	}
	f := float32(float64(t.elapsed) / float64(t.duration))
	if f > t.factor {
		t.factor = clamp01(f)
	}
	return t.factor
}

// Factor returns the current interpolation weight of the new buffer.
func (t *Transition) Factor() float32 {
	if !t.active {
		return 1
	}
	return t.factor
}

// Done reports whether the transition has reached factor 1.
func (t *Transition) Done() bool { return t.Factor() >= 1 }

// Active reports whether Begin was called since the last Reset.
func (t *Transition) Active() bool { return t.active }

// Elapsed returns the accumulated time of the current transition.
func (t *Transition) Elapsed() time.Duration { return t.elapsed }

// Duration returns the target duration of the current transition.
func (t *Transition) Duration() time.Duration { return t.duration }

// Reset makes the transition inactive with factor 1.
func (t *Transition) Reset() {
	*t = Transition{}
}

// Lerp returns a*(1-f) + b*f.
func Lerp(a, b, f float32) float32 {
	return a + (b-a)*f
}

// LerpRGBA interpolates history toward current by f, per channel.
func LerpRGBA(history, current [4]float32, f float32) [4]float32 {
	var out [4]float32
	for i := range out {
		out[i] = Lerp(history[i], current[i], f)
	}
	return out
}

func clamp01(v float32) float32 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
