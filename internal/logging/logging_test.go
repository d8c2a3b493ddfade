// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package logging

import (
	"context"
	"log/slog"
	"testing"
)

func TestNopHandler(t *testing.T) {
	h := NopHandler{}
	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
		if h.Enabled(context.Background(), level) {
			t.Errorf("Enabled(%v) = true", level)
		}
	}
	if err := h.Handle(context.Background(), slog.Record{}); err != nil {
		t.Errorf("Handle() = %v", err)
	}
	if _, ok := h.WithAttrs([]slog.Attr{slog.String("k", "v")}).(NopHandler); !ok {
		t.Error("WithAttrs did not return NopHandler")
	}
	if _, ok := h.WithGroup("g").(NopHandler); !ok {
		t.Error("WithGroup did not return NopHandler")
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil).Enabled(context.Background(), slog.LevelError) {
		t.Error("OrNop(nil) should be silent")
	}
	l := slog.Default()
	if OrNop(l) != l {
		t.Error("OrNop should keep a non-nil logger")
	}
}
