package backend

import (
	"errors"
	"testing"

	"github.com/gogpu/clouds/gpucore"
	"github.com/gogpu/clouds/internal/gputest"
)

func TestRegisterOpen(t *testing.T) {
	Register("fake", func() (gpucore.Device, error) { return gputest.New(), nil })
	defer Unregister("fake")

	if !IsRegistered("fake") {
		t.Fatal("fake not registered")
	}
	dev, err := Open("fake")
	if err != nil || dev.Name() != "gputest" {
		t.Fatalf("Open = %v, %v", dev, err)
	}

	found := false
	for _, n := range Available() {
		if n == "fake" {
			found = true
		}
	}
	if !found {
		t.Errorf("Available() = %v, missing fake", Available())
	}
}

func TestOpenUnknown(t *testing.T) {
	if _, err := Open("nope"); !errors.Is(err, ErrBackendNotAvailable) {
		t.Errorf("err = %v, want ErrBackendNotAvailable", err)
	}
}

func TestOpenDefaultFallsBack(t *testing.T) {
	gpuErr := errors.New("no adapter")
	Register(BackendWGPU, func() (gpucore.Device, error) { return nil, gpuErr })
	Register(BackendSoftware, func() (gpucore.Device, error) { return gputest.New(), nil })
	defer Unregister(BackendWGPU)
	defer Unregister(BackendSoftware)

	dev, err := OpenDefault()
	if err != nil {
		t.Fatalf("OpenDefault: %v", err)
	}
	if dev.Name() != "gputest" {
		t.Errorf("got %s, want software fallback", dev.Name())
	}

	Unregister(BackendSoftware)
	if _, err := OpenDefault(); !errors.Is(err, ErrBackendNotAvailable) {
		t.Errorf("err = %v, want ErrBackendNotAvailable", err)
	}
}
