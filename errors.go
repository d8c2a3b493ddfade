package clouds

import "errors"

// Configuration errors are returned by Compositor.Initialize and leave
// the compositor disabled.
var (
	// ErrInvalidConfig is returned for out-of-range configuration values.
	ErrInvalidConfig = errors.New("clouds: invalid configuration")

	// ErrMissingKernel is returned when the compute kernel is absent or
	// fails to compile.
	ErrMissingKernel = errors.New("clouds: missing compute kernel")

	// ErrMissingInput is returned for each noise input that is not a live
	// texture. The input name is part of the wrapping message.
	ErrMissingInput = errors.New("clouds: missing noise input")
)

// Frame errors are reported in FrameReport.Err. Tick never returns them.
var (
	// ErrDisabled is reported after a failed Initialize or after Shutdown.
	ErrDisabled = errors.New("clouds: compositor disabled")

	// ErrNotInitialized is reported when Tick runs before Initialize.
	ErrNotInitialized = errors.New("clouds: compositor not initialized")

	// ErrResourceInvalid is reported when a buffer, the kernel or the
	// camera target stopped being valid. The cycle in progress is
	// discarded.
	ErrResourceInvalid = errors.New("clouds: resource invalid")

	// ErrDispatch is reported when the frame's passes failed to record or
	// submit. The unit is retried on the next eligible frame.
	ErrDispatch = errors.New("clouds: dispatch failed")
)
