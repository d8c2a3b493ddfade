package clouds

import "log/slog"

// Option configures a Compositor during creation.
//
// Example:
//
//	cfg := clouds.DefaultConfig()
//	cfg.Mode = clouds.ModeScreen
//	c := clouds.New(dev, inputs, clouds.WithConfig(cfg))
type Option func(*options)

// options holds optional configuration for Compositor creation.
type options struct {
	config     Config
	logger     *slog.Logger
	source     string
	entryPoint string
}

// defaultOptions returns the default compositor options.
func defaultOptions() options {
	return options{
		config:     DefaultConfig(),
		source:     DefaultKernelSource,
		entryPoint: DefaultKernelEntryPoint,
	}
}

// WithConfig replaces DefaultConfig. The config is validated by Initialize.
func WithConfig(cfg Config) Option {
	return func(o *options) {
		o.config = cfg
	}
}

// WithLogger sets a logger for this compositor instead of the package
// logger. The logger is passed on to the device if it accepts one.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithKernel replaces the cloud kernel. The entry point must be a
// @compute function with the bindings of
// DefaultKernelSource.
func WithKernel(source, entryPoint string) Option {
	return func(o *options) {
		o.source = source
		o.entryPoint = entryPoint
	}
}

// WithKernelEntryPoint selects another entry point of the kernel source.
func WithKernelEntryPoint(entryPoint string) Option {
	return func(o *options) {
		o.entryPoint = entryPoint
	}
}
