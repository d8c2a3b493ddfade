// Package backend provides a pluggable registry of gpucore.Device
// implementations.
//
// # Backend Registration
//
// Backends register themselves from init() functions and are selected at
// runtime, in the style of database/sql drivers:
//
//	import _ "github.com/gogpu/clouds/backend/software"
//
// # Backend Selection
//
// Use OpenDefault() to get the best available device, or Open() to request
// a specific backend by name:
//
//	// Best available: wgpu if a GPU adapter opens, otherwise software
//	dev, err := backend.OpenDefault()
//
//	// Or request a specific backend
//	dev, err := backend.Open(backend.BackendSoftware)
//
// # Available Backends
//
// - "software": CPU reference device with half-float textures (always available)
// - "wgpu": GPU device via gogpu/wgpu HAL (Vulkan)
package backend
